package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/zmooth/zmooth/internal/platform/filter"
	"github.com/zmooth/zmooth/internal/platform/money"
	"github.com/zmooth/zmooth/internal/services/auth/user"
	billing "github.com/zmooth/zmooth/internal/services/billing/domain"
	"github.com/zmooth/zmooth/internal/storage"
)

const userColumns = `id, email, username, phone, full_name, password_hash, role, status,
wallet_balance, mac_address, last_login_at, created_at, updated_at`

var userSchema = filter.Schema{
	"role":           {Column: "role", Type: filter.String},
	"status":         {Column: "status", Type: filter.String},
	"wallet_balance": {Column: "wallet_balance", Type: filter.Money},
	"created_at":     {Column: "created_at", Type: filter.Timestamp},
	"last_login":     {Column: "last_login_at", Type: filter.Timestamp},
}

func scanUser(row scanner) (user.User, error) {
	var (
		u         user.User
		role      string
		status    string
		wallet    int64
		lastLogin sql.NullInt64
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.Phone, &u.FullName, &u.PasswordHash, &role, &status,
		&wallet, &u.MACAddress, &lastLogin, &createdAt, &updatedAt); err != nil {
		return user.User{}, err
	}
	u.Role = user.Role(role)
	u.Status = user.Status(status)
	u.WalletBalance = money.Amount(wallet)
	u.LastLogin = fromNullMillis(lastLogin)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return u, nil
}

// PutUser inserts or replaces an account. created_at is kept from the first insert.
func (s *Store) PutUser(ctx context.Context, u user.User) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(u.ID) == "" {
		return fmt.Errorf("user id is required")
	}
	_, err := s.q.ExecContext(ctx, `
INSERT INTO users (`+userColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    email = excluded.email,
    username = excluded.username,
    phone = excluded.phone,
    full_name = excluded.full_name,
    password_hash = excluded.password_hash,
    role = excluded.role,
    status = excluded.status,
    wallet_balance = excluded.wallet_balance,
    mac_address = excluded.mac_address,
    last_login_at = excluded.last_login_at,
    updated_at = excluded.updated_at`,
		u.ID, u.Email, u.Username, u.Phone, u.FullName, u.PasswordHash, string(u.Role), string(u.Status),
		int64(u.WalletBalance), u.MACAddress, nullMillis(u.LastLogin), toMillis(u.CreatedAt), toMillis(u.UpdatedAt),
	)
	return constraintError(err, "user")
}

func (s *Store) getUserBy(ctx context.Context, column, value string) (user.User, error) {
	if err := s.ready(ctx); err != nil {
		return user.User{}, err
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return user.User{}, fmt.Errorf("user %s is required", column)
	}
	row := s.q.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE "+column+" = ?", value)
	u, err := scanUser(row)
	if err != nil {
		return user.User{}, notFound(err, "get user")
	}
	return u, nil
}

// GetUser fetches an account by id.
func (s *Store) GetUser(ctx context.Context, userID string) (user.User, error) {
	return s.getUserBy(ctx, "id", userID)
}

// GetUserByUsername matches usernames case-insensitively.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	return s.getUserBy(ctx, "username COLLATE NOCASE", username)
}

// GetUserByEmail fetches an account by its normalized email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return s.getUserBy(ctx, "email", strings.ToLower(email))
}

// GetUserByPhone fetches an account by its normalized phone.
func (s *Store) GetUserByPhone(ctx context.Context, phone string) (user.User, error) {
	return s.getUserBy(ctx, "phone", phone)
}

// ListUsers pages accounts newest first.
func (s *Store) ListUsers(ctx context.Context, query storage.UserQuery) (storage.Page[user.User], error) {
	var where []filter.SQLCondition
	key := ""
	if len(query.Roles) > 0 {
		roles := make([]string, len(query.Roles))
		for i, role := range query.Roles {
			roles[i] = string(role)
		}
		where = append(where, inClause("role", roles))
		key += strings.Join(roles, ",")
	}
	if query.Status != "" {
		where = append(where, filter.SQLCondition{Clause: "status = ?", Params: []any{string(query.Status)}})
		key += "|" + string(query.Status)
	}
	return listPage(ctx, s, listSpec{
		table:   "users",
		columns: userColumns,
		search:  []string{"username", "email", "phone", "full_name"},
		schema:  userSchema,
		orderBy: "created_at DESC, id",
		where:   where,
		key:     key,
	}, query.ListQuery, scanUser)
}

// SetUsersStatus updates status for a selection.
func (s *Store) SetUsersStatus(ctx context.Context, ids []string, status user.Status, now time.Time) (int, error) {
	return s.execIDs(ctx, "set users status", "UPDATE users SET status = ?, updated_at = ?", ids, string(status), toMillis(now))
}

// DeleteUsers removes a selection.
func (s *Store) DeleteUsers(ctx context.Context, ids []string) (int, error) {
	return s.execIDs(ctx, "delete users", "DELETE FROM users", ids)
}

// AdjustWallet applies delta in one statement so concurrent charges cannot
// overdraw a wallet.
func (s *Store) AdjustWallet(ctx context.Context, userID string, delta money.Amount, now time.Time) (money.Amount, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, fmt.Errorf("user id is required")
	}
	var balance int64
	err := s.q.QueryRowContext(ctx, `
UPDATE users SET wallet_balance = wallet_balance + ?, updated_at = ?
WHERE id = ? AND wallet_balance + ? >= 0
RETURNING wallet_balance`, int64(delta), toMillis(now), userID, int64(delta)).Scan(&balance)
	if err == nil {
		return money.Amount(balance), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("adjust wallet: %w", err)
	}
	if _, getErr := s.GetUser(ctx, userID); getErr != nil {
		return 0, getErr
	}
	return 0, billing.ErrInsufficientBalance
}

// CountUsers counts accounts of role, all roles when empty.
func (s *Store) CountUsers(ctx context.Context, role user.Role) (int, int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, 0, err
	}
	sqlText := "SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0) FROM users"
	var params []any
	if role != "" {
		sqlText += " WHERE role = ?"
		params = append(params, string(role))
	}
	var total, active int
	if err := s.q.QueryRowContext(ctx, sqlText, params...).Scan(&total, &active); err != nil {
		return 0, 0, fmt.Errorf("count users: %w", err)
	}
	return total, active, nil
}

// PutLoginAttempt appends a sign-in attempt.
func (s *Store) PutLoginAttempt(ctx context.Context, attempt storage.LoginAttempt) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.q.ExecContext(ctx, `
INSERT INTO login_attempts (id, identifier, user_id, ip, user_agent, success, reason, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.ID, attempt.Identifier, attempt.UserID, attempt.IP, attempt.UserAgent,
		boolInt(attempt.Success), attempt.Reason, toMillis(attempt.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put login attempt: %w", err)
	}
	return nil
}

func scanLoginAttempt(row scanner) (storage.LoginAttempt, error) {
	var (
		a         storage.LoginAttempt
		success   int
		createdAt int64
	)
	if err := row.Scan(&a.ID, &a.Identifier, &a.UserID, &a.IP, &a.UserAgent, &success, &a.Reason, &createdAt); err != nil {
		return storage.LoginAttempt{}, err
	}
	a.Success = success == 1
	a.CreatedAt = fromMillis(createdAt)
	return a, nil
}

// ListLoginAttempts pages attempts since a point in time, newest first.
func (s *Store) ListLoginAttempts(ctx context.Context, failedOnly bool, since time.Time, query storage.ListQuery) (storage.Page[storage.LoginAttempt], error) {
	where := []filter.SQLCondition{}
	key := fmt.Sprintf("%t", failedOnly)
	if failedOnly {
		where = append(where, filter.SQLCondition{Clause: "success = 0"})
	}
	if !since.IsZero() {
		where = append(where, filter.SQLCondition{Clause: "created_at >= ?", Params: []any{toMillis(since)}})
		key += fmt.Sprintf("|%d", toMillis(since))
	}
	return listPage(ctx, s, listSpec{
		table:   "login_attempts",
		columns: "id, identifier, user_id, ip, user_agent, success, reason, created_at",
		search:  []string{"identifier", "ip"},
		orderBy: "created_at DESC, id",
		where:   where,
		key:     key,
	}, query, scanLoginAttempt)
}

// PutAuditEvent appends an audit record.
func (s *Store) PutAuditEvent(ctx context.Context, event storage.AuditEvent) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	targets := event.TargetIDs
	if targets == nil {
		targets = []string{}
	}
	encoded, err := json.Marshal(targets)
	if err != nil {
		return fmt.Errorf("encode audit targets: %w", err)
	}
	_, err = s.q.ExecContext(ctx, `
INSERT INTO audit_events (id, actor_id, actor, action, resource, target_ids, detail, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.ActorID, event.Actor, event.Action, event.Resource, string(encoded), event.Detail, toMillis(event.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put audit event: %w", err)
	}
	return nil
}

func scanAuditEvent(row scanner) (storage.AuditEvent, error) {
	var (
		e         storage.AuditEvent
		targets   string
		createdAt int64
	)
	if err := row.Scan(&e.ID, &e.ActorID, &e.Actor, &e.Action, &e.Resource, &targets, &e.Detail, &createdAt); err != nil {
		return storage.AuditEvent{}, err
	}
	if err := json.Unmarshal([]byte(targets), &e.TargetIDs); err != nil {
		return storage.AuditEvent{}, fmt.Errorf("decode audit targets: %w", err)
	}
	e.CreatedAt = fromMillis(createdAt)
	return e, nil
}

// ListAuditEvents pages audit records newest first.
func (s *Store) ListAuditEvents(ctx context.Context, query storage.ListQuery) (storage.Page[storage.AuditEvent], error) {
	return listPage(ctx, s, listSpec{
		table:   "audit_events",
		columns: "id, actor_id, actor, action, resource, target_ids, detail, created_at",
		search:  []string{"actor", "action", "resource", "detail"},
		schema: filter.Schema{
			"action":     {Column: "action", Type: filter.String},
			"resource":   {Column: "resource", Type: filter.String},
			"created_at": {Column: "created_at", Type: filter.Timestamp},
		},
		orderBy: "created_at DESC, id",
		key:     "audit",
	}, query, scanAuditEvent)
}
