package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/zmooth/zmooth/internal/platform/filter"
	"github.com/zmooth/zmooth/internal/platform/money"
	"github.com/zmooth/zmooth/internal/services/billing/cycle"
	billing "github.com/zmooth/zmooth/internal/services/billing/domain"
	"github.com/zmooth/zmooth/internal/storage"
)

const planColumns = `id, name, description, service, plan_type, price, currency, data_limit_mb,
validity_days, validity_hours, download_kbps, upload_kbps, devices, mikrotik_profile,
billing_cycle, is_active, is_featured, sort_order, created_at, updated_at`

var planSchema = filter.Schema{
	"service":       {Column: "service", Type: filter.String},
	"plan_type":     {Column: "plan_type", Type: filter.String},
	"price":         {Column: "price", Type: filter.Money},
	"is_active":     {Column: "is_active", Type: filter.Bool},
	"is_featured":   {Column: "is_featured", Type: filter.Bool},
	"validity_days": {Column: "validity_days", Type: filter.Int},
	"data_limit_mb": {Column: "data_limit_mb", Type: filter.Int},
}

func scanPlan(row scanner) (billing.Plan, error) {
	var (
		p         billing.Plan
		service   string
		planType  string
		price     int64
		billCycle string
		active    int
		featured  int
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &service, &planType, &price, &p.Currency, &p.DataLimitMB,
		&p.ValidityDays, &p.ValidityHours, &p.DownloadKbps, &p.UploadKbps, &p.Devices, &p.MikrotikProfile,
		&billCycle, &active, &featured, &p.SortOrder, &createdAt, &updatedAt); err != nil {
		return billing.Plan{}, err
	}
	p.Service = billing.Service(service)
	p.Type = billing.PlanType(planType)
	p.Price = money.Amount(price)
	p.BillingCycle = cycle.Cycle(billCycle)
	p.IsActive = active == 1
	p.IsFeatured = featured == 1
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return p, nil
}

// PutPlan inserts or replaces a plan. Names are unique case-insensitively.
func (s *Store) PutPlan(ctx context.Context, p billing.Plan) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("plan id is required")
	}
	_, err := s.q.ExecContext(ctx, `
INSERT INTO plans (`+planColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    description = excluded.description,
    service = excluded.service,
    plan_type = excluded.plan_type,
    price = excluded.price,
    currency = excluded.currency,
    data_limit_mb = excluded.data_limit_mb,
    validity_days = excluded.validity_days,
    validity_hours = excluded.validity_hours,
    download_kbps = excluded.download_kbps,
    upload_kbps = excluded.upload_kbps,
    devices = excluded.devices,
    mikrotik_profile = excluded.mikrotik_profile,
    billing_cycle = excluded.billing_cycle,
    is_active = excluded.is_active,
    is_featured = excluded.is_featured,
    sort_order = excluded.sort_order,
    updated_at = excluded.updated_at`,
		p.ID, p.Name, p.Description, string(p.Service), string(p.Type), int64(p.Price), p.Currency, p.DataLimitMB,
		p.ValidityDays, p.ValidityHours, p.DownloadKbps, p.UploadKbps, p.Devices, p.MikrotikProfile,
		string(p.BillingCycle), boolInt(p.IsActive), boolInt(p.IsFeatured), p.SortOrder, toMillis(p.CreatedAt), toMillis(p.UpdatedAt),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return billing.ErrPlanNameTaken
	}
	return constraintError(err, "plan")
}

// GetPlan fetches a plan by id.
func (s *Store) GetPlan(ctx context.Context, planID string) (billing.Plan, error) {
	if err := s.ready(ctx); err != nil {
		return billing.Plan{}, err
	}
	planID = strings.TrimSpace(planID)
	if planID == "" {
		return billing.Plan{}, fmt.Errorf("plan id is required")
	}
	p, err := scanPlan(s.q.QueryRowContext(ctx, "SELECT "+planColumns+" FROM plans WHERE id = ?", planID))
	if err != nil {
		return billing.Plan{}, notFound(err, "get plan")
	}
	return p, nil
}

// GetPlanByName matches case-insensitively.
func (s *Store) GetPlanByName(ctx context.Context, name string) (billing.Plan, error) {
	if err := s.ready(ctx); err != nil {
		return billing.Plan{}, err
	}
	p, err := scanPlan(s.q.QueryRowContext(ctx, "SELECT "+planColumns+" FROM plans WHERE name = ? COLLATE NOCASE", strings.TrimSpace(name)))
	if err != nil {
		return billing.Plan{}, notFound(err, "get plan by name")
	}
	return p, nil
}

// ListPlans pages plans in display order.
func (s *Store) ListPlans(ctx context.Context, query storage.PlanQuery) (storage.Page[billing.Plan], error) {
	var where []filter.SQLCondition
	if query.ActiveOnly {
		where = append(where, filter.SQLCondition{Clause: "is_active = 1"})
	}
	if query.Service != "" {
		where = append(where, filter.SQLCondition{Clause: "service = ?", Params: []any{string(query.Service)}})
	}
	return listPage(ctx, s, listSpec{
		table:   "plans",
		columns: planColumns,
		search:  []string{"name", "description", "mikrotik_profile"},
		schema:  planSchema,
		orderBy: "sort_order, price, name",
		where:   where,
		key:     fmt.Sprintf("%t|%s", query.ActiveOnly, query.Service),
	}, query.ListQuery, scanPlan)
}

// SetPlansActive toggles availability for a selection.
func (s *Store) SetPlansActive(ctx context.Context, ids []string, active bool, now time.Time) (int, error) {
	return s.execIDs(ctx, "set plans active", "UPDATE plans SET is_active = ?, updated_at = ?", ids, boolInt(active), toMillis(now))
}

// DeletePlans removes a selection.
func (s *Store) DeletePlans(ctx context.Context, ids []string) (int, error) {
	return s.execIDs(ctx, "delete plans", "DELETE FROM plans", ids)
}

const userPlanColumns = `id, user_id, plan_id, transaction_id, started_at, expires_at, data_limit_mb,
data_used_mb, is_active, created_at, updated_at`

func scanUserPlan(row scanner) (billing.UserPlan, error) {
	var (
		up        billing.UserPlan
		startedAt int64
		expiresAt sql.NullInt64
		active    int
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&up.ID, &up.UserID, &up.PlanID, &up.TransactionID, &startedAt, &expiresAt, &up.DataLimitMB,
		&up.DataUsedMB, &active, &createdAt, &updatedAt); err != nil {
		return billing.UserPlan{}, err
	}
	up.StartedAt = fromMillis(startedAt)
	up.ExpiresAt = fromNullMillis(expiresAt)
	up.IsActive = active == 1
	up.CreatedAt = fromMillis(createdAt)
	up.UpdatedAt = fromMillis(updatedAt)
	return up, nil
}

// PutUserPlan inserts or replaces a plan activation.
func (s *Store) PutUserPlan(ctx context.Context, up billing.UserPlan) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(up.ID) == "" {
		return fmt.Errorf("user plan id is required")
	}
	_, err := s.q.ExecContext(ctx, `
INSERT INTO user_plans (`+userPlanColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    expires_at = excluded.expires_at,
    data_limit_mb = excluded.data_limit_mb,
    data_used_mb = excluded.data_used_mb,
    is_active = excluded.is_active,
    updated_at = excluded.updated_at`,
		up.ID, up.UserID, up.PlanID, up.TransactionID, toMillis(up.StartedAt), nullMillis(up.ExpiresAt), up.DataLimitMB,
		up.DataUsedMB, boolInt(up.IsActive), toMillis(up.CreatedAt), toMillis(up.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put user plan: %w", err)
	}
	return nil
}

// GetUserPlan fetches an activation by id.
func (s *Store) GetUserPlan(ctx context.Context, userPlanID string) (billing.UserPlan, error) {
	if err := s.ready(ctx); err != nil {
		return billing.UserPlan{}, err
	}
	up, err := scanUserPlan(s.q.QueryRowContext(ctx, "SELECT "+userPlanColumns+" FROM user_plans WHERE id = ?", strings.TrimSpace(userPlanID)))
	if err != nil {
		return billing.UserPlan{}, notFound(err, "get user plan")
	}
	return up, nil
}

// ListActiveUserPlans returns a user's active activations, newest first.
func (s *Store) ListActiveUserPlans(ctx context.Context, userID string) ([]billing.UserPlan, error) {
	return queryAll(ctx, s, "list active user plans",
		"SELECT "+userPlanColumns+" FROM user_plans WHERE user_id = ? AND is_active = 1 ORDER BY started_at DESC, id",
		[]any{strings.TrimSpace(userID)}, scanUserPlan)
}

// ListExpiredUserPlans returns active activations whose expiry has passed.
func (s *Store) ListExpiredUserPlans(ctx context.Context, now time.Time) ([]billing.UserPlan, error) {
	return queryAll(ctx, s, "list expired user plans",
		"SELECT "+userPlanColumns+" FROM user_plans WHERE is_active = 1 AND expires_at IS NOT NULL AND expires_at <= ? ORDER BY expires_at",
		[]any{toMillis(now)}, scanUserPlan)
}

// CountActiveUserPlans counts activations active and unexpired at now.
func (s *Store) CountActiveUserPlans(ctx context.Context, now time.Time) (int, error) {
	return countQuery(ctx, s, "count active user plans",
		"SELECT COUNT(*) FROM user_plans WHERE is_active = 1 AND (expires_at IS NULL OR expires_at > ?)", toMillis(now))
}

// CountUserPlansExpiringBetween counts active activations expiring in [from, to).
func (s *Store) CountUserPlansExpiringBetween(ctx context.Context, from, to time.Time) (int, error) {
	return countQuery(ctx, s, "count expiring user plans",
		"SELECT COUNT(*) FROM user_plans WHERE is_active = 1 AND expires_at >= ? AND expires_at < ?", toMillis(from), toMillis(to))
}
