package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/platform/filter"
	billing "github.com/zmooth/zmooth/internal/services/billing/domain"
	"github.com/zmooth/zmooth/internal/storage"
)

const voucherColumns = `id, code, plan_id, status, batch_id, batch_label, used_by, used_at, expires_at,
created_by, created_at, updated_at`

var voucherSchema = filter.Schema{
	"status":     {Column: "status", Type: filter.String},
	"plan_id":    {Column: "plan_id", Type: filter.String},
	"batch":      {Column: "batch_label", Type: filter.String},
	"batch_id":   {Column: "batch_id", Type: filter.String},
	"created_at": {Column: "created_at", Type: filter.Timestamp},
	"expires_at": {Column: "expires_at", Type: filter.Timestamp},
}

func scanVoucher(row scanner) (billing.Voucher, error) {
	var (
		v         billing.Voucher
		status    string
		usedAt    sql.NullInt64
		expiresAt sql.NullInt64
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&v.ID, &v.Code, &v.PlanID, &status, &v.BatchID, &v.BatchLabel, &v.UsedBy, &usedAt, &expiresAt,
		&v.CreatedBy, &createdAt, &updatedAt); err != nil {
		return billing.Voucher{}, err
	}
	v.Status = billing.VoucherStatus(status)
	v.UsedAt = fromNullMillis(usedAt)
	v.ExpiresAt = fromNullMillis(expiresAt)
	v.CreatedAt = fromMillis(createdAt)
	v.UpdatedAt = fromMillis(updatedAt)
	return v, nil
}

const putVoucherSQL = `
INSERT INTO vouchers (` + voucherColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    status = excluded.status,
    used_by = excluded.used_by,
    used_at = excluded.used_at,
    expires_at = excluded.expires_at,
    updated_at = excluded.updated_at`

func voucherArgs(v billing.Voucher) []any {
	return []any{
		v.ID, v.Code, v.PlanID, string(v.Status), v.BatchID, v.BatchLabel, v.UsedBy, nullMillis(v.UsedAt), nullMillis(v.ExpiresAt),
		v.CreatedBy, toMillis(v.CreatedAt), toMillis(v.UpdatedAt),
	}
}

// PutVouchers inserts a batch atomically.
func (s *Store) PutVouchers(ctx context.Context, vouchers []billing.Voucher) error {
	return s.InTx(ctx, func(tx storage.Store) error {
		for _, v := range vouchers {
			if err := tx.PutVoucher(ctx, v); err != nil {
				if apperrors.CodeOf(err) == apperrors.CodeAlreadyExists {
					return apperrors.WithMetadata(apperrors.CodeAlreadyExists, "voucher code already exists", map[string]string{"code": v.Code})
				}
				return err
			}
		}
		return nil
	})
}

// PutVoucher inserts or updates one voucher.
func (s *Store) PutVoucher(ctx context.Context, v billing.Voucher) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(v.ID) == "" {
		return fmt.Errorf("voucher id is required")
	}
	_, err := s.q.ExecContext(ctx, putVoucherSQL, voucherArgs(v)...)
	return constraintError(err, "voucher")
}

// GetVoucherByCode fetches a voucher by its normalized code.
func (s *Store) GetVoucherByCode(ctx context.Context, code string) (billing.Voucher, error) {
	if err := s.ready(ctx); err != nil {
		return billing.Voucher{}, err
	}
	v, err := scanVoucher(s.q.QueryRowContext(ctx, "SELECT "+voucherColumns+" FROM vouchers WHERE code = ?", strings.TrimSpace(code)))
	if err != nil {
		return billing.Voucher{}, notFound(err, "get voucher")
	}
	return v, nil
}

// VoucherCodeExists reports whether code is taken.
func (s *Store) VoucherCodeExists(ctx context.Context, code string) (bool, error) {
	count, err := countQuery(ctx, s, "voucher code exists", "SELECT COUNT(*) FROM vouchers WHERE code = ?", code)
	return count > 0, err
}

// ListVouchers pages vouchers newest first.
func (s *Store) ListVouchers(ctx context.Context, query storage.ListQuery) (storage.Page[billing.Voucher], error) {
	return listPage(ctx, s, listSpec{
		table:   "vouchers",
		columns: voucherColumns,
		search:  []string{"code", "batch_label", "status"},
		schema:  voucherSchema,
		orderBy: "created_at DESC, code",
	}, query, scanVoucher)
}

// SetVouchersStatus updates status for a selection.
func (s *Store) SetVouchersStatus(ctx context.Context, ids []string, status billing.VoucherStatus, now time.Time) (int, error) {
	return s.execIDs(ctx, "set vouchers status", "UPDATE vouchers SET status = ?, updated_at = ?", ids, string(status), toMillis(now))
}

// DeleteVouchers removes a selection.
func (s *Store) DeleteVouchers(ctx context.Context, ids []string) (int, error) {
	return s.execIDs(ctx, "delete vouchers", "DELETE FROM vouchers", ids)
}

// ExpireVouchers marks active vouchers past expires_at as expired.
func (s *Store) ExpireVouchers(ctx context.Context, now time.Time) (int, error) {
	return s.execCount(ctx, "expire vouchers",
		"UPDATE vouchers SET status = ?, updated_at = ? WHERE status = ? AND expires_at IS NOT NULL AND expires_at <= ?",
		string(billing.VoucherExpired), toMillis(now), string(billing.VoucherActive), toMillis(now))
}

// VoucherStats aggregates vouchers by status and batch.
func (s *Store) VoucherStats(ctx context.Context) (billing.VoucherStats, error) {
	if err := s.ready(ctx); err != nil {
		return billing.VoucherStats{}, err
	}
	stats := billing.VoucherStats{ByStatus: map[string]int{}, ByBatch: []billing.BatchStats{}}

	type statusCount struct {
		status string
		count  int
	}
	byStatus, err := queryAll(ctx, s, "voucher status stats", "SELECT status, COUNT(*) FROM vouchers GROUP BY status", nil,
		func(row scanner) (statusCount, error) {
			var sc statusCount
			err := row.Scan(&sc.status, &sc.count)
			return sc, err
		})
	if err != nil {
		return billing.VoucherStats{}, err
	}
	for _, sc := range byStatus {
		stats.ByStatus[sc.status] = sc.count
		stats.Total += sc.count
	}

	batches, err := queryAll(ctx, s, "voucher batch stats", `
SELECT batch_id, MAX(batch_label), COUNT(*),
    SUM(CASE WHEN status = 'used' THEN 1 ELSE 0 END),
    SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END)
FROM vouchers
WHERE batch_id <> ''
GROUP BY batch_id
ORDER BY MIN(created_at) DESC`, nil,
		func(row scanner) (billing.BatchStats, error) {
			var b billing.BatchStats
			err := row.Scan(&b.BatchID, &b.Label, &b.Total, &b.Used, &b.Active)
			return b, err
		})
	if err != nil {
		return billing.VoucherStats{}, err
	}
	if batches != nil {
		stats.ByBatch = batches
	}
	return stats, nil
}

const accessColumns = `id, username, password, service, plan_id, profile, expires_at, status, mac_address,
created_at, updated_at`

func scanAccessAccount(row scanner) (billing.AccessAccount, error) {
	var (
		a         billing.AccessAccount
		service   string
		expiresAt sql.NullInt64
		status    string
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&a.ID, &a.Username, &a.Password, &service, &a.PlanID, &a.Profile, &expiresAt, &status, &a.MACAddress,
		&createdAt, &updatedAt); err != nil {
		return billing.AccessAccount{}, err
	}
	a.Service = billing.Service(service)
	a.ExpiresAt = fromNullMillis(expiresAt)
	a.Status = billing.AccessStatus(status)
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
	return a, nil
}

// PutAccessAccount inserts or replaces a router access account.
func (s *Store) PutAccessAccount(ctx context.Context, a billing.AccessAccount) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("access account id is required")
	}
	_, err := s.q.ExecContext(ctx, `
INSERT INTO access_accounts (`+accessColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    username = excluded.username,
    password = excluded.password,
    service = excluded.service,
    plan_id = excluded.plan_id,
    profile = excluded.profile,
    expires_at = excluded.expires_at,
    status = excluded.status,
    mac_address = excluded.mac_address,
    updated_at = excluded.updated_at`,
		a.ID, a.Username, a.Password, string(a.Service), a.PlanID, a.Profile, nullMillis(a.ExpiresAt), string(a.Status), a.MACAddress,
		toMillis(a.CreatedAt), toMillis(a.UpdatedAt),
	)
	return constraintError(err, "access account")
}

// GetAccessAccount fetches an access account by id.
func (s *Store) GetAccessAccount(ctx context.Context, accountID string) (billing.AccessAccount, error) {
	if err := s.ready(ctx); err != nil {
		return billing.AccessAccount{}, err
	}
	a, err := scanAccessAccount(s.q.QueryRowContext(ctx, "SELECT "+accessColumns+" FROM access_accounts WHERE id = ?", strings.TrimSpace(accountID)))
	if err != nil {
		return billing.AccessAccount{}, notFound(err, "get access account")
	}
	return a, nil
}

// ListAccessAccounts pages access accounts newest first.
func (s *Store) ListAccessAccounts(ctx context.Context, query storage.ListQuery) (storage.Page[billing.AccessAccount], error) {
	return listPage(ctx, s, listSpec{
		table:   "access_accounts",
		columns: accessColumns,
		search:  []string{"username", "profile", "mac_address"},
		schema: filter.Schema{
			"service":    {Column: "service", Type: filter.String},
			"status":     {Column: "status", Type: filter.String},
			"plan_id":    {Column: "plan_id", Type: filter.String},
			"expires_at": {Column: "expires_at", Type: filter.Timestamp},
		},
		orderBy: "created_at DESC, id",
	}, query, scanAccessAccount)
}

// DeleteAccessAccounts removes a selection.
func (s *Store) DeleteAccessAccounts(ctx context.Context, ids []string) (int, error) {
	return s.execIDs(ctx, "delete access accounts", "DELETE FROM access_accounts", ids)
}

// ListExpiredAccessAccounts returns active accounts past expiry.
func (s *Store) ListExpiredAccessAccounts(ctx context.Context, now time.Time) ([]billing.AccessAccount, error) {
	return queryAll(ctx, s, "list expired access accounts",
		"SELECT "+accessColumns+" FROM access_accounts WHERE status = ? AND expires_at IS NOT NULL AND expires_at <= ? ORDER BY expires_at",
		[]any{string(billing.AccessActive), toMillis(now)}, scanAccessAccount)
}
