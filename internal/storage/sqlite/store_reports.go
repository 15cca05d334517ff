package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/zmooth/zmooth/internal/platform/money"
	billing "github.com/zmooth/zmooth/internal/services/billing/domain"
	"github.com/zmooth/zmooth/internal/storage"
)

// Completed purchases and invoice payments count as revenue. Top-ups only
// move money into a wallet and are spent later as wallet purchases.
const revenueWhere = "status = 'completed' AND type IN ('purchase', 'invoice') AND completed_at >= ? AND completed_at < ?"

// SalesByDay groups completed revenue by UTC day in [from, to).
func (s *Store) SalesByDay(ctx context.Context, from, to time.Time) ([]storage.DailySales, error) {
	return queryAll(ctx, s, "sales by day", `
SELECT strftime('%Y-%m-%d', completed_at / 1000, 'unixepoch') AS day, COUNT(*), COALESCE(SUM(amount), 0)
FROM transactions
WHERE `+revenueWhere+`
GROUP BY day
ORDER BY day`, []any{toMillis(from), toMillis(to)},
		func(row scanner) (storage.DailySales, error) {
			var (
				d     storage.DailySales
				total int64
			)
			if err := row.Scan(&d.Day, &d.Count, &total); err != nil {
				return storage.DailySales{}, err
			}
			d.Total = money.Amount(total)
			return d, nil
		})
}

// Revenue sums completed revenue in [from, to).
func (s *Store) Revenue(ctx context.Context, from, to time.Time) (money.Amount, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	var total int64
	if err := s.q.QueryRowContext(ctx, "SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE "+revenueWhere,
		toMillis(from), toMillis(to)).Scan(&total); err != nil {
		return 0, fmt.Errorf("revenue: %w", err)
	}
	return money.Amount(total), nil
}

// DataUsageByUser ranks users by bytes over sessions started in [from, to).
func (s *Store) DataUsageByUser(ctx context.Context, from, to time.Time, limit int) ([]storage.UserUsage, error) {
	if limit <= 0 {
		limit = 10
	}
	return queryAll(ctx, s, "data usage by user", `
SELECT user_id, MAX(username), COUNT(*), COALESCE(SUM(total_bytes), 0) AS bytes
FROM sessions
WHERE started_at >= ? AND started_at < ?
GROUP BY user_id
ORDER BY bytes DESC, user_id
LIMIT ?`, []any{toMillis(from), toMillis(to), limit},
		func(row scanner) (storage.UserUsage, error) {
			var u storage.UserUsage
			err := row.Scan(&u.UserID, &u.Username, &u.Sessions, &u.Bytes)
			return u, err
		})
}

// TopSpenders ranks users by completed revenue in [from, to).
func (s *Store) TopSpenders(ctx context.Context, from, to time.Time, limit int) ([]storage.UserSpend, error) {
	if limit <= 0 {
		limit = 10
	}
	return queryAll(ctx, s, "top spenders", `
SELECT t.user_id, COALESCE(u.username, ''), COUNT(*), COALESCE(SUM(t.amount), 0) AS total
FROM transactions t
LEFT JOIN users u ON u.id = t.user_id
WHERE t.user_id <> '' AND t.status = ? AND t.type IN (?, ?) AND t.completed_at >= ? AND t.completed_at < ?
GROUP BY t.user_id
ORDER BY total DESC, t.user_id
LIMIT ?`, []any{string(billing.TransactionCompleted), string(billing.TransactionPurchase), string(billing.TransactionInvoice), toMillis(from), toMillis(to), limit},
		func(row scanner) (storage.UserSpend, error) {
			var (
				u     storage.UserSpend
				total int64
			)
			if err := row.Scan(&u.UserID, &u.Username, &u.Transactions, &total); err != nil {
				return storage.UserSpend{}, err
			}
			u.Total = money.Amount(total)
			return u, nil
		})
}
