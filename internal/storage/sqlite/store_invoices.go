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

const invoiceColumns = `id, number, customer_name, user_id, plan_id, subscription_id, amount, currency, status,
issue_date, due_date, paid_at, payment_method, station, notes, created_at, updated_at`

var invoiceSchema = filter.Schema{
	"status":         {Column: "status", Type: filter.String},
	"amount":         {Column: "amount", Type: filter.Money},
	"payment_method": {Column: "payment_method", Type: filter.String},
	"station":        {Column: "station", Type: filter.String},
	"issue_date":     {Column: "issue_date", Type: filter.Timestamp},
	"due_date":       {Column: "due_date", Type: filter.Timestamp},
	"user_id":        {Column: "user_id", Type: filter.String},
}

func scanInvoice(row scanner) (billing.Invoice, error) {
	var (
		inv       billing.Invoice
		amount    int64
		status    string
		issueDate int64
		dueDate   int64
		paidAt    sql.NullInt64
		method    string
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&inv.ID, &inv.Number, &inv.CustomerName, &inv.UserID, &inv.PlanID, &inv.SubscriptionID, &amount, &inv.Currency, &status,
		&issueDate, &dueDate, &paidAt, &method, &inv.Station, &inv.Notes, &createdAt, &updatedAt); err != nil {
		return billing.Invoice{}, err
	}
	inv.Amount = money.Amount(amount)
	inv.Status = billing.InvoiceStatus(status)
	inv.IssueDate = fromMillis(issueDate)
	inv.DueDate = fromMillis(dueDate)
	inv.PaidAt = fromNullMillis(paidAt)
	inv.PaymentMethod = billing.PaymentMethod(method)
	inv.CreatedAt = fromMillis(createdAt)
	inv.UpdatedAt = fromMillis(updatedAt)
	return inv, nil
}

// CreateInvoice allocates the next number for the issue year and inserts
// the invoice in the same transaction.
func (s *Store) CreateInvoice(ctx context.Context, inv billing.Invoice) (billing.Invoice, error) {
	err := s.InTx(ctx, func(tx storage.Store) error {
		txStore := tx.(*Store)
		year := inv.IssueDate.UTC().Year()
		var seq int
		if err := txStore.q.QueryRowContext(ctx, `
INSERT INTO invoice_sequences (year, last_seq) VALUES (?, 1)
ON CONFLICT(year) DO UPDATE SET last_seq = last_seq + 1
RETURNING last_seq`, year).Scan(&seq); err != nil {
			return fmt.Errorf("next invoice number: %w", err)
		}
		inv.Number = billing.InvoiceNumber(year, seq)
		return txStore.PutInvoice(ctx, inv)
	})
	if err != nil {
		return billing.Invoice{}, err
	}
	return inv, nil
}

// PutInvoice inserts or replaces an invoice.
func (s *Store) PutInvoice(ctx context.Context, inv billing.Invoice) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(inv.ID) == "" {
		return fmt.Errorf("invoice id is required")
	}
	_, err := s.q.ExecContext(ctx, `
INSERT INTO invoices (`+invoiceColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    customer_name = excluded.customer_name,
    amount = excluded.amount,
    currency = excluded.currency,
    status = excluded.status,
    due_date = excluded.due_date,
    paid_at = excluded.paid_at,
    payment_method = excluded.payment_method,
    station = excluded.station,
    notes = excluded.notes,
    updated_at = excluded.updated_at`,
		inv.ID, inv.Number, inv.CustomerName, inv.UserID, inv.PlanID, inv.SubscriptionID, int64(inv.Amount), inv.Currency, string(inv.Status),
		toMillis(inv.IssueDate), toMillis(inv.DueDate), nullMillis(inv.PaidAt), string(inv.PaymentMethod), inv.Station, inv.Notes,
		toMillis(inv.CreatedAt), toMillis(inv.UpdatedAt),
	)
	return constraintError(err, "invoice")
}

// GetInvoice fetches an invoice by id.
func (s *Store) GetInvoice(ctx context.Context, invoiceID string) (billing.Invoice, error) {
	if err := s.ready(ctx); err != nil {
		return billing.Invoice{}, err
	}
	inv, err := scanInvoice(s.q.QueryRowContext(ctx, "SELECT "+invoiceColumns+" FROM invoices WHERE id = ?", strings.TrimSpace(invoiceID)))
	if err != nil {
		return billing.Invoice{}, notFound(err, "get invoice")
	}
	return inv, nil
}

// invoicePlanName resolves the plan name for invoice search.
const invoicePlanName = "(SELECT name FROM plans WHERE plans.id = invoices.plan_id)"

// ListInvoices pages invoices newest first.
func (s *Store) ListInvoices(ctx context.Context, query storage.ListQuery) (storage.Page[billing.Invoice], error) {
	return listPage(ctx, s, listSpec{
		table:   "invoices",
		columns: invoiceColumns,
		search:  []string{"number", "customer_name", invoicePlanName, "station"},
		schema:  invoiceSchema,
		orderBy: "issue_date DESC, number DESC",
	}, query, scanInvoice)
}

// DeleteInvoices removes a selection.
func (s *Store) DeleteInvoices(ctx context.Context, ids []string) (int, error) {
	return s.execIDs(ctx, "delete invoices", "DELETE FROM invoices", ids)
}

// MarkInvoicesOverdue flips unpaid invoices past due to overdue.
func (s *Store) MarkInvoicesOverdue(ctx context.Context, now time.Time) (int, error) {
	return s.execCount(ctx, "mark invoices overdue",
		"UPDATE invoices SET status = ?, updated_at = ? WHERE status = ? AND due_date < ?",
		string(billing.InvoiceOverdue), toMillis(now), string(billing.InvoiceUnpaid), toMillis(now))
}

// CountInvoicesByStatus counts invoices per status.
func (s *Store) CountInvoicesByStatus(ctx context.Context) (map[billing.InvoiceStatus]int, error) {
	type statusCount struct {
		status string
		count  int
	}
	rows, err := queryAll(ctx, s, "count invoices", "SELECT status, COUNT(*) FROM invoices GROUP BY status", nil,
		func(row scanner) (statusCount, error) {
			var sc statusCount
			err := row.Scan(&sc.status, &sc.count)
			return sc, err
		})
	if err != nil {
		return nil, err
	}
	counts := make(map[billing.InvoiceStatus]int, len(rows))
	for _, sc := range rows {
		counts[billing.InvoiceStatus(sc.status)] = sc.count
	}
	return counts, nil
}

const subscriptionColumns = `id, customer_name, user_id, email, phone, plan_id, plan_name, amount, currency,
billing_cycle, start_date, next_billing, last_billed, status, payment_method, auto_renewal, failed_attempts,
created_at, updated_at`

func scanSubscription(row scanner) (billing.Subscription, error) {
	var (
		sub         billing.Subscription
		amount      int64
		billCycle   string
		startDate   int64
		nextBilling int64
		lastBilled  sql.NullInt64
		status      string
		method      string
		autoRenew   int
		createdAt   int64
		updatedAt   int64
	)
	if err := row.Scan(&sub.ID, &sub.CustomerName, &sub.UserID, &sub.Email, &sub.Phone, &sub.PlanID, &sub.PlanName, &amount, &sub.Currency,
		&billCycle, &startDate, &nextBilling, &lastBilled, &status, &method, &autoRenew, &sub.FailedAttempts,
		&createdAt, &updatedAt); err != nil {
		return billing.Subscription{}, err
	}
	sub.Amount = money.Amount(amount)
	sub.Cycle = cycle.Cycle(billCycle)
	sub.StartDate = fromMillis(startDate)
	sub.NextBilling = fromMillis(nextBilling)
	sub.LastBilled = fromNullMillis(lastBilled)
	sub.Status = billing.SubscriptionStatus(status)
	sub.PaymentMethod = billing.PaymentMethod(method)
	sub.AutoRenewal = autoRenew == 1
	sub.CreatedAt = fromMillis(createdAt)
	sub.UpdatedAt = fromMillis(updatedAt)
	return sub, nil
}

// PutSubscription inserts or replaces a subscription.
func (s *Store) PutSubscription(ctx context.Context, sub billing.Subscription) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(sub.ID) == "" {
		return fmt.Errorf("subscription id is required")
	}
	_, err := s.q.ExecContext(ctx, `
INSERT INTO subscriptions (`+subscriptionColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    customer_name = excluded.customer_name,
    user_id = excluded.user_id,
    email = excluded.email,
    phone = excluded.phone,
    plan_id = excluded.plan_id,
    plan_name = excluded.plan_name,
    amount = excluded.amount,
    currency = excluded.currency,
    billing_cycle = excluded.billing_cycle,
    next_billing = excluded.next_billing,
    last_billed = excluded.last_billed,
    status = excluded.status,
    payment_method = excluded.payment_method,
    auto_renewal = excluded.auto_renewal,
    failed_attempts = excluded.failed_attempts,
    updated_at = excluded.updated_at`,
		sub.ID, sub.CustomerName, sub.UserID, sub.Email, sub.Phone, sub.PlanID, sub.PlanName, int64(sub.Amount), sub.Currency,
		string(sub.Cycle), toMillis(sub.StartDate), toMillis(sub.NextBilling), nullMillis(sub.LastBilled), string(sub.Status),
		string(sub.PaymentMethod), boolInt(sub.AutoRenewal), sub.FailedAttempts, toMillis(sub.CreatedAt), toMillis(sub.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put subscription: %w", err)
	}
	return nil
}

// GetSubscription fetches a subscription by id.
func (s *Store) GetSubscription(ctx context.Context, subscriptionID string) (billing.Subscription, error) {
	if err := s.ready(ctx); err != nil {
		return billing.Subscription{}, err
	}
	sub, err := scanSubscription(s.q.QueryRowContext(ctx, "SELECT "+subscriptionColumns+" FROM subscriptions WHERE id = ?", strings.TrimSpace(subscriptionID)))
	if err != nil {
		return billing.Subscription{}, notFound(err, "get subscription")
	}
	return sub, nil
}

// ListSubscriptions pages subscriptions by next billing date.
func (s *Store) ListSubscriptions(ctx context.Context, query storage.ListQuery) (storage.Page[billing.Subscription], error) {
	return listPage(ctx, s, listSpec{
		table:   "subscriptions",
		columns: subscriptionColumns,
		search:  []string{"customer_name", "email", "phone", "plan_name", "billing_cycle", "status"},
		schema: filter.Schema{
			"status":         {Column: "status", Type: filter.String},
			"billing_cycle":  {Column: "billing_cycle", Type: filter.String},
			"payment_method": {Column: "payment_method", Type: filter.String},
			"auto_renewal":   {Column: "auto_renewal", Type: filter.Bool},
			"amount":         {Column: "amount", Type: filter.Money},
			"next_billing":   {Column: "next_billing", Type: filter.Timestamp},
		},
		orderBy: "next_billing, id",
	}, query, scanSubscription)
}

// DeleteSubscriptions removes a selection.
func (s *Store) DeleteSubscriptions(ctx context.Context, ids []string) (int, error) {
	return s.execIDs(ctx, "delete subscriptions", "DELETE FROM subscriptions", ids)
}

// ListDueSubscriptions returns active subscriptions due at now, whatever
// their renewal setting.
func (s *Store) ListDueSubscriptions(ctx context.Context, now time.Time) ([]billing.Subscription, error) {
	return queryAll(ctx, s, "list due subscriptions",
		"SELECT "+subscriptionColumns+" FROM subscriptions WHERE status = ? AND next_billing <= ? ORDER BY next_billing",
		[]any{string(billing.SubscriptionActive), toMillis(now)}, scanSubscription)
}
