package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/zmooth/zmooth/internal/platform/filter"
	"github.com/zmooth/zmooth/internal/platform/money"
	billing "github.com/zmooth/zmooth/internal/services/billing/domain"
	"github.com/zmooth/zmooth/internal/storage"
)

const transactionColumns = `id, ref, provider_ref, receipt, user_id, plan_id, invoice_id, type, method,
status, amount, currency, phone, failure_reason, created_at, updated_at, completed_at`

var transactionSchema = filter.Schema{
	"type":         {Column: "type", Type: filter.String},
	"method":       {Column: "method", Type: filter.String},
	"status":       {Column: "status", Type: filter.String},
	"amount":       {Column: "amount", Type: filter.Money},
	"user_id":      {Column: "user_id", Type: filter.String},
	"plan_id":      {Column: "plan_id", Type: filter.String},
	"created_at":   {Column: "created_at", Type: filter.Timestamp},
	"completed_at": {Column: "completed_at", Type: filter.Timestamp},
}

func scanTransaction(row scanner) (billing.Transaction, error) {
	var (
		t           billing.Transaction
		txnType     string
		method      string
		status      string
		amount      int64
		createdAt   int64
		updatedAt   int64
		completedAt sql.NullInt64
	)
	if err := row.Scan(&t.ID, &t.Ref, &t.ProviderRef, &t.Receipt, &t.UserID, &t.PlanID, &t.InvoiceID, &txnType, &method,
		&status, &amount, &t.Currency, &t.Phone, &t.FailureReason, &createdAt, &updatedAt, &completedAt); err != nil {
		return billing.Transaction{}, err
	}
	t.Type = billing.TransactionType(txnType)
	t.Method = billing.PaymentMethod(method)
	t.Status = billing.TransactionStatus(status)
	t.Amount = money.Amount(amount)
	t.CreatedAt = fromMillis(createdAt)
	t.UpdatedAt = fromMillis(updatedAt)
	t.CompletedAt = fromNullMillis(completedAt)
	return t, nil
}

// PutTransaction inserts or replaces a payment.
func (s *Store) PutTransaction(ctx context.Context, t billing.Transaction) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("transaction id is required")
	}
	_, err := s.q.ExecContext(ctx, `
INSERT INTO transactions (`+transactionColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    provider_ref = excluded.provider_ref,
    receipt = excluded.receipt,
    invoice_id = excluded.invoice_id,
    status = excluded.status,
    failure_reason = excluded.failure_reason,
    updated_at = excluded.updated_at,
    completed_at = excluded.completed_at`,
		t.ID, t.Ref, t.ProviderRef, t.Receipt, t.UserID, t.PlanID, t.InvoiceID, string(t.Type), string(t.Method),
		string(t.Status), int64(t.Amount), t.Currency, t.Phone, t.FailureReason, toMillis(t.CreatedAt), toMillis(t.UpdatedAt), nullMillis(t.CompletedAt),
	)
	return constraintError(err, "transaction")
}

func (s *Store) getTransactionBy(ctx context.Context, column, value string) (billing.Transaction, error) {
	if err := s.ready(ctx); err != nil {
		return billing.Transaction{}, err
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return billing.Transaction{}, fmt.Errorf("transaction %s is required", column)
	}
	t, err := scanTransaction(s.q.QueryRowContext(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE "+column+" = ? ORDER BY created_at DESC LIMIT 1", value))
	if err != nil {
		return billing.Transaction{}, notFound(err, "get transaction")
	}
	return t, nil
}

// GetTransaction fetches a payment by id.
func (s *Store) GetTransaction(ctx context.Context, transactionID string) (billing.Transaction, error) {
	return s.getTransactionBy(ctx, "id", transactionID)
}

// GetTransactionByProviderRef fetches a payment by the provider's request id.
func (s *Store) GetTransactionByProviderRef(ctx context.Context, providerRef string) (billing.Transaction, error) {
	return s.getTransactionBy(ctx, "provider_ref", providerRef)
}

// transactionUsername resolves the paying user for transaction search.
const transactionUsername = "(SELECT username FROM users WHERE users.id = transactions.user_id)"

// ListTransactions pages payments newest first.
func (s *Store) ListTransactions(ctx context.Context, query storage.TransactionQuery) (storage.Page[billing.Transaction], error) {
	var where []filter.SQLCondition
	if query.UserID != "" {
		where = append(where, filter.SQLCondition{Clause: "user_id = ?", Params: []any{query.UserID}})
	}
	return listPage(ctx, s, listSpec{
		table:   "transactions",
		columns: transactionColumns,
		search:  []string{"ref", "provider_ref", "receipt", "phone", transactionUsername, "method", "status"},
		schema:  transactionSchema,
		orderBy: "created_at DESC, id",
		where:   where,
		key:     query.UserID,
	}, query.ListQuery, scanTransaction)
}

// ListPendingTransactions returns pending payments of method created before
// olderThan, oldest first.
func (s *Store) ListPendingTransactions(ctx context.Context, method billing.PaymentMethod, olderThan time.Time, limit int) ([]billing.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	return queryAll(ctx, s, "list pending transactions",
		"SELECT "+transactionColumns+" FROM transactions WHERE status = ? AND method = ? AND created_at < ? ORDER BY created_at LIMIT ?",
		[]any{string(billing.TransactionPending), string(method), toMillis(olderThan), limit}, scanTransaction)
}
