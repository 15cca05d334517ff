package app

import (
	"context"
	"errors"
	"log"
	"time"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/platform/export"
	billing "github.com/zmooth/zmooth/internal/services/billing/domain"
	"github.com/zmooth/zmooth/internal/storage"
)

var transactionCSVHeader = []string{"Reference", "User", "Type", "Method", "Status", "Amount", "Currency", "Receipt", "Phone", "Created At", "Completed At"}

const (
	// reconcileAfter leaves the callback time to arrive before polling.
	reconcileAfter = 2 * time.Minute
	reconcileBatch = 100
	timeoutReason  = "Payment timed out"
)

// ListTransactions lists transactions, optionally for one user.
func (s *Service) ListTransactions(ctx context.Context, query storage.TransactionQuery) (storage.Page[billing.Transaction], error) {
	return s.store.ListTransactions(ctx, query)
}

// GetTransaction loads one transaction. A non-empty userID must own it.
func (s *Service) GetTransaction(ctx context.Context, userID, transactionID string) (billing.Transaction, error) {
	txn, err := s.store.GetTransaction(ctx, transactionID)
	if errors.Is(err, storage.ErrNotFound) {
		return billing.Transaction{}, billing.ErrTransactionNotFound
	}
	if err != nil {
		return billing.Transaction{}, err
	}
	if userID != "" && txn.UserID != userID {
		return billing.Transaction{}, billing.ErrTransactionNotFound
	}
	return txn, nil
}

// ExportTransactions renders matching transactions as CSV.
func (s *Service) ExportTransactions(ctx context.Context, query storage.TransactionQuery) ([]byte, error) {
	list := func(ctx context.Context, q storage.ListQuery) (storage.Page[billing.Transaction], error) {
		return s.store.ListTransactions(ctx, storage.TransactionQuery{ListQuery: q, UserID: query.UserID})
	}
	return csvExport(ctx, query.ListQuery, list, transactionCSVHeader, func(t billing.Transaction) []string {
		completed := ""
		if t.CompletedAt != nil {
			completed = export.DateTime(*t.CompletedAt)
		}
		return []string{t.Ref, t.UserID, string(t.Type), string(t.Method), string(t.Status), t.Amount.String(), t.Currency,
			t.Receipt, t.Phone, export.DateTime(t.CreatedAt), completed}
	})
}

// ReconcileResult summarises one reconciliation pass.
type ReconcileResult struct {
	Checked   int `json:"checked"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	TimedOut  int `json:"timed_out"`
}

// Reconcile polls M-Pesa for pending STK pushes whose callback never
// arrived. Pushes pending past billing.PaymentTimeout fail.
func (s *Service) Reconcile(ctx context.Context) (ReconcileResult, error) {
	ctx, span := tracer.Start(ctx, "billing.Reconcile")
	defer span.End()

	now := s.now()
	pending, err := s.store.ListPendingTransactions(ctx, billing.MethodMpesa, now.Add(-reconcileAfter), reconcileBatch)
	if err != nil {
		return ReconcileResult{}, err
	}
	var result ReconcileResult
	for _, txn := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Checked++
		expired := now.Sub(txn.CreatedAt) >= billing.PaymentTimeout

		if txn.ProviderRef != "" {
			status, err := s.payments.Query(ctx, txn.ProviderRef)
			switch {
			case apperrors.CodeOf(err) == apperrors.CodeIntegrationDisabled:
				return result, err
			case err != nil:
				log.Printf("reconcile %s: query checkout %s: %v", txn.Ref, txn.ProviderRef, err)
			case status.Succeeded():
				if _, err := s.settle(ctx, txn, txn.Receipt); err != nil {
					return result, err
				}
				result.Completed++
				continue
			case !status.Pending:
				if err := s.store.PutTransaction(ctx, txn.Fail(status.ResultDesc, s.now())); err != nil {
					return result, err
				}
				result.Failed++
				continue
			}
		}
		if expired {
			if err := s.store.PutTransaction(ctx, txn.Fail(timeoutReason, s.now())); err != nil {
				return result, err
			}
			result.TimedOut++
		}
	}
	return result, nil
}
