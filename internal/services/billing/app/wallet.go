package app

import (
	"context"
	"strings"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/platform/money"
	billing "github.com/zmooth/zmooth/internal/services/billing/domain"
	"github.com/zmooth/zmooth/internal/services/shared/events"
	"github.com/zmooth/zmooth/internal/storage"
)

// TopUpInput funds the caller's wallet through M-Pesa.
type TopUpInput struct {
	Amount      money.Amount `json:"amount"`
	PhoneNumber string       `json:"phone_number"`
}

// TopUp creates a pending top-up and sends the STK push. The wallet is
// credited when the payment settles.
func (s *Service) TopUp(ctx context.Context, userID string, in TopUpInput) (PurchaseResult, error) {
	ctx, span := tracer.Start(ctx, "billing.TopUp")
	defer span.End()

	if in.Amount <= 0 {
		return PurchaseResult{}, apperrors.Invalid("amount", "amount must be greater than zero")
	}
	customer, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return PurchaseResult{}, err
	}
	phone := strings.TrimSpace(in.PhoneNumber)
	if phone == "" {
		phone = customer.Phone
	}
	if phone == "" {
		return PurchaseResult{}, apperrors.Invalid("phone_number", "phone_number is required for M-Pesa payments")
	}
	txn, err := s.newTransaction(customer.ID, billing.TransactionTopUp, billing.MethodMpesa, in.Amount, money.DefaultCurrency)
	if err != nil {
		return PurchaseResult{}, err
	}
	txn.Phone = phone
	if err := s.store.PutTransaction(ctx, txn); err != nil {
		return PurchaseResult{}, err
	}
	return s.startPush(ctx, txn, "Wallet top-up")
}

// CreditInput is an operator-entered wallet credit.
type CreditInput struct {
	Amount  money.Amount `json:"amount"`
	Method  string       `json:"payment_method"`
	Receipt string       `json:"receipt"`
}

// CreditWallet records a completed top-up and credits the wallet at once.
func (s *Service) CreditWallet(ctx context.Context, userID string, in CreditInput) (billing.Transaction, money.Amount, error) {
	if in.Amount <= 0 {
		return billing.Transaction{}, 0, apperrors.Invalid("amount", "amount must be greater than zero")
	}
	method := billing.MethodCash
	if strings.TrimSpace(in.Method) != "" {
		parsed, err := billing.ParsePaymentMethod(in.Method)
		if err != nil {
			return billing.Transaction{}, 0, err
		}
		method = parsed
	}
	if method == billing.MethodWallet || method == billing.MethodVoucher {
		return billing.Transaction{}, 0, billing.ErrInvalidPaymentMethod
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return billing.Transaction{}, 0, err
	}

	txn, err := s.newTransaction(userID, billing.TransactionTopUp, method, in.Amount, money.DefaultCurrency)
	if err != nil {
		return billing.Transaction{}, 0, err
	}
	txn = txn.Complete(strings.TrimSpace(in.Receipt), s.now())
	var balance money.Amount
	err = s.store.InTx(ctx, func(tx storage.Store) error {
		if err := tx.PutTransaction(ctx, txn); err != nil {
			return err
		}
		balance, err = tx.AdjustWallet(ctx, userID, in.Amount, s.now())
		return err
	})
	if err != nil {
		return billing.Transaction{}, 0, err
	}
	s.audit.Record(ctx, "credit", "balances", []string{userID}, in.Amount.String())
	s.publish(events.PaymentCompleted, paymentEvent(txn))
	return txn, balance, nil
}
