package domain

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/platform/money"
)

var (
	// ErrInsufficientBalance is returned when a wallet cannot cover a charge.
	ErrInsufficientBalance = apperrors.New(apperrors.CodeInsufficientBalance, "Insufficient wallet balance")
	// ErrInvalidPaymentMethod is returned for methods that cannot be used for self-service purchase.
	ErrInvalidPaymentMethod = apperrors.New(apperrors.CodeInvalidArgument, "Invalid payment method")
	// ErrUseVoucherRedeem steers voucher purchases to the redeem endpoint.
	ErrUseVoucherRedeem = apperrors.New(apperrors.CodeInvalidArgument, "Use the voucher redeem endpoint for voucher payments")
	// ErrTransactionNotFound is returned for a missing transaction.
	ErrTransactionNotFound = apperrors.New(apperrors.CodeNotFound, "Transaction not found")
)

// PaymentTimeout is how long an M-Pesa payment may stay pending.
const PaymentTimeout = 24 * time.Hour

// TransactionType classifies money movement.
type TransactionType string

const (
	TransactionPurchase TransactionType = "purchase"
	TransactionTopUp    TransactionType = "topup"
	TransactionInvoice  TransactionType = "invoice"
)

// TransactionStatus is the payment lifecycle state.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
)

// PaymentMethod names how a payment is settled.
type PaymentMethod string

const (
	MethodMpesa        PaymentMethod = "mpesa"
	MethodCard         PaymentMethod = "card"
	MethodWallet       PaymentMethod = "wallet"
	MethodVoucher      PaymentMethod = "voucher"
	MethodCash         PaymentMethod = "cash"
	MethodBankTransfer PaymentMethod = "bank_transfer"
)

// ParsePaymentMethod normalizes a method name. "M-Pesa" and "Bank Transfer"
// style labels are accepted.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.NewReplacer("-", "", " ", "_").Replace(normalized)
	switch m := PaymentMethod(normalized); m {
	case MethodMpesa, MethodCard, MethodWallet, MethodVoucher, MethodCash, MethodBankTransfer:
		return m, nil
	default:
		return "", apperrors.Invalid("payment_method", "payment method must be mpesa, card, wallet, voucher, cash or bank_transfer")
	}
}

// Transaction is a payment record.
type Transaction struct {
	ID            string
	Ref           string
	ProviderRef   string
	Receipt       string
	UserID        string
	PlanID        string
	InvoiceID     string
	Type          TransactionType
	Method        PaymentMethod
	Status        TransactionStatus
	Amount        money.Amount
	Currency      string
	Phone         string
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

// Pending reports whether the transaction can still change state.
func (t Transaction) Pending() bool {
	return t.Status == TransactionPending
}

// Complete settles a pending transaction.
func (t Transaction) Complete(receipt string, now time.Time) Transaction {
	now = now.UTC()
	t.Status = TransactionCompleted
	if receipt != "" {
		t.Receipt = receipt
	}
	t.FailureReason = ""
	t.CompletedAt = &now
	t.UpdatedAt = now
	return t
}

// Fail marks a pending transaction failed with reason.
func (t Transaction) Fail(reason string, now time.Time) Transaction {
	t.Status = TransactionFailed
	t.FailureReason = strings.TrimSpace(reason)
	t.UpdatedAt = now.UTC()
	return t
}

const refAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewTransactionRef builds "TXN" + YYYYMMDDHHMMSS + six random [A-Z0-9].
func NewTransactionRef(now time.Time) (string, error) {
	return newTransactionRef(now, rand.Reader)
}

func newTransactionRef(now time.Time, random io.Reader) (string, error) {
	suffix, err := randomString(random, refAlphabet, 6)
	if err != nil {
		return "", fmt.Errorf("generate transaction ref: %w", err)
	}
	return "TXN" + now.UTC().Format("20060102150405") + suffix, nil
}

func randomString(random io.Reader, alphabet string, n int) (string, error) {
	limit := big.NewInt(int64(len(alphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(random, limit)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out), nil
}
