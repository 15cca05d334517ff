package domain

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/platform/money"
)

// DefaultDueDays is the payment term applied when no due date is given.
const DefaultDueDays = 7

var (
	// ErrInvoiceNotFound is returned for a missing invoice.
	ErrInvoiceNotFound = apperrors.New(apperrors.CodeNotFound, "Invoice not found")
)

// InvoiceStatus is the invoice lifecycle state.
type InvoiceStatus string

const (
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceUnpaid    InvoiceStatus = "unpaid"
	InvoiceOverdue   InvoiceStatus = "overdue"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

// ParseInvoiceStatus normalizes a status.
func ParseInvoiceStatus(value string) (InvoiceStatus, error) {
	switch s := InvoiceStatus(strings.ToLower(strings.TrimSpace(value))); s {
	case InvoicePaid, InvoiceUnpaid, InvoiceOverdue, InvoiceCancelled:
		return s, nil
	default:
		return "", apperrors.Invalid("status", "status must be paid, unpaid, overdue or cancelled")
	}
}

// Invoice is a bill issued to a customer.
type Invoice struct {
	ID             string
	Number         string
	CustomerName   string
	UserID         string
	PlanID         string
	SubscriptionID string
	Amount         money.Amount
	Currency       string
	Status         InvoiceStatus
	IssueDate      time.Time
	DueDate        time.Time
	PaidAt         *time.Time
	PaymentMethod  PaymentMethod
	Station        string
	Notes          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// InvoiceNumber renders INV-{year}-{seq:03}.
func InvoiceNumber(year, seq int) string {
	return fmt.Sprintf("INV-%d-%03d", year, seq)
}

// Normalize validates the invoice and fills defaults.
func (inv Invoice) Normalize() (Invoice, error) {
	inv.CustomerName = strings.TrimSpace(inv.CustomerName)
	inv.Station = strings.TrimSpace(inv.Station)
	inv.Notes = strings.TrimSpace(inv.Notes)
	if inv.CustomerName == "" {
		return Invoice{}, apperrors.Invalid("customer", "customer is required")
	}
	if inv.Amount <= 0 {
		return Invoice{}, apperrors.Invalid("amount", "amount must be greater than zero")
	}
	currency, err := money.ValidateCurrency(inv.Currency)
	if err != nil {
		return Invoice{}, apperrors.Invalid("currency", err.Error())
	}
	inv.Currency = currency
	if inv.Status == "" {
		inv.Status = InvoiceUnpaid
	}
	if _, err := ParseInvoiceStatus(string(inv.Status)); err != nil {
		return Invoice{}, err
	}
	if inv.IssueDate.IsZero() {
		return Invoice{}, apperrors.Invalid("issue_date", "issue date is required")
	}
	if inv.DueDate.IsZero() {
		inv.DueDate = inv.IssueDate.AddDate(0, 0, DefaultDueDays)
	}
	if inv.DueDate.Before(inv.IssueDate) {
		return Invoice{}, apperrors.Invalid("due_date", "due date must not be before the issue date")
	}
	return inv, nil
}

// Settled reports whether the invoice no longer accepts payment.
func (inv Invoice) Settled() bool {
	return inv.Status == InvoicePaid || inv.Status == InvoiceCancelled
}

// MarkPaid records payment. Paid and cancelled invoices are rejected.
func (inv Invoice) MarkPaid(method PaymentMethod, now time.Time) (Invoice, error) {
	if inv.Settled() {
		return Invoice{}, apperrors.WithMetadata(apperrors.CodeInvoiceSettled, "Invoice is already "+string(inv.Status), map[string]string{"status": string(inv.Status)})
	}
	now = now.UTC()
	inv.Status = InvoicePaid
	inv.PaymentMethod = method
	inv.PaidAt = &now
	inv.UpdatedAt = now
	return inv, nil
}

// Cancel voids an unpaid invoice.
func (inv Invoice) Cancel(now time.Time) (Invoice, error) {
	if inv.Status == InvoicePaid {
		return Invoice{}, apperrors.New(apperrors.CodeInvoiceSettled, "Invoice is already paid")
	}
	inv.Status = InvoiceCancelled
	inv.UpdatedAt = now.UTC()
	return inv, nil
}

// PastDue reports whether an unpaid invoice has passed its due date.
func (inv Invoice) PastDue(now time.Time) bool {
	return inv.Status == InvoiceUnpaid && inv.DueDate.Before(now)
}
