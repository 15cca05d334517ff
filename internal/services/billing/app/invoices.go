package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/zmooth/zmooth/internal/platform/bulk"
	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/platform/export"
	"github.com/zmooth/zmooth/internal/platform/money"
	billing "github.com/zmooth/zmooth/internal/services/billing/domain"
	"github.com/zmooth/zmooth/internal/services/shared/events"
	"github.com/zmooth/zmooth/internal/storage"
)

// InvoiceBulkActions are accepted by BulkInvoices.
var InvoiceBulkActions = []bulk.Action{bulk.MarkPaid, bulk.Cancel, bulk.Delete, bulk.Export}

var invoiceCSVHeader = []string{"Invoice", "Customer", "Plan", "Amount", "Currency", "Status", "Issue Date", "Due Date", "Paid At", "Station"}

// InvoiceInput creates an invoice or patches one. Zero fields keep their
// current value on update.
type InvoiceInput struct {
	CustomerName string       `json:"customer"`
	UserID       string       `json:"user_id"`
	PlanID       string       `json:"plan_id"`
	Amount       money.Amount `json:"amount"`
	Currency     string       `json:"currency"`
	Status       string       `json:"status"`
	IssueDate    *time.Time   `json:"issue_date"`
	DueDate      *time.Time   `json:"due_date"`
	Station      *string      `json:"station"`
	Notes        *string      `json:"notes"`
}

// CreateInvoice issues an invoice. A linked user supplies the customer name
// and a linked plan supplies the amount when they are omitted.
func (s *Service) CreateInvoice(ctx context.Context, in InvoiceInput) (billing.Invoice, error) {
	ctx, span := tracer.Start(ctx, "billing.CreateInvoice")
	defer span.End()

	inv := billing.Invoice{IssueDate: s.now(), Currency: money.DefaultCurrency}
	inv, err := s.applyInvoiceInput(ctx, inv, in)
	if err != nil {
		return billing.Invoice{}, err
	}
	invoiceID, err := s.newID("invoice")
	if err != nil {
		return billing.Invoice{}, err
	}
	inv.ID = invoiceID
	inv.CreatedAt = s.now()
	inv.UpdatedAt = inv.CreatedAt
	created, err := s.store.CreateInvoice(ctx, inv)
	if err != nil {
		return billing.Invoice{}, err
	}
	s.audit.Record(ctx, "create", "invoices", []string{created.ID}, created.Number)
	return created, nil
}

// UpdateInvoice patches an invoice.
func (s *Service) UpdateInvoice(ctx context.Context, invoiceID string, in InvoiceInput) (billing.Invoice, error) {
	current, err := s.GetInvoice(ctx, invoiceID)
	if err != nil {
		return billing.Invoice{}, err
	}
	updated, err := s.applyInvoiceInput(ctx, current, in)
	if err != nil {
		return billing.Invoice{}, err
	}
	if updated.Status == billing.InvoicePaid && updated.PaidAt == nil {
		now := s.now()
		updated.PaidAt = &now
	}
	updated.UpdatedAt = s.now()
	if err := s.store.PutInvoice(ctx, updated); err != nil {
		return billing.Invoice{}, err
	}
	s.audit.Record(ctx, "update", "invoices", []string{updated.ID}, updated.Number)
	return updated, nil
}

func (s *Service) applyInvoiceInput(ctx context.Context, inv billing.Invoice, in InvoiceInput) (billing.Invoice, error) {
	if userID := strings.TrimSpace(in.UserID); userID != "" {
		customer, err := s.store.GetUser(ctx, userID)
		if errors.Is(err, storage.ErrNotFound) {
			return billing.Invoice{}, apperrors.Invalid("user_id", "user not found")
		}
		if err != nil {
			return billing.Invoice{}, err
		}
		inv.UserID = customer.ID
		inv.CustomerName = customer.FullName
		if inv.CustomerName == "" {
			inv.CustomerName = customer.Username
		}
	}
	if name := strings.TrimSpace(in.CustomerName); name != "" {
		inv.CustomerName = name
	}
	if planID := strings.TrimSpace(in.PlanID); planID != "" {
		plan, err := s.GetPlan(ctx, planID)
		if err != nil {
			return billing.Invoice{}, err
		}
		inv.PlanID = plan.ID
		if in.Amount == 0 {
			inv.Amount = plan.Price
			inv.Currency = plan.Currency
		}
	}
	if in.Amount != 0 {
		inv.Amount = in.Amount
	}
	if in.Currency != "" {
		inv.Currency = in.Currency
	}
	if in.Status != "" {
		status, err := billing.ParseInvoiceStatus(in.Status)
		if err != nil {
			return billing.Invoice{}, err
		}
		inv.Status = status
	}
	if in.IssueDate != nil {
		inv.IssueDate = in.IssueDate.UTC()
	}
	if in.DueDate != nil {
		inv.DueDate = in.DueDate.UTC()
	}
	if in.Station != nil {
		inv.Station = *in.Station
	}
	if in.Notes != nil {
		inv.Notes = *in.Notes
	}
	return inv.Normalize()
}

// GetInvoice loads one invoice.
func (s *Service) GetInvoice(ctx context.Context, invoiceID string) (billing.Invoice, error) {
	inv, err := s.store.GetInvoice(ctx, strings.TrimSpace(invoiceID))
	if errors.Is(err, storage.ErrNotFound) {
		return billing.Invoice{}, billing.ErrInvoiceNotFound
	}
	return inv, err
}

// ListInvoices lists invoices.
func (s *Service) ListInvoices(ctx context.Context, query storage.ListQuery) (storage.Page[billing.Invoice], error) {
	return s.store.ListInvoices(ctx, query)
}

// DeleteInvoice removes one invoice.
func (s *Service) DeleteInvoice(ctx context.Context, invoiceID string) error {
	n, err := s.store.DeleteInvoices(ctx, []string{invoiceID})
	if err != nil {
		return err
	}
	if n == 0 {
		return billing.ErrInvoiceNotFound
	}
	s.audit.Record(ctx, "delete", "invoices", []string{invoiceID}, "")
	return nil
}

// PayInvoice settles the caller's own invoice from their wallet.
func (s *Service) PayInvoice(ctx context.Context, userID, invoiceID string) (billing.Invoice, billing.Transaction, error) {
	ctx, span := tracer.Start(ctx, "billing.PayInvoice")
	defer span.End()

	inv, err := s.GetInvoice(ctx, invoiceID)
	if err != nil {
		return billing.Invoice{}, billing.Transaction{}, err
	}
	if inv.UserID != userID {
		return billing.Invoice{}, billing.Transaction{}, billing.ErrInvoiceNotFound
	}
	paid, txn, err := s.payFromWallet(ctx, inv)
	if err != nil {
		return billing.Invoice{}, billing.Transaction{}, err
	}
	s.publish(events.PaymentCompleted, paymentEvent(txn))
	return paid, txn, nil
}

// payFromWallet debits the linked wallet and marks inv paid in one
// transaction.
func (s *Service) payFromWallet(ctx context.Context, inv billing.Invoice) (billing.Invoice, billing.Transaction, error) {
	if inv.Settled() {
		_, err := inv.MarkPaid(billing.MethodWallet, s.now())
		return billing.Invoice{}, billing.Transaction{}, err
	}
	txn, err := s.newTransaction(inv.UserID, billing.TransactionInvoice, billing.MethodWallet, inv.Amount, inv.Currency)
	if err != nil {
		return billing.Invoice{}, billing.Transaction{}, err
	}
	txn.InvoiceID = inv.ID
	txn.PlanID = inv.PlanID
	var paid billing.Invoice
	err = s.store.InTx(ctx, func(tx storage.Store) error {
		if _, err := tx.AdjustWallet(ctx, inv.UserID, -inv.Amount, s.now()); err != nil {
			return err
		}
		marked, err := inv.MarkPaid(billing.MethodWallet, s.now())
		if err != nil {
			return err
		}
		if err := tx.PutInvoice(ctx, marked); err != nil {
			return err
		}
		txn = txn.Complete(inv.Number, s.now())
		if err := tx.PutTransaction(ctx, txn); err != nil {
			return err
		}
		paid = marked
		return nil
	})
	if err != nil {
		return billing.Invoice{}, billing.Transaction{}, err
	}
	return paid, txn, nil
}

// MarkInvoicePaid records an out-of-band payment.
func (s *Service) MarkInvoicePaid(ctx context.Context, invoiceID, method string) (billing.Invoice, error) {
	paymentMethod := billing.MethodCash
	if strings.TrimSpace(method) != "" {
		parsed, err := billing.ParsePaymentMethod(method)
		if err != nil {
			return billing.Invoice{}, err
		}
		paymentMethod = parsed
	}
	inv, err := s.GetInvoice(ctx, invoiceID)
	if err != nil {
		return billing.Invoice{}, err
	}
	paid, err := inv.MarkPaid(paymentMethod, s.now())
	if err != nil {
		return billing.Invoice{}, err
	}
	if err := s.store.PutInvoice(ctx, paid); err != nil {
		return billing.Invoice{}, err
	}
	s.audit.Record(ctx, "mark-paid", "invoices", []string{paid.ID}, string(paymentMethod))
	return paid, nil
}

// BulkInvoices marks paid, cancels or deletes invoices. Settled invoices are
// skipped by mark-paid and paid ones by cancel.
func (s *Service) BulkInvoices(ctx context.Context, action bulk.Action, ids []string) (int, error) {
	if action == bulk.Delete {
		n, err := s.store.DeleteInvoices(ctx, ids)
		if err != nil {
			return 0, err
		}
		s.audit.Record(ctx, string(action), "invoices", ids, "")
		return n, nil
	}
	var apply func(billing.Invoice) (billing.Invoice, error)
	switch action {
	case bulk.MarkPaid:
		apply = func(inv billing.Invoice) (billing.Invoice, error) { return inv.MarkPaid(billing.MethodCash, s.now()) }
	case bulk.Cancel:
		apply = func(inv billing.Invoice) (billing.Invoice, error) { return inv.Cancel(s.now()) }
	default:
		return 0, unsupported(action)
	}

	affected := 0
	for _, invoiceID := range ids {
		inv, err := s.store.GetInvoice(ctx, invoiceID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return affected, err
		}
		next, err := apply(inv)
		if apperrors.CodeOf(err) == apperrors.CodeInvoiceSettled {
			continue
		}
		if err != nil {
			return affected, err
		}
		if err := s.store.PutInvoice(ctx, next); err != nil {
			return affected, err
		}
		affected++
	}
	s.audit.Record(ctx, string(action), "invoices", ids, "")
	return affected, nil
}

// MarkOverdue flips unpaid invoices past their due date.
func (s *Service) MarkOverdue(ctx context.Context) (int, error) {
	return s.store.MarkInvoicesOverdue(ctx, s.now())
}

// ExportInvoices renders matching invoices as CSV.
func (s *Service) ExportInvoices(ctx context.Context, query storage.ListQuery) ([]byte, error) {
	return csvExport(ctx, query, s.store.ListInvoices, invoiceCSVHeader, func(inv billing.Invoice) []string {
		paidAt := ""
		if inv.PaidAt != nil {
			paidAt = export.DateTime(*inv.PaidAt)
		}
		return []string{inv.Number, inv.CustomerName, inv.PlanID, inv.Amount.String(), inv.Currency, string(inv.Status),
			export.Date(inv.IssueDate), export.Date(inv.DueDate), paidAt, inv.Station}
	})
}

// PrintInvoice renders a plain-text invoice and its attachment filename.
func (s *Service) PrintInvoice(ctx context.Context, invoiceID string) (string, []byte, error) {
	inv, err := s.GetInvoice(ctx, invoiceID)
	if err != nil {
		return "", nil, err
	}
	planName := inv.PlanID
	if inv.PlanID != "" {
		if plan, err := s.store.GetPlan(ctx, inv.PlanID); err == nil {
			planName = plan.Name
		}
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "INVOICE %s\n\n", inv.Number)
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Customer:\t%s\n", inv.CustomerName)
	if planName != "" {
		fmt.Fprintf(w, "Plan:\t%s\n", planName)
	}
	if inv.Station != "" {
		fmt.Fprintf(w, "Station:\t%s\n", inv.Station)
	}
	fmt.Fprintf(w, "Issued:\t%s\n", export.Date(inv.IssueDate))
	fmt.Fprintf(w, "Due:\t%s\n", export.Date(inv.DueDate))
	fmt.Fprintf(w, "Status:\t%s\n", strings.ToUpper(string(inv.Status)))
	if inv.PaidAt != nil {
		fmt.Fprintf(w, "Paid:\t%s (%s)\n", export.DateTime(*inv.PaidAt), inv.PaymentMethod)
	}
	fmt.Fprintf(w, "Amount due:\t%s\n", s.formatter.Format(inv.Amount, inv.Currency))
	if err := w.Flush(); err != nil {
		return "", nil, err
	}
	if inv.Notes != "" {
		fmt.Fprintf(&buf, "\n%s\n", inv.Notes)
	}
	return "invoice-" + inv.Number + ".txt", buf.Bytes(), nil
}
