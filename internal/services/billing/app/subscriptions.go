package app

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/zmooth/zmooth/internal/platform/bulk"
	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/platform/export"
	"github.com/zmooth/zmooth/internal/platform/money"
	"github.com/zmooth/zmooth/internal/services/billing/cycle"
	billing "github.com/zmooth/zmooth/internal/services/billing/domain"
	"github.com/zmooth/zmooth/internal/services/shared/events"
	"github.com/zmooth/zmooth/internal/storage"
)

// SubscriptionBulkActions are accepted by BulkSubscriptions.
var SubscriptionBulkActions = []bulk.Action{bulk.Activate, bulk.Pause, bulk.EnableRenewal, bulk.DisableRenewal, bulk.Delete, bulk.Export}

var subscriptionCSVHeader = []string{"Customer", "Plan", "Amount", "Billing Cycle", "Next Billing", "Status", "Auto Renewal", "Payment Method"}

// SubscriptionInput creates or patches an auto-billing subscription.
type SubscriptionInput struct {
	CustomerName  string       `json:"customer"`
	UserID        string       `json:"user_id"`
	Email         string       `json:"email"`
	Phone         string       `json:"phone"`
	PlanID        string       `json:"plan_id"`
	Amount        money.Amount `json:"amount"`
	Cycle         string       `json:"billing_cycle"`
	StartDate     *time.Time   `json:"start_date"`
	Status        string       `json:"status"`
	PaymentMethod string       `json:"payment_method"`
	AutoRenewal   *bool        `json:"auto_renewal"`
}

// CreateSubscription starts auto-billing. Next billing is one cycle after
// the start date.
func (s *Service) CreateSubscription(ctx context.Context, in SubscriptionInput) (billing.Subscription, error) {
	sub := billing.Subscription{StartDate: s.now(), Currency: money.DefaultCurrency, AutoRenewal: true}
	sub, err := s.applySubscriptionInput(ctx, sub, in)
	if err != nil {
		return billing.Subscription{}, err
	}
	subID, err := s.newID("subscription")
	if err != nil {
		return billing.Subscription{}, err
	}
	sub.ID = subID
	sub.CreatedAt = s.now()
	sub.UpdatedAt = sub.CreatedAt
	if err := s.store.PutSubscription(ctx, sub); err != nil {
		return billing.Subscription{}, err
	}
	s.audit.Record(ctx, "create", "subscriptions", []string{sub.ID}, sub.CustomerName)
	return sub, nil
}

// UpdateSubscription patches a subscription. Changing the start date or
// cycle recomputes next billing.
func (s *Service) UpdateSubscription(ctx context.Context, subscriptionID string, in SubscriptionInput) (billing.Subscription, error) {
	current, err := s.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return billing.Subscription{}, err
	}
	updated, err := s.applySubscriptionInput(ctx, current, in)
	if err != nil {
		return billing.Subscription{}, err
	}
	updated.UpdatedAt = s.now()
	if err := s.store.PutSubscription(ctx, updated); err != nil {
		return billing.Subscription{}, err
	}
	s.audit.Record(ctx, "update", "subscriptions", []string{updated.ID}, updated.CustomerName)
	return updated, nil
}

func (s *Service) applySubscriptionInput(ctx context.Context, sub billing.Subscription, in SubscriptionInput) (billing.Subscription, error) {
	if userID := strings.TrimSpace(in.UserID); userID != "" {
		customer, err := s.store.GetUser(ctx, userID)
		if errors.Is(err, storage.ErrNotFound) {
			return billing.Subscription{}, apperrors.Invalid("user_id", "user not found")
		}
		if err != nil {
			return billing.Subscription{}, err
		}
		sub.UserID = customer.ID
		sub.CustomerName = customer.FullName
		if sub.CustomerName == "" {
			sub.CustomerName = customer.Username
		}
		sub.Email = customer.Email
		sub.Phone = customer.Phone
	}
	if in.CustomerName != "" {
		sub.CustomerName = in.CustomerName
	}
	if in.Email != "" {
		sub.Email = in.Email
	}
	if in.Phone != "" {
		sub.Phone = in.Phone
	}
	if planID := strings.TrimSpace(in.PlanID); planID != "" {
		plan, err := s.GetPlan(ctx, planID)
		if err != nil {
			return billing.Subscription{}, err
		}
		sub.PlanID = plan.ID
		sub.PlanName = plan.Name
		if in.Amount == 0 {
			sub.Amount = plan.Price
			sub.Currency = plan.Currency
		}
	}
	if in.Amount != 0 {
		sub.Amount = in.Amount
	}
	reschedule := false
	if in.Cycle != "" {
		c, err := cycle.Parse(in.Cycle)
		if err != nil {
			return billing.Subscription{}, err
		}
		reschedule = reschedule || c != sub.Cycle
		sub.Cycle = c
	}
	if in.StartDate != nil {
		reschedule = true
		sub.StartDate = in.StartDate.UTC()
	}
	if reschedule {
		sub.NextBilling = time.Time{}
	}
	if in.Status != "" {
		sub.Status = billing.SubscriptionStatus(strings.ToLower(strings.TrimSpace(in.Status)))
	}
	if in.PaymentMethod != "" {
		method, err := billing.ParsePaymentMethod(in.PaymentMethod)
		if err != nil {
			return billing.Subscription{}, err
		}
		sub.PaymentMethod = method
	}
	if in.AutoRenewal != nil {
		sub.AutoRenewal = *in.AutoRenewal
	}
	return sub.Normalize()
}

// GetSubscription loads one subscription.
func (s *Service) GetSubscription(ctx context.Context, subscriptionID string) (billing.Subscription, error) {
	sub, err := s.store.GetSubscription(ctx, strings.TrimSpace(subscriptionID))
	if errors.Is(err, storage.ErrNotFound) {
		return billing.Subscription{}, billing.ErrSubscriptionNotFound
	}
	return sub, err
}

// ListSubscriptions lists subscriptions.
func (s *Service) ListSubscriptions(ctx context.Context, query storage.ListQuery) (storage.Page[billing.Subscription], error) {
	return s.store.ListSubscriptions(ctx, query)
}

// DeleteSubscription removes one subscription.
func (s *Service) DeleteSubscription(ctx context.Context, subscriptionID string) error {
	n, err := s.store.DeleteSubscriptions(ctx, []string{subscriptionID})
	if err != nil {
		return err
	}
	if n == 0 {
		return billing.ErrSubscriptionNotFound
	}
	s.audit.Record(ctx, "delete", "subscriptions", []string{subscriptionID}, "")
	return nil
}

// BulkSubscriptions applies a status or renewal change, or deletes.
func (s *Service) BulkSubscriptions(ctx context.Context, action bulk.Action, ids []string) (int, error) {
	if action == bulk.Delete {
		n, err := s.store.DeleteSubscriptions(ctx, ids)
		if err != nil {
			return 0, err
		}
		s.audit.Record(ctx, string(action), "subscriptions", ids, "")
		return n, nil
	}
	var apply func(*billing.Subscription)
	switch action {
	case bulk.Activate:
		apply = func(sub *billing.Subscription) {
			sub.Status = billing.SubscriptionActive
			sub.FailedAttempts = 0
		}
	case bulk.Pause:
		apply = func(sub *billing.Subscription) { sub.Status = billing.SubscriptionPaused }
	case bulk.EnableRenewal:
		apply = func(sub *billing.Subscription) { sub.AutoRenewal = true }
	case bulk.DisableRenewal:
		apply = func(sub *billing.Subscription) { sub.AutoRenewal = false }
	default:
		return 0, unsupported(action)
	}

	affected := 0
	for _, subID := range ids {
		sub, err := s.store.GetSubscription(ctx, subID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return affected, err
		}
		apply(&sub)
		sub.UpdatedAt = s.now()
		if err := s.store.PutSubscription(ctx, sub); err != nil {
			return affected, err
		}
		affected++
	}
	s.audit.Record(ctx, string(action), "subscriptions", ids, "")
	return affected, nil
}

// ExportSubscriptions renders matching subscriptions as CSV.
func (s *Service) ExportSubscriptions(ctx context.Context, query storage.ListQuery) ([]byte, error) {
	return csvExport(ctx, query, s.store.ListSubscriptions, subscriptionCSVHeader, func(sub billing.Subscription) []string {
		return []string{sub.CustomerName, sub.PlanName, sub.Amount.String(), string(sub.Cycle),
			export.Date(sub.NextBilling), string(sub.Status), export.YesNo(sub.AutoRenewal), string(sub.PaymentMethod)}
	})
}

// AutoBillingResult summarises one auto-billing run.
type AutoBillingResult struct {
	Invoiced int `json:"invoiced"`
	Paid     int `json:"paid"`
	Unpaid   int `json:"unpaid"`
	Paused   int `json:"paused"`
}

// RunAutoBilling invoices every due subscription. Wallet-renewing
// subscriptions are paid from the linked wallet when it covers the amount.
func (s *Service) RunAutoBilling(ctx context.Context) (AutoBillingResult, error) {
	ctx, span := tracer.Start(ctx, "billing.RunAutoBilling")
	defer span.End()

	now := s.now()
	due, err := s.store.ListDueSubscriptions(ctx, now)
	if err != nil {
		return AutoBillingResult{}, err
	}
	var result AutoBillingResult
	for _, sub := range due {
		if !sub.Due(now) {
			continue
		}
		paid, err := s.billSubscription(ctx, sub, now)
		if err != nil {
			return result, err
		}
		result.Invoiced++
		var next billing.Subscription
		if paid {
			result.Paid++
			next, err = sub.RecordPaid(now)
		} else {
			result.Unpaid++
			next, err = sub.RecordUnpaid(now)
		}
		if err != nil {
			return result, err
		}
		if next.Status == billing.SubscriptionPaused {
			result.Paused++
		}
		if err := s.store.PutSubscription(ctx, next); err != nil {
			return result, err
		}
	}
	return result, nil
}

// billSubscription issues the invoice for one run and reports whether the
// wallet paid it.
func (s *Service) billSubscription(ctx context.Context, sub billing.Subscription, now time.Time) (bool, error) {
	invoiceID, err := s.newID("invoice")
	if err != nil {
		return false, err
	}
	inv, err := billing.Invoice{
		ID:             invoiceID,
		CustomerName:   sub.CustomerName,
		UserID:         sub.UserID,
		PlanID:         sub.PlanID,
		SubscriptionID: sub.ID,
		Amount:         sub.Amount,
		Currency:       sub.Currency,
		IssueDate:      now,
		Notes:          "Auto-billing " + string(sub.Cycle),
		CreatedAt:      now,
		UpdatedAt:      now,
	}.Normalize()
	if err != nil {
		return false, err
	}
	inv, err = s.store.CreateInvoice(ctx, inv)
	if err != nil {
		return false, err
	}
	if !sub.WalletCharged() {
		return false, nil
	}
	_, txn, err := s.payFromWallet(ctx, inv)
	switch {
	case err == nil:
		s.publish(events.PaymentCompleted, paymentEvent(txn))
		return true, nil
	case errors.Is(err, billing.ErrInsufficientBalance), errors.Is(err, storage.ErrNotFound):
		log.Printf("auto-billing %s: invoice %s left unpaid: %v", sub.ID, inv.Number, err)
		return false, nil
	default:
		return false, err
	}
}
