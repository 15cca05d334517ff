package domain

import (
	"strings"
	"time"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/platform/money"
	"github.com/zmooth/zmooth/internal/services/billing/cycle"
)

// MaxFailedAttempts pauses a subscription after this many unpaid runs.
const MaxFailedAttempts = 3

// ErrSubscriptionNotFound is returned for a missing subscription.
var ErrSubscriptionNotFound = apperrors.New(apperrors.CodeNotFound, "Subscription not found")

// SubscriptionStatus is the auto-billing state.
type SubscriptionStatus string

const (
	SubscriptionActive SubscriptionStatus = "active"
	SubscriptionPaused SubscriptionStatus = "paused"
)

// Subscription bills a customer every cycle.
type Subscription struct {
	ID             string
	CustomerName   string
	UserID         string
	Email          string
	Phone          string
	PlanID         string
	PlanName       string
	Amount         money.Amount
	Currency       string
	Cycle          cycle.Cycle
	StartDate      time.Time
	NextBilling    time.Time
	LastBilled     *time.Time
	Status         SubscriptionStatus
	PaymentMethod  PaymentMethod
	AutoRenewal    bool
	FailedAttempts int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Normalize validates the subscription and computes NextBilling from the
// start date when unset.
func (s Subscription) Normalize() (Subscription, error) {
	s.CustomerName = strings.TrimSpace(s.CustomerName)
	s.Email = strings.ToLower(strings.TrimSpace(s.Email))
	s.Phone = strings.TrimSpace(s.Phone)
	if s.CustomerName == "" {
		return Subscription{}, apperrors.Invalid("customer", "customer is required")
	}
	if strings.TrimSpace(s.PlanID) == "" {
		return Subscription{}, apperrors.Invalid("plan_id", "plan is required")
	}
	if s.Amount <= 0 {
		return Subscription{}, apperrors.Invalid("amount", "amount must be greater than zero")
	}
	currency, err := money.ValidateCurrency(s.Currency)
	if err != nil {
		return Subscription{}, apperrors.Invalid("currency", err.Error())
	}
	s.Currency = currency
	c, err := cycle.Parse(string(s.Cycle))
	if err != nil {
		return Subscription{}, err
	}
	s.Cycle = c
	if s.StartDate.IsZero() {
		return Subscription{}, apperrors.Invalid("start_date", "start date is required")
	}
	if s.NextBilling.IsZero() {
		next, err := cycle.Next(s.StartDate, s.Cycle)
		if err != nil {
			return Subscription{}, err
		}
		s.NextBilling = next
	}
	switch s.Status {
	case "":
		s.Status = SubscriptionActive
	case SubscriptionActive, SubscriptionPaused:
	default:
		return Subscription{}, apperrors.Invalid("status", "status must be active or paused")
	}
	if s.PaymentMethod == "" {
		s.PaymentMethod = MethodMpesa
	}
	if _, err := ParsePaymentMethod(string(s.PaymentMethod)); err != nil {
		return Subscription{}, err
	}
	if s.FailedAttempts < 0 {
		s.FailedAttempts = 0
	}
	return s, nil
}

// Due reports whether an active subscription should be billed at now.
func (s Subscription) Due(now time.Time) bool {
	return s.Status == SubscriptionActive && !s.NextBilling.After(now)
}

// WalletCharged reports whether a run should try to pay from the wallet.
func (s Subscription) WalletCharged() bool {
	return s.AutoRenewal && s.PaymentMethod == MethodWallet && s.UserID != ""
}

// RecordPaid advances a paid run: next billing moves one cycle, last billed
// is set and the failure count resets.
func (s Subscription) RecordPaid(now time.Time) (Subscription, error) {
	next, err := cycle.Next(s.NextBilling, s.Cycle)
	if err != nil {
		return Subscription{}, err
	}
	now = now.UTC()
	s.NextBilling = next
	s.LastBilled = &now
	s.FailedAttempts = 0
	s.UpdatedAt = now
	return s, nil
}

// RecordUnpaid advances an unpaid run and pauses the subscription once
// MaxFailedAttempts is reached.
func (s Subscription) RecordUnpaid(now time.Time) (Subscription, error) {
	next, err := cycle.Next(s.NextBilling, s.Cycle)
	if err != nil {
		return Subscription{}, err
	}
	s.NextBilling = next
	s.FailedAttempts++
	if s.FailedAttempts >= MaxFailedAttempts {
		s.Status = SubscriptionPaused
	}
	s.UpdatedAt = now.UTC()
	return s, nil
}
