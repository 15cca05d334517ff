package domain

import (
	"testing"
	"time"

	"github.com/zmooth/zmooth/internal/platform/money"
	"github.com/zmooth/zmooth/internal/services/billing/cycle"
)

func TestSubscriptionNormalizeComputesNextBilling(t *testing.T) {
	start := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	sub, err := Subscription{
		CustomerName: "Jane",
		PlanID:       "plan-1",
		Amount:       money.FromMajor(2500),
		Cycle:        "Monthly",
		StartDate:    start,
	}.Normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !sub.NextBilling.Equal(time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected next billing %v", sub.NextBilling)
	}
	if sub.Status != SubscriptionActive || sub.PaymentMethod != MethodMpesa || sub.Cycle != cycle.Monthly {
		t.Fatalf("unexpected defaults %+v", sub)
	}
}

func TestSubscriptionNormalizeRejectsBadCycle(t *testing.T) {
	_, err := Subscription{CustomerName: "Jane", PlanID: "p", Amount: 1, Cycle: "hourly", StartDate: time.Now()}.Normalize()
	if err == nil {
		t.Fatal("expected cycle error")
	}
}

func TestSubscriptionRuns(t *testing.T) {
	now := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	sub := Subscription{Cycle: cycle.Weekly, NextBilling: now, Status: SubscriptionActive, FailedAttempts: 2}
	if !sub.Due(now) {
		t.Fatal("expected due")
	}

	paid, err := sub.RecordPaid(now)
	if err != nil {
		t.Fatalf("record paid: %v", err)
	}
	if paid.FailedAttempts != 0 || paid.LastBilled == nil || !paid.NextBilling.Equal(now.AddDate(0, 0, 7)) {
		t.Fatalf("unexpected paid run %+v", paid)
	}

	unpaid, err := sub.RecordUnpaid(now)
	if err != nil {
		t.Fatalf("record unpaid: %v", err)
	}
	if unpaid.FailedAttempts != 3 || unpaid.Status != SubscriptionPaused {
		t.Fatalf("expected pause after third failure, got %+v", unpaid)
	}
	if !unpaid.NextBilling.Equal(now.AddDate(0, 0, 7)) {
		t.Fatalf("expected unpaid run to advance, got %v", unpaid.NextBilling)
	}
	if unpaid.Due(now.AddDate(0, 1, 0)) {
		t.Fatal("paused subscriptions are never due")
	}
}

func TestSubscriptionWalletCharged(t *testing.T) {
	sub := Subscription{AutoRenewal: true, PaymentMethod: MethodWallet, UserID: "user-1"}
	if !sub.WalletCharged() {
		t.Fatal("expected wallet charge")
	}
	sub.UserID = ""
	if sub.WalletCharged() {
		t.Fatal("free-text customers cannot be charged")
	}
}

func TestSubscriptionRunsStepFromPreviousBillingDate(t *testing.T) {
	sub, err := Subscription{
		CustomerName: "Jane",
		PlanID:       "plan-1",
		Amount:       money.FromMajor(2500),
		Cycle:        cycle.Monthly,
		StartDate:    time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
	}.Normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	want := []time.Time{
		time.Date(2025, 4, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 5, 3, 0, 0, 0, 0, time.UTC),
	}
	for i, next := range want {
		if i%2 == 0 {
			sub, err = sub.RecordPaid(sub.NextBilling)
		} else {
			sub, err = sub.RecordUnpaid(sub.NextBilling)
		}
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if !sub.NextBilling.Equal(next) {
			t.Fatalf("run %d next billing = %v, want %v", i, sub.NextBilling, next)
		}
	}
}
