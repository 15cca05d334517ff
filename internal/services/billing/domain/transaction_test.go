package domain

import (
	"regexp"
	"testing"
	"time"
)

func TestNewTransactionRef(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	ref, err := NewTransactionRef(now)
	if err != nil {
		t.Fatalf("ref: %v", err)
	}
	if !regexp.MustCompile(`^TXN20250102030405[A-Z0-9]{6}$`).MatchString(ref) {
		t.Fatalf("unexpected ref %q", ref)
	}
}

func TestParsePaymentMethod(t *testing.T) {
	tests := map[string]PaymentMethod{
		"mpesa":         MethodMpesa,
		"M-Pesa":        MethodMpesa,
		"Bank Transfer": MethodBankTransfer,
		" wallet ":      MethodWallet,
	}
	for input, want := range tests {
		got, err := ParsePaymentMethod(input)
		if err != nil || got != want {
			t.Errorf("ParsePaymentMethod(%q) = %q, %v", input, got, err)
		}
	}
	if _, err := ParsePaymentMethod("bitcoin"); err == nil {
		t.Fatal("expected error for unknown method")
	}
}

func TestTransactionLifecycle(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	txn := Transaction{Status: TransactionPending}
	if !txn.Pending() {
		t.Fatal("expected pending")
	}
	done := txn.Complete("QK12ABC", now)
	if done.Status != TransactionCompleted || done.Receipt != "QK12ABC" || done.CompletedAt == nil {
		t.Fatalf("unexpected completed txn %+v", done)
	}
	failed := txn.Fail("  Payment timed out ", now)
	if failed.Status != TransactionFailed || failed.FailureReason != "Payment timed out" {
		t.Fatalf("unexpected failed txn %+v", failed)
	}
}
