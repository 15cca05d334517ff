package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
)

func TestPermanentWrapsCause(t *testing.T) {
	cause := errors.New("bad row")
	err := Permanent(cause)
	if !IsPermanent(err) || !errors.Is(err, cause) {
		t.Fatalf("permanent error lost its cause: %v", err)
	}
	if IsPermanent(fmt.Errorf("wrapped: %w", cause)) {
		t.Fatal("plain error reported as permanent")
	}
	if Permanent(nil) != nil {
		t.Fatal("Permanent(nil) should be nil")
	}
	if twice := Permanent(err); twice != err {
		t.Fatalf("Permanent re-wrapped a permanent error: %v", twice)
	}
	if err.Error() != "permanent: bad row" {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		permanent bool
	}{
		{name: "nil", err: nil},
		{name: "transient", err: errors.New("connection reset")},
		{name: "unavailable", err: apperrors.New(apperrors.CodeUnavailable, "router down")},
		{name: "invalid", err: apperrors.Invalid("amount", "amount must be positive"), permanent: true},
		{name: "disabled", err: apperrors.New(apperrors.CodeIntegrationDisabled, "snmp disabled"), permanent: true},
		{name: "not found", err: fmt.Errorf("load plan: %w", apperrors.New(apperrors.CodeNotFound, "plan not found")), permanent: true},
		{name: "skipped", err: ErrSkipped},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			if IsPermanent(got) != tc.permanent {
				t.Fatalf("permanent = %v, want %v", IsPermanent(got), tc.permanent)
			}
			if tc.err != nil && !errors.Is(got, tc.err) {
				t.Fatalf("classified error lost its cause")
			}
		})
	}
}

func TestJobValidate(t *testing.T) {
	run := func(context.Context) (string, error) { return "", nil }
	if err := (Job{Name: "plans.expire", Interval: time.Minute, Run: run}).Validate(); err != nil {
		t.Fatalf("valid job: %v", err)
	}
	if err := (Job{Name: " ", Interval: time.Minute, Run: run}).Validate(); err == nil {
		t.Fatal("expected blank name error")
	}
}
