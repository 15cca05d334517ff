package domain

import (
	"testing"
	"time"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/platform/money"
	"github.com/zmooth/zmooth/internal/services/billing/cycle"
)

func validPlan() Plan {
	return Plan{
		Name:          "Daily Unlimited",
		Service:       ServiceHotspot,
		Type:          PlanTimeBased,
		Price:         money.FromMajor(50),
		ValidityDays:  1,
		DownloadKbps:  5120,
		UploadKbps:    2048,
		BillingCycle:  cycle.Daily,
		IsActive:      true,
		ValidityHours: 0,
	}
}

func TestPlanNormalizeDefaults(t *testing.T) {
	plan := validPlan()
	plan.Service = ""
	plan.Currency = ""
	plan.Name = "  Daily Unlimited  "

	got, err := plan.Normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got.Name != "Daily Unlimited" || got.Service != ServiceHotspot || got.Currency != money.DefaultCurrency || got.Devices != 1 {
		t.Fatalf("unexpected normalized plan %+v", got)
	}
}

func TestPlanNormalizeValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Plan)
		field  string
	}{
		{"short name", func(p *Plan) { p.Name = "ab" }, "name"},
		{"zero price", func(p *Plan) { p.Price = 0 }, "price"},
		{"data plan without limit", func(p *Plan) { p.Type = PlanDataBased }, "data_limit_mb"},
		{"time plan without validity", func(p *Plan) { p.ValidityDays = 0 }, "validity"},
		{"bad service", func(p *Plan) { p.Service = "dialup" }, "service"},
		{"bad type", func(p *Plan) { p.Type = "metered" }, "plan_type"},
		{"too many devices", func(p *Plan) { p.Devices = 51 }, "devices"},
		{"bad currency", func(p *Plan) { p.Currency = "XYZ1" }, "currency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := validPlan()
			tt.mutate(&plan)
			_, err := plan.Normalize()
			domainErr, ok := apperrors.As(err)
			if !ok || domainErr.Code != apperrors.CodeInvalidArgument {
				t.Fatalf("expected invalid argument, got %v", err)
			}
			if domainErr.Metadata["field"] != tt.field {
				t.Fatalf("expected field %q, got %q", tt.field, domainErr.Metadata["field"])
			}
		})
	}
}

func TestPlanNormalizeRejectsUnknownCycle(t *testing.T) {
	plan := validPlan()
	plan.BillingCycle = "fortnightly"
	if _, err := plan.Normalize(); apperrors.CodeOf(err) != apperrors.CodeInvalidArgument {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestPlanApplyPatch(t *testing.T) {
	plan, err := validPlan().Normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	price := money.FromMajor(80)
	inactive := false
	got, err := plan.Apply(PlanPatch{Price: &price, IsActive: &inactive})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got.Price != price || got.IsActive || got.Name != plan.Name {
		t.Fatalf("unexpected patched plan %+v", got)
	}

	zero := money.Amount(0)
	if _, err := plan.Apply(PlanPatch{Price: &zero}); err == nil {
		t.Fatal("expected patch validation error")
	}
}

func TestPlanRateLimit(t *testing.T) {
	plan := validPlan()
	if got := plan.RateLimit(); got != "5120k/2048k" {
		t.Fatalf("RateLimit = %q", got)
	}
	plan.UploadKbps = 0
	if got := plan.RateLimit(); got != "" {
		t.Fatalf("expected empty rate limit, got %q", got)
	}
}

func TestPlanExpiresAt(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	plan := Plan{ValidityDays: 7, ValidityHours: 3}
	if got := plan.ExpiresAt(now); got == nil || !got.Equal(now.AddDate(0, 0, 7)) {
		t.Fatalf("days should win, got %v", got)
	}
	plan = Plan{ValidityHours: 3}
	if got := plan.ExpiresAt(now); got == nil || !got.Equal(now.Add(3*time.Hour)) {
		t.Fatalf("expected hours expiry, got %v", got)
	}
	if got := (Plan{}).ExpiresAt(now); got != nil {
		t.Fatalf("expected no expiry, got %v", got)
	}
	if (Plan{ValidityHours: 3}).SessionTimeout() != "3h" || (Plan{ValidityDays: 2}).SessionTimeout() != "2d" {
		t.Fatal("unexpected session timeout")
	}
}

func TestActivateAndUsage(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	plan := Plan{ID: "plan-1", Type: PlanDataBased, DataLimitMB: 1024, ValidityDays: 30}
	up, err := Activate(plan, "user-1", "txn-1", now)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if up.DataLimitMB != 1024 || !up.IsActive || up.ExpiresAt == nil {
		t.Fatalf("unexpected activation %+v", up)
	}
	if !up.Usable(now) {
		t.Fatal("expected fresh activation to be usable")
	}
	up.DataUsedMB = 1500
	if up.RemainingMB() != 0 || up.Usable(now) {
		t.Fatal("expected exhausted activation")
	}
	if !up.Expired(now.AddDate(0, 0, 30)) {
		t.Fatal("expected expiry at the boundary")
	}

	unlimited, _ := Activate(Plan{ID: "plan-2", Type: PlanUnlimited}, "user-1", "", now)
	if !unlimited.Unlimited() || !unlimited.Usable(now.AddDate(5, 0, 0)) {
		t.Fatal("expected unlimited activation without expiry")
	}
}

func TestUsedMB(t *testing.T) {
	tests := map[int64]int64{
		0:                   0,
		-5:                  0,
		BytesPerMB - 1:      0,
		BytesPerMB:          1,
		5*BytesPerMB + 1234: 5,
	}
	for input, want := range tests {
		if got := UsedMB(input); got != want {
			t.Errorf("UsedMB(%d) = %d, want %d", input, got, want)
		}
	}
}
