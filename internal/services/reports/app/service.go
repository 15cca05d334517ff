package app

import (
	"context"
	"strings"
	"time"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/platform/money"
	"github.com/zmooth/zmooth/internal/platform/otel"
	accounting "github.com/zmooth/zmooth/internal/services/accounting/domain"
	"github.com/zmooth/zmooth/internal/services/auth/user"
	billing "github.com/zmooth/zmooth/internal/services/billing/domain"
	network "github.com/zmooth/zmooth/internal/services/network/domain"
	"github.com/zmooth/zmooth/internal/storage"
)

var tracer = otel.Tracer("zmooth/reports")

const (
	defaultRange = 30 * 24 * time.Hour
	defaultTopN  = 10
	maxTopN      = 100
	expiringSoon = 24 * time.Hour
)

// Service reads aggregates from the store.
type Service struct {
	store storage.Store
	clock func() time.Time
}

// NewService builds the service. A nil clock uses time.Now.
func NewService(store storage.Store, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{store: store, clock: clock}
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

// Range is a half-open time window [From, To).
type Range struct {
	From time.Time
	To   time.Time
}

// resolve fills a missing end with now and a missing start with 30 days
// before the end.
func (s *Service) resolve(r Range) (Range, error) {
	if r.To.IsZero() {
		r.To = s.now()
	}
	if r.From.IsZero() {
		r.From = r.To.Add(-defaultRange)
	}
	r.From, r.To = r.From.UTC(), r.To.UTC()
	if !r.From.Before(r.To) {
		return Range{}, apperrors.Invalid("from", "from must be before to")
	}
	return r, nil
}

func topN(limit int) int {
	switch {
	case limit <= 0:
		return defaultTopN
	case limit > maxTopN:
		return maxTopN
	}
	return limit
}

// Overview is the dashboard summary.
type Overview struct {
	ActiveSessions   int          `json:"active_sessions"`
	RevenueToday     money.Amount `json:"revenue_today"`
	RevenueMonth     money.Amount `json:"revenue_month"`
	CustomersTotal   int          `json:"customers_total"`
	CustomersActive  int          `json:"customers_active"`
	ActivePlans      int          `json:"active_plans"`
	UnpaidInvoices   int          `json:"unpaid_invoices"`
	OverdueInvoices  int          `json:"overdue_invoices"`
	ExpiringSoon     int          `json:"plans_expiring_24h"`
	RoutersOnline    int          `json:"routers_online"`
	RoutersMonitored int          `json:"routers_monitored"`
	GeneratedAt      time.Time    `json:"generated_at"`
}

// Overview gathers the dashboard counters.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	ctx, span := tracer.Start(ctx, "reports.Overview")
	defer span.End()

	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	out := Overview{GeneratedAt: now}

	var err error
	if out.ActiveSessions, err = s.store.CountActiveSessions(ctx); err != nil {
		return Overview{}, err
	}
	if out.RevenueToday, err = s.store.Revenue(ctx, today, now.Add(time.Millisecond)); err != nil {
		return Overview{}, err
	}
	if out.RevenueMonth, err = s.store.Revenue(ctx, month, now.Add(time.Millisecond)); err != nil {
		return Overview{}, err
	}
	if out.CustomersTotal, out.CustomersActive, err = s.store.CountUsers(ctx, user.RoleUser); err != nil {
		return Overview{}, err
	}
	if out.ActivePlans, err = s.store.CountActiveUserPlans(ctx, now); err != nil {
		return Overview{}, err
	}
	invoices, err := s.store.CountInvoicesByStatus(ctx)
	if err != nil {
		return Overview{}, err
	}
	out.UnpaidInvoices = invoices[billing.InvoiceUnpaid]
	out.OverdueInvoices = invoices[billing.InvoiceOverdue]
	if out.ExpiringSoon, err = s.store.CountUserPlansExpiringBetween(ctx, now, now.Add(expiringSoon)); err != nil {
		return Overview{}, err
	}
	statuses, err := s.store.ListRouterStatuses(ctx)
	if err != nil {
		return Overview{}, err
	}
	out.RoutersMonitored = len(statuses)
	for _, status := range statuses {
		if status.Status == network.RouterOnline {
			out.RoutersOnline++
		}
	}
	return out, nil
}

// Sales returns completed revenue per day.
func (s *Service) Sales(ctx context.Context, r Range) ([]storage.DailySales, error) {
	r, err := s.resolve(r)
	if err != nil {
		return nil, err
	}
	return s.store.SalesByDay(ctx, r.From, r.To)
}

// DataUsage ranks users by bytes transferred.
func (s *Service) DataUsage(ctx context.Context, r Range, limit int) ([]storage.UserUsage, error) {
	r, err := s.resolve(r)
	if err != nil {
		return nil, err
	}
	return s.store.DataUsageByUser(ctx, r.From, r.To, topN(limit))
}

// TopUsers ranks users by completed spend.
func (s *Service) TopUsers(ctx context.Context, r Range, limit int) ([]storage.UserSpend, error) {
	r, err := s.resolve(r)
	if err != nil {
		return nil, err
	}
	return s.store.TopSpenders(ctx, r.From, r.To, topN(limit))
}

// VoucherStats counts vouchers per status and batch.
func (s *Service) VoucherStats(ctx context.Context) (billing.VoucherStats, error) {
	return s.store.VoucherStats(ctx)
}

// FailedLogins lists failed sign-in attempts since the start of the range.
func (s *Service) FailedLogins(ctx context.Context, r Range, query storage.ListQuery) (storage.Page[storage.LoginAttempt], error) {
	r, err := s.resolve(r)
	if err != nil {
		return storage.Page[storage.LoginAttempt]{}, err
	}
	return s.store.ListLoginAttempts(ctx, true, r.From, query)
}

// SessionLogs lists sessions started inside the range.
func (s *Service) SessionLogs(ctx context.Context, r Range, query storage.ListQuery) (storage.Page[accounting.Session], error) {
	r, err := s.resolve(r)
	if err != nil {
		return storage.Page[accounting.Session]{}, err
	}
	return s.store.ListSessions(ctx, storage.SessionQuery{ListQuery: query, From: r.From, To: r.To})
}

// RouterPerformance returns the latest poll per router.
func (s *Service) RouterPerformance(ctx context.Context) ([]storage.RouterStatus, error) {
	return s.store.ListRouterStatuses(ctx)
}

// ParseRange reads RFC 3339 or YYYY-MM-DD bounds. Empty values are left zero.
func ParseRange(from, to string) (Range, error) {
	var r Range
	var err error
	if r.From, err = parseBound("from", from); err != nil {
		return Range{}, err
	}
	if r.To, err = parseBound("to", to); err != nil {
		return Range{}, err
	}
	return r, nil
}

func parseBound(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, nil
	}
	return time.Time{}, apperrors.Invalid(field, field+" must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
}
