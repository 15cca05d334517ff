package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zmooth/zmooth/internal/platform/export"
	billingapp "github.com/zmooth/zmooth/internal/services/billing/app"
	"github.com/zmooth/zmooth/internal/services/integrations/archive"
	"github.com/zmooth/zmooth/internal/services/integrations/snmp"
	networkapp "github.com/zmooth/zmooth/internal/services/network/app"
	reportsapp "github.com/zmooth/zmooth/internal/services/reports/app"
	workerdomain "github.com/zmooth/zmooth/internal/services/worker/domain"
)

// Job names recorded in job_runs.
const (
	JobExpirePlans     = "plans.expire"
	JobAutoBilling     = "billing.autobill"
	JobOverdueInvoices = "invoices.overdue"
	JobReconcile       = "payments.reconcile"
	JobPollRouters     = "routers.poll"
	JobArchiveReports  = "reports.archive"
)

// archivedReports are uploaded for the previous day.
var archivedReports = []string{reportsapp.ReportSales, reportsapp.ReportSessions}

// Intervals sets how often each job runs.
type Intervals struct {
	Expire    time.Duration
	Billing   time.Duration
	Overdue   time.Duration
	Reconcile time.Duration
	Routers   time.Duration
	Archive   time.Duration
}

func (i Intervals) withDefaults() Intervals {
	defaults := Intervals{
		Expire:    5 * time.Minute,
		Billing:   time.Hour,
		Overdue:   time.Hour,
		Reconcile: time.Minute,
		Routers:   5 * time.Minute,
		Archive:   24 * time.Hour,
	}
	if i.Expire <= 0 {
		i.Expire = defaults.Expire
	}
	if i.Billing <= 0 {
		i.Billing = defaults.Billing
	}
	if i.Overdue <= 0 {
		i.Overdue = defaults.Overdue
	}
	if i.Reconcile <= 0 {
		i.Reconcile = defaults.Reconcile
	}
	if i.Routers <= 0 {
		i.Routers = defaults.Routers
	}
	if i.Archive <= 0 {
		i.Archive = defaults.Archive
	}
	return i
}

// Services are the dependencies jobs call into.
type Services struct {
	Billing  *billingapp.Service
	Network  *networkapp.Service
	Reports  *reportsapp.Service
	Poller   snmp.Poller
	Archiver archive.Archiver
	Clock    func() time.Time
}

// Jobs builds the job table.
func Jobs(svc Services, intervals Intervals) []workerdomain.Job {
	intervals = intervals.withDefaults()
	if svc.Clock == nil {
		svc.Clock = time.Now
	}
	if svc.Archiver == nil {
		svc.Archiver = archive.Disabled{}
	}
	return []workerdomain.Job{
		{
			Name:     JobExpirePlans,
			Interval: intervals.Expire,
			Run: func(ctx context.Context) (string, error) {
				return summarize(svc.Billing.ExpireAll(ctx))
			},
		},
		{
			Name:     JobAutoBilling,
			Interval: intervals.Billing,
			Run: func(ctx context.Context) (string, error) {
				return summarize(svc.Billing.RunAutoBilling(ctx))
			},
		},
		{
			Name:     JobOverdueInvoices,
			Interval: intervals.Overdue,
			Run: func(ctx context.Context) (string, error) {
				n, err := svc.Billing.MarkOverdue(ctx)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("%d invoice(s) overdue", n), nil
			},
		},
		{
			Name:     JobReconcile,
			Interval: intervals.Reconcile,
			Run: func(ctx context.Context) (string, error) {
				return summarize(svc.Billing.Reconcile(ctx))
			},
		},
		{
			Name:     JobPollRouters,
			Interval: intervals.Routers,
			Run: func(ctx context.Context) (string, error) {
				if svc.Poller == nil {
					return "snmp poller not configured", workerdomain.ErrSkipped
				}
				return summarize(svc.Network.PollRouters(ctx, svc.Poller))
			},
		},
		{
			Name:     JobArchiveReports,
			Interval: intervals.Archive,
			Run: func(ctx context.Context) (string, error) {
				return archiveReports(ctx, svc.Reports, svc.Archiver, svc.Clock())
			},
		},
	}
}

// archiveReports uploads yesterday's report CSVs as
// reports/YYYY-MM-DD/<name>.csv.
func archiveReports(ctx context.Context, reports *reportsapp.Service, archiver archive.Archiver, now time.Time) (string, error) {
	if !archiver.Enabled() {
		return "object storage not configured", workerdomain.ErrSkipped
	}
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	day := reportsapp.Range{From: today.AddDate(0, 0, -1), To: today}
	dayName := day.From.Format(time.DateOnly)
	for _, name := range archivedReports {
		body, err := reports.ExportCSV(ctx, name, day)
		if err != nil {
			return "", fmt.Errorf("render %s report: %w", name, err)
		}
		key := "reports/" + dayName + "/" + name + ".csv"
		if err := archiver.Put(ctx, key, export.ContentType, body); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("archived %d report(s) for %s", len(archivedReports), dayName), nil
}

func summarize[T any](result T, err error) (string, error) {
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return "", workerdomain.Permanent(fmt.Errorf("encode job result: %w", err))
	}
	return string(raw), nil
}
