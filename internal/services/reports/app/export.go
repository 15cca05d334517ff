package app

import (
	"context"
	"strconv"
	"strings"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/platform/export"
	accounting "github.com/zmooth/zmooth/internal/services/accounting/domain"
	"github.com/zmooth/zmooth/internal/storage"
)

// Report names served as CSV.
const (
	ReportSales        = "sales"
	ReportDataUsage    = "data-usage"
	ReportTopUsers     = "top-users"
	ReportVouchers     = "vouchers"
	ReportFailedLogins = "failed-logins"
	ReportSessions     = "sessions"
	ReportRouters      = "routers"
)

// Reports lists every exportable report.
var Reports = []string{
	ReportSales,
	ReportDataUsage,
	ReportTopUsers,
	ReportVouchers,
	ReportFailedLogins,
	ReportSessions,
	ReportRouters,
}

// ExportCSV renders one named report for the range.
func (s *Service) ExportCSV(ctx context.Context, name string, r Range) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "reports.ExportCSV")
	defer span.End()

	switch strings.ToLower(strings.TrimSpace(name)) {
	case ReportSales:
		rows, err := s.Sales(ctx, r)
		if err != nil {
			return nil, err
		}
		out := make([][]string, 0, len(rows))
		for _, row := range rows {
			out = append(out, []string{row.Day, strconv.Itoa(row.Count), row.Total.String()})
		}
		return export.CSV([]string{"Date", "Transactions", "Revenue"}, out)
	case ReportDataUsage:
		rows, err := s.DataUsage(ctx, r, maxTopN)
		if err != nil {
			return nil, err
		}
		out := make([][]string, 0, len(rows))
		for _, row := range rows {
			out = append(out, []string{row.Username, strconv.Itoa(row.Sessions), strconv.FormatInt(row.Bytes, 10), megabytes(row.Bytes)})
		}
		return export.CSV([]string{"Username", "Sessions", "Bytes", "MB"}, out)
	case ReportTopUsers:
		rows, err := s.TopUsers(ctx, r, maxTopN)
		if err != nil {
			return nil, err
		}
		out := make([][]string, 0, len(rows))
		for _, row := range rows {
			out = append(out, []string{row.Username, strconv.Itoa(row.Transactions), row.Total.String()})
		}
		return export.CSV([]string{"Username", "Transactions", "Total Spent"}, out)
	case ReportVouchers:
		stats, err := s.VoucherStats(ctx)
		if err != nil {
			return nil, err
		}
		out := make([][]string, 0, len(stats.ByBatch))
		for _, batch := range stats.ByBatch {
			out = append(out, []string{batch.BatchID, batch.Label, strconv.Itoa(batch.Total), strconv.Itoa(batch.Used), strconv.Itoa(batch.Active)})
		}
		return export.CSV([]string{"Batch", "Label", "Total", "Used", "Active"}, out)
	case ReportFailedLogins:
		r, err := s.resolve(r)
		if err != nil {
			return nil, err
		}
		list := func(ctx context.Context, q storage.ListQuery) (storage.Page[storage.LoginAttempt], error) {
			return s.store.ListLoginAttempts(ctx, true, r.From, q)
		}
		rows, err := storage.Collect(ctx, storage.ListQuery{}, list)
		if err != nil {
			return nil, err
		}
		out := make([][]string, 0, len(rows))
		for _, row := range rows {
			out = append(out, []string{row.Identifier, row.IP, row.Reason, export.DateTime(row.CreatedAt)})
		}
		return export.CSV([]string{"Identifier", "IP", "Reason", "Time"}, out)
	case ReportSessions:
		r, err := s.resolve(r)
		if err != nil {
			return nil, err
		}
		list := func(ctx context.Context, q storage.ListQuery) (storage.Page[accounting.Session], error) {
			return s.store.ListSessions(ctx, storage.SessionQuery{ListQuery: q, From: r.From, To: r.To})
		}
		rows, err := storage.Collect(ctx, storage.ListQuery{}, list)
		if err != nil {
			return nil, err
		}
		out := make([][]string, 0, len(rows))
		for _, row := range rows {
			stopped := ""
			if row.StoppedAt != nil {
				stopped = export.DateTime(*row.StoppedAt)
			}
			out = append(out, []string{
				row.Username, row.MACAddress, row.FramedIP, row.NASIP,
				export.DateTime(row.StartedAt), stopped,
				strconv.FormatInt(row.DurationSeconds, 10), megabytes(row.TotalBytes), row.TerminateCause,
			})
		}
		return export.CSV([]string{"Username", "MAC", "IP", "NAS", "Started", "Stopped", "Duration (s)", "MB", "Cause"}, out)
	case ReportRouters:
		rows, err := s.RouterPerformance(ctx)
		if err != nil {
			return nil, err
		}
		out := make([][]string, 0, len(rows))
		for _, row := range rows {
			out = append(out, []string{
				row.Name, row.IP, row.Status, row.SysName,
				strconv.FormatInt(row.UptimeSeconds, 10), export.DateTime(row.PolledAt), row.Error,
			})
		}
		return export.CSV([]string{"Router", "IP", "Status", "System Name", "Uptime (s)", "Polled At", "Error"}, out)
	}
	return nil, apperrors.WithMetadata(apperrors.CodeNotFound, "unknown report "+name, map[string]string{"report": name})
}

func megabytes(bytes int64) string {
	return strconv.FormatFloat(float64(bytes)/(1<<20), 'f', 2, 64)
}
