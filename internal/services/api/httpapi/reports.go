package httpapi

import (
	"net/http"
	"strings"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/platform/httpx"
	reportsapp "github.com/zmooth/zmooth/internal/services/reports/app"
	"github.com/zmooth/zmooth/internal/storage"
)

func reportRange(r *http.Request) (reportsapp.Range, error) {
	values := r.URL.Query()
	return reportsapp.ParseRange(values.Get("from"), values.Get("to"))
}

func (h handlers) overview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.Reports.Overview(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, overview)
}

func (h handlers) salesReport(w http.ResponseWriter, r *http.Request) {
	rng, err := reportRange(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	rows, err := h.Reports.Sales(r.Context(), rng)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeItems(w, rows, same[storage.DailySales])
}

func (h handlers) dataUsageReport(w http.ResponseWriter, r *http.Request) {
	rng, err := reportRange(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	rows, err := h.Reports.DataUsage(r.Context(), rng, limit)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeItems(w, rows, same[storage.UserUsage])
}

func (h handlers) topUsersReport(w http.ResponseWriter, r *http.Request) {
	rng, err := reportRange(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	rows, err := h.Reports.TopUsers(r.Context(), rng, limit)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeItems(w, rows, same[storage.UserSpend])
}

func (h handlers) failedLoginsReport(w http.ResponseWriter, r *http.Request) {
	rng, err := reportRange(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	query, err := listQuery(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	page, err := h.Reports.FailedLogins(r.Context(), rng, query)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writePage(w, page, same[storage.LoginAttempt])
}

func (h handlers) sessionLogsReport(w http.ResponseWriter, r *http.Request) {
	rng, err := reportRange(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	query, err := listQuery(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	page, err := h.Reports.SessionLogs(r.Context(), rng, query)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writePage(w, page, sessionToView)
}

func (h handlers) routersReport(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Reports.RouterPerformance(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeItems(w, rows, same[storage.RouterStatus])
}

// reportCSV serves /reports/{name}.csv.
func (h handlers) reportCSV(w http.ResponseWriter, r *http.Request) {
	name, ok := strings.CutSuffix(r.PathValue("file"), ".csv")
	if !ok {
		httpx.WriteError(w, apperrors.New(apperrors.CodeNotFound, "Not Found"))
		return
	}
	rng, err := reportRange(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	body, err := h.Reports.ExportCSV(r.Context(), name, rng)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeCSV(w, "report-"+name, h, body)
}
