package httpapi

import (
	"net/http"
	"strings"

	"github.com/zmooth/zmooth/internal/platform/httpx"
	accountingapp "github.com/zmooth/zmooth/internal/services/accounting/app"
	"github.com/zmooth/zmooth/internal/storage"
)

func (h handlers) accountingStart(w http.ResponseWriter, r *http.Request) {
	var in accountingapp.StartInput
	if !decode(w, r, &in) {
		return
	}
	sess, err := h.Accounting.Start(r.Context(), in)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeCreated(w, sessionToView(sess))
}

func (h handlers) accountingInterim(w http.ResponseWriter, r *http.Request) {
	var in accountingapp.InterimInput
	if !decode(w, r, &in) {
		return
	}
	res, err := h.Accounting.Interim(r.Context(), in)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, interimToView(res))
}

func (h handlers) accountingStop(w http.ResponseWriter, r *http.Request) {
	var in struct {
		SessionID string `json:"session_id"`
		Cause     string `json:"cause"`
	}
	if !decode(w, r, &in) {
		return
	}
	sess, err := h.Accounting.Stop(r.Context(), in.SessionID, in.Cause)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, sessionToView(sess))
}

func (h handlers) listSessions(w http.ResponseWriter, r *http.Request) {
	base, err := listQuery(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	activeOnly, err := boolParam(r, "active_only", false)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	page, err := h.Accounting.ListSessions(r.Context(), storage.SessionQuery{
		ListQuery:  base,
		ActiveOnly: activeOnly,
		UserID:     strings.TrimSpace(r.URL.Query().Get("user_id")),
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writePage(w, page, sessionToView)
}

func (h handlers) activeSessionCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.Accounting.CountActive(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, map[string]int{"active_sessions": n})
}

func (h handlers) disconnectSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Accounting.Disconnect(r.Context(), pathID(r, "sessionID"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, sessionToView(sess))
}
