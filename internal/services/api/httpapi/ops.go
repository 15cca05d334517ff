package httpapi

import (
	"net/http"
	"strings"

	"github.com/zmooth/zmooth/internal/platform/branding"
	"github.com/zmooth/zmooth/internal/platform/bulk"
	"github.com/zmooth/zmooth/internal/platform/httpx"
	"github.com/zmooth/zmooth/internal/platform/requestctx"
	"github.com/zmooth/zmooth/internal/services/auth/user"
	notifications "github.com/zmooth/zmooth/internal/services/notifications/domain"
	supportapp "github.com/zmooth/zmooth/internal/services/support/app"
	"github.com/zmooth/zmooth/internal/storage"
)

func (h handlers) listNotifications(w http.ResponseWriter, r *http.Request) {
	query, err := listQuery(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	unreadOnly, err := boolParam(r, "unread_only", false)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	role := user.Role(requestctx.RoleFromContext(r.Context()))
	page, err := h.Notifications.List(r.Context(), role, unreadOnly, query)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writePage(w, page, same[storage.Notification])
}

func (h handlers) createNotification(w http.ResponseWriter, r *http.Request) {
	var in notifications.CreateInput
	if !decode(w, r, &in) {
		return
	}
	n, err := h.Notifications.Create(r.Context(), in)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeCreated(w, n)
}

func (h handlers) markNotificationsRead(w http.ResponseWriter, r *http.Request) {
	var in struct {
		IDs []string `json:"ids"`
	}
	if !decode(w, r, &in) {
		return
	}
	if len(in.IDs) == 0 {
		httpx.WriteError(w, bulk.ErrEmptySelection)
		return
	}
	n, err := h.Notifications.MarkRead(r.Context(), in.IDs)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, map[string]int{"affected": n})
}

func (h handlers) getBranding(w http.ResponseWriter, r *http.Request) {
	settings, err := branding.Load(r.Context(), h.Settings)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, settings)
}

func (h handlers) putBranding(w http.ResponseWriter, r *http.Request) {
	var in branding.Settings
	if !decode(w, r, &in) {
		return
	}
	saved, err := branding.Save(r.Context(), h.Settings, in, h.now())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, saved)
}

func (h handlers) listArticles(w http.ResponseWriter, _ *http.Request) {
	writeItems(w, h.Articles.List(), same[supportapp.Article])
}

func (h handlers) getArticle(w http.ResponseWriter, r *http.Request) {
	article, err := h.Articles.Get(pathID(r, "slug"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, article)
}

func (h handlers) createTicket(w http.ResponseWriter, r *http.Request) {
	var in supportapp.TicketInput
	if !decode(w, r, &in) {
		return
	}
	ticket, err := h.Support.CreateTicket(r.Context(), requestctx.UserIDFromContext(r.Context()), in)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeCreated(w, ticket)
}

// ticketQuery scopes customers to their own tickets. Admins may filter by
// user_id.
func ticketQuery(r *http.Request) (storage.TicketQuery, error) {
	base, err := listQuery(r)
	if err != nil {
		return storage.TicketQuery{}, err
	}
	values := r.URL.Query()
	query := storage.TicketQuery{ListQuery: base, Status: strings.TrimSpace(values.Get("status"))}
	if isAdmin(r) {
		query.UserID = strings.TrimSpace(values.Get("user_id"))
	} else {
		query.UserID = requestctx.UserIDFromContext(r.Context())
	}
	return query, nil
}

func (h handlers) listTickets(w http.ResponseWriter, r *http.Request) {
	query, err := ticketQuery(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	page, err := h.Support.ListTickets(r.Context(), query)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writePage(w, page, same[storage.Ticket])
}

func (h handlers) getTicket(w http.ResponseWriter, r *http.Request) {
	owner := requestctx.UserIDFromContext(r.Context())
	if isAdmin(r) {
		owner = ""
	}
	ticket, err := h.Support.GetTicket(r.Context(), owner, pathID(r, "ticketID"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, ticket)
}

func (h handlers) updateTicketStatus(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Status string `json:"status"`
	}
	if !decode(w, r, &in) {
		return
	}
	ticket, err := h.Support.UpdateTicketStatus(r.Context(), pathID(r, "ticketID"), in.Status)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, ticket)
}

func (h handlers) exportTickets(w http.ResponseWriter, r *http.Request) {
	query, err := ticketQuery(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	body, err := h.Support.ExportTickets(r.Context(), query)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeCSV(w, "tickets", h, body)
}

func (h handlers) systemStatus(w http.ResponseWriter, r *http.Request) {
	writeOK(w, h.Support.Status(r.Context()))
}
