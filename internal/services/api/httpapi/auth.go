package httpapi

import (
	"net/http"

	"github.com/zmooth/zmooth/internal/platform/httpx"
	"github.com/zmooth/zmooth/internal/platform/ratelimit"
	"github.com/zmooth/zmooth/internal/platform/requestctx"
	authapp "github.com/zmooth/zmooth/internal/services/auth/app"
	"github.com/zmooth/zmooth/internal/services/auth/token"
	"github.com/zmooth/zmooth/internal/storage"
)

type authResponse struct {
	token.Pair
	User userView `json:"user"`
}

func (h handlers) register(w http.ResponseWriter, r *http.Request) {
	var in authapp.RegisterInput
	if !decode(w, r, &in) {
		return
	}
	created, pair, err := h.Auth.Register(r.Context(), in)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeCreated(w, authResponse{Pair: pair, User: userToView(created)})
}

func (h handlers) login(w http.ResponseWriter, r *http.Request) {
	var in authapp.LoginInput
	if !decode(w, r, &in) {
		return
	}
	in.IP = ratelimit.ClientKey(r)
	in.UserAgent = r.UserAgent()
	current, pair, err := h.Auth.Login(r.Context(), in)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, authResponse{Pair: pair, User: userToView(current)})
}

func (h handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decode(w, r, &in) {
		return
	}
	pair, err := h.Auth.Refresh(r.Context(), in.RefreshToken)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, pair)
}

func (h handlers) me(w http.ResponseWriter, r *http.Request) {
	current, err := h.Auth.Me(r.Context(), requestctx.UserIDFromContext(r.Context()))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, userToView(current))
}

func (h handlers) changePassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if !decode(w, r, &in) {
		return
	}
	if err := h.Auth.ChangePassword(r.Context(), requestctx.UserIDFromContext(r.Context()), in.OldPassword, in.NewPassword); err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, map[string]string{"message": "Password updated"})
}

func (h handlers) listAdmins(w http.ResponseWriter, r *http.Request) {
	query, err := listQuery(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	page, err := h.Auth.ListAdmins(r.Context(), query)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writePage(w, page, userToView)
}

func (h handlers) createAdmin(w http.ResponseWriter, r *http.Request) {
	var in authapp.CreateAdminInput
	if !decode(w, r, &in) {
		return
	}
	created, err := h.Auth.CreateAdmin(r.Context(), in)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeCreated(w, userToView(created))
}

func (h handlers) listAuditEvents(w http.ResponseWriter, r *http.Request) {
	query, err := listQuery(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	page, err := h.Auth.ListAuditEvents(r.Context(), query)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writePage(w, page, same[storage.AuditEvent])
}
