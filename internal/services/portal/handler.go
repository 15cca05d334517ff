// Package portal serves the captive portal: the plan list with branding and
// the CSRF-protected voucher redeem form.
package portal

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"github.com/gorilla/csrf"
	"github.com/zmooth/zmooth/internal/platform/branding"
	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/platform/money"
	"github.com/zmooth/zmooth/internal/services/auth/user"
	billingapp "github.com/zmooth/zmooth/internal/services/billing/app"
	billing "github.com/zmooth/zmooth/internal/services/billing/domain"
	"github.com/zmooth/zmooth/internal/storage"
)

// Billing is the billing surface the portal uses.
type Billing interface {
	ListPlans(ctx context.Context, query storage.PlanQuery) (storage.Page[billing.Plan], error)
	PortalRedeem(ctx context.Context, in billingapp.PortalRedeemInput) (user.User, billingapp.RedeemResult, error)
}

// Config wires the portal.
type Config struct {
	Billing  Billing
	Settings branding.Store
	// CSRFKey must be 32 bytes.
	CSRFKey      []byte
	SecureCookie bool
	Locale       string
}

// Handler serves /portal and /portal/redeem.
type Handler struct {
	billing   Billing
	settings  branding.Store
	formatter money.Formatter
	protect   func(http.Handler) http.Handler
}

// NewHandler builds the portal handler.
func NewHandler(cfg Config) *Handler {
	h := &Handler{
		billing:   cfg.Billing,
		settings:  cfg.Settings,
		formatter: money.NewFormatter(cfg.Locale),
	}
	h.protect = csrf.Protect(cfg.CSRFKey,
		csrf.Path("/portal"),
		csrf.Secure(cfg.SecureCookie),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.ErrorHandler(http.HandlerFunc(h.csrfFailed)),
	)
	return h
}

// Routes registers the portal pages on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.Handle("GET /portal", h.protect(http.HandlerFunc(h.index)))
	mux.Handle("POST /portal/redeem", h.protect(http.HandlerFunc(h.redeem)))
}

func (h *Handler) brand(ctx context.Context) branding.Settings {
	settings, err := branding.Load(ctx, h.settings)
	if err != nil {
		log.Printf("portal branding: %v", err)
		return branding.Defaults()
	}
	return settings
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, err := h.billing.ListPlans(ctx, storage.PlanQuery{
		ListQuery:  storage.ListQuery{PageSize: storage.MaxPageSize},
		ActiveOnly: true,
		Service:    billing.ServiceHotspot,
	})
	if err != nil {
		log.Printf("portal plans: %v", err)
	}
	plans := make([]planView, 0, len(page.Items))
	for _, plan := range page.Items {
		plans = append(plans, planView{
			Name:        plan.Name,
			Description: plan.Description,
			Price:       h.formatter.Format(plan.Price, plan.Currency),
			Featured:    plan.IsFeatured,
		})
	}
	query := r.URL.Query()
	view := indexView{
		Brand:     h.brand(ctx),
		Plans:     plans,
		CSRFField: csrfFieldName,
		CSRFToken: csrf.Token(r),
		MAC:       firstOf(query, "mac"),
		IP:        firstOf(query, "ip"),
	}
	render(w, r, http.StatusOK, indexPage(view))
}

func (h *Handler) redeem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		h.renderResult(w, r, http.StatusBadRequest, resultView{Error: "The form could not be read."})
		return
	}
	customer, result, err := h.billing.PortalRedeem(ctx, billingapp.PortalRedeemInput{
		Code:     r.PostForm.Get("code"),
		Username: r.PostForm.Get("username"),
		MAC:      r.PostForm.Get("mac"),
		IP:       r.PostForm.Get("ip"),
	})
	if err != nil {
		status := http.StatusBadRequest
		message := "Voucher could not be redeemed."
		if appErr, ok := apperrors.As(err); ok && appErr.Code != apperrors.CodeUnknown {
			message = appErr.Message
			status = appErr.Code.HTTPStatus()
		} else {
			log.Printf("portal redeem: %v", err)
			status = http.StatusInternalServerError
		}
		h.renderResult(w, r, status, resultView{Error: message})
		return
	}
	view := resultView{
		Plan:     result.Plan.Name,
		Username: customer.Username,
	}
	if result.UserPlan.ExpiresAt != nil {
		view.Expires = result.UserPlan.ExpiresAt.Format("02 Jan 2006 15:04")
	}
	h.renderResult(w, r, http.StatusOK, view)
}

func (h *Handler) renderResult(w http.ResponseWriter, r *http.Request, status int, view resultView) {
	view.Brand = h.brand(r.Context())
	render(w, r, status, resultPage(view))
}

func (h *Handler) csrfFailed(w http.ResponseWriter, r *http.Request) {
	log.Printf("portal csrf rejected: %v", csrf.FailureReason(r))
	h.renderResult(w, r, http.StatusForbidden, resultView{Error: "Your session expired. Reload the page and try again."})
}

func render(w http.ResponseWriter, r *http.Request, status int, component templ.Component) {
	templ.Handler(component, templ.WithStatus(status)).ServeHTTP(w, r)
}

func firstOf(values map[string][]string, keys ...string) string {
	for _, key := range keys {
		if v := values[key]; len(v) > 0 && strings.TrimSpace(v[0]) != "" {
			return strings.TrimSpace(v[0])
		}
	}
	return ""
}
