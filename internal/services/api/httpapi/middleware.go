package httpapi

import (
	"net/http"
	"strings"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/platform/httpx"
	"github.com/zmooth/zmooth/internal/platform/requestctx"
	"github.com/zmooth/zmooth/internal/services/api/routepath"
	"github.com/zmooth/zmooth/internal/services/auth/user"
)

// NASSecretHeader carries a router's nas_secret on accounting calls.
const NASSecretHeader = "X-NAS-Secret"

var (
	errNotAuthenticated = apperrors.New(apperrors.CodeUnauthenticated, "Not authenticated")
	errForbidden        = apperrors.New(apperrors.CodePermissionDenied, "Not enough permissions")
	errRateLimited      = apperrors.New(apperrors.CodeRateLimited, "Too many requests")
)

// bearerToken reads the Authorization header. The live feed also accepts
// ?token= since browsers cannot set headers on websocket upgrades.
func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, value, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(value)
	}
	if r.URL.Path == routepath.Live {
		return strings.TrimSpace(r.URL.Query().Get("token"))
	}
	return ""
}

// identify resolves the caller and stores it on the request context.
func (h handlers) identify(r *http.Request) (*http.Request, user.User, error) {
	raw := bearerToken(r)
	if raw == "" {
		return r, user.User{}, errNotAuthenticated
	}
	current, err := h.Auth.Authenticate(r.Context(), raw)
	if err != nil {
		return r, user.User{}, err
	}
	ctx := requestctx.WithUserID(r.Context(), current.ID)
	ctx = requestctx.WithRole(ctx, string(current.Role))
	ctx = requestctx.WithUsername(ctx, current.Username)
	return r.WithContext(ctx), current, nil
}

func (h handlers) authenticated(next http.HandlerFunc) http.Handler {
	return h.requireRole(user.RoleUser, next)
}

func (h handlers) admin(next http.HandlerFunc) http.Handler {
	return h.requireRole(user.RoleAdmin, next)
}

func (h handlers) superAdmin(next http.HandlerFunc) http.Handler {
	return h.requireRole(user.RoleSuperAdmin, next)
}

// requireRole rejects callers ranked below role.
func (h handlers) requireRole(role user.Role, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r, current, err := h.identify(r)
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		if !current.Role.AtLeast(role) {
			httpx.WriteError(w, errForbidden)
			return
		}
		next(w, r)
	})
}

// optionalAuth identifies the caller when a token is present. A bad token
// is still rejected.
func (h handlers) optionalAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if bearerToken(r) == "" {
			next(w, r)
			return
		}
		r, _, err := h.identify(r)
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		next(w, r)
	})
}

// nasOrAdmin admits a router presenting its nas_secret, or an admin.
func (h handlers) nasOrAdmin(next http.HandlerFunc) http.Handler {
	adminOnly := h.admin(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret := r.Header.Get(NASSecretHeader)
		if secret == "" {
			adminOnly.ServeHTTP(w, r)
			return
		}
		if err := h.Accounting.AuthorizeNAS(r.Context(), secret); err != nil {
			httpx.WriteError(w, err)
			return
		}
		next(w, r)
	})
}

// strict applies the auth limiter to credential endpoints.
func (h handlers) strict(next http.HandlerFunc) http.Handler {
	if h.AuthLimiter == nil {
		return next
	}
	return h.AuthLimiter.Middleware(next, RateLimited)
}

// RateLimited renders the rate limit error envelope.
func RateLimited(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteError(w, errRateLimited)
}

func isAdmin(r *http.Request) bool {
	return user.Role(requestctx.RoleFromContext(r.Context())).AtLeast(user.RoleAdmin)
}
