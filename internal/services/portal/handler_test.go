package portal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/platform/money"
	"github.com/zmooth/zmooth/internal/services/auth/user"
	billingapp "github.com/zmooth/zmooth/internal/services/billing/app"
	billing "github.com/zmooth/zmooth/internal/services/billing/domain"
	"github.com/zmooth/zmooth/internal/storage"
)

type fakeBilling struct {
	plans    []billing.Plan
	redeemed []billingapp.PortalRedeemInput
	err      error
}

func (f *fakeBilling) ListPlans(_ context.Context, query storage.PlanQuery) (storage.Page[billing.Plan], error) {
	if !query.ActiveOnly || query.Service != billing.ServiceHotspot {
		return storage.Page[billing.Plan]{}, nil
	}
	return storage.Page[billing.Plan]{Items: f.plans}, nil
}

func (f *fakeBilling) PortalRedeem(_ context.Context, in billingapp.PortalRedeemInput) (user.User, billingapp.RedeemResult, error) {
	f.redeemed = append(f.redeemed, in)
	if f.err != nil {
		return user.User{}, billingapp.RedeemResult{}, f.err
	}
	expires := time.Date(2026, 7, 1, 18, 0, 0, 0, time.UTC)
	return user.User{Username: "abcd2345wxyz"},
		billingapp.RedeemResult{
			Plan:     billing.Plan{Name: "Daily 1GB"},
			UserPlan: billing.UserPlan{ExpiresAt: &expires},
		}, nil
}

type memSettings map[string]string

func (m memSettings) GetSetting(_ context.Context, key string) (string, error) {
	if v, ok := m[key]; ok {
		return v, nil
	}
	return "", storage.ErrNotFound
}

func (m memSettings) PutSetting(_ context.Context, key, value string, _ time.Time) error {
	m[key] = value
	return nil
}

var tokenPattern = regexp.MustCompile(`name="gorilla\.csrf\.Token" value="([^"]+)"`)

func newTestMux(fake *fakeBilling) *http.ServeMux {
	h := NewHandler(Config{
		Billing:  fake,
		Settings: memSettings{"branding": `{"company_name":"Skyline <WiFi>","primary_color":"#112233"}`},
		CSRFKey:  []byte("0123456789abcdef0123456789abcdef"),
		Locale:   "en",
	})
	mux := http.NewServeMux()
	h.Routes(mux)
	return mux
}

// loadForm fetches the portal page and returns the CSRF cookie and token.
func loadForm(t *testing.T, mux http.Handler, target string) (*httptest.ResponseRecorder, []*http.Cookie, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET %s status = %d", target, rec.Code)
	}
	match := tokenPattern.FindStringSubmatch(rec.Body.String())
	if match == nil {
		t.Fatalf("csrf token missing from page:\n%s", rec.Body.String())
	}
	return rec, rec.Result().Cookies(), match[1]
}

func postRedeem(mux http.Handler, cookies []*http.Cookie, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/portal/redeem", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestIndexRendersBrandingAndPlans(t *testing.T) {
	fake := &fakeBilling{plans: []billing.Plan{
		{Name: "Daily 1GB", Price: money.FromMajor(50), Currency: "KES", IsFeatured: true},
	}}
	rec, _, _ := loadForm(t, newTestMux(fake), "/portal?mac=AA:BB:CC:DD:EE:FF&ip=10.5.0.9")
	body := rec.Body.String()
	for _, want := range []string{
		"Skyline &lt;WiFi&gt;",
		"background:#112233",
		"Daily 1GB",
		"KES 50.00",
		`name="mac" value="AA:BB:CC:DD:EE:FF"`,
		`name="ip" value="10.5.0.9"`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("page missing %q:\n%s", want, body)
		}
	}
}

func TestRedeemWithToken(t *testing.T) {
	fake := &fakeBilling{}
	mux := newTestMux(fake)
	_, cookies, token := loadForm(t, mux, "/portal")

	rec := postRedeem(mux, cookies, url.Values{
		"gorilla.csrf.Token": {token},
		"code":               {"abcd-2345-wxyz"},
		"mac":                {"AA:BB:CC:DD:EE:FF"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body:\n%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "You are connected") || !strings.Contains(rec.Body.String(), "01 Jul 2026 18:00") {
		t.Fatalf("unexpected result page:\n%s", rec.Body.String())
	}
	if len(fake.redeemed) != 1 || fake.redeemed[0].Code != "abcd-2345-wxyz" || fake.redeemed[0].MAC != "AA:BB:CC:DD:EE:FF" {
		t.Fatalf("unexpected redeem input: %+v", fake.redeemed)
	}
}

func TestRedeemShowsDomainError(t *testing.T) {
	fake := &fakeBilling{err: apperrors.New(apperrors.CodeVoucherUnavailable, "Voucher is used")}
	mux := newTestMux(fake)
	_, cookies, token := loadForm(t, mux, "/portal")

	rec := postRedeem(mux, cookies, url.Values{"gorilla.csrf.Token": {token}, "code": {"abcd-2345-wxyz"}})
	if rec.Code == http.StatusOK || !strings.Contains(rec.Body.String(), "Voucher is used") {
		t.Fatalf("status = %d body:\n%s", rec.Code, rec.Body.String())
	}
}

func TestRedeemRejectsMissingToken(t *testing.T) {
	fake := &fakeBilling{}
	rec := postRedeem(newTestMux(fake), nil, url.Values{"code": {"abcd-2345-wxyz"}})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if len(fake.redeemed) != 0 {
		t.Fatal("redeem must not run without a csrf token")
	}
}
