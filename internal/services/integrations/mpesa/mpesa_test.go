package mpesa

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/platform/money"
)

func testConfig(baseURL string) Config {
	return Config{
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		Shortcode:      "174379",
		Passkey:        "pass",
		CallbackURL:    "https://example.test/cb",
		BaseURL:        baseURL,
		Now:            func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) },
	}
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"0712345678":    "254712345678",
		"+254712345678": "254712345678",
		"254712345678":  "254712345678",
		"712345678":     "254712345678",
	}
	for in, want := range cases {
		if got := NormalizePhone(in); got != want {
			t.Fatalf("NormalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPasswordAndTimestamp(t *testing.T) {
	ts := Timestamp(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	if ts != "20260310120000" {
		t.Fatalf("expected EAT timestamp, got %s", ts)
	}
	want := base64.StdEncoding.EncodeToString([]byte("174379pass" + ts))
	if got := Password("174379", "pass", ts); got != want {
		t.Fatalf("password = %s, want %s", got, want)
	}
}

func TestSTKPushSendsPayloadAndCachesToken(t *testing.T) {
	var tokenCalls atomic.Int32
	var pushed map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/v1/generate":
			tokenCalls.Add(1)
			if user, pass, ok := r.BasicAuth(); !ok || user != "key" || pass != "secret" {
				t.Errorf("unexpected basic auth %q %q", user, pass)
			}
			_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":"3599"}`))
		case pushPath:
			if r.Header.Get("Authorization") != "Bearer tok" {
				t.Errorf("missing bearer token")
			}
			_ = json.NewDecoder(r.Body).Decode(&pushed)
			_, _ = w.Write([]byte(`{"ResponseCode":"0","CheckoutRequestID":"ws_CO_1","MerchantRequestID":"m1","CustomerMessage":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	req := PushRequest{Phone: "0712345678", Amount: money.Amount(5050), AccountReference: "TXN1", Description: "Daily"}
	for i := 0; i < 2; i++ {
		result, err := c.STKPush(context.Background(), req)
		if err != nil {
			t.Fatalf("push: %v", err)
		}
		if result.CheckoutRequestID != "ws_CO_1" {
			t.Fatalf("unexpected result %+v", result)
		}
	}
	if tokenCalls.Load() != 1 {
		t.Fatalf("expected cached token, got %d token calls", tokenCalls.Load())
	}
	if pushed["PhoneNumber"] != "254712345678" || pushed["TransactionType"] != "CustomerPayBillOnline" {
		t.Fatalf("unexpected payload %v", pushed)
	}
	if pushed["Amount"] != float64(51) {
		t.Fatalf("expected amount rounded up to 51, got %v", pushed["Amount"])
	}
}

func TestSTKPushFailureCarriesGatewayMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/v1/generate" {
			_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":"3599"}`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errorCode":"400.002.02","errorMessage":"Bad Request - Invalid PhoneNumber"}`))
	}))
	defer srv.Close()

	_, err := NewClient(testConfig(srv.URL)).STKPush(context.Background(), PushRequest{Phone: "07", Amount: money.FromMajor(10)})
	domainErr, ok := apperrors.As(err)
	if !ok || domainErr.Code != apperrors.CodePaymentFailed || domainErr.Message != "Bad Request - Invalid PhoneNumber" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestQueryReportsPendingAndResult(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/v1/generate" {
			_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":"3599"}`))
			return
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"errorCode":"500.001.1001","errorMessage":"The transaction is being processed"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ResponseCode":"0","ResultCode":"1032","ResultDesc":"Request cancelled by user"}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	first, err := c.Query(context.Background(), "ws_CO_1")
	if err != nil || !first.Pending {
		t.Fatalf("expected pending, got %+v %v", first, err)
	}
	second, err := c.Query(context.Background(), "ws_CO_1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if second.Pending || second.Succeeded() || second.ResultCode != "1032" {
		t.Fatalf("expected cancelled result, got %+v", second)
	}
}

func TestNewGatewayDisabledWithoutCredentials(t *testing.T) {
	g := NewGateway(Config{})
	if _, ok := g.(Disabled); !ok {
		t.Fatalf("expected Disabled gateway, got %T", g)
	}
	if _, err := g.STKPush(context.Background(), PushRequest{}); apperrors.CodeOf(err) != apperrors.CodeIntegrationDisabled {
		t.Fatalf("expected disabled error, got %v", err)
	}
}

func TestEnvironmentSelectsBaseURL(t *testing.T) {
	cfg := testConfig("")
	if NewClient(cfg).base != SandboxURL {
		t.Fatal("expected sandbox by default")
	}
	cfg.Environment = "Production"
	if NewClient(cfg).base != ProductionURL {
		t.Fatal("expected production url")
	}
}

func TestParseCallback(t *testing.T) {
	payload := []byte(`{"Body":{"stkCallback":{"MerchantRequestID":"m1","CheckoutRequestID":"ws_CO_1","ResultCode":0,"ResultDesc":"ok",
		"CallbackMetadata":{"Item":[{"Name":"Amount","Value":50},{"Name":"MpesaReceiptNumber","Value":"QAB12CD"},{"Name":"PhoneNumber","Value":254712345678}]}}}}`)
	cb, err := ParseCallback(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !cb.Succeeded() || cb.Receipt != "QAB12CD" || cb.Phone != "254712345678" || cb.Amount != 50 {
		t.Fatalf("unexpected callback %+v", cb)
	}

	failed, err := ParseCallback([]byte(`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_2","ResultCode":1032,"ResultDesc":"Cancelled"}}}`))
	if err != nil {
		t.Fatalf("parse failed callback: %v", err)
	}
	if failed.Succeeded() || failed.ResultDesc != "Cancelled" {
		t.Fatalf("unexpected failed callback %+v", failed)
	}

	if _, err := ParseCallback([]byte(`{"Body":{}}`)); err == nil {
		t.Fatal("expected missing checkout id error")
	}
}
