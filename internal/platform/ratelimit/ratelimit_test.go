package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestAllowRespectsBurstPerKey(t *testing.T) {
	l := New(rate.Every(time.Hour), 2)
	defer l.Stop()

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("expected burst of two to pass")
	}
	if l.Allow("a") {
		t.Fatal("expected third request to be limited")
	}
	if !l.Allow("b") {
		t.Fatal("expected separate bucket for another key")
	}
}

func TestSweepDropsIdleVisitors(t *testing.T) {
	l := New(rate.Every(time.Hour), 1)
	defer l.Stop()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow("a")
	now = now.Add(time.Hour)
	l.sweep()

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.visitors) != 0 {
		t.Fatalf("expected idle visitor removed, got %d", len(l.visitors))
	}
}

func TestMiddlewareRejectsOverLimit(t *testing.T) {
	l := New(rate.Every(time.Hour), 1)
	defer l.Stop()
	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), nil)

	for i, want := range []int{http.StatusNoContent, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("request %d: status %d, want %d", i, rec.Code, want)
		}
	}
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:1234"
	if got := ClientKey(req); got != "192.0.2.10" {
		t.Fatalf("ClientKey = %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	if got := ClientKey(req); got != "203.0.113.5" {
		t.Fatalf("ClientKey with forwarded = %q", got)
	}
}
