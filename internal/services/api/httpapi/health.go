package httpapi

import (
	"context"
	"log"
	"net/http"
	"sync/atomic"

	"github.com/zmooth/zmooth/internal/platform/httpx"
	"github.com/zmooth/zmooth/internal/platform/timeouts"
)

// PingFunc checks one dependency.
type PingFunc func(ctx context.Context) error

// HealthConfig describes what /ready checks. A nil Redis is skipped.
type HealthConfig struct {
	Environment string
	Version     string
	Database    PingFunc
	Redis       PingFunc
}

// Health serves /health and /ready. Readiness stays false until MarkReady.
type Health struct {
	cfg   HealthConfig
	ready atomic.Bool
}

// NewHealth builds the health endpoints.
func NewHealth(cfg HealthConfig) *Health {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	return &Health{cfg: cfg}
}

// MarkReady flips readiness once startup completes.
func (h *Health) MarkReady() {
	h.ready.Store(true)
}

type healthResponse struct {
	Status      string `json:"status"`
	Environment string `json:"environment"`
	Version     string `json:"version"`
	Ready       bool   `json:"ready"`
}

func (h *Health) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, healthResponse{
		Status:      "healthy",
		Environment: h.cfg.Environment,
		Version:     h.cfg.Version,
		Ready:       h.ready.Load(),
	})
}

func (h *Health) handleReady(w http.ResponseWriter, r *http.Request) {
	status := h.check(r.Context())
	code := http.StatusOK
	if status != "ready" {
		code = http.StatusServiceUnavailable
	}
	_ = httpx.WriteJSON(w, code, map[string]string{"status": status})
}

func (h *Health) check(ctx context.Context) string {
	if !h.ready.Load() {
		return "initializing"
	}
	ctx, cancel := context.WithTimeout(ctx, timeouts.Ping)
	defer cancel()
	if h.cfg.Database != nil {
		if err := h.cfg.Database(ctx); err != nil {
			log.Printf("ready: database ping: %v", err)
			return "db-unavailable"
		}
	}
	if h.cfg.Redis != nil {
		if err := h.cfg.Redis(ctx); err != nil {
			log.Printf("ready: redis ping: %v", err)
			return "redis-unavailable"
		}
	}
	return "ready"
}
