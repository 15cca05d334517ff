// Package app assembles the API process: storage, services, the HTTP API,
// the captive portal, the live feed and the gRPC health listener.
package app

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/net/netutil"

	platformgrpc "github.com/zmooth/zmooth/internal/platform/grpc"
	"github.com/zmooth/zmooth/internal/platform/httpx"
	"github.com/zmooth/zmooth/internal/platform/ratelimit"
	"github.com/zmooth/zmooth/internal/platform/timeouts"
	accountingapp "github.com/zmooth/zmooth/internal/services/accounting/app"
	"github.com/zmooth/zmooth/internal/services/api/httpapi"
	"github.com/zmooth/zmooth/internal/services/api/live"
	authapp "github.com/zmooth/zmooth/internal/services/auth/app"
	"github.com/zmooth/zmooth/internal/services/auth/token"
	billingapp "github.com/zmooth/zmooth/internal/services/billing/app"
	"github.com/zmooth/zmooth/internal/services/integrations/mikrotik"
	"github.com/zmooth/zmooth/internal/services/integrations/mpesa"
	networkapp "github.com/zmooth/zmooth/internal/services/network/app"
	notificationsapp "github.com/zmooth/zmooth/internal/services/notifications/app"
	"github.com/zmooth/zmooth/internal/services/portal"
	reportsapp "github.com/zmooth/zmooth/internal/services/reports/app"
	supportapp "github.com/zmooth/zmooth/internal/services/support/app"
	"github.com/zmooth/zmooth/internal/storage/sqlite"
)

const (
	defaultHTTPAddr       = ":8080"
	defaultGRPCAddr       = ":8081"
	defaultDBPath         = "data/zmooth.db"
	defaultMaxConnections = 512
	// authRequestsPerMinute throttles login and register per client.
	authRequestsPerMinute = 10
	portalCSRFInfo        = "zmooth portal csrf"
)

// HealthService is the gRPC health service name the API reports.
const HealthService = "zmooth.api"

// Config wires the API process.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	DBPath      string
	Environment string
	Version     string
	Locale      string

	SecretKey       []byte
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	CORSOrigins        []string
	RateLimitPerMinute int
	MaxConnections     int
	SecureCookies      bool
	LiveInterval       time.Duration

	RedisURL       string
	Mikrotik       mikrotik.Config
	Mpesa          mpesa.Config
	BootstrapAdmin authapp.BootstrapAdmin
}

// Server owns every long-lived API resource.
type Server struct {
	cfg        Config
	store      *sqlite.Store
	redis      *redis.Client
	auth       *authapp.Service
	hub        *live.Hub
	health     *httpapi.Health
	grpc       *platformgrpc.HealthServer
	listener   net.Listener
	httpServer *http.Server
	serving    bool
	limiters   []*ratelimit.Limiter
}

// NewServer opens storage, builds services and binds both listeners.
// Nothing is served until ListenAndServe.
func NewServer(cfg Config) (*Server, error) {
	cfg = cfg.withDefaults()
	issuer, err := token.NewIssuer(token.Config{
		Secret:     cfg.SecretKey,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	})
	if err != nil {
		return nil, err
	}
	csrfKey, err := deriveKey(cfg.SecretKey, portalCSRFInfo)
	if err != nil {
		return nil, err
	}

	s := &Server{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	if s.store, err = sqlite.Open(cfg.DBPath); err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	var redisPing httpapi.PingFunc
	var supportPinger supportapp.Pinger
	if url := strings.TrimSpace(cfg.RedisURL); url != "" {
		opts, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		s.redis = redis.NewClient(opts)
		redisPing = func(ctx context.Context) error { return s.redis.Ping(ctx).Err() }
		supportPinger = supportapp.PingFunc(redisPing)
	}

	router := mikrotik.NewGateway(cfg.Mikrotik)
	reports := reportsapp.NewService(s.store, nil)
	s.hub = live.NewHub(func(ctx context.Context) (any, error) {
		overview, err := reports.Overview(ctx)
		if err != nil {
			return nil, err
		}
		return overview, nil
	}, cfg.LiveInterval, cfg.CORSOrigins)
	accounting := accountingapp.NewService(accountingapp.Config{Store: s.store, Router: router, Events: s.hub})
	billing := billingapp.NewService(billingapp.Config{
		Store:    s.store,
		Router:   router,
		Payments: mpesa.NewGateway(cfg.Mpesa),
		Events:   s.hub,
		Sessions: accounting,
		Locale:   cfg.Locale,
	})
	s.auth = authapp.NewService(s.store, issuer)
	articles, err := supportapp.LoadLibrary()
	if err != nil {
		return nil, fmt.Errorf("load help articles: %w", err)
	}
	s.health = httpapi.NewHealth(httpapi.HealthConfig{
		Environment: cfg.Environment,
		Version:     cfg.Version,
		Database:    s.store.Ping,
		Redis:       redisPing,
	})

	global := ratelimit.PerMinute(cfg.RateLimitPerMinute)
	authLimiter := ratelimit.PerMinute(authRequestsPerMinute)
	s.limiters = append(s.limiters, global, authLimiter)

	mux := http.NewServeMux()
	httpapi.Register(mux, httpapi.Deps{
		Auth:          s.auth,
		Billing:       billing,
		Accounting:    accounting,
		Network:       networkapp.NewService(s.store, router),
		Reports:       reports,
		Notifications: notificationsapp.NewService(s.store, s.hub),
		Support:       supportapp.NewService(s.store, supportPinger),
		Articles:      articles,
		Settings:      s.store,
		Live:          s.hub,
		Health:        s.health,
		AuthLimiter:   authLimiter,
	})
	portal.NewHandler(portal.Config{
		Billing:      billing,
		Settings:     s.store,
		CSRFKey:      csrfKey,
		SecureCookie: cfg.SecureCookies,
		Locale:       cfg.Locale,
	}).Routes(mux)

	handler := httpx.Chain(mux,
		httpx.RecoverPanic(),
		httpx.RequestID(),
		httpx.ProcessTime(),
		httpx.CORS(cfg.CORSOrigins),
		func(next http.Handler) http.Handler {
			return global.Middleware(next, httpapi.RateLimited)
		},
	)
	s.httpServer = &http.Server{
		Handler:           otelhttp.NewHandler(handler, "zmooth-api"),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	listener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.HTTPAddr, err)
	}
	s.listener = netutil.LimitListener(listener, cfg.MaxConnections)
	if s.grpc, err = platformgrpc.ListenHealth(cfg.GRPCAddr, HealthService); err != nil {
		return nil, err
	}
	ok = true
	return s, nil
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		c.HTTPAddr = defaultHTTPAddr
	}
	if strings.TrimSpace(c.GRPCAddr) == "" {
		c.GRPCAddr = defaultGRPCAddr
	}
	if strings.TrimSpace(c.DBPath) == "" {
		c.DBPath = defaultDBPath
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = defaultMaxConnections
	}
	return c
}

// deriveKey expands the application secret into a 32-byte purpose key.
func deriveKey(secret []byte, info string) ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", info, err)
	}
	return key, nil
}

// Addr returns the bound HTTP address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// GRPCAddr returns the bound gRPC health address.
func (s *Server) GRPCAddr() string {
	if s == nil {
		return ""
	}
	return s.grpc.Addr()
}

// ListenAndServe bootstraps the first super admin, marks the process ready
// and serves until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("api server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	created, err := s.auth.EnsureSuperAdmin(ctx, s.cfg.BootstrapAdmin)
	if err != nil {
		return fmt.Errorf("bootstrap super admin: %w", err)
	}
	if created {
		log.Printf("created super admin %s", s.cfg.BootstrapAdmin.Username)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.hub.Run(runCtx)
	grpcDone := make(chan error, 1)
	go func() {
		grpcDone <- s.grpc.Serve(runCtx)
	}()
	defer func() {
		cancel()
		if err := <-grpcDone; err != nil {
			log.Printf("gRPC health: %v", err)
		}
	}()

	serveErr := make(chan error, 1)
	s.serving = true
	log.Printf("API listening at %s", s.listener.Addr())
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()
	s.grpc.SetServing()
	s.health.MarkReady()

	select {
	case <-ctx.Done():
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), timeouts.Shutdown)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancelShutdown()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases storage, Redis and rate limiter resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	for _, limiter := range s.limiters {
		limiter.Stop()
	}
	if s.listener != nil && !s.serving {
		_ = s.listener.Close()
	}
	if s.grpc != nil && !s.serving {
		_ = s.grpc.Close()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			log.Printf("close redis client: %v", err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close sqlite store: %v", err)
		}
	}
}
