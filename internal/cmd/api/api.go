// Package api parses api command flags and launches the API server.
package api

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/zmooth/zmooth/internal/cmd/envcfg"
	entrypoint "github.com/zmooth/zmooth/internal/platform/cmd"
	platformgrpc "github.com/zmooth/zmooth/internal/platform/grpc"
	"github.com/zmooth/zmooth/internal/platform/timeouts"
	apiserver "github.com/zmooth/zmooth/internal/services/api/app"
	authapp "github.com/zmooth/zmooth/internal/services/auth/app"
	"github.com/zmooth/zmooth/internal/services/auth/token"
)

// Version is stamped at build time with -ldflags "-X".
var Version = "dev"

// Config holds api command configuration.
type Config struct {
	AppName            string        `env:"ZMOOTH_APP_NAME" envDefault:"zmooth"`
	Environment        string        `env:"ZMOOTH_ENVIRONMENT" envDefault:"development"`
	Debug              bool          `env:"ZMOOTH_DEBUG" envDefault:"false"`
	HTTPAddr           string        `env:"ZMOOTH_HTTP_ADDR" envDefault:":8080"`
	GRPCAddr           string        `env:"ZMOOTH_GRPC_ADDR" envDefault:":8081"`
	DBPath             string        `env:"ZMOOTH_DB_PATH" envDefault:"data/zmooth.db"`
	SecretKey          string        `env:"ZMOOTH_SECRET_KEY"`
	AccessTokenTTL     time.Duration `env:"ZMOOTH_ACCESS_TOKEN_TTL" envDefault:"30m"`
	RefreshTokenTTL    time.Duration `env:"ZMOOTH_REFRESH_TOKEN_TTL" envDefault:"168h"`
	CORSOrigins        []string      `env:"ZMOOTH_CORS_ORIGINS" envDefault:"http://localhost:5173" envSeparator:","`
	RateLimitPerMinute int           `env:"ZMOOTH_RATE_LIMIT_PER_MINUTE" envDefault:"60"`
	MaxConnections     int           `env:"ZMOOTH_MAX_CONNECTIONS" envDefault:"512"`
	RedisURL           string        `env:"ZMOOTH_REDIS_URL"`
	Locale             string        `env:"ZMOOTH_LOCALE" envDefault:"en-KE"`
	SecureCookies      bool          `env:"ZMOOTH_SECURE_COOKIES" envDefault:"false"`
	LiveInterval       time.Duration `env:"ZMOOTH_LIVE_INTERVAL" envDefault:"30s"`

	Mikrotik envcfg.Mikrotik `envPrefix:"ZMOOTH_MIKROTIK_"`
	Mpesa    envcfg.Mpesa    `envPrefix:"ZMOOTH_MPESA_"`

	BootstrapAdminUsername string `env:"ZMOOTH_BOOTSTRAP_ADMIN_USERNAME"`
	BootstrapAdminEmail    string `env:"ZMOOTH_BOOTSTRAP_ADMIN_EMAIL"`
	BootstrapAdminPassword string `env:"ZMOOTH_BOOTSTRAP_ADMIN_PASSWORD"`

	// Healthcheck probes a running API's gRPC health listener and exits.
	Healthcheck bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "gRPC health listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.Environment, "env", cfg.Environment, "Deployment environment name")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Log source file and line")
	fs.BoolVar(&cfg.Healthcheck, "healthcheck", false, "Probe the gRPC health listener and exit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if cfg.Healthcheck {
		return cfg, nil
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if len(strings.TrimSpace(c.SecretKey)) < token.MinSecretLength {
		return fmt.Errorf("ZMOOTH_SECRET_KEY must be at least %d bytes", token.MinSecretLength)
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	return nil
}

// Run starts the API server.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Healthcheck {
		probeCtx, cancel := context.WithTimeout(ctx, timeouts.HealthProbe)
		defer cancel()
		return platformgrpc.Probe(probeCtx, cfg.GRPCAddr, apiserver.HealthService)
	}
	if cfg.Debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceAPI, func(ctx context.Context) error {
		server, err := apiserver.NewServer(apiserver.Config{
			HTTPAddr:           cfg.HTTPAddr,
			GRPCAddr:           cfg.GRPCAddr,
			DBPath:             cfg.DBPath,
			Environment:        cfg.Environment,
			Version:            Version,
			Locale:             cfg.Locale,
			SecretKey:          []byte(strings.TrimSpace(cfg.SecretKey)),
			AccessTokenTTL:     cfg.AccessTokenTTL,
			RefreshTokenTTL:    cfg.RefreshTokenTTL,
			CORSOrigins:        cfg.CORSOrigins,
			RateLimitPerMinute: cfg.RateLimitPerMinute,
			MaxConnections:     cfg.MaxConnections,
			SecureCookies:      cfg.SecureCookies,
			LiveInterval:       cfg.LiveInterval,
			RedisURL:           cfg.RedisURL,
			Mikrotik:           cfg.Mikrotik.Config(),
			Mpesa:              cfg.Mpesa.Config(),
			BootstrapAdmin: authapp.BootstrapAdmin{
				Username: cfg.BootstrapAdminUsername,
				Email:    cfg.BootstrapAdminEmail,
				Password: cfg.BootstrapAdminPassword,
			},
		})
		if err != nil {
			return fmt.Errorf("init %s api: %w", cfg.AppName, err)
		}
		defer server.Close()

		if err := server.ListenAndServe(ctx); err != nil {
			return fmt.Errorf("serve api: %w", err)
		}
		return nil
	})
}
