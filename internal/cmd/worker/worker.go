// Package worker parses worker command flags and launches the worker runtime.
package worker

import (
	"context"
	"flag"
	"time"

	"github.com/zmooth/zmooth/internal/cmd/envcfg"
	entrypoint "github.com/zmooth/zmooth/internal/platform/cmd"
	platformgrpc "github.com/zmooth/zmooth/internal/platform/grpc"
	"github.com/zmooth/zmooth/internal/platform/timeouts"
	workerserver "github.com/zmooth/zmooth/internal/services/worker/app"
)

// Config holds worker command configuration.
type Config struct {
	GRPCAddr             string        `env:"ZMOOTH_WORKER_GRPC_ADDR" envDefault:":8091"`
	DBPath               string        `env:"ZMOOTH_DB_PATH" envDefault:"data/zmooth.db"`
	Locale               string        `env:"ZMOOTH_LOCALE" envDefault:"en-KE"`
	SessionCheckInterval time.Duration `env:"ZMOOTH_SESSION_CHECK_INTERVAL" envDefault:"5m"`
	MaxAttempts          int           `env:"ZMOOTH_WORKER_MAX_ATTEMPTS" envDefault:"5"`
	RetryBackoff         time.Duration `env:"ZMOOTH_WORKER_RETRY_BACKOFF" envDefault:"5s"`
	RetryMaxDelay        time.Duration `env:"ZMOOTH_WORKER_RETRY_MAX_DELAY" envDefault:"5m"`

	Mikrotik envcfg.Mikrotik `envPrefix:"ZMOOTH_MIKROTIK_"`
	Mpesa    envcfg.Mpesa    `envPrefix:"ZMOOTH_MPESA_"`
	Archive  envcfg.Archive  `envPrefix:"ZMOOTH_ARCHIVE_"`
	SNMP     envcfg.SNMP     `envPrefix:"ZMOOTH_SNMP_"`

	// Healthcheck probes a running worker's gRPC health listener and exits.
	Healthcheck bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "The worker health gRPC listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The SQLite database path")
	fs.DurationVar(&cfg.SessionCheckInterval, "session-check-interval", cfg.SessionCheckInterval, "Plan expiry sweep interval")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Maximum attempts per job run")
	fs.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Base retry backoff delay")
	fs.DurationVar(&cfg.RetryMaxDelay, "retry-max-delay", cfg.RetryMaxDelay, "Maximum retry delay")
	fs.BoolVar(&cfg.Healthcheck, "healthcheck", false, "Probe the gRPC health listener and exit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the worker runtime.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Healthcheck {
		probeCtx, cancel := context.WithTimeout(ctx, timeouts.HealthProbe)
		defer cancel()
		return platformgrpc.Probe(probeCtx, cfg.GRPCAddr, workerserver.HealthService)
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceWorker, func(context.Context) error {
		return workerserver.Run(ctx, workerserver.RuntimeConfig{
			GRPCAddr:             cfg.GRPCAddr,
			DBPath:               cfg.DBPath,
			Locale:               cfg.Locale,
			SessionCheckInterval: cfg.SessionCheckInterval,
			MaxAttempts:          cfg.MaxAttempts,
			RetryBackoff:         cfg.RetryBackoff,
			RetryMaxDelay:        cfg.RetryMaxDelay,
			Mikrotik:             cfg.Mikrotik.Config(),
			Mpesa:                cfg.Mpesa.Config(),
			Archive:              cfg.Archive.Config(),
			SNMP:                 cfg.SNMP.Config(),
		})
	})
}
