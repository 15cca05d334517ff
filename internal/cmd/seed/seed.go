// Package seed parses seed command flags and loads a catalog file.
package seed

import (
	"context"
	"errors"
	"flag"
	"io"
	"strings"

	entrypoint "github.com/zmooth/zmooth/internal/platform/cmd"
	"github.com/zmooth/zmooth/internal/tools/seed"
)

// Config holds seed command configuration.
type Config struct {
	File    string `env:"ZMOOTH_SEED_FILE"`
	DBPath  string `env:"ZMOOTH_DB_PATH" envDefault:"data/zmooth.db"`
	Verbose bool   `env:"ZMOOTH_SEED_VERBOSE"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.File, "file", cfg.File, "YAML catalog of plans, network records, vouchers and the super admin")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The SQLite database path")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "verbose output")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if strings.TrimSpace(cfg.File) == "" {
		return Config{}, errors.New("-file is required")
	}
	return cfg, nil
}

// Run loads the catalog and prints what was created.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSeed, func(ctx context.Context) error {
		return seed.Run(ctx, seed.Config{
			CatalogPath: cfg.File,
			DBPath:      cfg.DBPath,
			Verbose:     cfg.Verbose,
		}, out)
	})
}
