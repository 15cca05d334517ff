package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	authapp "github.com/zmooth/zmooth/internal/services/auth/app"
	billingapp "github.com/zmooth/zmooth/internal/services/billing/app"
	networkapp "github.com/zmooth/zmooth/internal/services/network/app"
	"github.com/zmooth/zmooth/internal/storage/sqlite"
)

// Config selects the catalog and the database it is loaded into.
type Config struct {
	CatalogPath string
	DBPath      string
	Verbose     bool
}

// Run loads the catalog into the database and writes the summary to out.
// Router sync is disabled; records reach routers on their next edit.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	catalog, err := LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open sqlite store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("close sqlite store: %v", err)
		}
	}()

	runner := Runner{
		Lookup:  store,
		Admins:  authapp.NewService(store, nil),
		Billing: billingapp.NewService(billingapp.Config{Store: store}),
		Records: networkapp.NewService(store, nil),
	}
	summary, err := runner.Apply(ctx, catalog)
	if err != nil {
		return err
	}
	if cfg.Verbose {
		log.Printf("seeded %s into %s", cfg.CatalogPath, cfg.DBPath)
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(summary)
}
