package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	platformgrpc "github.com/zmooth/zmooth/internal/platform/grpc"
	accountingapp "github.com/zmooth/zmooth/internal/services/accounting/app"
	billingapp "github.com/zmooth/zmooth/internal/services/billing/app"
	"github.com/zmooth/zmooth/internal/services/integrations/archive"
	"github.com/zmooth/zmooth/internal/services/integrations/mikrotik"
	"github.com/zmooth/zmooth/internal/services/integrations/mpesa"
	"github.com/zmooth/zmooth/internal/services/integrations/snmp"
	networkapp "github.com/zmooth/zmooth/internal/services/network/app"
	reportsapp "github.com/zmooth/zmooth/internal/services/reports/app"
	"github.com/zmooth/zmooth/internal/storage/sqlite"
)

// RuntimeConfig controls worker startup, dependencies, and loop behavior.
type RuntimeConfig struct {
	GRPCAddr             string
	DBPath               string
	Locale               string
	SessionCheckInterval time.Duration
	MaxAttempts          int
	RetryBackoff         time.Duration
	RetryMaxDelay        time.Duration
	Mikrotik             mikrotik.Config
	Mpesa                mpesa.Config
	Archive              archive.Config
	SNMP                 snmp.Config
}

const (
	defaultWorkerGRPCAddr = ":8091"
	defaultWorkerDB       = "data/zmooth.db"
)

// HealthService is the gRPC health service name the worker reports.
const HealthService = "zmooth.worker"

// Run opens the shared database, starts the gRPC health listener and runs
// the job scheduler until ctx ends.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if strings.TrimSpace(cfg.GRPCAddr) == "" {
		cfg.GRPCAddr = defaultWorkerGRPCAddr
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultWorkerDB
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open sqlite store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close sqlite store: %v", closeErr)
		}
	}()

	archiver, err := archive.New(cfg.Archive)
	if err != nil {
		return err
	}
	router := mikrotik.NewGateway(cfg.Mikrotik)
	accounting := accountingapp.NewService(accountingapp.Config{Store: store, Router: router})
	billing := billingapp.NewService(billingapp.Config{
		Store:    store,
		Router:   router,
		Payments: mpesa.NewGateway(cfg.Mpesa),
		Sessions: accounting,
		Locale:   cfg.Locale,
	})
	jobs := Jobs(Services{
		Billing:  billing,
		Network:  networkapp.NewService(store, router),
		Reports:  reportsapp.NewService(store, nil),
		Poller:   snmp.NewClient(cfg.SNMP),
		Archiver: archiver,
	}, Intervals{Expire: cfg.SessionCheckInterval})

	scheduler, err := NewScheduler(store, jobs, Config{
		MaxAttempts:   cfg.MaxAttempts,
		RetryBackoff:  cfg.RetryBackoff,
		RetryMaxDelay: cfg.RetryMaxDelay,
	})
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}

	health, err := platformgrpc.ListenHealth(cfg.GRPCAddr, HealthService)
	if err != nil {
		return err
	}
	healthCtx, stopHealth := context.WithCancel(context.WithoutCancel(ctx))
	healthDone := make(chan error, 1)
	go func() {
		healthDone <- health.Serve(healthCtx)
	}()
	defer func() {
		stopHealth()
		if err := <-healthDone; err != nil {
			log.Printf("gRPC health: %v", err)
		}
	}()
	health.SetServing()

	log.Printf("worker running %d job(s)", len(jobs))
	return scheduler.Run(ctx)
}
