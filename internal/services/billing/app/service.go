package app

import (
	"context"
	"fmt"
	"time"

	"github.com/zmooth/zmooth/internal/platform/export"
	"github.com/zmooth/zmooth/internal/platform/id"
	"github.com/zmooth/zmooth/internal/platform/money"
	"github.com/zmooth/zmooth/internal/platform/otel"
	"github.com/zmooth/zmooth/internal/platform/requestctx"
	"github.com/zmooth/zmooth/internal/services/integrations/mikrotik"
	"github.com/zmooth/zmooth/internal/services/integrations/mpesa"
	"github.com/zmooth/zmooth/internal/services/shared/audit"
	"github.com/zmooth/zmooth/internal/services/shared/events"
	"github.com/zmooth/zmooth/internal/storage"
)

var tracer = otel.Tracer("zmooth/billing")

// Config wires the billing service.
type Config struct {
	Store    storage.Store
	Router   mikrotik.Gateway
	Payments mpesa.Gateway
	Events   events.Publisher
	// Sessions is told when a customer's last plan expires.
	Sessions SessionTerminator
	// Locale formats printed amounts, e.g. "en-KE".
	Locale string
	Clock  func() time.Time
}

// Service owns billing operations.
type Service struct {
	store       storage.Store
	router      mikrotik.Gateway
	payments    mpesa.Gateway
	events      events.Publisher
	sessions    SessionTerminator
	audit       audit.Recorder
	formatter   money.Formatter
	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewService applies defaults to cfg. Missing integrations are disabled.
func NewService(cfg Config) *Service {
	if cfg.Router == nil {
		cfg.Router = mikrotik.Disabled{}
	}
	if cfg.Payments == nil {
		cfg.Payments = mpesa.Disabled{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Service{
		store:       cfg.Store,
		router:      cfg.Router,
		payments:    cfg.Payments,
		events:      events.OrDiscard(cfg.Events),
		sessions:    cfg.Sessions,
		audit:       audit.NewRecorder(cfg.Store, cfg.Clock),
		formatter:   money.NewFormatter(cfg.Locale),
		clock:       cfg.Clock,
		idGenerator: id.NewID,
	}
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func (s *Service) newID(what string) (string, error) {
	value, err := s.idGenerator()
	if err != nil {
		return "", fmt.Errorf("generate %s id: %w", what, err)
	}
	return value, nil
}

// callerID is the authenticated user behind ctx, empty for system work.
func callerID(ctx context.Context) string {
	return requestctx.UserIDFromContext(ctx)
}

func (s *Service) publish(eventType string, data any) {
	s.events.Publish(events.Event{Type: eventType, Data: data, At: s.now()})
}

// csvExport renders rows collected from list into a CSV attachment body.
func csvExport[T any](ctx context.Context, query storage.ListQuery, list func(context.Context, storage.ListQuery) (storage.Page[T], error), header []string, row func(T) []string) ([]byte, error) {
	items, err := storage.Collect(ctx, query, list)
	if err != nil {
		return nil, err
	}
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, row(item))
	}
	return export.CSV(header, rows)
}
