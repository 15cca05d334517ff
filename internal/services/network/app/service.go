package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zmooth/zmooth/internal/platform/bulk"
	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/platform/export"
	"github.com/zmooth/zmooth/internal/platform/id"
	"github.com/zmooth/zmooth/internal/platform/otel"
	"github.com/zmooth/zmooth/internal/services/integrations/mikrotik"
	network "github.com/zmooth/zmooth/internal/services/network/domain"
	"github.com/zmooth/zmooth/internal/services/shared/audit"
	"github.com/zmooth/zmooth/internal/storage"
)

var tracer = otel.Tracer("zmooth/network")

// BulkActions are accepted by Bulk for every kind.
var BulkActions = []bulk.Action{bulk.Activate, bulk.Deactivate, bulk.Delete, bulk.Export}

// Service manages configuration records.
type Service struct {
	store       storage.Store
	router      mikrotik.Gateway
	audit       audit.Recorder
	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewService builds the service. A nil router disables sync.
func NewService(store storage.Store, router mikrotik.Gateway) *Service {
	if router == nil {
		router = mikrotik.Disabled{}
	}
	return &Service{
		store:       store,
		router:      router,
		audit:       audit.NewRecorder(store, time.Now),
		clock:       time.Now,
		idGenerator: id.NewID,
	}
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

// Input creates or edits a record. A nil Active keeps the current value,
// and new records default to active; a nil Spec keeps the current body.
type Input struct {
	Name   string
	Active *bool
	Spec   network.Spec
}

// Create validates and stores a new record.
func (s *Service) Create(ctx context.Context, kind network.Kind, in Input) (network.Record, error) {
	record := network.Record{Kind: kind, Name: in.Name, Active: true, Spec: in.Spec}
	if in.Active != nil {
		record.Active = *in.Active
	}
	record, err := record.Normalize()
	if err != nil {
		return network.Record{}, err
	}
	if err := s.checkReferences(ctx, record); err != nil {
		return network.Record{}, err
	}
	recordID, err := s.idGenerator()
	if err != nil {
		return network.Record{}, fmt.Errorf("generate record id: %w", err)
	}
	record.ID = recordID
	record.CreatedAt = s.now()
	record.UpdatedAt = record.CreatedAt
	if err := s.store.PutRecord(ctx, record); err != nil {
		return network.Record{}, err
	}
	s.audit.Record(ctx, "create", string(kind), []string{record.ID}, record.Name)
	return record, nil
}

// Update edits a record.
func (s *Service) Update(ctx context.Context, kind network.Kind, recordID string, in Input) (network.Record, error) {
	current, err := s.Get(ctx, kind, recordID)
	if err != nil {
		return network.Record{}, err
	}
	updated := current
	if strings.TrimSpace(in.Name) != "" {
		updated.Name = in.Name
	}
	if in.Active != nil {
		updated.Active = *in.Active
	}
	if in.Spec != nil {
		updated.Spec = in.Spec
	}
	if router, ok := updated.Spec.(network.Router); ok && router.Status == "" {
		// The poller owns status; edits keep the last observed value.
		if prev, ok := current.Spec.(network.Router); ok {
			router.Status = prev.Status
			updated.Spec = router
		}
	}
	updated, err = updated.Normalize()
	if err != nil {
		return network.Record{}, err
	}
	if err := s.checkReferences(ctx, updated); err != nil {
		return network.Record{}, err
	}
	updated.UpdatedAt = s.now()
	if err := s.store.PutRecord(ctx, updated); err != nil {
		return network.Record{}, err
	}
	s.audit.Record(ctx, "update", string(kind), []string{updated.ID}, updated.Name)
	return updated, nil
}

// checkReferences validates cross-record links.
func (s *Service) checkReferences(ctx context.Context, record network.Record) error {
	limit, ok := record.Spec.(network.DeviceLimit)
	if !ok {
		return nil
	}
	if _, err := s.store.GetPlan(ctx, limit.PlanID); errors.Is(err, storage.ErrNotFound) {
		return apperrors.Invalid("plan_id", "plan not found")
	} else if err != nil {
		return err
	}
	return nil
}

// Get loads one record, filling derived fields.
func (s *Service) Get(ctx context.Context, kind network.Kind, recordID string) (network.Record, error) {
	record, err := s.store.GetRecord(ctx, kind, strings.TrimSpace(recordID))
	if errors.Is(err, storage.ErrNotFound) {
		return network.Record{}, network.ErrRecordNotFound
	}
	if err != nil {
		return network.Record{}, err
	}
	filled, err := s.fillUsage(ctx, []network.Record{record})
	if err != nil {
		return network.Record{}, err
	}
	return filled[0], nil
}

// List lists records of one kind.
func (s *Service) List(ctx context.Context, query storage.RecordQuery) (storage.Page[network.Record], error) {
	page, err := s.store.ListRecords(ctx, query)
	if err != nil {
		return storage.Page[network.Record]{}, err
	}
	page.Items, err = s.fillUsage(ctx, page.Items)
	return page, err
}

// fillUsage counts active framed IPs inside each IP pool.
func (s *Service) fillUsage(ctx context.Context, records []network.Record) ([]network.Record, error) {
	var ips []string
	loaded := false
	for i, record := range records {
		pool, ok := record.Spec.(network.IPPool)
		if !ok {
			continue
		}
		if !loaded {
			var err error
			if ips, err = s.store.ListActiveFramedIPs(ctx); err != nil {
				return nil, err
			}
			loaded = true
		}
		pool.UsedIPs = 0
		for _, ip := range ips {
			if pool.Contains(ip) {
				pool.UsedIPs++
			}
		}
		records[i].Spec = pool
	}
	return records, nil
}

// Delete removes one record.
func (s *Service) Delete(ctx context.Context, kind network.Kind, recordID string) error {
	n, err := s.store.DeleteRecords(ctx, kind, []string{recordID})
	if err != nil {
		return err
	}
	if n == 0 {
		return network.ErrRecordNotFound
	}
	s.audit.Record(ctx, "delete", string(kind), []string{recordID}, "")
	return nil
}

// Bulk activates, deactivates or deletes records of one kind.
func (s *Service) Bulk(ctx context.Context, kind network.Kind, action bulk.Action, ids []string) (int, error) {
	var (
		n   int
		err error
	)
	switch action {
	case bulk.Activate:
		n, err = s.store.SetRecordsActive(ctx, kind, ids, true, s.now())
	case bulk.Deactivate:
		n, err = s.store.SetRecordsActive(ctx, kind, ids, false, s.now())
	case bulk.Delete:
		n, err = s.store.DeleteRecords(ctx, kind, ids)
	default:
		return 0, apperrors.WithMetadata(apperrors.CodeUnsupportedAction, "unsupported bulk action "+string(action), map[string]string{"action": string(action)})
	}
	if err != nil {
		return 0, err
	}
	s.audit.Record(ctx, string(action), string(kind), ids, "")
	return n, nil
}

// Export renders matching records of one kind as CSV.
func (s *Service) Export(ctx context.Context, query storage.RecordQuery) ([]byte, error) {
	header, err := network.CSVHeader(query.Kind)
	if err != nil {
		return nil, err
	}
	list := func(ctx context.Context, q storage.ListQuery) (storage.Page[network.Record], error) {
		return s.List(ctx, storage.RecordQuery{ListQuery: q, Kind: query.Kind, ActiveOnly: query.ActiveOnly})
	}
	records, err := storage.Collect(ctx, query.ListQuery, list)
	if err != nil {
		return nil, err
	}
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, record.CSVRow())
	}
	return export.CSV(header, rows)
}
