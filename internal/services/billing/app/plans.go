package app

import (
	"context"
	"errors"
	"log"
	"strconv"

	"github.com/zmooth/zmooth/internal/platform/bulk"
	"github.com/zmooth/zmooth/internal/platform/export"
	billing "github.com/zmooth/zmooth/internal/services/billing/domain"
	"github.com/zmooth/zmooth/internal/services/integrations/mikrotik"
	"github.com/zmooth/zmooth/internal/storage"
)

// PlanBulkActions are accepted by BulkPlans.
var PlanBulkActions = []bulk.Action{bulk.Activate, bulk.Deactivate, bulk.Delete, bulk.Export}

var planCSVHeader = []string{"Name", "Service", "Type", "Price", "Currency", "Data Limit (MB)", "Validity Days", "Validity Hours", "Speed", "Devices", "Profile", "Billing Cycle", "Active", "Featured"}

// ListPlans lists plans. Callers that are not admins must set ActiveOnly.
func (s *Service) ListPlans(ctx context.Context, query storage.PlanQuery) (storage.Page[billing.Plan], error) {
	return s.store.ListPlans(ctx, query)
}

// GetPlan loads one plan.
func (s *Service) GetPlan(ctx context.Context, planID string) (billing.Plan, error) {
	plan, err := s.store.GetPlan(ctx, planID)
	if errors.Is(err, storage.ErrNotFound) {
		return billing.Plan{}, billing.ErrPlanNotFound
	}
	return plan, err
}

// CreatePlan validates and stores a plan, then creates its router profile.
func (s *Service) CreatePlan(ctx context.Context, plan billing.Plan) (billing.Plan, error) {
	ctx, span := tracer.Start(ctx, "billing.CreatePlan")
	defer span.End()

	normalized, err := plan.Normalize()
	if err != nil {
		return billing.Plan{}, err
	}
	if _, err := s.store.GetPlanByName(ctx, normalized.Name); err == nil {
		return billing.Plan{}, billing.ErrPlanNameTaken
	} else if !errors.Is(err, storage.ErrNotFound) {
		return billing.Plan{}, err
	}
	if normalized.ID, err = s.newID("plan"); err != nil {
		return billing.Plan{}, err
	}
	now := s.now()
	normalized.CreatedAt = now
	normalized.UpdatedAt = now
	if err := s.store.PutPlan(ctx, normalized); err != nil {
		return billing.Plan{}, err
	}
	s.syncPlanProfile(ctx, normalized)
	s.audit.Record(ctx, "create", "plans", []string{normalized.ID}, normalized.Name)
	return normalized, nil
}

// UpdatePlan applies a partial update.
func (s *Service) UpdatePlan(ctx context.Context, planID string, patch billing.PlanPatch) (billing.Plan, error) {
	current, err := s.GetPlan(ctx, planID)
	if err != nil {
		return billing.Plan{}, err
	}
	updated, err := current.Apply(patch)
	if err != nil {
		return billing.Plan{}, err
	}
	if updated.Name != current.Name {
		if other, err := s.store.GetPlanByName(ctx, updated.Name); err == nil && other.ID != current.ID {
			return billing.Plan{}, billing.ErrPlanNameTaken
		} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return billing.Plan{}, err
		}
	}
	updated.UpdatedAt = s.now()
	if err := s.store.PutPlan(ctx, updated); err != nil {
		return billing.Plan{}, err
	}
	if updated.MikrotikProfile != current.MikrotikProfile || updated.RateLimit() != current.RateLimit() {
		s.syncPlanProfile(ctx, updated)
	}
	s.audit.Record(ctx, "update", "plans", []string{updated.ID}, updated.Name)
	return updated, nil
}

// DeletePlan removes one plan.
func (s *Service) DeletePlan(ctx context.Context, planID string) error {
	n, err := s.store.DeletePlans(ctx, []string{planID})
	if err != nil {
		return err
	}
	if n == 0 {
		return billing.ErrPlanNotFound
	}
	s.audit.Record(ctx, "delete", "plans", []string{planID}, "")
	return nil
}

// BulkPlans applies a non-export bulk action and returns the affected count.
func (s *Service) BulkPlans(ctx context.Context, action bulk.Action, ids []string) (int, error) {
	var (
		n   int
		err error
	)
	switch action {
	case bulk.Activate, bulk.Deactivate:
		n, err = s.store.SetPlansActive(ctx, ids, action == bulk.Activate, s.now())
	case bulk.Delete:
		n, err = s.store.DeletePlans(ctx, ids)
	default:
		return 0, unsupported(action)
	}
	if err != nil {
		return 0, err
	}
	s.audit.Record(ctx, string(action), "plans", ids, "")
	return n, nil
}

// ExportPlans renders matching plans as CSV.
func (s *Service) ExportPlans(ctx context.Context, query storage.PlanQuery) ([]byte, error) {
	list := func(ctx context.Context, q storage.ListQuery) (storage.Page[billing.Plan], error) {
		query.ListQuery = q
		return s.store.ListPlans(ctx, query)
	}
	return csvExport(ctx, query.ListQuery, list, planCSVHeader, func(p billing.Plan) []string {
		return []string{
			p.Name,
			string(p.Service),
			string(p.Type),
			p.Price.String(),
			p.Currency,
			strconv.FormatInt(p.DataLimitMB, 10),
			strconv.Itoa(p.ValidityDays),
			strconv.Itoa(p.ValidityHours),
			p.RateLimit(),
			strconv.Itoa(p.Devices),
			p.MikrotikProfile,
			string(p.BillingCycle),
			export.YesNo(p.IsActive),
			export.YesNo(p.IsFeatured),
		}
	})
}

// syncPlanProfile creates the router user profile for a plan that names one.
func (s *Service) syncPlanProfile(ctx context.Context, plan billing.Plan) {
	if plan.MikrotikProfile == "" {
		return
	}
	err := s.router.CreateUserProfile(ctx, mikrotik.Profile{
		Name:           plan.MikrotikProfile,
		RateLimit:      plan.RateLimit(),
		SessionTimeout: plan.SessionTimeout(),
		SharedUsers:    plan.Devices,
	})
	if err != nil {
		log.Printf("router profile %s for plan %s: %v", plan.MikrotikProfile, plan.ID, err)
	}
}
