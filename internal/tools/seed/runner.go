package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/zmooth/zmooth/internal/platform/money"
	authapp "github.com/zmooth/zmooth/internal/services/auth/app"
	billing "github.com/zmooth/zmooth/internal/services/billing/domain"
	"github.com/zmooth/zmooth/internal/services/billing/cycle"
	networkapp "github.com/zmooth/zmooth/internal/services/network/app"
	network "github.com/zmooth/zmooth/internal/services/network/domain"
	"github.com/zmooth/zmooth/internal/storage"
)

// Lookup finds existing catalog entries.
type Lookup interface {
	GetPlanByName(ctx context.Context, name string) (billing.Plan, error)
	ListAllRecords(ctx context.Context, kind network.Kind, activeOnly bool) ([]network.Record, error)
}

// Admins bootstraps the super admin.
type Admins interface {
	EnsureSuperAdmin(ctx context.Context, in authapp.BootstrapAdmin) (bool, error)
}

// Billing creates plans and voucher batches.
type Billing interface {
	CreatePlan(ctx context.Context, plan billing.Plan) (billing.Plan, error)
	GenerateVouchers(ctx context.Context, in billing.VoucherBatchInput) ([]billing.Voucher, error)
	VoucherStats(ctx context.Context) (billing.VoucherStats, error)
}

// Records creates network records.
type Records interface {
	Create(ctx context.Context, kind network.Kind, in networkapp.Input) (network.Record, error)
}

// Runner applies a catalog through the application services so every entry
// goes through the same validation as the API.
type Runner struct {
	Lookup  Lookup
	Admins  Admins
	Billing Billing
	Records Records
}

// Summary counts what a run created and skipped.
type Summary struct {
	AdminCreated    bool `json:"admin_created"`
	PlansCreated    int  `json:"plans_created"`
	PlansSkipped    int  `json:"plans_skipped"`
	RecordsCreated  int  `json:"records_created"`
	RecordsSkipped  int  `json:"records_skipped"`
	VouchersCreated int  `json:"vouchers_created"`
	BatchesSkipped  int  `json:"batches_skipped"`
}

// Apply loads every section in dependency order: admin, plans, network
// records, then vouchers that reference plans by name.
func (r Runner) Apply(ctx context.Context, catalog Catalog) (Summary, error) {
	var summary Summary
	if catalog.Admin != nil {
		created, err := r.Admins.EnsureSuperAdmin(ctx, authapp.BootstrapAdmin{
			Username: catalog.Admin.Username,
			Email:    catalog.Admin.Email,
			Password: catalog.Admin.Password,
		})
		if err != nil {
			return summary, fmt.Errorf("seed admin: %w", err)
		}
		summary.AdminCreated = created
	}
	if err := r.applyPlans(ctx, catalog.Plans, &summary); err != nil {
		return summary, err
	}
	if err := r.applyRecords(ctx, catalog.Network, &summary); err != nil {
		return summary, err
	}
	if err := r.applyVouchers(ctx, catalog.Vouchers, &summary); err != nil {
		return summary, err
	}
	return summary, nil
}

func (r Runner) applyPlans(ctx context.Context, plans []CatalogPlan, summary *Summary) error {
	for _, entry := range plans {
		name := strings.TrimSpace(entry.Name)
		if _, err := r.Lookup.GetPlanByName(ctx, name); err == nil {
			summary.PlansSkipped++
			continue
		} else if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("look up plan %s: %w", name, err)
		}
		plan, err := entry.plan()
		if err != nil {
			return fmt.Errorf("plan %s: %w", name, err)
		}
		if _, err := r.Billing.CreatePlan(ctx, plan); err != nil {
			return fmt.Errorf("create plan %s: %w", name, err)
		}
		summary.PlansCreated++
	}
	return nil
}

func (p CatalogPlan) plan() (billing.Plan, error) {
	price, err := money.Parse(p.Price)
	if err != nil {
		return billing.Plan{}, err
	}
	return billing.Plan{
		Name:          p.Name,
		Description:   p.Description,
		Service:       billing.Service(p.Service),
		Type:          billing.PlanType(p.Type),
		Price:         price,
		Currency:      p.Currency,
		DataLimitMB:   p.DataLimitMB,
		ValidityDays:  p.ValidityDays,
		ValidityHours: p.ValidityHours,
		DownloadKbps:  p.DownloadKbps,
		UploadKbps:    p.UploadKbps,
		Devices:       p.Devices,
		BillingCycle:  cycle.Cycle(p.BillingCycle),
		IsActive:      true,
		IsFeatured:    p.Featured,
		SortOrder:     p.SortOrder,
	}, nil
}

func (r Runner) applyRecords(ctx context.Context, records []CatalogRecord, summary *Summary) error {
	existing := make(map[network.Kind]map[string]struct{})
	for _, entry := range records {
		kind, err := network.ParseKind(entry.Kind)
		if err != nil {
			return fmt.Errorf("network record %s: %w", entry.Name, err)
		}
		names, ok := existing[kind]
		if !ok {
			current, err := r.Lookup.ListAllRecords(ctx, kind, false)
			if err != nil {
				return fmt.Errorf("list %s records: %w", kind, err)
			}
			names = make(map[string]struct{}, len(current))
			for _, record := range current {
				names[record.Name] = struct{}{}
			}
			existing[kind] = names
		}
		name := strings.TrimSpace(entry.Name)
		if _, ok := names[name]; ok {
			summary.RecordsSkipped++
			continue
		}
		raw, err := json.Marshal(entry.Spec)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", kind, name, err)
		}
		spec, err := network.DecodeSpec(kind, raw)
		if err != nil {
			return fmt.Errorf("%s %s: %w", kind, name, err)
		}
		if _, err := r.Records.Create(ctx, kind, networkapp.Input{Name: name, Spec: spec}); err != nil {
			return fmt.Errorf("create %s %s: %w", kind, name, err)
		}
		names[name] = struct{}{}
		summary.RecordsCreated++
	}
	return nil
}

func (r Runner) applyVouchers(ctx context.Context, batches []CatalogBatch, summary *Summary) error {
	if len(batches) == 0 {
		return nil
	}
	stats, err := r.Billing.VoucherStats(ctx)
	if err != nil {
		return fmt.Errorf("load voucher stats: %w", err)
	}
	labels := make(map[string]struct{}, len(stats.ByBatch))
	for _, batch := range stats.ByBatch {
		labels[batch.Label] = struct{}{}
	}
	for _, batch := range batches {
		label := strings.TrimSpace(batch.Label)
		if _, ok := labels[label]; ok {
			summary.BatchesSkipped++
			continue
		}
		plan, err := r.Lookup.GetPlanByName(ctx, strings.TrimSpace(batch.Plan))
		if err != nil {
			return fmt.Errorf("voucher batch %s: plan %q: %w", label, batch.Plan, err)
		}
		vouchers, err := r.Billing.GenerateVouchers(ctx, billing.VoucherBatchInput{
			PlanID:   plan.ID,
			Count:    batch.Count,
			Validity: batch.Validity,
			Label:    label,
		})
		if err != nil {
			return fmt.Errorf("generate voucher batch %s: %w", label, err)
		}
		labels[label] = struct{}{}
		summary.VouchersCreated += len(vouchers)
	}
	return nil
}
