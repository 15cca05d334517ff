package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/zmooth/zmooth/internal/platform/httpx"
	billingapp "github.com/zmooth/zmooth/internal/services/billing/app"
	billing "github.com/zmooth/zmooth/internal/services/billing/domain"
	"github.com/zmooth/zmooth/internal/storage"
)

// planQuery reads the list parameters. Only admins may list inactive plans.
func planQuery(r *http.Request) (storage.PlanQuery, error) {
	base, err := listQuery(r)
	if err != nil {
		return storage.PlanQuery{}, err
	}
	activeOnly, err := boolParam(r, "active_only", true)
	if err != nil {
		return storage.PlanQuery{}, err
	}
	if !isAdmin(r) {
		activeOnly = true
	}
	return storage.PlanQuery{
		ListQuery:  base,
		ActiveOnly: activeOnly,
		Service:    billing.Service(strings.TrimSpace(r.URL.Query().Get("service"))),
	}, nil
}

func (h handlers) listPlans(w http.ResponseWriter, r *http.Request) {
	query, err := planQuery(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	page, err := h.Billing.ListPlans(r.Context(), query)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writePage(w, page, planToView)
}

func (h handlers) getPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.Billing.GetPlan(r.Context(), pathID(r, "planID"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, planToView(plan))
}

func (h handlers) createPlan(w http.ResponseWriter, r *http.Request) {
	var in planInput
	if !decode(w, r, &in) {
		return
	}
	plan, err := h.Billing.CreatePlan(r.Context(), in.plan())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeCreated(w, planToView(plan))
}

func (h handlers) updatePlan(w http.ResponseWriter, r *http.Request) {
	var patch billing.PlanPatch
	if !decode(w, r, &patch) {
		return
	}
	plan, err := h.Billing.UpdatePlan(r.Context(), pathID(r, "planID"), patch)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, planToView(plan))
}

func (h handlers) deletePlan(w http.ResponseWriter, r *http.Request) {
	if err := h.Billing.DeletePlan(r.Context(), pathID(r, "planID")); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h handlers) bulkPlans(w http.ResponseWriter, r *http.Request) {
	h.serveBulk(w, r, bulkEndpoint{
		resource: "plans",
		allowed:  billingapp.PlanBulkActions,
		apply:    h.Billing.BulkPlans,
		export: func(ctx context.Context, ids []string) ([]byte, error) {
			return h.Billing.ExportPlans(ctx, storage.PlanQuery{ListQuery: storage.ListQuery{IDs: ids}})
		},
	})
}

func (h handlers) exportPlans(w http.ResponseWriter, r *http.Request) {
	query, err := planQuery(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if query.ActiveOnly, err = boolParam(r, "active_only", false); err != nil {
		httpx.WriteError(w, err)
		return
	}
	body, err := h.Billing.ExportPlans(r.Context(), query)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeCSV(w, "plans", h, body)
}
