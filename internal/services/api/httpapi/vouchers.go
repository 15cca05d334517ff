package httpapi

import (
	"context"
	"net/http"

	"github.com/zmooth/zmooth/internal/platform/httpx"
	"github.com/zmooth/zmooth/internal/platform/requestctx"
	billingapp "github.com/zmooth/zmooth/internal/services/billing/app"
	billing "github.com/zmooth/zmooth/internal/services/billing/domain"
	"github.com/zmooth/zmooth/internal/storage"
)

func (h handlers) redeemVoucher(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Code string `json:"code"`
	}
	if !decode(w, r, &in) {
		return
	}
	res, err := h.Billing.RedeemVoucher(r.Context(), requestctx.UserIDFromContext(r.Context()), in.Code)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, redeemToView(res))
}

func (h handlers) generateVouchers(w http.ResponseWriter, r *http.Request) {
	var in billing.VoucherBatchInput
	if !decode(w, r, &in) {
		return
	}
	vouchers, err := h.Billing.GenerateVouchers(r.Context(), in)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	items := make([]voucherView, 0, len(vouchers))
	for _, v := range vouchers {
		items = append(items, voucherToView(v))
	}
	writeCreated(w, pageResponse[voucherView]{Items: items})
}

func (h handlers) listVouchers(w http.ResponseWriter, r *http.Request) {
	query, err := listQuery(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	page, err := h.Billing.ListVouchers(r.Context(), query)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writePage(w, page, voucherToView)
}

func (h handlers) voucherStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Billing.VoucherStats(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, stats)
}

func (h handlers) bulkVouchers(w http.ResponseWriter, r *http.Request) {
	h.serveBulk(w, r, bulkEndpoint{
		resource: "vouchers",
		allowed:  billingapp.VoucherBulkActions,
		apply:    h.Billing.BulkVouchers,
		export: func(ctx context.Context, ids []string) ([]byte, error) {
			return h.Billing.ExportVouchers(ctx, storage.ListQuery{IDs: ids})
		},
	})
}

func (h handlers) exportVouchers(w http.ResponseWriter, r *http.Request) {
	query, err := listQuery(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	body, err := h.Billing.ExportVouchers(r.Context(), query)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeCSV(w, "vouchers", h, body)
}

func (h handlers) generateCredentials(w http.ResponseWriter, _ *http.Request) {
	creds, err := h.Billing.GenerateCredentials()
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, creds)
}

func (h handlers) listAccessAccounts(w http.ResponseWriter, r *http.Request) {
	query, err := listQuery(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	page, err := h.Billing.ListAccessAccounts(r.Context(), query)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writePage(w, page, accessAccountToView)
}

func (h handlers) createAccessAccount(w http.ResponseWriter, r *http.Request) {
	var in billingapp.AccessInput
	if !decode(w, r, &in) {
		return
	}
	account, err := h.Billing.CreateAccessAccount(r.Context(), in)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeCreated(w, accessAccountToView(account))
}

func (h handlers) getAccessAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.Billing.GetAccessAccount(r.Context(), pathID(r, "accountID"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, accessAccountToView(account))
}

func (h handlers) updateAccessAccount(w http.ResponseWriter, r *http.Request) {
	var in billingapp.AccessInput
	if !decode(w, r, &in) {
		return
	}
	account, err := h.Billing.UpdateAccessAccount(r.Context(), pathID(r, "accountID"), in)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, accessAccountToView(account))
}

func (h handlers) deleteAccessAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.Billing.DeleteAccessAccount(r.Context(), pathID(r, "accountID")); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h handlers) bulkAccessAccounts(w http.ResponseWriter, r *http.Request) {
	h.serveBulk(w, r, bulkEndpoint{
		resource: "access-accounts",
		allowed:  billingapp.AccessBulkActions,
		apply:    h.Billing.BulkAccessAccounts,
		export: func(ctx context.Context, ids []string) ([]byte, error) {
			return h.Billing.ExportAccessAccounts(ctx, storage.ListQuery{IDs: ids})
		},
	})
}

func (h handlers) exportAccessAccounts(w http.ResponseWriter, r *http.Request) {
	query, err := listQuery(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	body, err := h.Billing.ExportAccessAccounts(r.Context(), query)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeCSV(w, "access-accounts", h, body)
}
