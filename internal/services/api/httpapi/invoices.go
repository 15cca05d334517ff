package httpapi

import (
	"context"
	"net/http"

	"github.com/zmooth/zmooth/internal/platform/httpx"
	"github.com/zmooth/zmooth/internal/platform/requestctx"
	billingapp "github.com/zmooth/zmooth/internal/services/billing/app"
	"github.com/zmooth/zmooth/internal/storage"
)

func (h handlers) listInvoices(w http.ResponseWriter, r *http.Request) {
	query, err := listQuery(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	page, err := h.Billing.ListInvoices(r.Context(), query)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writePage(w, page, invoiceToView)
}

func (h handlers) createInvoice(w http.ResponseWriter, r *http.Request) {
	var in billingapp.InvoiceInput
	if !decode(w, r, &in) {
		return
	}
	inv, err := h.Billing.CreateInvoice(r.Context(), in)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeCreated(w, invoiceToView(inv))
}

func (h handlers) getInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Billing.GetInvoice(r.Context(), pathID(r, "invoiceID"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, invoiceToView(inv))
}

func (h handlers) updateInvoice(w http.ResponseWriter, r *http.Request) {
	var in billingapp.InvoiceInput
	if !decode(w, r, &in) {
		return
	}
	inv, err := h.Billing.UpdateInvoice(r.Context(), pathID(r, "invoiceID"), in)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, invoiceToView(inv))
}

func (h handlers) deleteInvoice(w http.ResponseWriter, r *http.Request) {
	if err := h.Billing.DeleteInvoice(r.Context(), pathID(r, "invoiceID")); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type paidInvoiceView struct {
	Invoice     invoiceView      `json:"invoice"`
	Transaction *transactionView `json:"transaction,omitempty"`
}

func (h handlers) payInvoice(w http.ResponseWriter, r *http.Request) {
	inv, txn, err := h.Billing.PayInvoice(r.Context(), requestctx.UserIDFromContext(r.Context()), pathID(r, "invoiceID"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	view := transactionToView(txn)
	writeOK(w, paidInvoiceView{Invoice: invoiceToView(inv), Transaction: &view})
}

func (h handlers) markInvoicePaid(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Method string `json:"payment_method"`
	}
	if !decode(w, r, &in) {
		return
	}
	inv, err := h.Billing.MarkInvoicePaid(r.Context(), pathID(r, "invoiceID"), in.Method)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, paidInvoiceView{Invoice: invoiceToView(inv)})
}

func (h handlers) printInvoice(w http.ResponseWriter, r *http.Request) {
	filename, body, err := h.Billing.PrintInvoice(r.Context(), pathID(r, "invoiceID"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	_ = httpx.WriteAttachment(w, filename, "text/plain; charset=utf-8", body)
}

func (h handlers) bulkInvoices(w http.ResponseWriter, r *http.Request) {
	h.serveBulk(w, r, bulkEndpoint{
		resource: "invoices",
		allowed:  billingapp.InvoiceBulkActions,
		apply:    h.Billing.BulkInvoices,
		export: func(ctx context.Context, ids []string) ([]byte, error) {
			return h.Billing.ExportInvoices(ctx, storage.ListQuery{IDs: ids})
		},
	})
}

func (h handlers) exportInvoices(w http.ResponseWriter, r *http.Request) {
	query, err := listQuery(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	body, err := h.Billing.ExportInvoices(r.Context(), query)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeCSV(w, "invoices", h, body)
}

func (h handlers) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	query, err := listQuery(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	page, err := h.Billing.ListSubscriptions(r.Context(), query)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writePage(w, page, subscriptionToView)
}

func (h handlers) createSubscription(w http.ResponseWriter, r *http.Request) {
	var in billingapp.SubscriptionInput
	if !decode(w, r, &in) {
		return
	}
	sub, err := h.Billing.CreateSubscription(r.Context(), in)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeCreated(w, subscriptionToView(sub))
}

func (h handlers) getSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.Billing.GetSubscription(r.Context(), pathID(r, "subscriptionID"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, subscriptionToView(sub))
}

func (h handlers) updateSubscription(w http.ResponseWriter, r *http.Request) {
	var in billingapp.SubscriptionInput
	if !decode(w, r, &in) {
		return
	}
	sub, err := h.Billing.UpdateSubscription(r.Context(), pathID(r, "subscriptionID"), in)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, subscriptionToView(sub))
}

func (h handlers) deleteSubscription(w http.ResponseWriter, r *http.Request) {
	if err := h.Billing.DeleteSubscription(r.Context(), pathID(r, "subscriptionID")); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h handlers) bulkSubscriptions(w http.ResponseWriter, r *http.Request) {
	h.serveBulk(w, r, bulkEndpoint{
		resource: "subscriptions",
		allowed:  billingapp.SubscriptionBulkActions,
		apply:    h.Billing.BulkSubscriptions,
		export: func(ctx context.Context, ids []string) ([]byte, error) {
			return h.Billing.ExportSubscriptions(ctx, storage.ListQuery{IDs: ids})
		},
	})
}

func (h handlers) exportSubscriptions(w http.ResponseWriter, r *http.Request) {
	query, err := listQuery(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	body, err := h.Billing.ExportSubscriptions(r.Context(), query)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeCSV(w, "subscriptions", h, body)
}

func (h handlers) runBilling(w http.ResponseWriter, r *http.Request) {
	res, err := h.Billing.RunAutoBilling(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, res)
}

func (h handlers) runExpiry(w http.ResponseWriter, r *http.Request) {
	res, err := h.Billing.ExpireAll(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, res)
}
