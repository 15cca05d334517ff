package httpapi

import (
	"context"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/zmooth/zmooth/internal/platform/httpx"
	"github.com/zmooth/zmooth/internal/platform/money"
	"github.com/zmooth/zmooth/internal/platform/requestctx"
	"github.com/zmooth/zmooth/internal/services/auth/user"
	billingapp "github.com/zmooth/zmooth/internal/services/billing/app"
	"github.com/zmooth/zmooth/internal/storage"
)

func (h handlers) purchase(w http.ResponseWriter, r *http.Request) {
	var in billingapp.PurchaseInput
	if !decode(w, r, &in) {
		return
	}
	res, err := h.Billing.Purchase(r.Context(), requestctx.UserIDFromContext(r.Context()), in)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeCreated(w, purchaseToView(res))
}

func (h handlers) myPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.Billing.MyPlans(r.Context(), requestctx.UserIDFromContext(r.Context()))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeItems(w, plans, userPlanToView)
}

func (h handlers) myTransactions(w http.ResponseWriter, r *http.Request) {
	query, err := listQuery(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	page, err := h.Billing.ListTransactions(r.Context(), storage.TransactionQuery{
		ListQuery: query,
		UserID:    requestctx.UserIDFromContext(r.Context()),
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writePage(w, page, transactionToView)
}

func (h handlers) myTransaction(w http.ResponseWriter, r *http.Request) {
	txn, err := h.Billing.GetTransaction(r.Context(), requestctx.UserIDFromContext(r.Context()), pathID(r, "transactionID"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, transactionToView(txn))
}

func (h handlers) topUp(w http.ResponseWriter, r *http.Request) {
	var in billingapp.TopUpInput
	if !decode(w, r, &in) {
		return
	}
	res, err := h.Billing.TopUp(r.Context(), requestctx.UserIDFromContext(r.Context()), in)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeCreated(w, purchaseToView(res))
}

// mpesaCallback always acknowledges so Daraja stops retrying; settlement
// failures are logged.
func (h handlers) mpesaCallback(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, httpx.MaxBodyBytes))
	if err != nil {
		log.Printf("mpesa callback: read body: %v", err)
	} else if err := h.Billing.HandleMpesaCallback(r.Context(), payload); err != nil {
		log.Printf("mpesa callback: %v", err)
	}
	writeOK(w, map[string]any{"ResultCode": 0, "ResultDesc": "Accepted"})
}

func transactionQuery(r *http.Request) (storage.TransactionQuery, error) {
	base, err := listQuery(r)
	if err != nil {
		return storage.TransactionQuery{}, err
	}
	return storage.TransactionQuery{ListQuery: base, UserID: strings.TrimSpace(r.URL.Query().Get("user_id"))}, nil
}

func (h handlers) listTransactions(w http.ResponseWriter, r *http.Request) {
	query, err := transactionQuery(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	page, err := h.Billing.ListTransactions(r.Context(), query)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writePage(w, page, transactionToView)
}

func (h handlers) getTransaction(w http.ResponseWriter, r *http.Request) {
	txn, err := h.Billing.GetTransaction(r.Context(), "", pathID(r, "transactionID"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, transactionToView(txn))
}

func (h handlers) exportTransactions(w http.ResponseWriter, r *http.Request) {
	query, err := transactionQuery(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	body, err := h.Billing.ExportTransactions(r.Context(), query)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeCSV(w, "transactions", h, body)
}

func (h handlers) listBalances(w http.ResponseWriter, r *http.Request) {
	query, err := listQuery(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	page, err := h.Billing.ListBalances(r.Context(), query)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writePage(w, page, userToView)
}

func (h handlers) exportBalances(w http.ResponseWriter, r *http.Request) {
	query, err := listQuery(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	body, err := h.Billing.ExportBalances(r.Context(), query)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeCSV(w, "balances", h, body)
}

type creditView struct {
	Transaction transactionView `json:"transaction"`
	Balance     money.Amount    `json:"wallet_balance"`
}

func (h handlers) creditWallet(w http.ResponseWriter, r *http.Request) {
	var in billingapp.CreditInput
	if !decode(w, r, &in) {
		return
	}
	txn, balance, err := h.Billing.CreditWallet(r.Context(), pathID(r, "userID"), in)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeCreated(w, creditView{Transaction: transactionToView(txn), Balance: balance})
}

func clientStatus(r *http.Request) (user.Status, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("status"))
	if raw == "" {
		return "", nil
	}
	return user.ParseStatus(raw)
}

func (h handlers) listClients(w http.ResponseWriter, r *http.Request) {
	query, err := listQuery(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	status, err := clientStatus(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	page, err := h.Billing.ListClients(r.Context(), query, status)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writePage(w, page, userToView)
}

func (h handlers) setClientStatus(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Status string `json:"status"`
	}
	if !decode(w, r, &in) {
		return
	}
	updated, err := h.Billing.SetClientStatus(r.Context(), pathID(r, "userID"), in.Status)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, userToView(updated))
}

func (h handlers) bulkClients(w http.ResponseWriter, r *http.Request) {
	h.serveBulk(w, r, bulkEndpoint{
		resource: "clients",
		allowed:  billingapp.ClientBulkActions,
		apply:    h.Billing.BulkClients,
		export: func(ctx context.Context, ids []string) ([]byte, error) {
			return h.Billing.ExportClients(ctx, storage.ListQuery{IDs: ids}, "")
		},
	})
}

func (h handlers) exportClients(w http.ResponseWriter, r *http.Request) {
	query, err := listQuery(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	status, err := clientStatus(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	body, err := h.Billing.ExportClients(r.Context(), query, status)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeCSV(w, "clients", h, body)
}
