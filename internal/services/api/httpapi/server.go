// Package httpapi serves the operator console and customer JSON API.
package httpapi

import (
	"net/http"
	"time"

	"github.com/zmooth/zmooth/internal/platform/branding"
	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/platform/httpx"
	"github.com/zmooth/zmooth/internal/platform/ratelimit"
	accountingapp "github.com/zmooth/zmooth/internal/services/accounting/app"
	"github.com/zmooth/zmooth/internal/services/api/routepath"
	authapp "github.com/zmooth/zmooth/internal/services/auth/app"
	billingapp "github.com/zmooth/zmooth/internal/services/billing/app"
	networkapp "github.com/zmooth/zmooth/internal/services/network/app"
	notificationsapp "github.com/zmooth/zmooth/internal/services/notifications/app"
	reportsapp "github.com/zmooth/zmooth/internal/services/reports/app"
	supportapp "github.com/zmooth/zmooth/internal/services/support/app"
)

// Deps are the services behind the API. Live and Health may be nil.
type Deps struct {
	Auth          *authapp.Service
	Billing       *billingapp.Service
	Accounting    *accountingapp.Service
	Network       *networkapp.Service
	Reports       *reportsapp.Service
	Notifications *notificationsapp.Service
	Support       *supportapp.Service
	Articles      *supportapp.Library
	Settings      branding.Store
	Live          http.Handler
	Health        *Health

	// AuthLimiter guards login and register on top of the global limiter.
	AuthLimiter *ratelimit.Limiter
	Clock       func() time.Time
}

type handlers struct {
	Deps
}

// Register mounts every API route on mux.
func Register(mux *http.ServeMux, deps Deps) {
	if mux == nil {
		return
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Health == nil {
		deps.Health = NewHealth(HealthConfig{})
	}
	registerRoutes(mux, handlers{Deps: deps})
}

func (h handlers) now() time.Time {
	return h.Clock().UTC()
}

func registerRoutes(mux *http.ServeMux, h handlers) {
	mux.HandleFunc(http.MethodGet+" "+routepath.Health, h.Health.handleHealth)
	mux.HandleFunc(http.MethodGet+" "+routepath.Ready, h.Health.handleReady)

	mux.Handle(http.MethodPost+" "+routepath.AuthRegister, h.strict(h.register))
	mux.Handle(http.MethodPost+" "+routepath.AuthLogin, h.strict(h.login))
	mux.HandleFunc(http.MethodPost+" "+routepath.AuthRefresh, h.refresh)
	mux.Handle(http.MethodGet+" "+routepath.AuthMe, h.authenticated(h.me))
	mux.Handle(http.MethodPost+" "+routepath.AuthChangePassword, h.authenticated(h.changePassword))

	mux.Handle(http.MethodGet+" "+routepath.Plans, h.optionalAuth(h.listPlans))
	mux.HandleFunc(http.MethodGet+" "+routepath.PlanPattern, h.getPlan)
	mux.Handle(http.MethodPost+" "+routepath.Plans, h.admin(h.createPlan))
	mux.Handle(http.MethodPatch+" "+routepath.PlanPattern, h.admin(h.updatePlan))
	mux.Handle(http.MethodDelete+" "+routepath.PlanPattern, h.admin(h.deletePlan))
	mux.Handle(http.MethodPost+" "+routepath.PlansBulk, h.admin(h.bulkPlans))
	mux.Handle(http.MethodGet+" "+routepath.PlansExport, h.admin(h.exportPlans))

	mux.Handle(http.MethodPost+" "+routepath.Purchase, h.authenticated(h.purchase))
	mux.Handle(http.MethodGet+" "+routepath.MyPlans, h.authenticated(h.myPlans))
	mux.Handle(http.MethodGet+" "+routepath.MyTransactions, h.authenticated(h.myTransactions))
	mux.Handle(http.MethodGet+" "+routepath.MyTransaction, h.authenticated(h.myTransaction))
	mux.Handle(http.MethodPost+" "+routepath.WalletTopUp, h.authenticated(h.topUp))
	mux.HandleFunc(http.MethodPost+" "+routepath.MpesaCallback, h.mpesaCallback)

	mux.Handle(http.MethodPost+" "+routepath.VouchersRedeem, h.authenticated(h.redeemVoucher))
	mux.Handle(http.MethodPost+" "+routepath.VouchersGenerate, h.admin(h.generateVouchers))
	mux.Handle(http.MethodGet+" "+routepath.Vouchers, h.admin(h.listVouchers))
	mux.Handle(http.MethodGet+" "+routepath.VouchersStats, h.admin(h.voucherStats))
	mux.Handle(http.MethodPost+" "+routepath.VouchersBulk, h.admin(h.bulkVouchers))
	mux.Handle(http.MethodGet+" "+routepath.VouchersExport, h.admin(h.exportVouchers))

	mux.Handle(http.MethodGet+" "+routepath.AccessAccounts, h.admin(h.listAccessAccounts))
	mux.Handle(http.MethodPost+" "+routepath.AccessAccounts, h.admin(h.createAccessAccount))
	mux.Handle(http.MethodGet+" "+routepath.AccessAccountsCredentials, h.admin(h.generateCredentials))
	mux.Handle(http.MethodGet+" "+routepath.AccessAccountPattern, h.admin(h.getAccessAccount))
	mux.Handle(http.MethodPut+" "+routepath.AccessAccountPattern, h.admin(h.updateAccessAccount))
	mux.Handle(http.MethodDelete+" "+routepath.AccessAccountPattern, h.admin(h.deleteAccessAccount))
	mux.Handle(http.MethodPost+" "+routepath.AccessAccountsBulk, h.admin(h.bulkAccessAccounts))
	mux.Handle(http.MethodGet+" "+routepath.AccessAccountsExport, h.admin(h.exportAccessAccounts))

	mux.Handle(http.MethodGet+" "+routepath.Invoices, h.admin(h.listInvoices))
	mux.Handle(http.MethodPost+" "+routepath.Invoices, h.admin(h.createInvoice))
	mux.Handle(http.MethodGet+" "+routepath.InvoicePattern, h.admin(h.getInvoice))
	mux.Handle(http.MethodPut+" "+routepath.InvoicePattern, h.admin(h.updateInvoice))
	mux.Handle(http.MethodDelete+" "+routepath.InvoicePattern, h.admin(h.deleteInvoice))
	mux.Handle(http.MethodPost+" "+routepath.InvoicePayPattern, h.authenticated(h.payInvoice))
	mux.Handle(http.MethodPost+" "+routepath.InvoiceMarkPaid, h.admin(h.markInvoicePaid))
	mux.Handle(http.MethodGet+" "+routepath.InvoicePrintPattern, h.admin(h.printInvoice))
	mux.Handle(http.MethodPost+" "+routepath.InvoicesBulk, h.admin(h.bulkInvoices))
	mux.Handle(http.MethodGet+" "+routepath.InvoicesExport, h.admin(h.exportInvoices))

	mux.Handle(http.MethodGet+" "+routepath.Subscriptions, h.admin(h.listSubscriptions))
	mux.Handle(http.MethodPost+" "+routepath.Subscriptions, h.admin(h.createSubscription))
	mux.Handle(http.MethodGet+" "+routepath.SubscriptionPattern, h.admin(h.getSubscription))
	mux.Handle(http.MethodPut+" "+routepath.SubscriptionPattern, h.admin(h.updateSubscription))
	mux.Handle(http.MethodDelete+" "+routepath.SubscriptionPattern, h.admin(h.deleteSubscription))
	mux.Handle(http.MethodPost+" "+routepath.SubscriptionsBulk, h.admin(h.bulkSubscriptions))
	mux.Handle(http.MethodGet+" "+routepath.SubscriptionsExport, h.admin(h.exportSubscriptions))
	mux.Handle(http.MethodPost+" "+routepath.BillingRun, h.admin(h.runBilling))
	mux.Handle(http.MethodPost+" "+routepath.ExpireRun, h.admin(h.runExpiry))

	mux.Handle(http.MethodGet+" "+routepath.Transactions, h.admin(h.listTransactions))
	mux.Handle(http.MethodGet+" "+routepath.TransactionPattern, h.admin(h.getTransaction))
	mux.Handle(http.MethodGet+" "+routepath.TransactionsExport, h.admin(h.exportTransactions))
	mux.Handle(http.MethodGet+" "+routepath.Balances, h.admin(h.listBalances))
	mux.Handle(http.MethodGet+" "+routepath.BalancesExport, h.admin(h.exportBalances))
	mux.Handle(http.MethodPost+" "+routepath.BalanceCreditPattern, h.admin(h.creditWallet))
	mux.Handle(http.MethodGet+" "+routepath.Clients, h.admin(h.listClients))
	mux.Handle(http.MethodPut+" "+routepath.ClientStatusPattern, h.admin(h.setClientStatus))
	mux.Handle(http.MethodPost+" "+routepath.ClientsBulk, h.admin(h.bulkClients))
	mux.Handle(http.MethodGet+" "+routepath.ClientsExport, h.admin(h.exportClients))

	mux.Handle(http.MethodPost+" "+routepath.AccountingStart, h.nasOrAdmin(h.accountingStart))
	mux.Handle(http.MethodPost+" "+routepath.AccountingInterim, h.nasOrAdmin(h.accountingInterim))
	mux.Handle(http.MethodPost+" "+routepath.AccountingStop, h.nasOrAdmin(h.accountingStop))
	mux.Handle(http.MethodGet+" "+routepath.Sessions, h.admin(h.listSessions))
	mux.Handle(http.MethodGet+" "+routepath.SessionsActiveCount, h.admin(h.activeSessionCount))
	mux.Handle(http.MethodPost+" "+routepath.SessionDisconnect, h.admin(h.disconnectSession))

	mux.Handle(http.MethodGet+" "+routepath.NetworkKind, h.admin(h.listRecords))
	mux.Handle(http.MethodPost+" "+routepath.NetworkKind, h.admin(h.createRecord))
	mux.Handle(http.MethodGet+" "+routepath.NetworkRecord, h.admin(h.getRecord))
	mux.Handle(http.MethodPut+" "+routepath.NetworkRecord, h.admin(h.updateRecord))
	mux.Handle(http.MethodDelete+" "+routepath.NetworkRecord, h.admin(h.deleteRecord))
	mux.Handle(http.MethodPost+" "+routepath.NetworkRecordSync, h.admin(h.syncRecord))
	mux.Handle(http.MethodPost+" "+routepath.NetworkBulk, h.admin(h.bulkRecords))
	mux.Handle(http.MethodGet+" "+routepath.NetworkExport, h.admin(h.exportRecords))

	mux.Handle(http.MethodGet+" "+routepath.ReportOverview, h.admin(h.overview))
	mux.Handle(http.MethodGet+" "+routepath.ReportSales, h.admin(h.salesReport))
	mux.Handle(http.MethodGet+" "+routepath.ReportDataUsage, h.admin(h.dataUsageReport))
	mux.Handle(http.MethodGet+" "+routepath.ReportTopUsers, h.admin(h.topUsersReport))
	mux.Handle(http.MethodGet+" "+routepath.ReportVouchers, h.admin(h.voucherStats))
	mux.Handle(http.MethodGet+" "+routepath.ReportFailedLogins, h.admin(h.failedLoginsReport))
	mux.Handle(http.MethodGet+" "+routepath.ReportSessions, h.admin(h.sessionLogsReport))
	mux.Handle(http.MethodGet+" "+routepath.ReportRouters, h.admin(h.routersReport))
	mux.Handle(http.MethodGet+" "+routepath.ReportFilePattern, h.admin(h.reportCSV))

	mux.Handle(http.MethodGet+" "+routepath.Notifications, h.authenticated(h.listNotifications))
	mux.Handle(http.MethodPost+" "+routepath.Notifications, h.admin(h.createNotification))
	mux.Handle(http.MethodPost+" "+routepath.NotificationsRead, h.authenticated(h.markNotificationsRead))
	if h.Live != nil {
		mux.Handle(http.MethodGet+" "+routepath.Live, h.admin(h.Live.ServeHTTP))
	}
	mux.Handle(http.MethodGet+" "+routepath.BrandingSettings, h.admin(h.getBranding))
	mux.Handle(http.MethodPut+" "+routepath.BrandingSettings, h.admin(h.putBranding))
	mux.Handle(http.MethodGet+" "+routepath.Admins, h.superAdmin(h.listAdmins))
	mux.Handle(http.MethodPost+" "+routepath.Admins, h.superAdmin(h.createAdmin))
	mux.Handle(http.MethodGet+" "+routepath.AuditLog, h.superAdmin(h.listAuditEvents))

	mux.HandleFunc(http.MethodGet+" "+routepath.SupportArticles, h.listArticles)
	mux.HandleFunc(http.MethodGet+" "+routepath.SupportArticlePattern, h.getArticle)
	mux.Handle(http.MethodPost+" "+routepath.SupportTickets, h.authenticated(h.createTicket))
	mux.Handle(http.MethodGet+" "+routepath.SupportTickets, h.authenticated(h.listTickets))
	mux.Handle(http.MethodGet+" "+routepath.SupportTicketPattern, h.authenticated(h.getTicket))
	mux.Handle(http.MethodPut+" "+routepath.SupportTicketStatus, h.admin(h.updateTicketStatus))
	mux.Handle(http.MethodGet+" "+routepath.SupportTicketsExport, h.admin(h.exportTickets))
	mux.Handle(http.MethodGet+" "+routepath.SupportStatus, h.admin(h.systemStatus))

	mux.HandleFunc(routepath.Prefix+"/", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteError(w, apperrors.New(apperrors.CodeNotFound, "Not Found"))
	})
}
