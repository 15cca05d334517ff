// Package routepath stores canonical HTTP paths for the JSON API.
package routepath

const (
	Health = "/health"
	Ready  = "/ready"

	Prefix = "/api/v1"

	AuthRegister       = Prefix + "/auth/register"
	AuthLogin          = Prefix + "/auth/login"
	AuthRefresh        = Prefix + "/auth/refresh"
	AuthMe             = Prefix + "/auth/me"
	AuthChangePassword = Prefix + "/auth/change-password"

	Plans       = Prefix + "/plans"
	PlanPattern = Plans + "/{planID}"
	PlansBulk   = Plans + "/bulk"
	PlansExport = Plans + "/export"

	Purchase       = Prefix + "/purchase"
	MyPlans        = Prefix + "/me/plans"
	MyTransactions = Prefix + "/me/transactions"
	MyTransaction  = MyTransactions + "/{transactionID}"
	WalletTopUp    = Prefix + "/wallet/topup"
	MpesaCallback  = Prefix + "/payments/mpesa/callback"

	Vouchers         = Prefix + "/vouchers"
	VouchersGenerate = Vouchers + "/generate"
	VouchersRedeem   = Vouchers + "/redeem"
	VouchersStats    = Vouchers + "/stats"
	VouchersBulk     = Vouchers + "/bulk"
	VouchersExport   = Vouchers + "/export"

	AccessAccounts            = Prefix + "/access-accounts"
	AccessAccountPattern      = AccessAccounts + "/{accountID}"
	AccessAccountsCredentials = AccessAccounts + "/credentials"
	AccessAccountsBulk        = AccessAccounts + "/bulk"
	AccessAccountsExport      = AccessAccounts + "/export"

	Invoices              = Prefix + "/invoices"
	InvoicePattern        = Invoices + "/{invoiceID}"
	InvoicePayPattern     = InvoicePattern + "/pay"
	InvoiceMarkPaid       = InvoicePattern + "/mark-paid"
	InvoicePrintPattern   = InvoicePattern + "/print"
	InvoicesBulk          = Invoices + "/bulk"
	InvoicesExport        = Invoices + "/export"
	Subscriptions         = Prefix + "/subscriptions"
	SubscriptionPattern   = Subscriptions + "/{subscriptionID}"
	SubscriptionsBulk     = Subscriptions + "/bulk"
	SubscriptionsExport   = Subscriptions + "/export"
	BillingRun            = Prefix + "/admin/billing/run"
	ExpireRun             = Prefix + "/admin/expire/run"
	Transactions          = Prefix + "/transactions"
	TransactionPattern    = Transactions + "/{transactionID}"
	TransactionsExport    = Transactions + "/export"
	Balances              = Prefix + "/balances"
	BalancesExport        = Balances + "/export"
	BalanceCreditPattern  = Balances + "/{userID}/credit"
	Clients               = Prefix + "/clients"
	ClientStatusPattern   = Clients + "/{userID}/status"
	ClientsBulk           = Clients + "/bulk"
	ClientsExport         = Clients + "/export"
	AccountingStart       = Prefix + "/accounting/start"
	AccountingInterim     = Prefix + "/accounting/interim"
	AccountingStop        = Prefix + "/accounting/stop"
	Sessions              = Prefix + "/sessions"
	SessionsActiveCount   = Sessions + "/active-count"
	SessionDisconnect     = Sessions + "/{sessionID}/disconnect"
	NetworkKind           = Prefix + "/network/{kind}"
	NetworkRecord         = NetworkKind + "/{recordID}"
	NetworkRecordSync     = NetworkRecord + "/sync"
	NetworkBulk           = NetworkKind + "/bulk"
	NetworkExport         = NetworkKind + "/export"
	Reports               = Prefix + "/reports"
	ReportOverview        = Reports + "/overview"
	ReportSales           = Reports + "/sales"
	ReportDataUsage       = Reports + "/data-usage"
	ReportTopUsers        = Reports + "/top-users"
	ReportVouchers        = Reports + "/vouchers"
	ReportFailedLogins    = Reports + "/failed-logins"
	ReportSessions        = Reports + "/sessions"
	ReportRouters         = Reports + "/routers"
	ReportFilePattern     = Reports + "/{file}"
	Notifications         = Prefix + "/notifications"
	NotificationsRead     = Notifications + "/read"
	Live                  = Prefix + "/admin/live"
	BrandingSettings      = Prefix + "/admin/settings/branding"
	Admins                = Prefix + "/admin/admins"
	AuditLog              = Prefix + "/admin/audit"
	SupportArticles       = Prefix + "/support/articles"
	SupportArticlePattern = SupportArticles + "/{slug}"
	SupportTickets        = Prefix + "/support/tickets"
	SupportTicketPattern  = SupportTickets + "/{ticketID}"
	SupportTicketStatus   = SupportTicketPattern + "/status"
	SupportTicketsExport  = SupportTickets + "/export"
	SupportStatus         = Prefix + "/support/status"
)
