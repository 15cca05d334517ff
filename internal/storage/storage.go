// Package storage defines the persistence contract shared by the API and the
// worker. Domain records come from the service domain packages; records that
// only exist to be stored (audit, notifications, tickets) are defined here.
package storage

import (
	"context"
	"time"

	"github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/platform/money"
	accounting "github.com/zmooth/zmooth/internal/services/accounting/domain"
	"github.com/zmooth/zmooth/internal/services/auth/user"
	billing "github.com/zmooth/zmooth/internal/services/billing/domain"
	network "github.com/zmooth/zmooth/internal/services/network/domain"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New(errors.CodeNotFound, "record not found")

// ListQuery is the common shape of list requests.
type ListQuery struct {
	// Query is a case-insensitive substring over the resource's search fields.
	Query string
	// Filter is an AIP-160 expression where the resource supports one.
	Filter string
	// IDs restricts the listing to a selection, e.g. for export.
	IDs       []string
	PageSize  int
	PageToken string
}

// Page is one page of a listing.
type Page[T any] struct {
	Items         []T
	NextPageToken string
}

// MaxPageSize caps a single list page.
const MaxPageSize = 200

// Collect follows page tokens from query until the listing is exhausted. It
// backs CSV exports, which cover every matching row rather than one page.
func Collect[T any](ctx context.Context, query ListQuery, list func(context.Context, ListQuery) (Page[T], error)) ([]T, error) {
	query.PageSize = MaxPageSize
	query.PageToken = ""
	var out []T
	for {
		page, err := list(ctx, query)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Items...)
		if page.NextPageToken == "" {
			return out, nil
		}
		query.PageToken = page.NextPageToken
	}
}

// UserQuery filters user listings.
type UserQuery struct {
	ListQuery
	Roles  []user.Role
	Status user.Status
}

// LoginAttempt records one authentication attempt.
type LoginAttempt struct {
	ID         string    `json:"id"`
	Identifier string    `json:"identifier"`
	UserID     string    `json:"user_id,omitempty"`
	IP         string    `json:"ip"`
	UserAgent  string    `json:"user_agent"`
	Success    bool      `json:"success"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// AuditEvent records an admin mutation.
type AuditEvent struct {
	ID        string    `json:"id"`
	ActorID   string    `json:"actor_id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	TargetIDs []string  `json:"target_ids"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// UserStore persists accounts and their sign-in history.
type UserStore interface {
	PutUser(ctx context.Context, u user.User) error
	GetUser(ctx context.Context, userID string) (user.User, error)
	GetUserByUsername(ctx context.Context, username string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
	GetUserByPhone(ctx context.Context, phone string) (user.User, error)
	ListUsers(ctx context.Context, query UserQuery) (Page[user.User], error)
	SetUsersStatus(ctx context.Context, ids []string, status user.Status, now time.Time) (int, error)
	DeleteUsers(ctx context.Context, ids []string) (int, error)
	// AdjustWallet adds delta to a wallet and returns the new balance. It
	// fails with ErrInsufficientBalance rather than going negative.
	AdjustWallet(ctx context.Context, userID string, delta money.Amount, now time.Time) (money.Amount, error)
	CountUsers(ctx context.Context, role user.Role) (total int, active int, err error)

	PutLoginAttempt(ctx context.Context, attempt LoginAttempt) error
	ListLoginAttempts(ctx context.Context, failedOnly bool, since time.Time, query ListQuery) (Page[LoginAttempt], error)

	PutAuditEvent(ctx context.Context, event AuditEvent) error
	ListAuditEvents(ctx context.Context, query ListQuery) (Page[AuditEvent], error)
}

// PlanQuery filters plan listings.
type PlanQuery struct {
	ListQuery
	ActiveOnly bool
	Service    billing.Service
}

// PlanStore persists plans and their activations.
type PlanStore interface {
	PutPlan(ctx context.Context, plan billing.Plan) error
	GetPlan(ctx context.Context, planID string) (billing.Plan, error)
	GetPlanByName(ctx context.Context, name string) (billing.Plan, error)
	ListPlans(ctx context.Context, query PlanQuery) (Page[billing.Plan], error)
	SetPlansActive(ctx context.Context, ids []string, active bool, now time.Time) (int, error)
	DeletePlans(ctx context.Context, ids []string) (int, error)

	PutUserPlan(ctx context.Context, up billing.UserPlan) error
	GetUserPlan(ctx context.Context, userPlanID string) (billing.UserPlan, error)
	// ListActiveUserPlans returns a user's active activations, newest first.
	ListActiveUserPlans(ctx context.Context, userID string) ([]billing.UserPlan, error)
	// ListExpiredUserPlans returns active activations with expires_at <= now.
	ListExpiredUserPlans(ctx context.Context, now time.Time) ([]billing.UserPlan, error)
	CountActiveUserPlans(ctx context.Context, now time.Time) (int, error)
	CountUserPlansExpiringBetween(ctx context.Context, from, to time.Time) (int, error)
}

// TransactionQuery filters transaction listings.
type TransactionQuery struct {
	ListQuery
	UserID string
}

// TransactionStore persists payments.
type TransactionStore interface {
	PutTransaction(ctx context.Context, txn billing.Transaction) error
	GetTransaction(ctx context.Context, transactionID string) (billing.Transaction, error)
	GetTransactionByProviderRef(ctx context.Context, providerRef string) (billing.Transaction, error)
	ListTransactions(ctx context.Context, query TransactionQuery) (Page[billing.Transaction], error)
	// ListPendingTransactions returns pending transactions of method created
	// before olderThan, oldest first.
	ListPendingTransactions(ctx context.Context, method billing.PaymentMethod, olderThan time.Time, limit int) ([]billing.Transaction, error)
}

// VoucherStore persists vouchers and router access accounts.
type VoucherStore interface {
	// PutVouchers inserts vouchers. A duplicate code fails with
	// CodeAlreadyExists and the offending code in metadata.
	PutVouchers(ctx context.Context, vouchers []billing.Voucher) error
	PutVoucher(ctx context.Context, voucher billing.Voucher) error
	GetVoucherByCode(ctx context.Context, code string) (billing.Voucher, error)
	VoucherCodeExists(ctx context.Context, code string) (bool, error)
	ListVouchers(ctx context.Context, query ListQuery) (Page[billing.Voucher], error)
	SetVouchersStatus(ctx context.Context, ids []string, status billing.VoucherStatus, now time.Time) (int, error)
	DeleteVouchers(ctx context.Context, ids []string) (int, error)
	ExpireVouchers(ctx context.Context, now time.Time) (int, error)
	VoucherStats(ctx context.Context) (billing.VoucherStats, error)

	PutAccessAccount(ctx context.Context, account billing.AccessAccount) error
	GetAccessAccount(ctx context.Context, accountID string) (billing.AccessAccount, error)
	ListAccessAccounts(ctx context.Context, query ListQuery) (Page[billing.AccessAccount], error)
	DeleteAccessAccounts(ctx context.Context, ids []string) (int, error)
	// ListExpiredAccessAccounts returns active accounts with expires_at <= now.
	ListExpiredAccessAccounts(ctx context.Context, now time.Time) ([]billing.AccessAccount, error)
}

// InvoiceStore persists invoices and auto-billing subscriptions.
type InvoiceStore interface {
	// CreateInvoice assigns the next INV-{year}-{seq} number and inserts.
	CreateInvoice(ctx context.Context, inv billing.Invoice) (billing.Invoice, error)
	PutInvoice(ctx context.Context, inv billing.Invoice) error
	GetInvoice(ctx context.Context, invoiceID string) (billing.Invoice, error)
	ListInvoices(ctx context.Context, query ListQuery) (Page[billing.Invoice], error)
	DeleteInvoices(ctx context.Context, ids []string) (int, error)
	// MarkInvoicesOverdue flips unpaid invoices past due to overdue.
	MarkInvoicesOverdue(ctx context.Context, now time.Time) (int, error)
	CountInvoicesByStatus(ctx context.Context) (map[billing.InvoiceStatus]int, error)

	PutSubscription(ctx context.Context, sub billing.Subscription) error
	GetSubscription(ctx context.Context, subscriptionID string) (billing.Subscription, error)
	ListSubscriptions(ctx context.Context, query ListQuery) (Page[billing.Subscription], error)
	DeleteSubscriptions(ctx context.Context, ids []string) (int, error)
	ListDueSubscriptions(ctx context.Context, now time.Time) ([]billing.Subscription, error)
}

// SessionQuery filters session listings.
type SessionQuery struct {
	ListQuery
	ActiveOnly bool
	UserID     string
	From       time.Time
	To         time.Time
}

// SessionStore persists accounting sessions.
type SessionStore interface {
	PutSession(ctx context.Context, session accounting.Session) error
	GetSessionBySessionID(ctx context.Context, sessionID string) (accounting.Session, error)
	ListSessions(ctx context.Context, query SessionQuery) (Page[accounting.Session], error)
	ListActiveSessionsByUser(ctx context.Context, userID string) ([]accounting.Session, error)
	CountActiveSessions(ctx context.Context) (int, error)
	ListActiveFramedIPs(ctx context.Context) ([]string, error)
}

// RecordQuery filters network record listings.
type RecordQuery struct {
	ListQuery
	Kind       network.Kind
	ActiveOnly bool
}

// RecordStore persists network configuration records.
type RecordStore interface {
	PutRecord(ctx context.Context, record network.Record) error
	GetRecord(ctx context.Context, kind network.Kind, recordID string) (network.Record, error)
	ListRecords(ctx context.Context, query RecordQuery) (Page[network.Record], error)
	// ListAllRecords returns every record of kind in listing order.
	ListAllRecords(ctx context.Context, kind network.Kind, activeOnly bool) ([]network.Record, error)
	SetRecordsActive(ctx context.Context, kind network.Kind, ids []string, active bool, now time.Time) (int, error)
	DeleteRecords(ctx context.Context, kind network.Kind, ids []string) (int, error)
}

// Notification audiences.
const (
	AudienceAll       = "all"
	AudienceAdmins    = "admins"
	AudienceCustomers = "customers"
)

// Notification is an operator broadcast.
type Notification struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Audience  string     `json:"audience"`
	Level     string     `json:"level"`
	CreatedBy string     `json:"created_by"`
	Read      bool       `json:"read"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

// Ticket statuses.
const (
	TicketOpen       = "open"
	TicketInProgress = "in_progress"
	TicketResolved   = "resolved"
	TicketClosed     = "closed"
)

// Ticket is a support request.
type Ticket struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	Priority  string    `json:"priority"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TicketQuery filters ticket listings.
type TicketQuery struct {
	ListQuery
	UserID string
	Status string
}

// RouterStatus is the latest poll of a router.
type RouterStatus struct {
	RouterID      string    `json:"router_id"`
	Name          string    `json:"name"`
	IP            string    `json:"ip"`
	Status        string    `json:"status"`
	SysName       string    `json:"sys_name,omitempty"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Error         string    `json:"error,omitempty"`
	PolledAt      time.Time `json:"polled_at"`
}

// JobRun is one worker job execution.
type JobRun struct {
	ID         string    `json:"id"`
	Job        string    `json:"job"`
	Outcome    string    `json:"outcome"`
	Attempt    int       `json:"attempt"`
	Error      string    `json:"error,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// OpsStore persists notifications, settings, tickets, router polls and job runs.
type OpsStore interface {
	PutNotification(ctx context.Context, n Notification) error
	ListNotifications(ctx context.Context, audiences []string, unreadOnly bool, query ListQuery) (Page[Notification], error)
	MarkNotificationsRead(ctx context.Context, ids []string, now time.Time) (int, error)

	GetSetting(ctx context.Context, key string) (string, error)
	PutSetting(ctx context.Context, key, value string, now time.Time) error

	PutTicket(ctx context.Context, ticket Ticket) error
	GetTicket(ctx context.Context, ticketID string) (Ticket, error)
	ListTickets(ctx context.Context, query TicketQuery) (Page[Ticket], error)

	PutRouterStatus(ctx context.Context, status RouterStatus) error
	ListRouterStatuses(ctx context.Context) ([]RouterStatus, error)

	PutJobRun(ctx context.Context, run JobRun) error
	ListJobRuns(ctx context.Context, job string, limit int) ([]JobRun, error)
	// LastJobRun returns the most recent run of job or ErrNotFound.
	LastJobRun(ctx context.Context, job string) (JobRun, error)
}

// DailySales is completed revenue for one day.
type DailySales struct {
	Day   string       `json:"day"`
	Count int          `json:"count"`
	Total money.Amount `json:"total"`
}

// UserUsage is data use for one user in a range.
type UserUsage struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Sessions int    `json:"sessions"`
	Bytes    int64  `json:"bytes"`
}

// UserSpend is completed spend for one user in a range.
type UserSpend struct {
	UserID       string       `json:"user_id"`
	Username     string       `json:"username"`
	Transactions int          `json:"transactions"`
	Total        money.Amount `json:"total"`
}

// ReportStore answers aggregate queries.
type ReportStore interface {
	SalesByDay(ctx context.Context, from, to time.Time) ([]DailySales, error)
	Revenue(ctx context.Context, from, to time.Time) (money.Amount, error)
	DataUsageByUser(ctx context.Context, from, to time.Time, limit int) ([]UserUsage, error)
	TopSpenders(ctx context.Context, from, to time.Time, limit int) ([]UserSpend, error)
}

// Store is the full persistence surface.
type Store interface {
	UserStore
	PlanStore
	TransactionStore
	VoucherStore
	InvoiceStore
	SessionStore
	RecordStore
	OpsStore
	ReportStore

	// InTx runs fn against a store bound to one database transaction. The
	// transaction commits when fn returns nil.
	InTx(ctx context.Context, fn func(Store) error) error
	Ping(ctx context.Context) error
	Close() error
}
