package httpapi

import (
	"encoding/json"
	"time"

	"github.com/zmooth/zmooth/internal/platform/money"
	accounting "github.com/zmooth/zmooth/internal/services/accounting/domain"
	accountingapp "github.com/zmooth/zmooth/internal/services/accounting/app"
	"github.com/zmooth/zmooth/internal/services/auth/user"
	billingapp "github.com/zmooth/zmooth/internal/services/billing/app"
	"github.com/zmooth/zmooth/internal/services/billing/cycle"
	billing "github.com/zmooth/zmooth/internal/services/billing/domain"
	network "github.com/zmooth/zmooth/internal/services/network/domain"
)

type userView struct {
	ID            string       `json:"id"`
	Email         string       `json:"email"`
	Username      string       `json:"username"`
	Phone         string       `json:"phone,omitempty"`
	FullName      string       `json:"full_name,omitempty"`
	Role          string       `json:"role"`
	Status        string       `json:"status"`
	WalletBalance money.Amount `json:"wallet_balance"`
	MACAddress    string       `json:"mac_address,omitempty"`
	LastLogin     *time.Time   `json:"last_login,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

func userToView(u user.User) userView {
	return userView{
		ID:            u.ID,
		Email:         u.Email,
		Username:      u.Username,
		Phone:         u.Phone,
		FullName:      u.FullName,
		Role:          string(u.Role),
		Status:        string(u.Status),
		WalletBalance: u.WalletBalance,
		MACAddress:    u.MACAddress,
		LastLogin:     u.LastLogin,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

type planView struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Description     string       `json:"description,omitempty"`
	Service         string       `json:"service"`
	Type            string       `json:"plan_type"`
	Price           money.Amount `json:"price"`
	Currency        string       `json:"currency"`
	DataLimitMB     int64        `json:"data_limit_mb,omitempty"`
	ValidityDays    int          `json:"validity_days,omitempty"`
	ValidityHours   int          `json:"validity_hours,omitempty"`
	DownloadKbps    int          `json:"download_kbps,omitempty"`
	UploadKbps      int          `json:"upload_kbps,omitempty"`
	RateLimit       string       `json:"rate_limit,omitempty"`
	Devices         int          `json:"devices"`
	MikrotikProfile string       `json:"mikrotik_profile,omitempty"`
	BillingCycle    string       `json:"billing_cycle,omitempty"`
	IsActive        bool         `json:"is_active"`
	IsFeatured      bool         `json:"is_featured"`
	SortOrder       int          `json:"sort_order"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

func planToView(p billing.Plan) planView {
	return planView{
		ID:              p.ID,
		Name:            p.Name,
		Description:     p.Description,
		Service:         string(p.Service),
		Type:            string(p.Type),
		Price:           p.Price,
		Currency:        p.Currency,
		DataLimitMB:     p.DataLimitMB,
		ValidityDays:    p.ValidityDays,
		ValidityHours:   p.ValidityHours,
		DownloadKbps:    p.DownloadKbps,
		UploadKbps:      p.UploadKbps,
		RateLimit:       p.RateLimit(),
		Devices:         p.Devices,
		MikrotikProfile: p.MikrotikProfile,
		BillingCycle:    string(p.BillingCycle),
		IsActive:        p.IsActive,
		IsFeatured:      p.IsFeatured,
		SortOrder:       p.SortOrder,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

// planInput is the create body. Omitted flags default to an active,
// non-featured plan.
type planInput struct {
	Name            string       `json:"name"`
	Description     string       `json:"description"`
	Service         string       `json:"service"`
	Type            string       `json:"plan_type"`
	Price           money.Amount `json:"price"`
	Currency        string       `json:"currency"`
	DataLimitMB     int64        `json:"data_limit_mb"`
	ValidityDays    int          `json:"validity_days"`
	ValidityHours   int          `json:"validity_hours"`
	DownloadKbps    int          `json:"download_kbps"`
	UploadKbps      int          `json:"upload_kbps"`
	Devices         int          `json:"devices"`
	MikrotikProfile string       `json:"mikrotik_profile"`
	BillingCycle    string       `json:"billing_cycle"`
	IsActive        *bool        `json:"is_active"`
	IsFeatured      bool         `json:"is_featured"`
	SortOrder       int          `json:"sort_order"`
}

func (in planInput) plan() billing.Plan {
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	return billing.Plan{
		Name:            in.Name,
		Description:     in.Description,
		Service:         billing.Service(in.Service),
		Type:            billing.PlanType(in.Type),
		Price:           in.Price,
		Currency:        in.Currency,
		DataLimitMB:     in.DataLimitMB,
		ValidityDays:    in.ValidityDays,
		ValidityHours:   in.ValidityHours,
		DownloadKbps:    in.DownloadKbps,
		UploadKbps:      in.UploadKbps,
		Devices:         in.Devices,
		MikrotikProfile: in.MikrotikProfile,
		BillingCycle:    cycle.Cycle(in.BillingCycle),
		IsActive:        active,
		IsFeatured:      in.IsFeatured,
		SortOrder:       in.SortOrder,
	}
}

type userPlanView struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	PlanID        string     `json:"plan_id"`
	TransactionID string     `json:"transaction_id,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	DataLimitMB   int64      `json:"data_limit_mb"`
	DataUsedMB    int64      `json:"data_used_mb"`
	RemainingMB   *int64     `json:"remaining_mb,omitempty"`
	IsActive      bool       `json:"is_active"`
}

func userPlanToView(up billing.UserPlan) userPlanView {
	view := userPlanView{
		ID:            up.ID,
		UserID:        up.UserID,
		PlanID:        up.PlanID,
		TransactionID: up.TransactionID,
		StartedAt:     up.StartedAt,
		ExpiresAt:     up.ExpiresAt,
		DataLimitMB:   up.DataLimitMB,
		DataUsedMB:    up.DataUsedMB,
		IsActive:      up.IsActive,
	}
	if !up.Unlimited() {
		remaining := up.RemainingMB()
		view.RemainingMB = &remaining
	}
	return view
}

type transactionView struct {
	ID            string       `json:"id"`
	Ref           string       `json:"ref"`
	ProviderRef   string       `json:"provider_ref,omitempty"`
	Receipt       string       `json:"receipt,omitempty"`
	UserID        string       `json:"user_id,omitempty"`
	PlanID        string       `json:"plan_id,omitempty"`
	InvoiceID     string       `json:"invoice_id,omitempty"`
	Type          string       `json:"type"`
	Method        string       `json:"payment_method"`
	Status        string       `json:"status"`
	Amount        money.Amount `json:"amount"`
	Currency      string       `json:"currency"`
	Phone         string       `json:"phone,omitempty"`
	FailureReason string       `json:"failure_reason,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
}

func transactionToView(t billing.Transaction) transactionView {
	return transactionView{
		ID:            t.ID,
		Ref:           t.Ref,
		ProviderRef:   t.ProviderRef,
		Receipt:       t.Receipt,
		UserID:        t.UserID,
		PlanID:        t.PlanID,
		InvoiceID:     t.InvoiceID,
		Type:          string(t.Type),
		Method:        string(t.Method),
		Status:        string(t.Status),
		Amount:        t.Amount,
		Currency:      t.Currency,
		Phone:         t.Phone,
		FailureReason: t.FailureReason,
		CreatedAt:     t.CreatedAt,
		CompletedAt:   t.CompletedAt,
	}
}

type purchaseView struct {
	Transaction       transactionView `json:"transaction"`
	UserPlan          *userPlanView   `json:"user_plan,omitempty"`
	CheckoutRequestID string          `json:"checkout_request_id,omitempty"`
	CustomerMessage   string          `json:"customer_message,omitempty"`
}

func purchaseToView(res billingapp.PurchaseResult) purchaseView {
	view := purchaseView{
		Transaction:       transactionToView(res.Transaction),
		CheckoutRequestID: res.CheckoutRequestID,
		CustomerMessage:   res.CustomerMessage,
	}
	if res.UserPlan != nil {
		up := userPlanToView(*res.UserPlan)
		view.UserPlan = &up
	}
	return view
}

type voucherView struct {
	ID         string     `json:"id"`
	Code       string     `json:"code"`
	PlanID     string     `json:"plan_id"`
	Status     string     `json:"status"`
	BatchID    string     `json:"batch_id"`
	BatchLabel string     `json:"batch,omitempty"`
	UsedBy     string     `json:"used_by,omitempty"`
	UsedAt     *time.Time `json:"used_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedBy  string     `json:"created_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func voucherToView(v billing.Voucher) voucherView {
	return voucherView{
		ID:         v.ID,
		Code:       v.Code,
		PlanID:     v.PlanID,
		Status:     string(v.Status),
		BatchID:    v.BatchID,
		BatchLabel: v.BatchLabel,
		UsedBy:     v.UsedBy,
		UsedAt:     v.UsedAt,
		ExpiresAt:  v.ExpiresAt,
		CreatedBy:  v.CreatedBy,
		CreatedAt:  v.CreatedAt,
	}
}

type redeemView struct {
	Voucher     voucherView     `json:"voucher"`
	Plan        planView        `json:"plan"`
	UserPlan    userPlanView    `json:"user_plan"`
	Transaction transactionView `json:"transaction"`
}

func redeemToView(res billingapp.RedeemResult) redeemView {
	return redeemView{
		Voucher:     voucherToView(res.Voucher),
		Plan:        planToView(res.Plan),
		UserPlan:    userPlanToView(res.UserPlan),
		Transaction: transactionToView(res.Transaction),
	}
}

type accessAccountView struct {
	ID         string     `json:"id"`
	Username   string     `json:"username"`
	Password   string     `json:"password"`
	Service    string     `json:"service"`
	PlanID     string     `json:"plan_id"`
	Profile    string     `json:"profile,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Status     string     `json:"status"`
	MACAddress string     `json:"mac_address,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func accessAccountToView(a billing.AccessAccount) accessAccountView {
	return accessAccountView{
		ID:         a.ID,
		Username:   a.Username,
		Password:   a.Password,
		Service:    string(a.Service),
		PlanID:     a.PlanID,
		Profile:    a.Profile,
		ExpiresAt:  a.ExpiresAt,
		Status:     string(a.Status),
		MACAddress: a.MACAddress,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

type invoiceView struct {
	ID             string       `json:"id"`
	Number         string       `json:"number"`
	CustomerName   string       `json:"customer"`
	UserID         string       `json:"user_id,omitempty"`
	PlanID         string       `json:"plan_id,omitempty"`
	SubscriptionID string       `json:"subscription_id,omitempty"`
	Amount         money.Amount `json:"amount"`
	Currency       string       `json:"currency"`
	Status         string       `json:"status"`
	IssueDate      time.Time    `json:"issue_date"`
	DueDate        time.Time    `json:"due_date"`
	PaidAt         *time.Time   `json:"paid_at,omitempty"`
	PaymentMethod  string       `json:"payment_method,omitempty"`
	Station        string       `json:"station,omitempty"`
	Notes          string       `json:"notes,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

func invoiceToView(inv billing.Invoice) invoiceView {
	return invoiceView{
		ID:             inv.ID,
		Number:         inv.Number,
		CustomerName:   inv.CustomerName,
		UserID:         inv.UserID,
		PlanID:         inv.PlanID,
		SubscriptionID: inv.SubscriptionID,
		Amount:         inv.Amount,
		Currency:       inv.Currency,
		Status:         string(inv.Status),
		IssueDate:      inv.IssueDate,
		DueDate:        inv.DueDate,
		PaidAt:         inv.PaidAt,
		PaymentMethod:  string(inv.PaymentMethod),
		Station:        inv.Station,
		Notes:          inv.Notes,
		CreatedAt:      inv.CreatedAt,
		UpdatedAt:      inv.UpdatedAt,
	}
}

type subscriptionView struct {
	ID             string       `json:"id"`
	CustomerName   string       `json:"customer"`
	UserID         string       `json:"user_id,omitempty"`
	Email          string       `json:"email,omitempty"`
	Phone          string       `json:"phone,omitempty"`
	PlanID         string       `json:"plan_id"`
	PlanName       string       `json:"plan_name"`
	Amount         money.Amount `json:"amount"`
	Currency       string       `json:"currency"`
	Cycle          string       `json:"billing_cycle"`
	StartDate      time.Time    `json:"start_date"`
	NextBilling    time.Time    `json:"next_billing"`
	LastBilled     *time.Time   `json:"last_billed,omitempty"`
	Status         string       `json:"status"`
	PaymentMethod  string       `json:"payment_method"`
	AutoRenewal    bool         `json:"auto_renewal"`
	FailedAttempts int          `json:"failed_attempts"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

func subscriptionToView(s billing.Subscription) subscriptionView {
	return subscriptionView{
		ID:             s.ID,
		CustomerName:   s.CustomerName,
		UserID:         s.UserID,
		Email:          s.Email,
		Phone:          s.Phone,
		PlanID:         s.PlanID,
		PlanName:       s.PlanName,
		Amount:         s.Amount,
		Currency:       s.Currency,
		Cycle:          string(s.Cycle),
		StartDate:      s.StartDate,
		NextBilling:    s.NextBilling,
		LastBilled:     s.LastBilled,
		Status:         string(s.Status),
		PaymentMethod:  string(s.PaymentMethod),
		AutoRenewal:    s.AutoRenewal,
		FailedAttempts: s.FailedAttempts,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

type sessionView struct {
	ID              string     `json:"id"`
	SessionID       string     `json:"session_id"`
	UserID          string     `json:"user_id"`
	Username        string     `json:"username"`
	UserPlanID      string     `json:"user_plan_id,omitempty"`
	NASIP           string     `json:"nas_ip"`
	FramedIP        string     `json:"framed_ip,omitempty"`
	MACAddress      string     `json:"mac,omitempty"`
	Active          bool       `json:"active"`
	StartedAt       time.Time  `json:"started_at"`
	StoppedAt       *time.Time `json:"stopped_at,omitempty"`
	UploadBytes     int64      `json:"upload_bytes"`
	DownloadBytes   int64      `json:"download_bytes"`
	TotalBytes      int64      `json:"total_bytes"`
	DurationSeconds int64      `json:"duration_seconds"`
	TerminateCause  string     `json:"terminate_cause,omitempty"`
	LastUpdateAt    time.Time  `json:"last_update_at"`
}

func sessionToView(s accounting.Session) sessionView {
	return sessionView{
		ID:              s.ID,
		SessionID:       s.SessionID,
		UserID:          s.UserID,
		Username:        s.Username,
		UserPlanID:      s.UserPlanID,
		NASIP:           s.NASIP,
		FramedIP:        s.FramedIP,
		MACAddress:      s.MACAddress,
		Active:          s.Active,
		StartedAt:       s.StartedAt,
		StoppedAt:       s.StoppedAt,
		UploadBytes:     s.UploadBytes,
		DownloadBytes:   s.DownloadBytes,
		TotalBytes:      s.TotalBytes,
		DurationSeconds: s.DurationSeconds,
		TerminateCause:  s.TerminateCause,
		LastUpdateAt:    s.LastUpdateAt,
	}
}

type interimView struct {
	Session     sessionView `json:"session"`
	RemainingMB *int64      `json:"remaining_mb"`
	Terminated  bool        `json:"terminated"`
}

func interimToView(res accountingapp.InterimResult) interimView {
	view := interimView{Session: sessionToView(res.Session), Terminated: res.Terminated}
	if !res.Unlimited {
		remaining := res.RemainingMB
		view.RemainingMB = &remaining
	}
	return view
}

type recordView struct {
	ID        string       `json:"id"`
	Kind      string       `json:"kind"`
	Name      string       `json:"name"`
	Active    bool         `json:"active"`
	Spec      network.Spec `json:"spec"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func recordToView(r network.Record) recordView {
	return recordView{
		ID:        r.ID,
		Kind:      string(r.Kind),
		Name:      r.Name,
		Active:    r.Active,
		Spec:      r.Spec,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// recordInput carries the spec raw so it can be decoded for the path kind.
type recordInput struct {
	Name   string          `json:"name"`
	Active *bool           `json:"active"`
	Spec   json.RawMessage `json:"spec"`
}
