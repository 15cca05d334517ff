package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zmooth/zmooth/internal/platform/bulk"
	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/platform/money"
	"github.com/zmooth/zmooth/internal/services/auth/user"
	billing "github.com/zmooth/zmooth/internal/services/billing/domain"
	"github.com/zmooth/zmooth/internal/services/integrations/mikrotik"
	"github.com/zmooth/zmooth/internal/services/integrations/mpesa"
	"github.com/zmooth/zmooth/internal/services/shared/events"
	"github.com/zmooth/zmooth/internal/storage"
	"github.com/zmooth/zmooth/internal/storage/sqlite"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type fakeRouter struct {
	mikrotik.Disabled

	mu       sync.Mutex
	hotspot  map[string]mikrotik.HotspotUser
	disabled map[string]bool
	secrets  map[string]mikrotik.PPPSecret
	profiles []mikrotik.Profile
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{
		hotspot:  map[string]mikrotik.HotspotUser{},
		disabled: map[string]bool{},
		secrets:  map[string]mikrotik.PPPSecret{},
	}
}

func (r *fakeRouter) AddHotspotUser(_ context.Context, u mikrotik.HotspotUser) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hotspot[u.Name] = u
	return nil
}

func (r *fakeRouter) UpdateHotspotUser(_ context.Context, name string, update mikrotik.HotspotUserUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.hotspot[name]; !ok {
		return mikrotik.ErrNotFound
	}
	if update.Disabled != nil {
		r.disabled[name] = *update.Disabled
	}
	return nil
}

func (r *fakeRouter) RemoveHotspotUser(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.hotspot, name)
	return nil
}

func (r *fakeRouter) CreateUserProfile(_ context.Context, profile mikrotik.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles = append(r.profiles, profile)
	return nil
}

func (r *fakeRouter) AddPPPSecret(_ context.Context, secret mikrotik.PPPSecret) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.secrets[secret.Name] = secret
	return nil
}

func (r *fakeRouter) RemovePPPSecret(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.secrets[name]; !ok {
		return mikrotik.ErrNotFound
	}
	delete(r.secrets, name)
	return nil
}

type fakePayments struct {
	pushes  []mpesa.PushRequest
	pushErr error
	queries map[string]mpesa.QueryResult
}

func (p *fakePayments) STKPush(_ context.Context, req mpesa.PushRequest) (mpesa.PushResult, error) {
	if p.pushErr != nil {
		return mpesa.PushResult{}, p.pushErr
	}
	p.pushes = append(p.pushes, req)
	return mpesa.PushResult{
		CheckoutRequestID: fmt.Sprintf("ws_CO_%d", len(p.pushes)),
		CustomerMessage:   "Success. Request accepted for processing",
	}, nil
}

func (p *fakePayments) Query(_ context.Context, checkoutRequestID string) (mpesa.QueryResult, error) {
	result, ok := p.queries[checkoutRequestID]
	if !ok {
		return mpesa.QueryResult{Pending: true}, nil
	}
	return result, nil
}

type harness struct {
	svc      *Service
	store    *sqlite.Store
	router   *fakeRouter
	payments *fakePayments
	events   []events.Event
	now      time.Time
	seq      int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "billing.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	h := &harness{store: store, router: newFakeRouter(), payments: &fakePayments{queries: map[string]mpesa.QueryResult{}}, now: testNow}
	h.svc = NewService(Config{
		Store:    store,
		Router:   h.router,
		Payments: h.payments,
		Events:   events.PublisherFunc(func(e events.Event) { h.events = append(h.events, e) }),
		Locale:   "en-KE",
		Clock:    func() time.Time { return h.now },
	})
	return h
}

func (h *harness) customer(t *testing.T, username string, wallet int64) user.User {
	t.Helper()
	ctx := context.Background()
	h.seq++
	u := user.User{
		ID:           "user-" + username,
		Email:        username + "@example.com",
		Username:     username,
		Phone:        fmt.Sprintf("25471%07d", h.seq),
		FullName:     strings.ToUpper(username[:1]) + username[1:],
		PasswordHash: "hash",
		Role:         user.RoleUser,
		Status:       user.StatusActive,
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
	if err := h.store.PutUser(ctx, u); err != nil {
		t.Fatalf("put user: %v", err)
	}
	if wallet > 0 {
		if _, err := h.store.AdjustWallet(ctx, u.ID, money.FromMajor(wallet), testNow); err != nil {
			t.Fatalf("fund wallet: %v", err)
		}
	}
	return u
}

func (h *harness) plan(t *testing.T, name string, price int64) billing.Plan {
	t.Helper()
	plan, err := h.svc.CreatePlan(context.Background(), billing.Plan{
		Name:            name,
		Service:         billing.ServiceHotspot,
		Type:            billing.PlanDataBased,
		Price:           money.FromMajor(price),
		DataLimitMB:     1024,
		ValidityDays:    1,
		DownloadKbps:    2048,
		UploadKbps:      1024,
		MikrotikProfile: "daily",
		IsActive:        true,
	})
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	return plan
}

func (h *harness) balance(t *testing.T, userID string) money.Amount {
	t.Helper()
	u, err := h.store.GetUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	return u.WalletBalance
}

func callbackPayload(checkoutID string, code int, desc string) []byte {
	return []byte(fmt.Sprintf(`{"Body":{"stkCallback":{"MerchantRequestID":"m-1","CheckoutRequestID":%q,"ResultCode":%d,"ResultDesc":%q,
"CallbackMetadata":{"Item":[{"Name":"Amount","Value":50},{"Name":"MpesaReceiptNumber","Value":"QK12ABC"},{"Name":"PhoneNumber","Value":254712345678}]}}}}`,
		checkoutID, code, desc))
}

func TestCreatePlanSyncsRouterProfile(t *testing.T) {
	h := newHarness(t)
	h.plan(t, "Daily 1GB", 50)
	if len(h.router.profiles) != 1 || h.router.profiles[0].Name != "daily" {
		t.Fatalf("expected daily profile, got %+v", h.router.profiles)
	}
	if _, err := h.svc.CreatePlan(context.Background(), billing.Plan{Name: "Daily 1GB", Price: money.FromMajor(10), ValidityDays: 1, IsActive: true}); !errors.Is(err, billing.ErrPlanNameTaken) {
		t.Fatalf("expected name taken, got %v", err)
	}
}

func TestPurchaseFromWalletActivatesPlan(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.customer(t, "alice", 100)
	plan := h.plan(t, "Daily 1GB", 50)

	result, err := h.svc.Purchase(ctx, alice.ID, PurchaseInput{PlanID: plan.ID, PaymentMethod: "wallet"})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if result.UserPlan == nil || result.Transaction.Status != billing.TransactionCompleted {
		t.Fatalf("unexpected result %+v", result)
	}
	if got := h.balance(t, alice.ID); got != money.FromMajor(50) {
		t.Fatalf("balance = %s, want 50.00", got)
	}
	entry, ok := h.router.hotspot["alice"]
	if !ok || entry.Profile != "daily" || entry.LimitBytesTotal != 1024*billing.BytesPerMB {
		t.Fatalf("expected provisioned hotspot user, got %+v", entry)
	}
	if len(h.events) != 1 || h.events[0].Type != events.PaymentCompleted {
		t.Fatalf("expected payment event, got %+v", h.events)
	}
}

func TestPurchaseFromWalletInsufficientBalance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	bob := h.customer(t, "bob", 10)
	plan := h.plan(t, "Daily 1GB", 50)

	_, err := h.svc.Purchase(ctx, bob.ID, PurchaseInput{PlanID: plan.ID, PaymentMethod: "wallet"})
	if !errors.Is(err, billing.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	page, err := h.svc.ListTransactions(ctx, storage.TransactionQuery{UserID: bob.ID})
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Status != billing.TransactionFailed {
		t.Fatalf("expected one failed transaction, got %+v", page.Items)
	}
	if got := h.balance(t, bob.ID); got != money.FromMajor(10) {
		t.Fatalf("balance changed to %s", got)
	}
}

func TestPurchaseRejectsMethods(t *testing.T) {
	h := newHarness(t)
	alice := h.customer(t, "alice", 0)
	plan := h.plan(t, "Daily 1GB", 50)

	tests := []struct {
		method string
		want   error
	}{
		{"voucher", billing.ErrUseVoucherRedeem},
		{"card", billing.ErrInvalidPaymentMethod},
		{"cash", billing.ErrInvalidPaymentMethod},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			_, err := h.svc.Purchase(context.Background(), alice.ID, PurchaseInput{PlanID: plan.ID, PaymentMethod: tt.method})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if _, err := h.svc.Purchase(context.Background(), alice.ID, PurchaseInput{PlanID: "missing", PaymentMethod: "wallet"}); !errors.Is(err, billing.ErrPlanUnavailable) {
		t.Fatalf("expected plan unavailable, got %v", err)
	}
}

func TestMpesaPurchaseSettlesOnCallback(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.customer(t, "alice", 0)
	plan := h.plan(t, "Daily 1GB", 50)

	result, err := h.svc.Purchase(ctx, alice.ID, PurchaseInput{PlanID: plan.ID, PaymentMethod: "mpesa"})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if result.CheckoutRequestID != "ws_CO_1" || result.UserPlan != nil {
		t.Fatalf("unexpected result %+v", result)
	}
	if h.payments.pushes[0].Phone != alice.Phone {
		t.Fatalf("expected profile phone, got %q", h.payments.pushes[0].Phone)
	}

	for i := 0; i < 2; i++ {
		if err := h.svc.HandleMpesaCallback(ctx, callbackPayload("ws_CO_1", 0, "Processed")); err != nil {
			t.Fatalf("callback %d: %v", i, err)
		}
	}
	plans, err := h.svc.MyPlans(ctx, alice.ID)
	if err != nil {
		t.Fatalf("my plans: %v", err)
	}
	if len(plans) != 1 {
		t.Fatalf("expected one activation, got %d", len(plans))
	}
	txn, err := h.svc.GetTransaction(ctx, alice.ID, result.Transaction.ID)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if txn.Status != billing.TransactionCompleted || txn.Receipt != "QK12ABC" {
		t.Fatalf("unexpected transaction %+v", txn)
	}
	if _, ok := h.router.hotspot["alice"]; !ok {
		t.Fatal("expected hotspot user after settlement")
	}
}

func TestMpesaCallbackFailureMarksFailed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.customer(t, "alice", 0)

	result, err := h.svc.TopUp(ctx, alice.ID, TopUpInput{Amount: money.FromMajor(200)})
	if err != nil {
		t.Fatalf("top up: %v", err)
	}
	if err := h.svc.HandleMpesaCallback(ctx, callbackPayload(result.CheckoutRequestID, 1032, "Request cancelled by user")); err != nil {
		t.Fatalf("callback: %v", err)
	}
	txn, err := h.svc.GetTransaction(ctx, "", result.Transaction.ID)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if txn.Status != billing.TransactionFailed || txn.FailureReason != "Request cancelled by user" {
		t.Fatalf("unexpected transaction %+v", txn)
	}
	if got := h.balance(t, alice.ID); got != 0 {
		t.Fatalf("balance = %s, want 0", got)
	}
	if err := h.svc.HandleMpesaCallback(ctx, callbackPayload("ws_CO_unknown", 0, "ok")); err != nil {
		t.Fatalf("unknown checkout should be ignored, got %v", err)
	}
}

func TestPushFailureFailsTransaction(t *testing.T) {
	h := newHarness(t)
	alice := h.customer(t, "alice", 0)
	h.payments.pushErr = apperrors.New(apperrors.CodePaymentFailed, "Invalid PhoneNumber")

	_, err := h.svc.TopUp(context.Background(), alice.ID, TopUpInput{Amount: money.FromMajor(20)})
	if apperrors.CodeOf(err) != apperrors.CodePaymentFailed {
		t.Fatalf("expected payment failed, got %v", err)
	}
	page, err := h.svc.ListTransactions(context.Background(), storage.TransactionQuery{UserID: alice.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Status != billing.TransactionFailed {
		t.Fatalf("expected failed transaction, got %+v", page.Items)
	}
}

func TestCreditWallet(t *testing.T) {
	h := newHarness(t)
	alice := h.customer(t, "alice", 0)

	txn, balance, err := h.svc.CreditWallet(context.Background(), alice.ID, CreditInput{Amount: money.FromMajor(150)})
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if balance != money.FromMajor(150) || txn.Method != billing.MethodCash || txn.Status != billing.TransactionCompleted {
		t.Fatalf("unexpected credit %+v balance %s", txn, balance)
	}
	if _, _, err := h.svc.CreditWallet(context.Background(), alice.ID, CreditInput{Amount: money.FromMajor(1), Method: "wallet"}); apperrors.CodeOf(err) != apperrors.CodeInvalidArgument {
		t.Fatalf("expected wallet method to be rejected, got %v", err)
	}
}

func TestGenerateAndRedeemVoucher(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.customer(t, "alice", 0)
	plan := h.plan(t, "Daily 1GB", 50)

	vouchers, err := h.svc.GenerateVouchers(ctx, billing.VoucherBatchInput{PlanID: plan.ID, Count: 3, Validity: "7 days", Label: "March"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(vouchers) != 3 {
		t.Fatalf("expected 3 vouchers, got %d", len(vouchers))
	}
	batch := vouchers[0].BatchID
	for _, v := range vouchers {
		if v.BatchID != batch || v.Status != billing.VoucherActive || v.ExpiresAt == nil || !v.ExpiresAt.Equal(testNow.AddDate(0, 0, 7)) {
			t.Fatalf("unexpected voucher %+v", v)
		}
	}

	code := strings.ToLower(strings.ReplaceAll(vouchers[0].Code, "-", ""))
	result, err := h.svc.RedeemVoucher(ctx, alice.ID, code)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if result.Voucher.Status != billing.VoucherUsed || result.Voucher.UsedBy != alice.ID {
		t.Fatalf("unexpected voucher %+v", result.Voucher)
	}
	if result.Transaction.Method != billing.MethodVoucher || result.Transaction.Amount != 0 || result.Transaction.Status != billing.TransactionCompleted {
		t.Fatalf("unexpected transaction %+v", result.Transaction)
	}

	_, err = h.svc.RedeemVoucher(ctx, alice.ID, vouchers[0].Code)
	if apperrors.CodeOf(err) != apperrors.CodeVoucherUnavailable || !strings.Contains(err.Error(), "used") {
		t.Fatalf("expected used voucher error, got %v", err)
	}
	if _, err := h.svc.RedeemVoucher(ctx, alice.ID, "ZZZZ-ZZZZ-ZZZZ"); !errors.Is(err, billing.ErrVoucherNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := h.svc.RedeemVoucher(ctx, alice.ID, "short"); !errors.Is(err, billing.ErrInvalidVoucherCode) {
		t.Fatalf("expected invalid code, got %v", err)
	}
}

func TestBulkVouchersDisable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.customer(t, "alice", 0)
	plan := h.plan(t, "Daily 1GB", 50)
	vouchers, err := h.svc.GenerateVouchers(ctx, billing.VoucherBatchInput{PlanID: plan.ID, Count: 2})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	n, err := h.svc.BulkVouchers(ctx, bulk.Disable, []string{vouchers[0].ID})
	if err != nil || n != 1 {
		t.Fatalf("bulk disable = %d, %v", n, err)
	}
	if _, err := h.svc.RedeemVoucher(ctx, alice.ID, vouchers[0].Code); apperrors.CodeOf(err) != apperrors.CodeVoucherUnavailable {
		t.Fatalf("expected disabled voucher to be refused, got %v", err)
	}
	if _, err := h.svc.BulkVouchers(ctx, bulk.MarkPaid, []string{vouchers[0].ID}); apperrors.CodeOf(err) != apperrors.CodeUnsupportedAction {
		t.Fatalf("expected unsupported action, got %v", err)
	}
	body, err := h.svc.ExportVouchers(ctx, storage.ListQuery{IDs: []string{vouchers[1].ID}})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(string(body), vouchers[1].Code) || strings.Contains(string(body), vouchers[0].Code) {
		t.Fatalf("unexpected export %q", body)
	}
}

func TestPortalRedeemCreatesCustomer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	plan := h.plan(t, "Daily 1GB", 50)
	vouchers, err := h.svc.GenerateVouchers(ctx, billing.VoucherBatchInput{PlanID: plan.ID, Count: 1})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	customer, result, err := h.svc.PortalRedeem(ctx, PortalRedeemInput{Code: vouchers[0].Code, MAC: "aa-bb-cc-dd-ee-ff"})
	if err != nil {
		t.Fatalf("portal redeem: %v", err)
	}
	wantName := strings.ToLower(strings.ReplaceAll(vouchers[0].Code, "-", ""))
	if customer.Username != wantName || customer.Email != wantName+"@portal.local" {
		t.Fatalf("unexpected customer %+v", customer)
	}
	if customer.MACAddress != "AA:BB:CC:DD:EE:FF" {
		t.Fatalf("expected normalized MAC, got %q", customer.MACAddress)
	}
	if result.UserPlan.UserID != customer.ID {
		t.Fatalf("plan activated for %q", result.UserPlan.UserID)
	}
	if entry := h.router.hotspot[wantName]; entry.MACAddress != "AA:BB:CC:DD:EE:FF" {
		t.Fatalf("expected hotspot user bound to MAC, got %+v", entry)
	}

	if _, _, err := h.svc.PortalRedeem(ctx, PortalRedeemInput{Code: vouchers[0].Code, Username: "nobody"}); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("expected unknown username to be not found, got %v", err)
	}
}

func TestAccessAccountLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	plan, err := h.svc.CreatePlan(ctx, billing.Plan{
		Name:            "Monthly Rocket",
		Service:         billing.ServicePPPoE,
		Type:            billing.PlanUnlimited,
		Price:           money.FromMajor(2500),
		MikrotikProfile: "rocket",
		IsActive:        true,
	})
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}

	account, err := h.svc.CreateAccessAccount(ctx, AccessInput{PlanID: plan.ID})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if len(account.Username) != 8 || len(account.Password) != 8 {
		t.Fatalf("expected generated credentials, got %+v", account)
	}
	if account.Service != billing.ServicePPPoE || account.Profile != "rocket" {
		t.Fatalf("unexpected account %+v", account)
	}
	if account.ExpiresAt == nil || !account.ExpiresAt.Equal(testNow.AddDate(0, 1, 0)) {
		t.Fatalf("expected one month expiry from plan name, got %v", account.ExpiresAt)
	}
	if _, ok := h.router.secrets[account.Username]; !ok {
		t.Fatal("expected PPP secret")
	}

	if n, err := h.svc.BulkAccessAccounts(ctx, bulk.Deactivate, []string{account.ID}); err != nil || n != 1 {
		t.Fatalf("deactivate = %d, %v", n, err)
	}
	if _, ok := h.router.secrets[account.Username]; ok {
		t.Fatal("expected PPP secret removed on deactivate")
	}
	if err := h.svc.DeleteAccessAccount(ctx, account.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := h.svc.GetAccessAccount(ctx, account.ID); !errors.Is(err, ErrAccessAccountNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInvoicePayAndPrint(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.customer(t, "alice", 1000)
	plan := h.plan(t, "Daily 1GB", 50)

	inv, err := h.svc.CreateInvoice(ctx, InvoiceInput{UserID: alice.ID, PlanID: plan.ID})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if inv.Number != "INV-2026-001" || inv.CustomerName != "Alice" || inv.Amount != money.FromMajor(50) {
		t.Fatalf("unexpected invoice %+v", inv)
	}
	if !inv.DueDate.Equal(testNow.AddDate(0, 0, billing.DefaultDueDays)) {
		t.Fatalf("due date = %v", inv.DueDate)
	}

	bob := h.customer(t, "bob", 1000)
	if _, _, err := h.svc.PayInvoice(ctx, bob.ID, inv.ID); !errors.Is(err, billing.ErrInvoiceNotFound) {
		t.Fatalf("expected foreign invoice to be hidden, got %v", err)
	}
	paid, txn, err := h.svc.PayInvoice(ctx, alice.ID, inv.ID)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if paid.Status != billing.InvoicePaid || txn.InvoiceID != inv.ID || h.balance(t, alice.ID) != money.FromMajor(950) {
		t.Fatalf("unexpected payment %+v %+v", paid, txn)
	}
	if _, _, err := h.svc.PayInvoice(ctx, alice.ID, inv.ID); apperrors.CodeOf(err) != apperrors.CodeInvoiceSettled {
		t.Fatalf("expected settled, got %v", err)
	}

	name, body, err := h.svc.PrintInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("print: %v", err)
	}
	if name != "invoice-INV-2026-001.txt" {
		t.Fatalf("filename = %q", name)
	}
	for _, want := range []string{"INVOICE INV-2026-001", "Daily 1GB", "PAID", "50"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("printed invoice missing %q:\n%s", want, body)
		}
	}
}

func TestBulkInvoicesSkipSettled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first, err := h.svc.CreateInvoice(ctx, InvoiceInput{CustomerName: "Walk-in", Amount: money.FromMajor(100)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := h.svc.CreateInvoice(ctx, InvoiceInput{CustomerName: "Walk-in", Amount: money.FromMajor(200)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.svc.MarkInvoicePaid(ctx, first.ID, "bank_transfer"); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	n, err := h.svc.BulkInvoices(ctx, bulk.MarkPaid, []string{first.ID, second.ID})
	if err != nil || n != 1 {
		t.Fatalf("bulk mark-paid = %d, %v", n, err)
	}
	n, err = h.svc.BulkInvoices(ctx, bulk.Cancel, []string{first.ID, second.ID})
	if err != nil || n != 0 {
		t.Fatalf("bulk cancel of paid invoices = %d, %v", n, err)
	}
}

func TestMarkOverdue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inv, err := h.svc.CreateInvoice(ctx, InvoiceInput{CustomerName: "Walk-in", Amount: money.FromMajor(100)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	h.now = testNow.AddDate(0, 0, billing.DefaultDueDays+1)
	if n, err := h.svc.MarkOverdue(ctx); err != nil || n != 1 {
		t.Fatalf("mark overdue = %d, %v", n, err)
	}
	got, err := h.svc.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != billing.InvoiceOverdue {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestRunAutoBilling(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.customer(t, "alice", 1000)
	plan := h.plan(t, "Monthly Home", 500)
	start := testNow.AddDate(0, -1, 0)
	renew := true

	wallet, err := h.svc.CreateSubscription(ctx, SubscriptionInput{UserID: alice.ID, PlanID: plan.ID, Cycle: "monthly", StartDate: &start, PaymentMethod: "wallet", AutoRenewal: &renew})
	if err != nil {
		t.Fatalf("create wallet subscription: %v", err)
	}
	if !wallet.NextBilling.Equal(testNow) {
		t.Fatalf("next billing = %v, want %v", wallet.NextBilling, testNow)
	}
	manual, err := h.svc.CreateSubscription(ctx, SubscriptionInput{CustomerName: "Corner Shop", PlanID: plan.ID, Cycle: "daily", StartDate: &start})
	if err != nil {
		t.Fatalf("create manual subscription: %v", err)
	}

	result, err := h.svc.RunAutoBilling(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Invoiced != 2 || result.Paid != 1 || result.Unpaid != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if got := h.balance(t, alice.ID); got != money.FromMajor(500) {
		t.Fatalf("balance = %s, want 500.00", got)
	}
	paid, err := h.svc.GetSubscription(ctx, wallet.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !paid.NextBilling.Equal(testNow.AddDate(0, 1, 0)) || paid.LastBilled == nil || paid.FailedAttempts != 0 {
		t.Fatalf("unexpected paid subscription %+v", paid)
	}

	for i := 0; i < billing.MaxFailedAttempts; i++ {
		unpaid, err := h.svc.GetSubscription(ctx, manual.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if unpaid.Status == billing.SubscriptionPaused {
			break
		}
		h.now = unpaid.NextBilling
		if _, err := h.svc.RunAutoBilling(ctx); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	paused, err := h.svc.GetSubscription(ctx, manual.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if paused.Status != billing.SubscriptionPaused || paused.FailedAttempts != billing.MaxFailedAttempts {
		t.Fatalf("expected paused after %d failures, got %+v", billing.MaxFailedAttempts, paused)
	}
}

func TestRunAutoBillingInvoicesManualRenewal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.customer(t, "alice", 1000)
	plan := h.plan(t, "Monthly Home", 500)
	start := testNow.AddDate(0, -1, 0)
	off := false

	sub, err := h.svc.CreateSubscription(ctx, SubscriptionInput{UserID: alice.ID, PlanID: plan.ID, Cycle: "monthly", StartDate: &start, PaymentMethod: "mpesa", AutoRenewal: &off})
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	result, err := h.svc.RunAutoBilling(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Invoiced != 1 || result.Unpaid != 1 || result.Paid != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	page, err := h.svc.ListInvoices(ctx, storage.ListQuery{})
	if err != nil {
		t.Fatalf("list invoices: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("invoices = %d, want 1", len(page.Items))
	}
	if inv := page.Items[0]; inv.SubscriptionID != sub.ID || inv.Status != billing.InvoiceUnpaid {
		t.Fatalf("unexpected invoice %+v", inv)
	}
	if got := h.balance(t, alice.ID); got != money.FromMajor(1000) {
		t.Fatalf("wallet charged without auto renewal: balance = %s", got)
	}
}

func TestExportSubscriptionsHeader(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	plan := h.plan(t, "Monthly Home", 500)
	if _, err := h.svc.CreateSubscription(ctx, SubscriptionInput{CustomerName: "Corner Shop", PlanID: plan.ID, Cycle: "weekly"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	body, err := h.svc.ExportSubscriptions(ctx, storage.ListQuery{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %q", body)
	}
	if strings.TrimSpace(lines[0]) != "Customer,Plan,Amount,Billing Cycle,Next Billing,Status,Auto Renewal,Payment Method" {
		t.Fatalf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "Corner Shop,Monthly Home,500.00,weekly") || !strings.Contains(lines[1], ",Yes,mpesa") {
		t.Fatalf("row = %q", lines[1])
	}
}

func TestReconcile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.customer(t, "alice", 0)

	h.now = testNow.Add(-10 * time.Minute)
	done, err := h.svc.TopUp(ctx, alice.ID, TopUpInput{Amount: money.FromMajor(100)})
	if err != nil {
		t.Fatalf("top up: %v", err)
	}
	cancelled, err := h.svc.TopUp(ctx, alice.ID, TopUpInput{Amount: money.FromMajor(30)})
	if err != nil {
		t.Fatalf("top up: %v", err)
	}
	h.now = testNow.Add(-25 * time.Hour)
	stale, err := h.svc.TopUp(ctx, alice.ID, TopUpInput{Amount: money.FromMajor(40)})
	if err != nil {
		t.Fatalf("top up: %v", err)
	}
	h.now = testNow.Add(-30 * time.Second)
	fresh, err := h.svc.TopUp(ctx, alice.ID, TopUpInput{Amount: money.FromMajor(50)})
	if err != nil {
		t.Fatalf("top up: %v", err)
	}
	h.now = testNow

	h.payments.queries[done.CheckoutRequestID] = mpesa.QueryResult{ResultCode: "0", ResultDesc: "The service request is processed successfully."}
	h.payments.queries[cancelled.CheckoutRequestID] = mpesa.QueryResult{ResultCode: "1032", ResultDesc: "Request cancelled by user"}

	result, err := h.svc.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Checked != 3 || result.Completed != 1 || result.Failed != 1 || result.TimedOut != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if got := h.balance(t, alice.ID); got != money.FromMajor(100) {
		t.Fatalf("balance = %s, want 100.00", got)
	}
	want := map[string]billing.TransactionStatus{
		done.Transaction.ID:      billing.TransactionCompleted,
		cancelled.Transaction.ID: billing.TransactionFailed,
		stale.Transaction.ID:     billing.TransactionFailed,
		fresh.Transaction.ID:     billing.TransactionPending,
	}
	for txnID, status := range want {
		txn, err := h.svc.GetTransaction(ctx, "", txnID)
		if err != nil {
			t.Fatalf("get %s: %v", txnID, err)
		}
		if txn.Status != status {
			t.Fatalf("transaction %s status = %s, want %s", txn.Ref, txn.Status, status)
		}
		if txnID == stale.Transaction.ID && txn.FailureReason != "Payment timed out" {
			t.Fatalf("stale reason = %q", txn.FailureReason)
		}
	}
}

func TestBulkClientsSuspendDisablesHotspotUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.customer(t, "alice", 100)
	plan := h.plan(t, "Daily 1GB", 50)
	if _, err := h.svc.Purchase(ctx, alice.ID, PurchaseInput{PlanID: plan.ID, PaymentMethod: "wallet"}); err != nil {
		t.Fatalf("purchase: %v", err)
	}

	n, err := h.svc.BulkClients(ctx, bulk.Suspend, []string{alice.ID})
	if err != nil || n != 1 {
		t.Fatalf("suspend = %d, %v", n, err)
	}
	if !h.router.disabled["alice"] {
		t.Fatal("expected hotspot user disabled")
	}
	if _, err := h.svc.SetClientStatus(ctx, alice.ID, "active"); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if h.router.disabled["alice"] {
		t.Fatal("expected hotspot user re-enabled")
	}
}

func TestExpireAllDisablesLapsedCustomers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.customer(t, "alice", 100)
	plan := h.plan(t, "Daily 1GB", 50)
	if _, err := h.svc.Purchase(ctx, alice.ID, PurchaseInput{PlanID: plan.ID, PaymentMethod: "wallet"}); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	h.now = testNow.Add(25 * time.Hour)
	result, err := h.svc.ExpireAll(ctx)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if result.UserPlans != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if !h.router.disabled["alice"] {
		t.Fatal("expected hotspot user disabled after expiry")
	}
	plans, err := h.svc.MyPlans(ctx, alice.ID)
	if err != nil {
		t.Fatalf("my plans: %v", err)
	}
	if len(plans) != 0 {
		t.Fatalf("expected no active plans, got %d", len(plans))
	}
}
