package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/platform/money"
	accounting "github.com/zmooth/zmooth/internal/services/accounting/domain"
	"github.com/zmooth/zmooth/internal/services/auth/user"
	billing "github.com/zmooth/zmooth/internal/services/billing/domain"
	network "github.com/zmooth/zmooth/internal/services/network/domain"
	"github.com/zmooth/zmooth/internal/storage"
	"github.com/zmooth/zmooth/internal/storage/sqlite"
)

var testNow = time.Date(2026, 5, 15, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "reports.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewService(store, func() time.Time { return testNow }), store
}

func putUser(t *testing.T, store *sqlite.Store, username string, status user.Status) user.User {
	t.Helper()
	u := user.User{
		ID:           "user-" + username,
		Email:        username + "@example.com",
		Username:     username,
		PasswordHash: "hash",
		Role:         user.RoleUser,
		Status:       status,
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
	if err := store.PutUser(context.Background(), u); err != nil {
		t.Fatalf("put user: %v", err)
	}
	return u
}

func putSale(t *testing.T, store *sqlite.Store, n int, userID string, major int64, at time.Time) {
	t.Helper()
	completed := at
	txn := billing.Transaction{
		ID:          fmt.Sprintf("txn-%d", n),
		Ref:         fmt.Sprintf("TXN%d", n),
		UserID:      userID,
		Type:        billing.TransactionPurchase,
		Method:      billing.MethodWallet,
		Status:      billing.TransactionCompleted,
		Amount:      money.FromMajor(major),
		Currency:    "KES",
		CreatedAt:   at,
		UpdatedAt:   at,
		CompletedAt: &completed,
	}
	if err := store.PutTransaction(context.Background(), txn); err != nil {
		t.Fatalf("put transaction: %v", err)
	}
}

func TestOverviewCountsDashboard(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	alice := putUser(t, store, "alice", user.StatusActive)
	putUser(t, store, "bob", user.StatusSuspended)

	putSale(t, store, 1, alice.ID, 100, testNow.Add(-time.Hour))
	putSale(t, store, 2, alice.ID, 50, time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC))
	putSale(t, store, 3, alice.ID, 999, time.Date(2026, 4, 28, 9, 0, 0, 0, time.UTC))

	err := store.PutSession(ctx, accounting.Session{
		ID: "s1", SessionID: "s1", UserID: alice.ID, Username: "alice",
		Active: true, StartedAt: testNow, LastUpdateAt: testNow,
	})
	if err != nil {
		t.Fatalf("put session: %v", err)
	}
	for i, status := range []string{network.RouterOnline, network.RouterOffline} {
		err := store.PutRouterStatus(ctx, storage.RouterStatus{
			RouterID: fmt.Sprintf("r%d", i), Name: fmt.Sprintf("router-%d", i), Status: status, PolledAt: testNow,
		})
		if err != nil {
			t.Fatalf("put router status: %v", err)
		}
	}

	got, err := svc.Overview(ctx)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if got.ActiveSessions != 1 {
		t.Fatalf("active sessions = %d, want 1", got.ActiveSessions)
	}
	if got.RevenueToday != money.FromMajor(100) {
		t.Fatalf("revenue today = %s, want 100.00", got.RevenueToday)
	}
	if got.RevenueMonth != money.FromMajor(150) {
		t.Fatalf("revenue month = %s, want 150.00", got.RevenueMonth)
	}
	if got.CustomersTotal != 2 || got.CustomersActive != 1 {
		t.Fatalf("customers = %d/%d, want 2/1", got.CustomersTotal, got.CustomersActive)
	}
	if got.RoutersOnline != 1 || got.RoutersMonitored != 2 {
		t.Fatalf("routers = %d/%d, want 1/2", got.RoutersOnline, got.RoutersMonitored)
	}
}

func TestSalesGroupsByDay(t *testing.T) {
	svc, store := newTestService(t)
	alice := putUser(t, store, "alice", user.StatusActive)
	day := time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)
	putSale(t, store, 1, alice.ID, 20, day)
	putSale(t, store, 2, alice.ID, 30, day.Add(2*time.Hour))
	putSale(t, store, 3, alice.ID, 40, day.Add(24*time.Hour))

	rows, err := svc.Sales(context.Background(), Range{From: day.Add(-time.Hour), To: day.Add(48 * time.Hour)})
	if err != nil {
		t.Fatalf("sales: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 days, got %+v", rows)
	}
	if rows[0].Day != "2026-05-10" || rows[0].Count != 2 || rows[0].Total != money.FromMajor(50) {
		t.Fatalf("unexpected first day: %+v", rows[0])
	}
}

func TestRangeValidation(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Sales(context.Background(), Range{From: testNow, To: testNow.Add(-time.Hour)})
	if apperrors.CodeOf(err) != apperrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}

	tests := []struct {
		name    string
		from    string
		to      string
		wantErr bool
	}{
		{name: "empty", from: "", to: ""},
		{name: "dates", from: "2026-05-01", to: "2026-05-31"},
		{name: "timestamps", from: "2026-05-01T00:00:00Z", to: "2026-05-02T00:00:00+03:00"},
		{name: "garbage", from: "yesterday", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseRange(tc.from, tc.to)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseRange(%q, %q) err = %v, wantErr %v", tc.from, tc.to, err, tc.wantErr)
			}
		})
	}
}

func TestExportCSV(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	alice := putUser(t, store, "alice", user.StatusActive)
	putSale(t, store, 1, alice.ID, 75, testNow.Add(-2*time.Hour))

	data, err := svc.ExportCSV(ctx, "top-users", Range{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 || lines[0] != "Username,Transactions,Total Spent" || lines[1] != "alice,1,75.00" {
		t.Fatalf("unexpected csv:\n%s", data)
	}

	for _, name := range Reports {
		if _, err := svc.ExportCSV(ctx, name, Range{}); err != nil {
			t.Fatalf("export %s: %v", name, err)
		}
	}
	if _, err := svc.ExportCSV(ctx, "nope", Range{}); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
