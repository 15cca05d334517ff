package seed

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	authapp "github.com/zmooth/zmooth/internal/services/auth/app"
	"github.com/zmooth/zmooth/internal/services/auth/token"
	billingapp "github.com/zmooth/zmooth/internal/services/billing/app"
	networkapp "github.com/zmooth/zmooth/internal/services/network/app"
	network "github.com/zmooth/zmooth/internal/services/network/domain"
	"github.com/zmooth/zmooth/internal/storage/sqlite"
)

const testCatalog = `
admin:
  username: root
  email: root@example.com
  password: Sup3r!secret
plans:
  - name: Daily 1GB
    type: data_based
    price: "50"
    data_limit_mb: 1024
    validity_days: 1
    download_kbps: 2048
    upload_kbps: 1024
  - name: Weekly Unlimited
    type: unlimited
    price: "350.50"
    billing_cycle: weekly
network:
  - kind: mac-filter
    name: Lobby TV
    spec:
      mac: aa-bb-cc-dd-ee-ff
      device_name: tv
      action: allow
vouchers:
  - plan: Daily 1GB
    label: launch
    count: 5
    validity: 30 days
`

func newTestRunner(t *testing.T) (Runner, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "seed.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	issuer, err := token.NewIssuer(token.Config{Secret: []byte(strings.Repeat("s", token.MinSecretLength))})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	return Runner{
		Lookup:  store,
		Admins:  authapp.NewService(store, issuer),
		Billing: billingapp.NewService(billingapp.Config{Store: store}),
		Records: networkapp.NewService(store, nil),
	}, store
}

func TestApplyIsIdempotent(t *testing.T) {
	catalog, err := ParseCatalog([]byte(testCatalog))
	if err != nil {
		t.Fatalf("parse catalog: %v", err)
	}
	runner, store := newTestRunner(t)
	ctx := context.Background()

	first, err := runner.Apply(ctx, catalog)
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}
	want := Summary{AdminCreated: true, PlansCreated: 2, RecordsCreated: 1, VouchersCreated: 5}
	if first != want {
		t.Fatalf("first summary = %+v, want %+v", first, want)
	}

	second, err := runner.Apply(ctx, catalog)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	want = Summary{PlansSkipped: 2, RecordsSkipped: 1, BatchesSkipped: 1}
	if second != want {
		t.Fatalf("second summary = %+v, want %+v", second, want)
	}

	plan, err := store.GetPlanByName(ctx, "Weekly Unlimited")
	if err != nil {
		t.Fatalf("get plan: %v", err)
	}
	if plan.Price.String() != "350.50" || string(plan.BillingCycle) != "weekly" || !plan.IsActive {
		t.Fatalf("unexpected plan %+v", plan)
	}
	records, err := store.ListAllRecords(ctx, network.KindMACFilter, false)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	filter, ok := records[0].Spec.(network.MACFilter)
	if !ok || filter.MAC != "AA:BB:CC:DD:EE:FF" {
		t.Fatalf("unexpected record spec %#v", records[0].Spec)
	}
}

func TestApplyRejectsVoucherForUnknownPlan(t *testing.T) {
	runner, _ := newTestRunner(t)
	catalog := Catalog{Vouchers: []CatalogBatch{{Plan: "Missing", Label: "x", Count: 1}}}
	if _, err := runner.Apply(context.Background(), catalog); err == nil {
		t.Fatal("expected missing plan error")
	}
}

func TestParseCatalogValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "unknown field", yaml: "plans:\n  - name: Daily\n    price: \"10\"\n    colour: red\n"},
		{name: "missing plan name", yaml: "plans:\n  - price: \"10\"\n"},
		{name: "bad price", yaml: "plans:\n  - name: Daily\n    price: lots\n"},
		{name: "duplicate plan", yaml: "plans:\n  - name: Daily\n    price: \"1\"\n  - name: Daily\n    price: \"2\"\n"},
		{name: "record without kind", yaml: "network:\n  - name: tv\n"},
		{name: "duplicate batch", yaml: "vouchers:\n  - label: a\n  - label: a\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseCatalog([]byte(tc.yaml)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadCatalogReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(testCatalog), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	catalog, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if len(catalog.Plans) != 2 || catalog.Admin == nil || catalog.Admin.Username != "root" {
		t.Fatalf("unexpected catalog %+v", catalog)
	}
	if _, err := LoadCatalog(" "); err == nil {
		t.Fatal("expected path error")
	}
}

func TestRunWritesSummary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(path, []byte(testCatalog), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	var out strings.Builder
	err := Run(context.Background(), Config{CatalogPath: path, DBPath: filepath.Join(dir, "data", "zmooth.db")}, &out)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), `"plans_created": 2`) {
		t.Fatalf("summary = %s", out.String())
	}
}

func TestStarterCatalogApplies(t *testing.T) {
	catalog, err := LoadCatalog(filepath.Join("testdata", "catalog.yaml"))
	if err != nil {
		t.Fatalf("load starter catalog: %v", err)
	}
	runner, _ := newTestRunner(t)
	summary, err := runner.Apply(context.Background(), catalog)
	if err != nil {
		t.Fatalf("apply starter catalog: %v", err)
	}
	if summary.PlansCreated != 3 || summary.RecordsCreated != 2 || summary.VouchersCreated != 50 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}
