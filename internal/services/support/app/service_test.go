package app

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/storage"
	"github.com/zmooth/zmooth/internal/storage/sqlite"
)

func newTestService(t *testing.T, redis Pinger) *Service {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "support.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	svc := NewService(store, redis)
	now := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)
	svc.clock = func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	return svc
}

func TestEmbeddedLibrary(t *testing.T) {
	lib, err := LoadLibrary()
	if err != nil {
		t.Fatalf("load library: %v", err)
	}
	list := lib.List()
	if len(list) < 4 {
		t.Fatalf("expected embedded articles, got %d", len(list))
	}
	for _, a := range list {
		if a.Title == "" || a.Summary == "" || a.HTML != "" {
			t.Fatalf("unexpected list entry: %+v", a)
		}
	}
	article, err := lib.Get("redeeming-vouchers")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !strings.Contains(article.HTML, "<h1>Redeeming a voucher</h1>") || !strings.Contains(article.HTML, "<code>XXXX-XXXX-XXXX</code>") {
		t.Fatalf("unexpected html:\n%s", article.HTML)
	}
	if _, err := lib.Get("missing"); !errors.Is(err, ErrArticleNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLibraryEscapesRawHTML(t *testing.T) {
	fsys := fstest.MapFS{
		"docs/a.md": {Data: []byte("# Alpha\n\nFirst line\nsecond line.\n\n<script>alert(1)</script>\n")},
	}
	lib, err := loadLibrary(fsys, "docs")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	article, err := lib.Get("a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if article.Summary != "First line second line." {
		t.Fatalf("summary = %q", article.Summary)
	}
	if strings.Contains(article.HTML, "<script>") {
		t.Fatalf("raw html must not pass through:\n%s", article.HTML)
	}
}

func TestTicketLifecycle(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	ticket, err := svc.CreateTicket(ctx, "user-1", TicketInput{Subject: " Slow speeds ", Message: "Since Monday"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ticket.Priority != PriorityMedium || ticket.Status != storage.TicketOpen || ticket.Subject != "Slow speeds" {
		t.Fatalf("unexpected ticket: %+v", ticket)
	}
	if _, err := svc.CreateTicket(ctx, "user-2", TicketInput{Subject: "Billing", Message: "Charged twice", Priority: "urgent"}); err != nil {
		t.Fatalf("create second: %v", err)
	}
	if _, err := svc.CreateTicket(ctx, "user-1", TicketInput{Subject: "x", Message: "y", Priority: "whenever"}); apperrors.CodeOf(err) != apperrors.CodeInvalidArgument {
		t.Fatalf("expected invalid priority, got %v", err)
	}

	mine, err := svc.ListTickets(ctx, storage.TicketQuery{UserID: "user-1"})
	if err != nil {
		t.Fatalf("list mine: %v", err)
	}
	if len(mine.Items) != 1 {
		t.Fatalf("expected 1 ticket for user-1, got %d", len(mine.Items))
	}
	if _, err := svc.GetTicket(ctx, "user-2", ticket.ID); !errors.Is(err, ErrTicketNotFound) {
		t.Fatalf("foreign ticket should be hidden, got %v", err)
	}

	updated, err := svc.UpdateTicketStatus(ctx, ticket.ID, "in_progress")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != storage.TicketInProgress || !updated.UpdatedAt.After(ticket.UpdatedAt) {
		t.Fatalf("unexpected update: %+v", updated)
	}
	if _, err := svc.UpdateTicketStatus(ctx, ticket.ID, "done"); apperrors.CodeOf(err) != apperrors.CodeInvalidArgument {
		t.Fatalf("expected invalid status, got %v", err)
	}

	data, err := svc.ExportTickets(ctx, storage.TicketQuery{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(string(data)), "\n"); len(lines) != 3 {
		t.Fatalf("expected header and 2 rows:\n%s", data)
	}
}

func TestStatus(t *testing.T) {
	svc := newTestService(t, nil)
	got := svc.Status(context.Background())
	if got.Database.State != StateOK || got.Redis.State != StateDisabled {
		t.Fatalf("unexpected status: %+v", got)
	}

	down := newTestService(t, PingFunc(func(context.Context) error { return errors.New("connection refused") }))
	got = down.Status(context.Background())
	if got.Redis.State != StateDown || got.Redis.Error != "connection refused" {
		t.Fatalf("unexpected redis status: %+v", got.Redis)
	}
}
