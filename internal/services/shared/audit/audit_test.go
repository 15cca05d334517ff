package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/zmooth/zmooth/internal/platform/requestctx"
	"github.com/zmooth/zmooth/internal/storage"
	"github.com/zmooth/zmooth/internal/storage/sqlite"
)

func TestRecordUsesCallerFromContext(t *testing.T) {
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	recorder := NewRecorder(store, func() time.Time { return now })
	ctx := requestctx.WithUsername(requestctx.WithUserID(context.Background(), "admin-1"), "ops")
	recorder.Record(ctx, "delete", "plans", []string{"p1", "p2"}, "bulk")

	page, err := store.ListAuditEvents(context.Background(), storage.ListQuery{})
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected one event, got %d", len(page.Items))
	}
	got := page.Items[0]
	if got.ActorID != "admin-1" || got.Actor != "ops" || got.Action != "delete" || len(got.TargetIDs) != 2 {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestRecordWithoutStoreIsNoop(t *testing.T) {
	NewRecorder(nil, nil).Record(context.Background(), "create", "plans", nil, "")
}
