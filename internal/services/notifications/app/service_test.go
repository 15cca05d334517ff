package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/zmooth/zmooth/internal/platform/requestctx"
	"github.com/zmooth/zmooth/internal/services/auth/user"
	notifications "github.com/zmooth/zmooth/internal/services/notifications/domain"
	"github.com/zmooth/zmooth/internal/services/shared/events"
	"github.com/zmooth/zmooth/internal/storage"
	"github.com/zmooth/zmooth/internal/storage/sqlite"
)

func TestCreateListAndMarkRead(t *testing.T) {
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "notifications.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	var published []events.Event
	svc := NewService(store, events.PublisherFunc(func(e events.Event) { published = append(published, e) }))
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	ids := []string{"n1", "n2"}
	svc.clock = func() time.Time { return now }
	svc.newID = func() (string, error) {
		next := ids[0]
		ids = ids[1:]
		return next, nil
	}

	ctx := requestctx.WithUsername(context.Background(), "ops")
	created, err := svc.Create(ctx, notifications.CreateInput{Title: "Upgrade", Message: "New plans live", Audience: "admins"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.CreatedBy != "ops" || created.Level != notifications.LevelInfo {
		t.Fatalf("unexpected notification: %+v", created)
	}
	if len(published) != 1 || published[0].Type != events.NotificationCreated {
		t.Fatalf("expected notification event, got %+v", published)
	}
	now = now.Add(time.Minute)
	if _, err := svc.Create(ctx, notifications.CreateInput{Title: "Promo", Message: "Double data weekend"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	customerPage, err := svc.List(context.Background(), user.RoleUser, false, storage.ListQuery{})
	if err != nil {
		t.Fatalf("list customer: %v", err)
	}
	if len(customerPage.Items) != 1 || customerPage.Items[0].ID != "n2" {
		t.Fatalf("customer should only see the broadcast, got %+v", customerPage.Items)
	}
	adminPage, err := svc.List(context.Background(), user.RoleAdmin, false, storage.ListQuery{})
	if err != nil {
		t.Fatalf("list admin: %v", err)
	}
	if len(adminPage.Items) != 2 || adminPage.Items[0].ID != "n2" {
		t.Fatalf("admin listing should be newest first, got %+v", adminPage.Items)
	}

	n, err := svc.MarkRead(context.Background(), []string{"n1"})
	if err != nil || n != 1 {
		t.Fatalf("mark read = %d, %v", n, err)
	}
	unread, err := svc.List(context.Background(), user.RoleAdmin, true, storage.ListQuery{})
	if err != nil {
		t.Fatalf("list unread: %v", err)
	}
	if len(unread.Items) != 1 || unread.Items[0].ID != "n2" {
		t.Fatalf("unexpected unread: %+v", unread.Items)
	}
}
