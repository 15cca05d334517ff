// Package app stores operator notifications and announces them on the live
// feed.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/zmooth/zmooth/internal/platform/id"
	"github.com/zmooth/zmooth/internal/platform/requestctx"
	"github.com/zmooth/zmooth/internal/services/auth/user"
	notifications "github.com/zmooth/zmooth/internal/services/notifications/domain"
	"github.com/zmooth/zmooth/internal/services/shared/events"
	"github.com/zmooth/zmooth/internal/storage"
)

// Service manages notifications.
type Service struct {
	store  storage.OpsStore
	events events.Publisher
	clock  func() time.Time
	newID  func() (string, error)
}

// NewService builds the service. A nil publisher drops live events.
func NewService(store storage.OpsStore, publisher events.Publisher) *Service {
	return &Service{
		store:  store,
		events: events.OrDiscard(publisher),
		clock:  time.Now,
		newID:  id.NewID,
	}
}

func (s *Service) nowUTC() time.Time {
	return s.clock().UTC()
}

// Create stores a notification from the calling admin and publishes it.
func (s *Service) Create(ctx context.Context, in notifications.CreateInput) (storage.Notification, error) {
	in, err := in.Normalize()
	if err != nil {
		return storage.Notification{}, err
	}
	notificationID, err := s.newID()
	if err != nil {
		return storage.Notification{}, fmt.Errorf("generate notification id: %w", err)
	}
	n := storage.Notification{
		ID:        notificationID,
		Title:     in.Title,
		Message:   in.Message,
		Audience:  in.Audience,
		Level:     in.Level,
		CreatedBy: requestctx.UsernameFromContext(ctx),
		CreatedAt: s.nowUTC(),
	}
	if err := s.store.PutNotification(ctx, n); err != nil {
		return storage.Notification{}, err
	}
	s.events.Publish(events.Event{Type: events.NotificationCreated, Data: n, At: n.CreatedAt})
	return n, nil
}

// List pages the notifications visible to role.
func (s *Service) List(ctx context.Context, role user.Role, unreadOnly bool, query storage.ListQuery) (storage.Page[storage.Notification], error) {
	return s.store.ListNotifications(ctx, notifications.AudiencesFor(role), unreadOnly, query)
}

// MarkRead marks a selection read.
func (s *Service) MarkRead(ctx context.Context, ids []string) (int, error) {
	return s.store.MarkNotificationsRead(ctx, ids, s.nowUTC())
}
