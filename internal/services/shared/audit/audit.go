// Package audit records admin mutations with the acting user from context.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/zmooth/zmooth/internal/platform/id"
	"github.com/zmooth/zmooth/internal/platform/requestctx"
	"github.com/zmooth/zmooth/internal/storage"
)

// Recorder writes audit events.
type Recorder struct {
	store storage.UserStore
	clock func() time.Time
}

// NewRecorder builds a recorder. A nil store makes Record a no-op.
func NewRecorder(store storage.UserStore, clock func() time.Time) Recorder {
	if clock == nil {
		clock = time.Now
	}
	return Recorder{store: store, clock: clock}
}

// Record stores one event. Failures are logged; an audit write never fails
// the mutation it describes.
func (r Recorder) Record(ctx context.Context, action, resource string, targetIDs []string, detail string) {
	if r.store == nil {
		return
	}
	eventID, err := id.NewID()
	if err != nil {
		log.Printf("audit %s %s: %v", action, resource, err)
		return
	}
	err = r.store.PutAuditEvent(ctx, storage.AuditEvent{
		ID:        eventID,
		ActorID:   requestctx.UserIDFromContext(ctx),
		Actor:     requestctx.UsernameFromContext(ctx),
		Action:    action,
		Resource:  resource,
		TargetIDs: targetIDs,
		Detail:    detail,
		CreatedAt: r.clock().UTC(),
	})
	if err != nil {
		log.Printf("audit %s %s: %v", action, resource, err)
	}
}
