// Package events carries live dashboard events from services to subscribers.
package events

import "time"

// Event types pushed to the live feed.
const (
	NotificationCreated = "notification.created"
	SessionStarted      = "session.started"
	SessionStopped      = "session.stopped"
	PaymentCompleted    = "payment.completed"
	Overview            = "overview"
)

// Event is one message on the live feed.
type Event struct {
	Type string    `json:"type"`
	Data any       `json:"data,omitempty"`
	At   time.Time `json:"at"`
}

// Publisher fans events out. Publish must not block.
type Publisher interface {
	Publish(Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event)

func (f PublisherFunc) Publish(e Event) {
	if f != nil {
		f(e)
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(Event) {}

// OrDiscard returns p, or Discard when p is nil.
func OrDiscard(p Publisher) Publisher {
	if p == nil {
		return Discard{}
	}
	return p
}
