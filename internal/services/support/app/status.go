package app

import (
	"context"
	"time"

	"github.com/zmooth/zmooth/internal/platform/timeouts"
	"github.com/zmooth/zmooth/internal/storage"
)

// Component states on the status page.
const (
	StateOK       = "ok"
	StateDown     = "down"
	StateDisabled = "disabled"
)

// ComponentStatus is one dependency check.
type ComponentStatus struct {
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

// SystemStatus is the support status page.
type SystemStatus struct {
	Database  ComponentStatus        `json:"database"`
	Redis     ComponentStatus        `json:"redis"`
	Routers   []storage.RouterStatus `json:"routers"`
	CheckedAt time.Time              `json:"checked_at"`
}

// Status pings the database and Redis and lists router polls.
func (s *Service) Status(ctx context.Context) SystemStatus {
	out := SystemStatus{
		Database:  check(ctx, s.store),
		Redis:     ComponentStatus{State: StateDisabled},
		CheckedAt: s.now(),
	}
	if s.redis != nil {
		out.Redis = check(ctx, s.redis)
	}
	if out.Database.State == StateOK {
		routers, err := s.store.ListRouterStatuses(ctx)
		if err != nil {
			out.Database = ComponentStatus{State: StateDown, Error: err.Error()}
		}
		out.Routers = routers
	}
	return out
}

func check(ctx context.Context, p Pinger) ComponentStatus {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Ping)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return ComponentStatus{State: StateDown, Error: err.Error()}
	}
	return ComponentStatus{State: StateOK}
}
