package app

import (
	"context"
	"errors"
	"log"

	accounting "github.com/zmooth/zmooth/internal/services/accounting/domain"
	"github.com/zmooth/zmooth/internal/services/integrations/mikrotik"
)

// SessionTerminator stops a user's accounting sessions.
type SessionTerminator interface {
	TerminateUserSessions(ctx context.Context, userID, cause string) (int, error)
}

// ExpiryResult counts what one expiry sweep retired.
type ExpiryResult struct {
	UserPlans      int `json:"user_plans"`
	Sessions       int `json:"sessions"`
	AccessAccounts int `json:"access_accounts"`
	Vouchers       int `json:"vouchers"`
}

// ExpireAll retires expired plan activations, access accounts and vouchers.
func (s *Service) ExpireAll(ctx context.Context) (ExpiryResult, error) {
	ctx, span := tracer.Start(ctx, "billing.ExpireAll")
	defer span.End()

	var (
		result ExpiryResult
		err    error
	)
	if result.UserPlans, result.Sessions, err = s.ExpireUserPlans(ctx); err != nil {
		return result, err
	}
	if result.AccessAccounts, err = s.ExpireAccessAccounts(ctx); err != nil {
		return result, err
	}
	if result.Vouchers, err = s.store.ExpireVouchers(ctx, s.now()); err != nil {
		return result, err
	}
	return result, nil
}

// ExpireUserPlans deactivates activations past expiry and disables the
// hotspot user when the customer has no plan left. Those customers' active
// sessions are terminated with Plan-Expired.
func (s *Service) ExpireUserPlans(ctx context.Context) (plans, sessions int, err error) {
	expired, err := s.store.ListExpiredUserPlans(ctx, s.now())
	if err != nil {
		return 0, 0, err
	}
	for _, up := range expired {
		up.IsActive = false
		up.UpdatedAt = s.now()
		if err := s.store.PutUserPlan(ctx, up); err != nil {
			return 0, sessions, err
		}
		remaining, err := s.store.ListActiveUserPlans(ctx, up.UserID)
		if err != nil {
			return 0, sessions, err
		}
		if len(remaining) > 0 {
			continue
		}
		if s.sessions != nil {
			n, err := s.sessions.TerminateUserSessions(ctx, up.UserID, accounting.CausePlanExpired)
			if err != nil {
				return 0, sessions, err
			}
			sessions += n
		}
		customer, err := s.store.GetUser(ctx, up.UserID)
		if err != nil {
			log.Printf("load customer %s: %v", up.UserID, err)
			continue
		}
		disabled := true
		if err := s.router.UpdateHotspotUser(ctx, customer.Username, mikrotik.HotspotUserUpdate{Disabled: &disabled}); err != nil && !errors.Is(err, mikrotik.ErrNotFound) {
			log.Printf("disable hotspot user %s: %v", customer.Username, err)
		}
	}
	return len(expired), sessions, nil
}
