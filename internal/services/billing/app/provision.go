package app

import (
	"context"
	"errors"
	"log"

	"github.com/zmooth/zmooth/internal/platform/bulk"
	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/services/auth/user"
	billing "github.com/zmooth/zmooth/internal/services/billing/domain"
	"github.com/zmooth/zmooth/internal/services/integrations/mikrotik"
)

func unsupported(action bulk.Action) error {
	return apperrors.WithMetadata(apperrors.CodeUnsupportedAction, "unsupported bulk action "+string(action), map[string]string{"action": string(action)})
}

// hotspotUser is the router entry for a customer on plan. The router
// password is the username; the captive portal signs the device in.
func hotspotUser(customer user.User, plan billing.Plan) mikrotik.HotspotUser {
	return mikrotik.HotspotUser{
		Name:            customer.Username,
		Password:        customer.Username,
		Profile:         plan.MikrotikProfile,
		MACAddress:      customer.MACAddress,
		LimitUptime:     plan.SessionTimeout(),
		LimitBytesTotal: limitBytes(plan),
	}
}

func limitBytes(plan billing.Plan) int64 {
	if plan.Type != billing.PlanDataBased {
		return 0
	}
	return plan.DataLimitMB * billing.BytesPerMB
}

// provisionCustomer enables the customer's hotspot user, creating it on first
// activation. Router errors are logged.
func (s *Service) provisionCustomer(ctx context.Context, customer user.User, plan billing.Plan) {
	entry := hotspotUser(customer, plan)
	enabled := false
	err := s.router.UpdateHotspotUser(ctx, entry.Name, mikrotik.HotspotUserUpdate{
		Profile:         entry.Profile,
		LimitUptime:     entry.LimitUptime,
		LimitBytesTotal: entry.LimitBytesTotal,
		Disabled:        &enabled,
	})
	if errors.Is(err, mikrotik.ErrNotFound) {
		err = s.router.AddHotspotUser(ctx, entry)
	}
	if err != nil {
		log.Printf("provision hotspot user %s: %v", entry.Name, err)
	}
}

// provisionAccess creates the router credential of an access account.
func (s *Service) provisionAccess(ctx context.Context, account billing.AccessAccount) {
	var err error
	switch account.Service {
	case billing.ServicePPPoE:
		err = s.router.AddPPPSecret(ctx, mikrotik.PPPSecret{
			Name:     account.Username,
			Password: account.Password,
			Profile:  account.Profile,
			Service:  "pppoe",
		})
	default:
		err = s.router.AddHotspotUser(ctx, mikrotik.HotspotUser{
			Name:       account.Username,
			Password:   account.Password,
			Profile:    account.Profile,
			MACAddress: account.MACAddress,
		})
	}
	if err != nil {
		log.Printf("provision %s account %s: %v", account.Service, account.Username, err)
	}
}

// setAccessEnabled enables or disables an access account on the router.
// PPP secrets have no disabled flag, so they are removed and re-added.
func (s *Service) setAccessEnabled(ctx context.Context, account billing.AccessAccount, enabled bool) {
	if account.Service == billing.ServicePPPoE {
		if enabled {
			s.provisionAccess(ctx, account)
			return
		}
		s.removeAccess(ctx, account)
		return
	}
	disabled := !enabled
	err := s.router.UpdateHotspotUser(ctx, account.Username, mikrotik.HotspotUserUpdate{Disabled: &disabled})
	if errors.Is(err, mikrotik.ErrNotFound) && enabled {
		s.provisionAccess(ctx, account)
		return
	}
	if err != nil && !errors.Is(err, mikrotik.ErrNotFound) {
		log.Printf("set %s account %s enabled=%t: %v", account.Service, account.Username, enabled, err)
	}
}

func (s *Service) removeAccess(ctx context.Context, account billing.AccessAccount) {
	var err error
	if account.Service == billing.ServicePPPoE {
		err = s.router.RemovePPPSecret(ctx, account.Username)
	} else {
		err = s.router.RemoveHotspotUser(ctx, account.Username)
	}
	if err != nil && !errors.Is(err, mikrotik.ErrNotFound) {
		log.Printf("remove %s account %s: %v", account.Service, account.Username, err)
	}
}
