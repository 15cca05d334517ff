package app

import (
	"context"
	"errors"
	"log"

	"github.com/zmooth/zmooth/internal/platform/bulk"
	"github.com/zmooth/zmooth/internal/platform/export"
	"github.com/zmooth/zmooth/internal/services/auth/user"
	"github.com/zmooth/zmooth/internal/services/integrations/mikrotik"
	"github.com/zmooth/zmooth/internal/storage"
)

// ClientBulkActions are accepted by BulkClients.
var ClientBulkActions = []bulk.Action{bulk.Activate, bulk.Suspend, bulk.Delete, bulk.Export}

var (
	clientCSVHeader  = []string{"Username", "Full Name", "Email", "Phone", "Status", "Wallet Balance", "MAC Address", "Last Login", "Created At"}
	balanceCSVHeader = []string{"Username", "Full Name", "Role", "Status", "Wallet Balance"}
)

// clientQuery scopes a listing to customer accounts.
func clientQuery(query storage.ListQuery, status user.Status) storage.UserQuery {
	return storage.UserQuery{ListQuery: query, Roles: []user.Role{user.RoleUser}, Status: status}
}

// ListClients lists customer accounts.
func (s *Service) ListClients(ctx context.Context, query storage.ListQuery, status user.Status) (storage.Page[user.User], error) {
	return s.store.ListUsers(ctx, clientQuery(query, status))
}

// ListBalances lists every account with its wallet balance.
func (s *Service) ListBalances(ctx context.Context, query storage.ListQuery) (storage.Page[user.User], error) {
	return s.store.ListUsers(ctx, storage.UserQuery{ListQuery: query})
}

// SetClientStatus changes one customer's status and mirrors it on the
// router hotspot user.
func (s *Service) SetClientStatus(ctx context.Context, userID, status string) (user.User, error) {
	parsed, err := user.ParseStatus(status)
	if err != nil {
		return user.User{}, err
	}
	n, err := s.store.SetUsersStatus(ctx, []string{userID}, parsed, s.now())
	if err != nil {
		return user.User{}, err
	}
	if n == 0 {
		return user.User{}, storage.ErrNotFound
	}
	updated, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return user.User{}, err
	}
	s.syncClientAccess(ctx, updated)
	s.audit.Record(ctx, "set-status", "clients", []string{userID}, string(parsed))
	return updated, nil
}

// BulkClients activates, suspends or deletes customers.
func (s *Service) BulkClients(ctx context.Context, action bulk.Action, ids []string) (int, error) {
	var (
		n   int
		err error
	)
	switch action {
	case bulk.Activate:
		n, err = s.store.SetUsersStatus(ctx, ids, user.StatusActive, s.now())
	case bulk.Suspend:
		n, err = s.store.SetUsersStatus(ctx, ids, user.StatusSuspended, s.now())
	case bulk.Delete:
		var usernames []string
		for _, userID := range ids {
			if customer, getErr := s.store.GetUser(ctx, userID); getErr == nil {
				usernames = append(usernames, customer.Username)
			}
		}
		n, err = s.store.DeleteUsers(ctx, ids)
		if err == nil {
			for _, username := range usernames {
				if rmErr := s.router.RemoveHotspotUser(ctx, username); rmErr != nil && !errors.Is(rmErr, mikrotik.ErrNotFound) {
					log.Printf("remove hotspot user %s: %v", username, rmErr)
				}
			}
		}
	default:
		return 0, unsupported(action)
	}
	if err != nil {
		return 0, err
	}
	if action != bulk.Delete {
		for _, userID := range ids {
			if customer, getErr := s.store.GetUser(ctx, userID); getErr == nil {
				s.syncClientAccess(ctx, customer)
			}
		}
	}
	s.audit.Record(ctx, string(action), "clients", ids, "")
	return n, nil
}

// syncClientAccess disables the hotspot user of an inactive customer and
// re-enables it otherwise.
func (s *Service) syncClientAccess(ctx context.Context, customer user.User) {
	disabled := !customer.Active()
	err := s.router.UpdateHotspotUser(ctx, customer.Username, mikrotik.HotspotUserUpdate{Disabled: &disabled})
	if err != nil && !errors.Is(err, mikrotik.ErrNotFound) {
		log.Printf("sync hotspot user %s: %v", customer.Username, err)
	}
}

// ExportClients renders matching customers as CSV.
func (s *Service) ExportClients(ctx context.Context, query storage.ListQuery, status user.Status) ([]byte, error) {
	list := func(ctx context.Context, q storage.ListQuery) (storage.Page[user.User], error) {
		return s.store.ListUsers(ctx, clientQuery(q, status))
	}
	return csvExport(ctx, query, list, clientCSVHeader, func(u user.User) []string {
		lastLogin := ""
		if u.LastLogin != nil {
			lastLogin = export.DateTime(*u.LastLogin)
		}
		return []string{u.Username, u.FullName, u.Email, u.Phone, string(u.Status), u.WalletBalance.String(), u.MACAddress, lastLogin, export.DateTime(u.CreatedAt)}
	})
}

// ExportBalances renders wallet balances as CSV.
func (s *Service) ExportBalances(ctx context.Context, query storage.ListQuery) ([]byte, error) {
	list := func(ctx context.Context, q storage.ListQuery) (storage.Page[user.User], error) {
		return s.store.ListUsers(ctx, storage.UserQuery{ListQuery: q})
	}
	return csvExport(ctx, query, list, balanceCSVHeader, func(u user.User) []string {
		return []string{u.Username, u.FullName, string(u.Role), string(u.Status), u.WalletBalance.String()}
	})
}
