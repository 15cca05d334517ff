package app

import (
	"context"
	"errors"
	"strings"

	"github.com/zmooth/zmooth/internal/platform/bulk"
	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/platform/export"
	"github.com/zmooth/zmooth/internal/services/auth/user"
	billing "github.com/zmooth/zmooth/internal/services/billing/domain"
	"github.com/zmooth/zmooth/internal/storage"
)

// AccessBulkActions are accepted by BulkAccessAccounts.
var AccessBulkActions = []bulk.Action{bulk.Activate, bulk.Deactivate, bulk.Delete, bulk.Export}

var accessCSVHeader = []string{"Username", "Service", "Plan", "Profile", "Status", "MAC Address", "Expires At", "Created At"}

// ErrAccessAccountNotFound is returned for a missing access account.
var ErrAccessAccountNotFound = apperrors.New(apperrors.CodeNotFound, "Access account not found")

// AccessInput creates or replaces an access account. Empty credentials are
// generated.
type AccessInput struct {
	Username   string          `json:"username"`
	Password   string          `json:"password"`
	Service    billing.Service `json:"service"`
	PlanID     string          `json:"plan_id"`
	MACAddress string          `json:"mac_address"`
}

// GenerateCredentials returns a fresh username and password pair.
func (s *Service) GenerateCredentials() (billing.Credentials, error) {
	return billing.GenerateCredentials()
}

// CreateAccessAccount stores an account and provisions it on the router.
func (s *Service) CreateAccessAccount(ctx context.Context, in AccessInput) (billing.AccessAccount, error) {
	ctx, span := tracer.Start(ctx, "billing.CreateAccessAccount")
	defer span.End()

	account, err := s.buildAccess(ctx, billing.AccessAccount{}, in)
	if err != nil {
		return billing.AccessAccount{}, err
	}
	accountID, err := s.newID("access account")
	if err != nil {
		return billing.AccessAccount{}, err
	}
	account.ID = accountID
	account.CreatedAt = s.now()
	account.UpdatedAt = account.CreatedAt
	if err := s.store.PutAccessAccount(ctx, account); err != nil {
		return billing.AccessAccount{}, err
	}
	s.provisionAccess(ctx, account)
	s.audit.Record(ctx, "create", "access_accounts", []string{account.ID}, account.Username)
	return account, nil
}

// UpdateAccessAccount replaces the editable fields and re-provisions the
// router entry.
func (s *Service) UpdateAccessAccount(ctx context.Context, accountID string, in AccessInput) (billing.AccessAccount, error) {
	current, err := s.GetAccessAccount(ctx, accountID)
	if err != nil {
		return billing.AccessAccount{}, err
	}
	if strings.TrimSpace(in.Username) == "" {
		in.Username = current.Username
	}
	if strings.TrimSpace(in.Password) == "" {
		in.Password = current.Password
	}
	if in.Service == "" {
		in.Service = current.Service
	}
	if strings.TrimSpace(in.PlanID) == "" {
		in.PlanID = current.PlanID
	}
	updated, err := s.buildAccess(ctx, current, in)
	if err != nil {
		return billing.AccessAccount{}, err
	}
	updated.UpdatedAt = s.now()
	if err := s.store.PutAccessAccount(ctx, updated); err != nil {
		return billing.AccessAccount{}, err
	}
	s.removeAccess(ctx, current)
	if updated.Status == billing.AccessActive {
		s.provisionAccess(ctx, updated)
	}
	s.audit.Record(ctx, "update", "access_accounts", []string{updated.ID}, updated.Username)
	return updated, nil
}

// buildAccess applies in over base, resolving the plan profile and expiry.
func (s *Service) buildAccess(ctx context.Context, base billing.AccessAccount, in AccessInput) (billing.AccessAccount, error) {
	mac, err := user.NormalizeMAC(in.MACAddress)
	if err != nil {
		return billing.AccessAccount{}, err
	}
	account := base
	account.Username = in.Username
	account.Password = in.Password
	account.Service = in.Service
	account.MACAddress = mac
	if strings.TrimSpace(account.Username) == "" || strings.TrimSpace(account.Password) == "" {
		creds, err := billing.GenerateCredentials()
		if err != nil {
			return billing.AccessAccount{}, err
		}
		if strings.TrimSpace(account.Username) == "" {
			account.Username = creds.Username
		}
		if strings.TrimSpace(account.Password) == "" {
			account.Password = creds.Password
		}
	}

	planID := strings.TrimSpace(in.PlanID)
	if (planID != "" && planID != base.PlanID) || base.ExpiresAt == nil {
		if planID == "" {
			return billing.AccessAccount{}, apperrors.Invalid("plan_id", "plan_id is required")
		}
		plan, err := s.GetPlan(ctx, planID)
		if err != nil {
			return billing.AccessAccount{}, err
		}
		expires := billing.AccessExpiry(plan, s.now())
		account.PlanID = plan.ID
		account.Profile = plan.MikrotikProfile
		account.ExpiresAt = &expires
		if account.Service == "" {
			account.Service = plan.Service
		}
		if account.Status == billing.AccessExpired {
			account.Status = billing.AccessActive
		}
	}
	return account.Normalize()
}

// GetAccessAccount loads one account.
func (s *Service) GetAccessAccount(ctx context.Context, accountID string) (billing.AccessAccount, error) {
	account, err := s.store.GetAccessAccount(ctx, strings.TrimSpace(accountID))
	if errors.Is(err, storage.ErrNotFound) {
		return billing.AccessAccount{}, ErrAccessAccountNotFound
	}
	return account, err
}

// ListAccessAccounts lists access accounts.
func (s *Service) ListAccessAccounts(ctx context.Context, query storage.ListQuery) (storage.Page[billing.AccessAccount], error) {
	return s.store.ListAccessAccounts(ctx, query)
}

// DeleteAccessAccount removes the account and its router entry.
func (s *Service) DeleteAccessAccount(ctx context.Context, accountID string) error {
	_, err := s.BulkAccessAccounts(ctx, bulk.Delete, []string{accountID})
	return err
}

// BulkAccessAccounts activates, deactivates or deletes accounts and mirrors
// the change on the router.
func (s *Service) BulkAccessAccounts(ctx context.Context, action bulk.Action, ids []string) (int, error) {
	switch action {
	case bulk.Activate, bulk.Deactivate, bulk.Delete:
	default:
		return 0, unsupported(action)
	}
	accounts := make([]billing.AccessAccount, 0, len(ids))
	for _, accountID := range ids {
		account, err := s.store.GetAccessAccount(ctx, accountID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		accounts = append(accounts, account)
	}

	affected := 0
	switch action {
	case bulk.Delete:
		n, err := s.store.DeleteAccessAccounts(ctx, ids)
		if err != nil {
			return 0, err
		}
		for _, account := range accounts {
			s.removeAccess(ctx, account)
		}
		affected = n
	default:
		status := billing.AccessActive
		if action == bulk.Deactivate {
			status = billing.AccessDisabled
		}
		for _, account := range accounts {
			account.Status = status
			account.UpdatedAt = s.now()
			if err := s.store.PutAccessAccount(ctx, account); err != nil {
				return affected, err
			}
			s.setAccessEnabled(ctx, account, status == billing.AccessActive)
			affected++
		}
	}
	s.audit.Record(ctx, string(action), "access_accounts", ids, "")
	return affected, nil
}

// ExpireAccessAccounts disables accounts past their expiry on the router.
func (s *Service) ExpireAccessAccounts(ctx context.Context) (int, error) {
	expired, err := s.store.ListExpiredAccessAccounts(ctx, s.now())
	if err != nil {
		return 0, err
	}
	for _, account := range expired {
		account.Status = billing.AccessExpired
		account.UpdatedAt = s.now()
		if err := s.store.PutAccessAccount(ctx, account); err != nil {
			return 0, err
		}
		s.setAccessEnabled(ctx, account, false)
	}
	return len(expired), nil
}

// ExportAccessAccounts renders matching accounts as CSV. Passwords are left
// out.
func (s *Service) ExportAccessAccounts(ctx context.Context, query storage.ListQuery) ([]byte, error) {
	return csvExport(ctx, query, s.store.ListAccessAccounts, accessCSVHeader, func(a billing.AccessAccount) []string {
		expires := ""
		if a.ExpiresAt != nil {
			expires = export.DateTime(*a.ExpiresAt)
		}
		return []string{a.Username, string(a.Service), a.PlanID, a.Profile, string(a.Status), a.MACAddress, expires, export.DateTime(a.CreatedAt)}
	})
}
