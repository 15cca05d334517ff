package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zmooth/zmooth/internal/platform/bulk"
	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/platform/export"
	"github.com/zmooth/zmooth/internal/services/auth/user"
	"github.com/zmooth/zmooth/internal/services/billing/cycle"
	billing "github.com/zmooth/zmooth/internal/services/billing/domain"
	"github.com/zmooth/zmooth/internal/storage"
)

// VoucherBulkActions are accepted by BulkVouchers.
var VoucherBulkActions = []bulk.Action{bulk.Disable, bulk.Enable, bulk.Delete, bulk.Export}

var voucherCSVHeader = []string{"Code", "Plan", "Status", "Batch", "Used By", "Used At", "Expires At", "Created At"}

// batchAttempts bounds regeneration when a batch collides with stored codes.
const batchAttempts = 3

// GenerateVouchers creates a batch of active vouchers for one plan.
func (s *Service) GenerateVouchers(ctx context.Context, in billing.VoucherBatchInput) ([]billing.Voucher, error) {
	ctx, span := tracer.Start(ctx, "billing.GenerateVouchers")
	defer span.End()

	if err := in.Validate(); err != nil {
		return nil, err
	}
	plan, err := s.GetPlan(ctx, strings.TrimSpace(in.PlanID))
	if err != nil {
		return nil, err
	}
	now := s.now()
	expiresAt := in.ExpiresAt
	if expiresAt == nil && strings.TrimSpace(in.Validity) != "" {
		expires := cycle.ExpiryFromText(now, in.Validity)
		expiresAt = &expires
	}
	if expiresAt != nil && !expiresAt.After(now) {
		return nil, apperrors.Invalid("expires_at", "expiry must be in the future")
	}
	batchID, err := s.newID("batch")
	if err != nil {
		return nil, err
	}
	label := strings.TrimSpace(in.Label)
	if label == "" {
		label = plan.Name + " " + now.Format("2006-01-02 15:04")
	}

	for attempt := 1; ; attempt++ {
		vouchers, err := s.buildBatch(ctx, in.Count, plan.ID, batchID, label, expiresAt, now)
		if err != nil {
			return nil, err
		}
		err = s.store.PutVouchers(ctx, vouchers)
		if err == nil {
			s.audit.Record(ctx, "generate", "vouchers", []string{batchID}, fmt.Sprintf("%d x %s", in.Count, plan.Name))
			return vouchers, nil
		}
		if apperrors.CodeOf(err) != apperrors.CodeAlreadyExists || attempt >= batchAttempts {
			return nil, err
		}
	}
}

func (s *Service) buildBatch(ctx context.Context, count int, planID, batchID, label string, expiresAt *time.Time, now time.Time) ([]billing.Voucher, error) {
	seen := make(map[string]struct{}, count)
	vouchers := make([]billing.Voucher, 0, count)
	for len(vouchers) < count {
		code, err := billing.GenerateVoucherCode()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		exists, err := s.store.VoucherCodeExists(ctx, code)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}
		seen[code] = struct{}{}
		voucherID, err := s.newID("voucher")
		if err != nil {
			return nil, err
		}
		vouchers = append(vouchers, billing.Voucher{
			ID:         voucherID,
			Code:       code,
			PlanID:     planID,
			Status:     billing.VoucherActive,
			BatchID:    batchID,
			BatchLabel: label,
			ExpiresAt:  expiresAt,
			CreatedBy:  callerID(ctx),
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	return vouchers, nil
}

// RedeemResult is a redeemed voucher and the plan it activated.
type RedeemResult struct {
	Voucher     billing.Voucher
	Plan        billing.Plan
	UserPlan    billing.UserPlan
	Transaction billing.Transaction
}

// RedeemVoucher marks a voucher used by userID, records a zero-amount
// purchase and activates the plan.
func (s *Service) RedeemVoucher(ctx context.Context, userID, code string) (RedeemResult, error) {
	ctx, span := tracer.Start(ctx, "billing.RedeemVoucher")
	defer span.End()

	normalized, err := billing.NormalizeVoucherCode(code)
	if err != nil {
		return RedeemResult{}, err
	}
	customer, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return RedeemResult{}, err
	}

	var result RedeemResult
	err = s.store.InTx(ctx, func(tx storage.Store) error {
		voucher, err := tx.GetVoucherByCode(ctx, normalized)
		if errors.Is(err, storage.ErrNotFound) {
			return billing.ErrVoucherNotFound
		}
		if err != nil {
			return err
		}
		if err := voucher.Redeemable(s.now()); err != nil {
			return err
		}
		plan, err := tx.GetPlan(ctx, voucher.PlanID)
		if errors.Is(err, storage.ErrNotFound) {
			return billing.ErrPlanUnavailable
		}
		if err != nil {
			return err
		}
		voucher = voucher.Redeem(customer.ID, s.now())
		if err := tx.PutVoucher(ctx, voucher); err != nil {
			return err
		}
		txn, err := s.newTransaction(customer.ID, billing.TransactionPurchase, billing.MethodVoucher, 0, plan.Currency)
		if err != nil {
			return err
		}
		txn.PlanID = plan.ID
		txn.ProviderRef = voucher.Code
		txn = txn.Complete(voucher.Code, s.now())
		if err := tx.PutTransaction(ctx, txn); err != nil {
			return err
		}
		up, err := s.activate(ctx, tx, plan, customer.ID, txn.ID)
		if err != nil {
			return err
		}
		result = RedeemResult{Voucher: voucher, Plan: plan, UserPlan: up, Transaction: txn}
		return nil
	})
	if err != nil {
		return RedeemResult{}, err
	}
	s.provisionCustomer(ctx, customer, result.Plan)
	return result, nil
}

// PortalRedeemInput comes from the captive portal form and the hotspot
// redirect parameters.
type PortalRedeemInput struct {
	Code     string
	Username string
	MAC      string
	IP       string
}

// PortalRedeem redeems a voucher from the captive portal. Without a username
// the voucher code becomes a portal customer account.
func (s *Service) PortalRedeem(ctx context.Context, in PortalRedeemInput) (user.User, RedeemResult, error) {
	normalized, err := billing.NormalizeVoucherCode(in.Code)
	if err != nil {
		return user.User{}, RedeemResult{}, err
	}
	mac, err := user.NormalizeMAC(in.MAC)
	if err != nil {
		return user.User{}, RedeemResult{}, err
	}

	customer, err := s.portalCustomer(ctx, strings.TrimSpace(in.Username), normalized)
	if err != nil {
		return user.User{}, RedeemResult{}, err
	}
	if mac != "" && customer.MACAddress != mac {
		customer.MACAddress = mac
		customer.UpdatedAt = s.now()
		if err := s.store.PutUser(ctx, customer); err != nil {
			return user.User{}, RedeemResult{}, err
		}
	}
	result, err := s.RedeemVoucher(ctx, customer.ID, normalized)
	if err != nil {
		return user.User{}, RedeemResult{}, err
	}
	return customer, result, nil
}

func (s *Service) portalCustomer(ctx context.Context, username, code string) (user.User, error) {
	if username != "" {
		existing, err := s.store.GetUserByUsername(ctx, username)
		if errors.Is(err, storage.ErrNotFound) {
			return user.User{}, apperrors.New(apperrors.CodeNotFound, "User not found")
		}
		if err != nil {
			return user.User{}, err
		}
		if !existing.Active() {
			return user.User{}, existing.InactiveError()
		}
		return existing, nil
	}

	username = strings.ToLower(strings.ReplaceAll(code, "-", ""))
	existing, err := s.store.GetUserByUsername(ctx, username)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return user.User{}, err
	}
	creds, err := billing.GenerateCredentials()
	if err != nil {
		return user.User{}, err
	}
	hash, err := user.HashPassword(creds.Password)
	if err != nil {
		return user.User{}, err
	}
	customerID, err := s.newID("user")
	if err != nil {
		return user.User{}, err
	}
	now := s.now()
	customer := user.User{
		ID:           customerID,
		Email:        username + "@portal.local",
		Username:     username,
		FullName:     "Voucher " + code,
		PasswordHash: hash,
		Role:         user.RoleUser,
		Status:       user.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.PutUser(ctx, customer); err != nil {
		return user.User{}, err
	}
	return customer, nil
}

// ListVouchers lists vouchers.
func (s *Service) ListVouchers(ctx context.Context, query storage.ListQuery) (storage.Page[billing.Voucher], error) {
	return s.store.ListVouchers(ctx, query)
}

// VoucherStats counts vouchers per status and batch.
func (s *Service) VoucherStats(ctx context.Context) (billing.VoucherStats, error) {
	return s.store.VoucherStats(ctx)
}

// BulkVouchers disables, re-enables or deletes vouchers. Used vouchers are
// never re-enabled.
func (s *Service) BulkVouchers(ctx context.Context, action bulk.Action, ids []string) (int, error) {
	var (
		n   int
		err error
	)
	switch action {
	case bulk.Disable:
		n, err = s.store.SetVouchersStatus(ctx, ids, billing.VoucherDisabled, s.now())
	case bulk.Enable:
		n, err = s.store.SetVouchersStatus(ctx, ids, billing.VoucherActive, s.now())
	case bulk.Delete:
		n, err = s.store.DeleteVouchers(ctx, ids)
	default:
		return 0, unsupported(action)
	}
	if err != nil {
		return 0, err
	}
	s.audit.Record(ctx, string(action), "vouchers", ids, "")
	return n, nil
}

// ExportVouchers renders matching vouchers as CSV.
func (s *Service) ExportVouchers(ctx context.Context, query storage.ListQuery) ([]byte, error) {
	return csvExport(ctx, query, s.store.ListVouchers, voucherCSVHeader, func(v billing.Voucher) []string {
		usedAt, expiresAt := "", ""
		if v.UsedAt != nil {
			usedAt = export.DateTime(*v.UsedAt)
		}
		if v.ExpiresAt != nil {
			expiresAt = export.DateTime(*v.ExpiresAt)
		}
		return []string{v.Code, v.PlanID, string(v.Status), v.BatchLabel, v.UsedBy, usedAt, expiresAt, export.DateTime(v.CreatedAt)}
	})
}
