package domain

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"time"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
)

var (
	// ErrVoucherNotFound is returned for an unknown code.
	ErrVoucherNotFound = apperrors.New(apperrors.CodeNotFound, "Voucher not found")
	// ErrInvalidVoucherCode is returned for codes outside 10-50 characters.
	ErrInvalidVoucherCode = apperrors.Invalid("code", "voucher code must be 10-50 characters")
)

// MaxVoucherBatch caps a single generation request.
const MaxVoucherBatch = 1000

// VoucherAlphabet excludes O, 0, I and 1.
const VoucherAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// VoucherStatus is the voucher lifecycle state.
type VoucherStatus string

const (
	VoucherActive   VoucherStatus = "active"
	VoucherUsed     VoucherStatus = "used"
	VoucherExpired  VoucherStatus = "expired"
	VoucherDisabled VoucherStatus = "disabled"
)

// Voucher is a prepaid code redeemable for one plan activation.
type Voucher struct {
	ID         string
	Code       string
	PlanID     string
	Status     VoucherStatus
	BatchID    string
	BatchLabel string
	UsedBy     string
	UsedAt     *time.Time
	ExpiresAt  *time.Time
	CreatedBy  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Redeemable returns nil when the voucher can be used at now, or an error
// naming its state.
func (v Voucher) Redeemable(now time.Time) error {
	if v.Status != VoucherActive {
		return apperrors.WithMetadata(apperrors.CodeVoucherUnavailable, "Voucher is "+string(v.Status), map[string]string{"status": string(v.Status)})
	}
	if v.ExpiresAt != nil && !v.ExpiresAt.After(now) {
		return apperrors.WithMetadata(apperrors.CodeVoucherUnavailable, "Voucher is expired", map[string]string{"status": string(VoucherExpired)})
	}
	return nil
}

// Redeem marks the voucher used by userID.
func (v Voucher) Redeem(userID string, now time.Time) Voucher {
	now = now.UTC()
	v.Status = VoucherUsed
	v.UsedBy = userID
	v.UsedAt = &now
	v.UpdatedAt = now
	return v
}

// GenerateVoucherCode returns a fresh XXXX-XXXX-XXXX code.
func GenerateVoucherCode() (string, error) {
	return generateVoucherCode(rand.Reader)
}

func generateVoucherCode(random io.Reader) (string, error) {
	raw, err := randomString(random, VoucherAlphabet, 12)
	if err != nil {
		return "", fmt.Errorf("generate voucher code: %w", err)
	}
	return raw[0:4] + "-" + raw[4:8] + "-" + raw[8:12], nil
}

// NormalizeVoucherCode canonicalizes user input: case-insensitive, dashes
// and spaces optional. Twelve-character codes are rendered XXXX-XXXX-XXXX.
func NormalizeVoucherCode(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if n := len(trimmed); n < 10 || n > 50 {
		return "", ErrInvalidVoucherCode
	}
	compact := strings.ToUpper(strings.NewReplacer("-", "", " ", "").Replace(trimmed))
	if len(compact) == 12 {
		return compact[0:4] + "-" + compact[4:8] + "-" + compact[8:12], nil
	}
	return compact, nil
}

// VoucherBatchInput describes a generation request.
type VoucherBatchInput struct {
	PlanID    string     `json:"plan_id"`
	Count     int        `json:"count"`
	ExpiresAt *time.Time `json:"expires_at"`
	Validity  string     `json:"validity"`
	Label     string     `json:"batch"`
}

// Validate checks a generation request.
func (in VoucherBatchInput) Validate() error {
	if strings.TrimSpace(in.PlanID) == "" {
		return apperrors.Invalid("plan_id", "plan_id is required")
	}
	if in.Count < 1 || in.Count > MaxVoucherBatch {
		return apperrors.Invalid("count", fmt.Sprintf("count must be between 1 and %d", MaxVoucherBatch))
	}
	return nil
}

// VoucherStats counts vouchers by status and batch.
type VoucherStats struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
	ByBatch  []BatchStats   `json:"by_batch"`
}

// BatchStats summarises one batch.
type BatchStats struct {
	BatchID string `json:"batch_id"`
	Label   string `json:"label"`
	Total   int    `json:"total"`
	Used    int    `json:"used"`
	Active  int    `json:"active"`
}
