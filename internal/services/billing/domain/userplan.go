package domain

import (
	"fmt"
	"time"

	"github.com/zmooth/zmooth/internal/platform/id"
)

// BytesPerMB is the divisor used for data accounting.
const BytesPerMB = 1024 * 1024

// UserPlan is one activation of a plan for a subscriber.
type UserPlan struct {
	ID            string
	UserID        string
	PlanID        string
	TransactionID string
	StartedAt     time.Time
	ExpiresAt     *time.Time
	DataLimitMB   int64
	DataUsedMB    int64
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Activate creates the user plan granted by a completed payment.
func Activate(plan Plan, userID, transactionID string, now time.Time) (UserPlan, error) {
	planID, err := id.NewID()
	if err != nil {
		return UserPlan{}, fmt.Errorf("generate user plan id: %w", err)
	}
	now = now.UTC()
	up := UserPlan{
		ID:            planID,
		UserID:        userID,
		PlanID:        plan.ID,
		TransactionID: transactionID,
		StartedAt:     now,
		ExpiresAt:     plan.ExpiresAt(now),
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if plan.Type == PlanDataBased {
		up.DataLimitMB = plan.DataLimitMB
	}
	return up, nil
}

// Unlimited reports whether the activation has no data cap.
func (u UserPlan) Unlimited() bool {
	return u.DataLimitMB <= 0
}

// RemainingMB is max(0, limit-used). It is meaningless when Unlimited.
func (u UserPlan) RemainingMB() int64 {
	if remaining := u.DataLimitMB - u.DataUsedMB; remaining > 0 {
		return remaining
	}
	return 0
}

// Expired reports whether the activation has passed its expiry.
func (u UserPlan) Expired(now time.Time) bool {
	return u.ExpiresAt != nil && !u.ExpiresAt.After(now)
}

// Usable reports whether the activation can start a session.
func (u UserPlan) Usable(now time.Time) bool {
	return u.IsActive && !u.Expired(now) && (u.Unlimited() || u.RemainingMB() > 0)
}

// UsedMB converts a byte total to whole megabytes, rounding down.
func UsedMB(totalBytes int64) int64 {
	if totalBytes <= 0 {
		return 0
	}
	return totalBytes / BytesPerMB
}
