// Package domain defines accounting sessions reported by NAS devices.
package domain

import (
	"time"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
)

// Termination causes recorded on stopped sessions.
const (
	CauseUserRequest       = "User-Request"
	CauseDataLimitExceeded = "Data-Limit-Exceeded"
	CausePlanExpired       = "Plan-Expired"
	CauseAdminReset        = "Admin-Reset"
)

var (
	// ErrSessionNotFound is returned for unknown or inactive sessions.
	ErrSessionNotFound = apperrors.New(apperrors.CodeSessionNotActive, "Session not found or not active")
	// ErrNoActivePlan rejects a start without a usable plan.
	ErrNoActivePlan = apperrors.New(apperrors.CodeNoActivePlan, "no active plan")
	// ErrDataExhausted rejects a start when the plan's data is used up.
	ErrDataExhausted = apperrors.New(apperrors.CodeDataExhausted, "data exhausted")
	// ErrDeviceBlocked rejects a start from a blocked MAC.
	ErrDeviceBlocked = apperrors.New(apperrors.CodeDeviceBlocked, "device is blocked")
)

// Session is one accounting session on a NAS.
type Session struct {
	ID              string
	SessionID       string
	UserID          string
	Username        string
	UserPlanID      string
	NASIP           string
	FramedIP        string
	MACAddress      string
	Active          bool
	StartedAt       time.Time
	StoppedAt       *time.Time
	UploadBytes     int64
	DownloadBytes   int64
	TotalBytes      int64
	DurationSeconds int64
	TerminateCause  string
	LastUpdateAt    time.Time
}

// Interim applies cumulative counters from an interim update.
func (s Session) Interim(uploadBytes, downloadBytes, sessionSeconds int64, now time.Time) Session {
	if uploadBytes < 0 {
		uploadBytes = 0
	}
	if downloadBytes < 0 {
		downloadBytes = 0
	}
	s.UploadBytes = uploadBytes
	s.DownloadBytes = downloadBytes
	s.TotalBytes = uploadBytes + downloadBytes
	if sessionSeconds > 0 {
		s.DurationSeconds = sessionSeconds
	}
	s.LastUpdateAt = now.UTC()
	return s
}

// Stop closes the session with cause, defaulting to User-Request.
func (s Session) Stop(cause string, now time.Time) Session {
	if cause == "" {
		cause = CauseUserRequest
	}
	now = now.UTC()
	s.Active = false
	s.StoppedAt = &now
	s.TerminateCause = cause
	if duration := int64(now.Sub(s.StartedAt) / time.Second); duration > 0 {
		s.DurationSeconds = duration
	} else {
		s.DurationSeconds = 0
	}
	s.LastUpdateAt = now
	return s
}
