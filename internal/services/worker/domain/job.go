// Package domain defines worker jobs and failure classification.
package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
)

// Job outcomes recorded in job_runs.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeSkipped   = "skipped"
	OutcomeRetry     = "retry"
	OutcomeDead      = "dead"
)

// ErrSkipped reports that a job had nothing to do, e.g. an unconfigured
// integration.
var ErrSkipped = errors.New("job skipped")

// Job is one periodic unit of background work. Run returns a short detail
// string stored with the run.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (string, error)
}

// Validate checks that job can be scheduled.
func (j Job) Validate() error {
	if strings.TrimSpace(j.Name) == "" {
		return errors.New("job name is required")
	}
	if j.Interval <= 0 {
		return errors.New("job " + j.Name + " interval must be positive")
	}
	if j.Run == nil {
		return errors.New("job " + j.Name + " has no run func")
	}
	return nil
}

// Classify marks domain failures that retrying cannot fix as permanent.
// Everything else, including store and gateway errors, stays retryable.
func Classify(err error) error {
	if err == nil || IsPermanent(err) || errors.Is(err, ErrSkipped) {
		return err
	}
	switch apperrors.CodeOf(err) {
	case apperrors.CodeInvalidArgument, apperrors.CodeIntegrationDisabled, apperrors.CodePermissionDenied, apperrors.CodeNotFound:
		return Permanent(err)
	}
	return err
}

// PermanentError is a job failure that the scheduler does not retry within
// the current run.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return "permanent: " + e.Err.Error()
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the scheduler gives up on the run. Nil stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	var existing *PermanentError
	if errors.As(err, &existing) {
		return err
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err, or anything it wraps, is permanent.
func IsPermanent(err error) bool {
	var target *PermanentError
	return errors.As(err, &target)
}
