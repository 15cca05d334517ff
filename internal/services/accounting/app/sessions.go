package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	accounting "github.com/zmooth/zmooth/internal/services/accounting/domain"
	"github.com/zmooth/zmooth/internal/services/auth/user"
	billing "github.com/zmooth/zmooth/internal/services/billing/domain"
	"github.com/zmooth/zmooth/internal/services/shared/events"
	"github.com/zmooth/zmooth/internal/storage"
	"go.opentelemetry.io/otel/attribute"
)

// StartInput is an Accounting-Start from a NAS.
type StartInput struct {
	Username string `json:"username"`
	NASIP    string `json:"nas_ip"`
	FramedIP string `json:"framed_ip"`
	MAC      string `json:"mac"`
}

// Start opens a session for a user with a usable plan, a free device slot
// and an unblocked MAC.
func (s *Service) Start(ctx context.Context, in StartInput) (accounting.Session, error) {
	ctx, span := tracer.Start(ctx, "accounting.Start")
	defer span.End()

	username := strings.TrimSpace(in.Username)
	if username == "" {
		return accounting.Session{}, apperrors.Invalid("username", "username is required")
	}
	span.SetAttributes(attribute.String("session.username", username))
	mac, err := user.NormalizeMAC(in.MAC)
	if err != nil {
		return accounting.Session{}, err
	}
	blocked, err := s.macBlocked(ctx, mac)
	if err != nil {
		return accounting.Session{}, err
	}
	if blocked {
		return accounting.Session{}, accounting.ErrDeviceBlocked
	}

	customer, err := s.store.GetUserByUsername(ctx, username)
	if errors.Is(err, storage.ErrNotFound) {
		return accounting.Session{}, apperrors.New(apperrors.CodeNotFound, "User not found")
	}
	if err != nil {
		return accounting.Session{}, err
	}
	if !customer.Active() {
		return accounting.Session{}, customer.InactiveError()
	}

	up, err := s.usablePlan(ctx, customer.ID)
	if err != nil {
		return accounting.Session{}, err
	}
	plan, err := s.store.GetPlan(ctx, up.PlanID)
	if err != nil {
		return accounting.Session{}, err
	}
	limit, err := s.deviceLimit(ctx, plan.ID, plan.Devices)
	if err != nil {
		return accounting.Session{}, err
	}
	active, err := s.store.ListActiveSessionsByUser(ctx, customer.ID)
	if err != nil {
		return accounting.Session{}, err
	}
	if len(active) >= limit {
		return accounting.Session{}, apperrors.WithMetadata(apperrors.CodeDeviceLimitReached,
			fmt.Sprintf("device limit of %d reached", limit), map[string]string{"limit": strconv.Itoa(limit)})
	}

	recordID, err := s.idGenerator()
	if err != nil {
		return accounting.Session{}, fmt.Errorf("generate session record id: %w", err)
	}
	sessionID, err := s.newSessionID()
	if err != nil {
		return accounting.Session{}, err
	}
	now := s.now()
	sess := accounting.Session{
		ID:           recordID,
		SessionID:    sessionID,
		UserID:       customer.ID,
		Username:     customer.Username,
		UserPlanID:   up.ID,
		NASIP:        strings.TrimSpace(in.NASIP),
		FramedIP:     strings.TrimSpace(in.FramedIP),
		MACAddress:   mac,
		Active:       true,
		StartedAt:    now,
		LastUpdateAt: now,
	}
	if err := s.store.PutSession(ctx, sess); err != nil {
		return accounting.Session{}, err
	}
	s.publish(events.SessionStarted, sess)
	return sess, nil
}

// usablePlan returns the newest activation that can start a session. An
// activation that is current but out of data reports data exhausted.
func (s *Service) usablePlan(ctx context.Context, userID string) (billing.UserPlan, error) {
	plans, err := s.store.ListActiveUserPlans(ctx, userID)
	if err != nil {
		return billing.UserPlan{}, err
	}
	now := s.now()
	exhausted := false
	for _, up := range plans {
		if up.Usable(now) {
			return up, nil
		}
		if up.IsActive && !up.Expired(now) {
			exhausted = true
		}
	}
	if exhausted {
		return billing.UserPlan{}, accounting.ErrDataExhausted
	}
	return billing.UserPlan{}, accounting.ErrNoActivePlan
}

// InterimInput carries cumulative counters for a session.
type InterimInput struct {
	SessionID     string `json:"session_id"`
	UploadBytes   int64  `json:"upload_bytes"`
	DownloadBytes int64  `json:"download_bytes"`
	SessionTime   int64  `json:"session_time"`
}

// InterimResult reports the usage state after an update.
type InterimResult struct {
	Session     accounting.Session
	RemainingMB int64
	Unlimited   bool
	Terminated  bool
}

// Interim records usage and terminates the session once the plan's data is
// used up.
func (s *Service) Interim(ctx context.Context, in InterimInput) (InterimResult, error) {
	ctx, span := tracer.Start(ctx, "accounting.Interim")
	defer span.End()

	sess, err := s.activeSession(ctx, in.SessionID)
	if err != nil {
		return InterimResult{}, err
	}
	sess = sess.Interim(in.UploadBytes, in.DownloadBytes, in.SessionTime, s.now())

	var up billing.UserPlan
	err = s.store.InTx(ctx, func(tx storage.Store) error {
		if err := tx.PutSession(ctx, sess); err != nil {
			return err
		}
		if sess.UserPlanID == "" {
			return nil
		}
		current, err := tx.GetUserPlan(ctx, sess.UserPlanID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		current.DataUsedMB = billing.UsedMB(sess.TotalBytes)
		current.UpdatedAt = s.now()
		up = current
		return tx.PutUserPlan(ctx, current)
	})
	if err != nil {
		return InterimResult{}, err
	}

	result := InterimResult{Session: sess, Unlimited: up.ID == "" || up.Unlimited()}
	if !result.Unlimited {
		result.RemainingMB = up.RemainingMB()
		if result.RemainingMB == 0 {
			stopped, err := s.stop(ctx, sess, accounting.CauseDataLimitExceeded)
			if err != nil {
				return InterimResult{}, err
			}
			result.Session = stopped
			result.Terminated = true
		}
	}
	return result, nil
}

// Stop closes an active session and disconnects the user on the router.
func (s *Service) Stop(ctx context.Context, sessionID, cause string) (accounting.Session, error) {
	ctx, span := tracer.Start(ctx, "accounting.Stop")
	defer span.End()

	sess, err := s.activeSession(ctx, sessionID)
	if err != nil {
		return accounting.Session{}, err
	}
	return s.stop(ctx, sess, strings.TrimSpace(cause))
}

// Disconnect is an admin reset of one session.
func (s *Service) Disconnect(ctx context.Context, sessionID string) (accounting.Session, error) {
	sess, err := s.Stop(ctx, sessionID, accounting.CauseAdminReset)
	if err != nil {
		return accounting.Session{}, err
	}
	s.audit.Record(ctx, "disconnect", "sessions", []string{sess.SessionID}, sess.Username)
	return sess, nil
}

// TerminateUserSessions stops every active session of a user with cause.
func (s *Service) TerminateUserSessions(ctx context.Context, userID, cause string) (int, error) {
	active, err := s.store.ListActiveSessionsByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	for _, sess := range active {
		if _, err := s.stop(ctx, sess, cause); err != nil {
			return 0, err
		}
	}
	return len(active), nil
}

func (s *Service) stop(ctx context.Context, sess accounting.Session, cause string) (accounting.Session, error) {
	stopped := sess.Stop(cause, s.now())
	if err := s.store.PutSession(ctx, stopped); err != nil {
		return accounting.Session{}, err
	}
	s.disconnect(ctx, stopped.Username)
	s.publish(events.SessionStopped, stopped)
	return stopped, nil
}

func (s *Service) activeSession(ctx context.Context, sessionID string) (accounting.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return accounting.Session{}, apperrors.Invalid("session_id", "session_id is required")
	}
	sess, err := s.store.GetSessionBySessionID(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return accounting.Session{}, accounting.ErrSessionNotFound
	}
	if err != nil {
		return accounting.Session{}, err
	}
	if !sess.Active {
		return accounting.Session{}, accounting.ErrSessionNotFound
	}
	return sess, nil
}

// ListSessions lists active sessions or history.
func (s *Service) ListSessions(ctx context.Context, query storage.SessionQuery) (storage.Page[accounting.Session], error) {
	return s.store.ListSessions(ctx, query)
}

// CountActive counts active sessions.
func (s *Service) CountActive(ctx context.Context) (int, error) {
	return s.store.CountActiveSessions(ctx)
}
