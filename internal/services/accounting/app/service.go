package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/platform/id"
	"github.com/zmooth/zmooth/internal/platform/otel"
	accounting "github.com/zmooth/zmooth/internal/services/accounting/domain"
	"github.com/zmooth/zmooth/internal/services/integrations/mikrotik"
	network "github.com/zmooth/zmooth/internal/services/network/domain"
	"github.com/zmooth/zmooth/internal/services/shared/audit"
	"github.com/zmooth/zmooth/internal/services/shared/events"
	"github.com/zmooth/zmooth/internal/storage"
)

var tracer = otel.Tracer("zmooth/accounting")

// ErrInvalidNASToken rejects accounting calls without a known NAS secret.
var ErrInvalidNASToken = apperrors.New(apperrors.CodeUnauthenticated, "invalid NAS token")

// Config wires the accounting service.
type Config struct {
	Store  storage.Store
	Router mikrotik.Gateway
	Events events.Publisher
	Clock  func() time.Time
}

// Service owns session accounting.
type Service struct {
	store          storage.Store
	router         mikrotik.Gateway
	events         events.Publisher
	audit          audit.Recorder
	clock          func() time.Time
	sessionIDMaker func() (string, error)
	idGenerator    func() (string, error)
}

// NewService applies defaults to cfg.
func NewService(cfg Config) *Service {
	if cfg.Router == nil {
		cfg.Router = mikrotik.Disabled{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Service{
		store:          cfg.Store,
		router:         cfg.Router,
		events:         events.OrDiscard(cfg.Events),
		audit:          audit.NewRecorder(cfg.Store, cfg.Clock),
		clock:          cfg.Clock,
		sessionIDMaker: id.NewSessionID,
		idGenerator:    id.NewID,
	}
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

// AuthorizeNAS accepts token when it equals the nas_secret of an active
// router record.
func (s *Service) AuthorizeNAS(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidNASToken
	}
	routers, err := s.store.ListAllRecords(ctx, network.KindRouter, true)
	if err != nil {
		return err
	}
	for _, record := range routers {
		router, ok := record.Spec.(network.Router)
		if !ok || router.NASSecret == "" {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(router.NASSecret), []byte(token)) == 1 {
			return nil
		}
	}
	return ErrInvalidNASToken
}

// macBlocked reports whether an active MAC filter blocks mac.
func (s *Service) macBlocked(ctx context.Context, mac string) (bool, error) {
	if mac == "" {
		return false, nil
	}
	filters, err := s.store.ListAllRecords(ctx, network.KindMACFilter, true)
	if err != nil {
		return false, err
	}
	for _, record := range filters {
		filter, ok := record.Spec.(network.MACFilter)
		if ok && filter.Blocks() && strings.EqualFold(filter.MAC, mac) {
			return true, nil
		}
	}
	return false, nil
}

// deviceLimit is the plan's device count unless an active device-limit
// record overrides it.
func (s *Service) deviceLimit(ctx context.Context, planID string, planDevices int) (int, error) {
	limits, err := s.store.ListAllRecords(ctx, network.KindDeviceLimit, true)
	if err != nil {
		return 0, err
	}
	for _, record := range limits {
		if limit, ok := record.Spec.(network.DeviceLimit); ok && limit.PlanID == planID {
			return limit.Devices, nil
		}
	}
	if planDevices < 1 {
		return 1, nil
	}
	return planDevices, nil
}

func (s *Service) disconnect(ctx context.Context, username string) {
	if err := s.router.DisconnectUser(ctx, username); err != nil && !errors.Is(err, mikrotik.ErrNotFound) {
		log.Printf("disconnect %s: %v", username, err)
	}
}

func (s *Service) newSessionID() (string, error) {
	value, err := s.sessionIDMaker()
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return value, nil
}

type sessionPayload struct {
	SessionID  string `json:"session_id"`
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	NASIP      string `json:"nas_ip"`
	FramedIP   string `json:"framed_ip"`
	MACAddress string `json:"mac_address"`
	TotalBytes int64  `json:"total_bytes"`
	Cause      string `json:"terminate_cause,omitempty"`
}

func sessionEvent(sess accounting.Session) sessionPayload {
	return sessionPayload{
		SessionID:  sess.SessionID,
		UserID:     sess.UserID,
		Username:   sess.Username,
		NASIP:      sess.NASIP,
		FramedIP:   sess.FramedIP,
		MACAddress: sess.MACAddress,
		TotalBytes: sess.TotalBytes,
		Cause:      sess.TerminateCause,
	}
}

func (s *Service) publish(eventType string, sess accounting.Session) {
	s.events.Publish(events.Event{Type: eventType, Data: sessionEvent(sess), At: s.now()})
}
