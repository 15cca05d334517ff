package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/platform/export"
	"github.com/zmooth/zmooth/internal/platform/id"
	"github.com/zmooth/zmooth/internal/storage"
)

// ErrTicketNotFound is returned for a missing or foreign ticket.
var ErrTicketNotFound = apperrors.New(apperrors.CodeNotFound, "Ticket not found")

// Ticket priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Pinger checks a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Service owns tickets and status checks.
type Service struct {
	store storage.Store
	redis Pinger
	clock func() time.Time
	newID func() (string, error)
}

// NewService builds the service. A nil redis reports it as disabled.
func NewService(store storage.Store, redis Pinger) *Service {
	return &Service{store: store, redis: redis, clock: time.Now, newID: id.NewID}
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

// TicketInput is the contact-support form.
type TicketInput struct {
	Subject  string `json:"subject"`
	Message  string `json:"message"`
	Priority string `json:"priority"`
}

func (in TicketInput) normalize() (TicketInput, error) {
	in.Subject = strings.TrimSpace(in.Subject)
	in.Message = strings.TrimSpace(in.Message)
	if in.Subject == "" {
		return TicketInput{}, apperrors.Invalid("subject", "subject is required")
	}
	if len(in.Subject) > 200 {
		return TicketInput{}, apperrors.Invalid("subject", "subject must be at most 200 characters")
	}
	if in.Message == "" {
		return TicketInput{}, apperrors.Invalid("message", "message is required")
	}
	switch in.Priority = strings.ToLower(strings.TrimSpace(in.Priority)); in.Priority {
	case "":
		in.Priority = PriorityMedium
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
	default:
		return TicketInput{}, apperrors.Invalid("priority", "priority must be low, medium, high or urgent")
	}
	return in, nil
}

// CreateTicket opens a ticket for userID.
func (s *Service) CreateTicket(ctx context.Context, userID string, in TicketInput) (storage.Ticket, error) {
	in, err := in.normalize()
	if err != nil {
		return storage.Ticket{}, err
	}
	ticketID, err := s.newID()
	if err != nil {
		return storage.Ticket{}, fmt.Errorf("generate ticket id: %w", err)
	}
	now := s.now()
	ticket := storage.Ticket{
		ID:        ticketID,
		UserID:    userID,
		Subject:   in.Subject,
		Message:   in.Message,
		Priority:  in.Priority,
		Status:    storage.TicketOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.PutTicket(ctx, ticket); err != nil {
		return storage.Ticket{}, err
	}
	return ticket, nil
}

// GetTicket loads a ticket. A non-empty userID must own it.
func (s *Service) GetTicket(ctx context.Context, userID, ticketID string) (storage.Ticket, error) {
	ticket, err := s.store.GetTicket(ctx, ticketID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Ticket{}, ErrTicketNotFound
	}
	if err != nil {
		return storage.Ticket{}, err
	}
	if userID != "" && ticket.UserID != userID {
		return storage.Ticket{}, ErrTicketNotFound
	}
	return ticket, nil
}

// ListTickets pages tickets. Set query.UserID to scope to one customer.
func (s *Service) ListTickets(ctx context.Context, query storage.TicketQuery) (storage.Page[storage.Ticket], error) {
	if query.Status != "" {
		status, err := parseTicketStatus(query.Status)
		if err != nil {
			return storage.Page[storage.Ticket]{}, err
		}
		query.Status = status
	}
	return s.store.ListTickets(ctx, query)
}

// UpdateTicketStatus moves a ticket through open, in_progress, resolved and
// closed.
func (s *Service) UpdateTicketStatus(ctx context.Context, ticketID, status string) (storage.Ticket, error) {
	status, err := parseTicketStatus(status)
	if err != nil {
		return storage.Ticket{}, err
	}
	ticket, err := s.GetTicket(ctx, "", ticketID)
	if err != nil {
		return storage.Ticket{}, err
	}
	ticket.Status = status
	ticket.UpdatedAt = s.now()
	if err := s.store.PutTicket(ctx, ticket); err != nil {
		return storage.Ticket{}, err
	}
	return ticket, nil
}

func parseTicketStatus(value string) (string, error) {
	switch status := strings.ToLower(strings.TrimSpace(value)); status {
	case storage.TicketOpen, storage.TicketInProgress, storage.TicketResolved, storage.TicketClosed:
		return status, nil
	}
	return "", apperrors.Invalid("status", "status must be open, in_progress, resolved or closed")
}

// ExportTickets renders matching tickets as CSV.
func (s *Service) ExportTickets(ctx context.Context, query storage.TicketQuery) ([]byte, error) {
	list := func(ctx context.Context, q storage.ListQuery) (storage.Page[storage.Ticket], error) {
		return s.ListTickets(ctx, storage.TicketQuery{ListQuery: q, UserID: query.UserID, Status: query.Status})
	}
	tickets, err := storage.Collect(ctx, query.ListQuery, list)
	if err != nil {
		return nil, err
	}
	rows := make([][]string, 0, len(tickets))
	for _, t := range tickets {
		rows = append(rows, []string{t.ID, t.UserID, t.Subject, t.Priority, t.Status, export.DateTime(t.CreatedAt), export.DateTime(t.UpdatedAt)})
	}
	return export.CSV([]string{"ID", "User", "Subject", "Priority", "Status", "Created", "Updated"}, rows)
}
