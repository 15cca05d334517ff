package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/zmooth/zmooth/internal/platform/filter"
	"github.com/zmooth/zmooth/internal/storage"
)

// PutNotification inserts or replaces a notification.
func (s *Store) PutNotification(ctx context.Context, n storage.Notification) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(n.ID) == "" {
		return fmt.Errorf("notification id is required")
	}
	_, err := s.q.ExecContext(ctx, `
INSERT INTO notifications (id, title, message, audience, level, created_by, read, created_at, read_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    title = excluded.title,
    message = excluded.message,
    audience = excluded.audience,
    level = excluded.level,
    read = excluded.read,
    read_at = excluded.read_at`,
		n.ID, n.Title, n.Message, n.Audience, n.Level, n.CreatedBy, boolInt(n.Read), toMillis(n.CreatedAt), nullMillis(n.ReadAt),
	)
	if err != nil {
		return fmt.Errorf("put notification: %w", err)
	}
	return nil
}

func scanNotification(row scanner) (storage.Notification, error) {
	var (
		n         storage.Notification
		read      int
		createdAt int64
		readAt    sql.NullInt64
	)
	if err := row.Scan(&n.ID, &n.Title, &n.Message, &n.Audience, &n.Level, &n.CreatedBy, &read, &createdAt, &readAt); err != nil {
		return storage.Notification{}, err
	}
	n.Read = read == 1
	n.CreatedAt = fromMillis(createdAt)
	n.ReadAt = fromNullMillis(readAt)
	return n, nil
}

// ListNotifications pages notifications for the given audiences, newest first.
func (s *Store) ListNotifications(ctx context.Context, audiences []string, unreadOnly bool, query storage.ListQuery) (storage.Page[storage.Notification], error) {
	var where []filter.SQLCondition
	if len(audiences) > 0 {
		where = append(where, inClause("audience", audiences))
	}
	if unreadOnly {
		where = append(where, filter.SQLCondition{Clause: "read = 0"})
	}
	return listPage(ctx, s, listSpec{
		table:   "notifications",
		columns: "id, title, message, audience, level, created_by, read, created_at, read_at",
		search:  []string{"title", "message"},
		schema: filter.Schema{
			"level":      {Column: "level", Type: filter.String},
			"audience":   {Column: "audience", Type: filter.String},
			"read":       {Column: "read", Type: filter.Bool},
			"created_at": {Column: "created_at", Type: filter.Timestamp},
		},
		orderBy: "created_at DESC, id",
		where:   where,
		key:     fmt.Sprintf("%s|%t", strings.Join(audiences, ","), unreadOnly),
	}, query, scanNotification)
}

// MarkNotificationsRead marks a selection read.
func (s *Store) MarkNotificationsRead(ctx context.Context, ids []string, now time.Time) (int, error) {
	return s.execIDs(ctx, "mark notifications read", "UPDATE notifications SET read = 1, read_at = ?", ids, toMillis(now))
}

// GetSetting returns a setting value or storage.ErrNotFound.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	if err := s.ready(ctx); err != nil {
		return "", err
	}
	var value string
	if err := s.q.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", strings.TrimSpace(key)).Scan(&value); err != nil {
		return "", notFound(err, "get setting")
	}
	return value, nil
}

// PutSetting upserts a setting.
func (s *Store) PutSetting(ctx context.Context, key, value string, now time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("setting key is required")
	}
	_, err := s.q.ExecContext(ctx, `
INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, toMillis(now))
	if err != nil {
		return fmt.Errorf("put setting: %w", err)
	}
	return nil
}

const ticketColumns = "id, user_id, subject, message, priority, status, created_at, updated_at"

func scanTicket(row scanner) (storage.Ticket, error) {
	var (
		t         storage.Ticket
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Subject, &t.Message, &t.Priority, &t.Status, &createdAt, &updatedAt); err != nil {
		return storage.Ticket{}, err
	}
	t.CreatedAt = fromMillis(createdAt)
	t.UpdatedAt = fromMillis(updatedAt)
	return t, nil
}

// PutTicket inserts or replaces a support ticket.
func (s *Store) PutTicket(ctx context.Context, t storage.Ticket) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("ticket id is required")
	}
	_, err := s.q.ExecContext(ctx, `
INSERT INTO tickets (`+ticketColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    subject = excluded.subject,
    message = excluded.message,
    priority = excluded.priority,
    status = excluded.status,
    updated_at = excluded.updated_at`,
		t.ID, t.UserID, t.Subject, t.Message, t.Priority, t.Status, toMillis(t.CreatedAt), toMillis(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put ticket: %w", err)
	}
	return nil
}

// GetTicket fetches a ticket by id.
func (s *Store) GetTicket(ctx context.Context, ticketID string) (storage.Ticket, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Ticket{}, err
	}
	t, err := scanTicket(s.q.QueryRowContext(ctx, "SELECT "+ticketColumns+" FROM tickets WHERE id = ?", strings.TrimSpace(ticketID)))
	if err != nil {
		return storage.Ticket{}, notFound(err, "get ticket")
	}
	return t, nil
}

// ListTickets pages tickets newest first.
func (s *Store) ListTickets(ctx context.Context, query storage.TicketQuery) (storage.Page[storage.Ticket], error) {
	var where []filter.SQLCondition
	if query.UserID != "" {
		where = append(where, filter.SQLCondition{Clause: "user_id = ?", Params: []any{query.UserID}})
	}
	if query.Status != "" {
		where = append(where, filter.SQLCondition{Clause: "status = ?", Params: []any{query.Status}})
	}
	return listPage(ctx, s, listSpec{
		table:   "tickets",
		columns: ticketColumns,
		search:  []string{"subject", "message"},
		schema: filter.Schema{
			"priority":   {Column: "priority", Type: filter.String},
			"status":     {Column: "status", Type: filter.String},
			"created_at": {Column: "created_at", Type: filter.Timestamp},
		},
		orderBy: "created_at DESC, id",
		where:   where,
		key:     query.UserID + "|" + query.Status,
	}, query.ListQuery, scanTicket)
}

// PutRouterStatus upserts the latest poll of a router.
func (s *Store) PutRouterStatus(ctx context.Context, status storage.RouterStatus) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(status.RouterID) == "" {
		return fmt.Errorf("router id is required")
	}
	_, err := s.q.ExecContext(ctx, `
INSERT INTO router_status (router_id, name, ip, status, sys_name, uptime_seconds, error, polled_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(router_id) DO UPDATE SET
    name = excluded.name,
    ip = excluded.ip,
    status = excluded.status,
    sys_name = excluded.sys_name,
    uptime_seconds = excluded.uptime_seconds,
    error = excluded.error,
    polled_at = excluded.polled_at`,
		status.RouterID, status.Name, status.IP, status.Status, status.SysName, status.UptimeSeconds, status.Error, toMillis(status.PolledAt),
	)
	if err != nil {
		return fmt.Errorf("put router status: %w", err)
	}
	return nil
}

// ListRouterStatuses returns the latest poll per router.
func (s *Store) ListRouterStatuses(ctx context.Context) ([]storage.RouterStatus, error) {
	return queryAll(ctx, s, "list router status",
		"SELECT router_id, name, ip, status, sys_name, uptime_seconds, error, polled_at FROM router_status ORDER BY name", nil,
		func(row scanner) (storage.RouterStatus, error) {
			var (
				rs       storage.RouterStatus
				polledAt int64
			)
			if err := row.Scan(&rs.RouterID, &rs.Name, &rs.IP, &rs.Status, &rs.SysName, &rs.UptimeSeconds, &rs.Error, &polledAt); err != nil {
				return storage.RouterStatus{}, err
			}
			rs.PolledAt = fromMillis(polledAt)
			return rs, nil
		})
}

const jobRunColumns = "id, job, outcome, attempt, error, detail, started_at, finished_at"

func scanJobRun(row scanner) (storage.JobRun, error) {
	var (
		run        storage.JobRun
		startedAt  int64
		finishedAt int64
	)
	if err := row.Scan(&run.ID, &run.Job, &run.Outcome, &run.Attempt, &run.Error, &run.Detail, &startedAt, &finishedAt); err != nil {
		return storage.JobRun{}, err
	}
	run.StartedAt = fromMillis(startedAt)
	run.FinishedAt = fromMillis(finishedAt)
	return run, nil
}

// PutJobRun appends a job execution.
func (s *Store) PutJobRun(ctx context.Context, run storage.JobRun) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.q.ExecContext(ctx, `
INSERT INTO job_runs (`+jobRunColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Job, run.Outcome, run.Attempt, run.Error, run.Detail, toMillis(run.StartedAt), toMillis(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("put job run: %w", err)
	}
	return nil
}

// ListJobRuns returns recent runs, newest first. An empty job lists all.
func (s *Store) ListJobRuns(ctx context.Context, job string, limit int) ([]storage.JobRun, error) {
	if limit <= 0 {
		limit = 50
	}
	sqlText := "SELECT " + jobRunColumns + " FROM job_runs"
	var params []any
	if job != "" {
		sqlText += " WHERE job = ?"
		params = append(params, job)
	}
	sqlText += " ORDER BY started_at DESC, id LIMIT ?"
	return queryAll(ctx, s, "list job runs", sqlText, append(params, limit), scanJobRun)
}

// LastJobRun returns the most recent run of job.
func (s *Store) LastJobRun(ctx context.Context, job string) (storage.JobRun, error) {
	if err := s.ready(ctx); err != nil {
		return storage.JobRun{}, err
	}
	run, err := scanJobRun(s.q.QueryRowContext(ctx, "SELECT "+jobRunColumns+" FROM job_runs WHERE job = ? ORDER BY started_at DESC LIMIT 1", job))
	if err != nil {
		return storage.JobRun{}, notFound(err, "last job run")
	}
	return run, nil
}
