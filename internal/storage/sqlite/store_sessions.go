package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/zmooth/zmooth/internal/platform/filter"
	accounting "github.com/zmooth/zmooth/internal/services/accounting/domain"
	"github.com/zmooth/zmooth/internal/storage"
)

const sessionColumns = `id, session_id, user_id, username, user_plan_id, nas_ip, framed_ip, mac_address, active,
started_at, stopped_at, upload_bytes, download_bytes, total_bytes, duration_seconds, terminate_cause, last_update_at`

func scanSession(row scanner) (accounting.Session, error) {
	var (
		sess      accounting.Session
		active    int
		startedAt int64
		stoppedAt sql.NullInt64
		lastAt    int64
	)
	if err := row.Scan(&sess.ID, &sess.SessionID, &sess.UserID, &sess.Username, &sess.UserPlanID, &sess.NASIP, &sess.FramedIP, &sess.MACAddress, &active,
		&startedAt, &stoppedAt, &sess.UploadBytes, &sess.DownloadBytes, &sess.TotalBytes, &sess.DurationSeconds, &sess.TerminateCause, &lastAt); err != nil {
		return accounting.Session{}, err
	}
	sess.Active = active == 1
	sess.StartedAt = fromMillis(startedAt)
	sess.StoppedAt = fromNullMillis(stoppedAt)
	sess.LastUpdateAt = fromMillis(lastAt)
	return sess, nil
}

// PutSession inserts or replaces a session keyed by its NAS session id.
func (s *Store) PutSession(ctx context.Context, sess accounting.Session) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(sess.ID) == "" || strings.TrimSpace(sess.SessionID) == "" {
		return fmt.Errorf("session id is required")
	}
	_, err := s.q.ExecContext(ctx, `
INSERT INTO sessions (`+sessionColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    framed_ip = excluded.framed_ip,
    active = excluded.active,
    stopped_at = excluded.stopped_at,
    upload_bytes = excluded.upload_bytes,
    download_bytes = excluded.download_bytes,
    total_bytes = excluded.total_bytes,
    duration_seconds = excluded.duration_seconds,
    terminate_cause = excluded.terminate_cause,
    last_update_at = excluded.last_update_at`,
		sess.ID, sess.SessionID, sess.UserID, sess.Username, sess.UserPlanID, sess.NASIP, sess.FramedIP, sess.MACAddress, boolInt(sess.Active),
		toMillis(sess.StartedAt), nullMillis(sess.StoppedAt), sess.UploadBytes, sess.DownloadBytes, sess.TotalBytes, sess.DurationSeconds,
		sess.TerminateCause, toMillis(sess.LastUpdateAt),
	)
	return constraintError(err, "session")
}

// GetSessionBySessionID fetches a session by the NAS-assigned id.
func (s *Store) GetSessionBySessionID(ctx context.Context, sessionID string) (accounting.Session, error) {
	if err := s.ready(ctx); err != nil {
		return accounting.Session{}, err
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return accounting.Session{}, fmt.Errorf("session id is required")
	}
	sess, err := scanSession(s.q.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE session_id = ?", sessionID))
	if err != nil {
		return accounting.Session{}, notFound(err, "get session")
	}
	return sess, nil
}

// ListSessions pages sessions newest first.
func (s *Store) ListSessions(ctx context.Context, query storage.SessionQuery) (storage.Page[accounting.Session], error) {
	var where []filter.SQLCondition
	if query.ActiveOnly {
		where = append(where, filter.SQLCondition{Clause: "active = 1"})
	}
	if query.UserID != "" {
		where = append(where, filter.SQLCondition{Clause: "user_id = ?", Params: []any{query.UserID}})
	}
	if !query.From.IsZero() {
		where = append(where, filter.SQLCondition{Clause: "started_at >= ?", Params: []any{toMillis(query.From)}})
	}
	if !query.To.IsZero() {
		where = append(where, filter.SQLCondition{Clause: "started_at < ?", Params: []any{toMillis(query.To)}})
	}
	return listPage(ctx, s, listSpec{
		table:   "sessions",
		columns: sessionColumns,
		search:  []string{"username", "session_id", "framed_ip", "mac_address", "nas_ip"},
		schema: filter.Schema{
			"active":          {Column: "active", Type: filter.Bool},
			"username":        {Column: "username", Type: filter.String},
			"nas_ip":          {Column: "nas_ip", Type: filter.String},
			"total_bytes":     {Column: "total_bytes", Type: filter.Int},
			"terminate_cause": {Column: "terminate_cause", Type: filter.String},
			"started_at":      {Column: "started_at", Type: filter.Timestamp},
		},
		orderBy: "started_at DESC, id",
		where:   where,
		key:     fmt.Sprintf("%t|%s|%d|%d", query.ActiveOnly, query.UserID, query.From.UnixMilli(), query.To.UnixMilli()),
	}, query.ListQuery, scanSession)
}

// ListActiveSessionsByUser returns a user's open sessions, oldest first.
func (s *Store) ListActiveSessionsByUser(ctx context.Context, userID string) ([]accounting.Session, error) {
	return queryAll(ctx, s, "list active sessions",
		"SELECT "+sessionColumns+" FROM sessions WHERE user_id = ? AND active = 1 ORDER BY started_at",
		[]any{strings.TrimSpace(userID)}, scanSession)
}

// CountActiveSessions counts open sessions.
func (s *Store) CountActiveSessions(ctx context.Context) (int, error) {
	return countQuery(ctx, s, "count active sessions", "SELECT COUNT(*) FROM sessions WHERE active = 1")
}

// ListActiveFramedIPs returns addresses held by open sessions.
func (s *Store) ListActiveFramedIPs(ctx context.Context) ([]string, error) {
	return queryAll(ctx, s, "list framed ips",
		"SELECT DISTINCT framed_ip FROM sessions WHERE active = 1 AND framed_ip <> '' ORDER BY framed_ip", nil,
		func(row scanner) (string, error) {
			var ip string
			err := row.Scan(&ip)
			return ip, err
		})
}
