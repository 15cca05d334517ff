package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/zmooth/zmooth/internal/platform/filter"
	network "github.com/zmooth/zmooth/internal/services/network/domain"
	"github.com/zmooth/zmooth/internal/storage"
)

const recordColumns = "id, kind, name, active, payload, created_at, updated_at"

func scanRecord(row scanner) (network.Record, error) {
	var (
		r         network.Record
		kind      string
		active    int
		payload   string
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&r.ID, &kind, &r.Name, &active, &payload, &createdAt, &updatedAt); err != nil {
		return network.Record{}, err
	}
	r.Kind = network.Kind(kind)
	spec, err := network.DecodeSpec(r.Kind, []byte(payload))
	if err != nil {
		return network.Record{}, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	r.Spec = spec
	r.Active = active == 1
	r.CreatedAt = fromMillis(createdAt)
	r.UpdatedAt = fromMillis(updatedAt)
	return r, nil
}

// sortKey orders firewall rules by priority; other kinds sort by name.
func sortKey(r network.Record) int {
	switch rule := r.Spec.(type) {
	case network.FirewallRule:
		return rule.Priority
	case *network.FirewallRule:
		return rule.Priority
	}
	return 0
}

// PutRecord inserts or replaces a configuration record.
func (s *Store) PutRecord(ctx context.Context, r network.Record) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("record id is required")
	}
	if r.Spec == nil {
		return fmt.Errorf("record spec is required")
	}
	payload, err := json.Marshal(r.Spec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	_, err = s.q.ExecContext(ctx, `
INSERT INTO config_records (id, kind, name, active, payload, search_text, sort_key, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    active = excluded.active,
    payload = excluded.payload,
    search_text = excluded.search_text,
    sort_key = excluded.sort_key,
    updated_at = excluded.updated_at`,
		r.ID, string(r.Kind), r.Name, boolInt(r.Active), string(payload), r.SearchText(), sortKey(r),
		toMillis(r.CreatedAt), toMillis(r.UpdatedAt),
	)
	return constraintError(err, "record")
}

// GetRecord fetches a record of kind by id.
func (s *Store) GetRecord(ctx context.Context, kind network.Kind, recordID string) (network.Record, error) {
	if err := s.ready(ctx); err != nil {
		return network.Record{}, err
	}
	recordID = strings.TrimSpace(recordID)
	if recordID == "" {
		return network.Record{}, fmt.Errorf("record id is required")
	}
	r, err := scanRecord(s.q.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM config_records WHERE kind = ? AND id = ?", string(kind), recordID))
	if err != nil {
		return network.Record{}, notFound(err, "get record")
	}
	return r, nil
}

func recordWhere(kind network.Kind, activeOnly bool) []filter.SQLCondition {
	where := []filter.SQLCondition{{Clause: "kind = ?", Params: []any{string(kind)}}}
	if activeOnly {
		where = append(where, filter.SQLCondition{Clause: "active = 1"})
	}
	return where
}

// ListRecords pages records of one kind. Search covers the name and the
// kind's searchable fields.
func (s *Store) ListRecords(ctx context.Context, query storage.RecordQuery) (storage.Page[network.Record], error) {
	return listPage(ctx, s, listSpec{
		table:   "config_records",
		columns: recordColumns,
		search:  []string{"search_text"},
		schema: filter.Schema{
			"name":       {Column: "name", Type: filter.String},
			"active":     {Column: "active", Type: filter.Bool},
			"created_at": {Column: "created_at", Type: filter.Timestamp},
		},
		orderBy: "sort_key, name, id",
		where:   recordWhere(query.Kind, query.ActiveOnly),
		key:     fmt.Sprintf("%s|%t", query.Kind, query.ActiveOnly),
	}, query.ListQuery, scanRecord)
}

// ListAllRecords returns every record of kind in listing order.
func (s *Store) ListAllRecords(ctx context.Context, kind network.Kind, activeOnly bool) ([]network.Record, error) {
	where := filter.And(recordWhere(kind, activeOnly)...)
	return queryAll(ctx, s, "list records",
		"SELECT "+recordColumns+" FROM config_records"+where.Where()+" ORDER BY sort_key, name, id",
		where.Params, scanRecord)
}

// SetRecordsActive toggles records of kind in a selection.
func (s *Store) SetRecordsActive(ctx context.Context, kind network.Kind, ids []string, active bool, now time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	cond := inClause("id", ids)
	params := append([]any{boolInt(active), toMillis(now), string(kind)}, cond.Params...)
	return s.execCount(ctx, "set records active", "UPDATE config_records SET active = ?, updated_at = ? WHERE kind = ? AND "+cond.Clause, params...)
}

// DeleteRecords removes records of kind in a selection.
func (s *Store) DeleteRecords(ctx context.Context, kind network.Kind, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	cond := inClause("id", ids)
	params := append([]any{string(kind)}, cond.Params...)
	return s.execCount(ctx, "delete records", "DELETE FROM config_records WHERE kind = ? AND "+cond.Clause, params...)
}
