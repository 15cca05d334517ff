package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/platform/filter"
	sqlitemigrate "github.com/zmooth/zmooth/internal/platform/storage/sqlitemigrate"
	"github.com/zmooth/zmooth/internal/storage"
	"github.com/zmooth/zmooth/internal/storage/cursor"
	"github.com/zmooth/zmooth/internal/storage/sqlite/migrations"
)

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func nullMillis(value *time.Time) sql.NullInt64 {
	if value == nil || value.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*value), Valid: true}
}

func fromNullMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}

func boolInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// Store implements storage.Store over SQLite.
//
// A Store returned by InTx shares the parent's *sql.DB but routes every
// statement through one transaction.
type Store struct {
	sqlDB *sql.DB
	q     dbtx
	inTx  bool
}

var _ storage.Store = (*Store)(nil)

// DB returns the raw database handle.
func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.sqlDB
}

// Open opens the SQLite store at path, creating parent directories, and
// applies bundled migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	dsn := "file:" + cleanPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB, q: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil || s.inTx {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.sqlDB.PingContext(ctx)
}

// InTx runs fn inside one transaction. Nested calls reuse the outer one.
func (s *Store) InTx(ctx context.Context, fn func(storage.Store) error) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if s.inTx {
		return fn(s)
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(&Store{sqlDB: s.sqlDB, q: tx, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil || s.q == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// notFound maps sql.ErrNoRows to storage.ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return fmt.Errorf("%s: %w", what, err)
}

// constraintError maps unique violations to CodeAlreadyExists.
func constraintError(err error, what string) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if idx := strings.Index(msg, "UNIQUE constraint failed: "); idx >= 0 {
		column := strings.TrimSpace(msg[idx+len("UNIQUE constraint failed: "):])
		if end := strings.IndexAny(column, " ,)"); end >= 0 {
			column = column[:end]
		}
		if dot := strings.LastIndex(column, "."); dot >= 0 {
			column = column[dot+1:]
		}
		return apperrors.WithMetadata(apperrors.CodeAlreadyExists, what+" already exists", map[string]string{"field": column})
	}
	return fmt.Errorf("put %s: %w", what, err)
}

// inClause renders "column IN (?, ?, ...)" for ids.
func inClause(column string, ids []string) filter.SQLCondition {
	if len(ids) == 0 {
		return filter.SQLCondition{}
	}
	params := make([]any, len(ids))
	for i, id := range ids {
		params[i] = id
	}
	return filter.SQLCondition{
		Clause: column + " IN (" + strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ") + ")",
		Params: params,
	}
}

// listSpec describes one paged listing.
type listSpec struct {
	table   string
	columns string
	// search lists columns matched by ListQuery.Query.
	search []string
	// schema enables ListQuery.Filter; nil rejects filters.
	schema  filter.Schema
	orderBy string
	where   []filter.SQLCondition
	// key distinguishes listings that share a query for page tokens.
	key string
}

func listPage[T any](ctx context.Context, s *Store, spec listSpec, query storage.ListQuery, scan func(scanner) (T, error)) (storage.Page[T], error) {
	if err := s.ready(ctx); err != nil {
		return storage.Page[T]{}, err
	}

	page, err := cursor.Resolve(query.PageSize, query.PageToken, spec.table, spec.key, query.Query, query.Filter, strings.Join(query.IDs, ","))
	if err != nil {
		return storage.Page[T]{}, apperrors.Wrap(apperrors.CodeInvalidPageToken, "invalid page token", err)
	}

	conditions := append([]filter.SQLCondition{}, spec.where...)
	conditions = append(conditions, filter.Search(query.Query, spec.search...), inClause("id", query.IDs))
	if strings.TrimSpace(query.Filter) != "" {
		if spec.schema == nil {
			return storage.Page[T]{}, apperrors.New(apperrors.CodeInvalidFilter, "filtering is not supported for this resource")
		}
		cond, err := spec.schema.Parse(query.Filter)
		if err != nil {
			return storage.Page[T]{}, apperrors.WithMetadata(apperrors.CodeInvalidFilter, "invalid filter: "+err.Error(), map[string]string{"fields": strings.Join(spec.schema.Fields(), ",")})
		}
		conditions = append(conditions, cond)
	}
	where := filter.And(conditions...)

	sqlText := "SELECT " + spec.columns + " FROM " + spec.table + where.Where()
	if spec.orderBy != "" {
		sqlText += " ORDER BY " + spec.orderBy
	}
	sqlText += " LIMIT ? OFFSET ?"
	params := append(where.Params, page.Size+1, page.Offset)

	rows, err := s.q.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return storage.Page[T]{}, fmt.Errorf("list %s: %w", spec.table, err)
	}
	defer rows.Close()

	result := storage.Page[T]{Items: make([]T, 0, page.Size)}
	fetched := 0
	for rows.Next() {
		fetched++
		if fetched > page.Size {
			continue
		}
		item, err := scan(rows)
		if err != nil {
			return storage.Page[T]{}, fmt.Errorf("scan %s: %w", spec.table, err)
		}
		result.Items = append(result.Items, item)
	}
	if err := rows.Err(); err != nil {
		return storage.Page[T]{}, fmt.Errorf("iterate %s: %w", spec.table, err)
	}
	result.NextPageToken, err = page.Next(fetched)
	if err != nil {
		return storage.Page[T]{}, fmt.Errorf("encode page token: %w", err)
	}
	return result, nil
}

// queryAll runs a query and scans every row.
func queryAll[T any](ctx context.Context, s *Store, what, sqlText string, params []any, scan func(scanner) (T, error)) ([]T, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	defer rows.Close()

	var items []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", what, err)
	}
	return items, nil
}

// execCount runs a mutation and returns the affected row count.
func (s *Store) execCount(ctx context.Context, what, sqlText string, params ...any) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	res, err := s.q.ExecContext(ctx, sqlText, params...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", what, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s rows affected: %w", what, err)
	}
	return int(affected), nil
}

// execIDs runs "<prefix> WHERE id IN (...)" for a selection.
func (s *Store) execIDs(ctx context.Context, what, prefix string, ids []string, params ...any) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	cond := inClause("id", ids)
	return s.execCount(ctx, what, prefix+" WHERE "+cond.Clause, append(params, cond.Params...)...)
}

func countQuery(ctx context.Context, s *Store, what, sqlText string, params ...any) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	var count int
	if err := s.q.QueryRowContext(ctx, sqlText, params...).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", what, err)
	}
	return count, nil
}
