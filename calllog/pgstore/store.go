// Package pgstore persists call log entries in a PostgreSQL table with
// secondary indexes on page and url.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/devops-sunny/turbofetch/calllog"
)

const (
	DefaultTable = "api_call_logs"

	// lockNotAvailable is the SQLSTATE raised when lock_timeout expires.
	lockNotAvailable = "55P03"

	defaultLockTimeout = 2 * time.Second
)

var (
	validTable = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

	openPostgresDB = func(cfg *pgx.ConnConfig) *sql.DB {
		return stdlib.OpenDB(*cfg)
	}
)

var columns = []string{"id", "url", "method", "status", "response", "duration_ms", "error_message", "page", "agent", "logged_at"}

// Config selects the database and table.
type Config struct {
	DSN   string
	Table string
	// LockTimeout bounds how long DeleteStore waits for other sessions to
	// release the table before reporting calllog.ErrBlocked.
	LockTimeout time.Duration
}

// Store implements calllog.Store on a PostgreSQL table.
type Store struct {
	db          *sql.DB
	table       string
	lockTimeout time.Duration
	sb          squirrel.StatementBuilderType
	ownsDB      bool
}

var (
	_ calllog.Store       = (*Store)(nil)
	_ calllog.Initializer = (*Store)(nil)
)

// Open parses cfg.DSN, opens a pgx backed *sql.DB and pings it.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	pgxConfig, err := pgx.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgstore: parse DSN: %w", err)
	}
	db := openPostgresDB(pgxConfig)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	s, err := New(db, cfg.Table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if cfg.LockTimeout > 0 {
		s.lockTimeout = cfg.LockTimeout
	}
	s.ownsDB = true
	return s, nil
}

// New wraps db. The caller keeps ownership of db.
func New(db *sql.DB, table string) (*Store, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTable.MatchString(table) {
		return nil, fmt.Errorf("pgstore: invalid table name %q", table)
	}
	return &Store{
		db:          db,
		table:       table,
		lockTimeout: defaultLockTimeout,
		sb:          squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}, nil
}

func (s *Store) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + s.table + ` (
	id            BIGSERIAL PRIMARY KEY,
	url           TEXT        NOT NULL,
	method        TEXT        NOT NULL,
	status        TEXT        NOT NULL,
	response      JSONB,
	duration_ms   BIGINT      NOT NULL DEFAULT 0,
	error_message TEXT        NOT NULL DEFAULT '',
	page          TEXT        NOT NULL DEFAULT '',
	agent         TEXT        NOT NULL DEFAULT '',
	logged_at     TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS ` + s.table + `_page_idx ON ` + s.table + ` (page)`,
		`CREATE INDEX IF NOT EXISTS ` + s.table + `_url_idx ON ` + s.table + ` (url)`,
	}
}

// Init creates the table and both indexes. It is idempotent.
func (s *Store) Init(ctx context.Context) error {
	for _, stmt := range s.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return &calllog.StoreError{Op: "init", Store: "postgres", Cause: err}
		}
	}
	return nil
}

func nullableResponse(e *calllog.Entry) sql.NullString {
	if len(e.Response) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(e.Response), Valid: true}
}

// Add implements calllog.Store.
func (s *Store) Add(ctx context.Context, e *calllog.Entry) (string, error) {
	query, args, err := s.sb.Insert(s.table).
		Columns(columns[1:]...).
		Values(e.URL, e.Method, string(e.Status), nullableResponse(e), e.DurationMs, e.ErrorMessage, e.Page, e.Agent, e.Timestamp.UTC()).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return "", &calllog.StoreError{Op: "add", Store: "postgres", Cause: err}
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return "", &calllog.StoreError{Op: "add", Store: "postgres", Cause: err}
	}
	return strconv.FormatInt(id, 10), nil
}

// Update implements calllog.Store. url and page are never rewritten.
func (s *Store) Update(ctx context.Context, id string, e *calllog.Entry) error {
	rowID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return calllog.ErrNotFound
	}
	query, args, err := s.sb.Update(s.table).
		Set("status", string(e.Status)).
		Set("response", nullableResponse(e)).
		Set("duration_ms", e.DurationMs).
		Set("error_message", e.ErrorMessage).
		Set("logged_at", e.Timestamp.UTC()).
		Where(squirrel.Eq{"id": rowID}).
		ToSql()
	if err != nil {
		return &calllog.StoreError{Op: "update", Store: "postgres", Cause: err}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return &calllog.StoreError{Op: "update", Store: "postgres", Cause: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &calllog.StoreError{Op: "update", Store: "postgres", Cause: err}
	}
	if n == 0 {
		return calllog.ErrNotFound
	}
	return nil
}

// QueryByIndex implements calllog.Store.
func (s *Store) QueryByIndex(ctx context.Context, idx calllog.Index, value string) ([]*calllog.Entry, error) {
	if !calllog.ValidIndex(idx) {
		return nil, calllog.ErrUnknownIndex
	}
	return s.selectEntries(ctx, "query", squirrel.Eq{string(idx): value})
}

// GetAll implements calllog.Store.
func (s *Store) GetAll(ctx context.Context) ([]*calllog.Entry, error) {
	return s.selectEntries(ctx, "get all", nil)
}

func (s *Store) selectEntries(ctx context.Context, op string, where squirrel.Sqlizer) ([]*calllog.Entry, error) {
	builder := s.sb.Select(columns...).From(s.table).OrderBy("id")
	if where != nil {
		builder = builder.Where(where)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, &calllog.StoreError{Op: op, Store: "postgres", Cause: err}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &calllog.StoreError{Op: op, Store: "postgres", Cause: err}
	}
	defer rows.Close()

	var out []*calllog.Entry
	for rows.Next() {
		var (
			id       int64
			status   string
			response sql.NullString
			e        calllog.Entry
		)
		if err := rows.Scan(&id, &e.URL, &e.Method, &status, &response, &e.DurationMs, &e.ErrorMessage, &e.Page, &e.Agent, &e.Timestamp); err != nil {
			return nil, &calllog.StoreError{Op: op, Store: "postgres", Cause: err}
		}
		e.ID = strconv.FormatInt(id, 10)
		e.Status = calllog.Status(status)
		if response.Valid {
			e.Response = []byte(response.String)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, &calllog.StoreError{Op: op, Store: "postgres", Cause: err}
	}
	return out, nil
}

// DeleteStore drops the table. If another session holds a lock on it past
// the lock timeout the drop is abandoned and calllog.ErrBlocked returned.
func (s *Store) DeleteStore(ctx context.Context) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &calllog.StoreError{Op: "delete store", Store: "postgres", Cause: err}
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	lockTimeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
	if _, err = tx.ExecContext(ctx, lockTimeout); err != nil {
		return &calllog.StoreError{Op: "delete store", Store: "postgres", Cause: err}
	}
	if _, err = tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+s.table); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == lockNotAvailable {
			return calllog.ErrBlocked
		}
		return &calllog.StoreError{Op: "delete store", Store: "postgres", Cause: err}
	}
	if err = tx.Commit(); err != nil {
		return &calllog.StoreError{Op: "delete store", Store: "postgres", Cause: err}
	}
	return nil
}

// Close closes the database if the Store opened it.
func (s *Store) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}
