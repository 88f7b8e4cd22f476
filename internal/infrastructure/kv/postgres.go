package kv

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
)

const (
	entriesTable = "kv_entries"
	listsTable   = "kv_lists"
)

// Schema creates the tables PostgresStore relies on.
const Schema = `
CREATE TABLE IF NOT EXISTS kv_entries (
    key        TEXT PRIMARY KEY,
    value      BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS kv_lists (
    list       TEXT   NOT NULL,
    seq        BIGINT NOT NULL,
    value      BYTEA  NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (list, seq)
);`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// runLockKey identifies the session advisory lock held for a pipeline run.
const runLockKey int64 = 0x6d6f64656c72

// serializationFailure is the SQLSTATE of a SERIALIZABLE commit conflict.
const serializationFailure pq.ErrorCode = "40001"

// PostgresStore persists the key-value layer into two Postgres tables.
// Update runs at SERIALIZABLE isolation.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres connects using the lib/pq driver and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return NewPostgresStore(db), nil
}

// NewPostgresStore wires an existing sql.DB.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// View runs fn in a read-only transaction.
func (s *PostgresStore) View(ctx context.Context, fn func(tx Tx) error) error {
	return s.run(ctx, &sql.TxOptions{ReadOnly: true}, false, fn)
}

// Update runs fn in a serializable transaction and commits on success.
// Serialization failures replay fn in a new transaction.
func (s *PostgresStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	return retryConflicts(ctx, isSerializationFailure, func() error {
		return s.run(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, true, fn)
	})
}

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == serializationFailure
}

// LockRun takes the session advisory lock that serializes pipeline runs of
// every process connected to the database. It blocks until the lock is free
// or ctx is done. The lock lives on a dedicated connection that release
// returns to the pool.
func (s *PostgresStore) LockRun(ctx context.Context) (func(), error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("reserve lock connection: %w", err)
	}

	query, args, err := advisoryLockQuery("pg_advisory_lock", runLockKey)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := conn.ExecContext(ctx, query, args...); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}

	release := func() {
		query, args, err := advisoryLockQuery("pg_advisory_unlock", runLockKey)
		if err == nil {
			_, err = conn.ExecContext(context.Background(), query, args...)
		}
		if err != nil {
			// Closing a pooled conn whose session still holds the lock would
			// leak it, so drop the physical connection instead.
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		}
		_ = conn.Close()
	}
	return release, nil
}

func (s *PostgresStore) run(ctx context.Context, opts *sql.TxOptions, writable bool, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&postgresTx{ctx: ctx, tx: sqlTx, writable: writable}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Close closes the underlying pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type postgresTx struct {
	ctx      context.Context
	tx       *sql.Tx
	writable bool
}

func (t *postgresTx) Get(key string) ([]byte, error) {
	query, args, err := getQuery(key)
	if err != nil {
		return nil, err
	}

	var value []byte
	err = t.tx.QueryRowContext(t.ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", key, err)
	}
	return value, nil
}

func (t *postgresTx) Set(key string, value []byte) error {
	if !t.writable {
		return ErrReadOnly
	}
	query, args, err := setQuery(key, value)
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(t.ctx, query, args...); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

func (t *postgresTx) Append(list string, value []byte) (int64, error) {
	if !t.writable {
		return 0, ErrReadOnly
	}
	query, args, err := appendQuery(list, value)
	if err != nil {
		return 0, err
	}

	var seq int64
	if err := t.tx.QueryRowContext(t.ctx, query, args...).Scan(&seq); err != nil {
		return 0, fmt.Errorf("append %s: %w", list, err)
	}
	return seq, nil
}

func (t *postgresTx) List(list string) ([][]byte, error) {
	query, args, err := listQuery(list)
	if err != nil {
		return nil, err
	}

	rows, err := t.tx.QueryContext(t.ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query list %s: %w", list, err)
	}

	var out [][]byte
	for rows.Next() {
		var value []byte
		if err := rows.Scan(&value); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan list %s: %w", list, err)
		}
		out = append(out, value)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return out, nil
}

func advisoryLockQuery(fn string, key int64) (string, []any, error) {
	return psql.Select().Column(sq.Expr(fn+"(?)", key)).ToSql()
}

func getQuery(key string) (string, []any, error) {
	return psql.Select("value").From(entriesTable).Where(sq.Eq{"key": key}).ToSql()
}

func setQuery(key string, value []byte) (string, []any, error) {
	return psql.Insert(entriesTable).
		Columns("key", "value").
		Values(key, value).
		Suffix("ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()").
		ToSql()
}

func appendQuery(list string, value []byte) (string, []any, error) {
	next := sq.Select("COALESCE(MAX(seq), 0) + 1").From(listsTable).Where(sq.Eq{"list": list})
	return psql.Insert(listsTable).
		Columns("list", "seq", "value").
		Values(list, sq.Expr("(?)", next), value).
		Suffix("RETURNING seq").
		ToSql()
}

func listQuery(list string) (string, []any, error) {
	return psql.Select("value").From(listsTable).Where(sq.Eq{"list": list}).OrderBy("seq ASC").ToSql()
}
