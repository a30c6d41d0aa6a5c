// Package sqlite provides SQLite-based persistent storage for focus.
// Uses WAL mode for concurrent reads and crash-safe writes.
//
// The handle is capped at one open connection, so every Update runs alone:
// read-modify-write sequences inside one transaction cannot interleave with
// another writer. Unique indexes back the invariants that must survive even
// a misbehaving caller.
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

	sqlitedrv "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/tutu-network/focus/internal/domain"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn carries the repository methods shared by DB and Tx.
type conn struct {
	q queryer
}

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	conn
	db *sql.DB
}

// Tx is one atomic unit of work. It exposes the same repository methods as DB.
type Tx struct {
	conn
}

// Open creates or opens the SQLite database at dir/state.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "state.db")
	dsn := "file:" + dbPath +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Connection pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{conn: conn{q: db}, db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// Update runs fn inside a read-write transaction. If fn returns an error the
// transaction is rolled back and that error is returned unchanged.
// fn must only use tx; touching d from inside fn deadlocks on the single connection.
func (d *DB) Update(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin", err)
	}
	if err := fn(&Tx{conn: conn{q: sqlTx}}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

// View runs fn against a consistent read snapshot. Writes made by fn are discarded.
func (d *DB) View(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin", err)
	}
	defer sqlTx.Rollback()
	return fn(&Tx{conn: conn{q: sqlTx}})
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id                    TEXT PRIMARY KEY,
			name                  TEXT NOT NULL,
			xp                    INTEGER NOT NULL DEFAULT 0,
			level                 INTEGER NOT NULL DEFAULT 1,
			daily_task_limit      INTEGER NOT NULL DEFAULT 3,
			active                BOOLEAN NOT NULL DEFAULT 1,
			last_streak_milestone INTEGER NOT NULL DEFAULT 0,
			last_weekly_tier      INTEGER NOT NULL DEFAULT 0,
			weekly_reward_week    TEXT NOT NULL DEFAULT '',
			created_at            INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_active ON users(active)`,

		// Daily task list: one position per (user, day)
		`CREATE TABLE IF NOT EXISTS tasks (
			id             TEXT PRIMARY KEY,
			user_id        TEXT NOT NULL REFERENCES users(id),
			title          TEXT NOT NULL,
			description    TEXT NOT NULL DEFAULT '',
			task_date      TEXT NOT NULL,
			completed      BOOLEAN NOT NULL DEFAULT 0,
			completed_at   INTEGER,
			ord            INTEGER NOT NULL,
			estimated_time INTEGER NOT NULL DEFAULT 0,
			actual_time    INTEGER NOT NULL DEFAULT 0,
			created_at     INTEGER NOT NULL,
			UNIQUE (user_id, task_date, ord)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_completed ON tasks(user_id, completed_at)`,

		// Focus sessions: at most one uncompleted row per user
		`CREATE TABLE IF NOT EXISTS focus_sessions (
			id             TEXT PRIMARY KEY,
			user_id        TEXT NOT NULL REFERENCES users(id),
			session_type   TEXT NOT NULL,
			duration       INTEGER NOT NULL,
			start_time     INTEGER NOT NULL,
			session_date   TEXT NOT NULL,
			end_time       INTEGER,
			completed      BOOLEAN NOT NULL DEFAULT 0,
			paused         BOOLEAN NOT NULL DEFAULT 0,
			paused_at      INTEGER,
			paused_seconds INTEGER NOT NULL DEFAULT 0,
			xp_earned      INTEGER NOT NULL DEFAULT 0,
			rating         INTEGER,
			notes          TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_one_active
			ON focus_sessions(user_id) WHERE completed = 0`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_end ON focus_sessions(user_id, end_time)`,

		`CREATE TABLE IF NOT EXISTS distractions (
			id               TEXT PRIMARY KEY,
			user_id          TEXT NOT NULL,
			session_id       TEXT NOT NULL REFERENCES focus_sessions(id) ON DELETE CASCADE,
			type             TEXT NOT NULL,
			note             TEXT NOT NULL DEFAULT '',
			duration_seconds INTEGER NOT NULL DEFAULT 0,
			severity         INTEGER NOT NULL,
			impact           INTEGER NOT NULL,
			resolved         BOOLEAN NOT NULL DEFAULT 0,
			created_at       INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_distractions_session ON distractions(session_id)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// SQLite primary result code for constraint violations.
const sqliteConstraint = 19

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// storageErr marks a driver failure as a retryable storage error while
// keeping the driver error in the chain.
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStorage, err)
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlitedrv.Error
	if errors.As(err, &se) && se.Code()&0xff != sqliteConstraint {
		return false
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullableUnix(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func fromNullableUnix(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.Unix(v.Int64, 0).UTC()
}

func fromUnix(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}

// affected returns whether a conditional write touched any row.
func affected(op string, res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr(op, err)
	}
	return n > 0, nil
}
