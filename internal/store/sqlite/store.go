// Package sqlite provides the SQLite-backed event and producer store.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"telemetry/internal/ingest"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store persists events and producer state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the store at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	// _txlock=immediate takes the write lock at BeginTx, so concurrent
	// ingests serialize on the busy timeout instead of failing a deferred
	// read-to-write upgrade mid-transaction.
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ready reports whether the store can serve queries.
func (s *Store) Ready(ctx context.Context) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return s.sqlDB.PingContext(ctx)
}

// IngestEvent persists one event and the producer state it implies in a
// single transaction. The idempotency lookup, the producer upsert, and the
// event insert commit together or not at all. A duplicate key returns
// ingest.ErrDuplicateEvent with nothing written.
func (s *Store) IngestEvent(ctx context.Context, rec ingest.EventRecord, upd ingest.ProducerUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM events WHERE idempotency_key = ?`, rec.IdempotencyKey,
	).Scan(&exists)
	switch {
	case err == nil:
		return ingest.ErrDuplicateEvent
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("lookup idempotency key: %w", err)
	}

	now := toMillis(rec.ReceivedAt)
	// NULLIF keeps existing values when the update carries an empty field.
	_, err = tx.ExecContext(ctx, `
INSERT INTO producers (login, linked, name, game_mode, map_title, producer_version, first_seen_at, last_seen_at)
VALUES (?, 0, ?, ?, ?, ?, ?, ?)
ON CONFLICT (login) DO UPDATE SET
    name             = COALESCE(NULLIF(excluded.name, ''), producers.name),
    game_mode        = COALESCE(NULLIF(excluded.game_mode, ''), producers.game_mode),
    map_title        = COALESCE(NULLIF(excluded.map_title, ''), producers.map_title),
    producer_version = COALESCE(NULLIF(excluded.producer_version, ''), producers.producer_version),
    last_seen_at     = excluded.last_seen_at`,
		rec.ProducerLogin, upd.Name, upd.GameMode, upd.MapTitle, upd.ProducerVersion, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert producer: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO events (event_id, idempotency_key, event_name, event_category, schema_version,
                    producer_login, source_callback, source_sequence, source_time,
                    payload, metadata, received_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.EventID, rec.IdempotencyKey, rec.EventName, rec.EventCategory, rec.SchemaVersion,
		rec.ProducerLogin, rec.SourceCallback, rec.SourceSequence, toMillis(rec.SourceTime),
		string(rec.Payload), string(rec.Metadata), now,
	)
	if err != nil {
		// A concurrent writer may have won the key between lookup and insert.
		if isConstraintError(err) {
			return ingest.ErrDuplicateEvent
		}
		return fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListProducers returns all registered producers ordered by most recently seen.
func (s *Store) ListProducers(ctx context.Context) ([]ingest.Producer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT login, linked, name, game_mode, map_title, producer_version, first_seen_at, last_seen_at
FROM producers
ORDER BY last_seen_at DESC, login`)
	if err != nil {
		return nil, fmt.Errorf("query producers: %w", err)
	}
	defer rows.Close()

	var producers []ingest.Producer
	for rows.Next() {
		var p ingest.Producer
		var linked int64
		var firstSeen, lastSeen int64
		if err := rows.Scan(&p.Login, &linked, &p.Name, &p.GameMode, &p.MapTitle, &p.ProducerVersion, &firstSeen, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan producer: %w", err)
		}
		p.Linked = linked != 0
		p.FirstSeenAt = fromMillis(firstSeen)
		p.LastSeenAt = fromMillis(lastSeen)
		producers = append(producers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate producers: %w", err)
	}
	return producers, nil
}

// CountEvents returns the number of stored events for one producer.
func (s *Store) CountEvents(ctx context.Context, login string) (int64, error) {
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	var count int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE producer_login = ?`, login,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

func isConstraintError(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3lib.SQLITE_CONSTRAINT, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

func applyMigrations(sqlDB *sql.DB) error {
	if _, err := sqlDB.Exec(`
CREATE TABLE IF NOT EXISTS schema_migrations (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var applied int
		err := sqlDB.QueryRow(
			`SELECT 1 FROM schema_migrations WHERE name = ?`, name,
		).Scan(&applied)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration %s: %w", name, err)
		}

		content, err := fs.ReadFile(migrationFS, "migrations/"+name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		tx, err := sqlDB.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", name, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`,
			name, time.Now().UTC().UnixMilli(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}
	return nil
}
