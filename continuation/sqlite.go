package continuation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps continuations in a local SQLite database.
type SQLiteStore struct {
	db  *sqlx.DB
	ttl time.Duration
	now func() time.Time
}

type row struct {
	ID         string        `db:"id"`
	Operation  string        `db:"operation"`
	Payload    string        `db:"payload"`
	CreatedAt  int64         `db:"created_at"`
	ExpiresAt  sql.NullInt64 `db:"expires_at"`
	ConsumedAt sql.NullInt64 `db:"consumed_at"`
}

// NewSQLiteStore opens (or creates) the database at path and applies pending
// migrations. Records expire ttl after creation; a zero ttl keeps them forever.
func NewSQLiteStore(path string, ttl time.Duration) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db, ttl: ttl, now: time.Now}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) runMigrations() error {
	if _, err := s.db.Exec("CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	if err := s.db.Get(&current, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("recording migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// Put stores rec and removes expired records.
func (s *SQLiteStore) Put(ctx context.Context, rec *Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding continuation %s: %w", rec.ID, err)
	}

	now := s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	var expires sql.NullInt64
	if s.ttl > 0 {
		expires = sql.NullInt64{Int64: rec.CreatedAt.Add(s.ttl).UnixMilli(), Valid: true}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM continuations WHERE expires_at IS NOT NULL AND expires_at <= ?",
		now.UnixMilli(),
	); err != nil {
		return fmt.Errorf("purging expired continuations: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO continuations (id, operation, payload, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Operation, string(payload), rec.CreatedAt.UnixMilli(), expires,
	); err != nil {
		return fmt.Errorf("inserting continuation %s: %w", rec.ID, err)
	}

	return tx.Commit()
}

// Get loads the record stored under id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	var r row
	err := s.db.GetContext(ctx, &r, `
		SELECT id, operation, payload, created_at, expires_at, consumed_at
		FROM continuations WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading continuation %s: %w", id, err)
	}
	if r.ExpiresAt.Valid && r.ExpiresAt.Int64 <= s.now().UnixMilli() {
		return nil, ErrNotFound
	}

	rec := &Record{}
	if err := json.Unmarshal([]byte(r.Payload), rec); err != nil {
		return nil, err
	}
	rec.ID = r.ID
	rec.Operation = r.Operation
	rec.CreatedAt = time.UnixMilli(r.CreatedAt)
	if r.ConsumedAt.Valid {
		t := time.UnixMilli(r.ConsumedAt.Int64)
		rec.ConsumedAt = &t
	}
	return rec, nil
}

// Claim flags the record as replayed. Only the first caller succeeds.
func (s *SQLiteStore) Claim(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE continuations SET consumed_at = ? WHERE id = ? AND consumed_at IS NULL",
		s.now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("updating continuation %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating continuation %s: %w", id, err)
	}
	if n == 1 {
		return nil
	}

	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM continuations WHERE id = ?", id); err != nil {
		return fmt.Errorf("reading continuation %s: %w", id, err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrConsumed
}

// Release clears the consumed flag set by Claim.
func (s *SQLiteStore) Release(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE continuations SET consumed_at = NULL WHERE id = ?", id,
	); err != nil {
		return fmt.Errorf("releasing continuation %s: %w", id, err)
	}
	return nil
}
