package localstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite is the default Store backend: a single sqlite file per
// installation, shared by both processes. The connection runs with
// synchronous=FULL so every committed write reaches disk before the
// call returns, which is the flush-before-return contract the signal
// channel depends on.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

const timeLayout = time.RFC3339Nano

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS cache_entry (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		payload TEXT NOT NULL,
		fetched_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS signal_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		authenticated INTEGER NOT NULL DEFAULT 0,
		identity_key TEXT NOT NULL DEFAULT '',
		refresh_requested INTEGER NOT NULL DEFAULT 0,
		refresh_requested_at TEXT NOT NULL DEFAULT '',
		resync_needed INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL DEFAULT ''
	)`,
	`INSERT OR IGNORE INTO signal_state (id) VALUES (1)`,
}

// OpenSQLite opens (creating if needed) the installation's local state
// file. Both processes may hold it open concurrently; sqlite's own
// locking serializes writers and the busy timeout absorbs contention.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=FULL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open local state: %w", err)
	}
	// A single connection keeps writes strictly ordered within a process.
	db.SetMaxOpenConns(1)

	for i, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("local state schema %d: %w", i, err)
		}
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) PutCache(ctx context.Context, entry CacheEntry) error {
	payload, err := json.Marshal(entry.Quote)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if entry.FetchedAt.IsZero() {
		entry.FetchedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cache_entry (id, payload, fetched_at) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at
	`, string(payload), entry.FetchedAt.UTC().Format(timeLayout))
	return err
}

func (s *SQLite) GetCache(ctx context.Context) (CacheEntry, bool, error) {
	var (
		payload   string
		fetchedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT payload, fetched_at FROM cache_entry WHERE id = 1
	`).Scan(&payload, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return CacheEntry{}, false, nil
	}
	if err != nil {
		return CacheEntry{}, false, err
	}

	var entry CacheEntry
	if err := json.Unmarshal([]byte(payload), &entry.Quote); err != nil {
		return CacheEntry{}, false, fmt.Errorf("decode cache entry: %w", err)
	}
	entry.FetchedAt = parseTime(fetchedAt)
	return entry, true, nil
}

func (s *SQLite) ClearCache(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entry WHERE id = 1`)
	return err
}

func (s *SQLite) ReadSignal(ctx context.Context) (Signal, error) {
	var (
		sig                Signal
		refreshRequestedAt string
		updatedAt          string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT authenticated, identity_key, refresh_requested, refresh_requested_at, resync_needed, updated_at
		FROM signal_state WHERE id = 1
	`).Scan(&sig.Authenticated, &sig.IdentityKey, &sig.RefreshRequested, &refreshRequestedAt, &sig.ResyncNeeded, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Signal{}, nil
	}
	if err != nil {
		return Signal{}, err
	}
	sig.RefreshRequestedAt = parseTime(refreshRequestedAt)
	sig.UpdatedAt = parseTime(updatedAt)
	return sig, nil
}

func (s *SQLite) SetAuthenticated(ctx context.Context, authenticated bool) error {
	return s.updateSignal(ctx, `authenticated = ?`, authenticated)
}

func (s *SQLite) SetIdentity(ctx context.Context, identityKey string) error {
	return s.updateSignal(ctx, `identity_key = ?`, identityKey)
}

func (s *SQLite) RequestRefresh(ctx context.Context, at time.Time) error {
	return s.updateSignal(ctx, `refresh_requested = 1, refresh_requested_at = ?`, at.UTC().Format(timeLayout))
}

func (s *SQLite) ClearRefreshRequest(ctx context.Context) error {
	return s.updateSignal(ctx, `refresh_requested = 0, refresh_requested_at = ''`)
}

func (s *SQLite) SetResyncNeeded(ctx context.Context, needed bool) error {
	return s.updateSignal(ctx, `resync_needed = ?`, needed)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) updateSignal(ctx context.Context, set string, args ...any) error {
	args = append(args, time.Now().UTC().Format(timeLayout))
	_, err := s.db.ExecContext(ctx, `
		UPDATE signal_state SET `+set+`, updated_at = ? WHERE id = 1
	`, args...)
	return err
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
