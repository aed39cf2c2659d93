package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	keyPreferences = "preferences"
	keyRecent      = "recent_accounts"
	keyUsage       = "usage_daily"
	followerPrefix = "followers:"

	// MaxRecentAccounts bounds the recent accounts list.
	MaxRecentAccounts = 5
)

// Store handles all database operations
type Store struct {
	db *sql.DB
}

// New creates a new Store with SQLite backend
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS usage_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		action TEXT NOT NULL,
		at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_usage_events_at ON usage_events(at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Get decodes the JSON value stored under key into v. It reports false
// when the key is absent.
func (s *Store) Get(ctx context.Context, key string, v any) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores v as JSON under key.
func (s *Store) Set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, string(data), time.Now())
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

// Preferences returns the saved preferences, or the defaults.
func (s *Store) Preferences(ctx context.Context) (Preferences, error) {
	p := DefaultPreferences()
	if _, err := s.Get(ctx, keyPreferences, &p); err != nil {
		return DefaultPreferences(), err
	}
	return p, nil
}

// SetPreferences saves preferences.
func (s *Store) SetPreferences(ctx context.Context, p Preferences) error {
	return s.Set(ctx, keyPreferences, p)
}

// RecentAccounts returns recently sorted profiles, most recent first.
func (s *Store) RecentAccounts(ctx context.Context) ([]RecentAccount, error) {
	var accounts []RecentAccount
	if _, err := s.Get(ctx, keyRecent, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// AddRecentAccount moves username to the front of the recent list.
func (s *Store) AddRecentAccount(ctx context.Context, a RecentAccount) error {
	if a.Username == "" {
		return nil
	}
	accounts, err := s.RecentAccounts(ctx)
	if err != nil {
		return err
	}
	if a.VisitedAt.IsZero() {
		a.VisitedAt = time.Now()
	}
	next := []RecentAccount{a}
	for _, r := range accounts {
		if !strings.EqualFold(r.Username, a.Username) {
			next = append(next, r)
		}
	}
	if len(next) > MaxRecentAccounts {
		next = next[:MaxRecentAccounts]
	}
	return s.Set(ctx, keyRecent, next)
}

// FollowerCount returns the cached follower count for username.
func (s *Store) FollowerCount(ctx context.Context, username string) (int64, bool, error) {
	var n int64
	ok, err := s.Get(ctx, followerPrefix+strings.ToLower(username), &n)
	return n, ok, err
}

// CacheFollowerCount remembers username's follower count.
func (s *Store) CacheFollowerCount(ctx context.Context, username string, n int64) error {
	return s.Set(ctx, followerPrefix+strings.ToLower(username), n)
}

// DailyUsage returns the usage counter.
func (s *Store) DailyUsage(ctx context.Context) (DailyUsage, error) {
	var u DailyUsage
	_, err := s.Get(ctx, keyUsage, &u)
	return u, err
}

// SetDailyUsage replaces the usage counter.
func (s *Store) SetDailyUsage(ctx context.Context, u DailyUsage) error {
	return s.Set(ctx, keyUsage, u)
}

// RecordUsageEvent appends to the usage log.
func (s *Store) RecordUsageEvent(ctx context.Context, action string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO usage_events (action, at) VALUES (?, ?)`, action, time.Now())
	return err
}

// UsageEventsSince lists usage events at or after t, oldest first.
func (s *Store) UsageEventsSince(ctx context.Context, t time.Time) ([]UsageEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, at FROM usage_events
		WHERE at >= ?
		ORDER BY at, id
	`, t)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []UsageEvent
	for rows.Next() {
		var e UsageEvent
		if err := rows.Scan(&e.ID, &e.Action, &e.At); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
