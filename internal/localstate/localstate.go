// Package localstate persists small pieces of JSON-serializable client
// state (conversation in progress, preferences, drafts) between runs.
// Read failures are never fatal: callers fall back to typed defaults.
package localstate

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Well-known keys. The conversation key is a fixed constant: the intake
// flow owns exactly one in-progress conversation at a time.
const (
	KeyConversation  = "conversation"
	KeyPreferences   = "preferences"
	KeyRecentTickets = "recent_tickets"

	draftKeyPrefix = "draft:"
)

// DraftKey returns the storage key for a per-conversation draft message.
func DraftKey(conversationID string) string {
	return draftKeyPrefix + conversationID
}

// Store is a key-value store backed by SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the local state database under dir and runs
// migrations.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("localstate: mkdir %s: %w", dir, err)
	}

	path := filepath.Join(dir, "state.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("localstate: open: %w", err)
	}

	// WAL mode so a reader (e.g. deskctl) doesn't block the TUI
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("localstate: wal: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("localstate: migrate: %w", err)
	}
	return nil
}

// Set marshals v to JSON and stores it under key.
func (s *Store) Set(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("localstate: marshal %s: %w", key, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at
	`, key, string(data), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("localstate: set %s: %w", key, err)
	}
	return nil
}

// Get unmarshals the value stored under key into out. Returns
// sql.ErrNoRows wrapped if the key is absent.
func (s *Store) Get(key string, out any) error {
	var raw string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if err != nil {
		return fmt.Errorf("localstate: get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("localstate: parse %s: %w", key, err)
	}
	return nil
}

// GetOr loads the value for key into out; on any failure (absent key,
// corrupt value) it logs, assigns fallback via the provided setter, and
// reports false. Local state is best-effort by design.
func (s *Store) GetOr(key string, out any, fallback func()) bool {
	if err := s.Get(key, out); err != nil {
		s.logger.Debug("local state falling back to default", "key", key, "error", err)
		if fallback != nil {
			fallback()
		}
		return false
	}
	return true
}

// Delete removes a key. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("localstate: delete %s: %w", key, err)
	}
	return nil
}

// PruneDrafts removes draft entries not touched since the cutoff and
// returns how many were removed.
func (s *Store) PruneDrafts(olderThan time.Time) (int, error) {
	res, err := s.db.Exec(
		`DELETE FROM kv WHERE key LIKE ? AND updated_at < ?`,
		draftKeyPrefix+"%", olderThan.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("localstate: prune drafts: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection (for testing).
func (s *Store) DB() *sql.DB {
	return s.db
}
