// Package sqlite provides SQLite-based storage implementation.
package sqlite

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mandalnilabja/maptoken/internal/storage/encryption"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS secrets (
	name        TEXT PRIMARY KEY,
	value       TEXT NOT NULL,
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS issuances (
	id            TEXT PRIMARY KEY,
	request_id    TEXT,
	source        TEXT NOT NULL,
	success       INTEGER NOT NULL,
	expires_at    DATETIME,
	error_message TEXT,
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_issuances_created ON issuances(created_at);
CREATE INDEX IF NOT EXISTS idx_issuances_source ON issuances(source);

CREATE TABLE IF NOT EXISTS admin_settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// Storage implements the storage.Storage interface using SQLite
type Storage struct {
	db        *sql.DB
	encryptor encryption.Encryptor
	mu        sync.RWMutex
	closed    bool
}

// New opens (or creates) the database at dbPath with a key derived by encryption.New.
func New(dbPath string) (*Storage, error) {
	enc, err := encryption.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}
	return NewWithEncryptor(dbPath, enc)
}

// NewWithEncryptor opens the database with a caller-supplied encryptor.
func NewWithEncryptor(dbPath string, enc encryption.Encryptor) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Storage{db: db, encryptor: enc}, nil
}

// Ping checks database connectivity.
func (s *Storage) Ping() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStorageClosed
	}
	return s.db.Ping()
}

// Close closes the database connection. Calling it twice is a no-op.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

// generateID creates a new unique ID with a prefix
func generateID(prefix string) string {
	return prefix + "_" + uuid.New().String()[:8]
}

// boolToInt converts a boolean to an integer (1 for true, 0 for false)
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullString returns nil for empty strings so the column stores NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
