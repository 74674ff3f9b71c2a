// Package storage provides the storage interface and implementations.
package storage

import (
	"time"

	"github.com/mandalnilabja/maptoken/internal/storage/models"
	"github.com/mandalnilabja/maptoken/internal/storage/sqlite"
)

// Re-export types from models package for convenience
type (
	Secret         = models.Secret
	SecretPreview  = models.SecretPreview
	Issuance       = models.Issuance
	IssuanceFilter = models.IssuanceFilter
	IssuanceStats  = models.IssuanceStats
)

// Re-export functions from models package
var MaskValue = models.MaskValue

// Re-export errors from sqlite package
var (
	ErrNotFound        = sqlite.ErrNotFound
	ErrInvalidInput    = sqlite.ErrInvalidInput
	ErrStorageClosed   = sqlite.ErrStorageClosed
	ErrEncryptionError = sqlite.ErrEncryptionError
)

// Storage defines the interface for persistent data storage
type Storage interface {
	// Secret operations
	SetSecret(secret *models.Secret) error
	GetSecret(name string) (*models.Secret, error)
	ListSecrets() ([]*models.Secret, error)
	DeleteSecret(name string) error

	// Issuance log operations
	LogIssuance(entry *models.Issuance) error
	GetIssuances(filter models.IssuanceFilter) ([]*models.Issuance, error)
	DeleteIssuances(before time.Time) (int64, error)
	IssuanceStats() (*models.IssuanceStats, error)

	// Admin password operations
	GetAdminPasswordHash() (string, error)
	SetAdminPasswordHash(hash string) error
	HasAdminPassword() (bool, error)

	// Maintenance operations
	Ping() error
	Close() error
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (Storage, error) {
	return sqlite.New(dbPath)
}
