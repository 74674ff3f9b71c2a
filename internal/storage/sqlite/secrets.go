package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mandalnilabja/maptoken/internal/storage/models"
)

// SetSecret creates or replaces a secret. The value is encrypted before it is written.
func (s *Storage) SetSecret(secret *models.Secret) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStorageClosed
	}
	if secret.Name == "" || secret.Value == "" {
		return ErrInvalidInput
	}

	encrypted, err := s.encryptor.Encrypt(secret.Value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncryptionError, err)
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(`
		INSERT INTO secrets (name, value, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, secret.Name, encrypted, now, now)
	if err != nil {
		return err
	}

	// Re-read timestamps so created_at survives an update.
	return s.db.QueryRow(
		"SELECT created_at, updated_at FROM secrets WHERE name = ?", secret.Name,
	).Scan(&secret.CreatedAt, &secret.UpdatedAt)
}

// GetSecret retrieves and decrypts a secret by name.
func (s *Storage) GetSecret(name string) (*models.Secret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStorageClosed
	}

	var secret models.Secret
	var encrypted string
	err := s.db.QueryRow(
		"SELECT name, value, created_at, updated_at FROM secrets WHERE name = ?", name,
	).Scan(&secret.Name, &encrypted, &secret.CreatedAt, &secret.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if secret.Value, err = s.encryptor.Decrypt(encrypted); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionError, err)
	}
	return &secret, nil
}

// ListSecrets returns all secrets ordered by name.
func (s *Storage) ListSecrets() ([]*models.Secret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStorageClosed
	}

	rows, err := s.db.Query("SELECT name, value, created_at, updated_at FROM secrets ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var secrets []*models.Secret
	for rows.Next() {
		var secret models.Secret
		var encrypted string
		if err := rows.Scan(&secret.Name, &encrypted, &secret.CreatedAt, &secret.UpdatedAt); err != nil {
			return nil, err
		}
		if secret.Value, err = s.encryptor.Decrypt(encrypted); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncryptionError, err)
		}
		secrets = append(secrets, &secret)
	}

	return secrets, rows.Err()
}

// DeleteSecret removes a secret by name.
func (s *Storage) DeleteSecret(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStorageClosed
	}

	result, err := s.db.Exec("DELETE FROM secrets WHERE name = ?", name)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
