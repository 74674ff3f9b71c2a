package secrets

import (
	"context"
	"errors"

	"github.com/mandalnilabja/maptoken/internal/storage"
)

// StorageStore reads secrets from the local encrypted database.
type StorageStore struct {
	storage storage.Storage
}

// NewStorageStore wraps a storage.Storage as a Store.
func NewStorageStore(store storage.Storage) *StorageStore {
	return &StorageStore{storage: store}
}

// GetSecret returns the decrypted value of name.
func (s *StorageStore) GetSecret(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	secret, err := s.storage.GetSecret(name)
	if errors.Is(err, storage.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return secret.Value, nil
}
