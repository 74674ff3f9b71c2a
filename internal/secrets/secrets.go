// Package secrets resolves the long-lived credentials used for the token exchange.
package secrets

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a named secret does not exist in the backend.
var ErrNotFound = errors.New("secret not found")

// Store is a read-only view of a secret backend.
type Store interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// StoreFunc adapts a function to the Store interface.
type StoreFunc func(ctx context.Context, name string) (string, error)

// GetSecret calls f.
func (f StoreFunc) GetSecret(ctx context.Context, name string) (string, error) {
	return f(ctx, name)
}

// Credentials is an OAuth2 client id/secret pair. The vendor calls the id
// the project API key.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// ClientCredentials loads both halves of the pair from store.
func ClientCredentials(ctx context.Context, store Store, idName, secretName string) (Credentials, error) {
	id, err := store.GetSecret(ctx, idName)
	if err != nil {
		return Credentials{}, fmt.Errorf("load %s: %w", idName, err)
	}
	secret, err := store.GetSecret(ctx, secretName)
	if err != nil {
		return Credentials{}, fmt.Errorf("load %s: %w", secretName, err)
	}
	if id == "" || secret == "" {
		return Credentials{}, fmt.Errorf("empty client credentials (%s, %s)", idName, secretName)
	}
	return Credentials{ClientID: id, ClientSecret: secret}, nil
}
