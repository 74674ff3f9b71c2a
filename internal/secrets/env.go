package secrets

import (
	"context"
	"os"
	"strings"
)

// DefaultEnvPrefix is prepended to normalized secret names.
const DefaultEnvPrefix = "MAPTOKEN_SECRET_"

// EnvStore reads secrets from environment variables, e.g. "client-secret"
// resolves to MAPTOKEN_SECRET_CLIENT_SECRET.
type EnvStore struct {
	prefix string
	lookup func(string) (string, bool)
}

// NewEnvStore creates an EnvStore; an empty prefix selects DefaultEnvPrefix.
func NewEnvStore(prefix string) *EnvStore {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return &EnvStore{prefix: prefix, lookup: os.LookupEnv}
}

// VarName returns the environment variable consulted for name.
func (s *EnvStore) VarName(name string) string {
	normalized := strings.NewReplacer("-", "_", ".", "_", "/", "_").Replace(name)
	return s.prefix + strings.ToUpper(normalized)
}

// GetSecret returns the variable's value, or ErrNotFound when it is unset or empty.
func (s *EnvStore) GetSecret(_ context.Context, name string) (string, error) {
	value, ok := s.lookup(s.VarName(name))
	if !ok || value == "" {
		return "", ErrNotFound
	}
	return value, nil
}
