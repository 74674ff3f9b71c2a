// Package admin implements the password-protected management API.
package admin

import (
	"context"
	"time"

	"github.com/mandalnilabja/maptoken/internal/broker"
	"github.com/mandalnilabja/maptoken/internal/oauth"
	"github.com/mandalnilabja/maptoken/internal/storage"
)

// TokenBroker is the part of *broker.Broker the admin API drives.
type TokenBroker interface {
	Refresh(ctx context.Context) (*oauth.Token, error)
	Invalidate()
	Status() broker.Status
}

// SecretCache drops cached secret values. *secrets.Resolver satisfies it.
type SecretCache interface {
	Invalidate(name string)
}

// Handlers holds the dependencies for admin HTTP handlers.
type Handlers struct {
	Storage       storage.Storage
	Broker        TokenBroker
	Secrets       SecretCache
	SecretBackend string
	StartTime     time.Time
}

// New creates a new instance of admin handlers. cache may be nil.
func New(store storage.Storage, b TokenBroker, cache SecretCache, backend string, startTime time.Time) *Handlers {
	return &Handlers{
		Storage:       store,
		Broker:        b,
		Secrets:       cache,
		SecretBackend: backend,
		StartTime:     startTime,
	}
}

// invalidateSecret forgets a cached value and the token derived from it.
func (h *Handlers) invalidateSecret(name string) {
	if h.Secrets != nil {
		h.Secrets.Invalidate(name)
	}
	if h.Broker != nil {
		h.Broker.Invalidate()
	}
}
