package secrets

import (
	"context"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Resolver caches secret values in front of a slower backend (SSM, database).
type Resolver struct {
	store Store
	cache *ristretto.Cache[string, string]
	ttl   time.Duration

	mu sync.Mutex
	// gen is bumped by Invalidate so a load racing with it is not cached.
	gen uint64
}

// NewResolver creates a resolver with the given TTL. A TTL <= 0 disables caching.
func NewResolver(store Store, ttl time.Duration) (*Resolver, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: 1e3,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Resolver{store: store, cache: cache, ttl: ttl}, nil
}

// GetSecret returns the cached value or loads it from the backend.
// Failures are not cached.
func (r *Resolver) GetSecret(ctx context.Context, name string) (string, error) {
	if r.ttl > 0 {
		if value, ok := r.cache.Get(name); ok {
			return value, nil
		}
	}

	r.mu.Lock()
	gen := r.gen
	r.mu.Unlock()

	value, err := r.store.GetSecret(ctx, name)
	if err != nil {
		return "", err
	}

	if r.ttl > 0 {
		r.mu.Lock()
		if gen == r.gen {
			r.cache.SetWithTTL(name, value, int64(len(value)), r.ttl)
			r.cache.Wait()
		}
		r.mu.Unlock()
	}
	return value, nil
}

// Invalidate removes a cached secret (call after the secret is updated).
func (r *Resolver) Invalidate(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.cache.Del(name)
}

// Close releases the cache's background goroutines.
func (r *Resolver) Close() {
	r.cache.Close()
}
