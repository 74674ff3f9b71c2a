// Package broker hands out short-lived OAuth tokens, exchanging new ones only
// when the cached token is within the refresh margin of its expiry.
package broker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/mandalnilabja/maptoken/internal/oauth"
	"github.com/mandalnilabja/maptoken/internal/storage/models"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	cacheKey = "token"
	flightID = "exchange"

	defaultExchangeTimeout = 30 * time.Second
)

// Exchanger obtains a fresh token from the vendor.
type Exchanger interface {
	Exchange(ctx context.Context) (*oauth.Token, error)
}

// IssuanceRecorder persists an audit entry per exchange. storage.Storage satisfies it.
type IssuanceRecorder interface {
	LogIssuance(entry *models.Issuance) error
}

// Config tunes a Broker.
type Config struct {
	// Margin is how long before expiry a token stops being handed out.
	Margin          time.Duration
	ExchangeTimeout time.Duration
	Recorder        IssuanceRecorder
	Logger          *slog.Logger
}

// Status is a token-free snapshot for the admin API.
type Status struct {
	HasToken    bool       `json:"has_token"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastRefresh *time.Time `json:"last_refresh,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// Broker is safe for concurrent use.
type Broker struct {
	exchanger Exchanger
	cfg       Config
	cache     *ristretto.Cache[string, *oauth.Token]
	group     singleflight.Group
	logger    *slog.Logger
	now       func() time.Time

	mu          sync.Mutex
	current     *oauth.Token
	lastRefresh time.Time
	lastErr     error
	// gen is bumped by Invalidate; exchanges started under an older gen are not stored.
	gen uint64

	// issued is signalled whenever a new token is stored.
	issued chan struct{}
}

// New creates a Broker around exchanger.
func New(exchanger Exchanger, cfg Config) (*Broker, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, *oauth.Token]{
		NumCounters: 100,
		MaxCost:     16,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	if cfg.ExchangeTimeout <= 0 {
		cfg.ExchangeTimeout = defaultExchangeTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Broker{
		exchanger: exchanger,
		cfg:       cfg,
		cache:     cache,
		logger:    logger,
		now:       time.Now,
		issued:    make(chan struct{}, 1),
	}, nil
}

// Close releases the cache.
func (b *Broker) Close() {
	b.cache.Close()
}

// Token returns a token valid for at least the refresh margin, exchanging a
// new one if needed. Concurrent callers share a single exchange.
func (b *Broker) Token(ctx context.Context) (*oauth.Token, error) {
	if tok, ok := b.cached(); ok {
		return tok.Remaining(b.now()), nil
	}
	tok, err := b.exchange(ctx, sourceFrom(ctx, models.SourceRequest))
	if err != nil {
		// Inside the margin the previous token is still usable until it expires.
		if prev, ok := b.unexpired(); ok {
			b.logger.Warn("serving previous token after failed exchange",
				"expires_at", prev.ExpiresAt, "error", err)
			return prev.Remaining(b.now()), nil
		}
		return nil, err
	}
	return tok.Remaining(b.now()), nil
}

// Refresh exchanges a new token regardless of the cached one. The cached
// token is only replaced once the exchange succeeds.
func (b *Broker) Refresh(ctx context.Context) (*oauth.Token, error) {
	tok, err := b.exchange(ctx, sourceFrom(ctx, models.SourceAdmin))
	if err != nil {
		return nil, err
	}
	return tok.Remaining(b.now()), nil
}

// Invalidate drops the cached token so the next Token call re-exchanges.
// Call it after the client credentials change.
func (b *Broker) Invalidate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gen++
	b.current = nil
	b.cache.Del(cacheKey)
	// Later callers must not join an exchange that used the old credentials.
	b.group.Forget(flightID)
}

// Status reports the broker state without exposing the token.
func (b *Broker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	var st Status
	if b.current != nil && b.now().Before(b.current.ExpiresAt) {
		st.HasToken = true
		exp := b.current.ExpiresAt
		st.ExpiresAt = &exp
	}
	if !b.lastRefresh.IsZero() {
		lr := b.lastRefresh
		st.LastRefresh = &lr
	}
	if b.lastErr != nil {
		st.LastError = b.lastErr.Error()
	}
	return st
}

// TokenSource adapts the broker for oauth2.Transport. ctx is used for every
// exchange the source triggers.
func (b *Broker) TokenSource(ctx context.Context) oauth2.TokenSource {
	return tokenSource{ctx: ctx, b: b}
}

type tokenSource struct {
	ctx context.Context
	b   *Broker
}

func (s tokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.b.Token(s.ctx)
	if err != nil {
		return nil, err
	}
	return tok.OAuth2(), nil
}

// cached returns the cached token if it is still valid beyond the margin.
func (b *Broker) cached() (*oauth.Token, bool) {
	tok, ok := b.cache.Get(cacheKey)
	if !ok || !tok.ValidFor(b.now(), b.cfg.Margin) {
		return nil, false
	}
	return tok, true
}

// exchange runs one shared exchange. The exchange is detached from the
// caller's cancellation so one impatient client cannot fail the others.
func (b *Broker) exchange(ctx context.Context, source string) (*oauth.Token, error) {
	requestID := RequestIDFrom(ctx)
	ch := b.group.DoChan(flightID, func() (any, error) {
		b.mu.Lock()
		gen := b.gen
		b.mu.Unlock()

		xctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.cfg.ExchangeTimeout)
		defer cancel()

		start := b.now()
		tok, err := b.exchanger.Exchange(xctx)
		b.record(source, requestID, start, tok, err)
		if err != nil {
			return nil, err
		}
		b.store(tok, gen)
		return tok, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*oauth.Token), nil
	}
}

// store caches tok unless Invalidate ran since the exchange started.
func (b *Broker) store(tok *oauth.Token, gen uint64) {
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.gen {
		b.logger.Info("discarding token exchanged before invalidation")
		return
	}
	b.current = tok
	b.lastRefresh = now
	b.lastErr = nil

	if ttl := tok.ExpiresAt.Sub(now) - b.cfg.Margin; ttl > 0 {
		b.cache.SetWithTTL(cacheKey, tok, 1, ttl)
		b.cache.Wait()
	} else {
		b.logger.Warn("token lifetime shorter than refresh margin",
			"expires_at", tok.ExpiresAt, "margin", b.cfg.Margin)
	}

	select {
	case b.issued <- struct{}{}:
	default:
	}
}

func (b *Broker) record(source, requestID string, start time.Time, tok *oauth.Token, err error) {
	elapsed := b.now().Sub(start)
	entry := &models.Issuance{
		RequestID:  requestID,
		Source:     source,
		Success:    err == nil,
		DurationMs: elapsed.Milliseconds(),
	}

	if err != nil {
		entry.ErrorMessage = err.Error()
		b.mu.Lock()
		b.lastErr = err
		b.mu.Unlock()
		b.logger.Error("token exchange failed", "source", source, "request_id", requestID, "error", err)
	} else {
		exp := tok.ExpiresAt
		entry.ExpiresAt = &exp
		b.logger.Info("token issued", "source", source, "request_id", requestID,
			"expires_at", exp, "duration_ms", entry.DurationMs)
	}

	if b.cfg.Recorder == nil {
		return
	}
	if rerr := b.cfg.Recorder.LogIssuance(entry); rerr != nil {
		b.logger.Warn("failed to record issuance", "error", rerr)
	}
}

// ErrNoToken is returned by Current when nothing has been issued yet.
var ErrNoToken = errors.New("no token issued")

// unexpired returns the current token if it has not expired yet, even
// inside the refresh margin.
func (b *Broker) unexpired() (*oauth.Token, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil || !b.now().Before(b.current.ExpiresAt) {
		return nil, false
	}
	return b.current, true
}

// Current returns the most recently issued token, even inside the margin.
func (b *Broker) Current() (*oauth.Token, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return nil, ErrNoToken
	}
	return b.current, nil
}
