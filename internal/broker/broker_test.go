package broker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mandalnilabja/maptoken/internal/oauth"
	"github.com/mandalnilabja/maptoken/internal/storage/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeExchanger struct {
	calls    atomic.Int32
	lifetime time.Duration
	delay    time.Duration
	now      func() time.Time

	mu   sync.Mutex
	errs []error // consumed in order; nil entries succeed
}

func (f *fakeExchanger) Exchange(ctx context.Context) (*oauth.Token, error) {
	n := f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	now := f.now()
	return &oauth.Token{
		AccessToken: "tok-" + string(rune('a'+n-1)),
		TokenType:   "Bearer",
		ExpiresAt:   now.Add(f.lifetime),
	}, nil
}

type memRecorder struct {
	mu      sync.Mutex
	entries []*models.Issuance
}

func (r *memRecorder) LogIssuance(e *models.Issuance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *memRecorder) snapshot() []*models.Issuance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.Issuance(nil), r.entries...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBroker(t *testing.T, ex *fakeExchanger, cfg Config) *Broker {
	t.Helper()
	if ex.now == nil {
		ex.now = time.Now
	}
	cfg.Logger = quietLogger()
	b, err := New(ex, cfg)
	require.NoError(t, err)
	b.now = ex.now
	t.Cleanup(b.Close)
	return b
}

func TestTokenIsCached(t *testing.T) {
	ex := &fakeExchanger{lifetime: 5 * time.Minute}
	b := newTestBroker(t, ex, Config{Margin: 30 * time.Second})

	first, err := b.Token(context.Background())
	require.NoError(t, err)
	second, err := b.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.AccessToken, second.AccessToken)
	assert.EqualValues(t, 1, ex.calls.Load())
	assert.InDelta(t, 300, first.ExpiresIn, 1)
}

func TestTokenRefreshedInsideMargin(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	ex := &fakeExchanger{lifetime: 5 * time.Minute, now: clock.Now}
	b := newTestBroker(t, ex, Config{Margin: 30 * time.Second})

	first, err := b.Token(context.Background())
	require.NoError(t, err)

	clock.Advance(4 * time.Minute)
	mid, err := b.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.AccessToken, mid.AccessToken)
	assert.EqualValues(t, 60, mid.ExpiresIn, "expires_in counts down")

	clock.Advance(40 * time.Second) // 20s left, inside the 30s margin
	next, err := b.Token(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.AccessToken, next.AccessToken)
	assert.EqualValues(t, 2, ex.calls.Load())
}

func TestConcurrentCallersShareExchange(t *testing.T) {
	ex := &fakeExchanger{lifetime: time.Minute, delay: 50 * time.Millisecond}
	b := newTestBroker(t, ex, Config{Margin: time.Second})

	var wg sync.WaitGroup
	tokens := make([]string, 20)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := b.Token(context.Background())
			if assert.NoError(t, err) {
				tokens[i] = tok.AccessToken
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, ex.calls.Load())
	for _, tok := range tokens {
		assert.Equal(t, tokens[0], tok)
	}
}

func TestExchangeErrorIsRecorded(t *testing.T) {
	boom := errors.New("vendor down")
	ex := &fakeExchanger{lifetime: time.Minute, errs: []error{boom}}
	rec := &memRecorder{}
	b := newTestBroker(t, ex, Config{Margin: time.Second, Recorder: rec})

	ctx := WithRequestID(context.Background(), "req-42")
	_, err := b.Token(ctx)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "vendor down", b.Status().LastError)

	tok, err := b.Token(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, tok.AccessToken)

	entries := rec.snapshot()
	require.Len(t, entries, 2)
	assert.False(t, entries[0].Success)
	assert.Equal(t, "vendor down", entries[0].ErrorMessage)
	assert.Equal(t, "req-42", entries[0].RequestID)
	assert.Equal(t, models.SourceRequest, entries[0].Source)
	assert.True(t, entries[1].Success)
	require.NotNil(t, entries[1].ExpiresAt)

	st := b.Status()
	assert.True(t, st.HasToken)
	assert.Empty(t, st.LastError)
	assert.NotNil(t, st.LastRefresh)
}

func TestRefreshAndInvalidate(t *testing.T) {
	ex := &fakeExchanger{lifetime: time.Hour}
	rec := &memRecorder{}
	b := newTestBroker(t, ex, Config{Margin: time.Second, Recorder: rec})
	ctx := context.Background()

	a, err := b.Token(ctx)
	require.NoError(t, err)

	r, err := b.Refresh(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, a.AccessToken, r.AccessToken)
	assert.Equal(t, models.SourceAdmin, rec.snapshot()[1].Source)

	cached, err := b.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, r.AccessToken, cached.AccessToken)

	b.Invalidate()
	_, err = b.Current()
	assert.ErrorIs(t, err, ErrNoToken)
	assert.False(t, b.Status().HasToken)

	_, err = b.Token(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, ex.calls.Load())
}

func TestCallerCancellationDoesNotAbortExchange(t *testing.T) {
	ex := &fakeExchanger{lifetime: time.Minute, delay: 100 * time.Millisecond}
	b := newTestBroker(t, ex, Config{Margin: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := b.Token(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Eventually(t, func() bool {
		_, err := b.Current()
		return err == nil
	}, time.Second, 10*time.Millisecond)

	_, err = b.Token(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, ex.calls.Load())
}

func TestFailedExchangeServesUnexpiredToken(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	ex := &fakeExchanger{lifetime: 5 * time.Minute, now: clock.Now}
	b := newTestBroker(t, ex, Config{Margin: 30 * time.Second})
	ctx := context.Background()

	first, err := b.Token(ctx)
	require.NoError(t, err)

	clock.Advance(4*time.Minute + 40*time.Second) // 20s left, inside the margin
	ex.mu.Lock()
	ex.errs = []error{errors.New("vendor down")}
	ex.mu.Unlock()

	tok, err := b.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.AccessToken, tok.AccessToken)
	assert.EqualValues(t, 20, tok.ExpiresIn)
	assert.EqualValues(t, 2, ex.calls.Load())
	assert.Equal(t, "vendor down", b.Status().LastError)

	// Once expired there is nothing left to fall back on.
	clock.Advance(25 * time.Second)
	ex.mu.Lock()
	ex.errs = []error{errors.New("vendor down")}
	ex.mu.Unlock()

	_, err = b.Token(ctx)
	assert.EqualError(t, err, "vendor down")
}

func TestFailedRefreshKeepsCachedToken(t *testing.T) {
	ex := &fakeExchanger{lifetime: time.Hour}
	b := newTestBroker(t, ex, Config{Margin: time.Second})
	ctx := context.Background()

	first, err := b.Token(ctx)
	require.NoError(t, err)

	ex.mu.Lock()
	ex.errs = []error{errors.New("vendor down")}
	ex.mu.Unlock()

	_, err = b.Refresh(ctx)
	require.Error(t, err)

	tok, err := b.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.AccessToken, tok.AccessToken)
	assert.EqualValues(t, 2, ex.calls.Load(), "cached token served without another exchange")
}

func TestInvalidateDiscardsInFlightExchange(t *testing.T) {
	ex := &fakeExchanger{lifetime: time.Hour, delay: 100 * time.Millisecond}
	b := newTestBroker(t, ex, Config{Margin: time.Second})
	ctx := context.Background()

	done := make(chan *oauth.Token, 1)
	go func() {
		tok, err := b.Token(ctx)
		assert.NoError(t, err)
		done <- tok
	}()

	require.Eventually(t, func() bool { return ex.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	b.Invalidate()

	stale := <-done
	require.NotNil(t, stale)
	_, err := b.Current()
	assert.ErrorIs(t, err, ErrNoToken, "token from the old credentials is not stored")

	fresh, err := b.Token(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, stale.AccessToken, fresh.AccessToken)
	assert.EqualValues(t, 2, ex.calls.Load())
}

func TestTokenSource(t *testing.T) {
	ex := &fakeExchanger{lifetime: time.Minute}
	b := newTestBroker(t, ex, Config{Margin: time.Second})

	tok, err := b.TokenSource(context.Background()).Token()
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tok.Type())
	assert.True(t, tok.Valid())
}

func TestRunRefreshesBeforeExpiry(t *testing.T) {
	ex := &fakeExchanger{lifetime: 1500 * time.Millisecond}
	rec := &memRecorder{}
	b := newTestBroker(t, ex, Config{Margin: time.Second, Recorder: rec})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	// Nothing happens until a token is issued on demand.
	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 0, ex.calls.Load())

	_, err := b.Token(context.Background())
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return ex.calls.Load() >= 2 }, 3*time.Second, 20*time.Millisecond)

	var sawRefresher bool
	for _, e := range rec.snapshot() {
		if e.Source == models.SourceRefresher {
			sawRefresher = true
		}
	}
	assert.True(t, sawRefresher)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunRetriesAfterFailure(t *testing.T) {
	ex := &fakeExchanger{lifetime: 3 * time.Second}
	b := newTestBroker(t, ex, Config{Margin: 2500 * time.Millisecond})

	_, err := b.Token(context.Background())
	require.NoError(t, err)

	ex.mu.Lock()
	ex.errs = []error{errors.New("transient")}
	ex.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	// 1 initial + 1 failed refresh + 1 retry
	assert.Eventually(t, func() bool { return ex.calls.Load() >= 3 }, 4*time.Second, 20*time.Millisecond)
	assert.Eventually(t, func() bool { return b.Status().LastError == "" }, time.Second, 20*time.Millisecond)
}

func TestNextRetry(t *testing.T) {
	assert.Equal(t, 2*time.Second, nextRetry(time.Second, 30*time.Second))
	assert.Equal(t, 30*time.Second, nextRetry(20*time.Second, 30*time.Second))
	assert.Equal(t, time.Second, nextRetry(time.Second, 0))
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestIDFrom(ctx))
	assert.Equal(t, "fallback", sourceFrom(ctx, "fallback"))

	ctx = WithSource(WithRequestID(ctx, "id-1"), models.SourceRefresher)
	assert.Equal(t, "id-1", RequestIDFrom(ctx))
	assert.Equal(t, models.SourceRefresher, sourceFrom(ctx, "fallback"))
}
