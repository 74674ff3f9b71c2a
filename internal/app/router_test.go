package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/mandalnilabja/maptoken/internal/broker"
	"github.com/mandalnilabja/maptoken/internal/oauth"
	"github.com/mandalnilabja/maptoken/internal/storage"
	"github.com/mandalnilabja/maptoken/internal/storage/encryption"
	"github.com/mandalnilabja/maptoken/internal/storage/sqlite"
	"github.com/mandalnilabja/maptoken/internal/transport/http/handler"
	"github.com/mandalnilabja/maptoken/internal/transport/http/middleware/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminPassword = "adminpass123"

type stubBroker struct{}

func (stubBroker) Token(ctx context.Context) (*oauth.Token, error) {
	return &oauth.Token{AccessToken: "tok", TokenType: "Bearer", ExpiresIn: 60, ExpiresAt: time.Now().Add(time.Minute)}, nil
}
func (stubBroker) Refresh(ctx context.Context) (*oauth.Token, error) { return stubBroker{}.Token(ctx) }
func (stubBroker) Invalidate()                                       {}
func (stubBroker) Status() broker.Status                             { return broker.Status{} }

func newTestRouter(t *testing.T, opts RouterOptions) http.Handler {
	t.Helper()

	enc, err := encryption.NewWithKey(make([]byte, 32))
	require.NoError(t, err)
	store, err := sqlite.NewWithEncryptor(filepath.Join(t.TempDir(), "router.db"), enc)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	hash, err := storage.HashPassword(adminPassword, &storage.Argon2Params{
		Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})
	require.NoError(t, err)
	require.NoError(t, store.SetAdminPasswordHash(hash))

	repo := handler.NewRepo(handler.Deps{
		Storage:       store,
		Broker:        stubBroker{},
		SecretBackend: "sqlite",
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	opts.Passwords = store
	if opts.AllowedOrigins == nil {
		opts.AllowedOrigins = []string{"*"}
	}
	return NewRouter(repo, &opts)
}

func request(h http.Handler, method, path string, admin bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "192.0.2.1:1234"
	if admin {
		req.Header.Set("Authorization", "Bearer "+adminPassword)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoutes(t *testing.T) {
	h := newTestRouter(t, RouterOptions{ManageSecrets: true})

	tests := []struct {
		name       string
		method     string
		path       string
		admin      bool
		wantStatus int
	}{
		{"token", http.MethodGet, "/api/token", false, http.StatusOK},
		{"health", http.MethodGet, "/api/health", false, http.StatusOK},
		{"root", http.MethodGet, "/", false, http.StatusOK},
		{"tiles disabled", http.MethodGet, "/tiles/1/2/3.png", false, http.StatusNotFound},
		{"token wrong method", http.MethodPost, "/api/token", false, http.StatusMethodNotAllowed},
		{"admin requires auth", http.MethodGet, "/api/admin/info", false, http.StatusUnauthorized},
		{"admin info", http.MethodGet, "/api/admin/info", true, http.StatusOK},
		{"admin secrets", http.MethodGet, "/api/admin/secrets", true, http.StatusOK},
		{"admin issuances", http.MethodGet, "/api/admin/issuances", true, http.StatusOK},
		{"admin refresh", http.MethodPost, "/api/admin/token/refresh", true, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := request(h, tt.method, tt.path, tt.admin)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}
}

func TestTokenRouteIsUncacheable(t *testing.T) {
	h := newTestRouter(t, RouterOptions{})
	rec := request(h, http.MethodGet, "/api/token", false)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSecretRoutesHiddenForRemoteBackends(t *testing.T) {
	h := newTestRouter(t, RouterOptions{ManageSecrets: false})
	rec := request(h, http.MethodGet, "/api/admin/secrets", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPublicRoutesAreRateLimited(t *testing.T) {
	limiter := ratelimit.New(2)
	t.Cleanup(limiter.Close)

	h := newTestRouter(t, RouterOptions{Limiter: limiter})

	assert.Equal(t, http.StatusOK, request(h, http.MethodGet, "/api/token", false).Code)
	assert.Equal(t, http.StatusOK, request(h, http.MethodGet, "/api/token", false).Code)
	assert.Equal(t, http.StatusTooManyRequests, request(h, http.MethodGet, "/api/token", false).Code)

	// Health and admin routes are not limited.
	assert.Equal(t, http.StatusOK, request(h, http.MethodGet, "/api/health", false).Code)
	assert.Equal(t, http.StatusOK, request(h, http.MethodGet, "/api/admin/health", true).Code)
}
