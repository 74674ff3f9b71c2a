package app

import (
	"log/slog"
	"net/http"

	"github.com/mandalnilabja/maptoken/internal/transport/http/handler"
	"github.com/mandalnilabja/maptoken/internal/transport/http/middleware"
	"github.com/mandalnilabja/maptoken/internal/transport/http/middleware/auth"
	"github.com/mandalnilabja/maptoken/internal/transport/http/middleware/ratelimit"
)

// RouterOptions configures the HTTP router behavior.
type RouterOptions struct {
	Logger         *slog.Logger
	Passwords      auth.PasswordStore
	AllowedOrigins []string
	// Limiter guards the public routes; nil disables rate limiting.
	Limiter    *ratelimit.Limiter
	TrustProxy bool
	// ManageSecrets exposes the secret routes (local secret store only).
	ManageSecrets bool
}

// NewRouter creates and configures the HTTP router with all application routes.
// Returns an http.Handler with middleware applied.
func NewRouter(repo *handler.Repo, opts *RouterOptions) http.Handler {
	mux := http.NewServeMux()

	public := func(h http.HandlerFunc) http.Handler {
		if opts.Limiter == nil {
			return h
		}
		return ratelimit.Middleware(opts.Limiter, opts.TrustProxy)(h)
	}

	// Public routes
	mux.HandleFunc("GET /api/health", repo.Infra.HealthCheck)
	mux.Handle("GET /api/token", middleware.NoStore(public(repo.Token.GetToken)))
	if repo.Tiles != nil {
		mux.Handle("GET /tiles/{path...}", public(repo.Tiles.ServeTile))
	}

	// Admin API routes (require admin auth)
	registerAdminRoutes(mux, repo, opts)

	mux.HandleFunc("GET /", repo.Infra.RootStatus)

	// Apply middleware chain (order: outer to inner)
	var h http.Handler = mux

	if opts.Logger != nil {
		h = middleware.RequestLogger(opts.Logger)(h)
	}

	h = middleware.RequestID(h)

	h = middleware.CORS(opts.AllowedOrigins)(h)

	return h
}

// registerAdminRoutes adds all admin API routes to the router.
func registerAdminRoutes(mux *http.ServeMux, repo *handler.Repo, opts *RouterOptions) {
	adminAuth := auth.AdminAuth(opts.Passwords)

	withAuth := func(h http.HandlerFunc) http.Handler {
		return middleware.NoStore(adminAuth(h))
	}

	// Secret management
	if opts.ManageSecrets {
		mux.Handle("GET /api/admin/secrets", withAuth(repo.Admin.ListSecrets))
		mux.Handle("PUT /api/admin/secrets/{name}", withAuth(repo.Admin.SetSecret))
		mux.Handle("DELETE /api/admin/secrets/{name}", withAuth(repo.Admin.DeleteSecret))
	}

	// Token
	mux.Handle("GET /api/admin/token", withAuth(repo.Admin.TokenStatus))
	mux.Handle("POST /api/admin/token/refresh", withAuth(repo.Admin.RefreshToken))

	// Issuance log
	mux.Handle("GET /api/admin/issuances", withAuth(repo.Admin.GetIssuances))
	mux.Handle("DELETE /api/admin/issuances", withAuth(repo.Admin.DeleteIssuances))

	// Password management
	mux.Handle("PUT /api/admin/password", withAuth(repo.Admin.ChangeAdminPassword))

	// System info
	mux.Handle("GET /api/admin/health", withAuth(repo.Admin.AdminHealth))
	mux.Handle("GET /api/admin/info", withAuth(repo.Admin.AdminInfo))
}
