package handler

import (
	"log/slog"
	"time"

	"github.com/mandalnilabja/maptoken/internal/storage"
	"github.com/mandalnilabja/maptoken/internal/transport/http/handler/admin"
	"github.com/mandalnilabja/maptoken/internal/transport/http/handler/infra"
	"github.com/mandalnilabja/maptoken/internal/transport/http/handler/tiles"
	"github.com/mandalnilabja/maptoken/internal/transport/http/handler/token"
)

// Deps are the services the handlers are built on.
type Deps struct {
	Storage storage.Storage
	// Broker serves /api/token and backs the admin token routes.
	Broker interface {
		token.Source
		admin.TokenBroker
	}
	Secrets       admin.SecretCache
	SecretBackend string
	// Tiles is nil when no tile upstream is configured.
	Tiles  *tiles.Handlers
	Logger *slog.Logger
}

// Repo composes all domain-specific handlers.
type Repo struct {
	Token *token.Handlers
	Tiles *tiles.Handlers
	Admin *admin.Handlers
	Infra *infra.Handlers
}

// NewRepo creates a new instance of the composed handler repository.
func NewRepo(deps Deps) *Repo {
	startTime := time.Now()
	return &Repo{
		Token: token.New(deps.Broker, deps.Logger),
		Tiles: deps.Tiles,
		Admin: admin.New(deps.Storage, deps.Broker, deps.Secrets, deps.SecretBackend, startTime),
		Infra: infra.New(startTime, deps.Tiles != nil),
	}
}
