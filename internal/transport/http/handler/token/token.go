// Package token serves short-lived vendor tokens to browser map clients.
package token

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mandalnilabja/maptoken/internal/broker"
	"github.com/mandalnilabja/maptoken/internal/oauth"
	"github.com/mandalnilabja/maptoken/internal/transport/http/handler/shared"
	"github.com/mandalnilabja/maptoken/internal/transport/http/middleware"
)

// Source hands out a token valid beyond the refresh margin. *broker.Broker satisfies it.
type Source interface {
	Token(ctx context.Context) (*oauth.Token, error)
}

// Handlers holds the dependencies for the token endpoint.
type Handlers struct {
	Source Source
	Logger *slog.Logger
}

// New creates token handlers.
func New(source Source, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{Source: source, Logger: logger}
}

// GetToken handles GET /api/token. Failures of any kind collapse to a
// generic 500; the cause only goes to the log.
func (h *Handlers) GetToken(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	ctx := broker.WithRequestID(r.Context(), requestID)

	tok, err := h.Source.Token(ctx)
	if err != nil {
		h.Logger.Error("token request failed", "error", err, "request_id", requestID)
		shared.WriteJSONError(w, "failed to obtain token", http.StatusInternalServerError)
		return
	}

	shared.WriteJSON(w, tok, http.StatusOK)
}
