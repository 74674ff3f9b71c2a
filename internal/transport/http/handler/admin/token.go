package admin

import (
	"net/http"
	"time"

	"github.com/mandalnilabja/maptoken/internal/broker"
	"github.com/mandalnilabja/maptoken/internal/transport/http/handler/shared"
	"github.com/mandalnilabja/maptoken/internal/transport/http/middleware"
)

// RefreshResponse describes a forced refresh. The token itself is never returned.
type RefreshResponse struct {
	TokenType string    `json:"token_type"`
	ExpiresIn int64     `json:"expires_in"`
	IssuedAt  string    `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RefreshToken handles POST /api/admin/token/refresh.
func (h *Handlers) RefreshToken(w http.ResponseWriter, r *http.Request) {
	ctx := broker.WithRequestID(r.Context(), middleware.GetRequestID(r.Context()))

	tok, err := h.Broker.Refresh(ctx)
	if err != nil {
		shared.WriteJSONError(w, "Token refresh failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	shared.WriteJSON(w, RefreshResponse{
		TokenType: tok.TokenType,
		ExpiresIn: tok.ExpiresIn,
		IssuedAt:  tok.IssuedAt,
		ExpiresAt: tok.ExpiresAt,
	}, http.StatusOK)
}

// TokenStatus handles GET /api/admin/token.
func (h *Handlers) TokenStatus(w http.ResponseWriter, r *http.Request) {
	shared.WriteJSON(w, h.Broker.Status(), http.StatusOK)
}
