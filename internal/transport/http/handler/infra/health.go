package infra

import (
	"net/http"
	"time"

	"github.com/mandalnilabja/maptoken/internal/transport/http/handler/shared"
	"github.com/mandalnilabja/maptoken/internal/version"
)

// RootStatus returns JSON status and version information at /.
func (h *Handlers) RootStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		shared.WriteJSONError(w, "not found", http.StatusNotFound)
		return
	}

	response := map[string]any{
		"name":    "maptoken",
		"version": version.Version,
		"status":  "running",
		"token":   "/api/token",
		"admin":   "/api/admin",
	}
	if h.TilesEnabled {
		response["tiles"] = "/tiles/"
	}
	shared.WriteJSON(w, response, http.StatusOK)
}

// HealthCheck handler returns the application health status.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	shared.WriteJSON(w, map[string]any{
		"status":      "active",
		"app":         "maptoken",
		"uptime_secs": int64(time.Since(h.StartTime).Seconds()),
	}, http.StatusOK)
}
