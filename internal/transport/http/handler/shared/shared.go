// Package shared holds response helpers used by every handler package.
package shared

import (
	"encoding/json"
	"net/http"
	"time"
)

// DateLayout is the query parameter format for date filters.
const DateLayout = "2006-01-02"

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteJSONError writes a JSON error response.
func WriteJSONError(w http.ResponseWriter, message string, status int) {
	WriteJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    status,
		},
	}, status)
}

// ParseDate parses a YYYY-MM-DD query value as midnight UTC.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, value, time.UTC)
}
