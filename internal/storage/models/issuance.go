package models

import "time"

// Issuance sources.
const (
	SourceRequest   = "request"   // exchanged on behalf of a /api/token caller
	SourceRefresher = "refresher" // proactive background refresh
	SourceAdmin     = "admin"     // forced via the admin API
)

// Issuance records one OAuth token exchange. The token itself is never stored.
type Issuance struct {
	ID           string     `json:"id"`
	RequestID    string     `json:"request_id,omitempty"`
	Source       string     `json:"source"`
	Success      bool       `json:"success"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	DurationMs   int64      `json:"duration_ms"`
	CreatedAt    time.Time  `json:"created_at"`
}

// IssuanceFilter contains parameters for filtering the issuance log.
type IssuanceFilter struct {
	Source    string
	Success   *bool
	StartDate *time.Time // inclusive
	EndDate   *time.Time // exclusive
	Limit     int
	Offset    int
}

// IssuanceStats summarizes the issuance log.
type IssuanceStats struct {
	Total        int64      `json:"total"`
	Failures     int64      `json:"failures"`
	AvgLatencyMs float64    `json:"avg_latency_ms"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
}
