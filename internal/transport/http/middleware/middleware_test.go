package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name       string
		existingID string
		wantKept   bool
	}{
		{name: "generates new ID when none provided", existingID: "", wantKept: false},
		{name: "uses existing ID from header", existingID: "existing-request-id", wantKept: true},
		{name: "replaces ID with spaces", existingID: "bad id", wantKept: false},
		{name: "replaces oversized ID", existingID: strings.Repeat("a", 65), wantKept: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var capturedID string
			handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				capturedID = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.existingID != "" {
				req.Header.Set(RequestIDHeader, tt.existingID)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			respID := rec.Header().Get(RequestIDHeader)
			assert.NotEmpty(t, respID)
			assert.Equal(t, respID, capturedID)
			if tt.wantKept {
				assert.Equal(t, tt.existingID, respID)
			} else {
				assert.NotEqual(t, tt.existingID, respID)
			}
		})
	}
}

func TestGetRequestID_NoContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	assert.Empty(t, GetRequestID(req.Context()))
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantStatus int
		wantAllow  string
	}{
		{"wildcard", []string{"*"}, "https://any.example", http.MethodGet, http.StatusOK, "*"},
		{"listed origin", []string{"https://maps.example"}, "https://maps.example", http.MethodGet, http.StatusOK, "https://maps.example"},
		{"unlisted origin gets no header", []string{"https://maps.example"}, "https://evil.example", http.MethodGet, http.StatusOK, ""},
		{"unlisted preflight rejected", []string{"https://maps.example"}, "https://evil.example", http.MethodOptions, http.StatusForbidden, ""},
		{"listed preflight", []string{"https://maps.example"}, "https://maps.example", http.MethodOptions, http.StatusNoContent, "https://maps.example"},
		{"no origin (server to server)", []string{"https://maps.example"}, "", http.MethodGet, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/token", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			CORS(tt.allowed)(okHandler()).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantAllow, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestNoStore(t *testing.T) {
	rec := httptest.NewRecorder()
	NoStore(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := RequestID(RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.WriteHeader(http.StatusOK) // ignored: status already written
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/token", nil)
	req.Header.Set(RequestIDHeader, "rid-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "status=500")
	assert.Contains(t, out, "path=/api/token")
	assert.Contains(t, out, "request_id=rid-1")
}

func TestResponseWriterFlush(t *testing.T) {
	var logs bytes.Buffer
	handler := RequestLogger(slog.New(slog.NewTextHandler(&logs, nil)))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			f, ok := w.(http.Flusher)
			assert.True(t, ok)
			f.Flush()
		}),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.True(t, rec.Flushed)
}
