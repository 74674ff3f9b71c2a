// Package tiles forwards map tile requests upstream with the bearer token
// attached server-side, so browsers never see vendor credentials.
package tiles

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"path"
	"strings"

	"github.com/mandalnilabja/maptoken/internal/transport/http/handler/shared"
	"github.com/mandalnilabja/maptoken/internal/transport/http/middleware"
	"golang.org/x/oauth2"
)

var errNoToken = errors.New("no upstream token")

// Handlers holds the tile reverse proxy.
type Handlers struct {
	Upstream *url.URL
	Logger   *slog.Logger
	proxy    *httputil.ReverseProxy
}

// New builds a proxy to upstream. Tokens come from source; base is the
// outbound transport (http.DefaultTransport when nil).
func New(upstream string, source oauth2.TokenSource, base http.RoundTripper, logger *slog.Logger) (*Handlers, error) {
	target, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("parse tile upstream: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handlers{Upstream: target, Logger: logger}
	h.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = "/" + pr.In.PathValue("path")
			pr.Out.URL.RawPath = ""
			pr.SetURL(target)
			pr.SetXForwarded()
			// Callers must not pick the credential used upstream.
			pr.Out.Header.Del("Authorization")
			pr.Out.Header.Del("Cookie")
		},
		Transport: &oauth2.Transport{
			Source: wrapSource(source),
			Base:   base,
		},
		ErrorHandler: h.writeError,
	}
	return h, nil
}

// ServeTile handles GET /tiles/{path...}.
func (h *Handlers) ServeTile(w http.ResponseWriter, r *http.Request) {
	if !validTilePath(r.PathValue("path")) {
		shared.WriteJSONError(w, "invalid tile path", http.StatusBadRequest)
		return
	}
	h.proxy.ServeHTTP(w, r)
}

// validTilePath rejects empty paths and any dot segments, including ones
// decoded from %2F, so requests stay under the upstream prefix.
func validTilePath(p string) bool {
	if p == "" || strings.ContainsRune(p, '\\') {
		return false
	}
	return path.Clean("/"+p) == "/"+p
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetRequestID(r.Context())
	if errors.Is(err, errNoToken) {
		h.Logger.Error("tile request failed", "error", err, "request_id", requestID)
		shared.WriteJSONError(w, "failed to obtain token", http.StatusInternalServerError)
		return
	}
	h.Logger.Warn("tile upstream error", "error", err, "request_id", requestID)
	shared.WriteJSONError(w, "tile upstream unavailable", http.StatusBadGateway)
}

type sourceFunc func() (*oauth2.Token, error)

func (f sourceFunc) Token() (*oauth2.Token, error) { return f() }

// wrapSource tags token failures so they can be told apart from upstream failures.
func wrapSource(src oauth2.TokenSource) oauth2.TokenSource {
	return sourceFunc(func() (*oauth2.Token, error) {
		tok, err := src.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errNoToken, err)
		}
		return tok, nil
	})
}
