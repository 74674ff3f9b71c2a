// Package oauth exchanges long-lived client credentials for short-lived
// OAuth2 access tokens using the client credentials grant.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mandalnilabja/maptoken/internal/secrets"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var (
	// ErrExchange wraps every failure talking to the token endpoint.
	ErrExchange = errors.New("token exchange failed")
	// ErrCredentials wraps failures loading the client credentials.
	ErrCredentials = errors.New("client credentials unavailable")
)

// Config describes the token endpoint and where to find the credentials.
type Config struct {
	TokenURL         string
	Scopes           []string
	ClientIDName     string
	ClientSecretName string
	// AuthStyle defaults to auto-detection (HTTP Basic first, then form params).
	AuthStyle oauth2.AuthStyle
}

// Exchanger performs client credentials exchanges.
type Exchanger struct {
	cfg     Config
	secrets secrets.Store
	client  *http.Client
}

// Option configures an Exchanger.
type Option func(*Exchanger)

// WithHTTPClient sets the client used for the token request.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Exchanger) { e.client = c }
}

// NewExchanger creates an Exchanger reading credentials from store.
func NewExchanger(cfg Config, store secrets.Store, opts ...Option) *Exchanger {
	e := &Exchanger{
		cfg:     cfg,
		secrets: store,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Exchange loads the credentials and requests a fresh token.
func (e *Exchanger) Exchange(ctx context.Context) (*Token, error) {
	creds, err := secrets.ClientCredentials(ctx, e.secrets, e.cfg.ClientIDName, e.cfg.ClientSecretName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCredentials, err)
	}

	cc := &clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     e.cfg.TokenURL,
		Scopes:       e.cfg.Scopes,
		AuthStyle:    e.cfg.AuthStyle,
	}

	issued := time.Now()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.client)
	tok, err := cc.Token(ctx)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return nil, fmt.Errorf("%w: endpoint returned %s", ErrExchange, re.Response.Status)
		}
		return nil, fmt.Errorf("%w: %v", ErrExchange, err)
	}

	return fromOAuth2(tok, issued)
}
