package oauth

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

// Token is the payload handed to map clients. Every field is opaque vendor
// data except ExpiresIn, which is recomputed against the clock when served.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	IssuedAt    string    `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Remaining returns a copy with ExpiresIn set to the whole seconds left at now.
func (t *Token) Remaining(now time.Time) *Token {
	out := *t
	secs := math.Floor(t.ExpiresAt.Sub(now).Seconds())
	if secs < 0 {
		secs = 0
	}
	out.ExpiresIn = int64(secs)
	return &out
}

// ValidFor reports whether the token is still usable margin from now.
func (t *Token) ValidFor(now time.Time, margin time.Duration) bool {
	return t != nil && t.AccessToken != "" && now.Add(margin).Before(t.ExpiresAt)
}

// OAuth2 converts to an oauth2.Token for outbound transports. The bearer
// scheme is forced because some vendors report token_type "BearerToken".
func (t *Token) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken: t.AccessToken,
		TokenType:   "Bearer",
		Expiry:      t.ExpiresAt,
	}
}

// fromOAuth2 builds a Token from the library token, keeping the vendor's
// issued_at when present.
func fromOAuth2(tok *oauth2.Token, issued time.Time) (*Token, error) {
	if tok == nil || tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrExchange)
	}
	if tok.Expiry.IsZero() {
		return nil, fmt.Errorf("%w: token has no expiry", ErrExchange)
	}

	issuedAt := extraString(tok.Extra("issued_at"))
	if issuedAt == "" {
		issuedAt = strconv.FormatInt(issued.UnixMilli(), 10)
	}

	out := &Token{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		IssuedAt:    issuedAt,
		ExpiresAt:   tok.Expiry.UTC(),
	}
	return out.Remaining(issued), nil
}

// extraString renders a raw JSON field that may be a string or a number.
func extraString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}
