// Package correlation mints, parses and carries the per-request correlation
// token that ties one request's log lines together across services.
package correlation

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const (
	// Header is read on the way in and always set on the way out.
	Header = "Correlation-Token"

	// ItemKey is the field name downstream handlers and log records use for the token.
	ItemKey = "correlationToken"
)

// Token is the string form of a UUID.
type Token string

func (t Token) String() string { return string(t) }

// New mints a random token.
func New() Token {
	return Token(uuid.NewString())
}

// Parse accepts s when it is any UUID form uuid.Parse understands
// (canonical, braced, urn:uuid:, or 32 hex digits). The token keeps the
// caller's spelling so it can be echoed back byte for byte.
func Parse(s string) (Token, bool) {
	if s == "" || strings.TrimSpace(s) != s {
		return "", false
	}
	if _, err := uuid.Parse(s); err != nil {
		return "", false
	}
	return Token(s), true
}

// FromHeader returns the first Correlation-Token value when it is well formed.
func FromHeader(h http.Header) (Token, bool) {
	vals := h.Values(Header)
	if len(vals) == 0 {
		return "", false
	}
	return Parse(vals[0])
}

// Resolve returns the inbound token or a freshly minted one.
// minted reports which of the two happened.
func Resolve(h http.Header) (t Token, minted bool) {
	if t, ok := FromHeader(h); ok {
		return t, false
	}
	return New(), true
}

type ctxKey struct{}

// WithToken attaches t to ctx. Empty tokens are ignored.
func WithToken(ctx context.Context, t Token) context.Context {
	if t == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, t)
}

// FromContext gets the token from ctx, or "" if none.
func FromContext(ctx context.Context) Token {
	if v := ctx.Value(ctxKey{}); v != nil {
		if t, ok := v.(Token); ok {
			return t
		}
	}
	return ""
}
