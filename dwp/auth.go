package dwp

import (
	"context"
	"errors"
	"slices"
)

// Identity is an authenticated caller.
type Identity struct {
	Subject string   `json:"subject"`
	Scopes  []string `json:"scopes,omitempty"`
}

// HasScope reports whether the identity holds scope. ScopeAll grants
// everything.
func (id *Identity) HasScope(scope string) bool {
	return slices.Contains(id.Scopes, ScopeAll) || slices.Contains(id.Scopes, scope)
}

// Authenticator turns a token into an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Identity, error)
}

var (
	ErrUnauthorized = errors.New("dwp: unauthorized")
	ErrForbidden    = errors.New("dwp: forbidden")
)

// ── API keys ────────────────────────────────────────

// APIKeyEntry maps a token to an identity.
type APIKeyEntry struct {
	Token    string
	Identity Identity
}

// APIKeyAuthenticator validates tokens against a fixed set of keys.
type APIKeyAuthenticator struct {
	keys map[string]Identity
}

func NewAPIKeyAuthenticator(entries ...APIKeyEntry) *APIKeyAuthenticator {
	keys := make(map[string]Identity, len(entries))
	for _, e := range entries {
		keys[e.Token] = e.Identity
	}
	return &APIKeyAuthenticator{keys: keys}
}

func (a *APIKeyAuthenticator) Authenticate(_ context.Context, token string) (*Identity, error) {
	id, ok := a.keys[token]
	if !ok || token == "" {
		return nil, ErrUnauthorized
	}
	return &id, nil
}

// NoopAuthenticator accepts any token with every scope. Development only.
type NoopAuthenticator struct{}

func (NoopAuthenticator) Authenticate(context.Context, string) (*Identity, error) {
	return &Identity{Subject: "anonymous", Scopes: []string{ScopeAll}}, nil
}

// ── Scopes ──────────────────────────────────────────

const (
	ScopeJobRead   = "job:read"
	ScopeJobWrite  = "job:write"
	ScopeJobClaim  = "job:claim"
	ScopeSubscribe = "subscribe"
	ScopeStatsRead = "stats:read"
	ScopeAdmin     = "admin"
	ScopeAll       = "*"
)

// HelperScopes is what a remote helper needs: read jobs, claim them, and
// receive announcements.
var HelperScopes = []string{ScopeJobRead, ScopeJobClaim, ScopeSubscribe}

// RequiredScope returns the scope a method needs, or "" for none.
func RequiredScope(method string) string {
	switch method {
	case MethodAuth:
		return ""
	case MethodJobGet, MethodJobListOpen:
		return ScopeJobRead
	case MethodJobCreate:
		return ScopeJobWrite
	case MethodJobClaim:
		return ScopeJobClaim
	case MethodSubscribe, MethodUnsubscribe, MethodAck:
		return ScopeSubscribe
	case MethodStats:
		return ScopeStatsRead
	default:
		return ScopeAdmin
	}
}
