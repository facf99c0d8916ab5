// Package auth resolves opaque session tokens to user identities. The
// token format, issuance and expiry all belong to the session store;
// callers only learn whether a token currently maps to a user.
package auth

import (
	"context"
	"errors"
)

// ErrNoSession is returned when a token does not resolve to a user.
var ErrNoSession = errors.New("no session for token")

// CredentialStore is a read-only token lookup.
type CredentialStore interface {
	// Resolve returns the user id for token, or ErrNoSession.
	Resolve(ctx context.Context, token string) (string, error)
	Ping(ctx context.Context) error
}
