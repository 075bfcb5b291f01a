// Package identity validates bearer credentials against the external
// identity provider and exposes the operator-facing user directory.
//
// Tokens are short-lived upstream, so every privileged request reverifies
// its token; there is no caching layer here. All provider failures are
// normalized to ErrUnauthorized before they reach a response: the client
// never learns whether a token was expired, malformed, or revoked.
package identity

import (
	"context"
	"time"
)

// Identity is the verified subject of a request.
type Identity struct {
	UserID string
	Email  string
}

// TokenVerifier validates a bearer token with the identity provider.
type TokenVerifier interface {
	// Verify returns the identity encoded in the token or ErrUnauthorized.
	Verify(ctx context.Context, idToken string) (Identity, error)
}

// User is a directory record owned by the identity provider. The core treats
// it as read-only except for the Disabled toggle.
type User struct {
	UID         string
	Email       string
	DisplayName string
	PhotoURL    string
	Disabled    bool
	CreatedAt   time.Time
	LastLoginAt time.Time
}

// Directory is the administrative surface of the identity provider.
type Directory interface {
	ListUsers(ctx context.Context, limit int) ([]User, error)
	GetUser(ctx context.Context, uid string) (User, error)
	SetDisabled(ctx context.Context, uid string, disabled bool) error
}
