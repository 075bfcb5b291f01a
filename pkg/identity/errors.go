package identity

import "errors"

var (
	// ErrUnauthorized is the single outcome for every credential failure:
	// missing, malformed, expired, or revoked. Provider detail is logged,
	// never returned.
	ErrUnauthorized = errors.New("identity: unauthorized")

	// ErrUserNotFound indicates the directory has no record for the uid.
	ErrUserNotFound = errors.New("identity: user not found")

	// ErrProviderUnavailable indicates the identity provider could not be
	// reached for a directory operation.
	ErrProviderUnavailable = errors.New("identity: provider unavailable")
)
