package entitlement

import "errors"

// ErrStoreUnavailable wraps document store failures.
var ErrStoreUnavailable = errors.New("entitlement: store unavailable")
