package core

import "net/http"

// HTTPError represents an HTTP error with a status code and a stable machine
// code. The Key field is safe to show to clients; it never carries provider
// internals.
type HTTPError struct {
	Code int    // HTTP status code
	Key  string // Stable error code (e.g. "unauthorized", "pro_required")
}

// Error implements the error interface.
func (e HTTPError) Error() string {
	return e.Key
}

// Client errors used by the API surface. The taxonomy is deliberately small:
// every provider-facing failure is normalized to one of these before it
// crosses the response boundary.
var (
	ErrBadRequest      = HTTPError{Code: http.StatusBadRequest, Key: "bad_request"}
	ErrUnauthorized    = HTTPError{Code: http.StatusUnauthorized, Key: "unauthorized"}
	ErrForbidden       = HTTPError{Code: http.StatusForbidden, Key: "forbidden"}
	ErrProRequired     = HTTPError{Code: http.StatusForbidden, Key: "pro_required"}
	ErrNotFound        = HTTPError{Code: http.StatusNotFound, Key: "not_found"}
	ErrTooManyRequests = HTTPError{Code: http.StatusTooManyRequests, Key: "too_many_requests"}
)

var (
	ErrInternalServerError = HTTPError{Code: http.StatusInternalServerError, Key: "internal_server_error"}
	ErrServiceUnavailable  = HTTPError{Code: http.StatusServiceUnavailable, Key: "service_unavailable"}
)

// NewHTTPError creates a custom HTTP error with the given status code and key.
func NewHTTPError(code int, key string) HTTPError {
	return HTTPError{Code: code, Key: key}
}
