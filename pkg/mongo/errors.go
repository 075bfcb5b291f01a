package mongo

import "errors"

var (
	// ErrFailedToConnect indicates all connection attempts failed.
	ErrFailedToConnect = errors.New("mongo: failed to connect")

	// ErrHealthcheckFailed indicates the healthcheck ping failed.
	ErrHealthcheckFailed = errors.New("mongo: healthcheck failed")
)
