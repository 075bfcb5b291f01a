package redis

import "errors"

var (
	// ErrFailedToParseConnString indicates an invalid Redis connection URL.
	ErrFailedToParseConnString = errors.New("redis: failed to parse connection string")

	// ErrRedisNotReady indicates all connection attempts failed.
	ErrRedisNotReady = errors.New("redis: server not ready")

	// ErrHealthcheckFailed indicates the healthcheck ping failed.
	ErrHealthcheckFailed = errors.New("redis: healthcheck failed")
)
