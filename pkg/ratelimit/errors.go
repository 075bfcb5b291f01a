package ratelimit

import "errors"

// ErrRateLimitExceeded indicates one of the fixed windows is exhausted.
// The error never reveals which window tripped or its threshold.
var ErrRateLimitExceeded = errors.New("ratelimit: rate limit exceeded")
