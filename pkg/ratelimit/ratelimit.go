// Package ratelimit implements fixed-window request throttling with two
// independent counters per request: a short, tight per-user window and a
// long, loose per-IP window. The per-user window throttles abusive single
// accounts; the per-IP window throttles multi-account abuse from one origin.
//
// Fixed windows are deliberately approximate (up to 2x burst at window
// boundaries). When the backing store is unavailable the limiter fails open:
// availability of the product is prioritized over strict abuse prevention.
package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Entry describes a counter increment with its window expiry.
type Entry struct {
	Key string
	TTL time.Duration
}

// KVStore is the counter backend. Increment-with-expiry must be atomic per
// key so a counter can never increment forever without expiring; atomicity
// across keys is not required.
type KVStore interface {
	// Get returns the current counter value, 0 if the key does not exist.
	Get(ctx context.Context, key string) (int64, error)

	// IncrementAndExpire increments each entry's counter and (re)sets its
	// expiry to the entry's TTL.
	IncrementAndExpire(ctx context.Context, entries ...Entry) error
}

// Config holds the two fixed-window thresholds.
type Config struct {
	UserMax    int           `env:"RATE_LIMIT_USER_MAX" envDefault:"15"`
	UserWindow time.Duration `env:"RATE_LIMIT_USER_WINDOW" envDefault:"60s"`
	IPMax      int           `env:"RATE_LIMIT_IP_MAX" envDefault:"150"`
	IPWindow   time.Duration `env:"RATE_LIMIT_IP_WINDOW" envDefault:"1h"`
}

// Limiter gates request volume per user and per IP.
type Limiter struct {
	store KVStore
	cfg   Config
	log   *slog.Logger
}

// New creates a Limiter. A nil store disables limiting (fail open) and is
// logged on every check so a misconfigured deployment is visible.
func New(store KVStore, cfg Config, log *slog.Logger) *Limiter {
	if log == nil {
		log = slog.Default()
	}
	return &Limiter{store: store, cfg: cfg, log: log}
}

// CheckAndConsume verifies both windows and consumes one unit from each.
// Counters are read first and the request denied before any increment, so a
// denied request does not extend the caller's lockout.
func (l *Limiter) CheckAndConsume(ctx context.Context, userID, ip string) error {
	if l.store == nil {
		l.log.WarnContext(ctx, "rate limiter store not configured, failing open")
		return nil
	}

	userKey := "rate_limit:user:" + userID
	ipKey := "rate_limit:ip:" + ip

	userCount, err := l.store.Get(ctx, userKey)
	if err != nil {
		l.log.WarnContext(ctx, "rate limiter store unavailable, failing open", slog.Any("error", err))
		return nil
	}
	ipCount, err := l.store.Get(ctx, ipKey)
	if err != nil {
		l.log.WarnContext(ctx, "rate limiter store unavailable, failing open", slog.Any("error", err))
		return nil
	}

	if userCount >= int64(l.cfg.UserMax) || ipCount >= int64(l.cfg.IPMax) {
		return ErrRateLimitExceeded
	}

	if err := l.store.IncrementAndExpire(ctx,
		Entry{Key: userKey, TTL: l.cfg.UserWindow},
		Entry{Key: ipKey, TTL: l.cfg.IPWindow},
	); err != nil {
		l.log.WarnContext(ctx, "rate limiter increment failed, failing open", slog.Any("error", err))
	}

	return nil
}
