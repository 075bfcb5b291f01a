package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/biogen/pkg/docstore"
	"github.com/dmitrymomot/biogen/svc/billing"
)

// Config configures the verifier's caching behavior.
type Config struct {
	// CacheTTL bounds how long a verification result, positive or negative,
	// is trusted before the payment provider is consulted again.
	CacheTTL time.Duration `env:"ENTITLEMENT_CACHE_TTL" envDefault:"10m"`
}

// Verifier answers the single question "is this user entitled to Pro right
// now". It caches provider verdicts in the status document and re-verifies
// lazily once the verdict goes stale. All failure modes deny access.
type Verifier struct {
	store    *Store
	provider billing.TransactionVerifier
	expected billing.ExpectedCharge
	cfg      Config
	log      *slog.Logger
	group    singleflight.Group
	now      func() time.Time
}

// NewVerifier creates an entitlement verifier.
func NewVerifier(store *Store, provider billing.TransactionVerifier, expected billing.ExpectedCharge, cfg Config, log *slog.Logger) *Verifier {
	if store == nil {
		panic("entitlement: store is required")
	}
	if provider == nil {
		panic("entitlement: transaction verifier is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Verifier{
		store:    store,
		provider: provider,
		expected: expected,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// IsEntitled reports whether the user currently holds a valid Pro
// entitlement. It never returns an error: any doubt resolves to false.
//
// The decision walks the status document in order:
//
//  1. no document: deny without touching the provider
//  2. verified within the TTL: trust the stored flag
//  3. verification failed within the TTL: deny from cache
//  4. no transaction recorded: trust the stored flag (manual grants)
//  5. stale: re-verify the recorded transaction with the provider
//
// A revoked entitlement with a transaction on file goes through step 5
// like any other stale document: if the provider now confirms the payment,
// access comes back without a new webhook.
//
// Concurrent checks for the same user share one provider call.
func (v *Verifier) IsEntitled(ctx context.Context, userID string) bool {
	if userID == "" {
		return false
	}

	status, err := v.store.Get(ctx, userID)
	if errors.Is(err, docstore.ErrNotFound) {
		return false
	}
	if err != nil {
		v.log.ErrorContext(ctx, "entitlement lookup failed",
			slog.String("user_id", userID), slog.Any("error", err))
		return false
	}

	now := v.now().UTC()
	if status.LastVerifiedAt != nil && now.Sub(*status.LastVerifiedAt) < v.cfg.CacheTTL {
		return status.IsPro
	}
	if status.LastVerificationFailedAt != nil && now.Sub(*status.LastVerificationFailedAt) < v.cfg.CacheTTL {
		return false
	}

	// No transaction on file means any grant was manual: there is nothing
	// to verify with the provider, so the stored flag stands until an admin
	// changes it.
	if status.FwTransactionID == "" {
		return status.IsPro
	}

	result, err, _ := v.group.Do(userID, func() (any, error) {
		return v.reverify(ctx, userID, status), nil
	})
	if err != nil {
		return false
	}
	entitled, _ := result.(bool)
	return entitled
}

// reverify consults the provider for a stale entitlement and updates the
// status document with the verdict.
func (v *Verifier) reverify(ctx context.Context, userID string, status *Status) bool {
	now := v.now().UTC()

	tx, err := v.provider.VerifyTransaction(ctx, status.FwTransactionID)
	if err != nil {
		if errors.Is(err, billing.ErrTransactionNotSuccessful) {
			// The provider answered: the recorded transaction does not back
			// a Pro entitlement anymore.
			v.log.WarnContext(ctx, "pro entitlement revoked",
				slog.String("user_id", userID),
				slog.String("transaction_id", status.FwTransactionID),
				slog.Any("error", err))
			v.markFailed(ctx, userID, now, true)
			return false
		}
		// The provider gave no verdict. Deny for now, but do not revoke:
		// the entitlement may still be valid once the provider recovers.
		v.log.WarnContext(ctx, "entitlement re-verification unavailable",
			slog.String("user_id", userID), slog.Any("error", err))
		v.markFailed(ctx, userID, now, false)
		return false
	}

	if err := v.expected.Confirm(tx); err != nil {
		// Authoritative answer: the recorded transaction no longer backs a
		// Pro entitlement.
		v.log.WarnContext(ctx, "pro entitlement revoked",
			slog.String("user_id", userID),
			slog.String("transaction_id", status.FwTransactionID),
			slog.Any("error", err))
		v.markFailed(ctx, userID, now, true)
		return false
	}

	v.markVerified(ctx, userID, now)
	return true
}

func (v *Verifier) markVerified(ctx context.Context, userID string, now time.Time) {
	if err := v.store.markVerified(ctx, userID, now); err != nil {
		v.log.ErrorContext(ctx, "failed to record verification",
			slog.String("user_id", userID), slog.Any("error", err))
	}
}

func (v *Verifier) markFailed(ctx context.Context, userID string, now time.Time, revoke bool) {
	if err := v.store.markVerificationFailed(ctx, userID, now, revoke); err != nil {
		v.log.ErrorContext(ctx, "failed to record verification failure",
			slog.String("user_id", userID), slog.Any("error", err))
	}
}
