package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/biogen/pkg/docstore"
)

// Status is the per-user entitlement document. Field names match the wire
// and storage representation; optional timestamps are pointers so absent
// fields stay absent in merge writes.
type Status struct {
	IsPro                    bool       `bson:"isPro" json:"isPro"`
	FwTransactionID          string     `bson:"fwTransactionId,omitempty" json:"fwTransactionId,omitempty"`
	LastVerifiedAt           *time.Time `bson:"lastVerifiedAt,omitempty" json:"lastVerifiedAt,omitempty"`
	LastVerificationFailedAt *time.Time `bson:"lastVerificationFailedAt,omitempty" json:"lastVerificationFailedAt,omitempty"`
	ProActivatedAt           *time.Time `bson:"proActivatedAt,omitempty" json:"proActivatedAt,omitempty"`
	RevokedAt                *time.Time `bson:"revokedAt,omitempty" json:"revokedAt,omitempty"`
	AdminModifiedAt          *time.Time `bson:"adminModifiedAt,omitempty" json:"adminModifiedAt,omitempty"`
}

const statusCollection = "entitlements"

func statusPath(userID string) string {
	return statusCollection + "/" + userID
}

// Store persists entitlement status documents. All writes are merge-patches:
// the verifier and the payment processor touch disjoint fields of the same
// document, and neither may clobber the other's state.
type Store struct {
	store docstore.Store
	log   *slog.Logger
	now   func() time.Time
}

// NewStore creates an entitlement store over the document store.
func NewStore(store docstore.Store, log *slog.Logger) *Store {
	if store == nil {
		panic("entitlement: document store is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{store: store, log: log, now: time.Now}
}

// Get loads a user's entitlement status. Returns docstore.ErrNotFound for
// users with no entitlement document.
func (s *Store) Get(ctx context.Context, userID string) (*Status, error) {
	var status Status
	if err := s.store.Get(ctx, statusPath(userID), &status); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return &status, nil
}

// ActivatePro grants the Pro entitlement after a verified payment. It
// implements the billing activator contract. proActivatedAt is written only
// on the first grant; reactivation after a revocation keeps the original
// activation time.
func (s *Store) ActivatePro(ctx context.Context, userID, transactionID string) error {
	now := s.now().UTC()
	fields := map[string]any{
		"isPro":           true,
		"fwTransactionId": transactionID,
		"lastVerifiedAt":  now,
		"revokedAt":       nil,
	}

	existing, err := s.Get(ctx, userID)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		fields["proActivatedAt"] = now
	case err != nil:
		return err
	case existing.ProActivatedAt == nil:
		fields["proActivatedAt"] = now
	}

	if err := s.store.Set(ctx, statusPath(userID), fields, true); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	s.log.InfoContext(ctx, "pro entitlement activated",
		slog.String("user_id", userID), slog.String("transaction_id", transactionID))
	return nil
}

// SetPro applies a manual entitlement override from the admin surface.
func (s *Store) SetPro(ctx context.Context, userID string, isPro bool) error {
	now := s.now().UTC()
	fields := map[string]any{
		"isPro":           isPro,
		"adminModifiedAt": now,
	}
	if isPro {
		fields["lastVerifiedAt"] = now
		fields["revokedAt"] = nil
	} else {
		fields["revokedAt"] = now
	}

	if err := s.store.Set(ctx, statusPath(userID), fields, true); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// CountPro returns the number of users currently holding Pro.
func (s *Store) CountPro(ctx context.Context) (int64, error) {
	n, err := s.store.Count(ctx, statusCollection, map[string]any{"isPro": true})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return n, nil
}

// markVerified records a positive provider verdict: the transaction on file
// backs a Pro entitlement, so isPro is (re)asserted and the cache TTL
// restarts. A previously revoked document comes back from here once the
// provider confirms the payment again.
func (s *Store) markVerified(ctx context.Context, userID string, now time.Time) error {
	return s.store.Set(ctx, statusPath(userID), map[string]any{
		"isPro":          true,
		"lastVerifiedAt": now,
		"revokedAt":      nil,
	}, true)
}

// markVerificationFailed records a failed re-verification. With revoke=true
// the entitlement is also withdrawn: the provider answered authoritatively
// and the transaction no longer qualifies.
func (s *Store) markVerificationFailed(ctx context.Context, userID string, now time.Time, revoke bool) error {
	fields := map[string]any{
		"lastVerificationFailedAt": now,
	}
	if revoke {
		fields["isPro"] = false
		fields["revokedAt"] = now
	}
	return s.store.Set(ctx, statusPath(userID), fields, true)
}
