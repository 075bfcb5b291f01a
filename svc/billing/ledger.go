package billing

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrymomot/biogen/pkg/docstore"
)

// ProcessedWebhookRecord is the idempotency ledger entry for one transaction.
// Once it exists, any redelivery of the same transaction is a no-op.
type ProcessedWebhookRecord struct {
	TransactionID string    `bson:"transactionId" json:"transactionId"`
	UserID        string    `bson:"userId" json:"userId"`
	ProcessedAt   time.Time `bson:"processedAt" json:"processedAt"`
}

const ledgerCollection = "webhooks/processed"

// Ledger records processed webhook transaction ids.
type Ledger struct {
	store docstore.Store
}

// NewLedger creates an idempotency ledger over the document store.
func NewLedger(store docstore.Store) *Ledger {
	return &Ledger{store: store}
}

// Seen reports whether the transaction id has already been processed.
func (l *Ledger) Seen(ctx context.Context, transactionID string) (bool, error) {
	var rec ProcessedWebhookRecord
	err := l.store.Get(ctx, ledgerCollection+"/"+transactionID, &rec)
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Record closes the idempotency window for a transaction. Must be called
// only after the entitlement grant has been written: a crash between the two
// writes then causes a safe reprocess instead of a lost grant.
func (l *Ledger) Record(ctx context.Context, transactionID, userID string, now time.Time) error {
	return l.store.Set(ctx, ledgerCollection+"/"+transactionID, map[string]any{
		"transactionId": transactionID,
		"userId":        userID,
		"processedAt":   now,
	}, true)
}
