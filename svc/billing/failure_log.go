package billing

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/biogen/pkg/docstore"
)

// WebhookFailure is an append-only diagnostic record for operator alerting.
// Nothing in the decision logic reads it.
type WebhookFailure struct {
	ID        string    `bson:"_id" json:"id"`
	Reason    string    `bson:"reason" json:"reason"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

const failureCollection = "alerts/webhook_failures"

// FailureLog records webhook processing failures for operator visibility.
// Writes are best-effort: a failed write must never mask the original error.
type FailureLog struct {
	store docstore.Store
	log   *slog.Logger
}

// NewFailureLog creates a failure log over the document store.
func NewFailureLog(store docstore.Store, log *slog.Logger) *FailureLog {
	if log == nil {
		log = slog.Default()
	}
	return &FailureLog{store: store, log: log}
}

// Record appends a failure entry. Errors are logged and swallowed.
func (f *FailureLog) Record(ctx context.Context, reason string, now time.Time) {
	id := uuid.NewString()
	err := f.store.Set(ctx, failureCollection+"/"+id, map[string]any{
		"reason":    reason,
		"createdAt": now,
	}, true)
	if err != nil {
		f.log.ErrorContext(ctx, "failed to record webhook failure",
			slog.String("reason", reason), slog.Any("error", err))
	}
}

// Recent returns up to limit failure entries, newest first.
func (f *FailureLog) Recent(ctx context.Context, limit int) ([]WebhookFailure, error) {
	docs, err := f.store.List(ctx, failureCollection, "createdAt", limit)
	if err != nil {
		return nil, err
	}

	failures := make([]WebhookFailure, 0, len(docs))
	for _, doc := range docs {
		entry := WebhookFailure{}
		if id, ok := doc["_id"].(string); ok {
			entry.ID = id
		}
		if reason, ok := doc["reason"].(string); ok {
			entry.Reason = reason
		}
		switch v := doc["createdAt"].(type) {
		case time.Time:
			entry.CreatedAt = v
		case string:
			entry.CreatedAt, _ = time.Parse(time.RFC3339Nano, v)
		}
		failures = append(failures, entry)
	}
	return failures, nil
}
