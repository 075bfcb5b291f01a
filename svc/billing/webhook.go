package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// WebhookConfig configures inbound webhook authentication.
type WebhookConfig struct {
	// SecretKey signs the raw body with HMAC-SHA256.
	SecretKey string `env:"FLUTTERWAVE_SECRET_KEY,required"`
	// VerifHash is the static secret the provider echoes in the verif-hash
	// header. Optional second factor; checked only when configured.
	VerifHash string `env:"FLUTTERWAVE_WEBHOOK_HASH"`
	// SkewTolerance bounds how old (or future-dated) an event timestamp may
	// be before the delivery is rejected as a replay.
	SkewTolerance time.Duration `env:"WEBHOOK_SKEW_TOLERANCE" envDefault:"5m"`
}

// WebhookSignature carries the authentication material from request headers.
type WebhookSignature struct {
	HMAC      string // x-flutterwave-signature: hex HMAC-SHA256 of the raw body
	VerifHash string // verif-hash: static shared secret echo
}

// webhookEvent is the provider's payload shape. The raw body must be read
// before this is decoded: the signature covers the exact byte sequence.
type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		ID        json.Number `json:"id"`
		Status    string      `json:"status"`
		Amount    float64     `json:"amount"`
		Currency  string      `json:"currency"`
		CreatedAt string      `json:"created_at"`
		Meta      struct {
			ConsumerID string `json:"consumer_id"`
		} `json:"meta"`
	} `json:"data"`
}

// Service reconciles payment state: it initiates charges, confirms redirect
// callbacks, and processes provider webhooks.
type Service struct {
	provider     Provider
	entitlements EntitlementActivator
	ledger       *Ledger
	failures     *FailureLog
	expected     ExpectedCharge
	webhookCfg   WebhookConfig
	log          *slog.Logger
	now          func() time.Time
}

// NewService creates the billing service. All dependencies are required;
// construction panics on nil to fail fast at startup.
func NewService(provider Provider, entitlements EntitlementActivator, ledger *Ledger, failures *FailureLog, expected ExpectedCharge, webhookCfg WebhookConfig, log *slog.Logger) *Service {
	if provider == nil {
		panic("billing: provider is required")
	}
	if entitlements == nil {
		panic("billing: entitlement activator is required")
	}
	if ledger == nil || failures == nil {
		panic("billing: ledger and failure log are required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		provider:     provider,
		entitlements: entitlements,
		ledger:       ledger,
		failures:     failures,
		expected:     expected,
		webhookCfg:   webhookCfg,
		log:          log,
		now:          time.Now,
	}
}

// CreateCheckout initiates a Pro purchase for the authenticated user.
func (s *Service) CreateCheckout(ctx context.Context, userID, email string, req ChargeRequest) (*ChargeLink, error) {
	req.UserID = userID
	req.Email = email
	return s.provider.CreateCharge(ctx, req)
}

// ConfirmPayment verifies a transaction id from the client's redirect and
// activates Pro on success. The client only supplies the id; every monetary
// fact comes from the provider.
func (s *Service) ConfirmPayment(ctx context.Context, transactionID string) (string, error) {
	tx, err := s.provider.VerifyTransaction(ctx, transactionID)
	if err != nil {
		return "", err
	}
	if err := s.expected.Confirm(tx); err != nil {
		s.log.WarnContext(ctx, "payment confirmation mismatch",
			slog.String("transaction_id", transactionID), slog.Any("error", err))
		return "", err
	}

	userID := tx.Meta["consumer_id"]
	if userID == "" {
		return "", ErrMissingConsumerID
	}

	if err := s.entitlements.ActivatePro(ctx, userID, tx.ID); err != nil {
		return "", err
	}
	return userID, nil
}

// ProcessWebhook runs the webhook state machine:
//
//	received → authenticated → parsed → deduplicated → (verified → entitled) | rejected
//
// A nil return acknowledges the delivery (200). Typed errors tell the
// handler which rejection status to answer; anything else is a 500 so the
// provider retries.
func (s *Service) ProcessWebhook(ctx context.Context, rawBody []byte, sig WebhookSignature) error {
	now := s.now().UTC()

	// Missing secret makes authentication impossible: fail closed, never
	// accept an unauthenticated grant path.
	if s.webhookCfg.SecretKey == "" {
		return ErrWebhookNotConfigured
	}

	if s.webhookCfg.VerifHash != "" && sig.VerifHash != s.webhookCfg.VerifHash {
		s.failures.Record(ctx, "header-hash-mismatch", now)
		return ErrWebhookUnauthorized
	}

	mac := hmac.New(sha256.New, []byte(s.webhookCfg.SecretKey))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(sig.HMAC)) {
		s.failures.Record(ctx, "hmac-mismatch", now)
		return ErrWebhookUnauthorized
	}

	// Parse only after the signature over the raw bytes has been verified.
	var event webhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		s.failures.Record(ctx, "unparseable-payload", now)
		return fmt.Errorf("%w: %w", ErrWebhookMalformed, err)
	}

	transactionID := event.Data.ID.String()
	if transactionID == "" {
		s.failures.Record(ctx, "missing-transaction-id", now)
		return fmt.Errorf("%w: missing transaction id", ErrWebhookMalformed)
	}

	if event.Data.CreatedAt != "" {
		if ts, err := time.Parse(time.RFC3339, event.Data.CreatedAt); err == nil {
			if skew := now.Sub(ts.UTC()); skew > s.webhookCfg.SkewTolerance || skew < -s.webhookCfg.SkewTolerance {
				s.failures.Record(ctx, "stale-timestamp", now)
				return fmt.Errorf("%w: event timestamp outside tolerance", ErrWebhookMalformed)
			}
		}
	}

	// Delivery is at-least-once upstream: a transaction already in the
	// ledger is acknowledged without another provider call.
	seen, err := s.ledger.Seen(ctx, transactionID)
	if err != nil {
		s.failures.Record(ctx, "ledger-read-failed: "+err.Error(), now)
		return fmt.Errorf("billing: ledger lookup failed: %w", err)
	}
	if seen {
		s.log.InfoContext(ctx, "webhook already processed", slog.String("transaction_id", transactionID))
		return nil
	}

	switch event.Event {
	case "charge.completed", "transfer.completed":
	default:
		s.log.InfoContext(ctx, "ignoring webhook event", slog.String("event", event.Event))
		return nil
	}

	if event.Data.Status != "successful" {
		s.log.InfoContext(ctx, "webhook transaction not successful",
			slog.String("transaction_id", transactionID), slog.String("status", event.Data.Status))
		return nil
	}

	userID := event.Data.Meta.ConsumerID
	if userID == "" {
		s.failures.Record(ctx, "missing-consumer-id: "+transactionID, now)
		return fmt.Errorf("%w: %w", ErrWebhookMalformed, ErrMissingConsumerID)
	}

	// The webhook triggers the check but is never trusted for monetary
	// facts: re-verify with the provider and re-check amount and currency.
	tx, err := s.provider.VerifyTransaction(ctx, transactionID)
	if err != nil {
		if errors.Is(err, ErrTransactionNotSuccessful) {
			// The provider answered: this transaction grants nothing. A
			// retry cannot change the verdict, so reject rather than ask
			// the provider to redeliver.
			s.failures.Record(ctx, "verification-rejected: "+err.Error(), now)
			return fmt.Errorf("%w: %w", ErrWebhookMalformed, err)
		}
		s.failures.Record(ctx, "verification-call-failed: "+err.Error(), now)
		return fmt.Errorf("billing: webhook re-verification failed: %w", err)
	}
	if err := s.expected.Confirm(tx); err != nil {
		s.failures.Record(ctx, "verification-mismatch: "+err.Error(), now)
		return fmt.Errorf("%w: %w", ErrWebhookMalformed, err)
	}

	// Entitlement first, ledger second. A crash in between causes a safe
	// reprocess on retry; the reverse order could lose the grant forever.
	if err := s.entitlements.ActivatePro(ctx, userID, transactionID); err != nil {
		s.failures.Record(ctx, "entitlement-write-failed: "+err.Error(), now)
		return fmt.Errorf("billing: entitlement activation failed: %w", err)
	}
	if err := s.ledger.Record(ctx, transactionID, userID, now); err != nil {
		s.failures.Record(ctx, "ledger-write-failed: "+err.Error(), now)
		return fmt.Errorf("billing: ledger write failed: %w", err)
	}

	s.log.InfoContext(ctx, "pro entitlement granted",
		slog.String("user_id", userID), slog.String("transaction_id", transactionID))
	return nil
}
