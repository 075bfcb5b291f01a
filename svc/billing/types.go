package billing

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Transaction is the provider's view of a payment, returned by the
// verify-by-id endpoint. It is the only source of monetary facts: webhook
// payloads merely trigger a verification against it.
type Transaction struct {
	ID        string
	Status    string
	Amount    float64
	Currency  string
	Meta      map[string]string
	CreatedAt time.Time
}

// Successful reports whether the provider settled the transaction.
func (t *Transaction) Successful() bool {
	s := strings.ToLower(t.Status)
	return s == "successful" || s == "succeeded"
}

// TransactionVerifier is the narrow contract the entitlement verifier and
// the webhook processor share: re-check a transaction with the provider.
type TransactionVerifier interface {
	VerifyTransaction(ctx context.Context, id string) (*Transaction, error)
}

// Provider is the full payment provider capability.
type Provider interface {
	TransactionVerifier

	// CreateCharge starts a payment and returns the client's next action.
	CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeLink, error)
}

// ChargeRequest describes a Pro purchase to initiate.
type ChargeRequest struct {
	UserID      string
	Email       string
	PaymentType string // "card" or "ussd"
	Details     map[string]any
	RedirectURL string
}

// ChargeLink is the provider's instruction for completing a payment.
type ChargeLink struct {
	Reference  string
	NextAction map[string]any
}

// ExpectedCharge pins the price of Pro access. Every verification compares
// the provider-reported amount and currency against these values exactly; a
// correct status with a mismatched amount grants nothing.
type ExpectedCharge struct {
	Amount   float64 `env:"PAYMENT_AMOUNT" envDefault:"2.99"`
	Currency string  `env:"PAYMENT_CURRENCY" envDefault:"USD"`
}

// Confirm checks a verified transaction against the expected charge.
func (e ExpectedCharge) Confirm(t *Transaction) error {
	if !t.Successful() {
		return fmt.Errorf("%w: status %q", ErrTransactionNotSuccessful, t.Status)
	}
	if t.Amount != e.Amount || t.Currency != e.Currency {
		return fmt.Errorf("%w: expected %s %.2f, got %s %.2f",
			ErrChargeMismatch, e.Currency, e.Amount, t.Currency, t.Amount)
	}
	return nil
}

// EntitlementActivator is implemented by the entitlement store; the webhook
// processor grants Pro through it without depending on that package.
type EntitlementActivator interface {
	ActivatePro(ctx context.Context, userID, transactionID string) error
}
