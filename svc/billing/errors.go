package billing

import "errors"

var (
	// ErrProviderUnavailable indicates the payment provider could not be
	// reached or answered with a server-class error.
	ErrProviderUnavailable = errors.New("billing: payment provider unavailable")

	// ErrTransactionNotSuccessful indicates the provider reports the
	// transaction as anything other than settled.
	ErrTransactionNotSuccessful = errors.New("billing: transaction not successful")

	// ErrChargeMismatch indicates the paid amount or currency does not match
	// the configured product price.
	ErrChargeMismatch = errors.New("billing: transaction amount or currency mismatch")

	// ErrMissingConsumerID indicates the transaction metadata carries no user
	// id. Unrecoverable payload error, not retryable.
	ErrMissingConsumerID = errors.New("billing: missing consumer id in transaction metadata")

	// ErrWebhookUnauthorized indicates signature or hash verification failed.
	ErrWebhookUnauthorized = errors.New("billing: webhook authentication failed")

	// ErrWebhookMalformed indicates a structurally invalid webhook payload.
	ErrWebhookMalformed = errors.New("billing: malformed webhook payload")

	// ErrWebhookNotConfigured indicates the shared secret is missing; the
	// endpoint fails closed rather than accepting unauthenticated calls.
	ErrWebhookNotConfigured = errors.New("billing: webhook secret not configured")
)
