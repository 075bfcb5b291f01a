// Package handler wires the HTTP surface: routing, authentication,
// request decoding, and the mapping from service errors to response codes.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/biogen/core"
	"github.com/dmitrymomot/biogen/pkg/identity"
	"github.com/dmitrymomot/biogen/pkg/ratelimit"
	"github.com/dmitrymomot/biogen/svc/admin"
	"github.com/dmitrymomot/biogen/svc/bio"
	"github.com/dmitrymomot/biogen/svc/billing"
)

// Deps carries the services the router exposes.
type Deps struct {
	Verifier     identity.TokenVerifier
	Entitlements EntitlementService
	Bio          *bio.Service
	Billing      *billing.Service
	Banks        *billing.BankCatalog
	Admin        *admin.Service
	Health       HealthChecker
	Log          *slog.Logger
}

// EntitlementService answers the entitlement check endpoint.
type EntitlementService interface {
	IsEntitled(ctx context.Context, userID string) bool
}

// HealthChecker reports readiness of a downstream dependency.
type HealthChecker func(ctx context.Context) error

// New builds the router. The webhook route sits outside the authenticated
// group: its caller is the payment provider, authenticated by signature, not
// by session.
func New(deps Deps) http.Handler {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}

	h := &handlers{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)
	r.Get("/api/banks", h.banks)
	r.Post("/webhooks/flutterwave", h.webhook)

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(identity.MiddlewareConfig{
			Verifier: deps.Verifier,
			Logger:   deps.Log,
			OnError: func(w http.ResponseWriter, _ *http.Request, _ error) {
				core.JSONError(w, core.ErrUnauthorized)
			},
		}))

		r.Post("/api/entitlement", h.entitlement)
		r.Post("/api/generate", h.generate)
		r.Post("/api/payments/checkout", h.checkout)
		r.Post("/api/payments/verify", h.verifyPayment)
		r.Post("/api/admin", h.admin)
	})

	return r
}

type handlers struct {
	deps Deps
}

// writeError maps service errors onto the HTTP taxonomy. Anything unmapped
// collapses to a generic 500 inside core.JSONError.
func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, identity.ErrUnauthorized):
		err = core.ErrUnauthorized
	case errors.Is(err, ratelimit.ErrRateLimitExceeded):
		err = core.ErrTooManyRequests
	case errors.Is(err, admin.ErrNotAdmin):
		err = core.ErrForbidden
	case errors.Is(err, billing.ErrProviderUnavailable):
		h.deps.Log.ErrorContext(r.Context(), "payment provider unavailable", slog.Any("error", err))
		err = core.ErrServiceUnavailable
	case errors.Is(err, billing.ErrTransactionNotSuccessful),
		errors.Is(err, billing.ErrChargeMismatch),
		errors.Is(err, billing.ErrMissingConsumerID):
		err = core.ErrBadRequest
	}
	core.JSONError(w, err)
}
