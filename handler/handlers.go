package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/biogen/core"
	"github.com/dmitrymomot/biogen/pkg/clientip"
	"github.com/dmitrymomot/biogen/pkg/identity"
	"github.com/dmitrymomot/biogen/svc/bio"
	"github.com/dmitrymomot/biogen/svc/billing"
)

// maxBodyBytes caps request bodies. Generation prompts are capped far lower
// by the gate policy; this is a transport-level backstop.
const maxBodyBytes = 1 << 20

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	if h.deps.Health != nil {
		if err := h.deps.Health(r.Context()); err != nil {
			h.deps.Log.ErrorContext(r.Context(), "healthcheck failed", slog.Any("error", err))
			core.JSONError(w, core.ErrServiceUnavailable)
			return
		}
	}
	core.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) entitlement(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.GetIdentity(r.Context())
	if !ok {
		core.JSONError(w, core.ErrUnauthorized)
		return
	}
	core.JSON(w, http.StatusOK, map[string]bool{
		"isPro": h.deps.Entitlements.IsEntitled(r.Context(), id.UserID),
	})
}

func (h *handlers) generate(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.GetIdentity(r.Context())
	if !ok {
		core.JSONError(w, core.ErrUnauthorized)
		return
	}

	var req bio.GenerateRequest
	if err := decodeJSON(r, &req); err != nil {
		core.JSONError(w, core.ErrBadRequest)
		return
	}

	result, err := h.deps.Bio.Generate(r.Context(), id.UserID, clientip.GetIP(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	core.JSON(w, http.StatusOK, result)
}

func (h *handlers) checkout(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.GetIdentity(r.Context())
	if !ok {
		core.JSONError(w, core.ErrUnauthorized)
		return
	}

	var req billing.ChargeRequest
	if err := decodeJSON(r, &req); err != nil {
		core.JSONError(w, core.ErrBadRequest)
		return
	}

	link, err := h.deps.Billing.CreateCheckout(r.Context(), id.UserID, id.Email, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	core.JSON(w, http.StatusOK, link)
}

func (h *handlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.GetIdentity(r.Context())
	if !ok {
		core.JSONError(w, core.ErrUnauthorized)
		return
	}

	var req struct {
		TransactionID string `json:"transactionId"`
	}
	if err := decodeJSON(r, &req); err != nil || req.TransactionID == "" {
		core.JSONError(w, core.ErrBadRequest)
		return
	}

	userID, err := h.deps.Billing.ConfirmPayment(r.Context(), req.TransactionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	// A payment confirmed from the redirect must belong to the session that
	// claims it; a mismatch grants nothing to the caller.
	if userID != id.UserID {
		h.deps.Log.WarnContext(r.Context(), "payment confirmed for different user",
			slog.String("session_user", id.UserID), slog.String("paid_user", userID))
	}
	core.JSON(w, http.StatusOK, map[string]bool{"isPro": true})
}

// banks serves the USSD bank directory. Public: the client needs the list to
// render the checkout form before any payment exists.
func (h *handlers) banks(w http.ResponseWriter, r *http.Request) {
	if h.deps.Banks == nil {
		core.JSONError(w, core.ErrServiceUnavailable)
		return
	}

	country := r.URL.Query().Get("country")
	if country == "" {
		country = "NG"
	}

	banks, err := h.deps.Banks.List(r.Context(), country)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	core.JSON(w, http.StatusOK, banks)
}

// webhook handles provider deliveries. The raw body is read before any
// parsing: the HMAC covers the exact bytes on the wire.
func (h *handlers) webhook(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		core.JSONError(w, core.ErrBadRequest)
		return
	}

	sig := billing.WebhookSignature{
		HMAC:      r.Header.Get("x-flutterwave-signature"),
		VerifHash: r.Header.Get("verif-hash"),
	}

	err = h.deps.Billing.ProcessWebhook(r.Context(), rawBody, sig)
	switch {
	case err == nil:
		core.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, billing.ErrWebhookNotConfigured):
		h.deps.Log.ErrorContext(r.Context(), "webhook secret not configured")
		core.JSONError(w, core.ErrServiceUnavailable)
	case errors.Is(err, billing.ErrWebhookUnauthorized):
		core.JSONError(w, core.ErrUnauthorized)
	case errors.Is(err, billing.ErrWebhookMalformed):
		core.JSONError(w, core.ErrBadRequest)
	default:
		h.deps.Log.ErrorContext(r.Context(), "webhook processing failed", slog.Any("error", err))
		core.JSONError(w, core.ErrInternalServerError)
	}
}

func decodeJSON(r *http.Request, dest any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	return dec.Decode(dest)
}
