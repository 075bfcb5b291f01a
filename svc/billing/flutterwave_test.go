package billing_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/biogen/svc/billing"
)

func newFlutterwave(t *testing.T, api http.HandlerFunc) *billing.Flutterwave {
	t.Helper()

	var tokenCalls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "test-access-token",
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-access-token", r.Header.Get("Authorization"))
		api(w, r)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	fw, err := billing.NewFlutterwave(billing.FlutterwaveConfig{
		ClientID:      "cid",
		ClientSecret:  "csecret",
		Timeout:       5 * time.Second,
		MaxRetries:    3,
		TokenURL:      srv.URL + "/token",
		APIBaseURL:    srv.URL,
		VerifyBaseURL: srv.URL,
	}, billing.ExpectedCharge{Amount: 2.99, Currency: "USD"})
	require.NoError(t, err)
	return fw
}

func TestFlutterwaveVerifyTransaction(t *testing.T) {
	t.Parallel()

	fw := newFlutterwave(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/transactions/123", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data": map[string]any{
				"id":       123,
				"status":   "successful",
				"amount":   2.99,
				"currency": "USD",
				"meta":     map[string]string{"consumer_id": "u1"},
			},
		})
	})

	tx, err := fw.VerifyTransaction(context.Background(), "123")
	require.NoError(t, err)
	assert.Equal(t, "123", tx.ID)
	assert.Equal(t, "successful", tx.Status)
	assert.Equal(t, 2.99, tx.Amount)
	assert.Equal(t, "u1", tx.Meta["consumer_id"])
}

func TestFlutterwaveVerifyRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	fw := newFlutterwave(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(map[string]any{"message": "upstream error"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data":   map[string]any{"id": 123, "status": "successful", "amount": 2.99, "currency": "USD"},
		})
	})

	tx, err := fw.VerifyTransaction(context.Background(), "123")
	require.NoError(t, err)
	assert.Equal(t, "123", tx.ID)
	assert.Equal(t, int64(3), calls.Load())
}

func TestFlutterwaveVerifyDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	fw := newFlutterwave(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "transaction not found"})
	})

	_, err := fw.VerifyTransaction(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, int64(1), calls.Load())

	// A 404 is the provider's answer about the transaction, not an outage.
	assert.ErrorIs(t, err, billing.ErrTransactionNotSuccessful)
	assert.NotErrorIs(t, err, billing.ErrProviderUnavailable)
}

func TestFlutterwaveVerifyAuthErrorIsNotAVerdict(t *testing.T) {
	t.Parallel()

	fw := newFlutterwave(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "invalid credentials"})
	})

	_, err := fw.VerifyTransaction(context.Background(), "123")
	require.Error(t, err)
	assert.NotErrorIs(t, err, billing.ErrTransactionNotSuccessful,
		"a rejected credential says nothing about the transaction")
}

func TestFlutterwaveListBanks(t *testing.T) {
	t.Parallel()

	fw := newFlutterwave(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/banks", r.URL.Path)
		assert.Equal(t, "NG", r.URL.Query().Get("country"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data": []map[string]any{
				{"id": 1, "code": "044", "name": "Access Bank"},
				{"id": 2, "code": "058", "name": "GTBank"},
			},
		})
	})

	banks, err := fw.ListBanks(context.Background(), "NG")
	require.NoError(t, err)
	require.Len(t, banks, 2)
	assert.Equal(t, "044", banks[0].Code)
	assert.Equal(t, "GTBank", banks[1].Name)
}

func TestFlutterwaveCreateCharge(t *testing.T) {
	t.Parallel()

	var chargeBody map[string]any
	fw := newFlutterwave(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("X-Idempotency-Key"))
		switch r.URL.Path {
		case "/customers":
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "success", "data": map[string]any{"id": "cus_1"}})
		case "/payment-methods":
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "success", "data": map[string]any{"id": "pm_1"}})
		case "/charges":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&chargeBody))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "success",
				"data":   map[string]any{"id": "chg_1", "next_action": map[string]any{"type": "redirect_url"}},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	link, err := fw.CreateCharge(context.Background(), billing.ChargeRequest{
		UserID:      "u1",
		Email:       "a@example.com",
		PaymentType: "card",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link.Reference, "BIO-PRO-"))
	assert.Equal(t, "redirect_url", link.NextAction["type"])

	// The price comes from configuration, never from the request.
	assert.Equal(t, 2.99, chargeBody["amount"])
	assert.Equal(t, "USD", chargeBody["currency"])
	meta, _ := chargeBody["meta"].(map[string]any)
	assert.Equal(t, "u1", meta["consumer_id"])
}
