package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2/clientcredentials"
)

// FlutterwaveConfig configures the Flutterwave v4 API client.
type FlutterwaveConfig struct {
	ClientID     string        `env:"FLUTTERWAVE_CLIENT_ID,required"`
	ClientSecret string        `env:"FLUTTERWAVE_CLIENT_SECRET,required"`
	Environment  string        `env:"FLUTTERWAVE_ENV" envDefault:"sandbox"` // "live" or "sandbox"
	Timeout      time.Duration `env:"FLUTTERWAVE_TIMEOUT" envDefault:"30s"`
	MaxRetries   int           `env:"FLUTTERWAVE_MAX_RETRIES" envDefault:"3"`

	// Endpoint overrides, primarily for tests. Empty means the public
	// Flutterwave endpoints.
	TokenURL      string `env:"FLUTTERWAVE_TOKEN_URL"`
	APIBaseURL    string `env:"FLUTTERWAVE_API_BASE_URL"`
	VerifyBaseURL string `env:"FLUTTERWAVE_VERIFY_BASE_URL"`
}

const (
	flutterwaveTokenURL       = "https://idp.flutterwave.com/realms/flutterwave/protocol/openid-connect/token"
	flutterwaveLiveBaseURL    = "https://f4bexperience.flutterwave.com"
	flutterwaveSandboxBaseURL = "https://developersandbox-api.flutterwave.com"
	flutterwaveVerifyBaseURL  = "https://api.flutterwave.com/v4"
)

// Flutterwave implements Provider against the Flutterwave v4 REST API.
// Authentication uses the OAuth2 client-credentials grant; the token source
// caches and refreshes access tokens transparently.
type Flutterwave struct {
	cfg      FlutterwaveConfig
	expected ExpectedCharge
	http     *http.Client
}

// NewFlutterwave creates a Flutterwave provider client. The expected charge
// sets the amount and currency of every created charge; the server never
// trusts a client-supplied price.
func NewFlutterwave(cfg FlutterwaveConfig, expected ExpectedCharge) (*Flutterwave, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("billing: flutterwave client id and secret are required")
	}

	if cfg.TokenURL == "" {
		cfg.TokenURL = flutterwaveTokenURL
	}
	if cfg.VerifyBaseURL == "" {
		cfg.VerifyBaseURL = flutterwaveVerifyBaseURL
	}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}

	client := cc.Client(context.Background())
	client.Timeout = cfg.Timeout

	return &Flutterwave{cfg: cfg, expected: expected, http: client}, nil
}

func (f *Flutterwave) baseURL() string {
	if f.cfg.APIBaseURL != "" {
		return f.cfg.APIBaseURL
	}
	if f.cfg.Environment == "live" {
		return flutterwaveLiveBaseURL
	}
	return flutterwaveSandboxBaseURL
}

// apiEnvelope is the common Flutterwave response wrapper.
type apiEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type transactionData struct {
	ID        json.Number       `json:"id"`
	Status    string            `json:"status"`
	Amount    float64           `json:"amount"`
	Currency  string            `json:"currency"`
	Meta      map[string]string `json:"meta"`
	CreatedAt time.Time         `json:"created_at"`
}

// VerifyTransaction fetches the authoritative state of a transaction.
// Transient provider failures (network, 5xx) are retried a bounded number of
// times with exponential backoff; validation failures are not.
//
// Errors wrapping ErrTransactionNotSuccessful are verdicts: the provider was
// reachable and answered that this transaction does not qualify. Everything
// else means no verdict was obtained.
func (f *Flutterwave) VerifyTransaction(ctx context.Context, id string) (*Transaction, error) {
	var env apiEnvelope
	err := f.withRetry(ctx, func() error {
		return f.doJSON(ctx, http.MethodGet, f.cfg.VerifyBaseURL+"/transactions/"+id, nil, "", &env)
	})
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.definitive() {
			return nil, fmt.Errorf("%w: %w", ErrTransactionNotSuccessful, err)
		}
		return nil, err
	}
	if env.Status != "success" {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotSuccessful, env.Message)
	}

	var data transactionData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("billing: failed to decode transaction: %w", err)
	}

	return &Transaction{
		ID:        data.ID.String(),
		Status:    data.Status,
		Amount:    data.Amount,
		Currency:  data.Currency,
		Meta:      data.Meta,
		CreatedAt: data.CreatedAt,
	}, nil
}

// CreateCharge runs the v4 general flow: create customer, create payment
// method, create charge. Each step carries an idempotency key so provider
// retries cannot duplicate charges.
func (f *Flutterwave) CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeLink, error) {
	reference := chargeReference(req.UserID)

	email := req.Email
	if email == "" {
		email = req.UserID + "@biogen.app"
	}

	var customerEnv apiEnvelope
	err := f.withRetry(ctx, func() error {
		return f.doJSON(ctx, http.MethodPost, f.baseURL()+"/customers", map[string]any{
			"email": email,
			"name":  map[string]string{"first": truncate(req.UserID, 10), "last": "User"},
		}, "cust-"+reference, &customerEnv)
	})
	if err != nil {
		return nil, err
	}
	customerID, err := dataID(customerEnv)
	if err != nil {
		return nil, fmt.Errorf("billing: customer creation failed: %w", err)
	}

	method := map[string]any{"type": req.PaymentType}
	if details, ok := req.Details[req.PaymentType]; ok {
		method[req.PaymentType] = details
	}
	var methodEnv apiEnvelope
	err = f.withRetry(ctx, func() error {
		return f.doJSON(ctx, http.MethodPost, f.baseURL()+"/payment-methods", method, "pm-"+reference, &methodEnv)
	})
	if err != nil {
		return nil, err
	}
	methodID, err := dataID(methodEnv)
	if err != nil {
		return nil, fmt.Errorf("billing: payment method creation failed: %w", err)
	}

	var chargeEnv apiEnvelope
	err = f.withRetry(ctx, func() error {
		return f.doJSON(ctx, http.MethodPost, f.baseURL()+"/charges", map[string]any{
			"reference":         reference,
			"amount":            f.expected.Amount,
			"currency":          f.expected.Currency,
			"customer_id":       customerID,
			"payment_method_id": methodID,
			"redirect_url":      req.RedirectURL,
			"meta": map[string]string{
				"consumer_id": req.UserID,
			},
		}, reference, &chargeEnv)
	})
	if err != nil {
		return nil, err
	}
	if chargeEnv.Status != "success" {
		return nil, fmt.Errorf("billing: charge creation failed: %s", chargeEnv.Message)
	}

	var chargeData struct {
		NextAction map[string]any `json:"next_action"`
	}
	if err := json.Unmarshal(chargeEnv.Data, &chargeData); err != nil {
		return nil, fmt.Errorf("billing: failed to decode charge: %w", err)
	}

	return &ChargeLink{Reference: reference, NextAction: chargeData.NextAction}, nil
}

// ListBanks fetches the banks available for USSD payments in a country.
func (f *Flutterwave) ListBanks(ctx context.Context, country string) ([]Bank, error) {
	var env apiEnvelope
	err := f.withRetry(ctx, func() error {
		return f.doJSON(ctx, http.MethodGet, f.baseURL()+"/banks?country="+url.QueryEscape(country), nil, "", &env)
	})
	if err != nil {
		return nil, err
	}
	if env.Status != "success" {
		return nil, fmt.Errorf("billing: bank list failed: %s", env.Message)
	}

	var banks []Bank
	if err := json.Unmarshal(env.Data, &banks); err != nil {
		return nil, fmt.Errorf("billing: failed to decode bank list: %w", err)
	}
	return banks, nil
}

// apiError carries the HTTP status so the retry logic can distinguish
// server-class failures from validation errors.
type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("billing: provider returned %d: %s", e.status, e.message)
}

func (e *apiError) transient() bool {
	return e.status >= 500
}

// definitive reports whether the response is an answer about the requested
// resource rather than about our ability to ask. Auth failures and rate
// limits say nothing about the transaction itself.
func (e *apiError) definitive() bool {
	return e.status == http.StatusBadRequest || e.status == http.StatusNotFound
}

func (f *Flutterwave) doJSON(ctx context.Context, method, url string, body any, idempotencyKey string, dest *apiEnvelope) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return errors.Join(ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var env apiEnvelope
		_ = json.NewDecoder(resp.Body).Decode(&env)
		return &apiError{status: resp.StatusCode, message: env.Message}
	}

	return json.NewDecoder(resp.Body).Decode(dest)
}

// withRetry retries transient failures with exponential backoff (1s, 2s,
// 4s...). Validation and auth errors surface immediately.
func (f *Flutterwave) withRetry(ctx context.Context, fn func() error) error {
	attempts := f.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := range attempts {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var apiErr *apiError
		if errors.As(lastErr, &apiErr) {
			if !apiErr.transient() {
				return lastErr
			}
			lastErr = errors.Join(ErrProviderUnavailable, lastErr)
		} else if !errors.Is(lastErr, ErrProviderUnavailable) {
			return lastErr
		}

		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Join(ErrProviderUnavailable, ctx.Err())
		case <-time.After(time.Second << i):
		}
	}
	return lastErr
}

func dataID(env apiEnvelope) (string, error) {
	if env.Status != "success" {
		return "", errors.New(env.Message)
	}
	var data struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", err
	}
	return data.ID.String(), nil
}

func chargeReference(userID string) string {
	return fmt.Sprintf("BIO-PRO-%d-%s", time.Now().UnixMilli(), truncate(userID+uuid.NewString(), 8))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
