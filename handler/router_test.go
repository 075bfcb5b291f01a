package handler_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/biogen/handler"
	"github.com/dmitrymomot/biogen/pkg/docstore"
	"github.com/dmitrymomot/biogen/pkg/identity"
	"github.com/dmitrymomot/biogen/pkg/ratelimit"
	"github.com/dmitrymomot/biogen/svc/admin"
	"github.com/dmitrymomot/biogen/svc/bio"
	"github.com/dmitrymomot/biogen/svc/billing"
	"github.com/dmitrymomot/biogen/svc/entitlement"
)

const (
	testToken  = "valid-token"
	testSecret = "whsec_test"
)

type stubVerifier struct{}

func (stubVerifier) Verify(ctx context.Context, idToken string) (identity.Identity, error) {
	if idToken != testToken {
		return identity.Identity{}, identity.ErrUnauthorized
	}
	return identity.Identity{UserID: "u1", Email: "ops@example.com"}, nil
}

type stubDirectory struct{}

func (stubDirectory) ListUsers(ctx context.Context, limit int) ([]identity.User, error) {
	return nil, nil
}
func (stubDirectory) GetUser(ctx context.Context, uid string) (identity.User, error) {
	return identity.User{UID: uid}, nil
}
func (stubDirectory) SetDisabled(ctx context.Context, uid string, disabled bool) error { return nil }

type stubProvider struct {
	tx *billing.Transaction
}

func (p stubProvider) VerifyTransaction(ctx context.Context, id string) (*billing.Transaction, error) {
	if p.tx == nil {
		return nil, billing.ErrProviderUnavailable
	}
	return p.tx, nil
}

func (p stubProvider) CreateCharge(ctx context.Context, req billing.ChargeRequest) (*billing.ChargeLink, error) {
	return &billing.ChargeLink{Reference: "BIO-PRO-1-abc"}, nil
}

func (p stubProvider) ListBanks(ctx context.Context, country string) ([]billing.Bank, error) {
	return []billing.Bank{{ID: "1", Code: "044", Name: "Access Bank"}}, nil
}

type entitledAlways struct{}

func (entitledAlways) IsEntitled(ctx context.Context, userID string) bool { return true }

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, prompt, systemInstruction string, temperature float64) (string, error) {
	return "1. A bio", nil
}

func newTestRouter(t *testing.T) (http.Handler, *docstore.MemoryStore) {
	t.Helper()

	docs := docstore.NewMemoryStore()
	expected := billing.ExpectedCharge{Amount: 2.99, Currency: "USD"}
	provider := stubProvider{tx: &billing.Transaction{
		ID: "123", Status: "successful", Amount: 2.99, Currency: "USD",
		Meta: map[string]string{"consumer_id": "u1"},
	}}

	entStore := entitlement.NewStore(docs, nil)
	failures := billing.NewFailureLog(docs, nil)
	billingSvc := billing.NewService(provider, entStore, billing.NewLedger(docs), failures,
		expected, billing.WebhookConfig{SecretKey: testSecret, SkewTolerance: 5 * time.Minute}, nil)

	limiter := ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.Config{
		UserMax: 100, UserWindow: time.Minute, IPMax: 100, IPWindow: time.Hour,
	}, nil)
	bioSvc := bio.NewService(bio.DefaultGatePolicy(), entitledAlways{}, limiter, stubGenerator{}, bio.NewChatStore(docs), nil)

	adminSvc := admin.NewService(admin.Config{AdminEmails: []string{"ops@example.com"}},
		stubDirectory{}, entStore, failures, nil)

	router := handler.New(handler.Deps{
		Verifier:     stubVerifier{},
		Entitlements: entitledAlways{},
		Bio:          bioSvc,
		Billing:      billingSvc,
		Banks:        billing.NewBankCatalog(provider, nil, nil),
		Admin:        adminSvc,
	})
	return router, docs
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error.Code
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEntitlementEndpointRequiresAuth(t *testing.T) {
	t.Parallel()

	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/entitlement", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", errorCode(t, rec))

	rec = doJSON(t, router, http.MethodPost, "/api/entitlement", "wrong-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEntitlementEndpoint(t *testing.T) {
	t.Parallel()

	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/api/entitlement", testToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			IsPro bool `json:"isPro"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Data.IsPro)
}

func TestGenerateEndpoint(t *testing.T) {
	t.Parallel()

	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/api/generate", testToken,
		bio.GenerateRequest{Prompt: "a bio for my portfolio"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data bio.GenerateResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "1. A bio", resp.Data.Text)
}

func TestGenerateEndpointValidation(t *testing.T) {
	t.Parallel()

	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/api/generate", testToken,
		bio.GenerateRequest{Prompt: "a bio", Platform: "myspace"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", errorCode(t, rec))
}

func TestBanksEndpoint(t *testing.T) {
	t.Parallel()

	router, _ := newTestRouter(t)

	// No token: the bank directory is public so the checkout form can render
	// before any payment exists.
	rec := doJSON(t, router, http.MethodGet, "/api/banks", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []billing.Bank `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "044", resp.Data[0].Code)
}

func TestWebhookEndpoint(t *testing.T) {
	t.Parallel()

	router, docs := newTestRouter(t)

	body, err := json.Marshal(map[string]any{
		"event": "charge.completed",
		"data": map[string]any{
			"id":     123,
			"status": "successful",
			"meta":   map[string]any{"consumer_id": "u1"},
		},
	})
	require.NoError(t, err)

	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/flutterwave", bytes.NewReader(body))
	req.Header.Set("x-flutterwave-signature", sig)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var status entitlement.Status
	require.NoError(t, docs.Get(context.Background(), "entitlements/u1", &status))
	assert.True(t, status.IsPro)
}

func TestWebhookEndpointRejectsBadSignature(t *testing.T) {
	t.Parallel()

	router, docs := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/flutterwave", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("x-flutterwave-signature", "bogus")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var status entitlement.Status
	err := docs.Get(context.Background(), "entitlements/u1", &status)
	assert.True(t, errors.Is(err, docstore.ErrNotFound), "rejected webhooks must not mutate state")
}

func TestAdminEndpointForbiddenForNonAdmins(t *testing.T) {
	t.Parallel()

	docs := docstore.NewMemoryStore()
	entStore := entitlement.NewStore(docs, nil)
	failures := billing.NewFailureLog(docs, nil)
	adminSvc := admin.NewService(admin.Config{AdminEmails: []string{"someone-else@example.com"}},
		stubDirectory{}, entStore, failures, nil)

	limiter := ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.Config{UserMax: 10, UserWindow: time.Minute, IPMax: 10, IPWindow: time.Hour}, nil)
	bioSvc := bio.NewService(bio.DefaultGatePolicy(), entitledAlways{}, limiter, stubGenerator{}, bio.NewChatStore(docs), nil)
	billingSvc := billing.NewService(stubProvider{tx: &billing.Transaction{ID: "1", Status: "successful", Amount: 2.99, Currency: "USD"}},
		entStore, billing.NewLedger(docs), failures,
		billing.ExpectedCharge{Amount: 2.99, Currency: "USD"},
		billing.WebhookConfig{SecretKey: testSecret}, nil)

	router := handler.New(handler.Deps{
		Verifier:     stubVerifier{},
		Entitlements: entitledAlways{},
		Bio:          bioSvc,
		Billing:      billingSvc,
		Admin:        adminSvc,
	})

	rec := doJSON(t, router, http.MethodPost, "/api/admin", testToken, map[string]string{"action": "checkAuth"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", errorCode(t, rec))
}

func TestAdminEndpointCheckAuth(t *testing.T) {
	t.Parallel()

	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/api/admin", testToken, map[string]string{"action": "checkAuth"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVerifyPaymentEndpoint(t *testing.T) {
	t.Parallel()

	router, docs := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/payments/verify", testToken,
		map[string]string{"transactionId": "123"})
	require.Equal(t, http.StatusOK, rec.Code)

	var status entitlement.Status
	require.NoError(t, docs.Get(context.Background(), "entitlements/u1", &status))
	assert.True(t, status.IsPro)
}
