package identity_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/biogen/pkg/identity"
)

func newGoogleClient(t *testing.T, handler http.HandlerFunc) *identity.GoogleClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := identity.NewGoogleClient(identity.GoogleConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return client
}

func TestGoogleClientVerify(t *testing.T) {
	t.Parallel()

	client := newGoogleClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts:lookup", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tok123", body["idToken"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"users": []map[string]any{{"localId": "u1", "email": "a@example.com"}},
		})
	})

	id, err := client.Verify(context.Background(), "tok123")
	require.NoError(t, err)
	assert.Equal(t, identity.Identity{UserID: "u1", Email: "a@example.com"}, id)
}

func TestGoogleClientVerifyRejections(t *testing.T) {
	t.Parallel()

	t.Run("invalid token", func(t *testing.T) {
		client := newGoogleClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "INVALID_ID_TOKEN"}})
		})
		_, err := client.Verify(context.Background(), "bad")
		assert.ErrorIs(t, err, identity.ErrUnauthorized)
	})

	t.Run("no matching account", func(t *testing.T) {
		client := newGoogleClient(t, func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"users": []map[string]any{}})
		})
		_, err := client.Verify(context.Background(), "tok")
		assert.ErrorIs(t, err, identity.ErrUnauthorized)
	})

	t.Run("disabled account", func(t *testing.T) {
		client := newGoogleClient(t, func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"users": []map[string]any{{"localId": "u1", "disabled": true}},
			})
		})
		_, err := client.Verify(context.Background(), "tok")
		assert.ErrorIs(t, err, identity.ErrUnauthorized)
	})
}

func TestGoogleClientListUsers(t *testing.T) {
	t.Parallel()

	client := newGoogleClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts:batchGet", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("maxResults"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"users": []map[string]any{
				{"localId": "u1", "email": "a@example.com", "createdAt": "1700000000000"},
				{"localId": "u2", "email": "b@example.com", "disabled": true},
			},
		})
	})

	users, err := client.ListUsers(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "u1", users[0].UID)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), users[0].CreatedAt)
	assert.True(t, users[1].Disabled)
}

func TestGoogleClientGetUserNotFound(t *testing.T) {
	t.Parallel()

	client := newGoogleClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"users": []map[string]any{}})
	})

	_, err := client.GetUser(context.Background(), "missing")
	assert.ErrorIs(t, err, identity.ErrUserNotFound)
}
