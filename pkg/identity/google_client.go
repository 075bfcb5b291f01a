package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// GoogleConfig configures the Identity Toolkit REST client.
type GoogleConfig struct {
	APIKey  string        `env:"IDENTITY_API_KEY,required"`
	BaseURL string        `env:"IDENTITY_BASE_URL" envDefault:"https://identitytoolkit.googleapis.com/v1"`
	Timeout time.Duration `env:"IDENTITY_TIMEOUT" envDefault:"10s"`
}

// GoogleClient implements TokenVerifier and Directory against the Google
// Identity Toolkit REST API.
type GoogleClient struct {
	cfg  GoogleConfig
	http *http.Client
}

// NewGoogleClient creates an identity provider client.
func NewGoogleClient(cfg GoogleConfig) (*GoogleClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("identity: API key is required")
	}
	return &GoogleClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type accountInfo struct {
	LocalID     string `json:"localId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoUrl"`
	Disabled    bool   `json:"disabled"`
	CreatedAt   string `json:"createdAt"`   // unix millis as string
	LastLoginAt string `json:"lastLoginAt"` // unix millis as string
}

// Verify validates an ID token via accounts:lookup. Any provider failure is
// wrapped so callers can normalize to ErrUnauthorized while the cause stays
// available for logging.
func (c *GoogleClient) Verify(ctx context.Context, idToken string) (Identity, error) {
	var out struct {
		Users []accountInfo `json:"users"`
	}
	if err := c.post(ctx, "accounts:lookup", map[string]any{"idToken": idToken}, &out); err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if len(out.Users) == 0 || out.Users[0].LocalID == "" {
		return Identity{}, ErrUnauthorized
	}
	if out.Users[0].Disabled {
		return Identity{}, fmt.Errorf("%w: account disabled", ErrUnauthorized)
	}

	return Identity{UserID: out.Users[0].LocalID, Email: out.Users[0].Email}, nil
}

func (c *GoogleClient) ListUsers(ctx context.Context, limit int) ([]User, error) {
	if limit <= 0 {
		limit = 100
	}

	var out struct {
		Users []accountInfo `json:"users"`
	}
	path := fmt.Sprintf("accounts:batchGet?maxResults=%d&key=%s", limit, c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/"+path, nil)
	if err != nil {
		return nil, err
	}
	if err := c.do(req, &out); err != nil {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}

	users := make([]User, 0, len(out.Users))
	for _, a := range out.Users {
		users = append(users, a.toUser())
	}
	return users, nil
}

func (c *GoogleClient) GetUser(ctx context.Context, uid string) (User, error) {
	var out struct {
		Users []accountInfo `json:"users"`
	}
	if err := c.post(ctx, "accounts:lookup", map[string]any{"localId": []string{uid}}, &out); err != nil {
		return User{}, errors.Join(ErrProviderUnavailable, err)
	}
	if len(out.Users) == 0 {
		return User{}, ErrUserNotFound
	}
	return out.Users[0].toUser(), nil
}

func (c *GoogleClient) SetDisabled(ctx context.Context, uid string, disabled bool) error {
	var out struct {
		LocalID string `json:"localId"`
	}
	err := c.post(ctx, "accounts:update", map[string]any{
		"localId":     uid,
		"disableUser": disabled,
	}, &out)
	if err != nil {
		return errors.Join(ErrProviderUnavailable, err)
	}
	return nil
}

func (c *GoogleClient) post(ctx context.Context, endpoint string, body any, dest any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/%s?key=%s", c.cfg.BaseURL, endpoint, c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, dest)
}

func (c *GoogleClient) do(req *http.Request, dest any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("identity provider returned %d: %s", resp.StatusCode, apiErr.Error.Message)
	}

	return json.NewDecoder(resp.Body).Decode(dest)
}

func (a accountInfo) toUser() User {
	return User{
		UID:         a.LocalID,
		Email:       a.Email,
		DisplayName: a.DisplayName,
		PhotoURL:    a.PhotoURL,
		Disabled:    a.Disabled,
		CreatedAt:   millisToTime(a.CreatedAt),
		LastLoginAt: millisToTime(a.LastLoginAt),
	}
}

func millisToTime(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
