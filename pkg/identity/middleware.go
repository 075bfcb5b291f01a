package identity

import (
	"log/slog"
	"net/http"
	"strings"
)

// ErrorWriter renders an authentication failure to the response.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// MiddlewareConfig configures the authentication middleware.
type MiddlewareConfig struct {
	Verifier TokenVerifier
	Logger   *slog.Logger
	OnError  ErrorWriter // defaults to plain-text 401
}

// Middleware authenticates the request's bearer token and injects the
// verified Identity into the request context. Missing or failed credentials
// short-circuit with 401 before the handler runs.
func Middleware(cfg MiddlewareConfig) func(next http.Handler) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.OnError == nil {
		cfg.OnError = func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, ErrUnauthorized.Error(), http.StatusUnauthorized)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := BearerToken(r)
			if err != nil {
				cfg.OnError(w, r, err)
				return
			}

			id, err := cfg.Verifier.Verify(r.Context(), token)
			if err != nil {
				// Log the real cause; the client only ever sees 401.
				cfg.Logger.DebugContext(r.Context(), "token verification failed", slog.Any("error", err))
				cfg.OnError(w, r, ErrUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(SetIdentity(r.Context(), id)))
		})
	}
}

// BearerToken extracts the bearer token from the Authorization header.
func BearerToken(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
		return "", ErrUnauthorized
	}
	token := strings.TrimPrefix(auth, "Bearer ")
	if token == "" {
		return "", ErrUnauthorized
	}
	return token, nil
}
