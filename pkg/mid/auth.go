package mid

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/askdocs/askdocs-backend/pkg/resilience"
)

// TokenVerifier validates a bearer token and returns the account email.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

type ctxKey int

const userEmailKey ctxKey = iota

// Auth returns middleware that requires a valid "Authorization: Bearer"
// header. On success the verified email is placed in the request context for
// UserEmail; otherwise the request is rejected with 401.
func Auth(verifier TokenVerifier, log *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			email, err := verifier.Verify(token)
			if err != nil {
				log.Warn("auth rejected", "path", r.URL.Path, "err", err)
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), userEmailKey, email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserEmail returns the authenticated email set by Auth.
func UserEmail(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(userEmailKey).(string)
	return email, ok
}

// RateLimit returns middleware that rejects requests over the limit with 429.
func RateLimit(limiter *resilience.Limiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
