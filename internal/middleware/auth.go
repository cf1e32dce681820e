package middleware

import (
	"context"
	"net/http"

	"github.com/kirpputori/backend/internal/session"
)

type contextKey string

const userIDKey contextKey = "userID"

// Auth resolves the session cookie and stores the user id in the request
// context. Requests without a valid session are rejected with 401.
func Auth(resolver session.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := session.TokenFromRequest(r)
			userID, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				http.Error(w, "Not logged in", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID returns the authenticated user id stored by Auth.
func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

// WithUserID injects a user id into a context. Used in tests.
func WithUserID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}
