package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/onnwee/hunchrank/internal/auth"
)

// userIDKey is the context key for the authenticated user ID.
type userIDKey struct{}

// userHolderKey carries a *userHolder installed by Logging.
type userHolderKey struct{}

type userHolder struct {
	userID string
}

// SetUserID stores the authenticated user ID in the context.
func SetUserID(ctx context.Context, userID string) context.Context {
	if h, ok := ctx.Value(userHolderKey{}).(*userHolder); ok {
		h.userID = userID
	}
	return context.WithValue(ctx, userIDKey{}, userID)
}

// GetUserID retrieves the user ID from context. Returns empty string if not present.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey{}).(string); ok {
		return id
	}
	return ""
}

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// ErrorWriter writes an error response for a failed authentication.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Authenticate resolves the bearer token in the Authorization header to a user ID.
// Requests without a token continue anonymously so read-only handlers can
// apply their own visibility rules. Requests with an invalid token are
// rejected through onError.
func Authenticate(validator TokenValidator, onError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				onError(w, r, auth.ErrInvalidToken)
				return
			}
			claims, err := validator.ValidateToken(strings.TrimSpace(token))
			if err != nil {
				onError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(SetUserID(r.Context(), claims.UserID())))
		})
	}
}

// RequireUser rejects anonymous requests through onError with auth.ErrInvalidToken.
func RequireUser(onError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetUserID(r.Context()) == "" {
				onError(w, r, auth.ErrInvalidToken)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
