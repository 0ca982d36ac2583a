package middleware

import (
	"context"
	"net/http"
	"strings"
)

// 1. Context keys. Unexported so only this package can set them.
type contextKey string

const (
	userKey  contextKey = "user_id"
	emailKey contextKey = "email"
)

// Identity is the authenticated caller. Only ID is used for ownership;
// Email is informational.
type Identity struct {
	ID    int
	Email string
}

// 2. What we need from the User Service
type TokenValidator interface {
	ValidateToken(tokenString string) (int, string, error)
}

type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(v TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: v}
}

// Handle rejects requests without a valid bearer token. Browsers can't set
// headers on websocket upgrades, so ?token= is accepted as a fallback.
func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""

		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
				tokenString = parts[1]
			}
		}

		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}

		if tokenString == "" {
			http.Error(w, "Missing authentication token", http.StatusUnauthorized)
			return
		}

		userID, email, err := am.validator.ValidateToken(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), Identity{ID: userID, Email: email})))
	})
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, userKey, id.ID)
	return context.WithValue(ctx, emailKey, id.Email)
}

// CurrentUser reads the identity stored by Handle.
func CurrentUser(ctx context.Context) (*Identity, bool) {
	userID, ok := ctx.Value(userKey).(int)
	if !ok {
		return nil, false
	}
	email, _ := ctx.Value(emailKey).(string)
	return &Identity{ID: userID, Email: email}, true
}

// ContextIdentity is an identity provider backed by the request context.
type ContextIdentity struct{}

func (ContextIdentity) CurrentUser(ctx context.Context) (*Identity, bool) {
	return CurrentUser(ctx)
}
