package myMiddleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const (
	UsernameKey contextKey = "username"
	SessionKey  contextKey = "session_id"
)

// TokenValidator keeps this package independent of how tokens are issued.
type TokenValidator interface {
	ValidateToken(tokenString string) (username, sessionID string, err error)
}

type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(v TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: v}
}

// Handle accepts a bearer header or, for browsers opening websockets, a
// ?token= query parameter.
func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := tokenFrom(r)
		if tokenString == "" {
			http.Error(w, "Missing authentication token", http.StatusUnauthorized)
			return
		}
		am.serveWithToken(w, r, next, tokenString)
	})
}

// Optional lets anonymous requests through untouched. A token, when sent,
// must still be valid.
func (am *AuthMiddleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := tokenFrom(r)
		if tokenString == "" {
			next.ServeHTTP(w, r)
			return
		}
		am.serveWithToken(w, r, next, tokenString)
	})
}

func (am *AuthMiddleware) serveWithToken(w http.ResponseWriter, r *http.Request, next http.Handler, tokenString string) {
	username, sessionID, err := am.validator.ValidateToken(tokenString)
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	ctx := context.WithValue(r.Context(), UsernameKey, username)
	ctx = context.WithValue(ctx, SessionKey, sessionID)

	next.ServeHTTP(w, r.WithContext(ctx))
}

// Authenticated reports whether a guest was attached to ctx by this package.
func Authenticated(ctx context.Context) bool {
	username, ok := ctx.Value(UsernameKey).(string)
	return ok && username != ""
}

func tokenFrom(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return r.URL.Query().Get("token")
}
