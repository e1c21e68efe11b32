// Package auth extracts the acting user from a JWT bearer token and makes it
// available to handlers through the request context.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey string

const ctxKeyActor ctxKey = "approvals.actor"

// Actor is the authenticated caller of a request.
type Actor struct {
	UserID string
	Email  string
}

// FromContext returns the Actor stored in the request context, or nil.
func FromContext(ctx context.Context) *Actor {
	v := ctx.Value(ctxKeyActor)
	if v == nil {
		return nil
	}
	if a, ok := v.(*Actor); ok {
		return a
	}
	return nil
}

// WithActor returns a context carrying the given actor. Used by tests and by
// the signer webhook path, which authenticates by shared secret instead.
func WithActor(ctx context.Context, a *Actor) context.Context {
	return context.WithValue(ctx, ctxKeyActor, a)
}

// Middleware validates the Authorization bearer token with the shared HMAC
// secret and stores the actor (sub, email claims) in the request context.
// Requests without a valid token are rejected.
func Middleware(secret string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			sub, _ := claims["sub"].(string)
			if sub == "" {
				http.Error(w, "token missing subject", http.StatusUnauthorized)
				return
			}
			email, _ := claims["email"].(string)

			ctx := WithActor(r.Context(), &Actor{UserID: sub, Email: email})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
