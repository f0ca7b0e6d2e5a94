// Package middleware holds the HTTP decorators shared by every route:
// authentication, role checks, CORS, rate limiting and request logging.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Dan9191/claims-service/internal/auth"
	"github.com/Dan9191/claims-service/internal/models"
	"github.com/Dan9191/claims-service/internal/service"
)

type ctxKey int

const userKey ctxKey = iota

// Authenticator resolves a bearer token to a user
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// WithUser stores the authenticated user on ctx
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the user set by AuthMiddleware
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userKey).(*models.User)
	return user, ok && user != nil
}

// AuthMiddleware requires a valid bearer token in the Authorization header
func AuthMiddleware(authn Authenticator) func(http.Handler) http.Handler {
	return authenticate(authn, false)
}

// AuthMiddlewareWithQuery also accepts the token as a "token" query parameter
func AuthMiddlewareWithQuery(authn Authenticator) func(http.Handler) http.Handler {
	return authenticate(authn, true)
}

func authenticate(authn Authenticator, allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := authn.Authenticate(r.Context(), auth.TokenFromRequest(r, allowQuery))
			if err != nil {
				status, message := http.StatusUnauthorized, "Authentication required"
				var se *service.Error
				if errors.As(err, &se) {
					status, message = se.Kind.Status(), se.Message
					if se.Kind == service.KindDependency {
						message = "Internal server error"
					}
				}
				writeMessage(w, status, message)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireRole rejects authenticated users whose role is not listed
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, _ := UserFromContext(r.Context())
			if err := service.RequireRole(user, roles...); err != nil {
				var se *service.Error
				errors.As(err, &se)
				writeMessage(w, se.Kind.Status(), se.Message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}
