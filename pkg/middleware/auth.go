package middleware

import (
	"context"
	"net/http"

	"meshup/internal/core/domain"
)

type contextKey string

const PrincipalKey contextKey = "principal"

// Authenticator resolves the request credential to a principal, or nil when anonymous.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) *domain.Principal
}

// AuthMiddleware rejects anonymous requests and injects the principal into the context.
func AuthMiddleware(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := auth.Authenticate(r.Context(), r)
			if p == nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"code":"unauthorized","message":"unauthorized"}`))
				return
			}
			ctx := context.WithValue(r.Context(), PrincipalKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func PrincipalFrom(ctx context.Context) *domain.Principal {
	p, _ := ctx.Value(PrincipalKey).(*domain.Principal)
	return p
}
