package services

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"meshup/internal/core/domain"
	"meshup/pkg/logging"
)

// Authenticator resolves the credential presented at connect time.
// Any failure leaves the caller anonymous; callers decide what anonymous may do.
type Authenticator struct {
	log    *slog.Logger
	tokens *TokenService
	users  domain.UserRepository
}

func NewAuthenticator(log *slog.Logger, tokens *TokenService, users domain.UserRepository) *Authenticator {
	return &Authenticator{log: log, tokens: tokens, users: users}
}

// ExtractToken reads the token query parameter, then an Authorization bearer header.
func ExtractToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Authenticate returns nil for anonymous connections.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) *domain.Principal {
	raw := ExtractToken(r)
	if raw == "" {
		return nil
	}
	userID, err := a.tokens.ValidateToken(raw)
	if err != nil {
		a.log.DebugContext(ctx, "auth - authenticate - invalid token", logging.Err(err))
		return nil
	}
	p, err := a.users.GetPrincipal(ctx, userID)
	if err != nil {
		a.log.DebugContext(ctx, "auth - authenticate - unknown subject", logging.User(userID), logging.Err(err))
		return nil
	}
	return p
}
