// Package auth resolves a presented credential to a principal once, at
// connection or request time.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/repository"
	"github.com/weiawesome/wes-io-chat/pkg/jwt"
	"github.com/weiawesome/wes-io-chat/pkg/log"
	"github.com/weiawesome/wes-io-chat/pkg/middleware"
)

var (
	ErrInvalidCredential = fmt.Errorf("%w: invalid or expired credential", domain.ErrUnauthenticated)
	ErrUnknownUser       = fmt.Errorf("%w: user no longer exists", domain.ErrUnauthenticated)
	ErrIdentityStore     = fmt.Errorf("%w: %w", domain.ErrUpstream, middleware.ErrUpstream)
)

// TokenQueryParam carries the credential for clients that cannot set
// headers on a websocket upgrade.
const TokenQueryParam = "token"

// Principal is the identity bound to a connection for its lifetime.
type Principal struct {
	UserID    int64
	Username  string
	IsAdmin   bool
	ExpiresAt time.Time
}

// Actor returns the principal as the caller of a mutating operation.
func (p *Principal) Actor() domain.Actor {
	return domain.Actor{UserID: p.UserID, IsAdmin: p.IsAdmin}
}

// Expired reports whether the credential has lapsed at now.
func (p *Principal) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}

// TokenVerifier checks a token's signature and expiry.
type TokenVerifier interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// IdentityProvider verifies signed tokens and confirms the user still exists.
type IdentityProvider struct {
	tokens TokenVerifier
	users  repository.UserRepository
}

func NewIdentityProvider(tokens TokenVerifier, users repository.UserRepository) *IdentityProvider {
	return &IdentityProvider{tokens: tokens, users: users}
}

// Resolve maps a credential to a principal.
func (p *IdentityProvider) Resolve(ctx context.Context, credential string) (*Principal, error) {
	l := log.Ctx(ctx)

	claims, err := p.tokens.ValidateToken(credential)
	if err != nil {
		l.Debug().Err(err).Msg("token rejected")
		return nil, ErrInvalidCredential
	}

	user, err := p.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			l.Warn().Int64(log.FieldUserID, claims.UserID).Msg("token for unknown user")
			return nil, ErrUnknownUser
		}
		l.Error().Err(err).Int64(log.FieldUserID, claims.UserID).Msg("identity lookup failed")
		return nil, fmt.Errorf("%w: %v", ErrIdentityStore, err)
	}

	username := claims.Username
	if username == "" {
		username = user.Name
	}
	return &Principal{
		UserID:    user.ID,
		Username:  username,
		IsAdmin:   user.IsAdmin,
		ExpiresAt: claims.ExpiresAtTime(),
	}, nil
}

// Authenticate resolves the credential carried by r. It returns a nil
// principal and nil error when r carries no credential at all.
func (p *IdentityProvider) Authenticate(ctx context.Context, r *http.Request) (*Principal, error) {
	credential, present := Credential(r)
	if !present {
		return nil, nil
	}
	if credential == "" {
		return nil, ErrInvalidCredential
	}
	return p.Resolve(ctx, credential)
}

// ValidateBearer adapts Resolve to the REST middleware.
func (p *IdentityProvider) ValidateBearer(ctx context.Context, token string) (*middleware.Identity, error) {
	principal, err := p.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	return &middleware.Identity{
		UserID:   principal.UserID,
		Username: principal.Username,
		IsAdmin:  principal.IsAdmin,
	}, nil
}

// Credential extracts the bearer token from the Authorization header or
// the token query parameter. present is true if either was supplied,
// even malformed.
func Credential(r *http.Request) (token string, present bool) {
	if header := r.Header.Get(middleware.AuthHeaderKey); header != "" {
		token, _ := middleware.BearerToken(header)
		return token, true
	}
	if values, ok := r.URL.Query()[TokenQueryParam]; ok {
		if len(values) == 0 {
			return "", true
		}
		return values[0], true
	}
	return "", false
}
