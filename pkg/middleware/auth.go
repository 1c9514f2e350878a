package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-chat/pkg/response"
)

const (
	UserIDKey     = "user_id"
	UsernameKey   = "username"
	AdminKey      = "is_admin"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// ErrUpstream marks a validator failure that is not the caller's fault,
// such as the user store being unreachable.
var ErrUpstream = errors.New("identity provider unavailable")

// Identity is what a validated bearer token resolves to.
type Identity struct {
	UserID   int64
	Username string
	IsAdmin  bool
}

// TokenValidator resolves a bearer token to an identity.
type TokenValidator interface {
	ValidateBearer(ctx context.Context, token string) (*Identity, error)
}

// AuthMiddleware validates bearer tokens on REST routes.
type AuthMiddleware struct {
	validator TokenValidator
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(validator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, BearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
	return token, token != ""
}

// RequireAuth returns a Gin middleware that validates JWT tokens.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthHeaderKey)
		if authHeader == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}

		token, ok := BearerToken(authHeader)
		if !ok {
			response.Unauthorized(c, "invalid authorization format")
			c.Abort()
			return
		}

		identity, err := m.validator.ValidateBearer(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, ErrUpstream) {
				response.BadGateway(c, "failed to validate token")
			} else {
				response.Unauthorized(c, "invalid or expired token")
			}
			c.Abort()
			return
		}

		c.Set(UserIDKey, identity.UserID)
		c.Set(UsernameKey, identity.Username)
		c.Set(AdminKey, identity.IsAdmin)

		c.Next()
	}
}

// GetUserID extracts user ID from Gin context. Zero means unauthenticated.
func GetUserID(c *gin.Context) int64 {
	if id, exists := c.Get(UserIDKey); exists {
		if v, ok := id.(int64); ok {
			return v
		}
	}
	return 0
}

// GetUsername extracts username from Gin context.
func GetUsername(c *gin.Context) string {
	return c.GetString(UsernameKey)
}

// IsAdmin reports whether the authenticated user is a platform administrator.
func IsAdmin(c *gin.Context) bool {
	return c.GetBool(AdminKey)
}

// RequireAdmin aborts with 403 unless the caller is an administrator.
// It must run after RequireAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAdmin(c) {
			response.Forbidden(c, "administrator only")
			c.Abort()
			return
		}
		c.Next()
	}
}
