package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type stubValidator struct {
	identity *Identity
	err      error
}

func (s stubValidator) ValidateBearer(context.Context, string) (*Identity, error) {
	return s.identity, s.err
}

func newRouter(v TokenValidator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	m := NewAuthMiddleware(v)
	r.GET("/me", m.RequireAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": GetUserID(c), "admin": IsAdmin(c)})
	})
	r.GET("/admin", m.RequireAuth(), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func do(r http.Handler, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set(AuthHeaderKey, auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuth(t *testing.T) {
	ok := newRouter(stubValidator{identity: &Identity{UserID: 42}})

	assert.Equal(t, http.StatusUnauthorized, do(ok, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(ok, "/me", "Basic abc").Code)

	w := do(ok, "/me", "Bearer good")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":42,"admin":false}`, w.Body.String())

	assert.Equal(t, http.StatusForbidden, do(ok, "/admin", "Bearer good").Code)
}

func TestRequireAuthValidatorErrors(t *testing.T) {
	bad := newRouter(stubValidator{err: errors.New("bad signature")})
	assert.Equal(t, http.StatusUnauthorized, do(bad, "/me", "Bearer x").Code)

	down := newRouter(stubValidator{err: ErrUpstream})
	assert.Equal(t, http.StatusBadGateway, do(down, "/me", "Bearer x").Code)
}

func TestBearerToken(t *testing.T) {
	tok, ok := BearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	_, ok = BearerToken("Bearer ")
	assert.False(t, ok)
}
