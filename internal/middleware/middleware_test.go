package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athletix/exchange/internal/auth"
)

func newRouter(mws ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mws...)
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": AuthedUser(c)})
	})
	return r
}

func get(r *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuth(t *testing.T) {
	m := auth.NewManager("secret", time.Hour)
	r := newRouter(RequireAuth(m))

	assert.Equal(t, http.StatusUnauthorized, get(r, "").Code)
	assert.Equal(t, http.StatusBadRequest, get(r, "NotBearer abc").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "Bearer garbage").Code)

	token, err := m.IssueToken("user-7")
	require.NoError(t, err)
	w := get(r, "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user-7")
}

func TestRateLimiter(t *testing.T) {
	r := newRouter(NewRateLimiter(time.Hour).Middleware())

	assert.Equal(t, http.StatusOK, get(r, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "").Code)
}

func TestRateLimiterKeysByAuthedUser(t *testing.T) {
	m := auth.NewManager("secret", time.Hour)
	r := newRouter(RequireAuth(m), NewRateLimiter(time.Hour).Middleware())

	t1, err := m.IssueToken("user-1")
	require.NoError(t, err)
	t2, err := m.IssueToken("user-2")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, get(r, "Bearer "+t1).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "Bearer "+t1).Code)
	assert.Equal(t, http.StatusOK, get(r, "Bearer "+t2).Code, "limits are per user")
}
