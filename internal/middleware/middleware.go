package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/athletix/exchange/internal/auth"
)

// UserIDKey is the gin context key the auth middleware stores the
// authenticated user id under.
const UserIDKey = "auth_user_id"

// RateLimiter allows one request per client per limit window.
type RateLimiter struct {
	clients map[string]time.Time
	mu      sync.Mutex
	limit   time.Duration
}

func NewRateLimiter(limit time.Duration) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]time.Time),
		limit:   limit,
	}
}

func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.ClientIP()
		if id, ok := c.Get(UserIDKey); ok {
			clientID = id.(string)
		}
		r.mu.Lock()
		last, exists := r.clients[clientID]
		if exists && time.Since(last) < r.limit {
			r.mu.Unlock()
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}
		r.clients[clientID] = time.Now()
		r.mu.Unlock()
		c.Next()
	}
}

// RequireAuth verifies the Authorization bearer token and stores the user id
// in the request context.
func RequireAuth(m *auth.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication token is missing"})
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed token header"})
			c.Abort()
			return
		}
		userID, err := m.VerifyToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token is invalid"})
			c.Abort()
			return
		}
		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// AuthedUser returns the user id set by RequireAuth.
func AuthedUser(c *gin.Context) string {
	id, _ := c.Get(UserIDKey)
	s, _ := id.(string)
	return s
}
