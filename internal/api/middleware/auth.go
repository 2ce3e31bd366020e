// Package middleware carries the gin middleware chain: JWT auth, per-tier
// usage quotas, the auth-endpoint rate limiter, request logging, security
// headers, CORS and Prometheus instrumentation.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Context keys set by RequireAuth.
const (
	ContextUserID      = "user_id"
	ContextAccessToken = "access_token"
)

// Authenticator validates an access token and returns the user it belongs
// to. Implemented by auth.Service.
type Authenticator interface {
	Authenticate(token string) (uuid.UUID, error)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// authenticated user ID on the context.
func RequireAuth(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "missing or invalid token",
			})
			return
		}

		userID, err := a.Authenticate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "missing or invalid token",
			})
			return
		}

		c.Set(ContextUserID, userID)
		c.Set(ContextAccessToken, token)
		c.Next()
	}
}

// ExtractToken pulls the access token from the Authorization header, or
// from the token query parameter for websocket clients that cannot set
// headers.
func ExtractToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return header[7:]
	}
	return c.Query("token")
}

// UserID returns the authenticated user set by RequireAuth.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// AccessToken returns the raw bearer token set by RequireAuth.
func AccessToken(c *gin.Context) string {
	v, ok := c.Get(ContextAccessToken)
	if !ok {
		return ""
	}
	token, _ := v.(string)
	return token
}
