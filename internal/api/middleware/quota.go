package middleware

import (
	"net/http"

	"chatmind/backend/internal/logger"
	"chatmind/backend/internal/metrics"
	"chatmind/backend/internal/usage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// QuotaService answers and records daily usage. Implemented by
// usage.Service.
type QuotaService interface {
	Check(userID uuid.UUID) (*usage.Decision, error)
	Record(userID uuid.UUID) (int64, error)
}

// EnforceQuota gates message submission on the caller's daily allowance.
// The check runs before the handler; usage is recorded only after a 2xx
// response, so rejected and failed submissions cost nothing. Must run after
// RequireAuth. A broken quota backend fails open.
func EnforceQuota(q QuotaService, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "missing or invalid token",
			})
			return
		}

		decision, err := q.Check(userID)
		if err != nil {
			log.Warn("quota check failed, allowing request", "user_id", userID, "error", err)
			c.Next()
			return
		}

		if !decision.Allowed {
			metrics.QuotaRejections.Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": "daily message limit reached",
				"data":    decision,
			})
			return
		}

		c.Next()

		status := c.Writer.Status()
		if status >= 200 && status < 300 {
			if _, err := q.Record(userID); err != nil {
				log.Warn("failed to record usage", "user_id", userID, "error", err)
			}
		}
	}
}
