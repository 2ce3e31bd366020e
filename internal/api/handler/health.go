package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type componentHealth struct {
	Status    string      `json:"status"`
	LatencyMS int64       `json:"latency_ms"`
	Error     string      `json:"error,omitempty"`
	Detail    interface{} `json:"detail,omitempty"`
}

// Health handles GET /health, the liveness probe.
func (h *Handler) Health(c *gin.Context) {
	respond(c, http.StatusOK, "OK", gin.H{
		"status":  "healthy",
		"version": h.Version,
	})
}

// HealthDetailed handles GET /health/detailed: database, Redis and queue
// checks with per-component latency. Overall status is the worst component.
func (h *Handler) HealthDetailed(c *gin.Context) {
	ctx := c.Request.Context()
	checks := gin.H{}
	healthy := true

	started := time.Now()
	dbCheck := componentHealth{Status: "healthy"}
	sqlDB, err := h.Store.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		dbCheck.Status = "unhealthy"
		dbCheck.Error = err.Error()
		healthy = false
	}
	dbCheck.LatencyMS = time.Since(started).Milliseconds()
	checks["postgres"] = dbCheck

	started = time.Now()
	redisCheck := componentHealth{Status: "healthy"}
	if err := h.Store.Redis.Ping(ctx).Err(); err != nil {
		redisCheck.Status = "unhealthy"
		redisCheck.Error = err.Error()
		healthy = false
	}
	redisCheck.LatencyMS = time.Since(started).Milliseconds()
	checks["redis"] = redisCheck

	started = time.Now()
	queueCheck := componentHealth{Status: "healthy"}
	stats, err := h.Queue.Stats(ctx)
	if err != nil {
		queueCheck.Status = "unhealthy"
		queueCheck.Error = err.Error()
		healthy = false
	} else {
		queueCheck.Detail = stats
	}
	queueCheck.LatencyMS = time.Since(started).Milliseconds()
	checks["queue"] = queueCheck

	overall := "healthy"
	status := http.StatusOK
	if !healthy {
		overall = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"success": healthy,
		"message": overall,
		"data": gin.H{
			"status":   overall,
			"version":  h.Version,
			"services": checks,
		},
	})
}
