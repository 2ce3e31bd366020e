package middleware_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chatmind/backend/internal/api/middleware"
	"chatmind/backend/internal/logger"
	"chatmind/backend/internal/usage"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// authFunc adapts a function to the Authenticator interface.
type authFunc func(token string) (uuid.UUID, error)

func (f authFunc) Authenticate(token string) (uuid.UUID, error) { return f(token) }

func TestRequireAuth(t *testing.T) {
	userID := uuid.New()
	auth := authFunc(func(token string) (uuid.UUID, error) {
		if token == "good-token" {
			return userID, nil
		}
		return uuid.Nil, errors.New("invalid token")
	})

	var seen uuid.UUID
	r := gin.New()
	r.GET("/protected", middleware.RequireAuth(auth), func(c *gin.Context) {
		id, ok := middleware.UserID(c)
		require.True(t, ok)
		seen = id
		c.Status(http.StatusOK)
	})

	// No token at all.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Wrong token.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Valid bearer header.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, userID, seen)

	// Websocket clients pass the token as a query parameter.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/protected?token=good-token", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

// fakeQuota scripts quota decisions and records usage calls.
type fakeQuota struct {
	decision *usage.Decision
	err      error
	recorded int
}

func (f *fakeQuota) Check(uuid.UUID) (*usage.Decision, error) { return f.decision, f.err }
func (f *fakeQuota) Record(uuid.UUID) (int64, error) {
	f.recorded++
	return int64(f.recorded), nil
}

func quotaRouter(q *fakeQuota, handlerStatus int) *gin.Engine {
	auth := authFunc(func(string) (uuid.UUID, error) { return uuid.New(), nil })
	r := gin.New()
	r.POST("/message",
		middleware.RequireAuth(auth),
		middleware.EnforceQuota(q, logger.NewNop()),
		func(c *gin.Context) { c.Status(handlerStatus) },
	)
	return r
}

func postMessage(r *gin.Engine) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/message", nil)
	req.Header.Set("Authorization", "Bearer any")
	r.ServeHTTP(w, req)
	return w
}

func TestEnforceQuota_RecordsAfterSuccess(t *testing.T) {
	q := &fakeQuota{decision: &usage.Decision{Allowed: true, Used: 1, Limit: 5, Remaining: 4}}
	r := quotaRouter(q, http.StatusCreated)

	w := postMessage(r)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, q.recorded)
}

func TestEnforceQuota_RejectsWhenExhausted(t *testing.T) {
	q := &fakeQuota{decision: &usage.Decision{Allowed: false, Used: 5, Limit: 5}}
	r := quotaRouter(q, http.StatusCreated)

	w := postMessage(r)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "daily_limit")
	assert.Equal(t, 0, q.recorded, "rejected requests must not consume quota")
}

func TestEnforceQuota_SkipsRecordOnHandlerFailure(t *testing.T) {
	q := &fakeQuota{decision: &usage.Decision{Allowed: true, Used: 0, Limit: 5, Remaining: 5}}
	r := quotaRouter(q, http.StatusBadRequest)

	w := postMessage(r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, q.recorded, "failed submissions must cost nothing")
}

func TestEnforceQuota_FailsOpenOnBackendError(t *testing.T) {
	q := &fakeQuota{err: errors.New("redis down")}
	r := quotaRouter(q, http.StatusCreated)

	w := postMessage(r)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 0, q.recorded)
}

func TestIPRateLimiter_SlidingWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	rl := middleware.NewIPRateLimiter(rdb, logger.NewNop(), 2, time.Minute)
	r := gin.New()
	r.POST("/auth/login", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	hit := func(ip string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.Header.Set("X-Forwarded-For", ip)
		r.ServeHTTP(w, req)
		return w
	}

	w := hit("10.0.0.1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	w = hit("10.0.0.1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = hit("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// A different client is unaffected.
	w = hit("10.0.0.2")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.GET("/", middleware.SecurityHeaders(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "default-src 'none'", w.Header().Get("Content-Security-Policy"))
	assert.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))
}
