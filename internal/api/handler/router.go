package handler

import (
	"time"

	"chatmind/backend/internal/api/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig carries the HTTP-layer knobs the handlers do not own.
type RouterConfig struct {
	CORSOrigins    []string
	AuthRateLimit  int
	AuthRateWindow time.Duration
}

// Router assembles the gin engine: global middleware, public routes, the
// rate-limited /auth group and the JWT-protected application routes.
func (h *Handler) Router(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(h.Log))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.Metrics())

	r.GET("/health", h.Health)
	r.GET("/health/detailed", h.HealthDetailed)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Stripe authenticates with its signature header, not a JWT.
	r.POST("/webhook/stripe", h.StripeWebhook)

	limiter := middleware.NewIPRateLimiter(h.Store.Redis, h.Log, cfg.AuthRateLimit, cfg.AuthRateWindow)
	authGroup := r.Group("/auth", limiter.Middleware())
	{
		authGroup.POST("/signup", h.Signup)
		authGroup.POST("/login", h.Login)
		authGroup.POST("/verify-otp", h.VerifyOTP)
		authGroup.POST("/forgot-password", h.ForgotPassword)
		authGroup.POST("/reset-password", h.ResetPassword)
		authGroup.POST("/refresh", h.Refresh)
		authGroup.POST("/change-password", middleware.RequireAuth(h.Auth), h.ChangePassword)
		authGroup.POST("/logout", middleware.RequireAuth(h.Auth), h.Logout)
	}

	authed := r.Group("/", middleware.RequireAuth(h.Auth))
	{
		authed.GET("/user/me", h.CurrentUser)
		authed.PUT("/user/me", h.UpdateProfile)

		authed.POST("/chatroom", h.CreateChatroom)
		authed.GET("/chatroom", h.ListChatrooms)
		authed.GET("/chatroom/:id", h.GetChatroom)
		authed.PUT("/chatroom/:id", h.UpdateChatroom)
		authed.DELETE("/chatroom/:id", h.DeleteChatroom)
		authed.GET("/chatroom/:id/conversation", h.Conversation)
		authed.POST("/chatroom/:id/message", middleware.EnforceQuota(h.Usage, h.Log), h.SubmitMessage)
		authed.GET("/chatroom/:id/message/:message_id/status", h.MessageStatus)
		authed.GET("/chatroom/job/:job_id", h.JobStatus)

		authed.POST("/subscribe/pro", h.SubscribePro)
		authed.GET("/subscription/status", h.SubscriptionStatus)

		authed.GET("/ws", h.ServeWebSocket)
	}

	return r
}
