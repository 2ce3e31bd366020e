package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"chatmind/backend/internal/api/handler"
	"chatmind/backend/internal/auth"
	"chatmind/backend/internal/billing"
	"chatmind/backend/internal/chat"
	"chatmind/backend/internal/config"
	"chatmind/backend/internal/hub"
	"chatmind/backend/internal/logger"
	"chatmind/backend/internal/models"
	"chatmind/backend/internal/queue"
	"chatmind/backend/internal/storage"
	"chatmind/backend/internal/usage"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupDependencies(cfg *config.Config, appLog *logger.Logger) (*gorm.DB, *redis.Client) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{TranslateError: true})
	if err != nil {
		appLog.Fatal("failed to connect PostgreSQL", "error", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		appLog.Fatal("failed to connect Redis", "error", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Chatroom{},
		&models.Message{},
		&models.Subscription{},
		&models.BillingEvent{},
	); err != nil {
		appLog.Fatal("failed to run migrations", "error", err)
	}

	appLog.Info("database and redis connections established, migrations complete")
	return db, rdb
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}

	cfg := config.Load()
	appLog, err := logger.New(cfg.Debug)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer appLog.Sync()

	db, rdb := setupDependencies(cfg, appLog)
	store := storage.NewStorageService(db, rdb)

	q := queue.NewRedisQueue(rdb, appLog, queue.Options{
		Name:       cfg.QueueName,
		Visibility: cfg.VisibilityTimeout,
		StateTTL:   cfg.JobStateTTL,
	})

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	authSvc := auth.NewService(store, tokens, appLog, auth.OTPOptions{
		Length:      cfg.OTPLength,
		TTL:         cfg.OTPTTL,
		RateLimit:   cfg.OTPRatePerHour,
		RateWindow:  time.Hour,
		MaxAttempts: cfg.OTPMaxAttempts,
	})

	rooms := chat.NewChatroomService(store, appLog, cfg.ChatroomCacheTTL, cfg.DefaultPageSize, cfg.MaxPageSize)
	messages := chat.NewMessageService(store, q, appLog,
		cfg.MaxMessageLength, cfg.ConversationContextLimit, cfg.DefaultPageSize, cfg.MaxPageSize)

	billingSvc := billing.NewService(store, appLog, cfg.StripeSecretKey, cfg.StripeWebhookSecret, billing.CheckoutConfig{
		PriceID:    cfg.StripePriceIDPro,
		SuccessURL: cfg.CheckoutSuccessURL,
		CancelURL:  cfg.CheckoutCancelURL,
	})
	usageSvc := usage.NewService(store, appLog, usage.Limits{
		Basic: int64(cfg.BasicTierDailyLimit),
		Pro:   int64(cfg.ProTierDailyLimit),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventHub := hub.NewHub(rdb, appLog)
	go eventHub.Run(ctx)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	h := handler.NewHandler(store, authSvc, rooms, messages, billingSvc, usageSvc, eventHub, q, appLog, cfg.Version)
	router := h.Router(handler.RouterConfig{
		CORSOrigins:    cfg.CORSOrigins,
		AuthRateLimit:  cfg.AuthRateLimit,
		AuthRateWindow: cfg.AuthRateWindow,
	})

	server := &http.Server{
		Addr:           cfg.Addr(),
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		appLog.Info("starting API server", "addr", cfg.Addr(), "version", cfg.Version)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	appLog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLog.Error("graceful shutdown failed", "error", err)
	}
}
