package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"chatmind/backend/internal/alerts"
	"chatmind/backend/internal/config"
	"chatmind/backend/internal/hub"
	"chatmind/backend/internal/llm"
	"chatmind/backend/internal/logger"
	"chatmind/backend/internal/pipeline"
	"chatmind/backend/internal/queue"
	"chatmind/backend/internal/storage"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const maintenanceInterval = 15 * time.Second

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

	// Schema migrations belong to the API process; the worker expects the
	// tables to exist already.
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

	store := storage.NewStorageService(db, rdb)
	q := queue.NewRedisQueue(rdb, appLog, queue.Options{
		Name:       cfg.QueueName,
		Visibility: cfg.VisibilityTimeout,
		StateTTL:   cfg.JobStateTTL,
	})

	engine, err := llm.NewEngine(llm.EngineConfig{
		BaseURL:     cfg.LLMBaseURL,
		APIKey:      cfg.LLMAPIKey,
		Model:       cfg.LLMModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
		Timeout:     cfg.LLMTimeout,
	})
	if err != nil {
		appLog.Fatal("failed to create completion engine", "error", err)
	}

	var notifier alerts.Notifier = alerts.Nop{}
	if cfg.TelegramBotToken != "" && cfg.TelegramOpsChatID != 0 {
		tg, err := alerts.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramOpsChatID, appLog)
		if err != nil {
			appLog.Warn("telegram alerts disabled", "error", err)
		} else {
			notifier = tg
		}
	}

	publisher := hub.NewPublisher(rdb, appLog)
	processor := pipeline.NewProcessor(store, engine, cfg.PromptContextTurns)
	dispatcher := pipeline.NewDispatcher(q, store, publisher, notifier, appLog, cfg.WorkerMaxAttempts, cfg.WorkerRetryDelay)
	worker := pipeline.NewWorker(q, processor, dispatcher, notifier, appLog, cfg.WorkerConcurrency, cfg.ClaimWait)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go q.RunMaintenance(ctx, maintenanceInterval)

	appLog.Info("worker starting",
		"queue", cfg.QueueName,
		"concurrency", cfg.WorkerConcurrency,
		"max_attempts", cfg.WorkerMaxAttempts)

	worker.Run(ctx)
	appLog.Info("worker stopped")
}
