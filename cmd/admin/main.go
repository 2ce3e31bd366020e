package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"chatmind/backend/internal/config"
	"chatmind/backend/internal/logger"
	"chatmind/backend/internal/models"
	"chatmind/backend/internal/queue"
	"chatmind/backend/internal/storage"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	godotenv.Load()
	cfg := config.Load()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	store := storage.NewStorageService(db, rdb)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "upgrade":
		if len(os.Args) != 4 {
			fmt.Println("Usage: admin upgrade <user_id> <BASIC|PRO>")
			os.Exit(1)
		}
		userID := mustUserID(os.Args[2])
		tier := models.SubscriptionTier(strings.ToUpper(os.Args[3]))
		if tier != models.TierBasic && tier != models.TierPro {
			fmt.Println("Invalid tier. Use BASIC or PRO.")
			os.Exit(1)
		}
		if err := setTier(store, userID, tier, "active"); err != nil {
			log.Fatalf("Error upgrading user: %v", err)
		}
		fmt.Printf("User %s is now on tier %s.\n", userID, tier)

	case "downgrade":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin downgrade <user_id>")
			os.Exit(1)
		}
		userID := mustUserID(os.Args[2])
		if err := setTier(store, userID, models.TierBasic, "canceled"); err != nil {
			log.Fatalf("Error downgrading user: %v", err)
		}
		fmt.Printf("User %s downgraded to BASIC.\n", userID)

	case "usage":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin usage <user_id>")
			os.Exit(1)
		}
		userID := mustUserID(os.Args[2])
		used, err := store.GetDailyUsage(userID)
		if err != nil {
			log.Fatalf("Error reading usage: %v", err)
		}
		fmt.Printf("User %s has sent %d messages today.\n", userID, used)

	case "reset-usage":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin reset-usage <user_id>")
			os.Exit(1)
		}
		userID := mustUserID(os.Args[2])
		if err := store.ResetDailyUsage(userID); err != nil {
			log.Fatalf("Error resetting usage: %v", err)
		}
		fmt.Printf("Daily usage for user %s has been reset.\n", userID)

	case "queue-stats":
		q := queue.NewRedisQueue(rdb, logger.NewNop(), queue.Options{Name: cfg.QueueName})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		stats, err := q.Stats(ctx)
		if err != nil {
			log.Fatalf("Error reading queue stats: %v", err)
		}
		fmt.Printf("pending=%d processing=%d delayed=%d dead=%d\n",
			stats.Pending, stats.Processing, stats.Delayed, stats.Dead)

	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: admin <command> [args]")
	fmt.Println("Commands:")
	fmt.Println("  upgrade <user_id> <BASIC|PRO>   set a user's tier manually")
	fmt.Println("  downgrade <user_id>             revert a user to BASIC")
	fmt.Println("  usage <user_id>                 show today's message count")
	fmt.Println("  reset-usage <user_id>           clear today's message count")
	fmt.Println("  queue-stats                     show queue depths")
}

func mustUserID(raw string) uuid.UUID {
	id, err := uuid.Parse(raw)
	if err != nil {
		fmt.Println("Invalid user ID. Please provide a UUID.")
		os.Exit(1)
	}
	return id
}

func setTier(s storage.Storage, userID uuid.UUID, tier models.SubscriptionTier, status string) error {
	if _, err := s.GetUserByID(userID); err != nil {
		return err
	}

	sub, err := s.GetSubscription(userID)
	if errors.Is(err, storage.ErrNotFound) {
		sub = &models.Subscription{UserID: userID}
	} else if err != nil {
		return err
	}

	sub.Tier = tier
	sub.Status = status
	return s.UpsertSubscription(sub)
}
