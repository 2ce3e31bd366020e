package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every runtime setting for the API server, the worker and the
// admin CLI. Values come from environment variables (main loads .env through
// godotenv first) with defaults suitable for local development.
type Config struct {
	// App
	AppName string
	Version string
	Host    string
	Port    string
	Debug   bool

	// PostgreSQL / Redis
	DatabaseDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT
	JWTSecret       string
	JWTIssuer       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// OTP
	OTPLength       int
	OTPTTL          time.Duration
	OTPMaxAttempts  int
	OTPRatePerHour  int

	// Subscription tiers (-1 means unlimited)
	BasicTierDailyLimit int
	ProTierDailyLimit   int

	// Cache
	ChatroomCacheTTL time.Duration

	// Pagination
	DefaultPageSize int
	MaxPageSize     int

	// Messages
	MaxMessageLength         int
	ConversationContextLimit int

	// Queue / worker
	QueueName         string
	VisibilityTimeout time.Duration
	JobStateTTL       time.Duration
	ClaimWait         time.Duration
	WorkerConcurrency int
	WorkerMaxAttempts int
	WorkerRetryDelay  time.Duration

	// Completion engine
	LLMBaseURL         string
	LLMAPIKey          string
	LLMModel           string
	LLMMaxTokens       int
	LLMTemperature     float64
	LLMTimeout         time.Duration
	PromptContextTurns int

	// Stripe
	StripeSecretKey     string
	StripePriceIDPro    string
	StripeWebhookSecret string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string

	// HTTP security
	CORSOrigins    []string
	AuthRateLimit  int
	AuthRateWindow time.Duration

	// Ops alerts
	TelegramBotToken  string
	TelegramOpsChatID int64
}

// Load reads the full configuration from the environment.
func Load() *Config {
	return &Config{
		AppName: getEnv("APP_NAME", "chatmind"),
		Version: getEnv("APP_VERSION", "1.0.0"),
		Host:    getEnv("HOST", "0.0.0.0"),
		Port:    getEnv("PORT", "8080"),
		Debug:   getBool("DEBUG", false),

		DatabaseDSN:   getEnv("DATABASE_DSN", "host=localhost user=user password=password dbname=chatminddb port=5432 sslmode=disable"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),

		JWTSecret:       getEnv("JWT_SECRET", "dev-only-change-me"),
		JWTIssuer:       getEnv("JWT_ISSUER", "chatmind-api"),
		AccessTokenTTL:  getMinutes("ACCESS_TOKEN_EXPIRE_MINUTES", 30),
		RefreshTokenTTL: getMinutes("REFRESH_TOKEN_EXPIRE_MINUTES", 7*24*60),

		OTPLength:      getInt("OTP_LENGTH", 6),
		OTPTTL:         getMinutes("OTP_EXPIRE_MINUTES", 5),
		OTPMaxAttempts: getInt("OTP_MAX_ATTEMPTS", 3),
		OTPRatePerHour: getInt("OTP_RATE_LIMIT_PER_HOUR", 5),

		BasicTierDailyLimit: getInt("BASIC_TIER_DAILY_LIMIT", 5),
		ProTierDailyLimit:   getInt("PRO_TIER_DAILY_LIMIT", -1),

		ChatroomCacheTTL: getSeconds("CACHE_TTL_CHATROOMS", 600),

		DefaultPageSize: getInt("DEFAULT_PAGE_SIZE", 10),
		MaxPageSize:     getInt("MAX_PAGE_SIZE", 100),

		MaxMessageLength:         getInt("MAX_MESSAGE_LENGTH", 4000),
		ConversationContextLimit: getInt("CONVERSATION_CONTEXT_LIMIT", 10),

		QueueName:         getEnv("QUEUE_NAME", "llm"),
		VisibilityTimeout: getSeconds("QUEUE_VISIBILITY_TIMEOUT", 3600),
		JobStateTTL:       getSeconds("QUEUE_JOB_STATE_TTL", 3600),
		ClaimWait:         getSeconds("QUEUE_CLAIM_WAIT", 5),
		WorkerConcurrency: getInt("WORKER_CONCURRENCY", 4),
		WorkerMaxAttempts: getInt("WORKER_MAX_ATTEMPTS", 3),
		WorkerRetryDelay:  getSeconds("WORKER_RETRY_DELAY", 10),

		LLMBaseURL:         getEnv("LLM_BASE_URL", ""),
		LLMAPIKey:          getEnv("LLM_API_KEY", ""),
		LLMModel:           getEnv("LLM_MODEL", "meta-llama/llama-4-maverick-instruct"),
		LLMMaxTokens:       getInt("LLM_MAX_TOKENS", 500),
		LLMTemperature:     getFloat("LLM_TEMPERATURE", 0.7),
		LLMTimeout:         getSeconds("LLM_TIMEOUT", 60),
		PromptContextTurns: getInt("PROMPT_CONTEXT_TURNS", 5),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripePriceIDPro:    getEnv("STRIPE_PRICE_ID_PRO", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		CheckoutSuccessURL:  getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/billing/success"),
		CheckoutCancelURL:   getEnv("CHECKOUT_CANCEL_URL", "http://localhost:3000/billing/cancel"),

		CORSOrigins:    getList("CORS_ORIGINS", "http://localhost:3000"),
		AuthRateLimit:  getInt("AUTH_RATE_LIMIT", 20),
		AuthRateWindow: getSeconds("AUTH_RATE_WINDOW", 60),

		TelegramBotToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramOpsChatID: getInt64("TELEGRAM_OPS_CHAT_ID", 0),
	}
}

// Addr returns the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getSeconds(key string, fallback int) time.Duration {
	return time.Duration(getInt(key, fallback)) * time.Second
}

func getMinutes(key string, fallback int) time.Duration {
	return time.Duration(getInt(key, fallback)) * time.Minute
}

// getList splits a comma-separated env value, trimming whitespace around
// each entry.
func getList(key, fallback string) []string {
	raw := getEnv(key, fallback)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
