package storage

import (
	"context"
	"errors"
	"time"

	"chatmind/backend/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when the requested row does not exist or the
	// caller is not allowed to see it.
	ErrNotFound = errors.New("record not found")
	// ErrMessageTerminal is returned by guarded status transitions when the
	// message already reached COMPLETED or FAILED.
	ErrMessageTerminal = errors.New("message already in terminal state")
)

type Storage interface {
	// Users
	CreateUser(user *models.User) error
	GetUserByID(id uuid.UUID) (*models.User, error)
	GetUserByMobile(mobile string) (*models.User, error)
	UpdateUser(user *models.User) error

	// Chatrooms
	CreateChatroom(room *models.Chatroom) error
	GetChatroomForUser(id, userID uuid.UUID) (*models.Chatroom, error)
	ListChatrooms(userID uuid.UUID, offset, limit int) ([]models.Chatroom, int64, error)
	UpdateChatroom(room *models.Chatroom) error
	SoftDeleteChatroom(id, userID uuid.UUID) error

	// Messages
	CreateMessage(msg *models.Message) error
	GetMessage(id uuid.UUID) (*models.Message, error)
	GetMessageForOwner(id, userID uuid.UUID) (*models.Message, error)
	GetReplyFor(messageID uuid.UUID) (*models.Message, error)
	ListMessages(chatroomID uuid.UUID, offset, limit int) ([]models.Message, error)
	ListUserMessagesWithReplies(chatroomID uuid.UUID) ([]models.Message, error)
	RecentMessages(chatroomID, excludeID uuid.UUID, limit int) ([]models.Message, error)
	SetMessageJobID(id uuid.UUID, jobID string) error
	MarkMessageProcessing(id uuid.UUID) (bool, error)
	CompleteMessageWithReply(id uuid.UUID, reply *models.Message) error
	MarkMessageFailed(id uuid.UUID, reason string) (bool, error)

	// Subscriptions / billing
	GetSubscription(userID uuid.UUID) (*models.Subscription, error)
	UpsertSubscription(sub *models.Subscription) error
	GetSubscriptionByStripeID(stripeSubID string) (*models.Subscription, error)
	RecordBillingEvent(event *models.BillingEvent) (bool, error)

	// Redis: OTP
	StoreOTP(purpose, mobile, code string, ttl time.Duration) error
	GetOTP(purpose, mobile string) (string, error)
	DeleteOTP(purpose, mobile string) error
	OTPTTL(purpose, mobile string) (time.Duration, error)
	IncrementOTPRate(purpose, mobile string, window time.Duration) (int64, error)
	GetOTPRate(purpose, mobile string) (int64, error)

	// Redis: usage counters
	IncrementDailyUsage(userID uuid.UUID) (int64, error)
	GetDailyUsage(userID uuid.UUID) (int64, error)
	ResetDailyUsage(userID uuid.UUID) error

	// Redis: chatroom list cache
	CacheChatroomList(userID uuid.UUID, payload string, ttl time.Duration) error
	GetCachedChatroomList(userID uuid.UUID) (string, bool, error)
	InvalidateChatroomCache(userID uuid.UUID) error

	// Redis: token blacklist
	BlacklistToken(token string, ttl time.Duration) error
	IsTokenBlacklisted(token string) (bool, error)
}

// Service is the concrete Storage backed by PostgreSQL (GORM) and Redis.
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
	Ctx   context.Context
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
		Ctx:   context.Background(),
	}
}

// CreateUser persists a new user. A duplicate mobile number surfaces as
// gorm.ErrDuplicatedKey (TranslateError must be enabled on the DB handle).
func (s *Service) CreateUser(user *models.User) error {
	return s.DB.Create(user).Error
}

func (s *Service) GetUserByID(id uuid.UUID) (*models.User, error) {
	var user models.User
	err := s.DB.First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Service) GetUserByMobile(mobile string) (*models.User, error) {
	var user models.User
	err := s.DB.First(&user, "mobile_number = ?", mobile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Service) UpdateUser(user *models.User) error {
	return s.DB.Save(user).Error
}

// GetSubscription returns the user's subscription row, or ErrNotFound when
// the user never subscribed (which callers treat as BASIC).
func (s *Service) GetSubscription(userID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.DB.First(&sub, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *Service) GetSubscriptionByStripeID(stripeSubID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.DB.First(&sub, "stripe_subscription_id = ?", stripeSubID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// UpsertSubscription creates or updates the single subscription row for
// sub.UserID.
func (s *Service) UpsertSubscription(sub *models.Subscription) error {
	var existing models.Subscription
	err := s.DB.First(&existing, "user_id = ?", sub.UserID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.DB.Create(sub).Error
	}
	if err != nil {
		return err
	}
	sub.ID = existing.ID
	sub.CreatedAt = existing.CreatedAt
	return s.DB.Save(sub).Error
}

// RecordBillingEvent inserts the webhook event row. Returns false when the
// event ID was already recorded (replayed delivery), true when this is the
// first time we see it.
func (s *Service) RecordBillingEvent(event *models.BillingEvent) (bool, error) {
	err := s.DB.Create(event).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
