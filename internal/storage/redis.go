package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis key layout:
//
//	otp:{purpose}:{mobile}        one-time code, TTL = OTP lifetime
//	otp_rate:{purpose}:{mobile}   request counter, TTL = rate window
//	usage:daily:{user}:{date}     message counter, expires at local midnight
//	user:{user}:chatrooms         cached chatroom list JSON
//	blacklist:{token}             revoked JWT marker, TTL = remaining life

func otpKey(purpose, mobile string) string {
	return fmt.Sprintf("otp:%s:%s", purpose, mobile)
}

func otpRateKey(purpose, mobile string) string {
	return fmt.Sprintf("otp_rate:%s:%s", purpose, mobile)
}

func dailyUsageKey(userID uuid.UUID, now time.Time) string {
	return fmt.Sprintf("usage:daily:%s:%s", userID, now.Format("2006-01-02"))
}

func chatroomCacheKey(userID uuid.UUID) string {
	return fmt.Sprintf("user:%s:chatrooms", userID)
}

func blacklistKey(token string) string {
	return "blacklist:" + token
}

// --- OTP ---

func (s *Service) StoreOTP(purpose, mobile, code string, ttl time.Duration) error {
	return s.Redis.SetEx(s.Ctx, otpKey(purpose, mobile), code, ttl).Err()
}

// GetOTP returns the stored code, or ErrNotFound when it expired or was
// never issued.
func (s *Service) GetOTP(purpose, mobile string) (string, error) {
	code, err := s.Redis.Get(s.Ctx, otpKey(purpose, mobile)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return code, nil
}

func (s *Service) DeleteOTP(purpose, mobile string) error {
	return s.Redis.Del(s.Ctx, otpKey(purpose, mobile)).Err()
}

func (s *Service) OTPTTL(purpose, mobile string) (time.Duration, error) {
	ttl, err := s.Redis.TTL(s.Ctx, otpKey(purpose, mobile)).Result()
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// IncrementOTPRate bumps the per-mobile request counter, starting the rate
// window on the first request.
func (s *Service) IncrementOTPRate(purpose, mobile string, window time.Duration) (int64, error) {
	key := otpRateKey(purpose, mobile)
	n, err := s.Redis.Incr(s.Ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := s.Redis.Expire(s.Ctx, key, window).Err(); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (s *Service) GetOTPRate(purpose, mobile string) (int64, error) {
	n, err := s.Redis.Get(s.Ctx, otpRateKey(purpose, mobile)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// --- Usage counters ---

// IncrementDailyUsage bumps today's message counter for the user. The first
// increment of the day sets the key to expire at local midnight, so quotas
// reset without a cron job.
func (s *Service) IncrementDailyUsage(userID uuid.UUID) (int64, error) {
	now := time.Now()
	key := dailyUsageKey(userID, now)
	n, err := s.Redis.Incr(s.Ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := s.Redis.Expire(s.Ctx, key, untilMidnight(now)).Err(); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (s *Service) GetDailyUsage(userID uuid.UUID) (int64, error) {
	n, err := s.Redis.Get(s.Ctx, dailyUsageKey(userID, time.Now())).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Service) ResetDailyUsage(userID uuid.UUID) error {
	return s.Redis.Del(s.Ctx, dailyUsageKey(userID, time.Now())).Err()
}

func untilMidnight(now time.Time) time.Duration {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	return midnight.Sub(now)
}

// --- Chatroom list cache ---

func (s *Service) CacheChatroomList(userID uuid.UUID, payload string, ttl time.Duration) error {
	return s.Redis.SetEx(s.Ctx, chatroomCacheKey(userID), payload, ttl).Err()
}

// GetCachedChatroomList returns the cached JSON and whether it was a hit.
func (s *Service) GetCachedChatroomList(userID uuid.UUID) (string, bool, error) {
	payload, err := s.Redis.Get(s.Ctx, chatroomCacheKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return payload, true, nil
}

func (s *Service) InvalidateChatroomCache(userID uuid.UUID) error {
	return s.Redis.Del(s.Ctx, chatroomCacheKey(userID)).Err()
}

// --- Token blacklist ---

func (s *Service) BlacklistToken(token string, ttl time.Duration) error {
	if ttl <= 0 {
		// Already expired, nothing to revoke.
		return nil
	}
	return s.Redis.SetEx(s.Ctx, blacklistKey(token), "1", ttl).Err()
}

func (s *Service) IsTokenBlacklisted(token string) (bool, error) {
	_, err := s.Redis.Get(s.Ctx, blacklistKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
