// Package usage enforces the per-tier daily message quota. Counters live in
// Redis and expire at local midnight, so a day's usage resets on its own.
package usage

import (
	"errors"
	"time"

	"chatmind/backend/internal/logger"
	"chatmind/backend/internal/storage"

	"github.com/google/uuid"
)

// Unlimited disables the quota for a tier.
const Unlimited int64 = -1

// Limits holds the daily message allowance per tier.
type Limits struct {
	Basic int64
	Pro   int64
}

// Decision is the outcome of a quota check, shaped for the 429 payload.
type Decision struct {
	Allowed   bool       `json:"allowed"`
	Used      int64      `json:"current_usage"`
	Limit     int64      `json:"daily_limit"`
	Remaining int64      `json:"remaining"`
	ResetsAt  *time.Time `json:"reset_time,omitempty"`
}

// Service answers "may this user send another message today".
type Service struct {
	store  storage.Storage
	log    *logger.Logger
	limits Limits
}

// NewService Constructor
func NewService(store storage.Storage, log *logger.Logger, limits Limits) *Service {
	return &Service{store: store, log: log, limits: limits}
}

// LimitFor resolves the user's daily limit from their subscription. Users
// without a subscription row, or with a lapsed PRO, are BASIC.
func (s *Service) LimitFor(userID uuid.UUID) (int64, error) {
	sub, err := s.store.GetSubscription(userID)
	if errors.Is(err, storage.ErrNotFound) {
		return s.limits.Basic, nil
	}
	if err != nil {
		return 0, err
	}
	if sub.ActivePro() {
		return s.limits.Pro, nil
	}
	return s.limits.Basic, nil
}

// Check reports whether the user may send another message today.
func (s *Service) Check(userID uuid.UUID) (*Decision, error) {
	limit, err := s.LimitFor(userID)
	if err != nil {
		return nil, err
	}

	used, err := s.store.GetDailyUsage(userID)
	if err != nil {
		return nil, err
	}

	if limit == Unlimited {
		return &Decision{Allowed: true, Used: used, Limit: limit, Remaining: Unlimited}, nil
	}

	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	resetsAt := nextMidnight(time.Now())
	return &Decision{
		Allowed:   used < limit,
		Used:      used,
		Limit:     limit,
		Remaining: remaining,
		ResetsAt:  &resetsAt,
	}, nil
}

// Record counts one sent message and returns the new total for today.
func (s *Service) Record(userID uuid.UUID) (int64, error) {
	n, err := s.store.IncrementDailyUsage(userID)
	if err != nil {
		return 0, err
	}
	s.log.Debug("daily usage recorded", "user_id", userID, "used", n)
	return n, nil
}

// Reset clears today's counter for the user. Admin tooling only.
func (s *Service) Reset(userID uuid.UUID) error {
	return s.store.ResetDailyUsage(userID)
}

// nextMidnight returns the start of the next local day, which is when the
// daily counter key expires.
func nextMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
}
