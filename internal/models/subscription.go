package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SubscriptionTier is the plan a user is on. BASIC is the free default with
// a daily message quota; PRO lifts the quota.
type SubscriptionTier string

const (
	TierBasic SubscriptionTier = "BASIC"
	TierPro   SubscriptionTier = "PRO"
)

// Subscription tracks a user's Stripe subscription state. At most one row
// per user; users without a row are BASIC.
type Subscription struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	// UserID is the owning account.
	UserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	// Tier is the current plan.
	Tier SubscriptionTier `gorm:"type:text;not null;default:'BASIC'" json:"tier"`
	// StripeCustomerID and StripeSubscriptionID mirror the Stripe objects.
	StripeCustomerID     string `gorm:"index" json:"-"`
	StripeSubscriptionID string `gorm:"index" json:"-"`
	// Status is the Stripe subscription status (active, canceled, past_due...).
	Status string `json:"status"`

	CurrentPeriodStart *time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns a new UUID when the ID is unset.
func (s *Subscription) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return
}

// ActivePro reports whether this subscription currently grants PRO limits.
func (s *Subscription) ActivePro() bool {
	if s == nil {
		return false
	}
	return s.Tier == TierPro && (s.Status == "active" || s.Status == "trialing")
}
