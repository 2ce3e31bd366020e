package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BillingEvent records a processed Stripe webhook delivery. The unique
// EventID makes replayed deliveries detectable, so webhook handling stays
// idempotent.
type BillingEvent struct {
	gorm.Model

	// EventID is the Stripe event identifier (evt_...).
	EventID string `gorm:"uniqueIndex;not null"`
	// Type is the Stripe event type, e.g. "checkout.session.completed".
	Type string `gorm:"not null"`
	// Payload is the raw event body as received.
	Payload datatypes.JSON `gorm:"type:jsonb"`
}
