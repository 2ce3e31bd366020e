package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents a registered account. Authentication is by mobile number
// and password, with optional OTP-based two-factor login.
type User struct {
	// ID is the unique identifier for the user (UUID).
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	// MobileNumber is the login identity; unique across all users.
	MobileNumber string `gorm:"uniqueIndex;not null" json:"mobile_number"`
	// PasswordHash is a bcrypt hash. Never serialized.
	PasswordHash string `gorm:"not null" json:"-"`
	// FullName is the optional display name.
	FullName string `json:"full_name"`
	// Email is optional; used for Stripe checkout receipts.
	Email string `json:"email"`
	// IsActive marks whether the account can log in.
	IsActive bool `gorm:"default:true" json:"is_active"`
	// TwoFactorEnabled switches login to the OTP flow.
	TwoFactorEnabled bool `gorm:"default:false" json:"two_factor_enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Chatrooms []Chatroom `gorm:"foreignKey:UserID" json:"-"`
}

// BeforeCreate is a GORM hook that assigns a new UUID when the ID is unset.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return
}
