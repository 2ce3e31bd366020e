package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Chatroom is a conversation container owned by a single user. All message
// access is scoped through chatroom ownership.
type Chatroom struct {
	// ID is the unique identifier for the chatroom (UUID).
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	// Title is the user-facing name of the room.
	Title string `gorm:"not null" json:"title"`
	// Description is optional free text.
	Description string `json:"description"`
	// UserID is the owner; non-owners must never observe this room.
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	// IsDeleted soft-deletes the room; deleted rooms are invisible to every
	// query path.
	IsDeleted bool `gorm:"default:false" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Messages []Message `gorm:"foreignKey:ChatroomID" json:"-"`
}

// BeforeCreate assigns a new UUID when the ID is unset.
func (c *Chatroom) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return
}
