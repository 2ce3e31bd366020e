package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageStatus is the lifecycle state of a message in the pipeline.
// Transitions are monotonic: PENDING -> PROCESSING -> COMPLETED | FAILED,
// and nothing ever leaves a terminal state.
type MessageStatus string

const (
	StatusPending    MessageStatus = "PENDING"
	StatusProcessing MessageStatus = "PROCESSING"
	StatusCompleted  MessageStatus = "COMPLETED"
	StatusFailed     MessageStatus = "FAILED"
)

// Terminal reports whether no further transition is valid from s.
func (s MessageStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the four known states.
func (s MessageStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Message is a single unit of conversation content. User-authored messages
// never have a parent; an AI reply has exactly one parent (the user message
// it answers) and is created directly in COMPLETED state.
type Message struct {
	// ID is the unique identifier for the message (UUID).
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	// ChatroomID is the room this message belongs to.
	ChatroomID uuid.UUID `gorm:"type:uuid;not null;index" json:"chatroom_id"`
	// UserID is the account the message belongs to (also set on AI replies,
	// so per-user queries stay simple).
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	// ParentMessageID links an AI reply back to the user message it answers.
	ParentMessageID *uuid.UUID `gorm:"type:uuid;index" json:"parent_message_id,omitempty"`
	// Content is the message text.
	Content string `gorm:"type:text;not null" json:"content"`
	// IsFromUser distinguishes user-authored from AI-authored messages.
	IsFromUser bool `gorm:"default:true" json:"is_from_user"`
	// Status is the pipeline state. Only meaningful for user messages; AI
	// replies are born COMPLETED.
	Status MessageStatus `gorm:"type:text;not null;default:'PENDING';index" json:"status"`
	// JobID is the transport job identifier recorded at enqueue time.
	JobID *string `gorm:"index" json:"job_id,omitempty"`
	// ErrorMessage holds the human-readable failure reason once a message
	// reaches FAILED.
	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`

	Parent   *Message  `gorm:"foreignKey:ParentMessageID" json:"-"`
	Children []Message `gorm:"foreignKey:ParentMessageID" json:"-"`
}

// BeforeCreate assigns a new UUID when the ID is unset and defaults the
// status to PENDING.
func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Status == "" {
		m.Status = StatusPending
	}
	return
}
