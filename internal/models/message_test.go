package models_test

import (
	"reflect"
	"testing"

	"chatmind/backend/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// TestMessageBeforeCreate_GeneratesUUID verifies that the hook populates a
// valid UUID and defaults the status.
func TestMessageBeforeCreate_GeneratesUUID(t *testing.T) {
	// Arrange
	msg := &models.Message{
		ChatroomID: uuid.New(),
		UserID:     uuid.New(),
		Content:    "hello",
		IsFromUser: true,
	}
	assert.Equal(t, uuid.Nil, msg.ID, "ID should be unset before BeforeCreate")

	// Act
	err := msg.BeforeCreate(nil)

	// Assert
	assert.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, msg.ID, "ID must be populated after BeforeCreate")
	assert.Equal(t, models.StatusPending, msg.Status, "new messages default to PENDING")
}

// TestMessageBeforeCreate_PreservesExisting verifies the hook never
// overwrites an explicit ID or status.
func TestMessageBeforeCreate_PreservesExisting(t *testing.T) {
	existingID := uuid.New()
	msg := &models.Message{
		ID:         existingID,
		ChatroomID: uuid.New(),
		UserID:     uuid.New(),
		Content:    "reply",
		IsFromUser: false,
		Status:     models.StatusCompleted,
	}

	err := msg.BeforeCreate(nil)

	assert.NoError(t, err)
	assert.Equal(t, existingID, msg.ID)
	assert.Equal(t, models.StatusCompleted, msg.Status, "explicit status must survive the hook")
}

// TestMessageStatus_Terminal covers the terminal/non-terminal split that the
// worker's idempotency guard relies on.
func TestMessageStatus_Terminal(t *testing.T) {
	tests := []struct {
		name     string
		status   models.MessageStatus
		terminal bool
	}{
		{"Pending is not terminal", models.StatusPending, false},
		{"Processing is not terminal", models.StatusProcessing, false},
		{"Completed is terminal", models.StatusCompleted, true},
		{"Failed is terminal", models.StatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.Terminal())
			assert.True(t, tt.status.Valid())
		})
	}
}

// TestMessageStatus_Valid rejects unknown states.
func TestMessageStatus_Valid(t *testing.T) {
	assert.False(t, models.MessageStatus("QUEUED").Valid())
	assert.False(t, models.MessageStatus("").Valid())
}

// TestMessageStructTags guards the tags the store and the API depend on
// (useful for catching accidental tag removal during refactoring).
func TestMessageStructTags(t *testing.T) {
	msgType := reflect.TypeOf(models.Message{})

	idField, found := msgType.FieldByName("ID")
	assert.True(t, found)
	assert.Contains(t, idField.Tag.Get("gorm"), "primaryKey")

	statusField, found := msgType.FieldByName("Status")
	assert.True(t, found)
	assert.Contains(t, statusField.Tag.Get("gorm"), "index", "status is queried by the pipeline and must stay indexed")

	parentField, found := msgType.FieldByName("ParentMessageID")
	assert.True(t, found)
	assert.Contains(t, parentField.Tag.Get("json"), "omitempty", "user messages must not serialize a null parent")

	hashField, found := reflect.TypeOf(models.User{}).FieldByName("PasswordHash")
	assert.True(t, found)
	assert.Equal(t, "-", hashField.Tag.Get("json"), "password hash must never be serialized")
}

// TestSubscription_ActivePro covers tier resolution edge cases.
func TestSubscription_ActivePro(t *testing.T) {
	tests := []struct {
		name string
		sub  *models.Subscription
		want bool
	}{
		{"Nil subscription is basic", nil, false},
		{"Active pro", &models.Subscription{Tier: models.TierPro, Status: "active"}, true},
		{"Trialing pro", &models.Subscription{Tier: models.TierPro, Status: "trialing"}, true},
		{"Canceled pro", &models.Subscription{Tier: models.TierPro, Status: "canceled"}, false},
		{"Active basic", &models.Subscription{Tier: models.TierBasic, Status: "active"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sub.ActivePro())
		})
	}
}

// BenchmarkMessageBeforeCreate measures UUID generation overhead on the
// submit hot path.
func BenchmarkMessageBeforeCreate(b *testing.B) {
	msg := &models.Message{
		ChatroomID: uuid.New(),
		UserID:     uuid.New(),
		Content:    "bench",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		msg.ID = uuid.Nil
		_ = msg.BeforeCreate(nil)
	}
}
