package storage

import (
	"errors"

	"chatmind/backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (s *Service) CreateMessage(msg *models.Message) error {
	return s.DB.Create(msg).Error
}

func (s *Service) GetMessage(id uuid.UUID) (*models.Message, error) {
	var msg models.Message
	err := s.DB.First(&msg, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetMessageForOwner loads a message only when userID owns the chatroom it
// lives in. Used by the status query so one tenant can never observe
// another tenant's pipeline state.
func (s *Service) GetMessageForOwner(id, userID uuid.UUID) (*models.Message, error) {
	var msg models.Message
	err := s.DB.
		Joins("JOIN chatrooms ON chatrooms.id = messages.chatroom_id").
		Where("messages.id = ? AND chatrooms.user_id = ? AND chatrooms.is_deleted = ?", id, userID, false).
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetReplyFor returns the AI reply whose parent is messageID, or ErrNotFound
// when no reply exists yet.
func (s *Service) GetReplyFor(messageID uuid.UUID) (*models.Message, error) {
	var reply models.Message
	err := s.DB.
		Where("parent_message_id = ?", messageID).
		Order("created_at asc").
		First(&reply).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

// ListMessages returns one page of a chatroom's messages in chronological
// order.
func (s *Service) ListMessages(chatroomID uuid.UUID, offset, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := s.DB.
		Where("chatroom_id = ?", chatroomID).
		Order("created_at asc").
		Offset(offset).
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListUserMessagesWithReplies returns every user-authored message in the
// chatroom with its Children preloaded, oldest first. Backs the
// conversation-pairs view.
func (s *Service) ListUserMessagesWithReplies(chatroomID uuid.UUID) ([]models.Message, error) {
	var msgs []models.Message
	err := s.DB.
		Preload("Children").
		Where("chatroom_id = ? AND is_from_user = ? AND parent_message_id IS NULL", chatroomID, true).
		Order("created_at asc").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// RecentMessages returns up to limit messages from the chatroom, newest
// first, skipping excludeID (the just-submitted message must not appear in
// its own context window). Callers reverse the slice when they need
// chronological order.
func (s *Service) RecentMessages(chatroomID, excludeID uuid.UUID, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := s.DB.
		Where("chatroom_id = ? AND id <> ?", chatroomID, excludeID).
		Order("created_at desc").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// SetMessageJobID records the transport job identifier on the message row.
// It deliberately does not touch the status: PENDING -> PROCESSING is owned
// by the worker, so a job lost before any claim leaves the message PENDING.
func (s *Service) SetMessageJobID(id uuid.UUID, jobID string) error {
	return s.DB.Model(&models.Message{}).
		Where("id = ?", id).
		Update("job_id", jobID).Error
}

// MarkMessageProcessing performs the guarded PENDING/PROCESSING -> PROCESSING
// transition. Returns false when the message is missing or already terminal;
// re-marking an in-flight message is allowed so crash redeliveries can
// resume processing.
func (s *Service) MarkMessageProcessing(id uuid.UUID) (bool, error) {
	res := s.DB.Model(&models.Message{}).
		Where("id = ? AND status IN ?", id, []models.MessageStatus{models.StatusPending, models.StatusProcessing}).
		Update("status", models.StatusProcessing)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CompleteMessageWithReply flips the user message to COMPLETED and persists
// the AI reply in a single transaction, so a crash can never leave a
// COMPLETED message without its reply. When the message already reached a
// terminal state (duplicate delivery racing us) nothing is written and
// ErrMessageTerminal is returned.
func (s *Service) CompleteMessageWithReply(id uuid.UUID, reply *models.Message) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Message{}).
			Where("id = ? AND status IN ?", id, []models.MessageStatus{models.StatusPending, models.StatusProcessing}).
			Update("status", models.StatusCompleted)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrMessageTerminal
		}
		return tx.Create(reply).Error
	})
}

// MarkMessageFailed performs the guarded transition to FAILED, retaining the
// failure reason. Returns false when the message is missing or already
// terminal (terminal states absorb late failure attempts).
func (s *Service) MarkMessageFailed(id uuid.UUID, reason string) (bool, error) {
	res := s.DB.Model(&models.Message{}).
		Where("id = ? AND status IN ?", id, []models.MessageStatus{models.StatusPending, models.StatusProcessing}).
		Updates(map[string]interface{}{
			"status":        models.StatusFailed,
			"error_message": reason,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
