package storage

import (
	"errors"

	"chatmind/backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (s *Service) CreateChatroom(room *models.Chatroom) error {
	return s.DB.Create(room).Error
}

// GetChatroomForUser loads a chatroom only when userID owns it and it is
// not soft-deleted. Anything else is ErrNotFound, so non-owners cannot tell
// a foreign room from a missing one.
func (s *Service) GetChatroomForUser(id, userID uuid.UUID) (*models.Chatroom, error) {
	var room models.Chatroom
	err := s.DB.
		Where("id = ? AND user_id = ? AND is_deleted = ?", id, userID, false).
		First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// ListChatrooms returns one page of the user's rooms, newest first, plus the
// total count for pagination metadata.
func (s *Service) ListChatrooms(userID uuid.UUID, offset, limit int) ([]models.Chatroom, int64, error) {
	var rooms []models.Chatroom
	var total int64

	base := s.DB.Model(&models.Chatroom{}).
		Where("user_id = ? AND is_deleted = ?", userID, false)

	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := base.
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&rooms).Error
	if err != nil {
		return nil, 0, err
	}
	return rooms, total, nil
}

func (s *Service) UpdateChatroom(room *models.Chatroom) error {
	return s.DB.Save(room).Error
}

// SoftDeleteChatroom flips is_deleted for an owned room. Deleting a room
// that does not exist (or is not yours) is ErrNotFound.
func (s *Service) SoftDeleteChatroom(id, userID uuid.UUID) error {
	res := s.DB.Model(&models.Chatroom{}).
		Where("id = ? AND user_id = ? AND is_deleted = ?", id, userID, false).
		Update("is_deleted", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
