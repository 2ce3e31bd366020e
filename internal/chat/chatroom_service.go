// Package chat holds the producer side of the message pipeline: chatroom
// management and message submission, status projection, and history reads.
package chat

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"chatmind/backend/internal/logger"
	"chatmind/backend/internal/models"
	"chatmind/backend/internal/storage"

	"github.com/google/uuid"
)

const maxTitleLength = 200

// ErrInvalidTitle reports a missing or oversized chatroom title.
var ErrInvalidTitle = errors.New("chatroom title must be 1-200 characters")

// ChatroomPage is one page of a user's chatroom listing.
type ChatroomPage struct {
	Chatrooms  []models.Chatroom `json:"chatrooms"`
	Total      int64             `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalPages int               `json:"total_pages"`
}

// ChatroomService manages a user's chatrooms and the Redis-cached listing.
type ChatroomService struct {
	store    storage.Storage
	log      *logger.Logger
	cacheTTL time.Duration

	defaultPageSize int
	maxPageSize     int
}

// NewChatroomService Constructor
func NewChatroomService(store storage.Storage, log *logger.Logger, cacheTTL time.Duration, defaultPageSize, maxPageSize int) *ChatroomService {
	if defaultPageSize < 1 {
		defaultPageSize = 10
	}
	if maxPageSize < defaultPageSize {
		maxPageSize = defaultPageSize
	}
	return &ChatroomService{
		store:           store,
		log:             log,
		cacheTTL:        cacheTTL,
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
	}
}

// Create adds a chatroom and drops the user's cached listing.
func (s *ChatroomService) Create(userID uuid.UUID, title, description string) (*models.Chatroom, error) {
	title = strings.TrimSpace(title)
	if title == "" || len([]rune(title)) > maxTitleLength {
		return nil, ErrInvalidTitle
	}

	room := &models.Chatroom{
		Title:       title,
		Description: strings.TrimSpace(description),
		UserID:      userID,
	}
	if err := s.store.CreateChatroom(room); err != nil {
		return nil, err
	}
	s.invalidateCache(userID)
	return room, nil
}

// List returns one page of the user's chatrooms, newest first. The first
// default-sized page is served from the Redis cache when possible, since it
// is the page every client fetches on open.
func (s *ChatroomService) List(userID uuid.UUID, page, pageSize int) (*ChatroomPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = s.defaultPageSize
	}
	if pageSize > s.maxPageSize {
		pageSize = s.maxPageSize
	}

	cacheable := page == 1 && pageSize == s.defaultPageSize
	if cacheable {
		if payload, hit, err := s.store.GetCachedChatroomList(userID); err != nil {
			s.log.Warn("chatroom cache read failed", "user_id", userID, "error", err)
		} else if hit {
			var cached ChatroomPage
			if err := json.Unmarshal([]byte(payload), &cached); err == nil {
				return &cached, nil
			}
			s.invalidateCache(userID)
		}
	}

	rooms, total, err := s.store.ListChatrooms(userID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, err
	}

	result := &ChatroomPage{
		Chatrooms:  rooms,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: int((total + int64(pageSize) - 1) / int64(pageSize)),
	}

	if cacheable {
		if payload, err := json.Marshal(result); err == nil {
			if err := s.store.CacheChatroomList(userID, string(payload), s.cacheTTL); err != nil {
				s.log.Warn("chatroom cache write failed", "user_id", userID, "error", err)
			}
		}
	}
	return result, nil
}

// Get returns one chatroom owned by the user.
func (s *ChatroomService) Get(userID, id uuid.UUID) (*models.Chatroom, error) {
	return s.store.GetChatroomForUser(id, userID)
}

// Update patches title and description.
func (s *ChatroomService) Update(userID, id uuid.UUID, title, description *string) (*models.Chatroom, error) {
	room, err := s.store.GetChatroomForUser(id, userID)
	if err != nil {
		return nil, err
	}

	if title != nil {
		trimmed := strings.TrimSpace(*title)
		if trimmed == "" || len([]rune(trimmed)) > maxTitleLength {
			return nil, ErrInvalidTitle
		}
		room.Title = trimmed
	}
	if description != nil {
		room.Description = strings.TrimSpace(*description)
	}

	if err := s.store.UpdateChatroom(room); err != nil {
		return nil, err
	}
	s.invalidateCache(userID)
	return room, nil
}

// Delete soft-deletes the chatroom; its messages stay for audit but the room
// disappears from every listing and lookup.
func (s *ChatroomService) Delete(userID, id uuid.UUID) error {
	if err := s.store.SoftDeleteChatroom(id, userID); err != nil {
		return err
	}
	s.invalidateCache(userID)
	return nil
}

func (s *ChatroomService) invalidateCache(userID uuid.UUID) {
	if err := s.store.InvalidateChatroomCache(userID); err != nil {
		s.log.Warn("chatroom cache invalidation failed", "user_id", userID, "error", err)
	}
}
