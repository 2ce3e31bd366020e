package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"chatmind/backend/internal/logger"
	"chatmind/backend/internal/metrics"
	"chatmind/backend/internal/models"
	"chatmind/backend/internal/queue"
	"chatmind/backend/internal/storage"

	"github.com/google/uuid"
)

var (
	// ErrEmptyMessage reports content that is empty once sanitized.
	ErrEmptyMessage = errors.New("message content must not be empty")
	// ErrMessageTooLong reports content over the configured limit.
	ErrMessageTooLong = errors.New("message content exceeds the maximum length")
	// ErrQueueUnavailable reports that the processing job could not be
	// handed to the transport. The message stays PENDING; resubmitting is
	// safe.
	ErrQueueUnavailable = errors.New("processing queue unavailable")
)

// MessageStatus is the client-facing projection of one submitted message and
// its reply. Found is false when the message does not exist or belongs to
// another user; the two cases are indistinguishable on purpose.
type MessageStatus struct {
	Found               bool       `json:"found"`
	MessageID           uuid.UUID  `json:"message_id,omitempty"`
	Status              string     `json:"status,omitempty"`
	HasAIResponse       bool       `json:"has_ai_response"`
	AIResponseID        *uuid.UUID `json:"ai_response_id,omitempty"`
	IsProcessing        bool       `json:"is_processing"`
	IsCompleted         bool       `json:"is_completed"`
	IsFailed            bool       `json:"is_failed"`
	ErrorMessage        string     `json:"error_message,omitempty"`
	CreatedAt           *time.Time `json:"created_at,omitempty"`
	AIResponseCreatedAt *time.Time `json:"ai_response_created_at,omitempty"`
}

// ConversationPair is one user message together with its reply, if any.
type ConversationPair struct {
	UserMessage models.Message  `json:"user_message"`
	AIResponse  *models.Message `json:"ai_response,omitempty"`
}

// MessageService accepts user messages, hands them to the queue, and serves
// the status and history reads.
type MessageService struct {
	store storage.Storage
	queue queue.Queue
	log   *logger.Logger

	maxLength    int
	contextLimit int

	defaultPageSize int
	maxPageSize     int
}

// NewMessageService Constructor
func NewMessageService(store storage.Storage, q queue.Queue, log *logger.Logger, maxLength, contextLimit, defaultPageSize, maxPageSize int) *MessageService {
	if maxLength < 1 {
		maxLength = 4000
	}
	if contextLimit < 0 {
		contextLimit = 0
	}
	if defaultPageSize < 1 {
		defaultPageSize = 10
	}
	if maxPageSize < defaultPageSize {
		maxPageSize = defaultPageSize
	}
	return &MessageService{
		store:           store,
		queue:           q,
		log:             log,
		maxLength:       maxLength,
		contextLimit:    contextLimit,
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
	}
}

// sanitizeContent trims the message and strips control characters, keeping
// tabs and line breaks.
func sanitizeContent(content string) string {
	var b strings.Builder
	b.Grow(len(content))
	for _, r := range content {
		if r == '\t' || r == '\n' || r == '\r' {
			b.WriteRune(r)
			continue
		}
		if r < 0x20 || r == 0x7F {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// Submit accepts a message into the pipeline: sanitize, check chatroom
// ownership, persist it as PENDING, and enqueue the completion job built
// from the recent conversation. It returns the stored message and the job ID.
//
// The message status is never advanced here; only a worker moves it past
// PENDING. When enqueueing fails the row stays PENDING and the caller gets
// ErrQueueUnavailable, a retryable condition.
func (s *MessageService) Submit(ctx context.Context, userID, chatroomID uuid.UUID, content string) (*models.Message, string, error) {
	content = sanitizeContent(content)
	if content == "" {
		return nil, "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > s.maxLength {
		return nil, "", ErrMessageTooLong
	}

	if _, err := s.store.GetChatroomForUser(chatroomID, userID); err != nil {
		return nil, "", err
	}

	msg := &models.Message{
		ChatroomID: chatroomID,
		UserID:     userID,
		Content:    content,
		IsFromUser: true,
	}
	if err := s.store.CreateMessage(msg); err != nil {
		return nil, "", err
	}

	history, err := s.conversationContext(chatroomID, msg.ID)
	if err != nil {
		// History only enriches the prompt; the message itself must still go
		// through.
		s.log.Warn("failed to load conversation context", "message_id", msg.ID, "error", err)
		history = nil
	}

	job := queue.NewJob(msg.ID, chatroomID, userID, content, history)
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.log.Error("failed to enqueue job", "message_id", msg.ID, "error", err)
		return nil, "", fmt.Errorf("%w: enqueue message %s: %v", ErrQueueUnavailable, msg.ID, err)
	}

	if err := s.store.SetMessageJobID(msg.ID, job.ID); err != nil {
		// The job is already queued; losing the back-reference only degrades
		// the job status endpoint.
		s.log.Warn("failed to record job id", "message_id", msg.ID, "job_id", job.ID, "error", err)
	}

	metrics.MessagesSubmitted.Inc()
	s.log.Info("message submitted", "message_id", msg.ID, "chatroom_id", chatroomID, "job_id", job.ID)
	return msg, job.ID, nil
}

// conversationContext returns the prior turns oldest-first, excluding the
// just-created message.
func (s *MessageService) conversationContext(chatroomID, excludeID uuid.UUID) ([]queue.ContextEntry, error) {
	if s.contextLimit == 0 {
		return nil, nil
	}
	recent, err := s.store.RecentMessages(chatroomID, excludeID, s.contextLimit)
	if err != nil {
		return nil, err
	}

	entries := make([]queue.ContextEntry, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		role := queue.RoleAssistant
		if recent[i].IsFromUser {
			role = queue.RoleUser
		}
		entries = append(entries, queue.ContextEntry{Role: role, Content: recent[i].Content})
	}
	return entries, nil
}

// Status projects the current state of a submitted message for polling
// clients. Messages of other users read as not found.
func (s *MessageService) Status(userID, messageID uuid.UUID) (*MessageStatus, error) {
	msg, err := s.store.GetMessageForOwner(messageID, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return &MessageStatus{Found: false}, nil
	}
	if err != nil {
		return nil, err
	}

	status := &MessageStatus{
		Found:        true,
		MessageID:    msg.ID,
		Status:       string(msg.Status),
		IsProcessing: msg.Status == models.StatusProcessing,
		IsCompleted:  msg.Status == models.StatusCompleted,
		IsFailed:     msg.Status == models.StatusFailed,
		ErrorMessage: msg.ErrorMessage,
		CreatedAt:    &msg.CreatedAt,
	}

	reply, err := s.store.GetReplyFor(messageID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if reply != nil {
		status.HasAIResponse = true
		status.AIResponseID = &reply.ID
		status.AIResponseCreatedAt = &reply.CreatedAt
	}
	return status, nil
}

// JobStatus reads the transport-side state for a job ID.
func (s *MessageService) JobStatus(ctx context.Context, jobID string) (*queue.JobStatus, error) {
	return s.queue.JobState(ctx, jobID)
}

// History returns one page of a chatroom's messages, oldest first.
func (s *MessageService) History(userID, chatroomID uuid.UUID, page, pageSize int) ([]models.Message, error) {
	if _, err := s.store.GetChatroomForUser(chatroomID, userID); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = s.defaultPageSize
	}
	if pageSize > s.maxPageSize {
		pageSize = s.maxPageSize
	}
	return s.store.ListMessages(chatroomID, (page-1)*pageSize, pageSize)
}

// Conversation returns the chatroom as question/answer pairs, oldest first.
func (s *MessageService) Conversation(userID, chatroomID uuid.UUID) ([]ConversationPair, error) {
	if _, err := s.store.GetChatroomForUser(chatroomID, userID); err != nil {
		return nil, err
	}

	msgs, err := s.store.ListUserMessagesWithReplies(chatroomID)
	if err != nil {
		return nil, err
	}

	pairs := make([]ConversationPair, 0, len(msgs))
	for _, m := range msgs {
		pair := ConversationPair{UserMessage: m}
		if len(m.Children) > 0 {
			reply := m.Children[0]
			pair.AIResponse = &reply
		}
		pair.UserMessage.Children = nil
		pairs = append(pairs, pair)
	}
	return pairs, nil
}
