// Package handler holds the HTTP handlers and the response envelope shared
// by all of them. Every JSON response is {success, message, data}, with an
// error field added on failures.
package handler

import (
	"errors"
	"net/http"

	"chatmind/backend/internal/auth"
	"chatmind/backend/internal/billing"
	"chatmind/backend/internal/chat"
	"chatmind/backend/internal/hub"
	"chatmind/backend/internal/logger"
	"chatmind/backend/internal/queue"
	"chatmind/backend/internal/storage"
	"chatmind/backend/internal/usage"

	"github.com/gin-gonic/gin"
)

// Handler carries the services the HTTP layer dispatches into.
type Handler struct {
	Store     *storage.Service
	Auth      *auth.Service
	Chatrooms *chat.ChatroomService
	Messages  *chat.MessageService
	Billing   *billing.Service
	Usage     *usage.Service
	Hub       *hub.Hub
	Queue     queue.Queue

	Log     *logger.Logger
	Version string
}

// NewHandler Constructor
func NewHandler(
	store *storage.Service,
	authSvc *auth.Service,
	chatrooms *chat.ChatroomService,
	messages *chat.MessageService,
	billingSvc *billing.Service,
	usageSvc *usage.Service,
	h *hub.Hub,
	q queue.Queue,
	log *logger.Logger,
	version string,
) *Handler {
	return &Handler{
		Store:     store,
		Auth:      authSvc,
		Chatrooms: chatrooms,
		Messages:  messages,
		Billing:   billingSvc,
		Usage:     usageSvc,
		Hub:       h,
		Queue:     q,
		Log:       log,
		Version:   version,
	}
}

func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"message": message,
		"data":    data,
	})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"message": message,
		"error":   message,
	})
}

// fail maps a service error to its HTTP status and writes the envelope.
func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch {
	case errors.Is(err, auth.ErrInvalidMobile),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrMobileNotRegistered),
		errors.Is(err, auth.ErrOTPExpired),
		errors.Is(err, chat.ErrInvalidTitle),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrMessageTooLong):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrOTPInvalid),
		errors.Is(err, auth.ErrInvalidToken):
		status = http.StatusUnauthorized
		message = err.Error()
	case errors.Is(err, auth.ErrUserInactive):
		status = http.StatusForbidden
		message = err.Error()
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
		message = "not found"
	case errors.Is(err, auth.ErrMobileTaken):
		status = http.StatusConflict
		message = err.Error()
	case errors.Is(err, auth.ErrOTPRateLimited):
		status = http.StatusTooManyRequests
		message = err.Error()
	case errors.Is(err, billing.ErrNotConfigured):
		status = http.StatusServiceUnavailable
		message = err.Error()
	case errors.Is(err, chat.ErrQueueUnavailable):
		status = http.StatusServiceUnavailable
		message = chat.ErrQueueUnavailable.Error()
		h.Log.Error("request failed", "error", err)
	default:
		h.Log.Error("request failed", "error", err)
	}

	respondError(c, status, message)
}
