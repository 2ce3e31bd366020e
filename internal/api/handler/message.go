package handler

import (
	"net/http"

	"chatmind/backend/internal/api/middleware"

	"github.com/gin-gonic/gin"
)

type submitMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// SubmitMessage handles POST /chatroom/:id/message: persist the message,
// enqueue a processing job and return immediately. The reply arrives
// asynchronously; clients poll the status endpoint or listen on /ws.
func (h *Handler) SubmitMessage(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "missing or invalid token")
		return
	}
	roomID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req submitMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "content is required")
		return
	}

	msg, jobID, err := h.Messages.Submit(c.Request.Context(), userID, roomID, req.Content)
	if err != nil {
		h.fail(c, err)
		return
	}

	respond(c, http.StatusAccepted, "Message accepted for processing", gin.H{
		"message": msg,
		"job_id":  jobID,
	})
}

// MessageStatus handles GET /chatroom/:id/message/:message_id/status.
func (h *Handler) MessageStatus(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "missing or invalid token")
		return
	}
	if _, ok := uuidParam(c, "id"); !ok {
		return
	}
	messageID, ok := uuidParam(c, "message_id")
	if !ok {
		return
	}

	status, err := h.Messages.Status(userID, messageID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !status.Found {
		respondError(c, http.StatusNotFound, "message not found")
		return
	}
	respond(c, http.StatusOK, "OK", status)
}

// JobStatus handles GET /chatroom/job/:job_id, exposing the transport-side
// job state (attempts, result, error).
func (h *Handler) JobStatus(c *gin.Context) {
	if _, ok := middleware.UserID(c); !ok {
		respondError(c, http.StatusUnauthorized, "missing or invalid token")
		return
	}

	jobID := c.Param("job_id")
	if jobID == "" {
		respondError(c, http.StatusBadRequest, "invalid job_id")
		return
	}

	state, err := h.Messages.JobStatus(c.Request.Context(), jobID)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "OK", state)
}
