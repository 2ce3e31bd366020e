package handler

import (
	"net/http"
	"strconv"

	"chatmind/backend/internal/api/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func pagingQuery(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "0"))
	return page, pageSize
}

type chatroomRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// CreateChatroom handles POST /chatroom.
func (h *Handler) CreateChatroom(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "missing or invalid token")
		return
	}

	var req chatroomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	room, err := h.Chatrooms.Create(userID, req.Title, req.Description)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "Chatroom created", room)
}

// ListChatrooms handles GET /chatroom.
func (h *Handler) ListChatrooms(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "missing or invalid token")
		return
	}

	page, pageSize := pagingQuery(c)
	list, err := h.Chatrooms.List(userID, page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "OK", list)
}

// GetChatroom handles GET /chatroom/:id, returning the room together with
// one page of its messages, oldest first.
func (h *Handler) GetChatroom(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "missing or invalid token")
		return
	}
	roomID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	room, err := h.Chatrooms.Get(userID, roomID)
	if err != nil {
		h.fail(c, err)
		return
	}

	page, pageSize := pagingQuery(c)
	messages, err := h.Messages.History(userID, roomID, page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}

	respond(c, http.StatusOK, "OK", gin.H{
		"chatroom": room,
		"messages": messages,
		"page":     page,
	})
}

type chatroomUpdateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// UpdateChatroom handles PUT /chatroom/:id. Absent fields are left alone.
func (h *Handler) UpdateChatroom(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "missing or invalid token")
		return
	}
	roomID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req chatroomUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	room, err := h.Chatrooms.Update(userID, roomID, req.Title, req.Description)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Chatroom updated", room)
}

// DeleteChatroom handles DELETE /chatroom/:id (soft delete).
func (h *Handler) DeleteChatroom(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "missing or invalid token")
		return
	}
	roomID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.Chatrooms.Delete(userID, roomID); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Chatroom deleted", gin.H{})
}

// Conversation handles GET /chatroom/:id/conversation: the room as
// question/answer pairs.
func (h *Handler) Conversation(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "missing or invalid token")
		return
	}
	roomID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	pairs, err := h.Messages.Conversation(userID, roomID)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "OK", gin.H{"conversation": pairs})
}
