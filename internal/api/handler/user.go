package handler

import (
	"net/http"
	"strings"

	"chatmind/backend/internal/api/middleware"

	"github.com/gin-gonic/gin"
)

// CurrentUser handles GET /user/me.
func (h *Handler) CurrentUser(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "missing or invalid token")
		return
	}

	user, err := h.Store.GetUserByID(userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "OK", user)
}

type updateProfileRequest struct {
	FullName *string `json:"full_name"`
	Email    *string `json:"email"`
}

// UpdateProfile handles PUT /user/me. Only profile fields are writable;
// mobile number and credentials have their own flows.
func (h *Handler) UpdateProfile(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "missing or invalid token")
		return
	}

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.Store.GetUserByID(userID)
	if err != nil {
		h.fail(c, err)
		return
	}

	if req.FullName != nil {
		user.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Email != nil {
		user.Email = strings.TrimSpace(*req.Email)
	}

	if err := h.Store.UpdateUser(user); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Profile updated", user)
}
