package handler

import (
	"net/http"

	"chatmind/backend/internal/api/middleware"

	"github.com/gin-gonic/gin"
)

type signupRequest struct {
	MobileNumber string `json:"mobile_number" binding:"required"`
	Password     string `json:"password" binding:"required"`
	FullName     string `json:"full_name"`
	Email        string `json:"email"`
}

// Signup handles POST /auth/signup.
func (h *Handler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "mobile_number and password are required")
		return
	}

	user, err := h.Auth.Signup(req.MobileNumber, req.Password, req.FullName, req.Email)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "User registered successfully", user)
}

type loginRequest struct {
	MobileNumber string `json:"mobile_number" binding:"required"`
	Password     string `json:"password" binding:"required"`
}

// Login handles POST /auth/login. Two-factor accounts get an OTP challenge
// instead of tokens; the OTP is included in the response because SMS
// delivery is mocked.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "mobile_number and password are required")
		return
	}

	res, err := h.Auth.Login(req.MobileNumber, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}

	if res.OTP != nil {
		respond(c, http.StatusOK, "Two-factor authentication required. OTP sent.", gin.H{
			"otp_required": true,
			"otp":          res.OTP.Code,
			"expires_in":   int(res.OTP.ExpiresIn.Seconds()),
		})
		return
	}

	respond(c, http.StatusOK, "Login successful", gin.H{
		"access_token":  res.Tokens.AccessToken,
		"refresh_token": res.Tokens.RefreshToken,
		"token_type":    res.Tokens.TokenType,
		"user":          res.User,
	})
}

type otpVerifyRequest struct {
	MobileNumber string `json:"mobile_number" binding:"required"`
	OTP          string `json:"otp" binding:"required"`
}

// VerifyOTP handles POST /auth/verify-otp, completing a two-factor login.
func (h *Handler) VerifyOTP(c *gin.Context) {
	var req otpVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "mobile_number and otp are required")
		return
	}

	user, pair, err := h.Auth.VerifyLogin(req.MobileNumber, req.OTP)
	if err != nil {
		h.fail(c, err)
		return
	}

	respond(c, http.StatusOK, "OTP verified", gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"token_type":    pair.TokenType,
		"user":          user,
	})
}

type mobileRequest struct {
	MobileNumber string `json:"mobile_number" binding:"required"`
}

// ForgotPassword handles POST /auth/forgot-password.
func (h *Handler) ForgotPassword(c *gin.Context) {
	var req mobileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "mobile_number is required")
		return
	}

	challenge, err := h.Auth.ForgotPassword(req.MobileNumber)
	if err != nil {
		h.fail(c, err)
		return
	}

	respond(c, http.StatusOK, "OTP sent", gin.H{
		"otp":        challenge.Code,
		"expires_in": int(challenge.ExpiresIn.Seconds()),
	})
}

type resetPasswordRequest struct {
	MobileNumber string `json:"mobile_number" binding:"required"`
	OTP          string `json:"otp" binding:"required"`
	NewPassword  string `json:"new_password" binding:"required"`
}

// ResetPassword handles POST /auth/reset-password.
func (h *Handler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "mobile_number, otp and new_password are required")
		return
	}

	if err := h.Auth.ResetPassword(req.MobileNumber, req.OTP, req.NewPassword); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Password reset successfully", gin.H{})
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// ChangePassword handles POST /auth/change-password (authenticated).
func (h *Handler) ChangePassword(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "missing or invalid token")
		return
	}

	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "old_password and new_password are required")
		return
	}

	if err := h.Auth.ChangePassword(userID, req.OldPassword, req.NewPassword); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Password changed successfully", gin.H{})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh handles POST /auth/refresh.
func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "refresh_token is required")
		return
	}

	access, err := h.Auth.Refresh(req.RefreshToken)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Token refreshed", gin.H{"access_token": access})
}

// Logout handles POST /auth/logout (authenticated). The presented access
// token is blacklisted until it would have expired anyway.
func (h *Handler) Logout(c *gin.Context) {
	token := middleware.AccessToken(c)
	if token == "" {
		respondError(c, http.StatusUnauthorized, "missing or invalid token")
		return
	}

	if err := h.Auth.Logout(token); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Logged out", gin.H{})
}
