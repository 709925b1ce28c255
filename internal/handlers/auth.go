package handlers

import (
	"errors"
	"net/http"

	"slotbook/internal/auth"

	"github.com/gin-gonic/gin"
)

// LoginRequest represents the data needed for login
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login checks the admin credentials and issues a staff token
func (h *Handler) Login(c *gin.Context) {
	if h.staff == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "not_found", "message": "staff login is not enabled"})
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "username and password are required")
		return
	}

	token, expires, err := h.staff.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.logger.Warn("failed staff login", "username", req.Username)
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized", "message": "invalid credentials"})
			return
		}
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"token":     token,
		"expiresAt": expires,
	})
}
