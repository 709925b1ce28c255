package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// RoleStaff is the only role issued today
	RoleStaff = "staff"

	contextUsername = "username"
	contextRole     = "role"
)

// RequireStaff rejects requests without a valid bearer token. A nil manager
// means auth is not configured and every request is let through.
func RequireStaff(tokens *TokenManager, logger *slog.Logger) gin.HandlerFunc {
	if tokens == nil {
		if logger != nil {
			logger.Warn("jwt secret not configured, staff routes are unprotected")
		}
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			abort(c, "authentication required")
			return
		}

		claims, err := tokens.ValidateToken(raw)
		if err != nil {
			if errors.Is(err, ErrExpiredToken) {
				abort(c, "token expired, please log in again")
				return
			}
			abort(c, "invalid token")
			return
		}
		if claims.Role != RoleStaff {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false, "error": "forbidden", "message": "staff access required",
			})
			return
		}

		c.Set(contextUsername, claims.Username)
		c.Set(contextRole, claims.Role)
		c.Next()
	}
}

// GetUsernameFromContext returns the authenticated staff user, if any
func GetUsernameFromContext(c *gin.Context) string {
	return c.GetString(contextUsername)
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func abort(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false, "error": "unauthorized", "message": message,
	})
}
