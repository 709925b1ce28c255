package utils

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// slowRequest is the latency above which a request is logged as a warning
const slowRequest = 500 * time.Millisecond

// GetRealClientIP extracts the real client IP from the request headers
// It prioritizes X-Real-IP, then X-Forwarded-For, and finally falls back to c.ClientIP()
func GetRealClientIP(c *gin.Context) string {
	if ip := c.GetHeader("X-Real-IP"); ip != "" {
		return ip
	}

	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	return c.ClientIP()
}

// RequestLogger logs one line per request with its latency
func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", latency,
			"ip", GetRealClientIP(c),
		}
		switch {
		case c.Writer.Status() >= 500:
			log.Error("request", attrs...)
		case latency > slowRequest:
			log.Warn("slow request", attrs...)
		default:
			log.Info("request", attrs...)
		}
	}
}
