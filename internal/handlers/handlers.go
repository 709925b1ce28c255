package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"slotbook/internal/auth"
	"slotbook/internal/booking"
	"slotbook/internal/models"

	"github.com/gin-gonic/gin"
)

// ReminderRunner triggers a reminder scan on demand
type ReminderRunner interface {
	ScanOnce(ctx context.Context) ([]models.Appointment, error)
}

// Handler holds the dependencies of the HTTP endpoints
type Handler struct {
	bookings  *booking.Service
	reminders ReminderRunner
	staff     *auth.StaffAuthenticator
	health    func(ctx context.Context) error
	logger    *slog.Logger
}

func New(bookings *booking.Service, reminders ReminderRunner, staff *auth.StaffAuthenticator, health func(ctx context.Context) error, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		bookings:  bookings,
		reminders: reminders,
		staff:     staff,
		health:    health,
		logger:    logger,
	}
}

// handleError maps domain errors onto status codes. Internal details are
// logged, never returned.
func (h *Handler) handleError(c *gin.Context, err error) {
	kind := booking.Kind(err)
	status := http.StatusInternalServerError
	message := err.Error()

	switch {
	case errors.Is(err, booking.ErrValidation), errors.Is(err, booking.ErrInvalidSlot):
		status = http.StatusBadRequest
	case errors.Is(err, booking.ErrSlotTaken):
		status = http.StatusConflict
		message = booking.ErrSlotTaken.Error()
	case errors.Is(err, booking.ErrNotFound):
		status = http.StatusNotFound
		message = booking.ErrNotFound.Error()
	case errors.Is(err, booking.ErrInvalidTransition):
		status = http.StatusConflict
	default:
		message = "internal server error"
		h.logger.Error("request failed",
			"method", c.Request.Method, "path", c.FullPath(), "err", err)
	}

	c.JSON(status, gin.H{"success": false, "error": kind, "message": message})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "validation_error", "message": message})
}

// HomeHandler handles requests to the root path "/"
func (h *Handler) HomeHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Appointment booking API is running"})
}

// HealthHandler reports whether the database answers
func (h *Handler) HealthHandler(c *gin.Context) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.health(ctx); err != nil {
			h.logger.Warn("health check failed", "err", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "status": "ok"})
}
