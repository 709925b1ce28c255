package handlers

import (
	"net/http"
	"strings"

	"slotbook/internal/models"
	"slotbook/internal/slots"

	"github.com/gin-gonic/gin"
)

// GetAvailableSlots lists the free slots of ?date=YYYY-MM-DD
func (h *Handler) GetAvailableSlots(c *gin.Context) {
	raw := strings.TrimSpace(c.Query("date"))
	if raw == "" {
		badRequest(c, "date query parameter is required")
		return
	}
	date, err := slots.ParseDate(raw)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	free, err := h.bookings.AvailableSlots(c.Request.Context(), date)
	if err != nil {
		h.handleError(c, err)
		return
	}

	labels := make([]string, len(free))
	for i, s := range free {
		labels[i] = slots.FormatLabel(s)
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"date":    date.Format(slots.DateFormat),
		"slots":   free,
		"labels":  labels,
	})
}

// BookAppointment reserves a slot
func (h *Handler) BookAppointment(c *gin.Context) {
	var req models.BookAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	appt, err := h.bookings.Reserve(c.Request.Context(), req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":     true,
		"message":     "Appointment booked successfully",
		"appointment": appt,
	})
}

// ListAppointments returns every appointment for the staff dashboard
func (h *Handler) ListAppointments(c *gin.Context) {
	appts, err := h.bookings.ListAll(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(appts), "appointments": appts})
}

// ListClientAppointments returns the appointments booked with :email
func (h *Handler) ListClientAppointments(c *gin.Context) {
	appts, err := h.bookings.ListByEmail(c.Request.Context(), c.Param("email"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(appts), "appointments": appts})
}

// UpdateAppointmentStatus applies a staff status change
func (h *Handler) UpdateAppointmentStatus(c *gin.Context) {
	var req models.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "status is required")
		return
	}

	appt, err := h.bookings.SetStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"message":     "Appointment status updated to " + string(appt.Status),
		"appointment": appt,
	})
}

// SendMeetingLink stores the video call link and emails it to the client
func (h *Handler) SendMeetingLink(c *gin.Context) {
	var req models.MeetingLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	appt, err := h.bookings.AttachMeetingLink(c.Request.Context(), c.Param("id"), req.MeetingLink)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"message":     "Meeting link sent to " + appt.Email,
		"appointment": appt,
	})
}
