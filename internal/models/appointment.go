package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AppointmentStatus represents where an appointment is in its lifecycle
type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

// transitions lists the statuses reachable from each status.
var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled, StatusCompleted},
	StatusCancelled: nil,
	StatusCompleted: nil,
}

// ParseStatus converts user input into a known status
func ParseStatus(s string) (AppointmentStatus, bool) {
	status := AppointmentStatus(strings.ToLower(strings.TrimSpace(s)))
	_, ok := transitions[status]
	return status, ok
}

// IsTerminal reports whether no further transition is possible
func (s AppointmentStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// CanTransitionTo reports whether next is reachable from s in one step
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Appointment is a booked time slot on a calendar date
type Appointment struct {
	ID                string            `gorm:"primaryKey;size:36" json:"id"`
	Name              string            `gorm:"size:120;not null" json:"name"`
	Email             string            `gorm:"size:255;not null;index" json:"email"`
	Phone             string            `gorm:"size:40;not null" json:"phone"`
	Service           string            `gorm:"size:120;not null" json:"service"`
	Date              time.Time         `gorm:"type:date;not null;index:idx_appointment_date_slot" json:"date"`
	TimeSlot          string            `gorm:"size:5;not null;index:idx_appointment_date_slot" json:"timeSlot"`
	Message           string            `gorm:"type:text" json:"message,omitempty"`
	Status            AppointmentStatus `gorm:"size:20;not null;default:pending;index" json:"status"`
	MeetingLink       string            `gorm:"type:text" json:"meetingLink,omitempty"`
	MeetingID         string            `gorm:"size:40" json:"meetingId,omitempty"`
	ActualMeetingLink string            `gorm:"type:text" json:"actualMeetingLink,omitempty"`
	ReminderSent      bool              `gorm:"not null;default:false" json:"reminderSent"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// BeforeCreate fills in the primary key when the caller did not
func (a *Appointment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// IsActive reports whether the appointment still occupies its slot
func (a *Appointment) IsActive() bool {
	return a.Status != StatusCancelled
}

// BookAppointmentRequest is the payload of a booking request
type BookAppointmentRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Service  string `json:"service"`
	Date     string `json:"date"`
	TimeSlot string `json:"timeSlot"`
	// Time is accepted as an alias of TimeSlot for older clients.
	Time    string `json:"time"`
	Message string `json:"message"`
}

// UpdateStatusRequest is the payload of a staff status change
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// MeetingLinkRequest is the payload used to hand the client a video call link
type MeetingLinkRequest struct {
	MeetingLink string `json:"meetingLink"`
}
