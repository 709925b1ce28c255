package models

import (
	"time"

	"gorm.io/datatypes"
)

// NotificationKind identifies which message is sent for an appointment event
type NotificationKind string

const (
	KindCreated           NotificationKind = "created"
	KindConfirmedToClient NotificationKind = "confirmedToClient"
	KindCancelledToClient NotificationKind = "cancelledToClient"
	KindAdminNew          NotificationKind = "adminNew"
	KindAdminReminder     NotificationKind = "adminReminder"
	KindMeetingLink       NotificationKind = "meetingLink"
)

// Delivery outcomes recorded in NotificationLog.Status
const (
	DeliverySent    = "sent"
	DeliveryFailed  = "failed"
	DeliverySkipped = "skipped"
)

// NotificationLog records the outcome of every dispatched notification
type NotificationLog struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	AppointmentID string            `gorm:"size:36;not null;index" json:"appointment_id"`
	Kind          NotificationKind  `gorm:"size:30;not null" json:"kind"`
	Channel       string            `gorm:"size:10;not null" json:"channel"` // "email" or "sms"
	Recipient     string            `gorm:"size:255" json:"recipient"`
	Status        string            `gorm:"size:10;not null" json:"status"`
	Attempts      int               `gorm:"not null" json:"attempts"`
	ErrorMessage  string            `gorm:"type:text" json:"error_message,omitempty"`
	Extra         datatypes.JSONMap `json:"extra,omitempty"`
	SentAt        time.Time         `gorm:"not null" json:"sent_at"`
}
