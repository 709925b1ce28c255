package booking

import (
	"context"
	"time"

	"slotbook/internal/models"
)

// AppointmentStore is the persistence the booking core relies on
type AppointmentStore interface {
	Insert(ctx context.Context, appt *models.Appointment) (string, error)
	Get(ctx context.Context, id string) (*models.Appointment, error)
	FindByDateAndSlot(ctx context.Context, date time.Time, slot string) (*models.Appointment, error)
	FindByDate(ctx context.Context, date time.Time) ([]models.Appointment, error)
	UpdateStatus(ctx context.Context, id string, from, to models.AppointmentStatus) (*models.Appointment, error)
	SetMeetingLink(ctx context.Context, id, link string) (*models.Appointment, error)
	ListAll(ctx context.Context) ([]models.Appointment, error)
	ListByEmail(ctx context.Context, email string) ([]models.Appointment, error)
}

// Notifier queues a best-effort message about an appointment. An error means
// the message was not accepted; it never affects the calling operation.
type Notifier interface {
	Notify(ctx context.Context, kind models.NotificationKind, appt models.Appointment, extra map[string]any) error
}

// Locker serializes work on a key. The returned function releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Recorder receives booking counters
type Recorder interface {
	BookingAttempt(result string)
	StatusChange(from, to string)
}
