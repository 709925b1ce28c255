package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"slotbook/internal/models"

	"gorm.io/gorm"
)

// GormStore keeps appointments in postgres through gorm
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an open gorm connection
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Insert creates the appointment. The partial unique index on
// (date, time_slot) rejects a second active booking of the same slot.
func (s *GormStore) Insert(ctx context.Context, appt *models.Appointment) (string, error) {
	if err := s.db.WithContext(ctx).Create(appt).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return "", ErrConflict
		}
		return "", fmt.Errorf("insert appointment: %w", err)
	}
	return appt.ID, nil
}

// Get loads one appointment by id
func (s *GormStore) Get(ctx context.Context, id string) (*models.Appointment, error) {
	var appt models.Appointment
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&appt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get appointment %s: %w", id, err)
	}
	return &appt, nil
}

// FindByDateAndSlot returns the active appointment holding the slot, or nil
func (s *GormStore) FindByDateAndSlot(ctx context.Context, date time.Time, slot string) (*models.Appointment, error) {
	var appt models.Appointment
	err := s.db.WithContext(ctx).
		Where("date = ? AND time_slot = ? AND status <> ?", date, slot, models.StatusCancelled).
		First(&appt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find appointment by slot: %w", err)
	}
	return &appt, nil
}

// FindByDate returns the active appointments of a date ordered by slot
func (s *GormStore) FindByDate(ctx context.Context, date time.Time) ([]models.Appointment, error) {
	var appts []models.Appointment
	err := s.db.WithContext(ctx).
		Where("date = ? AND status <> ?", date, models.StatusCancelled).
		Order("time_slot asc").
		Find(&appts).Error
	if err != nil {
		return nil, fmt.Errorf("find appointments by date: %w", err)
	}
	return appts, nil
}

// FindByStatusAndWindow returns appointments in status whose date lies in
// [start, end], both inclusive
func (s *GormStore) FindByStatusAndWindow(ctx context.Context, status models.AppointmentStatus, start, end time.Time) ([]models.Appointment, error) {
	var appts []models.Appointment
	err := s.db.WithContext(ctx).
		Where("status = ? AND date BETWEEN ? AND ?", status, start, end).
		Order("date asc, time_slot asc").
		Find(&appts).Error
	if err != nil {
		return nil, fmt.Errorf("find appointments by window: %w", err)
	}
	return appts, nil
}

// FindDueReminders returns confirmed, not yet reminded appointments whose
// date lies in [start, end]
func (s *GormStore) FindDueReminders(ctx context.Context, start, end time.Time) ([]models.Appointment, error) {
	var appts []models.Appointment
	err := s.db.WithContext(ctx).
		Where("status = ? AND reminder_sent = ? AND date BETWEEN ? AND ?", models.StatusConfirmed, false, start, end).
		Order("date asc, time_slot asc").
		Find(&appts).Error
	if err != nil {
		return nil, fmt.Errorf("find due reminders: %w", err)
	}
	return appts, nil
}

// UpdateStatus moves the appointment from one status to another in a single
// conditional update
func (s *GormStore) UpdateStatus(ctx context.Context, id string, from, to models.AppointmentStatus) (*models.Appointment, error) {
	result := s.db.WithContext(ctx).
		Model(&models.Appointment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now()})
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("update status of %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, s.missOrStale(ctx, id)
	}
	return s.Get(ctx, id)
}

// SetMeetingLink stores the admin supplied video call link
func (s *GormStore) SetMeetingLink(ctx context.Context, id, link string) (*models.Appointment, error) {
	result := s.db.WithContext(ctx).
		Model(&models.Appointment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"actual_meeting_link": link, "updated_at": time.Now()})
	if result.Error != nil {
		return nil, fmt.Errorf("set meeting link of %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

// MarkReminded sets reminder_sent on a confirmed appointment. Marking an
// already reminded appointment is a no-op.
func (s *GormStore) MarkReminded(ctx context.Context, id string) error {
	_, err := s.ClaimReminder(ctx, id)
	return err
}

// ClaimReminder flips reminder_sent from false to true on a confirmed
// appointment and reports whether this call made the change. false with a nil
// error means another scan marked it first.
func (s *GormStore) ClaimReminder(ctx context.Context, id string) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&models.Appointment{}).
		Where("id = ? AND status = ? AND reminder_sent = ?", id, models.StatusConfirmed, false).
		Updates(map[string]interface{}{"reminder_sent": true, "updated_at": time.Now()})
	if result.Error != nil {
		return false, fmt.Errorf("mark %s reminded: %w", id, result.Error)
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	appt, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if appt.ReminderSent {
		return false, nil
	}
	return false, ErrStale
}

// ListAll returns every appointment ordered by date then slot
func (s *GormStore) ListAll(ctx context.Context) ([]models.Appointment, error) {
	var appts []models.Appointment
	if err := s.db.WithContext(ctx).Order("date asc, time_slot asc").Find(&appts).Error; err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

// ListByEmail returns the appointments booked with an email address
func (s *GormStore) ListByEmail(ctx context.Context, email string) ([]models.Appointment, error) {
	var appts []models.Appointment
	err := s.db.WithContext(ctx).
		Where("email = ?", email).
		Order("date asc, time_slot asc").
		Find(&appts).Error
	if err != nil {
		return nil, fmt.Errorf("list appointments of %s: %w", email, err)
	}
	return appts, nil
}

// missOrStale tells apart an unknown id from a failed status guard
func (s *GormStore) missOrStale(ctx context.Context, id string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Appointment{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("check appointment %s: %w", id, err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrStale
}

// NotificationLogStore records notification outcomes
type NotificationLogStore struct {
	db *gorm.DB
}

// NewNotificationLogStore wraps an open gorm connection
func NewNotificationLogStore(db *gorm.DB) *NotificationLogStore {
	return &NotificationLogStore{db: db}
}

// Record inserts one delivery outcome
func (s *NotificationLogStore) Record(ctx context.Context, entry *models.NotificationLog) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("record notification: %w", err)
	}
	return nil
}
