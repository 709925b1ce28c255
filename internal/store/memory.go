package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"slotbook/internal/models"

	"github.com/google/uuid"
)

// MemoryStore keeps appointments in a map. It enforces the same active slot
// uniqueness as the postgres partial index.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]models.Appointment
	now   func() time.Time
}

// NewMemoryStore returns an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]models.Appointment),
		now:   time.Now,
	}
}

func (s *MemoryStore) Insert(ctx context.Context, appt *models.Appointment) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if appt.Status != models.StatusCancelled && s.holderLocked(appt.Date, appt.TimeSlot) != nil {
		return "", ErrConflict
	}
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	if appt.Status == "" {
		appt.Status = models.StatusPending
	}
	now := s.now()
	appt.CreatedAt = now
	appt.UpdatedAt = now
	s.items[appt.ID] = *appt
	return appt.ID, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	appt, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &appt, nil
}

func (s *MemoryStore) FindByDateAndSlot(ctx context.Context, date time.Time, slot string) (*models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if holder := s.holderLocked(date, slot); holder != nil {
		appt := *holder
		return &appt, nil
	}
	return nil, nil
}

func (s *MemoryStore) FindByDate(ctx context.Context, date time.Time) ([]models.Appointment, error) {
	return s.filter(func(a models.Appointment) bool {
		return a.Date.Equal(date) && a.IsActive()
	}), nil
}

func (s *MemoryStore) FindByStatusAndWindow(ctx context.Context, status models.AppointmentStatus, start, end time.Time) ([]models.Appointment, error) {
	return s.filter(func(a models.Appointment) bool {
		return a.Status == status && !a.Date.Before(start) && !a.Date.After(end)
	}), nil
}

func (s *MemoryStore) FindDueReminders(ctx context.Context, start, end time.Time) ([]models.Appointment, error) {
	return s.filter(func(a models.Appointment) bool {
		return a.Status == models.StatusConfirmed && !a.ReminderSent &&
			!a.Date.Before(start) && !a.Date.After(end)
	}), nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, from, to models.AppointmentStatus) (*models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	if appt.Status != from {
		return nil, ErrStale
	}
	if to != models.StatusCancelled && from == models.StatusCancelled {
		// reviving a cancelled booking must not collide with a newer one
		if s.holderLocked(appt.Date, appt.TimeSlot) != nil {
			return nil, ErrConflict
		}
	}
	appt.Status = to
	appt.UpdatedAt = s.now()
	s.items[id] = appt
	return &appt, nil
}

func (s *MemoryStore) SetMeetingLink(ctx context.Context, id, link string) (*models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	appt.ActualMeetingLink = link
	appt.UpdatedAt = s.now()
	s.items[id] = appt
	return &appt, nil
}

func (s *MemoryStore) MarkReminded(ctx context.Context, id string) error {
	_, err := s.ClaimReminder(ctx, id)
	return err
}

func (s *MemoryStore) ClaimReminder(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.items[id]
	if !ok {
		return false, ErrNotFound
	}
	if appt.ReminderSent {
		return false, nil
	}
	if appt.Status != models.StatusConfirmed {
		return false, ErrStale
	}
	appt.ReminderSent = true
	appt.UpdatedAt = s.now()
	s.items[id] = appt
	return true, nil
}

func (s *MemoryStore) ListAll(ctx context.Context) ([]models.Appointment, error) {
	return s.filter(func(models.Appointment) bool { return true }), nil
}

func (s *MemoryStore) ListByEmail(ctx context.Context, email string) ([]models.Appointment, error) {
	return s.filter(func(a models.Appointment) bool { return a.Email == email }), nil
}

// holderLocked returns the active appointment on (date, slot). Callers hold mu.
func (s *MemoryStore) holderLocked(date time.Time, slot string) *models.Appointment {
	for _, a := range s.items {
		if a.Date.Equal(date) && a.TimeSlot == slot && a.IsActive() {
			return &a
		}
	}
	return nil
}

// filter returns matching appointments ordered by date then slot
func (s *MemoryStore) filter(keep func(models.Appointment) bool) []models.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Appointment, 0)
	for _, a := range s.items {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].TimeSlot < out[j].TimeSlot
	})
	return out
}
