// Package booking implements slot availability, reservations and the
// appointment lifecycle.
package booking

import (
	"context"
	"log/slog"
	"time"

	"slotbook/internal/models"
)

const (
	defaultLockTimeout   = 5 * time.Second
	defaultMeetingPrefix = "TAX"
	// statusRetries bounds how often SetStatus re-reads a record that moved
	// under it
	statusRetries = 3
)

// Service is the booking core shared by the HTTP layer
type Service struct {
	store       AppointmentStore
	notifier    Notifier
	locker      Locker
	recorder    Recorder
	logger      *slog.Logger
	permissive  bool
	lockTimeout time.Duration
	prefix      string
}

type Option func(*Service)

// WithPermissiveTransitions accepts any change between known statuses
func WithPermissiveTransitions(enabled bool) Option {
	return func(s *Service) { s.permissive = enabled }
}

// WithLockTimeout bounds how long Reserve waits for the slot lock
func WithLockTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithMeetingPrefix sets the prefix of generated meeting references
func WithMeetingPrefix(prefix string) Option {
	return func(s *Service) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithRecorder reports booking counters to r
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// NewService wires the core. locker may be nil, in which case an in-process
// LocalLocker is used.
func NewService(store AppointmentStore, notifier Notifier, locker Locker, logger *slog.Logger, opts ...Option) *Service {
	if locker == nil {
		locker = NewLocalLocker()
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:       store,
		notifier:    notifier,
		locker:      locker,
		recorder:    nopRecorder{},
		logger:      logger,
		lockTimeout: defaultLockTimeout,
		prefix:      defaultMeetingPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// notify hands a message to the notifier and only logs when it is refused
func (s *Service) notify(ctx context.Context, kind models.NotificationKind, appt models.Appointment, extra map[string]any) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, kind, appt, extra); err != nil {
		s.logger.Warn("notification not queued",
			"kind", kind, "appointment_id", appt.ID, "err", err)
	}
}

type nopRecorder struct{}

func (nopRecorder) BookingAttempt(string)       {}
func (nopRecorder) StatusChange(string, string) {}
