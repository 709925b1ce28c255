package booking

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"slotbook/internal/models"
	"slotbook/internal/store"
)

// SetStatus moves an appointment to status. The change is written with a
// conditional update on the status that was checked, so a concurrent change
// is re-read and re-checked rather than overwritten.
func (s *Service) SetStatus(ctx context.Context, id, status string) (*models.Appointment, error) {
	next, ok := models.ParseStatus(status)
	if !ok {
		return nil, &ValidationError{
			Fields: []string{"status"},
			Reason: fmt.Sprintf("unknown status %q", status),
		}
	}

	var updated *models.Appointment
	for attempt := 0; ; attempt++ {
		current, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if !s.allowed(current.Status, next) {
			return nil, &TransitionError{From: current.Status, To: next}
		}

		updated, err = s.store.UpdateStatus(ctx, id, current.Status, next)
		if err == nil {
			s.recorder.StatusChange(string(current.Status), string(next))
			s.logger.Info("appointment status changed",
				"appointment_id", id, "from", current.Status, "to", next)
			break
		}
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		case errors.Is(err, store.ErrConflict):
			return nil, fmt.Errorf("%w: %s at %s", ErrSlotTaken, current.Date.Format("2006-01-02"), current.TimeSlot)
		case errors.Is(err, store.ErrStale) && attempt < statusRetries:
			continue
		default:
			return nil, &StoreError{Op: "update status", Err: err}
		}
	}

	switch next {
	case models.StatusConfirmed:
		s.notify(ctx, models.KindConfirmedToClient, *updated, nil)
	case models.StatusCancelled:
		s.notify(ctx, models.KindCancelledToClient, *updated, nil)
	}
	return updated, nil
}

// AttachMeetingLink stores the real video call link and sends it to the client
func (s *Service) AttachMeetingLink(ctx context.Context, id, link string) (*models.Appointment, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return nil, &ValidationError{Fields: []string{"meetingLink"}}
	}
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return nil, &ValidationError{Fields: []string{"meetingLink"}, Reason: "meeting link must be an absolute http(s) URL"}
	}

	updated, err := s.store.SetMeetingLink(ctx, id, link)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, &StoreError{Op: "set meeting link", Err: err}
	}

	s.logger.Info("meeting link attached", "appointment_id", id)
	s.notify(ctx, models.KindMeetingLink, *updated, map[string]any{"meetingLink": link})
	return updated, nil
}

// Get loads one appointment
func (s *Service) Get(ctx context.Context, id string) (*models.Appointment, error) {
	return s.load(ctx, id)
}

func (s *Service) load(ctx context.Context, id string) (*models.Appointment, error) {
	appt, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, &StoreError{Op: "load appointment", Err: err}
	}
	return appt, nil
}

// allowed applies the transition table. In permissive mode any change
// between different known statuses goes through.
func (s *Service) allowed(from, to models.AppointmentStatus) bool {
	if s.permissive {
		return from != to
	}
	return from.CanTransitionTo(to)
}
