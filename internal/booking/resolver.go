package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"slotbook/internal/models"
	"slotbook/internal/slots"
	"slotbook/internal/store"

	"github.com/google/uuid"
)

// meetingInstructions is stored as the meeting link placeholder until an
// admin attaches the real link
const meetingInstructions = "Our admin will send you the Google Meet link before your appointment time."

// AvailableSlots returns the calendar slots of date that no active
// appointment holds, in calendar order
func (s *Service) AvailableSlots(ctx context.Context, date time.Time) ([]string, error) {
	date = slots.Day(date)
	all := slots.SlotsFor(date)
	if len(all) == 0 {
		return all, nil
	}

	booked, err := s.store.FindByDate(ctx, date)
	if err != nil {
		return nil, &StoreError{Op: "load bookings", Err: err}
	}

	taken := make(map[string]struct{}, len(booked))
	for _, appt := range booked {
		if appt.IsActive() {
			taken[appt.TimeSlot] = struct{}{}
		}
	}

	free := make([]string, 0, len(all))
	for _, label := range all {
		if _, ok := taken[label]; !ok {
			free = append(free, label)
		}
	}
	return free, nil
}

// Reserve books a slot as pending. The read-check-insert runs under a lock
// on the (date, slot) key; the store's own uniqueness check backs it up.
func (s *Service) Reserve(ctx context.Context, req models.BookAppointmentRequest) (*models.Appointment, error) {
	appt, err := s.validate(req)
	if err != nil {
		s.recorder.BookingAttempt(Kind(err))
		return nil, err
	}

	created, err := s.reserveSlot(ctx, appt)
	if err != nil {
		s.recorder.BookingAttempt(Kind(err))
		return nil, err
	}
	s.recorder.BookingAttempt("success")

	s.logger.Info("appointment booked",
		"appointment_id", created.ID,
		"date", created.Date.Format(slots.DateFormat),
		"time_slot", created.TimeSlot)

	s.notify(ctx, models.KindCreated, *created, nil)
	s.notify(ctx, models.KindAdminNew, *created, nil)
	return created, nil
}

func (s *Service) reserveSlot(ctx context.Context, appt *models.Appointment) (*models.Appointment, error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	unlock, err := s.locker.Lock(lockCtx, slotKey(appt.Date, appt.TimeSlot))
	if err != nil {
		return nil, &StoreError{Op: "lock slot", Err: err}
	}
	defer unlock()

	holder, err := s.store.FindByDateAndSlot(ctx, appt.Date, appt.TimeSlot)
	if err != nil {
		return nil, &StoreError{Op: "check slot", Err: err}
	}
	if holder != nil {
		return nil, fmt.Errorf("%w: %s at %s", ErrSlotTaken, appt.Date.Format(slots.DateFormat), appt.TimeSlot)
	}

	if _, err := s.store.Insert(ctx, appt); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("%w: %s at %s", ErrSlotTaken, appt.Date.Format(slots.DateFormat), appt.TimeSlot)
		}
		return nil, &StoreError{Op: "insert appointment", Err: err}
	}
	return appt, nil
}

// fieldLimits match the column sizes of models.Appointment
var fieldLimits = map[string]int{
	"name":    120,
	"email":   255,
	"phone":   40,
	"service": 120,
}

// validate checks the request and builds the pending appointment
func (s *Service) validate(req models.BookAppointmentRequest) (*models.Appointment, error) {
	if strings.TrimSpace(req.TimeSlot) == "" {
		req.TimeSlot = req.Time
	}
	fields := map[string]string{
		"name":     strings.TrimSpace(req.Name),
		"email":    strings.ToLower(strings.TrimSpace(req.Email)),
		"phone":    strings.TrimSpace(req.Phone),
		"service":  strings.TrimSpace(req.Service),
		"date":     strings.TrimSpace(req.Date),
		"timeSlot": strings.TrimSpace(req.TimeSlot),
	}

	var missing []string
	for _, name := range []string{"name", "email", "phone", "service", "date", "timeSlot"} {
		if fields[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Fields: missing}
	}

	for _, name := range []string{"name", "email", "phone", "service"} {
		v := fields[name]
		if strings.IndexFunc(v, unicode.IsControl) >= 0 {
			return nil, &ValidationError{Fields: []string{name}, Reason: name + " contains control characters"}
		}
		if n := utf8.RuneCountInString(v); n > fieldLimits[name] {
			return nil, &ValidationError{Fields: []string{name}, Reason: fmt.Sprintf("%s is longer than %d characters", name, fieldLimits[name])}
		}
	}

	if !strings.Contains(fields["email"], "@") {
		return nil, &ValidationError{Fields: []string{"email"}, Reason: "email address is malformed"}
	}

	date, err := slots.ParseDate(fields["date"])
	if err != nil {
		return nil, &ValidationError{Fields: []string{"date"}, Reason: err.Error()}
	}

	if !slots.Contains(date, fields["timeSlot"]) {
		return nil, fmt.Errorf("%w: %s on %s", ErrInvalidSlot, fields["timeSlot"], date.Weekday())
	}

	appt := &models.Appointment{
		ID:          uuid.NewString(),
		Name:        fields["name"],
		Email:       fields["email"],
		Phone:       fields["phone"],
		Service:     fields["service"],
		Date:        date,
		TimeSlot:    fields["timeSlot"],
		Message:     strings.TrimSpace(req.Message),
		Status:      models.StatusPending,
		MeetingLink: meetingInstructions,
	}
	appt.MeetingID = MeetingID(s.prefix, appt)
	return appt, nil
}

// ListAll returns every appointment ordered by date then slot
func (s *Service) ListAll(ctx context.Context) ([]models.Appointment, error) {
	appts, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, &StoreError{Op: "list appointments", Err: err}
	}
	return appts, nil
}

// ListByEmail returns the appointments booked with email
func (s *Service) ListByEmail(ctx context.Context, email string) ([]models.Appointment, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, &ValidationError{Fields: []string{"email"}}
	}
	appts, err := s.store.ListByEmail(ctx, email)
	if err != nil {
		return nil, &StoreError{Op: "list appointments by email", Err: err}
	}
	return appts, nil
}

func slotKey(date time.Time, slot string) string {
	return date.Format(slots.DateFormat) + "/" + slot
}

// MeetingID builds the reference quoted to the client: prefix, MMDD, HHMM and
// the last six characters of the appointment id, upper-cased
func MeetingID(prefix string, appt *models.Appointment) string {
	id := strings.ReplaceAll(appt.ID, "-", "")
	if len(id) > 6 {
		id = id[len(id)-6:]
	}
	return fmt.Sprintf("%s%s%s%s",
		prefix,
		appt.Date.Format("0102"),
		strings.ReplaceAll(appt.TimeSlot, ":", ""),
		strings.ToUpper(id))
}
