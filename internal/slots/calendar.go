// Package slots holds the business-hours policy: which time labels can be
// booked on a given calendar date.
package slots

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DateFormat is the wire format of a calendar date
	DateFormat = "2006-01-02"
	// LabelFormat is the format of a slot label
	LabelFormat = "15:04"
)

// policy maps each weekday to its ordered slot labels. Sunday is closed.
var policy = map[time.Weekday][]string{
	time.Monday:    hourly(9, 16),
	time.Tuesday:   hourly(9, 16),
	time.Wednesday: hourly(9, 16),
	time.Thursday:  hourly(9, 16),
	time.Friday:    hourly(9, 16),
	time.Saturday:  hourly(10, 14),
}

func hourly(first, last int) []string {
	labels := make([]string, 0, last-first+1)
	for h := first; h <= last; h++ {
		labels = append(labels, fmt.Sprintf("%02d:00", h))
	}
	return labels
}

// SlotsFor returns the bookable labels for the weekday of date, in order.
// The returned slice is owned by the caller.
func SlotsFor(date time.Time) []string {
	labels := policy[date.Weekday()]
	out := make([]string, len(labels))
	copy(out, labels)
	return out
}

// Contains reports whether label is a bookable slot on date
func Contains(date time.Time, label string) bool {
	for _, l := range policy[date.Weekday()] {
		if l == label {
			return true
		}
	}
	return false
}

// Day strips the time of day, keeping the calendar date of t as seen in t's
// own location. The result is midnight UTC, which is how dates are stored.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts "YYYY-MM-DD" or an RFC 3339 timestamp and returns the
// calendar date it names.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if d, err := time.Parse(DateFormat, s); err == nil {
		return d, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return Day(t), nil
}

// Instant combines a calendar date and a slot label into the moment the
// appointment starts in loc.
func Instant(date time.Time, label string, loc *time.Location) (time.Time, error) {
	clock, err := time.Parse(LabelFormat, label)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time slot %q: %w", label, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(date.Year(), date.Month(), date.Day(), clock.Hour(), clock.Minute(), 0, 0, loc), nil
}

// FormatLabel renders a slot label in 12-hour form, e.g. "09:00" -> "9:00 AM".
// Labels that do not parse are returned unchanged.
func FormatLabel(label string) string {
	clock, err := time.Parse(LabelFormat, label)
	if err != nil {
		return label
	}
	return clock.Format("3:04 PM")
}
