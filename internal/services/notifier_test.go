package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"slotbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMailer struct {
	mu       sync.Mutex
	failures int
	sent     []EmailMessage
	calls    int
}

func (m *fakeMailer) Name() string { return "fake" }

func (m *fakeMailer) Send(ctx context.Context, msg EmailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failures > 0 {
		m.failures--
		return errors.New("smtp unavailable")
	}
	m.sent = append(m.sent, msg)
	return nil
}

type fakeSMS struct {
	mu   sync.Mutex
	sent []string
}

func (s *fakeSMS) Send(ctx context.Context, to, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, to+": "+body)
	return nil
}

type memoryDeliveryLog struct {
	mu      sync.Mutex
	entries []models.NotificationLog
}

func (l *memoryDeliveryLog) Record(ctx context.Context, entry *models.NotificationLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, *entry)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAppointment() models.Appointment {
	return models.Appointment{
		ID:        "appt-1",
		Name:      "Ada Client",
		Email:     "ada@example.com",
		Phone:     "+15550001111",
		Service:   "Tax consultation",
		Date:      time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
		TimeSlot:  "14:00",
		Status:    models.StatusPending,
		MeetingID: "TAX10191400ABCDEF",
	}
}

func testOptions() DispatcherOptions {
	return DispatcherOptions{
		Workers:     1,
		QueueSize:   8,
		Timeout:     time.Second,
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
		AdminEmail:  "admin@example.com",
		AdminPhone:  "+15559990000",
	}
}

func stop(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))
}

func TestDispatcher_DeliversAndLogs(t *testing.T) {
	mailer := &fakeMailer{}
	logs := &memoryDeliveryLog{}
	d := NewDispatcher(testOptions(), mailer, nil, logs, nil, quietLogger())
	d.Start()

	require.NoError(t, d.Notify(context.Background(), models.KindCreated, testAppointment(), nil))
	require.NoError(t, d.Notify(context.Background(), models.KindAdminNew, testAppointment(), nil))
	stop(t, d)

	require.Len(t, mailer.sent, 2)
	assert.Equal(t, "ada@example.com", mailer.sent[0].ToEmail)
	assert.Equal(t, "admin@example.com", mailer.sent[1].ToEmail)

	require.Len(t, logs.entries, 2)
	for _, e := range logs.entries {
		assert.Equal(t, models.DeliverySent, e.Status)
		assert.Equal(t, 1, e.Attempts)
		assert.Equal(t, "appt-1", e.AppointmentID)
	}
}

func TestDispatcher_RetriesThenFails(t *testing.T) {
	mailer := &fakeMailer{failures: 10}
	logs := &memoryDeliveryLog{}
	d := NewDispatcher(testOptions(), mailer, nil, logs, nil, quietLogger())
	d.Start()

	require.NoError(t, d.Notify(context.Background(), models.KindConfirmedToClient, testAppointment(), nil))
	stop(t, d)

	assert.Equal(t, 3, mailer.calls)
	require.Len(t, logs.entries, 1)
	assert.Equal(t, models.DeliveryFailed, logs.entries[0].Status)
	assert.Equal(t, 3, logs.entries[0].Attempts)
	assert.Contains(t, logs.entries[0].ErrorMessage, "smtp unavailable")
}

func TestDispatcher_RecoversAfterTransientFailure(t *testing.T) {
	mailer := &fakeMailer{failures: 1}
	logs := &memoryDeliveryLog{}
	d := NewDispatcher(testOptions(), mailer, nil, logs, nil, quietLogger())
	d.Start()

	require.NoError(t, d.Notify(context.Background(), models.KindCancelledToClient, testAppointment(), nil))
	stop(t, d)

	require.Len(t, logs.entries, 1)
	assert.Equal(t, models.DeliverySent, logs.entries[0].Status)
	assert.Equal(t, 2, logs.entries[0].Attempts)
}

func TestDispatcher_SkipsWithoutCredentials(t *testing.T) {
	logs := &memoryDeliveryLog{}
	d := NewDispatcher(testOptions(), DisabledMailer{}, nil, logs, nil, quietLogger())
	d.Start()

	require.NoError(t, d.Notify(context.Background(), models.KindCreated, testAppointment(), nil))
	stop(t, d)

	require.Len(t, logs.entries, 1)
	assert.Equal(t, models.DeliverySkipped, logs.entries[0].Status)
	assert.Empty(t, logs.entries[0].ErrorMessage)
}

func TestDispatcher_AdminReminderAlsoTexts(t *testing.T) {
	mailer := &fakeMailer{}
	sms := &fakeSMS{}
	logs := &memoryDeliveryLog{}
	d := NewDispatcher(testOptions(), mailer, sms, logs, nil, quietLogger())
	d.Start()

	extra := map[string]any{"minutesUntil": 30}
	require.NoError(t, d.Notify(context.Background(), models.KindAdminReminder, testAppointment(), extra))
	stop(t, d)

	require.Len(t, mailer.sent, 1)
	assert.Contains(t, mailer.sent[0].Subject, "30 Minutes")
	require.Len(t, sms.sent, 1)
	assert.True(t, strings.HasPrefix(sms.sent[0], "+15559990000: "))
	assert.Contains(t, sms.sent[0], "2:00 PM")

	require.Len(t, logs.entries, 2)
	assert.Equal(t, "email", logs.entries[0].Channel)
	assert.Equal(t, "sms", logs.entries[1].Channel)
	assert.EqualValues(t, 30, logs.entries[1].Extra["minutesUntil"])
}

func TestDispatcher_QueueFullAndStopped(t *testing.T) {
	opts := testOptions()
	opts.QueueSize = 1
	d := NewDispatcher(opts, &fakeMailer{}, nil, nil, nil, quietLogger())

	// no workers yet, so the queue cannot drain
	require.NoError(t, d.Notify(context.Background(), models.KindCreated, testAppointment(), nil))
	assert.ErrorIs(t, d.Notify(context.Background(), models.KindCreated, testAppointment(), nil), ErrQueueFull)

	d.Start()
	stop(t, d)
	assert.ErrorIs(t, d.Notify(context.Background(), models.KindCreated, testAppointment(), nil), ErrDispatcherOff)
	stop(t, d)
}

func TestComposeEmail(t *testing.T) {
	appt := testAppointment()
	appt.Name = "<b>Ada</b>"

	msg, err := ComposeEmail(models.KindCreated, appt, nil, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", msg.ToEmail)
	assert.Contains(t, msg.Plain, "2:00 PM")
	assert.Contains(t, msg.Plain, "TAX10191400ABCDEF")
	assert.NotContains(t, msg.HTML, "<b>Ada</b>")

	msg, err = ComposeEmail(models.KindMeetingLink, appt, map[string]any{"meetingLink": "https://meet.example.com/x"}, "")
	require.NoError(t, err)
	assert.Contains(t, msg.Plain, "https://meet.example.com/x")

	_, err = ComposeEmail(models.KindAdminNew, appt, nil, "")
	assert.Error(t, err)

	_, err = ComposeEmail("carrier-pigeon", appt, nil, "admin@example.com")
	assert.Error(t, err)
}

func TestBuildMIME_KeepsHeadersOnOneLine(t *testing.T) {
	raw := string(buildMIME("no-reply@example.com", EmailMessage{
		ToEmail: "admin@example.com",
		Subject: "New Appointment: Eve\r\nBcc: victim@evil.test",
		Plain:   "line one\r\nline two",
	}))

	head, body, ok := strings.Cut(raw, "\r\n\r\n")
	require.True(t, ok)
	assert.Contains(t, head, "Subject: New Appointment: Eve Bcc: victim@evil.test\r\n")
	for _, line := range strings.Split(head, "\r\n") {
		assert.False(t, strings.HasPrefix(line, "Bcc:"), "injected header line %q", line)
	}
	assert.Contains(t, body, "line one\r\nline two")
}
