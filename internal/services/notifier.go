package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"slotbook/internal/models"

	"gorm.io/datatypes"
)

var (
	ErrQueueFull     = errors.New("notification queue is full")
	ErrDispatcherOff = errors.New("notification dispatcher is stopped")
)

const (
	channelEmail = "email"
	channelSMS   = "sms"
)

// DeliveryLog persists delivery outcomes
type DeliveryLog interface {
	Record(ctx context.Context, entry *models.NotificationLog) error
}

// DeliveryMetrics receives delivery counters
type DeliveryMetrics interface {
	NotificationResult(kind, channel, status string)
	QueueDepth(n int)
}

type DispatcherOptions struct {
	Workers     int
	QueueSize   int
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
	AdminEmail  string
	AdminPhone  string
}

type job struct {
	kind  models.NotificationKind
	appt  models.Appointment
	extra map[string]any
}

// Dispatcher queues notifications and delivers them from a fixed worker pool.
// Each delivery is retried with exponential backoff and its outcome written
// to the delivery log.
type Dispatcher struct {
	opts    DispatcherOptions
	mailer  Mailer
	sms     SMSSender
	deliver DeliveryLog
	metrics DeliveryMetrics
	logger  *slog.Logger

	jobs   chan job
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	abort  chan struct{}
	once   sync.Once
	now    func() time.Time
}

// NewDispatcher builds a dispatcher. sms, deliveries and m may be nil.
func NewDispatcher(opts DispatcherOptions, mailer Mailer, sms SMSSender, deliveries DeliveryLog, m DeliveryMetrics, logger *slog.Logger) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 2 * time.Second
	}
	if mailer == nil {
		mailer = DisabledMailer{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		opts:    opts,
		mailer:  mailer,
		sms:     sms,
		deliver: deliveries,
		metrics: m,
		logger:  logger,
		jobs:    make(chan job, opts.QueueSize),
		abort:   make(chan struct{}),
		now:     time.Now,
	}
}

// Start launches the worker pool
func (d *Dispatcher) Start() {
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	if d.mailer.Name() == "disabled" {
		d.logger.Warn("email credentials not configured, email notifications will be skipped")
	}
}

// Notify queues a message without blocking
func (d *Dispatcher) Notify(ctx context.Context, kind models.NotificationKind, appt models.Appointment, extra map[string]any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherOff
	}
	select {
	case d.jobs <- job{kind: kind, appt: appt, extra: extra}:
		d.reportDepth()
		return nil
	default:
		d.logger.Error("notification dropped, queue full", "kind", kind, "appointment_id", appt.ID)
		return ErrQueueFull
	}
}

// Stop refuses new jobs and waits for the queue to drain. When ctx ends
// first, pending retries are abandoned.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.once.Do(func() { close(d.abort) })
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.reportDepth()
		d.handle(j)
	}
}

func (d *Dispatcher) handle(j job) {
	msg, err := ComposeEmail(j.kind, j.appt, j.extra, d.opts.AdminEmail)
	if err != nil {
		d.record(j, channelEmail, msg.ToEmail, models.DeliveryFailed, 0, err)
	} else {
		attempts, err := d.withRetry(func(ctx context.Context) error { return d.mailer.Send(ctx, msg) })
		switch {
		case errors.Is(err, ErrMailDisabled):
			d.logger.Info("email credentials not configured, skipping notification",
				"kind", j.kind, "appointment_id", j.appt.ID)
			d.record(j, channelEmail, msg.ToEmail, models.DeliverySkipped, attempts, nil)
		case err != nil:
			d.record(j, channelEmail, msg.ToEmail, models.DeliveryFailed, attempts, err)
		default:
			d.record(j, channelEmail, msg.ToEmail, models.DeliverySent, attempts, nil)
		}
	}

	if j.kind == models.KindAdminReminder && d.sms != nil && d.opts.AdminPhone != "" {
		minutes, _ := j.extra["minutesUntil"].(int)
		body := ComposeReminderSMS(j.appt, minutes)
		attempts, err := d.withRetry(func(ctx context.Context) error { return d.sms.Send(ctx, d.opts.AdminPhone, body) })
		status := models.DeliverySent
		if err != nil {
			status = models.DeliveryFailed
		}
		d.record(j, channelSMS, d.opts.AdminPhone, status, attempts, err)
	}
}

// withRetry runs send until it succeeds, the attempts run out or the
// dispatcher is aborted. ErrMailDisabled is never retried.
func (d *Dispatcher) withRetry(send func(ctx context.Context) error) (int, error) {
	var err error
	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), d.opts.Timeout)
		err = send(ctx)
		cancel()
		if err == nil || errors.Is(err, ErrMailDisabled) {
			return attempt, err
		}
		if attempt == d.opts.MaxAttempts {
			return attempt, err
		}

		wait := d.opts.Backoff << (attempt - 1)
		select {
		case <-time.After(wait):
		case <-d.abort:
			return attempt, fmt.Errorf("aborted after %d attempts: %w", attempt, err)
		}
	}
	return d.opts.MaxAttempts, err
}

func (d *Dispatcher) record(j job, channel, recipient, status string, attempts int, sendErr error) {
	if d.metrics != nil {
		d.metrics.NotificationResult(string(j.kind), channel, status)
	}

	attrs := []any{"kind", j.kind, "channel", channel, "appointment_id", j.appt.ID, "attempts", attempts}
	if sendErr != nil {
		d.logger.Error("notification failed", append(attrs, "err", sendErr)...)
	} else if status == models.DeliverySent {
		d.logger.Info("notification sent", attrs...)
	}

	if d.deliver == nil {
		return
	}
	entry := &models.NotificationLog{
		AppointmentID: j.appt.ID,
		Kind:          j.kind,
		Channel:       channel,
		Recipient:     recipient,
		Status:        status,
		Attempts:      attempts,
		SentAt:        d.now(),
	}
	if sendErr != nil {
		entry.ErrorMessage = sendErr.Error()
	}
	if len(j.extra) > 0 {
		entry.Extra = datatypes.JSONMap(j.extra)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.deliver.Record(ctx, entry); err != nil {
		d.logger.Warn("failed to write notification log", "appointment_id", j.appt.ID, "err", err)
	}
}

func (d *Dispatcher) reportDepth() {
	if d.metrics != nil {
		d.metrics.QueueDepth(len(d.jobs))
	}
}
