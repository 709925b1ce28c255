package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"slotbook/internal/models"
	"slotbook/internal/slots"

	"github.com/robfig/cron/v3"
)

// Clock supplies the current time
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// ReminderStore is the part of the appointment store the worker scans
type ReminderStore interface {
	FindDueReminders(ctx context.Context, start, end time.Time) ([]models.Appointment, error)
	// ClaimReminder marks the appointment reminded and reports false when
	// another scan already did
	ClaimReminder(ctx context.Context, id string) (bool, error)
}

// ReminderNotifier queues the admin reminder
type ReminderNotifier interface {
	Notify(ctx context.Context, kind models.NotificationKind, appt models.Appointment, extra map[string]any) error
}

// ScanLocker keeps scans on several server processes from overlapping
type ScanLocker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// scanLockKey is shared by every process scanning the same database
const scanLockKey = "reminder-scan"

// ReminderMetrics receives scan counters
type ReminderMetrics interface {
	RemindersSent(n int)
	ReminderScan(d time.Duration)
}

type ReminderOptions struct {
	Schedule  string
	Lead      time.Duration
	Tolerance time.Duration
	Location  *time.Location
	Clock     Clock
	Metrics   ReminderMetrics
	Locker    ScanLocker // nil only guards scans within this process
}

// ReminderWorker tells the admin about confirmed appointments that start in
// roughly Lead from now. Every appointment is reminded at most once.
type ReminderWorker struct {
	store    ReminderStore
	notifier ReminderNotifier
	opts     ReminderOptions
	logger   *slog.Logger
	cron     *cron.Cron

	// serializes scheduled and manual scans
	scanMu sync.Mutex
}

func NewReminderWorker(st ReminderStore, notifier ReminderNotifier, opts ReminderOptions, logger *slog.Logger) *ReminderWorker {
	if opts.Schedule == "" {
		opts.Schedule = "*/5 * * * *"
	}
	if opts.Lead <= 0 {
		opts.Lead = 30 * time.Minute
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = 5 * time.Minute
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = ClockFunc(time.Now)
	}
	if logger == nil {
		logger = slog.Default()
	}

	cl := cronLogger{logger: logger}
	return &ReminderWorker{
		store:    st,
		notifier: notifier,
		opts:     opts,
		logger:   logger,
		cron: cron.New(
			cron.WithLocation(opts.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
}

// Start schedules the scan
func (w *ReminderWorker) Start() error {
	_, err := w.cron.AddFunc(w.opts.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if _, err := w.ScanOnce(ctx); err != nil {
			w.logger.Error("reminder scan failed", "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid reminder schedule %q: %w", w.opts.Schedule, err)
	}
	w.cron.Start()
	w.logger.Info("reminder scheduler started", "schedule", w.opts.Schedule, "lead", w.opts.Lead)
	return nil
}

// Stop prevents further runs and waits for a running scan to finish
func (w *ReminderWorker) Stop(ctx context.Context) error {
	done := w.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ScanOnce runs one reminder pass and returns the appointments it reminded
func (w *ReminderWorker) ScanOnce(ctx context.Context) ([]models.Appointment, error) {
	w.scanMu.Lock()
	defer w.scanMu.Unlock()

	if w.opts.Locker != nil {
		unlock, err := w.opts.Locker.Lock(ctx, scanLockKey)
		if err != nil {
			return nil, fmt.Errorf("acquire reminder scan lock: %w", err)
		}
		defer unlock()
	}

	started := time.Now()
	defer func() {
		if w.opts.Metrics != nil {
			w.opts.Metrics.ReminderScan(time.Since(started))
		}
	}()

	now := w.opts.Clock.Now().In(w.opts.Location)
	earliest := w.opts.Lead - w.opts.Tolerance
	latest := w.opts.Lead + w.opts.Tolerance

	// dates are stored without a time of day, so narrow by calendar day
	// first and check the exact start below
	candidates, err := w.store.FindDueReminders(ctx,
		slots.Day(now.Add(earliest)), slots.Day(now.Add(latest)))
	if err != nil {
		return nil, fmt.Errorf("find due reminders: %w", err)
	}

	var reminded []models.Appointment
	for _, appt := range candidates {
		start, err := slots.Instant(appt.Date, appt.TimeSlot, w.opts.Location)
		if err != nil {
			w.logger.Warn("skipping appointment with bad time slot",
				"appointment_id", appt.ID, "time_slot", appt.TimeSlot)
			continue
		}
		until := start.Sub(now)
		if until < earliest || until > latest {
			continue
		}

		minutes := int(until.Round(time.Minute) / time.Minute)
		if err := w.notifier.Notify(ctx, models.KindAdminReminder, appt, map[string]any{"minutesUntil": minutes}); err != nil {
			// left unmarked so the next scan picks it up again
			w.logger.Warn("admin reminder not queued", "appointment_id", appt.ID, "err", err)
			continue
		}
		claimed, err := w.store.ClaimReminder(ctx, appt.ID)
		if err != nil {
			w.logger.Error("failed to mark appointment reminded", "appointment_id", appt.ID, "err", err)
			continue
		}
		if !claimed {
			w.logger.Warn("appointment was reminded by another scan", "appointment_id", appt.ID)
			continue
		}
		appt.ReminderSent = true
		reminded = append(reminded, appt)
	}

	if len(reminded) > 0 {
		w.logger.Info("admin reminders sent", "count", len(reminded))
		if w.opts.Metrics != nil {
			w.opts.Metrics.RemindersSent(len(reminded))
		}
	}
	return reminded, nil
}

// cronLogger routes cron's own logging into slog
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
