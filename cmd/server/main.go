package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"slotbook/internal/auth"
	"slotbook/internal/booking"
	"slotbook/internal/config"
	"slotbook/internal/database"
	"slotbook/internal/handlers"
	"slotbook/internal/metrics"
	"slotbook/internal/services"
	"slotbook/internal/store"
	"slotbook/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// a missing .env is fine, real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("SLOTBOOK_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logger := utils.NewLogger("slotbook", cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.InitDB(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close(db)

	appointments := store.NewGormStore(db)
	deliveries := store.NewNotificationLogStore(db)
	m := metrics.New("slotbook")

	mailer := services.NewMailer(cfg.Email)
	var sms services.SMSSender
	if sender := services.NewTwilioSender(cfg.SMS); sender != nil {
		sms = sender
	}
	dispatcher := services.NewDispatcher(services.DispatcherOptions{
		Workers:     cfg.Notify.Workers,
		QueueSize:   cfg.Notify.QueueSize,
		Timeout:     cfg.Notify.Timeout,
		MaxAttempts: cfg.Notify.MaxAttempts,
		Backoff:     cfg.Notify.Backoff,
		AdminEmail:  cfg.Email.AdminRecipient(),
		AdminPhone:  cfg.SMS.AdminPhone,
	}, mailer, sms, deliveries, m, logger)
	dispatcher.Start()
	logger.Info("notification dispatcher started", "mailer", mailer.Name(), "sms", sms != nil)

	locker, closeLocker, err := newLocker(cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer closeLocker()

	svc := booking.NewService(appointments, dispatcher, locker, logger,
		booking.WithPermissiveTransitions(cfg.Booking.PermissiveTransitions),
		booking.WithLockTimeout(cfg.Booking.LockTimeout),
		booking.WithMeetingPrefix(cfg.Booking.MeetingPrefix),
		booking.WithRecorder(m),
	)

	loc, err := cfg.Reminder.Location()
	if err != nil {
		return err
	}
	worker := services.NewReminderWorker(appointments, dispatcher, services.ReminderOptions{
		Schedule:  cfg.Reminder.Schedule,
		Lead:      cfg.Reminder.Lead,
		Tolerance: cfg.Reminder.Tolerance,
		Location:  loc,
		Metrics:   m,
		Locker:    locker,
	}, logger)
	var reminders handlers.ReminderRunner
	if cfg.Reminder.Enabled {
		if err := worker.Start(); err != nil {
			return err
		}
		reminders = worker
	}

	var (
		tokens *auth.TokenManager
		staff  *auth.StaffAuthenticator
	)
	if cfg.Auth.Enabled() {
		tokens = auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry)
		if cfg.Auth.AdminPasswordHash != "" {
			staff = auth.NewStaffAuthenticator(cfg.Auth.AdminUsername, cfg.Auth.AdminPasswordHash, tokens)
		}
	}

	health := func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}

	gin.SetMode(cfg.Server.Mode)
	h := handlers.New(svc, reminders, staff, health, logger)
	router, err := handlers.NewRouter(h, handlers.RouterOptions{
		CORSOrigins:    cfg.Server.CORSOrigins,
		TrustedProxies: cfg.Server.TrustedProxies,
		Tokens:         tokens,
		Metrics:        m,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "err", err)
	}
	if err := worker.Stop(shutdownCtx); err != nil {
		logger.Error("reminder scheduler shutdown", "err", err)
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		logger.Error("notification dispatcher shutdown", "err", err)
	}
	logger.Info("server stopped")
	return nil
}

// newLocker uses redis when configured so several instances share slot locks
func newLocker(cfg config.RedisConfig, logger *slog.Logger) (booking.Locker, func(), error) {
	if cfg.URL == "" {
		return booking.NewLocalLocker(), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	logger.Info("slot locking enabled (redis)", "addr", opts.Addr)
	return booking.NewRedisLocker(rdb, cfg.LockPrefix, cfg.LockTTL, logger), func() { _ = rdb.Close() }, nil
}
