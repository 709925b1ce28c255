package database

import (
	"fmt"
	"log/slog"
	"time"

	"slotbook/internal/config"
	"slotbook/internal/models"
	"slotbook/internal/utils"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var DB *gorm.DB

// reminderScanPattern matches the reminder worker's polling query, which runs
// every few minutes and would otherwise flood the SQL log
const reminderScanPattern = "reminder_sent = false"

// activeSlotIndex keeps at most one non-cancelled appointment per slot
const activeSlotIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_appointment_active_slot
	ON appointment (date, time_slot) WHERE status <> 'cancelled'`

// Options tunes the connection
type Options struct {
	MaxRetries      int
	RetryDelay      time.Duration
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	Logger          *slog.Logger
	LogLevel        string
}

// InitDB opens the database described by cfg, runs migrations and stores
// the handle in DB
func InitDB(cfg config.DatabaseConfig, log *slog.Logger) (*gorm.DB, error) {
	db, err := Open(cfg.DSN(), Options{
		MaxRetries:      cfg.MaxRetries,
		RetryDelay:      cfg.RetryDelay,
		MaxIdleConns:    cfg.MaxIdleConns,
		MaxOpenConns:    cfg.MaxOpenConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		Logger:          log,
		LogLevel:        cfg.LogLevel,
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	DB = db
	if log != nil {
		log.Info("database connection established and migrations completed",
			"host", cfg.Host, "name", cfg.Name)
	}
	return db, nil
}

// Open connects to postgres with retry and configures the pool
func Open(dsn string, opts Options) (*gorm.DB, error) {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	baseLogger := logger.New(
		slog.NewLogLogger(opts.Logger.Handler(), slog.LevelInfo),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogLevel(opts.LogLevel),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	gormConfig := &gorm.Config{
		Logger: utils.NewCustomGormLogger(baseLogger, reminderScanPattern),
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
		PrepareStmt:    true,
		TranslateError: true, // unique violations surface as gorm.ErrDuplicatedKey
	}

	var (
		db  *gorm.DB
		err error
	)
	for i := 0; i < opts.MaxRetries; i++ {
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
		if err == nil {
			break
		}
		opts.Logger.Warn("database connection attempt failed", "attempt", i+1, "err", err)
		if i < opts.MaxRetries-1 {
			time.Sleep(opts.RetryDelay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", opts.MaxRetries, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	return db, nil
}

// Migrate creates the tables and the active slot index
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Appointment{},
		&models.NotificationLog{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := db.Exec(activeSlotIndex).Error; err != nil {
		return fmt.Errorf("failed to create active slot index: %w", err)
	}
	return nil
}

// Close releases the pool behind db
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
