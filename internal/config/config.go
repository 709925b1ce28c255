package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every structured environment override, e.g.
// SLOTBOOK_REMINDER__SCHEDULE sets reminder.schedule
const EnvPrefix = "SLOTBOOK_"

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Email    EmailConfig    `koanf:"email"`
	SMS      SMSConfig      `koanf:"sms"`
	Redis    RedisConfig    `koanf:"redis"`
	Notify   NotifyConfig   `koanf:"notify"`
	Reminder ReminderConfig `koanf:"reminder"`
	Booking  BookingConfig  `koanf:"booking"`
	Auth     AuthConfig     `koanf:"auth"`
	Log      LogConfig      `koanf:"log"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	TrustedProxies  []string      `koanf:"trusted_proxies"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	Mode            string        `koanf:"mode"` // gin mode: debug, release, test
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"` // takes precedence over the individual fields
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	User            string        `koanf:"user"`
	Password        string        `koanf:"password"`
	Name            string        `koanf:"name"`
	SSLMode         string        `koanf:"ssl_mode"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	MaxRetries      int           `koanf:"max_retries"`
	RetryDelay      time.Duration `koanf:"retry_delay"`
	LogLevel        string        `koanf:"log_level"`
}

// DSN returns the connection string
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=UTC connect_timeout=10",
		c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode)
}

type EmailConfig struct {
	SendGridAPIKey string `koanf:"sendgrid_api_key"`
	FromEmail      string `koanf:"from_email"`
	FromName       string `koanf:"from_name"`
	AdminEmail     string `koanf:"admin_email"`
	SMTPHost       string `koanf:"smtp_host"`
	SMTPPort       int    `koanf:"smtp_port"`
	SMTPUser       string `koanf:"smtp_user"`
	SMTPPassword   string `koanf:"smtp_password"`
}

// AdminRecipient is where admin notifications go, falling back to the
// relay account the way the legacy deployment did
func (c EmailConfig) AdminRecipient() string {
	if c.AdminEmail != "" {
		return c.AdminEmail
	}
	if c.SMTPUser != "" {
		return c.SMTPUser
	}
	return c.FromEmail
}

type SMSConfig struct {
	TwilioAccountSID string `koanf:"twilio_account_sid"`
	TwilioAuthToken  string `koanf:"twilio_auth_token"`
	FromNumber       string `koanf:"from_number"`
	AdminPhone       string `koanf:"admin_phone"`
}

// Enabled reports whether admin reminders are also sent by SMS
func (c SMSConfig) Enabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.FromNumber != "" && c.AdminPhone != ""
}

type RedisConfig struct {
	URL        string        `koanf:"url"`
	LockTTL    time.Duration `koanf:"lock_ttl"`
	LockPrefix string        `koanf:"lock_prefix"`
}

type NotifyConfig struct {
	Workers     int           `koanf:"workers"`
	QueueSize   int           `koanf:"queue_size"`
	Timeout     time.Duration `koanf:"timeout"`
	MaxAttempts int           `koanf:"max_attempts"`
	Backoff     time.Duration `koanf:"backoff"`
}

type ReminderConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Schedule  string        `koanf:"schedule"` // cron expression
	Lead      time.Duration `koanf:"lead"`
	Tolerance time.Duration `koanf:"tolerance"`
	Timezone  string        `koanf:"timezone"`
}

// Location loads the business time zone
func (c ReminderConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

type BookingConfig struct {
	// PermissiveTransitions accepts any move between known statuses, the
	// way the legacy API did
	PermissiveTransitions bool          `koanf:"permissive_transitions"`
	LockTimeout           time.Duration `koanf:"lock_timeout"`
	MeetingPrefix         string        `koanf:"meeting_prefix"`
}

type AuthConfig struct {
	JWTSecret         string        `koanf:"jwt_secret"`
	TokenExpiry       time.Duration `koanf:"token_expiry"`
	AdminUsername     string        `koanf:"admin_username"`
	AdminPasswordHash string        `koanf:"admin_password_hash"` // bcrypt
}

// Enabled reports whether staff routes require a token
func (c AuthConfig) Enabled() bool {
	return c.JWTSecret != ""
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// legacyEnv maps the plain variable names used by existing deployments onto
// config keys
var legacyEnv = map[string]string{
	"PORT":                              "server.port",
	"GIN_MODE":                          "server.mode",
	"DATABASE_URL":                      "database.url",
	"DB_HOST":                           "database.host",
	"DB_PORT":                           "database.port",
	"DB_USER":                           "database.user",
	"DB_PASSWORD":                       "database.password",
	"DB_NAME":                           "database.name",
	"DB_SSL_MODE":                       "database.ssl_mode",
	"SENDGRID_API_KEY":                  "email.sendgrid_api_key",
	"SENDGRID_NOTIFICATIONS_FROM_EMAIL": "email.from_email",
	"SENDGRID_FROM_NAME":                "email.from_name",
	"ADMIN_USER":                        "email.admin_email",
	"USER_USER":                         "email.smtp_user",
	"USER_PASS":                         "email.smtp_password",
	"TWILIO_ACCOUNT_SID":                "sms.twilio_account_sid",
	"TWILIO_AUTH_TOKEN":                 "sms.twilio_auth_token",
	"TWILIO_PHONE_NUMBER":               "sms.from_number",
	"REDIS_URL":                         "redis.url",
	"JWT_SECRET":                        "auth.jwt_secret",
	"JWT_EXPIRY":                        "auth.token_expiry",
}

// Load merges defaults, the optional YAML file at configPath and the
// environment, in that order of precedence
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(NewDefaultProvider(), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		}
	}

	for name, key := range legacyEnv {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			if err := k.Set(key, v); err != nil {
				return nil, fmt.Errorf("failed to apply %s: %w", name, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey turns SLOTBOOK_EMAIL__FROM_NAME into email.from_name
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port (got %d)", c.Server.Port)
	}
	if c.Notify.Workers < 1 {
		return fmt.Errorf("notify.workers must be at least 1")
	}
	if c.Notify.MaxAttempts < 1 {
		return fmt.Errorf("notify.max_attempts must be at least 1")
	}
	if c.Reminder.Tolerance < 0 || c.Reminder.Tolerance >= c.Reminder.Lead {
		return fmt.Errorf("reminder.tolerance must be between 0 and reminder.lead")
	}
	if _, err := c.Reminder.Location(); err != nil {
		return fmt.Errorf("reminder.timezone: %w", err)
	}
	if c.Auth.Enabled() && c.Auth.TokenExpiry <= 0 {
		return fmt.Errorf("auth.token_expiry must be positive")
	}
	return nil
}
