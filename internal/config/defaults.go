package config

import (
	"github.com/knadh/koanf/providers/confmap"
)

func DefaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"server": map[string]interface{}{
			"port":             8080,
			"read_timeout":     "15s",
			"write_timeout":    "15s",
			"shutdown_timeout": "20s",
			"trusted_proxies":  []string{"127.0.0.1"},
			"cors_origins":     []string{"http://localhost:3000"},
			"mode":             "release",
		},
		"database": map[string]interface{}{
			"url":               "",
			"host":              "localhost",
			"port":              5432,
			"user":              "postgres",
			"password":          "",
			"name":              "slotbook",
			"ssl_mode":          "disable",
			"max_idle_conns":    10,
			"max_open_conns":    100,
			"conn_max_lifetime": "1h",
			"max_retries":       5,
			"retry_delay":       "5s",
			"log_level":         "warn",
		},
		"email": map[string]interface{}{
			"from_name": "Appointments",
			"smtp_host": "smtp.gmail.com",
			"smtp_port": 587,
		},
		"redis": map[string]interface{}{
			"url":         "",
			"lock_ttl":    "10s",
			"lock_prefix": "slotbook:slot",
		},
		"notify": map[string]interface{}{
			"workers":      2,
			"queue_size":   256,
			"timeout":      "10s",
			"max_attempts": 3,
			"backoff":      "2s",
		},
		"reminder": map[string]interface{}{
			"enabled":   true,
			"schedule":  "*/5 * * * *", // every 5 minutes
			"lead":      "30m",
			"tolerance": "5m",
			"timezone":  "UTC",
		},
		"booking": map[string]interface{}{
			"permissive_transitions": false,
			"lock_timeout":           "5s",
			"meeting_prefix":         "TAX",
		},
		"auth": map[string]interface{}{
			"token_expiry":   "24h",
			"admin_username": "admin",
		},
		"log": map[string]interface{}{
			"level":  "info",
			"format": "json",
		},
	}
}

func NewDefaultProvider() *confmap.Confmap {
	return confmap.Provider(DefaultConfig(), ".")
}
