package handlers

import (
	"log/slog"
	"time"

	"slotbook/internal/auth"
	"slotbook/internal/metrics"
	"slotbook/internal/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type RouterOptions struct {
	CORSOrigins    []string
	TrustedProxies []string
	Tokens         *auth.TokenManager // nil leaves staff routes open
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
}

// NewRouter wires every route onto a fresh gin engine
func NewRouter(h *Handler, opts RouterOptions) (*gin.Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	if err := r.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, err
	}

	r.Use(gin.Recovery())
	r.Use(utils.RequestLogger(logger))
	r.Use(opts.Metrics.Middleware())
	r.Use(cors.New(corsConfig(opts.CORSOrigins)))

	r.GET("/", h.HomeHandler)
	r.GET("/health", h.HealthHandler)
	r.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	r.POST("/auth/login", h.Login)

	staff := auth.RequireStaff(opts.Tokens, logger)

	appointments := r.Group("/appointment")
	{
		appointments.GET("/slots", h.GetAvailableSlots)
		appointments.POST("/book", h.BookAppointment)
		appointments.GET("/user/:email", h.ListClientAppointments)

		appointments.GET("/all", staff, h.ListAppointments)
		appointments.PUT("/update/:id", staff, h.UpdateAppointmentStatus)
		appointments.POST("/meeting-link/:id", staff, h.SendMeetingLink)
	}

	admin := r.Group("/admin", staff)
	{
		admin.POST("/reminders/run", h.RunReminders)
	}

	return r, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
