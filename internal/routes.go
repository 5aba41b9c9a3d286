package internal

import (
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "visitornotify/api/v1"
	"visitornotify/internal/config"
	"visitornotify/internal/http"
	"visitornotify/internal/http/middleware"
	"visitornotify/internal/logs"
	"visitornotify/internal/mailer"
	"visitornotify/internal/notifier"
	"visitornotify/internal/settings"
	"visitornotify/internal/tracker"
)

// publicCORSConfig returns the standard CORS configuration for public endpoints.
// Tracking requests come from the visited sites, so cross-origin access stays open.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, Referrer, User-Agent",
}

// MountAppRoutes mounts all application routes using cartridge's route API
func MountAppRoutes(srv *cartridge.Server) {
	cfg := config.GetConfig()
	db := srv.GetDBManager().GetConnection()
	logger := srv.GetLogger()

	appLog := logs.New(db, logger, logs.Options{
		MinLevel:   func() string { return settings.GetTrackerSettings(db).LogLevel },
		FilePath:   appLogPath(cfg),
		MaxSizeMB:  cfg.GetLogMaxSizeMB(),
		MaxBackups: cfg.GetLogMaxBackups(),
		MaxAgeDays: cfg.GetLogMaxAgeDays(),
	})

	smtpMailer := mailer.NewSMTPMailer(cfg, logger)
	alerts := notifier.New(db, logger, appLog, smtpMailer)
	visitTracker := tracker.New(db, logger, appLog, alerts,
		cfg.PrivateKey, cfg.SiteName, cfg.SiteURL)

	// Helper to conditionally apply rate limiting (only in production)
	// In development/test, rate limiting would interfere with testing
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// Rate limiter for the public tracking API (70 requests per minute per IP)
	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(70),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Public tracking config: rate limiting + permissive CORS. CORS runs
	// first so rejected requests still carry CORS headers.
	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		WriteConcurrency: false,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	adminAPIConfig := &cartridge.RouteConfig{
		EnableSecFetchSite: cartridge.Bool(false),
		CustomMiddleware: []fiber.Handler{
			middleware.AdminAPIKeyAuth(db, logger),
		},
	}

	// === HEALTH CHECK ===
	srv.Get("/_health", http.HealthIndexAction)
	srv.Head("/_health", http.HealthIndexAction)

	// === PUBLIC TRACKING API ===
	srv.Post("/x/api/v1/track", v1.NewTrackHandler(visitTracker), publicAPIConfig)
	srv.Options("/x/api/v1/track", func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}, publicAPIConfig)
	srv.Post("/x/api/v1/track/beacon", v1.NewTrackBeaconHandler(visitTracker), publicAPIConfig)
	srv.Options("/x/api/v1/track/beacon", func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}, publicAPIConfig)

	// === ADMIN API (Bearer key) ===
	srv.Get("/admin/api/v1/dashboard", http.DashboardAction, adminAPIConfig)
	srv.Get("/admin/api/v1/dashboard/export", http.DashboardExportAction, adminAPIConfig)

	srv.Get("/admin/api/v1/settings", http.SettingsShowAction, adminAPIConfig)
	srv.Post("/admin/api/v1/settings", http.SettingsSaveAction, adminAPIConfig)
	srv.Post("/admin/api/v1/settings/reset", http.SettingsResetAction, adminAPIConfig)

	srv.Get("/admin/api/v1/database/test", http.DatabaseTestAction, adminAPIConfig)

	srv.Get("/admin/api/v1/logs", http.LogsIndexAction, adminAPIConfig)
	srv.Get("/admin/api/v1/logs/export", http.LogsExportAction, adminAPIConfig)
	srv.Post("/admin/api/v1/logs/bulk-delete", http.LogsBulkDeleteAction, adminAPIConfig)
	srv.Post("/admin/api/v1/logs/clear", http.LogsClearAction, adminAPIConfig)
	srv.Get("/admin/api/v1/logs/:id", http.LogsShowAction, adminAPIConfig)
	srv.Delete("/admin/api/v1/logs/:id", http.LogsDeleteAction, adminAPIConfig)

	srv.Get("/admin/api/v1/notifications/history", http.NotificationHistoryAction, adminAPIConfig)
	srv.Get("/admin/api/v1/notifications/rules", http.NotificationRulesAction, adminAPIConfig)
}

func appLogPath(cfg *config.Config) string {
	if cfg.IsTest() || cfg.GetLogDirectory() == "" {
		return ""
	}
	return filepath.Join(cfg.GetLogDirectory(), "visitornotify.log")
}
