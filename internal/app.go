// Package internal contains core application functionality
package internal

import (
	"fmt"

	"github.com/karloscodes/cartridge"

	"visitornotify/internal/config"
	"visitornotify/internal/database"
	"visitornotify/internal/jobs"
	"visitornotify/internal/logs"
	"visitornotify/internal/notifier"
	"visitornotify/internal/settings"
)

// Application wraps cartridge.Application with visitornotify-specific components
type Application struct {
	*cartridge.Application
	DBManager *database.DBManager
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	cfg := config.GetConfig()
	return NewAppWithConfig(cfg)
}

// NewAppWithConfig creates a new application with the provided config
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	// Create logger
	logger := cartridge.NewLogger(cfg, nil)

	// Initialize database manager (visitornotify-specific with migration methods)
	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := dbManager.MigrateDatabase(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	db := dbManager.GetConnection()
	if err := settings.SetupDefaultSettings(db, logger); err != nil {
		return nil, fmt.Errorf("failed to seed settings: %w", err)
	}
	if err := notifier.SeedDefaultRules(db, logger); err != nil {
		return nil, fmt.Errorf("failed to seed notification rules: %w", err)
	}

	// The admin API is useless without a key, so mint one on first boot and
	// surface it in the process log.
	apiKey, err := settings.GetOrCreateAdminAPIKey(db, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare admin API key: %w", err)
	}
	if !cfg.IsProduction() {
		logger.Info("Admin API key ready", "key", apiKey)
	}

	appLog := logs.New(db, logger, logs.Options{
		MinLevel: func() string { return settings.GetTrackerSettings(db).LogLevel },
	})

	// Initialize jobs system
	scheduler, err := jobs.NewScheduler(dbManager, logger, appLog)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize jobs: %w", err)
	}

	// Create the cartridge application using NewApplication
	app, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:            cfg,
		Logger:            logger,
		DBManager:         dbManager,
		RouteMountFunc:    MountAppRoutes,
		BackgroundWorkers: []cartridge.BackgroundWorker{scheduler},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return &Application{
		Application: app,
		DBManager:   dbManager,
	}, nil
}
