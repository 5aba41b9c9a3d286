package database

import (
	"fmt"
	"log/slog"

	"github.com/karloscodes/cartridge/cache"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"visitornotify/internal/config"
	"visitornotify/internal/logs"
	"visitornotify/internal/notifier"
	"visitornotify/internal/sessions"
	"visitornotify/internal/settings"
)

// DBManager wraps cartridge's sqlite.Manager with visitornotify-specific migration methods.
type DBManager struct {
	*sqlite.Manager
	logger *slog.Logger
}

// NewDBManager creates a new database manager using cartridge's sqlite.Manager.
func NewDBManager(cfg *config.Config, logger *slog.Logger) *DBManager {
	sqliteCfg := sqlite.Config{
		Path:         cfg.DatabaseName,
		MaxOpenConns: cfg.GetMaxOpenConns(),
		MaxIdleConns: cfg.GetMaxIdleConns(),
		Logger:       logger,
		EnableWAL:    true,
		TxImmediate:  true,
		BusyTimeout:  5000,
	}

	return &DBManager{
		Manager: sqlite.NewManager(sqliteCfg),
		logger:  logger,
	}
}

// Init initializes the database connection.
func (dm *DBManager) Init() error {
	_, err := dm.Manager.Connect()
	return err
}

// allModels returns every persisted model, in migration order.
func allModels() []any {
	return []any{
		&cache.CacheRecord{},
		&sessions.Session{},
		&sessions.PageView{},
		&settings.Setting{},
		&logs.LogEntry{},
		&notifier.NotificationRule{},
		&notifier.NotificationHistory{},
	}
}

// MigrateDatabase runs visitornotify-specific migrations.
func (dm *DBManager) MigrateDatabase() error {
	db := dm.GetConnection()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	// Run migrations in a transaction
	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.AutoMigrate(allModels()...)
	})
	if err != nil {
		dm.logger.Error("Failed to auto-migrate database", slog.Any("error", err))
		return err
	}

	if err := dm.CheckpointWAL("FULL"); err != nil {
		dm.logger.Warn("Failed to checkpoint WAL after migration", slog.Any("error", err))
	}

	dm.logger.Info("Database migration completed successfully")
	return nil
}

// VerifySchema checks that the tracking tables and their load-bearing
// columns exist, for the admin connectivity test endpoint.
func VerifySchema(db *gorm.DB) error {
	migrator := db.Migrator()

	checks := []struct {
		model   any
		name    string
		columns []string
	}{
		{&sessions.Session{}, "sessions", []string{"session_key", "device_type", "last_activity", "is_bot"}},
		{&sessions.PageView{}, "page_views", []string{"session_id", "url", "viewed_at"}},
		{&settings.Setting{}, "settings", []string{"key", "value"}},
		{&logs.LogEntry{}, "log_entries", []string{"level", "component"}},
		{&notifier.NotificationRule{}, "notification_rules", []string{"event_type", "status", "threshold"}},
		{&notifier.NotificationHistory{}, "notification_histories", []string{"event_type", "visitor_data", "sent_at"}},
	}

	for _, check := range checks {
		if !migrator.HasTable(check.model) {
			return fmt.Errorf("missing table %s", check.name)
		}
		for _, column := range check.columns {
			if !migrator.HasColumn(check.model, column) {
				return fmt.Errorf("table %s missing column %s", check.name, column)
			}
		}
	}
	return nil
}
