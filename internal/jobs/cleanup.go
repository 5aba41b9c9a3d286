package jobs

import (
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"visitornotify/internal/logs"
	"visitornotify/internal/sessions"
	"visitornotify/internal/settings"
)

// CleanupJob prunes visit data past the configured retention window and
// expired application log entries.
type CleanupJob struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger
	appLog    *logs.AppLog
}

func NewCleanupJob(dbManager cartridge.DBManager, logger *slog.Logger, appLog *logs.AppLog) *CleanupJob {
	return &CleanupJob{
		dbManager: dbManager,
		logger:    logger,
		appLog:    appLog,
	}
}

// Run removes sessions whose last activity predates the retention window,
// their page views, and old log entries. Retention comes from the stored
// settings so an admin change applies on the next pass.
func (j *CleanupJob) Run() error {
	db := j.dbManager.GetConnection()
	cfg := settings.GetTrackerSettings(db)
	cutoff := time.Now().UTC().AddDate(0, 0, -cfg.DatabaseCleanupDays)

	j.logger.Info("Starting cleanup of old visit data",
		slog.Int("retention_days", cfg.DatabaseCleanupDays),
		slog.Time("cutoff", cutoff))

	viewsDeleted, err := j.deleteInBatches(db, func(batch *gorm.DB) *gorm.DB {
		return batch.Where(
			"session_id IN (SELECT id FROM sessions WHERE last_activity < ?)", cutoff,
		).Delete(&sessions.PageView{})
	})
	if err != nil {
		j.logger.Error("Failed to delete old page views", slog.Any("error", err))
		return err
	}

	sessionsDeleted, err := j.deleteInBatches(db, func(batch *gorm.DB) *gorm.DB {
		return batch.Where("last_activity < ?", cutoff).Delete(&sessions.Session{})
	})
	if err != nil {
		j.logger.Error("Failed to delete old sessions", slog.Any("error", err))
		return err
	}

	logsDeleted, err := logs.Prune(db, j.logger, cfg.LogRetentionDays)
	if err != nil {
		j.logger.Error("Failed to prune log entries", slog.Any("error", err))
		return err
	}

	if viewsDeleted+sessionsDeleted+logsDeleted > 0 && j.appLog != nil {
		j.appLog.Info("jobs", "Cleanup pass completed", map[string]any{
			"sessions_deleted":   sessionsDeleted,
			"page_views_deleted": viewsDeleted,
			"log_entries_pruned": logsDeleted,
			"retention_days":     cfg.DatabaseCleanupDays,
		})
	}

	j.logger.Info("Cleanup completed",
		slog.Int64("sessions_deleted", sessionsDeleted),
		slog.Int64("page_views_deleted", viewsDeleted),
		slog.Int64("log_entries_pruned", logsDeleted))

	return nil
}

const cleanupBatchSize = 1000

// deleteInBatches runs the delete in limited batches to avoid locking the
// database for too long, with a small pause between batches.
func (j *CleanupJob) deleteInBatches(db *gorm.DB, deleteFn func(*gorm.DB) *gorm.DB) (int64, error) {
	totalDeleted := int64(0)

	for {
		result := deleteFn(db.Limit(cleanupBatchSize))
		if result.Error != nil {
			return totalDeleted, result.Error
		}

		totalDeleted += result.RowsAffected

		if result.RowsAffected < int64(cleanupBatchSize) {
			break
		}

		time.Sleep(100 * time.Millisecond)
	}

	return totalDeleted, nil
}
