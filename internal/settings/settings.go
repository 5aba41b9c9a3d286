// Package settings stores runtime configuration in the database as a
// key/value table, with the tracker's options serialized as one JSON blob.
package settings

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge/cache"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// Setting represents a configuration item in the database
type Setting struct {
	ID        uint      `gorm:"primaryKey"`
	Key       string    `gorm:"uniqueIndex;not null"`
	Value     string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:milli"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:milli"`
}

// Settings keys
const (
	KeyTrackerSettings = "tracker_settings"
	KeyAdminAPIKey     = "admin_api_key"
)

// Clamp bounds for numeric settings. Out-of-range values are pulled back
// into range silently instead of rejecting the save.
const (
	MinVisitorThreshold = 1
	MaxVisitorThreshold = 10000
	MinCleanupDays      = 7
	MaxCleanupDays      = 3650
)

// TrackerSettings is the typed view of the tracker_settings JSON blob.
type TrackerSettings struct {
	TrackingEnabled               bool   `json:"tracking_enabled"`
	HashIP                        bool   `json:"hash_ip"`
	ExcludeBots                   bool   `json:"exclude_bots"`
	NotificationEmail             string `json:"notification_email"`
	EnableNewVisitorNotifications bool   `json:"enable_new_visitor_notifications"`
	EnableThresholdNotifications  bool   `json:"enable_threshold_notifications"`
	VisitorThresholdCount         int    `json:"visitor_threshold_count"`
	EnableNewDeviceNotifications  bool   `json:"enable_new_device_notifications"`
	DatabaseCleanupDays           int    `json:"database_cleanup_days"`
	LogLevel                      string `json:"log_level"`
	LogRetentionDays              int    `json:"log_retention_days"`
}

// DefaultTrackerSettings returns the settings a fresh install starts with.
func DefaultTrackerSettings() TrackerSettings {
	return TrackerSettings{
		TrackingEnabled:               true,
		HashIP:                        true,
		ExcludeBots:                   true,
		NotificationEmail:             "",
		EnableNewVisitorNotifications: false,
		EnableThresholdNotifications:  false,
		VisitorThresholdCount:         10,
		EnableNewDeviceNotifications:  false,
		DatabaseCleanupDays:           365,
		LogLevel:                      "info",
		LogRetentionDays:              30,
	}
}

// Clamp pulls numeric fields back into their allowed ranges.
func (s *TrackerSettings) Clamp() {
	if s.VisitorThresholdCount < MinVisitorThreshold {
		s.VisitorThresholdCount = MinVisitorThreshold
	}
	if s.VisitorThresholdCount > MaxVisitorThreshold {
		s.VisitorThresholdCount = MaxVisitorThreshold
	}
	if s.DatabaseCleanupDays < MinCleanupDays {
		s.DatabaseCleanupDays = MinCleanupDays
	}
	if s.DatabaseCleanupDays > MaxCleanupDays {
		s.DatabaseCleanupDays = MaxCleanupDays
	}
	if s.LogRetentionDays < 1 {
		s.LogRetentionDays = 1
	}
}

var trackerSettingsCache *cache.Cache[string, TrackerSettings]

// SetupDefaultSettings seeds the tracker settings blob on first boot and
// initializes the read cache.
func SetupDefaultSettings(dbConn *gorm.DB, logger *slog.Logger) error {
	defaults, err := json.Marshal(DefaultTrackerSettings())
	if err != nil {
		return fmt.Errorf("failed to marshal default settings: %w", err)
	}

	err = sqlite.PerformWrite(logger, dbConn, func(tx *gorm.DB) error {
		return tx.Exec(`
            INSERT INTO settings (key, value, created_at, updated_at)
            VALUES (?, ?, ?, ?)
            ON CONFLICT(key) DO NOTHING
        `, KeyTrackerSettings, string(defaults), time.Now().UTC(), time.Now().UTC()).Error
	})
	if err != nil {
		logger.Error("Failed to seed tracker settings", slog.Any("error", err))
		return fmt.Errorf("failed to seed tracker settings: %w", err)
	}

	loadCache(dbConn, logger)
	return nil
}

func loadCache(dbConn *gorm.DB, logger *slog.Logger) {
	fetchFunc := func(key string) (TrackerSettings, error) {
		var value string
		err := dbConn.WithContext(context.Background()).
			Raw("SELECT value FROM settings WHERE key = ? LIMIT 1", key).Scan(&value).Error
		if err != nil {
			return DefaultTrackerSettings(), err
		}
		return parseTrackerSettings(value), nil
	}
	trackerSettingsCache = cache.NewCache[string, TrackerSettings](logger, 1*time.Minute, fetchFunc)
}

// parseTrackerSettings merges the stored JSON over the defaults, so a blob
// saved by an older build keeps sane values for fields it never wrote.
func parseTrackerSettings(raw string) TrackerSettings {
	merged := DefaultTrackerSettings()
	if raw == "" {
		return merged
	}
	if err := json.Unmarshal([]byte(raw), &merged); err != nil {
		return DefaultTrackerSettings()
	}
	merged.Clamp()
	return merged
}

// GetTrackerSettings returns the current settings, served from the cache
// when one is initialized. Falls back to defaults on any failure so the
// tracking path never breaks over a settings read.
func GetTrackerSettings(dbConn *gorm.DB) TrackerSettings {
	if trackerSettingsCache != nil {
		if s, err := trackerSettingsCache.Get(KeyTrackerSettings); err == nil {
			return s
		}
	}

	raw, err := GetSetting(dbConn, KeyTrackerSettings)
	if err != nil {
		return DefaultTrackerSettings()
	}
	return parseTrackerSettings(raw)
}

// SaveTrackerSettings clamps, persists, and refreshes the cache.
func SaveTrackerSettings(dbConn *gorm.DB, logger *slog.Logger, s TrackerSettings) error {
	s.Clamp()

	blob, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal tracker settings: %w", err)
	}

	if err := CreateOrUpdateSetting(dbConn, logger, KeyTrackerSettings, string(blob)); err != nil {
		return err
	}

	if trackerSettingsCache != nil {
		trackerSettingsCache.Clear()
	}
	return nil
}

// ResetTrackerSettings restores the defaults.
func ResetTrackerSettings(dbConn *gorm.DB, logger *slog.Logger) (TrackerSettings, error) {
	defaults := DefaultTrackerSettings()
	if err := SaveTrackerSettings(dbConn, logger, defaults); err != nil {
		return TrackerSettings{}, err
	}
	return defaults, nil
}

// GetSetting retrieves a setting value from the database
func GetSetting(dbConn *gorm.DB, key string) (string, error) {
	var setting Setting
	result := dbConn.Where("key = ?", key).First(&setting)

	if result.Error != nil {
		return "", result.Error
	}

	return setting.Value, nil
}

// CreateOrUpdateSetting upserts a setting row inside a write transaction.
func CreateOrUpdateSetting(dbConn *gorm.DB, logger *slog.Logger, key string, value string) error {
	return sqlite.PerformWrite(logger, dbConn, func(tx *gorm.DB) error {
		result := tx.Model(&Setting{}).Where("key = ?", key).Update("value", value)
		if result.Error != nil {
			return fmt.Errorf("failed to update setting: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			setting := Setting{Key: key, Value: value}
			if err := tx.Create(&setting).Error; err != nil {
				return fmt.Errorf("failed to create setting: %w", err)
			}
		}
		return nil
	})
}

// GetAdminAPIKey retrieves the admin API key
func GetAdminAPIKey(db *gorm.DB) (string, error) {
	return GetSetting(db, KeyAdminAPIKey)
}

// GetOrCreateAdminAPIKey returns the existing API key or generates a new one
func GetOrCreateAdminAPIKey(db *gorm.DB, logger *slog.Logger) (string, error) {
	key, err := GetAdminAPIKey(db)
	if err == nil && key != "" {
		return key, nil
	}
	return GenerateAdminAPIKey(db, logger)
}

// GenerateAdminAPIKey creates a new random API key and stores it,
// replacing any previous one.
func GenerateAdminAPIKey(db *gorm.DB, logger *slog.Logger) (string, error) {
	key := generateRandomToken(32)
	if err := CreateOrUpdateSetting(db, logger, KeyAdminAPIKey, key); err != nil {
		return "", err
	}
	return key, nil
}

// generateRandomToken creates a cryptographically secure random token
func generateRandomToken(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[randInt(len(charset))]
	}
	return string(b)
}

// randInt returns a cryptographically secure random int in [0, max)
func randInt(max int) int {
	var buf [1]byte
	_, _ = rand.Read(buf[:])
	return int(buf[0]) % max
}
