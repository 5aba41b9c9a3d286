package settings_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitornotify/internal/settings"
	"visitornotify/internal/testsupport"
)

func TestSetupDefaultSettingsSeedsOnce(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	require.NoError(t, settings.SetupDefaultSettings(db, logger))

	got := settings.GetTrackerSettings(db)
	assert.True(t, got.TrackingEnabled)
	assert.True(t, got.HashIP)
	assert.True(t, got.ExcludeBots)
	assert.False(t, got.EnableNewVisitorNotifications)
	assert.Equal(t, 10, got.VisitorThresholdCount)
	assert.Equal(t, 365, got.DatabaseCleanupDays)

	// Seeding again must not overwrite a customized blob.
	custom := got
	custom.VisitorThresholdCount = 25
	require.NoError(t, settings.SaveTrackerSettings(db, logger, custom))
	require.NoError(t, settings.SetupDefaultSettings(db, logger))

	assert.Equal(t, 25, settings.GetTrackerSettings(db).VisitorThresholdCount)
}

func TestSaveTrackerSettingsClampsSilently(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()
	require.NoError(t, settings.SetupDefaultSettings(db, logger))

	s := settings.DefaultTrackerSettings()
	s.VisitorThresholdCount = 50000
	s.DatabaseCleanupDays = 3
	require.NoError(t, settings.SaveTrackerSettings(db, logger, s))

	got := settings.GetTrackerSettings(db)
	assert.Equal(t, settings.MaxVisitorThreshold, got.VisitorThresholdCount)
	assert.Equal(t, settings.MinCleanupDays, got.DatabaseCleanupDays)

	s.VisitorThresholdCount = 0
	s.DatabaseCleanupDays = 100000
	require.NoError(t, settings.SaveTrackerSettings(db, logger, s))

	got = settings.GetTrackerSettings(db)
	assert.Equal(t, settings.MinVisitorThreshold, got.VisitorThresholdCount)
	assert.Equal(t, settings.MaxCleanupDays, got.DatabaseCleanupDays)
}

func TestGetTrackerSettingsMergesPartialBlob(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()
	require.NoError(t, settings.SetupDefaultSettings(db, logger))

	// A blob written by an older build that only knows two fields.
	require.NoError(t, settings.CreateOrUpdateSetting(db, logger,
		settings.KeyTrackerSettings, `{"tracking_enabled":false,"visitor_threshold_count":7}`))

	got := settings.GetTrackerSettings(db)
	assert.False(t, got.TrackingEnabled)
	assert.Equal(t, 7, got.VisitorThresholdCount)
	// Untouched fields keep their defaults.
	assert.True(t, got.HashIP)
	assert.Equal(t, 365, got.DatabaseCleanupDays)
	assert.Equal(t, "info", got.LogLevel)
}

func TestGetTrackerSettingsInvalidJSONFallsBackToDefaults(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()
	require.NoError(t, settings.SetupDefaultSettings(db, logger))

	require.NoError(t, settings.CreateOrUpdateSetting(db, logger,
		settings.KeyTrackerSettings, `{not json`))

	got := settings.GetTrackerSettings(db)
	assert.Equal(t, settings.DefaultTrackerSettings(), got)
}

func TestAdminAPIKeyLifecycle(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	key, err := settings.GetOrCreateAdminAPIKey(db, logger)
	require.NoError(t, err)
	assert.Len(t, key, 32)

	// Stable across calls.
	again, err := settings.GetOrCreateAdminAPIKey(db, logger)
	require.NoError(t, err)
	assert.Equal(t, key, again)

	// Regeneration replaces it.
	fresh, err := settings.GenerateAdminAPIKey(db, logger)
	require.NoError(t, err)
	assert.NotEqual(t, key, fresh)
	assert.Len(t, fresh, 32)
}
