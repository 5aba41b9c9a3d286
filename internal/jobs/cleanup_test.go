package jobs_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitornotify/internal/jobs"
	"visitornotify/internal/logs"
	"visitornotify/internal/sessions"
	"visitornotify/internal/settings"
	"visitornotify/internal/testsupport"
)

func TestCleanupJobPrunesOldData(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()
	require.NoError(t, settings.SetupDefaultSettings(db, logger))

	// Shrink retention so the fixtures below are clearly in or out.
	cfg := settings.GetTrackerSettings(db)
	cfg.DatabaseCleanupDays = 30
	cfg.LogRetentionDays = 7
	require.NoError(t, settings.SaveTrackerSettings(db, logger, cfg))

	now := time.Now().UTC()
	stale := testsupport.CreateTestVisit(t, db, "desktop", "https://example.com/old", now.AddDate(0, 0, -60))
	fresh := testsupport.CreateTestVisit(t, db, "mobile", "https://example.com/new", now.AddDate(0, 0, -2))

	appLog := logs.New(db, logger, logs.Options{})
	require.NoError(t, db.Create(&logs.LogEntry{
		Timestamp: now.AddDate(0, 0, -20),
		Level:     logs.LevelInfo, Component: "tracker", Message: "stale entry",
	}).Error)
	appLog.Info("tracker", "fresh entry", nil)

	job := jobs.NewCleanupJob(testsupport.NewTestDBManager(db), logger, appLog)
	require.NoError(t, job.Run())

	var sessionCount int64
	require.NoError(t, db.Model(&sessions.Session{}).Count(&sessionCount).Error)
	assert.EqualValues(t, 1, sessionCount)

	_, err := sessions.FindByKey(db, stale.SessionKey)
	assert.Error(t, err)
	_, err = sessions.FindByKey(db, fresh.SessionKey)
	assert.NoError(t, err)

	// The stale session's page views are gone too.
	var viewCount int64
	require.NoError(t, db.Model(&sessions.PageView{}).Count(&viewCount).Error)
	assert.EqualValues(t, 1, viewCount)

	entries, _, err := logs.List(db, logs.ListFilter{Search: "stale entry"})
	require.NoError(t, err)
	assert.Empty(t, entries)

	entries, _, err = logs.List(db, logs.ListFilter{Search: "fresh entry"})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCleanupJobOnEmptyDatabase(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()
	require.NoError(t, settings.SetupDefaultSettings(db, logger))

	job := jobs.NewCleanupJob(testsupport.NewTestDBManager(db), logger, nil)
	require.NoError(t, job.Run())
}
