package logs_test

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"visitornotify/internal/logs"
	"visitornotify/internal/testsupport"
)

func TestLevelAllowed(t *testing.T) {
	assert.True(t, logs.LevelAllowed(logs.LevelDebug, logs.LevelDebug))
	assert.True(t, logs.LevelAllowed(logs.LevelInfo, logs.LevelError))
	assert.False(t, logs.LevelAllowed(logs.LevelWarning, logs.LevelInfo))
	assert.True(t, logs.LevelAllowed(logs.LevelCritical, logs.LevelCritical))
	assert.False(t, logs.LevelAllowed(logs.LevelCritical, logs.LevelError))

	// Unknown levels fall back to info on both sides.
	assert.True(t, logs.LevelAllowed("bogus", logs.LevelInfo))
	assert.False(t, logs.LevelAllowed(logs.LevelWarning, "bogus"))
}

func TestRecordRespectsMinimumLevel(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	appLog := logs.New(db, testsupport.GetLogger(), logs.Options{
		MinLevel: func() string { return logs.LevelWarning },
	})

	appLog.Debug("tracker", "dropped", nil)
	appLog.Info("tracker", "dropped too", nil)
	appLog.Warning("tracker", "kept", nil)
	appLog.Error("mailer", "kept", map[string]any{"to": "admin@example.com"})

	entries, total, err := logs.List(db, logs.ListFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, entries, 2)
	// Newest first.
	assert.Equal(t, "mailer", entries[0].Component)
	assert.Contains(t, entries[0].Context, "admin@example.com")
}

func TestListFilters(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	appLog := logs.New(db, testsupport.GetLogger(), logs.Options{})

	appLog.Info("tracker", "page view recorded", nil)
	appLog.Error("tracker", "session insert failed", nil)
	appLog.Info("notifier", "threshold reached", nil)

	entries, total, err := logs.List(db, logs.ListFilter{Component: "tracker"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, entries, 2)

	entries, total, err = logs.List(db, logs.ListFilter{Level: logs.LevelError})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, entries, 1)
	assert.Equal(t, "session insert failed", entries[0].Message)

	entries, _, err = logs.List(db, logs.ListFilter{Search: "threshold"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "notifier", entries[0].Component)
}

func TestDeleteBulkDeleteClear(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()
	appLog := logs.New(db, logger, logs.Options{})

	for i := 0; i < 5; i++ {
		appLog.Info("jobs", "cleanup pass", nil)
	}

	entries, _, err := logs.List(db, logs.ListFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 5)

	require.NoError(t, logs.Delete(db, logger, entries[0].ID))

	deleted, err := logs.BulkDelete(db, logger, []uint{entries[1].ID, entries[2].ID})
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	// Unknown IDs are skipped, not errors.
	deleted, err = logs.BulkDelete(db, logger, []uint{99999})
	require.NoError(t, err)
	assert.EqualValues(t, 0, deleted)

	require.NoError(t, logs.Clear(db, logger))
	_, total, err := logs.List(db, logs.ListFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)
}

func TestPrune(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	old := logs.LogEntry{
		Timestamp: time.Now().UTC().AddDate(0, 0, -40),
		Level:     logs.LevelInfo, Component: "tracker", Message: "old",
	}
	recent := logs.LogEntry{
		Timestamp: time.Now().UTC().AddDate(0, 0, -5),
		Level:     logs.LevelInfo, Component: "tracker", Message: "recent",
	}
	require.NoError(t, db.Create(&old).Error)
	require.NoError(t, db.Create(&recent).Error)

	deleted, err := logs.Prune(db, logger, 30)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	_, err = logs.Get(db, old.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	kept, err := logs.Get(db, recent.ID)
	require.NoError(t, err)
	assert.Equal(t, "recent", kept.Message)
}

func TestFormatLine(t *testing.T) {
	entry := logs.LogEntry{
		Timestamp: time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC),
		Level:     logs.LevelError,
		Component: "mailer",
		Message:   "smtp send failed",
		Context:   `{"to":"admin@example.com"}`,
	}
	line := logs.FormatLine(entry)
	assert.Equal(t,
		`[2026-08-01 09:30:00] VN.ERROR[mailer]: smtp send failed | Context: {"to":"admin@example.com"}`,
		line)

	entry.Context = ""
	assert.Equal(t, `[2026-08-01 09:30:00] VN.ERROR[mailer]: smtp send failed`, logs.FormatLine(entry))
}

func TestWriteCSV(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	appLog := logs.New(db, testsupport.GetLogger(), logs.Options{})

	appLog.Info("tracker", "first", nil)
	appLog.Error("tracker", "second", nil)

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	require.NoError(t, logs.WriteCSV(db, logs.ListFilter{}, writer))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Timestamp,Level,Component,Message,Context", lines[0])
	assert.Contains(t, lines[1], "first")
	assert.Contains(t, lines[2], "second")
}

func TestParseIDs(t *testing.T) {
	assert.Equal(t, []uint{1, 42}, logs.ParseIDs([]string{"1", " 42 ", "x", "0", "-3"}))
	assert.Empty(t, logs.ParseIDs(nil))
}
