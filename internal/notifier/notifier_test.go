package notifier_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"visitornotify/internal/logs"
	"visitornotify/internal/notifier"
	"visitornotify/internal/sessions"
	"visitornotify/internal/settings"
	"visitornotify/internal/testsupport"
)

func newTestNotifier(t *testing.T, db *gorm.DB) (*notifier.Notifier, *testsupport.FakeMailer) {
	t.Helper()
	logger := testsupport.GetLogger()
	appLog := logs.New(db, logger, logs.Options{})
	fake := &testsupport.FakeMailer{}
	return notifier.New(db, logger, appLog, fake), fake
}

func alertSettings() settings.TrackerSettings {
	cfg := settings.DefaultTrackerSettings()
	cfg.NotificationEmail = "admin@example.com"
	return cfg
}

func snapshotFor(session *sessions.Session, now time.Time) notifier.Snapshot {
	return notifier.Snapshot{
		Session:   session,
		PageURL:   "https://example.com/pricing",
		PageTitle: "Pricing",
		Now:       now,
		SiteName:  "Example Site",
		SiteURL:   "https://example.com",
	}
}

func TestNewVisitorAlert(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	n, fake := newTestNotifier(t, db)
	now := time.Now().UTC()

	cfg := alertSettings()
	cfg.EnableNewVisitorNotifications = true

	session := testsupport.CreateTestSession(t, db, "desktop", now)
	n.Evaluate(cfg, snapshotFor(session, now))

	require.Equal(t, 1, fake.SentCount())
	sent := fake.LastSend()
	assert.Equal(t, "admin@example.com", sent.To)
	assert.Equal(t, "[Example Site] New Visitor Alert", sent.Subject)
	assert.Contains(t, sent.Body, "Device: desktop")
	assert.Contains(t, sent.Body, "Browser: chrome")
	assert.Contains(t, sent.Body, "Page: https://example.com/pricing")
	assert.Contains(t, sent.Body, "Site: Example Site (https://example.com)")

	history, total, err := notifier.ListHistory(db, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, notifier.EventNewVisitor, history[0].EventType)
	assert.EqualValues(t, 0, history[0].RuleID)
	assert.Equal(t, "admin@example.com", history[0].Email)
	assert.Equal(t, notifier.HistoryStatusSent, history[0].Status)
	assert.Contains(t, history[0].VisitorData, `"device_type":"desktop"`)
	assert.Contains(t, history[0].VisitorData, `"page_url":"https://example.com/pricing"`)

	// No deduplication: a repeat view from the same session mails again.
	n.Evaluate(cfg, snapshotFor(session, now))
	assert.Equal(t, 2, fake.SentCount())
}

func TestThresholdAlertFiresAtLimitAndKeepsFiring(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	n, fake := newTestNotifier(t, db)
	now := time.Now().UTC()

	cfg := alertSettings()
	cfg.EnableThresholdNotifications = true
	cfg.VisitorThresholdCount = 3

	s1 := testsupport.CreateTestSession(t, db, "desktop", now)
	n.Evaluate(cfg, snapshotFor(s1, now))
	assert.Equal(t, 0, fake.SentCount())

	s2 := testsupport.CreateTestSession(t, db, "desktop", now)
	n.Evaluate(cfg, snapshotFor(s2, now))
	assert.Equal(t, 0, fake.SentCount())

	s3 := testsupport.CreateTestSession(t, db, "mobile", now)
	n.Evaluate(cfg, snapshotFor(s3, now))
	require.Equal(t, 1, fake.SentCount())
	assert.Equal(t, "[Example Site] Visitor Threshold Reached", fake.LastSend().Subject)
	assert.Contains(t, fake.LastSend().Body, "threshold: 3")

	// No debounce: the next view past the limit mails again.
	n.Evaluate(cfg, snapshotFor(s3, now))
	assert.Equal(t, 2, fake.SentCount())
}

func TestThresholdIgnoresSessionsFromBeforeMidnight(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	n, fake := newTestNotifier(t, db)

	// Fix "now" mid-day so yesterday's sessions are clearly out of window.
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	cfg := alertSettings()
	cfg.EnableThresholdNotifications = true
	cfg.VisitorThresholdCount = 2

	testsupport.CreateTestSession(t, db, "desktop", now.AddDate(0, 0, -1))
	testsupport.CreateTestSession(t, db, "desktop", now.AddDate(0, 0, -1))
	today := testsupport.CreateTestSession(t, db, "desktop", now)

	n.Evaluate(cfg, snapshotFor(today, now))
	assert.Equal(t, 0, fake.SentCount())
}

func TestNewDeviceAlert(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	n, fake := newTestNotifier(t, db)
	now := time.Now().UTC()

	cfg := alertSettings()
	cfg.EnableNewDeviceNotifications = true

	// First mobile session ever: fires.
	mobile := testsupport.CreateTestSession(t, db, "mobile", now)
	n.Evaluate(cfg, snapshotFor(mobile, now))
	require.Equal(t, 1, fake.SentCount())
	assert.Equal(t, "[Example Site] New Device Type: mobile", fake.LastSend().Subject)

	// Repeat views re-fire while the type is still young.
	n.Evaluate(cfg, snapshotFor(mobile, now))
	assert.Equal(t, 2, fake.SentCount())

	// A session of the type older than an hour makes it known.
	testsupport.CreateTestSession(t, db, "tablet", now.Add(-2*time.Hour))
	tablet := testsupport.CreateTestSession(t, db, "tablet", now)
	n.Evaluate(cfg, snapshotFor(tablet, now))
	assert.Equal(t, 2, fake.SentCount())
}

func TestDisabledFlagsAndMissingEmailSendNothing(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	n, fake := newTestNotifier(t, db)
	now := time.Now().UTC()

	session := testsupport.CreateTestSession(t, db, "desktop", now)

	// All flags off.
	n.Evaluate(alertSettings(), snapshotFor(session, now))
	assert.Equal(t, 0, fake.SentCount())

	// Flag on but no recipient configured.
	cfg := settings.DefaultTrackerSettings()
	cfg.EnableNewVisitorNotifications = true
	n.Evaluate(cfg, snapshotFor(session, now))
	assert.Equal(t, 0, fake.SentCount())
}

func TestHistoryRecordedOnlyOnSuccessfulSend(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	n, fake := newTestNotifier(t, db)
	now := time.Now().UTC()

	cfg := alertSettings()
	cfg.EnableNewVisitorNotifications = true

	fake.Err = errors.New("smtp unreachable")
	session := testsupport.CreateTestSession(t, db, "desktop", now)
	n.Evaluate(cfg, snapshotFor(session, now))

	_, total, err := notifier.ListHistory(db, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)

	// The failure lands in the application log instead.
	entries, _, err := logs.List(db, logs.ListFilter{Level: logs.LevelError})
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "notifier", entries[0].Component)
}

func TestSeedDefaultRules(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	require.NoError(t, notifier.SeedDefaultRules(db, logger))

	rules, err := notifier.ListRules(db)
	require.NoError(t, err)
	require.Len(t, rules, 3)
	for _, rule := range rules {
		assert.False(t, rule.Enabled, "rule %s must ship disabled", rule.EventType)
		assert.NotEmpty(t, rule.Name)
	}

	// Seeding twice does not duplicate or reset.
	require.NoError(t, db.Model(&notifier.NotificationRule{}).
		Where("event_type = ?", notifier.EventThreshold).
		Update("status", true).Error)
	require.NoError(t, notifier.SeedDefaultRules(db, logger))

	rules, err = notifier.ListRules(db)
	require.NoError(t, err)
	require.Len(t, rules, 3)
	for _, rule := range rules {
		if rule.EventType == notifier.EventThreshold {
			assert.True(t, rule.Enabled)
		}
	}
}

func TestSyncRulesFromSettings(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	require.NoError(t, notifier.SeedDefaultRules(db, logger))

	cfg := settings.DefaultTrackerSettings()
	cfg.NotificationEmail = "alerts@example.com"
	cfg.EnableThresholdNotifications = true
	cfg.VisitorThresholdCount = 250
	require.NoError(t, notifier.SyncRulesFromSettings(db, logger, cfg))

	rules, err := notifier.ListRules(db)
	require.NoError(t, err)
	require.Len(t, rules, 3)
	for _, rule := range rules {
		assert.Equal(t, "alerts@example.com", rule.Email)
		if rule.EventType == notifier.EventThreshold {
			assert.True(t, rule.Enabled)
			assert.Equal(t, 250, rule.Threshold)
		} else {
			assert.False(t, rule.Enabled)
		}
	}
}
