package sessions_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"visitornotify/internal/sessions"
	"visitornotify/internal/testsupport"
	"visitornotify/internal/visitors"
)

func TestFindByKey(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()
	now := time.Now().UTC()

	key := visitors.NewSessionKey()
	created, err := sessions.Create(db, logger, &sessions.Session{
		SessionKey:   key,
		IPHash:       visitors.HashIP("198.51.100.20", "salt"),
		UserAgent:    "Mozilla/5.0 Test Browser",
		DeviceType:   "desktop",
		Browser:      "chrome",
		OS:           "windows",
		CreatedAt:    now,
		LastActivity: now,
	})
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	found, err := sessions.FindByKey(db, key)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, "desktop", found.DeviceType)

	_, err = sessions.FindByKey(db, "does-not-exist")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCreateDuplicateKeyReturnsExistingRow(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()
	now := time.Now().UTC()

	key := visitors.NewSessionKey()
	first, err := sessions.Create(db, logger, &sessions.Session{
		SessionKey: key, DeviceType: "desktop", CreatedAt: now, LastActivity: now,
	})
	require.NoError(t, err)

	// A second insert with the same key simulates the losing side of two
	// concurrent first-visit requests from the same browser.
	second, err := sessions.Create(db, logger, &sessions.Session{
		SessionKey: key, DeviceType: "mobile", CreatedAt: now, LastActivity: now,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "desktop", second.DeviceType)

	var count int64
	require.NoError(t, db.Model(&sessions.Session{}).Where("session_key = ?", key).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestTouchIsMonotonic(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	created := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	session := testsupport.CreateTestSession(t, db, "desktop", created)

	later := created.Add(10 * time.Minute)
	require.NoError(t, sessions.Touch(db, logger, session.ID, later))

	var got sessions.Session
	require.NoError(t, db.First(&got, session.ID).Error)
	assert.True(t, got.LastActivity.Equal(later))

	// An out-of-order earlier timestamp must not move last_activity back.
	earlier := created.Add(5 * time.Minute)
	require.NoError(t, sessions.Touch(db, logger, session.ID, earlier))

	require.NoError(t, db.First(&got, session.ID).Error)
	assert.True(t, got.LastActivity.Equal(later))
}

func TestRecordPageView(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()
	now := time.Now().UTC()

	session := testsupport.CreateTestSession(t, db, "desktop", now)

	require.NoError(t, sessions.RecordPageView(db, logger, &sessions.PageView{
		SessionID: session.ID,
		URL:       "https://example.com/pricing",
		Title:     "Pricing",
		ViewedAt:  now,
	}))

	var views []sessions.PageView
	require.NoError(t, db.Where("session_id = ?", session.ID).Find(&views).Error)
	require.Len(t, views, 1)
	assert.Equal(t, "https://example.com/pricing", views[0].URL)
}

func TestSessionCounters(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	now := time.Now().UTC()

	testsupport.CreateTestSession(t, db, "desktop", now.Add(-2*time.Hour))
	testsupport.CreateTestSession(t, db, "mobile", now.Add(-30*time.Minute))
	testsupport.CreateTestSession(t, db, "mobile", now.Add(-5*time.Minute))

	sinceMidnightish, err := sessions.CountCreatedSince(db, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, sinceMidnightish)

	olderMobile, err := sessions.CountDeviceTypeOlderThan(db, "mobile", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 0, olderMobile)

	olderDesktop, err := sessions.CountDeviceTypeOlderThan(db, "desktop", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, olderDesktop)
}
