package testsupport

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/cache"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"visitornotify/internal"
	"visitornotify/internal/config"
	"visitornotify/internal/detector"
	"visitornotify/internal/logs"
	"visitornotify/internal/notifier"
	"visitornotify/internal/sessions"
	"visitornotify/internal/settings"
	"visitornotify/internal/visitors"
)

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager with visitornotify's interface
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

// Ensure TestDBManager implements cartridge.DBManager
var _ cartridge.DBManager = (*TestDBManager)(nil)

// allModels returns all visitornotify models for migration
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

// SetupTestDB creates a test database with all visitornotify models migrated.
// Uses a named in-memory database with cache=shared to allow multiple connections
// to share the same database within a test. Caches the database by test name
// so multiple calls within the same test return the same database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testName := t.Name()

	// Use root test name for caching to handle closure issues where
	// setup functions capture the outer t while t.Run has subtest t
	rootName := testName
	if idx := strings.Index(testName, "/"); idx > 0 {
		rootName = testName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	// Create a unique named in-memory database for each test
	// cache=shared allows multiple connections to the same database
	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	if err := db.AutoMigrate(allModels()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager creates a test DB manager using cartridge's testsupport
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	cfg := config.GetConfig()

	// SAFETY CHECK: Ensure we're in test environment
	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set VISITORNOTIFY_ENV=test", cfg.Environment)
	}

	db := SetupTestDB(t)
	logger := GetLogger()
	dbManager := NewTestDBManager(db)

	return dbManager, logger
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	var tableNames []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)

	var tables []string
	for _, name := range tableNames {
		if name != "migrations" && name != "schema_migrations" {
			tables = append(tables, name)
		}
	}

	if len(tables) == 0 {
		return
	}

	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// CreateTestSession inserts a session with the given device type and creation
// time, returning the stored row.
func CreateTestSession(t *testing.T, db *gorm.DB, deviceType string, createdAt time.Time) *sessions.Session {
	t.Helper()

	session := &sessions.Session{
		SessionKey:   visitors.NewSessionKey(),
		IPHash:       visitors.HashIP("203.0.113.7", "test-salt"),
		UserAgent:    "Mozilla/5.0 Test Browser",
		DeviceType:   deviceType,
		Browser:      "chrome",
		OS:           "windows",
		CreatedAt:    createdAt,
		LastActivity: createdAt,
	}
	require.NoError(t, db.Create(session).Error)
	return session
}

// CreateTestPageView inserts a page view for the given session.
func CreateTestPageView(t *testing.T, db *gorm.DB, sessionID uint, url string, viewedAt time.Time) *sessions.PageView {
	t.Helper()

	view := &sessions.PageView{
		SessionID: sessionID,
		URL:       url,
		Title:     "Test Page",
		ViewedAt:  viewedAt,
	}
	require.NoError(t, db.Create(view).Error)
	return view
}

// CreateTestVisit inserts a session plus one page view, the shape Track
// produces for a first-time visitor.
func CreateTestVisit(t *testing.T, db *gorm.DB, deviceType, url string, at time.Time) *sessions.Session {
	t.Helper()

	session := CreateTestSession(t, db, deviceType, at)
	CreateTestPageView(t, db, session.ID, url, at)
	return session
}

// ClassifyTestUA runs the device detector the way the tracker does.
func ClassifyTestUA(userAgent string) detector.Result {
	return detector.Classify(userAgent)
}

// FakeMailer records sent messages instead of talking to an SMTP server.
type FakeMailer struct {
	mu    sync.Mutex
	Sends []FakeSend
	Err   error
}

// FakeSend is one recorded message.
type FakeSend struct {
	To      string
	Subject string
	Body    string
}

// Send records the message, or fails with the configured error.
func (m *FakeMailer) Send(to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sends = append(m.Sends, FakeSend{To: to, Subject: subject, Body: body})
	return nil
}

// SentCount returns how many messages were recorded.
func (m *FakeMailer) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sends)
}

// LastSend returns the most recent recorded message.
func (m *FakeMailer) LastSend() FakeSend {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sends) == 0 {
		return FakeSend{}
	}
	return m.Sends[len(m.Sends)-1]
}

// CreateMinimalTestApp creates a test Fiber app with all routes
func CreateMinimalTestApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()

	dbManager := NewTestDBManager(db)
	appConfig := config.GetConfig()
	appConfig.Environment = config.Test

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = dbManager
	// Tests drive the app with plain httptest requests that carry no
	// Sec-Fetch-Site header; disable the strict CSRF middleware the same
	// way cartridge's own testsupport does.
	cfg.EnableSecFetchSite = false

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutes(srv)
	return srv.App()
}
