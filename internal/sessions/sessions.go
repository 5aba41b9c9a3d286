// Package sessions owns the visitor session and page view records.
package sessions

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// Session represents a visitor's continuous browsing identity, tracked via
// a cookie token and spanning multiple page views.
type Session struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	SessionKey   string `gorm:"uniqueIndex;size:64;not null"`
	IPHash       string `gorm:"index;size:64"`
	UserAgent    string
	DeviceType   string    `gorm:"index;size:16;not null;default:desktop"`
	Browser      string    `gorm:"size:32"`
	OS           string    `gorm:"size:32"`
	IsBot        bool      `gorm:"index;not null;default:false"`
	CreatedAt    time.Time `gorm:"index;not null"`
	LastActivity time.Time `gorm:"index;not null"`
}

// PageView represents one tracked page load within a session.
type PageView struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	SessionID uint   `gorm:"index;not null"`
	URL       string `gorm:"not null"`
	Title     string
	ViewedAt  time.Time `gorm:"index;not null"`
}

// FindByKey looks up a session by its cookie token. Returns
// gorm.ErrRecordNotFound when the token is unknown.
func FindByKey(db *gorm.DB, sessionKey string) (*Session, error) {
	var session Session
	if err := db.Where("session_key = ?", sessionKey).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// Create inserts a new session row. When a concurrent request already
// inserted the same session key, the unique index rejects the insert and the
// winning row is re-read instead, so one browser never ends up with two
// stored sessions for one token.
func Create(db *gorm.DB, logger *slog.Logger, session *Session) (*Session, error) {
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(session).Error
	})
	if err == nil {
		return session, nil
	}

	if isUniqueConstraintError(err) {
		logger.Debug("Session key already inserted by a concurrent request, re-reading",
			slog.String("session_key", session.SessionKey))
		return FindByKey(db, session.SessionKey)
	}

	return nil, fmt.Errorf("failed to create session: %w", err)
}

// Touch updates last_activity to now. The guard keeps last_activity
// monotonically non-decreasing even if requests land out of order.
func Touch(db *gorm.DB, logger *slog.Logger, sessionID uint, now time.Time) error {
	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Model(&Session{}).
			Where("id = ? AND last_activity <= ?", sessionID, now).
			Update("last_activity", now).Error
	})
}

// RecordPageView appends a page view row for the given session.
func RecordPageView(db *gorm.DB, logger *slog.Logger, view *PageView) error {
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(view).Error
	})
	if err != nil {
		return fmt.Errorf("failed to record page view: %w", err)
	}
	return nil
}

// CountCreatedSince counts sessions created at or after the given time.
func CountCreatedSince(db *gorm.DB, since time.Time) (int64, error) {
	var count int64
	err := db.Model(&Session{}).Where("created_at >= ?", since).Count(&count).Error
	return count, err
}

// CountDeviceTypeOlderThan counts sessions of the given device type created
// before the cutoff.
func CountDeviceTypeOlderThan(db *gorm.DB, deviceType string, cutoff time.Time) (int64, error) {
	var count int64
	err := db.Model(&Session{}).
		Where("device_type = ? AND created_at < ?", deviceType, cutoff).
		Count(&count).Error
	return count, err
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
