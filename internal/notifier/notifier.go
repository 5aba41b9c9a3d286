// Package notifier turns tracked visits into email alerts.
//
// Three rule types exist: new_visitor fires on every tracked page view,
// visitor_threshold fires once today's session count reaches the configured
// limit, and new_device fires while a device type has no session older
// than an hour. None of the rules deduplicate; the new_visitor rule in
// particular sends one email per view, which on a busy site is a lot of
// mail, so all three ship disabled.
package notifier

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"visitornotify/internal/logs"
	"visitornotify/internal/mailer"
	"visitornotify/internal/sessions"
	"visitornotify/internal/settings"
)

// Rule event types.
const (
	EventNewVisitor = "new_visitor"
	EventThreshold  = "visitor_threshold"
	EventNewDevice  = "new_device"
)

// HistoryStatusSent marks a successfully delivered notification.
const HistoryStatusSent = "sent"

// newDeviceWindow is how old a device type's earliest session must be
// before that type stops counting as new.
const newDeviceWindow = time.Hour

// NotificationRule is a stored alert rule, one per event type. Rule rows
// mirror the tracker settings flags (synced on every settings save) so the
// admin UI can show per-rule state; evaluation reads the settings directly.
type NotificationRule struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"not null"`
	EventType string `gorm:"uniqueIndex;size:32;not null"`
	Threshold int    `gorm:"not null;default:0"`
	Email     string
	Message   string
	Enabled   bool `gorm:"column:status;not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NotificationHistory records one successfully sent alert. RuleID is zero
// for sends driven by the settings flags rather than a stored rule. The
// table is append-only.
type NotificationHistory struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	RuleID      uint   `gorm:"index;not null;default:0"`
	EventType   string `gorm:"index;size:32;not null"`
	Email       string `gorm:"not null"`
	Subject     string `gorm:"not null"`
	VisitorData string
	SentAt      time.Time `gorm:"index;not null"`
	Status      string    `gorm:"size:16;not null"`
}

// Snapshot is what the tracker hands over after recording a page view.
type Snapshot struct {
	Session   *sessions.Session
	PageURL   string
	PageTitle string
	Now       time.Time
	SiteName  string
	SiteURL   string
}

// Notifier evaluates alert rules against visit snapshots.
type Notifier struct {
	db     *gorm.DB
	logger *slog.Logger
	appLog *logs.AppLog
	mailer mailer.Mailer
}

// New creates a Notifier.
func New(db *gorm.DB, logger *slog.Logger, appLog *logs.AppLog, m mailer.Mailer) *Notifier {
	return &Notifier{db: db, logger: logger, appLog: appLog, mailer: m}
}

// SeedDefaultRules inserts the built-in rules, disabled, if missing.
func SeedDefaultRules(db *gorm.DB, logger *slog.Logger) error {
	rules := []NotificationRule{
		{Name: "New Visitor Alert", EventType: EventNewVisitor},
		{Name: "Daily Visitor Threshold", EventType: EventThreshold, Threshold: 10},
		{Name: "New Device Type", EventType: EventNewDevice},
	}
	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		for _, rule := range rules {
			err := tx.Exec(`
                INSERT INTO notification_rules (name, event_type, threshold, email, message, status, created_at, updated_at)
                VALUES (?, ?, ?, '', '', 0, ?, ?)
                ON CONFLICT(event_type) DO NOTHING
            `, rule.Name, rule.EventType, rule.Threshold, time.Now().UTC(), time.Now().UTC()).Error
			if err != nil {
				return fmt.Errorf("failed to seed rule %s: %w", rule.EventType, err)
			}
		}
		return nil
	})
}

// SyncRulesFromSettings updates the stored rules to mirror the settings
// flags. Called after every settings save.
func SyncRulesFromSettings(db *gorm.DB, logger *slog.Logger, cfg settings.TrackerSettings) error {
	updates := map[string]map[string]any{
		EventNewVisitor: {
			"status": cfg.EnableNewVisitorNotifications,
			"email":  cfg.NotificationEmail,
		},
		EventThreshold: {
			"status":    cfg.EnableThresholdNotifications,
			"email":     cfg.NotificationEmail,
			"threshold": cfg.VisitorThresholdCount,
		},
		EventNewDevice: {
			"status": cfg.EnableNewDeviceNotifications,
			"email":  cfg.NotificationEmail,
		},
	}
	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		for eventType, fields := range updates {
			err := tx.Model(&NotificationRule{}).
				Where("event_type = ?", eventType).
				Updates(fields).Error
			if err != nil {
				return fmt.Errorf("failed to sync rule %s: %w", eventType, err)
			}
		}
		return nil
	})
}

// Evaluate runs every enabled rule against the snapshot. Send failures are
// logged and swallowed; a broken SMTP server must not affect tracking.
func (n *Notifier) Evaluate(cfg settings.TrackerSettings, snapshot Snapshot) {
	if cfg.NotificationEmail == "" {
		return
	}
	if snapshot.Session == nil {
		return
	}

	if cfg.EnableNewVisitorNotifications {
		n.sendNewVisitor(cfg, snapshot)
	}
	if cfg.EnableThresholdNotifications {
		n.evaluateThreshold(cfg, snapshot)
	}
	if cfg.EnableNewDeviceNotifications {
		n.evaluateNewDevice(cfg, snapshot)
	}
}

// sendNewVisitor mails once per tracked view. No deduplication: the rule
// is a per-visit firehose, which is why it defaults to off.
func (n *Notifier) sendNewVisitor(cfg settings.TrackerSettings, snapshot Snapshot) {
	subject := fmt.Sprintf("[%s] New Visitor Alert", snapshot.SiteName)
	body := fmt.Sprintf(
		"A visitor is on your site right now.\n\n%s",
		visitDetails(snapshot))
	n.deliver(cfg, EventNewVisitor, subject, body, snapshot)
}

// evaluateThreshold counts sessions created since local midnight. There is
// no debounce: once the count crosses the limit, every further page view
// sends another mail until midnight resets the count.
func (n *Notifier) evaluateThreshold(cfg settings.TrackerSettings, snapshot Snapshot) {
	midnight := localMidnight(snapshot.Now)
	count, err := sessions.CountCreatedSince(n.db, midnight)
	if err != nil {
		n.logger.Error("Failed to count sessions for threshold rule", slog.Any("error", err))
		return
	}
	if count < int64(cfg.VisitorThresholdCount) {
		return
	}

	subject := fmt.Sprintf("[%s] Visitor Threshold Reached", snapshot.SiteName)
	body := fmt.Sprintf(
		"Your site has reached %d visitors today (threshold: %d).\n\n%s",
		count, cfg.VisitorThresholdCount, visitDetails(snapshot))
	n.deliver(cfg, EventThreshold, subject, body, snapshot)
}

// evaluateNewDevice treats a device type as new when no session of that
// type is older than an hour. Checked on every view: repeat views from a
// young session re-fire until some session of the type ages past the
// window, after which the type is known and the rule goes quiet.
func (n *Notifier) evaluateNewDevice(cfg settings.TrackerSettings, snapshot Snapshot) {
	deviceType := snapshot.Session.DeviceType
	cutoff := snapshot.Now.Add(-newDeviceWindow)
	count, err := sessions.CountDeviceTypeOlderThan(n.db, deviceType, cutoff)
	if err != nil {
		n.logger.Error("Failed to count sessions for new device rule", slog.Any("error", err))
		return
	}
	if count > 0 {
		return
	}

	subject := fmt.Sprintf("[%s] New Device Type: %s", snapshot.SiteName, deviceType)
	body := fmt.Sprintf(
		"A visitor arrived using a device type not seen before: %s.\n\n%s",
		deviceType, visitDetails(snapshot))
	n.deliver(cfg, EventNewDevice, subject, body, snapshot)
}

// deliver sends the mail and, only on success, appends a history row.
func (n *Notifier) deliver(cfg settings.TrackerSettings, eventType, subject, body string, snapshot Snapshot) {
	if err := n.mailer.Send(cfg.NotificationEmail, subject, body); err != nil {
		n.appLog.Error("notifier", "Failed to send notification email", map[string]any{
			"event_type": eventType,
			"error":      err.Error(),
		})
		return
	}

	history := NotificationHistory{
		RuleID:      0,
		EventType:   eventType,
		Email:       cfg.NotificationEmail,
		Subject:     subject,
		VisitorData: visitorDataJSON(snapshot),
		SentAt:      time.Now().UTC(),
		Status:      HistoryStatusSent,
	}
	err := sqlite.PerformWrite(n.logger, n.db, func(tx *gorm.DB) error {
		return tx.Create(&history).Error
	})
	if err != nil {
		n.logger.Error("Failed to record notification history", slog.Any("error", err))
		return
	}

	n.appLog.Info("notifier", "Notification sent", map[string]any{
		"event_type": eventType,
		"subject":    subject,
	})
}

// ListHistory returns sent notifications, newest first.
func ListHistory(db *gorm.DB, limit, offset int) ([]NotificationHistory, int64, error) {
	var total int64
	if err := db.Model(&NotificationHistory{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count notification history: %w", err)
	}

	if limit <= 0 {
		limit = 50
	}
	var history []NotificationHistory
	err := db.Order("sent_at DESC, id DESC").Limit(limit).Offset(offset).Find(&history).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notification history: %w", err)
	}
	return history, total, nil
}

// ListRules returns the stored rules in a stable order.
func ListRules(db *gorm.DB) ([]NotificationRule, error) {
	var rules []NotificationRule
	if err := db.Order("id ASC").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list notification rules: %w", err)
	}
	return rules, nil
}

func visitDetails(snapshot Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Time: %s\n", snapshot.Now.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Site: %s (%s)\n", snapshot.SiteName, snapshot.SiteURL)
	fmt.Fprintf(&b, "Device: %s\n", snapshot.Session.DeviceType)
	fmt.Fprintf(&b, "Browser: %s\n", snapshot.Session.Browser)
	fmt.Fprintf(&b, "OS: %s\n", snapshot.Session.OS)
	fmt.Fprintf(&b, "Page: %s", snapshot.PageURL)
	return b.String()
}

func visitorDataJSON(snapshot Snapshot) string {
	data := map[string]any{
		"device_type": snapshot.Session.DeviceType,
		"browser":     snapshot.Session.Browser,
		"os":          snapshot.Session.OS,
		"page_url":    snapshot.PageURL,
		"page_title":  snapshot.PageTitle,
		"time":        snapshot.Now.UTC().Format(time.RFC3339),
	}
	blob, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	return string(blob)
}

func localMidnight(now time.Time) time.Time {
	year, month, day := now.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, now.Location())
}
