// Package logs keeps the application's own event log: rows in the database
// for the admin UI, mirrored as formatted lines to a rotating file.
//
// Recording never returns an error to callers. A log write that fails falls
// back to the process logger so the operation that triggered it is never
// disturbed.
package logs

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"
)

// Log levels, ordered by severity.
const (
	LevelDebug    = "debug"
	LevelInfo     = "info"
	LevelWarning  = "warning"
	LevelError    = "error"
	LevelCritical = "critical"
)

var levelOrdinal = map[string]int{
	LevelDebug:    0,
	LevelInfo:     1,
	LevelWarning:  2,
	LevelError:    3,
	LevelCritical: 4,
}

// LevelAllowed reports whether a message at level passes the configured
// minimum. Unknown levels are treated as info.
func LevelAllowed(minimum, level string) bool {
	min, ok := levelOrdinal[minimum]
	if !ok {
		min = levelOrdinal[LevelInfo]
	}
	ord, ok := levelOrdinal[level]
	if !ok {
		ord = levelOrdinal[LevelInfo]
	}
	return ord >= min
}

// LogEntry is one recorded application event.
type LogEntry struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp time.Time `gorm:"index;not null"`
	Level     string    `gorm:"index;size:16;not null"`
	Component string    `gorm:"index;size:64;not null"`
	Message   string    `gorm:"not null"`
	Context   string
}

// AppLog records events to the database and a rotating log file.
type AppLog struct {
	db       *gorm.DB
	logger   *slog.Logger
	minLevel func() string

	mu   sync.Mutex
	file *lumberjack.Logger
}

// Options configures an AppLog.
type Options struct {
	// MinLevel returns the current minimum level. Read per record so a
	// settings change applies without restart. Nil means log everything.
	MinLevel func() string
	// FilePath enables the rotating file sink when non-empty.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New creates an AppLog writing to the given database.
func New(db *gorm.DB, logger *slog.Logger, opts Options) *AppLog {
	a := &AppLog{db: db, logger: logger, minLevel: opts.MinLevel}
	if opts.FilePath != "" {
		a.file = &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
	}
	return a
}

// Record stores one event. Context values must be JSON-serializable; a nil
// map records no context.
func (a *AppLog) Record(level, component, message string, context map[string]any) {
	if a.minLevel != nil && !LevelAllowed(a.minLevel(), level) {
		return
	}
	if _, ok := levelOrdinal[level]; !ok {
		level = LevelInfo
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Component: component,
		Message:   message,
	}
	if len(context) > 0 {
		if blob, err := json.Marshal(context); err == nil {
			entry.Context = string(blob)
		}
	}

	err := sqlite.PerformWrite(a.logger, a.db, func(tx *gorm.DB) error {
		return tx.Create(&entry).Error
	})
	if err != nil {
		a.logger.Error("Failed to persist log entry",
			slog.String("component", component),
			slog.String("message", message),
			slog.Any("error", err))
	}

	a.writeLine(entry)
}

// Debug records a debug-level event.
func (a *AppLog) Debug(component, message string, context map[string]any) {
	a.Record(LevelDebug, component, message, context)
}

// Info records an info-level event.
func (a *AppLog) Info(component, message string, context map[string]any) {
	a.Record(LevelInfo, component, message, context)
}

// Warning records a warning-level event.
func (a *AppLog) Warning(component, message string, context map[string]any) {
	a.Record(LevelWarning, component, message, context)
}

// Error records an error-level event.
func (a *AppLog) Error(component, message string, context map[string]any) {
	a.Record(LevelError, component, message, context)
}

// Critical records a critical-level event.
func (a *AppLog) Critical(component, message string, context map[string]any) {
	a.Record(LevelCritical, component, message, context)
}

func (a *AppLog) writeLine(entry LogEntry) {
	if a.file == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	_, _ = a.file.Write([]byte(FormatLine(entry) + "\n"))
}

// FormatLine renders a log entry as one file/export line.
func FormatLine(entry LogEntry) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(entry.Timestamp.UTC().Format("2006-01-02 15:04:05"))
	b.WriteString("] VN.")
	b.WriteString(strings.ToUpper(entry.Level))
	b.WriteString("[")
	b.WriteString(entry.Component)
	b.WriteString("]: ")
	b.WriteString(entry.Message)
	if entry.Context != "" {
		b.WriteString(" | Context: ")
		b.WriteString(entry.Context)
	}
	return b.String()
}

// ListFilter narrows List results. Zero values mean no filtering.
type ListFilter struct {
	Level     string
	Component string
	Search    string
	Limit     int
	Offset    int
}

const defaultListLimit = 100

// List returns entries newest first plus the total count for the filter.
func List(db *gorm.DB, filter ListFilter) ([]LogEntry, int64, error) {
	query := db.Model(&LogEntry{})
	if filter.Level != "" {
		query = query.Where("level = ?", filter.Level)
	}
	if filter.Component != "" {
		query = query.Where("component = ?", filter.Component)
	}
	if filter.Search != "" {
		query = query.Where("message LIKE ?", "%"+filter.Search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count log entries: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var entries []LogEntry
	err := query.Order("timestamp DESC, id DESC").
		Limit(limit).Offset(filter.Offset).
		Find(&entries).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list log entries: %w", err)
	}
	return entries, total, nil
}

// Get returns one entry by ID.
func Get(db *gorm.DB, id uint) (*LogEntry, error) {
	var entry LogEntry
	if err := db.First(&entry, id).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// Delete removes one entry by ID.
func Delete(db *gorm.DB, logger *slog.Logger, id uint) error {
	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Delete(&LogEntry{}, id).Error
	})
}

// BulkDelete removes the given entries, returning how many were deleted.
func BulkDelete(db *gorm.DB, logger *slog.Logger, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var deleted int64
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		result := tx.Where("id IN ?", ids).Delete(&LogEntry{})
		deleted = result.RowsAffected
		return result.Error
	})
	return deleted, err
}

// Clear removes all entries.
func Clear(db *gorm.DB, logger *slog.Logger) error {
	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Where("1 = 1").Delete(&LogEntry{}).Error
	})
}

// Prune removes entries older than the retention window.
func Prune(db *gorm.DB, logger *slog.Logger, retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	var deleted int64
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		result := tx.Where("timestamp < ?", cutoff).Delete(&LogEntry{})
		deleted = result.RowsAffected
		return result.Error
	})
	return deleted, err
}

// WriteCSV streams the filtered entries as CSV, oldest first.
func WriteCSV(db *gorm.DB, filter ListFilter, out *csv.Writer) error {
	query := db.Model(&LogEntry{})
	if filter.Level != "" {
		query = query.Where("level = ?", filter.Level)
	}
	if filter.Component != "" {
		query = query.Where("component = ?", filter.Component)
	}

	var entries []LogEntry
	if err := query.Order("timestamp ASC, id ASC").Find(&entries).Error; err != nil {
		return fmt.Errorf("failed to export log entries: %w", err)
	}

	if err := out.Write([]string{"Timestamp", "Level", "Component", "Message", "Context"}); err != nil {
		return err
	}
	for _, entry := range entries {
		record := []string{
			entry.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			entry.Level,
			entry.Component,
			entry.Message,
			entry.Context,
		}
		if err := out.Write(record); err != nil {
			return err
		}
	}
	out.Flush()
	return out.Error()
}

// ParseIDs converts a list of string IDs from a request payload.
func ParseIDs(raw []string) []uint {
	ids := make([]uint, 0, len(raw))
	for _, s := range raw {
		v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
		if err != nil || v == 0 {
			continue
		}
		ids = append(ids, uint(v))
	}
	return ids
}
