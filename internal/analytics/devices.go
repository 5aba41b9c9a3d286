package analytics

import (
	"fmt"

	"gorm.io/gorm"
)

// DeviceStats returns distinct visitors per device type over the last N
// days, highest first.
func DeviceStats(db *gorm.DB, days int) ([]NameCount, error) {
	return dimensionStats(db, "device_type", days)
}

// BrowserStats returns distinct visitors per browser over the last N days,
// highest first.
func BrowserStats(db *gorm.DB, days int) ([]NameCount, error) {
	return dimensionStats(db, "browser", days)
}

// OSStats returns distinct visitors per operating system over the last N
// days, highest first.
func OSStats(db *gorm.DB, days int) ([]NameCount, error) {
	return dimensionStats(db, "os", days)
}

// dimensionStats groups sessions by a fixed column name. Callers pass only
// the three known columns above; the name is never user input.
func dimensionStats(db *gorm.DB, column string, days int) ([]NameCount, error) {
	var results []NameCount

	query := fmt.Sprintf(`
    SELECT
        %s as name,
        COUNT(DISTINCT id) as count
    FROM sessions
    WHERE created_at >= datetime('now', ?)
    AND is_bot = 0
    GROUP BY name
    ORDER BY count DESC
    `, column)

	err := db.Raw(query, fmt.Sprintf("-%d days", days)).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching %s stats: %w", column, err)
	}
	return results, nil
}
