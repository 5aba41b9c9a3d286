package analytics

import (
	"fmt"

	"gorm.io/gorm"
)

// DailyVisits returns distinct active sessions per day for the last N days,
// oldest first. Buckets follow page-view activity, so a returning session
// counts in every day it viewed a page. Days without visits are simply
// absent.
func DailyVisits(db *gorm.DB, days int) ([]DateCount, error) {
	var results []DateCount

	query := `
    SELECT
        strftime('%Y-%m-%d', pv.viewed_at) as date,
        COUNT(DISTINCT pv.session_id) as count
    FROM page_views pv
    JOIN sessions s ON s.id = pv.session_id
    WHERE pv.viewed_at >= datetime('now', ?)
    AND s.is_bot = 0
    GROUP BY date
    ORDER BY date ASC
    `

	err := db.Raw(query, fmt.Sprintf("-%d days", days)).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching daily visits: %w", err)
	}
	return results, nil
}

// WeeklyVisits returns distinct active sessions per ISO week for the last
// N weeks, oldest first.
func WeeklyVisits(db *gorm.DB, weeks int) ([]DateCount, error) {
	var results []DateCount

	query := `
    SELECT
        strftime('%Y-W%W', pv.viewed_at) as date,
        COUNT(DISTINCT pv.session_id) as count
    FROM page_views pv
    JOIN sessions s ON s.id = pv.session_id
    WHERE pv.viewed_at >= datetime('now', ?)
    AND s.is_bot = 0
    GROUP BY date
    ORDER BY date ASC
    `

	err := db.Raw(query, fmt.Sprintf("-%d days", weeks*7)).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching weekly visits: %w", err)
	}
	return results, nil
}

// MonthlyVisits returns distinct active sessions per month for the last
// N months, oldest first.
func MonthlyVisits(db *gorm.DB, months int) ([]DateCount, error) {
	var results []DateCount

	query := `
    SELECT
        strftime('%Y-%m', pv.viewed_at) as date,
        COUNT(DISTINCT pv.session_id) as count
    FROM page_views pv
    JOIN sessions s ON s.id = pv.session_id
    WHERE pv.viewed_at >= datetime('now', ?)
    AND s.is_bot = 0
    GROUP BY date
    ORDER BY date ASC
    `

	err := db.Raw(query, fmt.Sprintf("-%d months", months)).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching monthly visits: %w", err)
	}
	return results, nil
}

// HourlyStats returns page-view counts per hour of day (00..23) over the
// last N days, ordered by hour. Quiet hours are absent.
func HourlyStats(db *gorm.DB, days int) ([]NameCount, error) {
	var results []NameCount

	query := `
    SELECT
        strftime('%H', pv.viewed_at) as name,
        COUNT(*) as count
    FROM page_views pv
    JOIN sessions s ON s.id = pv.session_id
    WHERE pv.viewed_at >= datetime('now', ?)
    AND s.is_bot = 0
    GROUP BY name
    ORDER BY name ASC
    `

	err := db.Raw(query, fmt.Sprintf("-%d days", days)).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching hourly stats: %w", err)
	}
	return results, nil
}
