package analytics

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// RecentVisitors returns the latest sessions with their most recent page,
// newest activity first.
func RecentVisitors(db *gorm.DB, limit int) ([]RecentVisitor, error) {
	var results []RecentVisitor

	query := `
    SELECT
        s.id as session_id,
        s.device_type as device_type,
        s.browser as browser,
        s.os as os,
        s.last_activity as last_activity,
        COALESCE(pv.url, '') as last_url,
        COALESCE(pv.title, '') as last_title,
        (SELECT COUNT(*) FROM page_views p2 WHERE p2.session_id = s.id) as page_views
    FROM sessions s
    LEFT JOIN page_views pv ON pv.id = (
        SELECT MAX(p3.id) FROM page_views p3 WHERE p3.session_id = s.id
    )
    WHERE s.is_bot = 0
    ORDER BY s.last_activity DESC
    LIMIT ?
    `

	err := db.Raw(query, limit).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching recent visitors: %w", err)
	}
	return results, nil
}

// OnlineNow counts sessions active within OnlineWindow.
func OnlineNow(db *gorm.DB) (int64, error) {
	var count int64
	cutoff := time.Now().UTC().Add(-OnlineWindow)
	err := db.Raw(
		"SELECT COUNT(*) FROM sessions WHERE last_activity >= ? AND is_bot = 0",
		cutoff,
	).Scan(&count).Error
	if err != nil {
		return 0, fmt.Errorf("error counting online visitors: %w", err)
	}
	return count, nil
}
