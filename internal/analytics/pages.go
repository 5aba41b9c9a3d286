package analytics

import (
	"fmt"

	"gorm.io/gorm"
)

// TopPages returns the most viewed pages, highest first. A page is a
// (url, title) pair: a URL whose title changed shows up once per title.
func TopPages(db *gorm.DB, limit int) ([]PageCount, error) {
	var results []PageCount

	query := `
    SELECT
        pv.url as url,
        pv.title as title,
        COUNT(*) as count
    FROM page_views pv
    JOIN sessions s ON s.id = pv.session_id
    WHERE s.is_bot = 0
    GROUP BY pv.url, pv.title
    ORDER BY count DESC
    LIMIT ?
    `

	err := db.Raw(query, limit).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching top pages: %w", err)
	}
	return results, nil
}
