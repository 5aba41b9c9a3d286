// Package analytics answers the dashboard's aggregate questions directly
// from the sessions and page_views tables. Visitor counts always mean
// distinct sessions, not page views, and every query excludes bot sessions.
package analytics

import "time"

// OnlineWindow is how recently a session must have been active to count as
// online right now.
const OnlineWindow = 5 * time.Minute

// DateCount is one time bucket with a distinct-visitor count.
type DateCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// NameCount is one named dimension value with a distinct-visitor count.
type NameCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// PageCount is one URL with its view count.
type PageCount struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Count int64  `json:"count"`
}

// RecentVisitor is one row of the live visitor feed.
type RecentVisitor struct {
	SessionID    uint      `json:"session_id"`
	DeviceType   string    `json:"device_type"`
	Browser      string    `json:"browser"`
	OS           string    `json:"os"`
	LastActivity time.Time `json:"last_activity"`
	LastURL      string    `json:"last_url"`
	LastTitle    string    `json:"last_title"`
	PageViews    int64     `json:"page_views"`
}
