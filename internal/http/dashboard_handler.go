package http

import (
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"visitornotify/internal/analytics"
	"visitornotify/internal/pkg/async"
)

// DashboardResponse is everything the admin dashboard renders in one call.
type DashboardResponse struct {
	DailyVisits    []analytics.DateCount     `json:"daily_visits"`
	WeeklyVisits   []analytics.DateCount     `json:"weekly_visits"`
	MonthlyVisits  []analytics.DateCount     `json:"monthly_visits"`
	TopPages       []analytics.PageCount     `json:"top_pages"`
	DeviceStats    []analytics.NameCount     `json:"device_stats"`
	BrowserStats   []analytics.NameCount     `json:"browser_stats"`
	OSStats        []analytics.NameCount     `json:"os_stats"`
	HourlyStats    []analytics.NameCount     `json:"hourly_stats"`
	RecentVisitors []analytics.RecentVisitor `json:"recent_visitors"`
	OnlineNow      int64                     `json:"online_now"`
	Days           int                       `json:"days"`
}

const (
	defaultDashboardDays  = 30
	defaultDashboardLimit = 10
	dashboardQueryTimeout = 10 * time.Second
)

// DashboardAction handles GET /admin/api/v1/dashboard. The independent
// aggregate queries run fan-out on a worker pool; one failing query logs
// and renders as an empty section rather than failing the whole dashboard.
func DashboardAction(ctx *cartridge.Context) error {
	db := ctx.DBManager.GetConnection()
	days := queryInt(ctx, "days", defaultDashboardDays)
	limit := queryInt(ctx, "limit", defaultDashboardLimit)

	response := fetchDashboard(db, ctx.Logger, days, limit)
	return jsonOK(ctx, response)
}

func fetchDashboard(db *gorm.DB, logger *slog.Logger, days, limit int) *DashboardResponse {
	tasks := []async.Task{
		{Name: "daily", Execute: func() (any, error) { return analytics.DailyVisits(db, days) }},
		{Name: "weekly", Execute: func() (any, error) { return analytics.WeeklyVisits(db, 12) }},
		{Name: "monthly", Execute: func() (any, error) { return analytics.MonthlyVisits(db, 12) }},
		{Name: "top_pages", Execute: func() (any, error) { return analytics.TopPages(db, limit) }},
		{Name: "devices", Execute: func() (any, error) { return analytics.DeviceStats(db, days) }},
		{Name: "browsers", Execute: func() (any, error) { return analytics.BrowserStats(db, days) }},
		{Name: "oses", Execute: func() (any, error) { return analytics.OSStats(db, days) }},
		{Name: "hourly", Execute: func() (any, error) { return analytics.HourlyStats(db, days) }},
		{Name: "recent", Execute: func() (any, error) { return analytics.RecentVisitors(db, limit) }},
		{Name: "online", Execute: func() (any, error) { return analytics.OnlineNow(db) }},
	}

	queryCtx, cancel := context.WithTimeout(context.Background(), dashboardQueryTimeout)
	defer cancel()

	pool := async.NewPool(4)
	results := pool.Execute(queryCtx, tasks)

	return &DashboardResponse{
		DailyVisits:    dateCountsOrEmpty(logger, results, "daily"),
		WeeklyVisits:   dateCountsOrEmpty(logger, results, "weekly"),
		MonthlyVisits:  dateCountsOrEmpty(logger, results, "monthly"),
		TopPages:       pageCountsOrEmpty(logger, results, "top_pages"),
		DeviceStats:    nameCountsOrEmpty(logger, results, "devices"),
		BrowserStats:   nameCountsOrEmpty(logger, results, "browsers"),
		OSStats:        nameCountsOrEmpty(logger, results, "oses"),
		HourlyStats:    nameCountsOrEmpty(logger, results, "hourly"),
		RecentVisitors: recentVisitorsOrEmpty(logger, results, "recent"),
		OnlineNow:      onlineCountOrZero(logger, results, "online"),
		Days:           days,
	}
}

// DashboardExportAction handles GET /admin/api/v1/dashboard/export, a CSV
// of daily visitor counts for the requested window.
func DashboardExportAction(ctx *cartridge.Context) error {
	db := ctx.DBManager.GetConnection()
	days := queryInt(ctx, "days", defaultDashboardDays)

	daily, err := analytics.DailyVisits(db, days)
	if err != nil {
		ctx.Logger.Error("Failed to export daily visits", slog.Any("error", err))
		return jsonError(ctx, fiber.StatusInternalServerError, "Failed to export dashboard data")
	}

	ctx.Ctx.Set("Content-Type", "text/csv")
	ctx.Ctx.Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="visitors-%s.csv"`, time.Now().UTC().Format("2006-01-02")))

	writer := csv.NewWriter(ctx.Ctx)
	if err := writer.Write([]string{"Date", "Visitors"}); err != nil {
		return err
	}
	for _, row := range daily {
		if err := writer.Write([]string{row.Date, strconv.FormatInt(row.Count, 10)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func queryInt(ctx *cartridge.Context, name string, fallback int) int {
	raw := ctx.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func dateCountsOrEmpty(logger *slog.Logger, results map[string]async.Result, name string) []analytics.DateCount {
	result, ok := results[name]
	if !ok || result.Err != nil {
		logQueryFailure(logger, name, result)
		return []analytics.DateCount{}
	}
	if data, ok := result.Data.([]analytics.DateCount); ok && data != nil {
		return data
	}
	return []analytics.DateCount{}
}

func nameCountsOrEmpty(logger *slog.Logger, results map[string]async.Result, name string) []analytics.NameCount {
	result, ok := results[name]
	if !ok || result.Err != nil {
		logQueryFailure(logger, name, result)
		return []analytics.NameCount{}
	}
	if data, ok := result.Data.([]analytics.NameCount); ok && data != nil {
		return data
	}
	return []analytics.NameCount{}
}

func pageCountsOrEmpty(logger *slog.Logger, results map[string]async.Result, name string) []analytics.PageCount {
	result, ok := results[name]
	if !ok || result.Err != nil {
		logQueryFailure(logger, name, result)
		return []analytics.PageCount{}
	}
	if data, ok := result.Data.([]analytics.PageCount); ok && data != nil {
		return data
	}
	return []analytics.PageCount{}
}

func recentVisitorsOrEmpty(logger *slog.Logger, results map[string]async.Result, name string) []analytics.RecentVisitor {
	result, ok := results[name]
	if !ok || result.Err != nil {
		logQueryFailure(logger, name, result)
		return []analytics.RecentVisitor{}
	}
	if data, ok := result.Data.([]analytics.RecentVisitor); ok && data != nil {
		return data
	}
	return []analytics.RecentVisitor{}
}

func onlineCountOrZero(logger *slog.Logger, results map[string]async.Result, name string) int64 {
	result, ok := results[name]
	if !ok || result.Err != nil {
		logQueryFailure(logger, name, result)
		return 0
	}
	if count, ok := result.Data.(int64); ok {
		return count
	}
	return 0
}

func logQueryFailure(logger *slog.Logger, name string, result async.Result) {
	if result.Err != nil {
		logger.Error("Dashboard query failed", slog.String("query", name), slog.Any("error", result.Err))
	}
}
