package http

import (
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"time"

	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"visitornotify/internal/logs"
)

// LogsIndexAction handles GET /admin/api/v1/logs with optional level,
// component, search, limit and offset query parameters.
func LogsIndexAction(ctx *cartridge.Context) error {
	db := ctx.DBManager.GetConnection()

	filter := logs.ListFilter{
		Level:     ctx.Query("level"),
		Component: ctx.Query("component"),
		Search:    ctx.Query("search"),
		Limit:     queryInt(ctx, "limit", 100),
		Offset:    queryOffset(ctx),
	}

	entries, total, err := logs.List(db, filter)
	if err != nil {
		ctx.Logger.Error("Failed to list log entries", slog.Any("error", err))
		return jsonError(ctx, fiber.StatusInternalServerError, "Failed to list log entries")
	}

	return jsonOK(ctx, fiber.Map{
		"entries": entries,
		"total":   total,
	})
}

// LogsShowAction handles GET /admin/api/v1/logs/:id.
func LogsShowAction(ctx *cartridge.Context) error {
	db := ctx.DBManager.GetConnection()

	id, err := logEntryID(ctx)
	if err != nil {
		return jsonError(ctx, fiber.StatusBadRequest, "Invalid log entry id")
	}

	entry, err := logs.Get(db, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(ctx, fiber.StatusNotFound, "Log entry not found")
		}
		ctx.Logger.Error("Failed to load log entry", slog.Any("error", err))
		return jsonError(ctx, fiber.StatusInternalServerError, "Failed to load log entry")
	}
	return jsonOK(ctx, entry)
}

// LogsDeleteAction handles DELETE /admin/api/v1/logs/:id.
func LogsDeleteAction(ctx *cartridge.Context) error {
	db := ctx.DBManager.GetConnection()

	id, err := logEntryID(ctx)
	if err != nil {
		return jsonError(ctx, fiber.StatusBadRequest, "Invalid log entry id")
	}

	if err := logs.Delete(db, ctx.Logger, id); err != nil {
		ctx.Logger.Error("Failed to delete log entry", slog.Any("error", err))
		return jsonError(ctx, fiber.StatusInternalServerError, "Failed to delete log entry")
	}
	return jsonOK(ctx, fiber.Map{"deleted": true})
}

// BulkDeleteLogsParams is the POST /admin/api/v1/logs/bulk-delete payload.
type BulkDeleteLogsParams struct {
	IDs []string `json:"ids"`
}

// LogsBulkDeleteAction handles POST /admin/api/v1/logs/bulk-delete.
// Unknown IDs are silently skipped.
func LogsBulkDeleteAction(ctx *cartridge.Context) error {
	db := ctx.DBManager.GetConnection()

	var params BulkDeleteLogsParams
	if err := ctx.Ctx.BodyParser(&params); err != nil {
		return jsonError(ctx, fiber.StatusBadRequest, "Invalid payload")
	}

	deleted, err := logs.BulkDelete(db, ctx.Logger, logs.ParseIDs(params.IDs))
	if err != nil {
		ctx.Logger.Error("Failed to bulk delete log entries", slog.Any("error", err))
		return jsonError(ctx, fiber.StatusInternalServerError, "Failed to delete log entries")
	}
	return jsonOK(ctx, fiber.Map{"deleted": deleted})
}

// LogsClearAction handles POST /admin/api/v1/logs/clear.
func LogsClearAction(ctx *cartridge.Context) error {
	db := ctx.DBManager.GetConnection()

	if err := logs.Clear(db, ctx.Logger); err != nil {
		ctx.Logger.Error("Failed to clear log entries", slog.Any("error", err))
		return jsonError(ctx, fiber.StatusInternalServerError, "Failed to clear log entries")
	}
	return jsonOK(ctx, fiber.Map{"cleared": true})
}

// LogsExportAction handles GET /admin/api/v1/logs/export, streaming the
// filtered log as CSV.
func LogsExportAction(ctx *cartridge.Context) error {
	db := ctx.DBManager.GetConnection()

	filter := logs.ListFilter{
		Level:     ctx.Query("level"),
		Component: ctx.Query("component"),
	}

	ctx.Ctx.Set("Content-Type", "text/csv")
	ctx.Ctx.Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="logs-%s.csv"`, time.Now().UTC().Format("2006-01-02")))

	writer := csv.NewWriter(ctx.Ctx)
	if err := logs.WriteCSV(db, filter, writer); err != nil {
		ctx.Logger.Error("Failed to export log entries", slog.Any("error", err))
		return jsonError(ctx, fiber.StatusInternalServerError, "Failed to export log entries")
	}
	return nil
}

func logEntryID(ctx *cartridge.Context) (uint, error) {
	id, err := strconv.ParseUint(ctx.Ctx.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id")
	}
	return uint(id), nil
}

func queryOffset(ctx *cartridge.Context) int {
	raw := ctx.Query("offset")
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0
	}
	return value
}
