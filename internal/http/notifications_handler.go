package http

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"visitornotify/internal/notifier"
)

// NotificationHistoryAction handles GET /admin/api/v1/notifications/history.
func NotificationHistoryAction(ctx *cartridge.Context) error {
	db := ctx.DBManager.GetConnection()

	history, total, err := notifier.ListHistory(db, queryInt(ctx, "limit", 50), queryOffset(ctx))
	if err != nil {
		ctx.Logger.Error("Failed to list notification history", slog.Any("error", err))
		return jsonError(ctx, fiber.StatusInternalServerError, "Failed to list notification history")
	}

	return jsonOK(ctx, fiber.Map{
		"history": history,
		"total":   total,
	})
}

// NotificationRulesAction handles GET /admin/api/v1/notifications/rules.
func NotificationRulesAction(ctx *cartridge.Context) error {
	db := ctx.DBManager.GetConnection()

	rules, err := notifier.ListRules(db)
	if err != nil {
		ctx.Logger.Error("Failed to list notification rules", slog.Any("error", err))
		return jsonError(ctx, fiber.StatusInternalServerError, "Failed to list notification rules")
	}
	return jsonOK(ctx, rules)
}
