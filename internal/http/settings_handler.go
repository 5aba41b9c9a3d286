package http

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"visitornotify/internal/logs"
	"visitornotify/internal/notifier"
	"visitornotify/internal/settings"
)

// SettingsShowAction handles GET /admin/api/v1/settings.
func SettingsShowAction(ctx *cartridge.Context) error {
	db := ctx.DBManager.GetConnection()
	return jsonOK(ctx, settings.GetTrackerSettings(db))
}

// SettingsSaveAction handles POST /admin/api/v1/settings. The payload is a
// full settings object; out-of-range numbers are clamped, not rejected.
func SettingsSaveAction(ctx *cartridge.Context) error {
	db := ctx.DBManager.GetConnection()

	// Start from the stored values so a partial payload leaves the rest
	// untouched.
	updated := settings.GetTrackerSettings(db)
	if err := ctx.Ctx.BodyParser(&updated); err != nil {
		ctx.Logger.Debug("Failed to parse settings payload", slog.Any("error", err))
		return jsonError(ctx, fiber.StatusBadRequest, "Invalid settings payload")
	}

	if err := settings.SaveTrackerSettings(db, ctx.Logger, updated); err != nil {
		ctx.Logger.Error("Failed to save settings", slog.Any("error", err))
		return jsonError(ctx, fiber.StatusInternalServerError, "Failed to save settings")
	}

	saved := settings.GetTrackerSettings(db)
	if err := notifier.SyncRulesFromSettings(db, ctx.Logger, saved); err != nil {
		ctx.Logger.Error("Failed to sync notification rules", slog.Any("error", err))
	}

	recordAdminAction(ctx, "settings", "Settings updated", nil)
	return jsonOK(ctx, saved)
}

// SettingsResetAction handles POST /admin/api/v1/settings/reset.
func SettingsResetAction(ctx *cartridge.Context) error {
	db := ctx.DBManager.GetConnection()

	defaults, err := settings.ResetTrackerSettings(db, ctx.Logger)
	if err != nil {
		ctx.Logger.Error("Failed to reset settings", slog.Any("error", err))
		return jsonError(ctx, fiber.StatusInternalServerError, "Failed to reset settings")
	}

	if err := notifier.SyncRulesFromSettings(db, ctx.Logger, defaults); err != nil {
		ctx.Logger.Error("Failed to sync notification rules", slog.Any("error", err))
	}

	recordAdminAction(ctx, "settings", "Settings reset to defaults", nil)
	return jsonOK(ctx, defaults)
}

// recordAdminAction writes an admin-triggered change to the application
// log, honoring the configured minimum level.
func recordAdminAction(ctx *cartridge.Context, component, message string, context map[string]any) {
	db := ctx.DBManager.GetConnection()
	appLog := logs.New(db, ctx.Logger, logs.Options{
		MinLevel: func() string { return settings.GetTrackerSettings(db).LogLevel },
	})
	appLog.Info(component, message, context)
}
