package http

import (
	"errors"
	"log/slog"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"visitornotify/internal/database"
	"visitornotify/internal/sessions"
)

// DatabaseTestResponse reports connectivity and schema state for the admin
// troubleshooting page.
type DatabaseTestResponse struct {
	Connected    bool   `json:"connected"`
	SchemaOK     bool   `json:"schema_ok"`
	SchemaError  string `json:"schema_error,omitempty"`
	SessionCount int64  `json:"session_count"`
	ViewCount    int64  `json:"view_count"`
}

// DatabaseTestAction handles GET /admin/api/v1/database/test.
func DatabaseTestAction(ctx *cartridge.Context) error {
	db := ctx.DBManager.GetConnection()

	response := DatabaseTestResponse{}
	if err := pingDatabase(ctx); err != nil {
		ctx.Logger.Error("Database connectivity test failed", slog.Any("error", err))
		return jsonOK(ctx, response)
	}
	response.Connected = true

	if err := database.VerifySchema(db); err != nil {
		response.SchemaError = err.Error()
		return jsonOK(ctx, response)
	}
	response.SchemaOK = true

	countRows(db, &sessions.Session{}, &response.SessionCount)
	countRows(db, &sessions.PageView{}, &response.ViewCount)

	return jsonOK(ctx, response)
}

func countRows(db *gorm.DB, model any, out *int64) {
	db.Model(model).Count(out)
}

// pingDatabase reaches through gorm to the underlying connection pool.
func pingDatabase(ctx *cartridge.Context) error {
	db := ctx.DBManager.GetConnection()
	if db == nil {
		return errors.New("database connection unavailable")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
