package http

import (
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge"
)

// HealthResponse is the body of GET /_health. Status degrades to
// "degraded" when the database is unreachable; the endpoint itself
// always answers 200 so probes can read the body.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	DBStatus  string    `json:"db_status"`
}

func HealthIndexAction(ctx *cartridge.Context) error {
	health := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		DBStatus:  "ok",
	}

	if err := pingDatabase(ctx); err != nil {
		ctx.Logger.Error("Health check database ping failed", slog.Any("error", err))
		health.Status = "degraded"
		health.DBStatus = "error"
	}

	return ctx.JSON(health)
}
