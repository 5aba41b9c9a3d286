package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
)

// All admin API responses share one envelope: {"success": true, "data": ...}
// on the happy path, {"success": false, "error": "..."} otherwise.

func jsonOK(ctx *cartridge.Context, data any) error {
	return ctx.JSON(fiber.Map{"success": true, "data": data})
}

func jsonError(ctx *cartridge.Context, status int, message string) error {
	return ctx.Status(status).JSON(fiber.Map{"success": false, "error": message})
}
