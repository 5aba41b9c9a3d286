// Package v1 exposes the public tracking endpoints.
package v1

import (
	"encoding/json"
	"net/http"
	"time"

	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"visitornotify/internal/tracker"
)

// SessionCookieName is the cookie carrying the visitor's session token.
const SessionCookieName = "vn_session"

// sessionCookieTTL matches the session retention a returning visitor
// expects: the cookie outlives the browser session by a month.
const sessionCookieTTL = 30 * 24 * time.Hour

// TrackParams is the JSON body of a tracking request.
type TrackParams struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTrackHandler returns the handler for POST /x/api/v1/track.
func NewTrackHandler(tr *tracker.Tracker) func(*cartridge.Context) error {
	return func(ctx *cartridge.Context) error {
		ctx.Logger.Debug("Received track request",
			slog.String("method", ctx.Method()),
			slog.String("path", ctx.Path()))

		var params TrackParams
		if err := ctx.Ctx.BodyParser(&params); err != nil {
			ctx.Logger.Debug("Failed to parse track request", slog.Any("error", err))
			return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "Invalid request body",
			})
		}
		if params.URL == "" {
			return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "Missing url",
			})
		}

		result := track(ctx, tr, params)
		if result.SetCookie {
			setSessionCookie(ctx.Ctx, result.SessionKey)
		}

		return ctx.Status(http.StatusAccepted).JSON(fiber.Map{
			"success": true,
			"data":    fiber.Map{"tracked": result.Tracked},
		})
	}
}

// NewTrackBeaconHandler returns the handler for tracking requests sent via
// navigator.sendBeacon during page unload. Beacon responses are never read
// by the browser, so every outcome is a 202.
func NewTrackBeaconHandler(tr *tracker.Tracker) func(*cartridge.Context) error {
	return func(ctx *cartridge.Context) error {
		// Beacons arrive as text/plain regardless of payload shape.
		var params TrackParams
		if err := json.Unmarshal(ctx.Body(), &params); err != nil {
			ctx.Logger.Debug("Failed to parse beacon request", slog.Any("error", err))
			return ctx.SendStatus(http.StatusAccepted)
		}
		if params.URL == "" {
			return ctx.SendStatus(http.StatusAccepted)
		}

		result := track(ctx, tr, params)
		if result.SetCookie {
			setSessionCookie(ctx.Ctx, result.SessionKey)
		}

		return ctx.SendStatus(http.StatusAccepted)
	}
}

func track(ctx *cartridge.Context, tr *tracker.Tracker, params TrackParams) tracker.Result {
	userAgent := ctx.Get("User-Agent")
	if forwardedUA := ctx.Get("X-Forwarded-User-Agent"); forwardedUA != "" {
		userAgent = forwardedUA
	}

	now := params.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}

	return tr.Track(tracker.Input{
		SessionToken: ctx.Ctx.Cookies(SessionCookieName),
		IPAddress:    clientIP(ctx.Ctx),
		UserAgent:    userAgent,
		URL:          params.URL,
		Title:        params.Title,
		Now:          now,
	})
}

func setSessionCookie(c *fiber.Ctx, sessionKey string) {
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookieName,
		Value:    sessionKey,
		Expires:  time.Now().Add(sessionCookieTTL),
		HTTPOnly: true,
		Secure:   c.Protocol() == "https",
		SameSite: fiber.CookieSameSiteLaxMode,
		Path:     "/",
	})
}
