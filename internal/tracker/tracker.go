// Package tracker records visits: it resolves the visitor's session from
// the cookie token, stores the page view, and hands the result to the
// notifier. Tracking must never break the visited page, so every failure
// path degrades to "not tracked" instead of an error response.
package tracker

import (
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"visitornotify/internal/detector"
	"visitornotify/internal/logs"
	"visitornotify/internal/notifier"
	"visitornotify/internal/sessions"
	"visitornotify/internal/settings"
	"visitornotify/internal/visitors"
)

// ErrSchemaMissing signals that the tracking tables do not exist yet.
var ErrSchemaMissing = errors.New("tracking schema missing")

// Input is one tracking request.
type Input struct {
	// SessionToken is the cookie value, empty on a first visit.
	SessionToken string
	IPAddress    string
	UserAgent    string
	URL          string
	Title        string
	Now          time.Time
}

// Result reports what happened with a tracking request.
type Result struct {
	Tracked bool
	// SessionKey is the token the response cookie should carry.
	SessionKey string
	// SetCookie is true when the browser needs a (new) session cookie.
	SetCookie bool
}

// Tracker processes tracking requests.
type Tracker struct {
	db       *gorm.DB
	logger   *slog.Logger
	appLog   *logs.AppLog
	notifier *notifier.Notifier
	ipSalt   string
	siteName string
	siteURL  string
}

// New creates a Tracker. ipSalt feeds IP hashing; siteName and siteURL
// appear in notification emails.
func New(db *gorm.DB, logger *slog.Logger, appLog *logs.AppLog, n *notifier.Notifier, ipSalt, siteName, siteURL string) *Tracker {
	return &Tracker{
		db:       db,
		logger:   logger,
		appLog:   appLog,
		notifier: n,
		ipSalt:   ipSalt,
		siteName: siteName,
		siteURL:  siteURL,
	}
}

// Track processes one visit. It returns a zero Result instead of an error
// for every skip condition; the only recoverable signal callers act on is
// SetCookie.
func (t *Tracker) Track(input Input) Result {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Panic while tracking visit", slog.Any("panic", r))
		}
	}()

	cfg := settings.GetTrackerSettings(t.db)
	if !cfg.TrackingEnabled {
		return Result{}
	}

	if !t.schemaReady() {
		t.logger.Warn("Tracking tables missing, skipping visit", slog.Any("error", ErrSchemaMissing))
		return Result{}
	}

	classified := detector.Classify(input.UserAgent)
	if classified.IsBot && cfg.ExcludeBots {
		t.logger.Debug("Skipping bot visit", slog.String("user_agent", input.UserAgent))
		return Result{}
	}

	if input.Now.IsZero() {
		input.Now = time.Now().UTC()
	}

	session, created, err := t.resolveSession(input, classified, cfg)
	if err != nil {
		t.appLog.Error("tracker", "Failed to resolve session", map[string]any{"error": err.Error()})
		return Result{}
	}

	view := &sessions.PageView{
		SessionID: session.ID,
		URL:       input.URL,
		Title:     input.Title,
		ViewedAt:  input.Now,
	}
	if err := sessions.RecordPageView(t.db, t.logger, view); err != nil {
		t.appLog.Error("tracker", "Failed to record page view", map[string]any{
			"session_id": session.ID,
			"url":        input.URL,
			"error":      err.Error(),
		})
		return Result{}
	}

	if !created {
		if err := sessions.Touch(t.db, t.logger, session.ID, input.Now); err != nil {
			t.logger.Error("Failed to update session activity",
				slog.Any("error", err),
				slog.Uint64("session_id", uint64(session.ID)))
		}
	}

	t.notifier.Evaluate(cfg, notifier.Snapshot{
		Session:   session,
		PageURL:   input.URL,
		PageTitle: input.Title,
		Now:       input.Now,
		SiteName:  t.siteName,
		SiteURL:   t.siteURL,
	})

	return Result{
		Tracked:    true,
		SessionKey: session.SessionKey,
		SetCookie:  created || session.SessionKey != input.SessionToken,
	}
}

// resolveSession finds the session for the cookie token, or creates one. An
// unknown or missing token gets a fresh key rather than reusing whatever
// the client sent.
func (t *Tracker) resolveSession(input Input, classified detector.Result, cfg settings.TrackerSettings) (*sessions.Session, bool, error) {
	if input.SessionToken != "" {
		session, err := sessions.FindByKey(t.db, input.SessionToken)
		if err == nil {
			return session, false, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, err
		}
	}

	ipValue := input.IPAddress
	if cfg.HashIP {
		ipValue = visitors.HashIP(input.IPAddress, t.ipSalt)
	}

	session := &sessions.Session{
		SessionKey:   visitors.NewSessionKey(),
		IPHash:       ipValue,
		UserAgent:    input.UserAgent,
		DeviceType:   classified.DeviceType,
		Browser:      classified.Browser,
		OS:           classified.OS,
		IsBot:        classified.IsBot,
		CreatedAt:    input.Now,
		LastActivity: input.Now,
	}
	created, err := sessions.Create(t.db, t.logger, session)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

func (t *Tracker) schemaReady() bool {
	migrator := t.db.Migrator()
	return migrator.HasTable(&sessions.Session{}) && migrator.HasTable(&sessions.PageView{})
}
