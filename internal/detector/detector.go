// Package detector classifies user-agent strings into device type, browser,
// operating system and bot status using ordered substring checks.
package detector

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Device types
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
)

// Unknown is returned when no browser or OS token matches.
const Unknown = "unknown"

// minHumanUALength is the shortest user-agent a real browser sends.
// Anything shorter is treated as a bot or tool.
const minHumanUALength = 10

// Result holds the classification of a user-agent string.
type Result struct {
	DeviceType string
	Browser    string
	OS         string
	IsBot      bool
}

//go:embed database/bots.yml
var databaseFiles embed.FS

// BotEntry describes one known bot signature in the embedded database.
type BotEntry struct {
	Name      string `yaml:"name"`
	Signature string `yaml:"signature"`
}

var (
	botEntries []BotEntry
	once       sync.Once
)

func getBotEntries() []BotEntry {
	once.Do(func() {
		data, err := databaseFiles.ReadFile("database/bots.yml")
		if err != nil {
			fmt.Printf("Error reading bots.yml: %v\n", err)
			return
		}
		if err := yaml.Unmarshal(data, &botEntries); err != nil {
			fmt.Printf("Error parsing bots.yml: %v\n", err)
		}
	})
	return botEntries
}

// Classify parses a user-agent string. It has no side effects and no failure
// modes beyond returning "unknown" for unrecognized tokens.
func Classify(userAgent string) Result {
	if isBot(userAgent) {
		return Result{
			DeviceType: DeviceBot,
			Browser:    Unknown,
			OS:         Unknown,
			IsBot:      true,
		}
	}

	ua := strings.ToLower(userAgent)
	return Result{
		DeviceType: deviceType(ua),
		Browser:    browser(ua),
		OS:         operatingSystem(ua),
		IsBot:      false,
	}
}

func isBot(userAgent string) bool {
	if len(userAgent) < minHumanUALength {
		return true
	}

	ua := strings.ToLower(userAgent)
	for _, entry := range getBotEntries() {
		if strings.Contains(ua, entry.Signature) {
			return true
		}
	}
	return false
}

func deviceType(ua string) string {
	if strings.Contains(ua, "mobile") {
		return DeviceMobile
	}
	if strings.Contains(ua, "tablet") || strings.Contains(ua, "ipad") {
		return DeviceTablet
	}
	return DeviceDesktop
}

// browser checks vendor tokens in a fixed order. Edge and Opera must come
// before Chrome and Safari because their user agents contain both tokens.
func browser(ua string) string {
	switch {
	case strings.Contains(ua, "edg/") || strings.Contains(ua, "edge"):
		return "edge"
	case strings.Contains(ua, "opr/") || strings.Contains(ua, "opera"):
		return "opera"
	case strings.Contains(ua, "chrome"):
		return "chrome"
	case strings.Contains(ua, "safari"):
		return "safari"
	case strings.Contains(ua, "firefox"):
		return "firefox"
	}
	return Unknown
}

// operatingSystem checks mobile OS tokens before desktop ones so that
// mobile Safari is not misclassified as "mac".
func operatingSystem(ua string) string {
	switch {
	case strings.Contains(ua, "android"):
		return "android"
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad") || strings.Contains(ua, "ios"):
		return "ios"
	case strings.Contains(ua, "windows"):
		return "windows"
	case strings.Contains(ua, "mac os") || strings.Contains(ua, "macos"):
		return "mac"
	case strings.Contains(ua, "linux"):
		return "linux"
	}
	return Unknown
}
