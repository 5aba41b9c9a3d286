package detector_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"visitornotify/internal/detector"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		name            string
		userAgent       string
		expectedDevice  string
		expectedBrowser string
		expectedOS      string
	}{
		{
			name:            "Chrome on Windows",
			userAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36",
			expectedDevice:  "desktop",
			expectedBrowser: "chrome",
			expectedOS:      "windows",
		},
		{
			name:            "Safari on iPhone",
			userAgent:       "Mozilla/5.0 (iPhone; CPU iPhone OS 14_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Mobile/15E148 Safari/604.1",
			expectedDevice:  "mobile",
			expectedBrowser: "safari",
			expectedOS:      "ios",
		},
		{
			name:            "Chrome on Android phone",
			userAgent:       "Mozilla/5.0 (Linux; Android 11; SM-G998B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.120 Mobile Safari/537.36",
			expectedDevice:  "mobile",
			expectedBrowser: "chrome",
			expectedOS:      "android",
		},
		{
			name:            "Safari on iPad",
			userAgent:       "Mozilla/5.0 (iPad; CPU OS 14_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Safari/604.1",
			expectedDevice:  "tablet",
			expectedBrowser: "safari",
			expectedOS:      "ios",
		},
		{
			name:            "Edge on Windows",
			userAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36 Edg/115.0.1901.183",
			expectedDevice:  "desktop",
			expectedBrowser: "edge",
			expectedOS:      "windows",
		},
		{
			name:            "Opera on Mac",
			userAgent:       "Mozilla/5.0 (Macintosh; Intel Mac OS X 13_4) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36 OPR/100.0.0.0",
			expectedDevice:  "desktop",
			expectedBrowser: "opera",
			expectedOS:      "mac",
		},
		{
			name:            "Firefox on Linux",
			userAgent:       "Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:115.0) Gecko/20100101 Firefox/115.0",
			expectedDevice:  "desktop",
			expectedBrowser: "firefox",
			expectedOS:      "linux",
		},
		{
			name:            "Unrecognized tokens",
			userAgent:       "SomethingEntirelyDifferent/1.0 (unclassified)",
			expectedDevice:  "desktop",
			expectedBrowser: "unknown",
			expectedOS:      "unknown",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := detector.Classify(tc.userAgent)

			assert.False(t, result.IsBot)
			assert.Equal(t, tc.expectedDevice, result.DeviceType)
			assert.Equal(t, tc.expectedBrowser, result.Browser)
			assert.Equal(t, tc.expectedOS, result.OS)
		})
	}
}

func TestClassifyBots(t *testing.T) {
	testCases := []struct {
		name      string
		userAgent string
	}{
		{name: "Googlebot", userAgent: "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"},
		{name: "Bingbot", userAgent: "Mozilla/5.0 (compatible; bingbot/2.0; +http://www.bing.com/bingbot.htm)"},
		{name: "curl", userAgent: "curl/8.1.2 (x86_64-pc-linux-gnu)"},
		{name: "AhrefsBot", userAgent: "Mozilla/5.0 (compatible; AhrefsBot/7.0; +http://ahrefs.com/robot/)"},
		{name: "empty user agent", userAgent: ""},
		{name: "short user agent", userAgent: "abc"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := detector.Classify(tc.userAgent)

			assert.True(t, result.IsBot)
			assert.Equal(t, detector.DeviceBot, result.DeviceType)
		})
	}
}

func TestClassifyMobileNotTablet(t *testing.T) {
	// Phone user agents carry "mobile" without tablet tokens.
	result := detector.Classify("Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Mobile Safari/537.36")
	assert.Equal(t, detector.DeviceMobile, result.DeviceType)
}
