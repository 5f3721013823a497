package businessflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kairoshi/tsubame/models"
	"github.com/kairoshi/tsubame/utils"
)

func decisionShortURL() *models.ShortURL {
	return &models.ShortURL{
		ID:        1,
		ShortCode: "abc12",
		LongURL:   "https://example.com/landing",
		Mode:      models.ShortURLModeStrict,
		Enabled:   utils.ToPtr(true),
	}
}

func TestDecideStatusNormalization(t *testing.T) {
	tests := []struct {
		configured int
		expected   int
	}{
		{configured: 301, expected: 301},
		{configured: 302, expected: 302},
		{configured: 308, expected: 302},
		{configured: 0, expected: 302},
	}

	for _, tt := range tests {
		cfg := testShortURLConfig()
		cfg.RedirectStatusCode = tt.configured
		decider := NewRedirectDecider(cfg)

		decision := decider.Decide(decisionShortURL(), NewVisitContext("198.51.100.9", "Mozilla/5.0"), nil)
		assert.Equal(t, tt.expected, decision.StatusCode, "configured status %d", tt.configured)
	}
}

func TestDecideCacheTTLFromConfig(t *testing.T) {
	cfg := testShortURLConfig()
	cfg.RedirectCacheTTL = 45 * time.Second
	decider := NewRedirectDecider(cfg)

	decision := decider.Decide(decisionShortURL(), nil, nil)
	assert.Equal(t, 45*time.Second, decision.CacheTTL)
	assert.Equal(t, "https://example.com/landing", decision.TargetURL)
}

func TestDecideDeviceOverridePrecedence(t *testing.T) {
	shortURL := decisionShortURL()
	shortURL.DeviceLongURLs = []models.DeviceLongURL{
		{DeviceType: models.DeviceTypeAndroid, LongURL: "https://example.com/android"},
		{DeviceType: models.DeviceTypeMobile, LongURL: "https://example.com/mobile"},
	}
	decider := NewRedirectDecider(testShortURLConfig())

	tests := []struct {
		name      string
		userAgent string
		expected  string
	}{
		{name: "android exact override", userAgent: "Mozilla/5.0 (Linux; Android 14)", expected: "https://example.com/android"},
		{name: "ios falls back to mobile", userAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0)", expected: "https://example.com/mobile"},
		{name: "generic mobile override", userAgent: "Mozilla/5.0 (Mobile; rv:120.0)", expected: "https://example.com/mobile"},
		{name: "desktop uses long url", userAgent: "Mozilla/5.0 (X11; Linux x86_64)", expected: "https://example.com/landing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := decider.Decide(shortURL, NewVisitContext("198.51.100.9", tt.userAgent), nil)
			assert.Equal(t, tt.expected, decision.TargetURL)
		})
	}
}

func TestDecideDesktopNeverFallsBackToMobile(t *testing.T) {
	shortURL := decisionShortURL()
	shortURL.DeviceLongURLs = []models.DeviceLongURL{
		{DeviceType: models.DeviceTypeMobile, LongURL: "https://example.com/mobile"},
	}
	decider := NewRedirectDecider(testShortURLConfig())

	decision := decider.Decide(shortURL, NewVisitContext("198.51.100.9", "Mozilla/5.0 (X11; Linux x86_64)"), nil)
	assert.Equal(t, "https://example.com/landing", decision.TargetURL)
}

func TestDecideAppendExtraPathAndQuery(t *testing.T) {
	cfg := testShortURLConfig()
	cfg.AppendExtraPath = true
	decider := NewRedirectDecider(cfg)

	shortURL := decisionShortURL()
	shortURL.LongURL = "https://example.com/base/"

	visitCtx := NewVisitContext("198.51.100.9", "Mozilla/5.0")
	visitCtx.RawQuery = "utm_source=mail"

	decision := decider.Decide(shortURL, visitCtx, []string{"extra", "path"})
	assert.Equal(t, "https://example.com/base/extra/path?utm_source=mail", decision.TargetURL)
}

func TestDecideAppendPathKeepsExistingQuery(t *testing.T) {
	cfg := testShortURLConfig()
	cfg.AppendExtraPath = true
	decider := NewRedirectDecider(cfg)

	shortURL := decisionShortURL()
	shortURL.LongURL = "https://example.com/base?fixed=1"

	visitCtx := NewVisitContext("198.51.100.9", "Mozilla/5.0")
	visitCtx.RawQuery = "utm_source=mail"

	decision := decider.Decide(shortURL, visitCtx, []string{"deep"})
	assert.Equal(t, "https://example.com/base/deep?fixed=1&utm_source=mail", decision.TargetURL)
}

func TestDecideTrailingSlash(t *testing.T) {
	cfg := testShortURLConfig()
	cfg.AppendExtraPath = true
	cfg.TrailingSlash = true
	decider := NewRedirectDecider(cfg)

	decision := decider.Decide(decisionShortURL(), nil, []string{"a", "b"})
	assert.Equal(t, "https://example.com/landing/a/b/", decision.TargetURL)
}

func TestDecideQueryAppendedWithoutExtraPath(t *testing.T) {
	decider := NewRedirectDecider(testShortURLConfig())

	visitCtx := NewVisitContext("198.51.100.9", "Mozilla/5.0")
	visitCtx.RawQuery = "ref=42"

	decision := decider.Decide(decisionShortURL(), visitCtx, nil)
	assert.Equal(t, "https://example.com/landing?ref=42", decision.TargetURL)
}
