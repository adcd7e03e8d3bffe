package cacherouter

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"FinPWA/internal/domain/models"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %s: %v", raw, err)
	}
	return u
}

func TestClassify(t *testing.T) {
	cfg := DefaultConfig(mustURL(t, "https://app.test"))

	cases := []struct {
		name   string
		url    string
		mode   string
		dest   string
		accept string
		want   models.RequestClass
	}{
		{"navigate mode", "https://app.test/portfolio", models.ModeNavigate, "", "", models.ClassNavigation},
		{"html accept", "https://app.test/portfolio", "", "", "text/html,application/xhtml+xml", models.ClassNavigation},
		{"navigation wins over api", "https://app.test/api/page", models.ModeNavigate, "", "", models.ClassNavigation},
		{"api path", "https://app.test/api/portfolio", models.ModeCORS, "", "application/json", models.ClassAPI},
		{"data path", "https://app.test/data/quotes.json", "", "", "", models.ClassAPI},
		{"keyword", "https://app.test/v1/market-data?s=AAPL", "", "", "", models.ClassAPI},
		{"keyword in query", "https://app.test/feed?type=crypto-prices", "", "", "", models.ClassAPI},
		{"static prefix", "https://app.test/static/app.js", "", "", "", models.ClassStatic},
		{"icon", "https://app.test/icons/icon-192.png", "", "", "", models.ClassStatic},
		{"extension", "https://app.test/logo192.PNG", "", "", "", models.ClassStatic},
		{"manifest member", "https://app.test/manifest.json", "", "", "", models.ClassStatic},
		{"style destination", "https://app.test/theme", "", models.DestStyle, "", models.ClassStatic},
		{"font host", "https://fonts.gstatic.com/s/inter.woff2", "", "", "", models.ClassStatic},
		{"other", "https://app.test/robots.txt", "", "", "", models.ClassOther},
		{"no extension", "https://app.test/health", "", "", "", models.ClassOther},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := &models.Request{
				Method:      http.MethodGet,
				URL:         mustURL(t, tc.url),
				Header:      http.Header{},
				Mode:        tc.mode,
				Destination: tc.dest,
			}
			if tc.accept != "" {
				req.Header.Set("Accept", tc.accept)
			}
			assert.Equal(t, tc.want, cfg.Classify(req))
		})
	}
}

func TestIntercepts(t *testing.T) {
	cfg := DefaultConfig(mustURL(t, "http://app.test:8080"))

	assert.True(t, cfg.Intercepts(mustURL(t, "http://APP.test:8080/x")))
	assert.False(t, cfg.Intercepts(mustURL(t, "https://app.test:8080/x")))
	assert.False(t, cfg.Intercepts(mustURL(t, "http://app.test/x")))
	assert.True(t, cfg.Intercepts(mustURL(t, "https://fonts.googleapis.com/css?family=Inter")))
	assert.False(t, cfg.Intercepts(mustURL(t, "https://tracker.example/api/collect")))

	std := DefaultConfig(mustURL(t, "https://app.test"))
	assert.True(t, std.SameOrigin(mustURL(t, "https://app.test:443/")))
}
