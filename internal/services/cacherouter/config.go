package cacherouter

import (
	"net/url"
	"path"
	"strings"

	"FinPWA/internal/domain/models"
	"FinPWA/pkg/cache"
)

// NotificationDefaults fills push notifications that carry no title or body.
type NotificationDefaults struct {
	Title   string
	Body    string
	Icon    string
	Badge   string
	OpenURL string
	Vibrate []int
}

// Config parameterizes classification, partitions and lifecycle of a Worker.
type Config struct {
	Version          string
	StaticPartition  string
	DynamicPartition string
	Origin           *url.URL

	// Manifest lists the shell assets cached at install, relative to Origin.
	Manifest []string
	// AllowedHosts are cross-origin hosts the worker still intercepts.
	AllowedHosts []string
	// APIMarkers starting with "/" match the path, others the full URL.
	APIMarkers        []string
	StaticPrefixes    []string
	StaticExtensions  []string
	FallbackDocuments []string

	NavigationPreload  bool
	InstallConcurrency int
	SkipWaiting        bool

	// SyncTags maps a background-sync tag to the client message type it posts.
	SyncTags     map[string]string
	Notification NotificationDefaults
}

// DefaultConfig mirrors the defaults of the PWA shell.
func DefaultConfig(origin *url.URL) Config {
	return Config{
		Version:            "v2",
		StaticPartition:    "static-v2",
		DynamicPartition:   "dynamic-v2",
		Origin:             origin,
		Manifest:           []string{"/", "/index.html", "/manifest.json"},
		AllowedHosts:       []string{"fonts.googleapis.com", "fonts.gstatic.com", "cdn.jsdelivr.net"},
		APIMarkers:         []string{"/api/", "/data/", "market-data", "stock-prices", "crypto-prices", "financial"},
		StaticPrefixes:     []string{"/static/", "/icons/", "/styles/", "/js/"},
		StaticExtensions:   []string{".css", ".js", ".png", ".jpg", ".jpeg", ".svg", ".ico", ".woff", ".woff2"},
		FallbackDocuments:  []string{"/index.html", "/"},
		NavigationPreload:  true,
		InstallConcurrency: 4,
		SkipWaiting:        true,
		SyncTags: map[string]string{
			"portfolio-sync": "PORTFOLIO_SYNC",
			"price-alerts":   "PRICE_ALERTS_SYNC",
		},
		Notification: NotificationDefaults{
			Title:   "Portfolio Tracker",
			Body:    "New financial update available",
			Icon:    "/logo192.png",
			Badge:   "/logo192.png",
			OpenURL: "/",
			Vibrate: []int{100, 50, 100},
		},
	}
}

// SameOrigin reports whether u shares scheme, host and port with the origin.
func (c *Config) SameOrigin(u *url.URL) bool {
	return cache.SameOrigin(u, c.Origin)
}

// Intercepts reports whether the worker handles u at all.
func (c *Config) Intercepts(u *url.URL) bool {
	return c.SameOrigin(u) || c.allowedHost(u)
}

func (c *Config) allowedHost(u *url.URL) bool {
	if u == nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range c.AllowedHosts {
		h = strings.ToLower(h)
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// Classify returns the routing class of req. The first matching rule wins:
// navigation, api, static, other.
func (c *Config) Classify(req *models.Request) models.RequestClass {
	switch {
	case c.isNavigation(req):
		return models.ClassNavigation
	case c.isAPI(req.URL):
		return models.ClassAPI
	case c.isStatic(req):
		return models.ClassStatic
	default:
		return models.ClassOther
	}
}

func (c *Config) isNavigation(req *models.Request) bool {
	if req.Mode == models.ModeNavigate {
		return true
	}
	return req.Method == "GET" && req.Accepts("text/html")
}

func (c *Config) isAPI(u *url.URL) bool {
	if u == nil {
		return false
	}
	full := u.String()
	for _, m := range c.APIMarkers {
		if strings.HasPrefix(m, "/") {
			if strings.Contains(u.Path, m) {
				return true
			}
			continue
		}
		if strings.Contains(full, m) {
			return true
		}
	}
	return false
}

func (c *Config) isStatic(req *models.Request) bool {
	switch req.Destination {
	case models.DestStyle, models.DestScript, models.DestImage, models.DestFont:
		return true
	}
	u := req.URL
	if u == nil {
		return false
	}
	if c.allowedHost(u) {
		return true
	}
	p := u.Path
	for _, prefix := range c.StaticPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	for _, m := range c.Manifest {
		if p == m {
			return true
		}
	}
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return false
	}
	for _, e := range c.StaticExtensions {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// resolve turns a manifest or fallback path into an absolute URL on the origin.
func (c *Config) resolve(ref string) (*url.URL, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return nil, err
	}
	return c.Origin.ResolveReference(r), nil
}

