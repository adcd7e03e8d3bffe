package cacherouter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinPWA/internal/domain/models"
	"FinPWA/pkg/cache"
)

var errUnreachable = errors.New("network unreachable")

type fakeNetwork struct {
	mu      sync.Mutex
	pages   map[string]string
	calls   map[string]int
	headers map[string]http.Header
	offline bool
	panicOn string
}

func newFakeNetwork(pages map[string]string) *fakeNetwork {
	return &fakeNetwork{
		pages:   pages,
		calls:   map[string]int{},
		headers: map[string]http.Header{},
	}
}

func (f *fakeNetwork) Fetch(_ context.Context, req *models.Request) (*models.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := req.URL.Path
	f.calls[p]++
	f.headers[p] = req.Header.Clone()
	if p == f.panicOn {
		panic("boom")
	}
	if f.offline {
		return nil, errUnreachable
	}
	body, ok := f.pages[p]
	if !ok {
		return &models.Response{Status: http.StatusNotFound, Header: http.Header{}, Body: []byte("not found")}, nil
	}
	return &models.Response{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"text/plain"}},
		Body:   []byte(body),
	}, nil
}

func (f *fakeNetwork) set(path, body string) {
	f.mu.Lock()
	f.pages[path] = body
	f.mu.Unlock()
}

func (f *fakeNetwork) setOffline(v bool) {
	f.mu.Lock()
	f.offline = v
	f.mu.Unlock()
}

func (f *fakeNetwork) callCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeNetwork) header(path string) http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.headers[path]
}

type fakeClients struct {
	mu       sync.Mutex
	messages []models.ClientMessage
	claimed  []models.ClientMessage
	notes    []models.Notification
	focused  []string
	opened   []string
	hasOpen  bool
}

func (c *fakeClients) PostMessage(_ context.Context, msg models.ClientMessage) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	return 1, nil
}

func (c *fakeClients) Claim(_ context.Context, msg models.ClientMessage) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claimed = append(c.claimed, msg)
	return 1, nil
}

func (c *fakeClients) Focus(_ context.Context, url string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasOpen {
		return false, nil
	}
	c.focused = append(c.focused, url)
	return true, nil
}

func (c *fakeClients) OpenWindow(_ context.Context, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opened = append(c.opened, url)
	return nil
}

func (c *fakeClients) ShowNotification(_ context.Context, n models.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notes = append(c.notes, n)
	return nil
}

func (c *fakeClients) Count() int { return 1 }

type recordingJournal struct {
	mu   sync.Mutex
	recs []*models.FetchRecord
}

func (j *recordingJournal) Record(rec *models.FetchRecord) {
	j.mu.Lock()
	j.recs = append(j.recs, rec)
	j.mu.Unlock()
}

const origin = "https://app.test"

var shell = map[string]string{
	"/":              "<html>root</html>",
	"/index.html":    "<html>index</html>",
	"/manifest.json": `{"name":"portfolio"}`,
}

func shellPages() map[string]string {
	pages := make(map[string]string, len(shell))
	for k, v := range shell {
		pages[k] = v
	}
	return pages
}

type harness struct {
	w       *Worker
	net     *fakeNetwork
	clients *fakeClients
	journal *recordingJournal
	storage *cache.MemoryStorage
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	u, err := url.Parse(origin)
	require.NoError(t, err)

	cfg := DefaultConfig(u)
	for _, m := range mutate {
		m(&cfg)
	}
	h := &harness{
		net:     newFakeNetwork(shellPages()),
		clients: &fakeClients{},
		journal: &recordingJournal{},
		storage: cache.NewMemoryStorage(),
	}
	h.w = New(cfg, h.storage, h.net, WithClients(h.clients), WithJournal(h.journal))
	t.Cleanup(func() {
		_ = h.w.Close()
		_ = h.storage.Close()
	})
	return h
}

func (h *harness) activate(t *testing.T) {
	t.Helper()
	require.NoError(t, h.w.Install(context.Background()))
	require.Equal(t, StateActivated, h.w.State())
}

func get(t *testing.T, raw string) *models.Request {
	t.Helper()
	return &models.Request{Method: http.MethodGet, URL: mustURL(t, raw), Header: http.Header{}}
}

func navigate(t *testing.T, raw string) *models.Request {
	req := get(t, raw)
	req.Mode = models.ModeNavigate
	return req
}

func TestInstallPrecachesAndActivates(t *testing.T) {
	h := newHarness(t)
	h.activate(t)

	names, err := h.w.Partitions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"static-v2", "dynamic-v2"}, names)

	static, err := h.storage.Open(context.Background(), "static-v2")
	require.NoError(t, err)
	keys, err := static.Keys(context.Background())
	require.NoError(t, err)
	assert.Len(t, keys, len(shell))

	require.Len(t, h.clients.claimed, 1)
	assert.Equal(t, models.ClientMessage{Type: ClaimedMessage, Message: "v2"}, h.clients.claimed[0])
	assert.True(t, h.w.NavigationPreload())
}

func TestInstallIsAllOrNothing(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Manifest = append(c.Manifest, "/static/missing.js")
	})

	err := h.w.Install(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateRedundant, h.w.State())

	static, err := h.storage.Open(context.Background(), "static-v2")
	require.NoError(t, err)
	keys, err := static.Keys(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)

	// a fixed manifest can be installed again
	h.net.set("/static/missing.js", "console.log(1)")
	require.NoError(t, h.w.Install(context.Background()))
	assert.Equal(t, StateActivated, h.w.State())
}

func TestActivateBeforeInstall(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.SkipWaiting = false })
	assert.ErrorIs(t, h.w.Activate(context.Background()), ErrNotInstalled)

	require.NoError(t, h.w.Install(context.Background()))
	assert.Equal(t, StateInstalled, h.w.State())
	require.NoError(t, h.w.Activate(context.Background()))
	assert.Equal(t, StateActivated, h.w.State())

	assert.ErrorIs(t, h.w.Install(context.Background()), ErrInvalidState)
}

func TestActivatePrunesStalePartitions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, name := range []string{"static-v1", "dynamic-v1", "thumbnails"} {
		_, err := h.storage.Open(ctx, name)
		require.NoError(t, err)
	}

	h.activate(t)

	names, err := h.storage.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"static-v2", "dynamic-v2"}, names)
}

func TestFetchBeforeActivationPassesThrough(t *testing.T) {
	h := newHarness(t)
	h.net.set("/static/app.js", "js")

	resp := h.w.Fetch(context.Background(), get(t, origin+"/static/app.js"))
	assert.Equal(t, models.SourcePassthrough, resp.Source)

	ok, err := h.storage.Has(context.Background(), "static-v2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheFirstSkipsNetworkOnHit(t *testing.T) {
	h := newHarness(t)
	h.activate(t)
	h.net.set("/static/app.js", "console.log('v1')")

	first := h.w.Fetch(context.Background(), get(t, origin+"/static/app.js"))
	require.Equal(t, http.StatusOK, first.Status)
	assert.Equal(t, models.SourceNetwork, first.Source)

	h.net.setOffline(true)
	second := h.w.Fetch(context.Background(), get(t, origin+"/static/app.js"))
	assert.Equal(t, models.SourceCache, second.Source)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, 1, h.net.callCount("/static/app.js"))
}

func TestCacheFirstMissWhileOffline(t *testing.T) {
	h := newHarness(t)
	h.activate(t)
	h.net.setOffline(true)

	resp := h.w.Fetch(context.Background(), get(t, origin+"/icons/unknown.png"))
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Equal(t, models.SourceOffline, resp.Source)
	assert.Equal(t, "offline", resp.Header.Get(models.SourceHeader))
}

func TestNetworkFirstFallsBackToCache(t *testing.T) {
	h := newHarness(t)
	h.activate(t)
	h.net.set("/api/portfolio", `{"total":100}`)

	live := h.w.Fetch(context.Background(), get(t, origin+"/api/portfolio"))
	assert.Equal(t, models.SourceNetwork, live.Source)

	h.net.set("/api/portfolio", `{"total":200}`)
	fresh := h.w.Fetch(context.Background(), get(t, origin+"/api/portfolio"))
	assert.Equal(t, `{"total":200}`, string(fresh.Body))

	h.net.setOffline(true)
	cached := h.w.Fetch(context.Background(), get(t, origin+"/api/portfolio"))
	assert.Equal(t, models.SourceCache, cached.Source)
	assert.Equal(t, `{"total":200}`, string(cached.Body))

	missing := h.w.Fetch(context.Background(), get(t, origin+"/api/alerts"))
	assert.Equal(t, http.StatusServiceUnavailable, missing.Status)
	assert.Equal(t, "application/json", missing.Header.Get("Content-Type"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(missing.Body, &body))
	assert.Equal(t, "offline", body["error"])
	assert.Equal(t, false, body["cached"])
}

func TestNetworkFirstDoesNotCacheErrors(t *testing.T) {
	h := newHarness(t)
	h.activate(t)

	resp := h.w.Fetch(context.Background(), get(t, origin+"/api/nothing"))
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Equal(t, models.SourceNetwork, resp.Source)

	h.net.setOffline(true)
	again := h.w.Fetch(context.Background(), get(t, origin+"/api/nothing"))
	assert.Equal(t, http.StatusServiceUnavailable, again.Status)
}

func TestNavigationFallsBackToDocumentRoot(t *testing.T) {
	h := newHarness(t)
	h.activate(t)
	h.net.setOffline(true)

	resp := h.w.Fetch(context.Background(), navigate(t, origin+"/portfolio/holdings"))
	assert.Equal(t, models.SourceCache, resp.Source)
	assert.Equal(t, shell["/index.html"], string(resp.Body))
}

func TestNavigationOfflineWithoutShell(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Manifest = []string{"/manifest.json"} })
	h.activate(t)
	h.net.setOffline(true)

	resp := h.w.Fetch(context.Background(), navigate(t, origin+"/portfolio"))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}

func TestNavigationPreloadHeader(t *testing.T) {
	h := newHarness(t)
	h.activate(t)
	h.net.set("/portfolio", "<html>p</html>")

	h.w.Fetch(context.Background(), navigate(t, origin+"/portfolio"))
	assert.Equal(t, "true", h.net.header("/portfolio").Get(PreloadHeader))

	h.net.set("/api/quotes", "[]")
	h.w.Fetch(context.Background(), get(t, origin+"/api/quotes"))
	assert.Empty(t, h.net.header("/api/quotes").Get(PreloadHeader))
}

func TestStaleWhileRevalidate(t *testing.T) {
	h := newHarness(t)
	h.activate(t)
	h.net.set("/robots.txt", "old")

	first := h.w.Fetch(context.Background(), get(t, origin+"/robots.txt"))
	assert.Equal(t, models.SourceNetwork, first.Source)

	h.net.set("/robots.txt", "new")
	stale := h.w.Fetch(context.Background(), get(t, origin+"/robots.txt"))
	assert.Equal(t, models.SourceCache, stale.Source)
	assert.Equal(t, "old", string(stale.Body))

	// Close joins the background refresh.
	require.NoError(t, h.w.Close())
	assert.Equal(t, 2, h.net.callCount("/robots.txt"))

	refreshed := h.w.Fetch(context.Background(), get(t, origin+"/robots.txt"))
	assert.Equal(t, "new", string(refreshed.Body))
}

func TestStaleWhileRevalidateOfflineMiss(t *testing.T) {
	h := newHarness(t)
	h.activate(t)
	h.net.setOffline(true)

	resp := h.w.Fetch(context.Background(), get(t, origin+"/health"))
	assert.Equal(t, models.SourceCache, resp.Source)
	assert.Equal(t, shell["/index.html"], string(resp.Body))
}

func TestNonGetPassesThrough(t *testing.T) {
	h := newHarness(t)
	h.activate(t)
	h.net.set("/api/portfolio", "ok")

	req := get(t, origin+"/api/portfolio")
	req.Method = http.MethodPost
	resp := h.w.Fetch(context.Background(), req)
	assert.Equal(t, models.SourcePassthrough, resp.Source)

	dynamic, err := h.storage.Open(context.Background(), "dynamic-v2")
	require.NoError(t, err)
	keys, err := dynamic.Keys(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)

	h.net.setOffline(true)
	down := h.w.Fetch(context.Background(), req)
	assert.Equal(t, http.StatusServiceUnavailable, down.Status)
	assert.Equal(t, models.SourceOffline, down.Source)
}

func TestCrossOriginPassesThrough(t *testing.T) {
	h := newHarness(t)
	h.activate(t)
	h.net.set("/api/collect", "ok")

	resp := h.w.Fetch(context.Background(), get(t, "https://tracker.example/api/collect"))
	assert.Equal(t, models.SourcePassthrough, resp.Source)

	font := h.w.Fetch(context.Background(), get(t, "https://fonts.gstatic.com/s/inter.woff2"))
	assert.NotEqual(t, models.SourcePassthrough, font.Source)
}

func TestFetchRecoversFromPanics(t *testing.T) {
	h := newHarness(t)
	h.activate(t)
	h.net.panicOn = "/api/explode"

	resp := h.w.Fetch(context.Background(), get(t, origin+"/api/explode"))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
	assert.Equal(t, models.SourceOffline, resp.Source)
}

func TestFetchJournal(t *testing.T) {
	h := newHarness(t)
	h.activate(t)
	h.net.set("/api/quotes", "[]")

	h.w.Fetch(context.Background(), get(t, origin+"/api/quotes"))

	h.journal.mu.Lock()
	defer h.journal.mu.Unlock()
	require.Len(t, h.journal.recs, 1)
	rec := h.journal.recs[0]
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, models.ClassAPI, rec.Class)
	assert.Equal(t, models.StrategyNetworkFirst, rec.Strategy)
	assert.Equal(t, models.SourceNetwork, rec.Source)
	assert.Equal(t, 2, rec.Bytes)
	assert.Equal(t, "v2", rec.Version)
}
