package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinPWA/internal/domain/models"
	"FinPWA/internal/services/cacherouter"
	"FinPWA/internal/usecase"
	"FinPWA/pkg/cache"
	xlogger "FinPWA/pkg/logger"
	"FinPWA/pkg/queue"
)

type upstream struct {
	mu      sync.Mutex
	pages   map[string]string
	offline bool
	last    *models.Request
}

func (u *upstream) Fetch(_ context.Context, req *models.Request) (*models.Response, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.last = req
	if u.offline {
		return nil, errors.New("connection refused")
	}
	body, ok := u.pages[req.URL.Path]
	if !ok {
		return &models.Response{Status: http.StatusNotFound, Header: http.Header{}}, nil
	}
	return &models.Response{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"text/plain"}, "Connection": []string{"keep-alive"}},
		Body:   []byte(body),
	}, nil
}

func (u *upstream) setOffline(v bool) {
	u.mu.Lock()
	u.offline = v
	u.mu.Unlock()
}

func newGateway(t *testing.T, skipWaiting bool) (*echo.Echo, *upstream) {
	t.Helper()
	origin, err := url.Parse("http://app.test")
	require.NoError(t, err)

	cfg := cacherouter.DefaultConfig(origin)
	cfg.SkipWaiting = skipWaiting
	net := &upstream{pages: map[string]string{
		"/":              "<html>root</html>",
		"/index.html":    "<html>index</html>",
		"/manifest.json": "{}",
		"/static/app.js": "console.log(1)",
	}}
	storage := cache.NewMemoryStorage()
	worker := cacherouter.New(cfg, storage, net)
	t.Cleanup(func() {
		_ = worker.Close()
		_ = storage.Close()
	})

	e := echo.New()
	NewServiceWorkerHandler(xlogger.NewNop(), worker, nil, nil).RegisterRoutes(e)
	NewGatewayHandler(xlogger.NewNop(), worker).RegisterRoutes(e)
	return e, net
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestGatewayServesFromCacheWhenOffline(t *testing.T) {
	e, net := newGateway(t, true)

	rec := do(e, http.MethodPost, "/-/sw/install", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"state":"activated"`)

	rec = do(e, http.MethodGet, "/static/app.js", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "network", rec.Header().Get(models.SourceHeader))
	assert.Empty(t, rec.Header().Get("Connection"))

	net.setOffline(true)
	rec = do(e, http.MethodGet, "/static/app.js", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cache", rec.Header().Get(models.SourceHeader))
	assert.Equal(t, "console.log(1)", rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/portfolio", nil)
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, "<html>index</html>", rec.Body.String())

	rec = do(e, http.MethodGet, "/api/prices", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "offline", rec.Header().Get(models.SourceHeader))
}

func TestGatewayBuildsAbsoluteRequests(t *testing.T) {
	e, net := newGateway(t, true)
	require.Equal(t, http.StatusOK, do(e, http.MethodPost, "/-/sw/install", "").Code)

	do(e, http.MethodPost, "/api/portfolio?x=1", `{"id":1}`)
	net.mu.Lock()
	defer net.mu.Unlock()
	require.NotNil(t, net.last)
	assert.Equal(t, "http://app.test/api/portfolio?x=1", net.last.URL.String())
	assert.Equal(t, `{"id":1}`, string(net.last.Body))
}

func TestGatewayRejectsForeignAbsoluteTargets(t *testing.T) {
	e, net := newGateway(t, true)

	for _, target := range []string{
		"http://127.0.0.1:9000/admin",
		"http://internal.test/secret",
		"https://app.test/index.html",
	} {
		rec := do(e, http.MethodGet, target, "")
		assert.Equal(t, http.StatusForbidden, rec.Code, target)
	}
	net.mu.Lock()
	assert.Nil(t, net.last)
	net.mu.Unlock()

	rec := do(e, http.MethodGet, "http://app.test:80/index.html", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html>index</html>", rec.Body.String())

	do(e, http.MethodGet, "https://fonts.gstatic.com/s/inter.woff2", "")
	net.mu.Lock()
	defer net.mu.Unlock()
	require.NotNil(t, net.last)
	assert.Equal(t, "fonts.gstatic.com", net.last.URL.Host)
}

func TestServiceWorkerLifecycleRoutes(t *testing.T) {
	e, _ := newGateway(t, false)

	rec := do(e, http.MethodPost, "/-/sw/activate", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	require.Equal(t, http.StatusOK, do(e, http.MethodPost, "/-/sw/install", "").Code)
	rec = do(e, http.MethodGet, "/-/sw/state", "")
	assert.Contains(t, rec.Body.String(), `"state":"installed"`)

	require.Equal(t, http.StatusOK, do(e, http.MethodPost, "/-/sw/activate", "").Code)

	rec = do(e, http.MethodGet, "/-/sw/partitions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "static-v2")
	assert.Contains(t, rec.Body.String(), "dynamic-v2")

	rec = do(e, http.MethodPost, "/-/sw/sync/portfolio-sync", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"handled":true`)

	rec = do(e, http.MethodPost, "/-/sw/push", "Portfolio updated")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "Portfolio updated")

	rec = do(e, http.MethodPost, "/-/sw/notificationclick", `{"action":"view"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(e, http.MethodGet, "/-/sw/journal", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type fakeSyncQueue struct {
	pending map[string]bool
	types   []string
	err     error
}

func (q *fakeSyncQueue) Enqueue(_ context.Context, msgType, key string, _ interface{}) (bool, error) {
	if q.err != nil {
		return false, q.err
	}
	q.types = append(q.types, msgType)
	if q.pending[key] {
		return false, nil
	}
	q.pending[key] = true
	return true, nil
}

func (q *fakeSyncQueue) Stats(context.Context) (queue.Stats, error) {
	return queue.Stats{Queued: int64(len(q.pending))}, nil
}

func TestServiceWorkerSyncQueue(t *testing.T) {
	origin, err := url.Parse("http://app.test")
	require.NoError(t, err)
	storage := cache.NewMemoryStorage()
	worker := cacherouter.New(cacherouter.DefaultConfig(origin), storage, &upstream{pages: map[string]string{}})
	t.Cleanup(func() {
		_ = worker.Close()
		_ = storage.Close()
	})

	h := NewServiceWorkerHandler(xlogger.NewNop(), worker, nil, nil)
	e := echo.New()
	h.RegisterRoutes(e)

	rec := do(e, http.MethodGet, "/-/sw/sync", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	q := &fakeSyncQueue{pending: map[string]bool{}}
	h.SetSyncQueue(q)

	rec = do(e, http.MethodPost, "/-/sw/sync/portfolio-sync", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"queued":true`)
	assert.NotContains(t, rec.Body.String(), "coalesced")

	rec = do(e, http.MethodPost, "/-/sw/sync/portfolio-sync", "")
	assert.Contains(t, rec.Body.String(), `"coalesced":true`)
	assert.Equal(t, []string{usecase.SyncJobType, usecase.SyncJobType}, q.types)

	rec = do(e, http.MethodPost, "/-/sw/sync/unknown", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"handled":false`)
	assert.Len(t, q.types, 2)

	rec = do(e, http.MethodGet, "/-/sw/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"queued":1`)

	q.err = errors.New("redis down")
	rec = do(e, http.MethodPost, "/-/sw/sync/portfolio-sync", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
