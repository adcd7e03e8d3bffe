package cacherouter

import (
	"context"
	"errors"
	"net/http"
	"time"

	"FinPWA/internal/domain/models"
	"FinPWA/pkg/cache"
	"FinPWA/pkg/logger"
)

// PreloadHeader marks navigation requests sent while navigation preload is on.
const PreloadHeader = "Service-Worker-Navigation-Preload"

// revalidateTimeout bounds a background refresh detached from its request.
const revalidateTimeout = 30 * time.Second

// Fetch answers an intercepted request. It never fails: network and cache
// errors degrade to cached copies or synthesized offline responses.
func (w *Worker) Fetch(ctx context.Context, req *models.Request) (resp *models.Response) {
	start := w.now()
	class := models.ClassOther
	strategy := models.StrategyNetworkOnly

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("fetch handler panicked",
				logger.Any("panic", r),
				logger.String("url", urlString(req)),
			)
			resp = offline(class)
		}
		w.finish(req, class, strategy, resp, start)
	}()

	if !w.controlling() || req.URL == nil || !w.cfg.Intercepts(req.URL) || req.Method != http.MethodGet {
		return w.passthrough(ctx, req)
	}

	class = w.cfg.Classify(req)
	switch class {
	case models.ClassNavigation, models.ClassAPI:
		strategy = models.StrategyNetworkFirst
		return w.networkFirst(ctx, req, class)
	case models.ClassStatic:
		strategy = models.StrategyCacheFirst
		return w.cacheFirst(ctx, req)
	default:
		strategy = models.StrategyStaleWhileRevalidate
		return w.staleWhileRevalidate(ctx, req)
	}
}

func (w *Worker) finish(req *models.Request, class models.RequestClass, strategy models.Strategy, resp *models.Response, start time.Time) {
	took := w.now().Sub(start)
	if w.metrics != nil {
		w.metrics.RecordFetch(string(class), string(strategy), string(resp.Source))
		w.metrics.RecordLatency("fetch", took.Seconds())
	}
	if w.journal == nil {
		return
	}
	rec := models.NewFetchRecord(req, start)
	rec.Class = class
	rec.Strategy = strategy
	rec.Source = resp.Source
	rec.Status = resp.Status
	rec.Duration = took
	rec.Bytes = len(resp.Body)
	rec.Version = w.cfg.Version
	w.journal.Record(rec)
}

// passthrough forwards requests the worker does not handle.
func (w *Worker) passthrough(ctx context.Context, req *models.Request) *models.Response {
	resp, err := w.network.Fetch(ctx, req)
	if err != nil {
		w.logger.Debug("passthrough failed", logger.String("url", urlString(req)), logger.Error(err))
		return offline(models.ClassOther)
	}
	resp.Source = models.SourcePassthrough
	return resp
}

func (w *Worker) networkFirst(ctx context.Context, req *models.Request, class models.RequestClass) *models.Response {
	out := req
	if class == models.ClassNavigation && w.NavigationPreload() {
		out = req.Clone()
		out.Header.Set(PreloadHeader, "true")
	}

	resp, err := w.network.Fetch(ctx, out)
	if err == nil {
		if resp.OK() {
			_, dynamic := w.partitions()
			w.store(ctx, dynamic, req, resp)
		}
		resp.Source = models.SourceNetwork
		return resp
	}
	w.logger.Debug("network failed, trying cache", logger.String("url", urlString(req)), logger.Error(err))

	if cached := w.match(ctx, req); cached != nil {
		return cached
	}
	if class == models.ClassNavigation {
		if doc := w.fallbackDocument(ctx); doc != nil {
			return doc
		}
	}
	return offline(class)
}

func (w *Worker) cacheFirst(ctx context.Context, req *models.Request) *models.Response {
	if cached := w.match(ctx, req); cached != nil {
		return cached
	}

	resp, err := w.network.Fetch(ctx, req)
	if err != nil {
		w.logger.Debug("static asset unavailable", logger.String("url", urlString(req)), logger.Error(err))
		return notAvailable()
	}
	if resp.OK() {
		static, _ := w.partitions()
		w.store(ctx, static, req, resp)
	}
	resp.Source = models.SourceNetwork
	return resp
}

func (w *Worker) staleWhileRevalidate(ctx context.Context, req *models.Request) *models.Response {
	if cached := w.match(ctx, req); cached != nil {
		bgReq := req.Clone()
		w.goBackground(func() {
			bgCtx, cancel := context.WithTimeout(context.Background(), revalidateTimeout)
			defer cancel()
			w.revalidate(bgCtx, bgReq)
		})
		return cached
	}

	resp, err := w.network.Fetch(ctx, req)
	if err != nil {
		w.logger.Debug("revalidate failed without cached copy", logger.String("url", urlString(req)), logger.Error(err))
		if doc := w.fallbackDocument(ctx); doc != nil {
			return doc
		}
		return offline(models.ClassOther)
	}
	if resp.OK() {
		_, dynamic := w.partitions()
		w.store(ctx, dynamic, req, resp)
	}
	resp.Source = models.SourceNetwork
	return resp
}

func (w *Worker) revalidate(ctx context.Context, req *models.Request) {
	resp, err := w.network.Fetch(ctx, req)
	if err != nil {
		w.logger.Debug("background revalidation failed", logger.String("url", urlString(req)), logger.Error(err))
		return
	}
	if !resp.OK() {
		return
	}
	_, dynamic := w.partitions()
	w.store(ctx, dynamic, req, resp)
}

// match looks req up across every partition.
func (w *Worker) match(ctx context.Context, req *models.Request) *models.Response {
	e, err := w.storage.Match(ctx, cache.RequestKey(req.Method, req.URL))
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			w.logger.Warn("cache match", logger.String("url", urlString(req)), logger.Error(err))
			if w.metrics != nil {
				w.metrics.RecordError("cache_match")
			}
		}
		return nil
	}
	return fromEntry(e)
}

// fallbackDocument returns the first cached document root.
func (w *Worker) fallbackDocument(ctx context.Context) *models.Response {
	for _, ref := range w.cfg.FallbackDocuments {
		u, err := w.cfg.resolve(ref)
		if err != nil {
			continue
		}
		if e, err := w.storage.Match(ctx, cache.RequestKey(http.MethodGet, u)); err == nil {
			return fromEntry(e)
		}
	}
	return nil
}

func (w *Worker) store(ctx context.Context, p cache.Partition, req *models.Request, resp *models.Response) {
	if p == nil {
		return
	}
	err := p.Put(ctx, toEntry(req, resp, w.now()))
	if w.metrics != nil {
		w.metrics.RecordCacheWrite(p.Name(), err)
	}
	if err != nil {
		w.logger.Warn("cache put",
			logger.String("partition", p.Name()),
			logger.String("url", urlString(req)),
			logger.Error(err),
		)
	}
}

func toEntry(req *models.Request, resp *models.Response, at time.Time) *cache.Entry {
	return &cache.Entry{
		Key:      cache.RequestKey(req.Method, req.URL),
		Method:   req.Method,
		URL:      req.URL.String(),
		Status:   resp.Status,
		Header:   resp.Header.Clone(),
		Body:     resp.Body,
		StoredAt: at,
	}
}

func fromEntry(e *cache.Entry) *models.Response {
	h := e.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	return &models.Response{Status: e.Status, Header: h, Body: e.Body, Source: models.SourceCache}
}

func urlString(req *models.Request) string {
	if req == nil || req.URL == nil {
		return ""
	}
	return req.URL.String()
}

const offlineHTML = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Offline</title></head>
<body><h1>You are offline</h1><p>This page is not available offline.</p></body></html>`

// offline synthesizes the 503 answer for a request that has no cached copy.
func offline(class models.RequestClass) *models.Response {
	h := http.Header{}
	h.Set(models.SourceHeader, string(models.SourceOffline))

	var body []byte
	switch class {
	case models.ClassNavigation:
		h.Set("Content-Type", "text/html; charset=utf-8")
		body = []byte(offlineHTML)
	case models.ClassAPI:
		h.Set("Content-Type", "application/json")
		body = []byte(`{"error":"offline","message":"data not available offline","cached":false}`)
	default:
		h.Set("Content-Type", "text/plain; charset=utf-8")
		body = []byte("Offline")
	}
	return &models.Response{Status: http.StatusServiceUnavailable, Header: h, Body: body, Source: models.SourceOffline}
}

// notAvailable answers a static asset that is neither cached nor reachable.
func notAvailable() *models.Response {
	h := http.Header{}
	h.Set(models.SourceHeader, string(models.SourceOffline))
	h.Set("Content-Type", "text/plain; charset=utf-8")
	return &models.Response{
		Status: http.StatusNotFound,
		Header: h,
		Body:   []byte("asset not available offline"),
		Source: models.SourceOffline,
	}
}
