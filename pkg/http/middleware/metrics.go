package middleware

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	applogger "FinPWA/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// SourceHeader names the response header the gateway sets to tell where a
// response came from (cache, network, offline, passthrough).
const SourceHeader = "X-SW-Source"

type routeKey struct{}

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finpwa_http_requests_total",
			Help: "HTTP requests by route, method, status class and response source.",
		},
		[]string{"route", "method", "class", "source"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "finpwa_http_request_duration_seconds",
			Help: "HTTP request duration in seconds.",
			// Cache hits answer in microseconds, offline fallbacks wait out the upstream timeout.
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"route", "source"},
	)

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "finpwa_http_in_flight_requests",
		Help: "HTTP requests currently being served.",
	})

	httpResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finpwa_http_response_size_bytes",
			Help:    "HTTP response size in bytes.",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		},
		[]string{"route", "source"},
	)

	regOnce sync.Once
)

// Metrics records request metrics with low cardinality labels. Install
// RouteLabel before it so the route template is used instead of the raw path.
func Metrics(l *applogger.Logger, slowThreshold time.Duration) func(http.Handler) http.Handler {
	regOnce.Do(func() {
		prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, httpInFlight, httpResponseSize)
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			httpInFlight.Inc()
			defer httpInFlight.Dec()
			start := time.Now()

			rw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)
			took := time.Since(start)

			route := routeLabel(r)
			source := sourceLabel(r, rw.Header())
			class := statusClass(rw.status)
			httpRequestsTotal.WithLabelValues(route, r.Method, class, source).Inc()
			httpRequestDuration.WithLabelValues(route, source).Observe(took.Seconds())
			httpResponseSize.WithLabelValues(route, source).Observe(float64(rw.written))

			if l == nil {
				return
			}
			fields := []applogger.Field{
				applogger.String("route", route),
				applogger.String("method", r.Method),
				applogger.Int("status", rw.status),
				applogger.String("source", source),
				applogger.Duration("took", took),
				applogger.Int("bytes", rw.written),
			}
			// Offline fallbacks are 503 by contract and expected while the origin is down.
			switch {
			case rw.status >= 500 && source != "offline":
				l.Error("http request failed", fields...)
			case slowThreshold > 0 && took >= slowThreshold:
				l.Warn("http request slow", fields...)
			}
		})
	}
}

type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	written int
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.written += n
	return n, err
}

func (w *metricsResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets the client hub upgrade to websocket through the wrapper.
func (w *metricsResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(w.ResponseWriter).Hijack()
}

func (w *metricsResponseWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// RouteLabel stores the matched echo route template in the request context.
func RouteLabel() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			c.SetRequest(req.WithContext(context.WithValue(req.Context(), routeKey{}, c.Path())))
			return next(c)
		}
	}
}

func routeLabel(r *http.Request) string {
	if s, ok := r.Context().Value(routeKey{}).(string); ok && s != "" {
		return s
	}
	return "unmatched"
}

// sourceLabel is the gateway response source, or "control" for the service's
// own routes.
func sourceLabel(r *http.Request, h http.Header) string {
	if s := h.Get(SourceHeader); s != "" {
		return s
	}
	if strings.HasPrefix(r.URL.Path, "/-/") {
		return "control"
	}
	return "none"
}

func statusClass(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
