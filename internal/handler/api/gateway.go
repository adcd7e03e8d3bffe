package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"FinPWA/internal/domain/models"
	"FinPWA/internal/services/cacherouter"
	xlogger "FinPWA/pkg/logger"
)

// hopHeaders are meaningful only for a single transport hop.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func stripHopHeaders(h http.Header) {
	for _, k := range hopHeaders {
		h.Del(k)
	}
}

// GatewayHandler hands every request not claimed by another route to the
// cache router. Register it last.
type GatewayHandler struct {
	logger *xlogger.Logger
	worker *cacherouter.Worker
	cfg    cacherouter.Config
}

// errForeignTarget rejects absolute-form targets the worker would not
// intercept; fetching them here would turn the gateway into an open proxy.
var errForeignTarget = errors.New("target host is not served by this gateway")

func NewGatewayHandler(logger *xlogger.Logger, worker *cacherouter.Worker) *GatewayHandler {
	return &GatewayHandler{logger: logger, worker: worker, cfg: worker.Config()}
}

func (h *GatewayHandler) RegisterRoutes(e *echo.Echo) {
	e.Any("/*", h.Serve)
}

func (h *GatewayHandler) Serve(c echo.Context) error {
	req, err := h.toRequest(c.Request())
	if errors.Is(err, errForeignTarget) {
		h.logger.Warn("gateway rejected target", xlogger.String("url", c.Request().URL.String()))
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	}
	if err != nil {
		h.logger.Warn("gateway request", xlogger.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	resp := h.worker.Fetch(c.Request().Context(), req)

	out := c.Response().Header()
	for k, vs := range resp.Header {
		for _, v := range vs {
			out.Add(k, v)
		}
	}
	stripHopHeaders(out)
	out.Del(echo.HeaderContentLength)
	out.Set(models.SourceHeader, string(resp.Source))

	c.Response().WriteHeader(resp.Status)
	if c.Request().Method == http.MethodHead {
		return nil
	}
	_, err = c.Response().Write(resp.Body)
	return err
}

// toRequest converts an inbound request into an absolute fetch request.
// Absolute-form targets are kept only for the origin and allow-listed hosts.
func (h *GatewayHandler) toRequest(r *http.Request) (*models.Request, error) {
	var u *url.URL
	if r.URL.IsAbs() {
		if !h.cfg.Intercepts(r.URL) {
			return nil, errForeignTarget
		}
		cp := *r.URL
		u = &cp
	} else {
		cp := *h.cfg.Origin
		cp.Path = r.URL.Path
		cp.RawPath = r.URL.RawPath
		cp.RawQuery = r.URL.RawQuery
		cp.Fragment = ""
		u = &cp
	}

	var body []byte
	if r.Body != nil && r.Method != http.MethodGet && r.Method != http.MethodHead {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		body = b
	}

	header := r.Header.Clone()
	stripHopHeaders(header)

	return &models.Request{
		Method:      r.Method,
		URL:         u,
		Header:      header,
		Mode:        r.Header.Get("Sec-Fetch-Mode"),
		Destination: r.Header.Get("Sec-Fetch-Dest"),
		Body:        body,
	}, nil
}
