package api

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/labstack/echo/v4"

	"FinPWA/internal/domain/models"
	"FinPWA/internal/domain/repository"
	"FinPWA/internal/services/cacherouter"
	"FinPWA/internal/usecase"
	xhttp "FinPWA/pkg/http"
	xlogger "FinPWA/pkg/logger"
	"FinPWA/pkg/queue"
)

const (
	swPrefix        = "/-/sw"
	journalWindow   = time.Hour
	journalLimit    = 100
	journalLimitMax = 5000
)

// WorkerState is the payload of GET /-/sw/state.
type WorkerState struct {
	Version           string `json:"version"`
	State             string `json:"state"`
	NavigationPreload bool   `json:"navigation_preload"`
	StaticPartition   string `json:"static_partition"`
	DynamicPartition  string `json:"dynamic_partition"`
	Clients           int    `json:"clients"`
}

type SyncResult struct {
	Tag     string `json:"tag"`
	Handled bool   `json:"handled"`
	Queued  bool   `json:"queued,omitempty"`

	// Coalesced is set when a sync for the tag was already pending.
	Coalesced bool `json:"coalesced,omitempty"`
}

// SyncQueue defers background syncs so failed ones are retried.
type SyncQueue interface {
	queue.Publisher
	Stats(ctx context.Context) (queue.Stats, error)
}

// ServiceWorkerHandler exposes the worker lifecycle events.
type ServiceWorkerHandler struct {
	logger  *xlogger.Logger
	worker  *cacherouter.Worker
	clients repository.Clients
	journal repository.JournalStorage
	queue   SyncQueue
}

// NewServiceWorkerHandler builds the admin handler. clients and journal may be nil.
func NewServiceWorkerHandler(logger *xlogger.Logger, worker *cacherouter.Worker, clients repository.Clients, journal repository.JournalStorage) *ServiceWorkerHandler {
	return &ServiceWorkerHandler{logger: logger, worker: worker, clients: clients, journal: journal}
}

func (h *ServiceWorkerHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group(swPrefix)
	g.POST("/install", h.Install)
	g.POST("/activate", h.Activate)
	g.POST("/sync/:tag", h.Sync)
	g.GET("/sync", h.SyncStats)
	g.POST("/push", h.Push)
	g.POST("/notificationclick", h.NotificationClick)
	g.GET("/partitions", h.Partitions)
	g.GET("/state", h.State)
	g.GET("/journal", h.Journal)
}

func lifecycleError(err error) error {
	switch {
	case errors.Is(err, cacherouter.ErrNotInstalled), errors.Is(err, cacherouter.ErrInvalidState):
		return xhttp.ConflictError(err.Error()).WithError(err)
	default:
		return xhttp.ServiceUnavailableError(err.Error()).WithError(err)
	}
}

func (h *ServiceWorkerHandler) Install(c echo.Context) error {
	if err := h.worker.Install(c.Request().Context()); err != nil {
		h.logger.Error("install failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, lifecycleError(err))
	}
	return xhttp.SuccessResponse(c, h.state())
}

func (h *ServiceWorkerHandler) Activate(c echo.Context) error {
	if err := h.worker.Activate(c.Request().Context()); err != nil {
		h.logger.Error("activate failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, lifecycleError(err))
	}
	return xhttp.SuccessResponse(c, h.state())
}

// SetSyncQueue routes syncs for known tags through q.
func (h *ServiceWorkerHandler) SetSyncQueue(q SyncQueue) { h.queue = q }

func (h *ServiceWorkerHandler) Sync(c echo.Context) error {
	tag := c.Param("tag")
	if h.queue != nil {
		return h.enqueueSync(c, tag)
	}
	handled, err := h.worker.Sync(c.Request().Context(), tag)
	if err != nil {
		h.logger.Warn("sync failed", xlogger.String("tag", tag), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError(err.Error()).WithError(err))
	}
	return xhttp.AcceptedResponse(c, SyncResult{Tag: tag, Handled: handled})
}

func (h *ServiceWorkerHandler) enqueueSync(c echo.Context, tag string) error {
	if _, known := h.worker.Config().SyncTags[tag]; !known {
		return xhttp.AcceptedResponse(c, SyncResult{Tag: tag})
	}
	added, err := h.queue.Enqueue(c.Request().Context(), usecase.SyncJobType, tag, usecase.SyncTask{Tag: tag})
	if err != nil {
		h.logger.Warn("sync enqueue failed", xlogger.String("tag", tag), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError(err.Error()).WithError(err))
	}
	return xhttp.AcceptedResponse(c, SyncResult{Tag: tag, Handled: true, Queued: true, Coalesced: !added})
}

func (h *ServiceWorkerHandler) SyncStats(c echo.Context) error {
	if h.queue == nil {
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("sync queue is not configured"))
	}
	stats, err := h.queue.Stats(c.Request().Context())
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError(err.Error()).WithError(err))
	}
	return xhttp.SuccessResponse(c, stats)
}

func (h *ServiceWorkerHandler) Push(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("unreadable push payload").WithError(err))
	}
	n, err := h.worker.Push(c.Request().Context(), payload)
	if err != nil {
		h.logger.Warn("push failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError(err.Error()).WithError(err))
	}
	return xhttp.AcceptedResponse(c, n)
}

func (h *ServiceWorkerHandler) NotificationClick(c echo.Context) error {
	click := &models.NotificationClick{}
	if err := c.Bind(click); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("invalid notification click").WithError(err))
	}
	if err := h.worker.NotificationClick(c.Request().Context(), *click); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError(err.Error()).WithError(err))
	}
	return xhttp.NoContentResponse(c)
}

func (h *ServiceWorkerHandler) Partitions(c echo.Context) error {
	names, err := h.worker.Partitions(c.Request().Context())
	if err != nil {
		h.logger.Error("list partitions", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("partition storage unavailable").WithError(err))
	}
	return xhttp.ListResponse(c, names, int64(len(names)))
}

func (h *ServiceWorkerHandler) State(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.state())
}

func (h *ServiceWorkerHandler) state() WorkerState {
	cfg := h.worker.Config()
	st := WorkerState{
		Version:           cfg.Version,
		State:             string(h.worker.State()),
		NavigationPreload: h.worker.NavigationPreload(),
		StaticPartition:   cfg.StaticPartition,
		DynamicPartition:  cfg.DynamicPartition,
	}
	if h.clients != nil {
		st.Clients = h.clients.Count()
	}
	return st
}

// Journal lists fetch records in [from, to], newest first.
func (h *ServiceWorkerHandler) Journal(c echo.Context) error {
	if h.journal == nil {
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("journal storage is not configured"))
	}
	tr := xhttp.QueryTimeRange(c, journalWindow)
	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), journalLimit)
	if limit <= 0 {
		limit = journalLimit
	}
	q := models.JournalQuery{
		From:  tr.From,
		To:    tr.To,
		Class: models.RequestClass(c.QueryParam("class")),
		Limit: min(limit, journalLimitMax),
	}
	recs, err := h.journal.Query(c.Request().Context(), q)
	if err != nil {
		h.logger.Error("journal query", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("journal query failed").WithError(err))
	}
	return xhttp.ListResponse(c, recs, int64(len(recs)))
}
