package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	mid "FinPWA/internal/middleware"
	"FinPWA/internal/service/clients"
	"FinPWA/internal/service/ratelimit"
	"FinPWA/internal/services/cacherouter"
	"FinPWA/pkg/cache"
	pkgch "FinPWA/pkg/clickhouse"
	"FinPWA/pkg/config"
	xhttp "FinPWA/pkg/http"
	pkgkafka "FinPWA/pkg/kafka"
	applogger "FinPWA/pkg/logger"
	"FinPWA/pkg/queue"
)

const (
	installTimeout = time.Minute
	sweepInterval  = time.Minute
	sweepIdle      = 10 * time.Minute
)

// Components are the pieces the App starts and stops. Optional ones are nil
// when disabled by configuration.
type Components struct {
	Worker       *cacherouter.Worker
	Storage      cache.Storage
	Hub          *clients.Hub
	Pipeline     *mid.JournalPipeline
	Producer     *pkgkafka.Producer
	Consumer     *pkgkafka.Consumer
	Handlers     []pkgkafka.MessageHandler
	ClickHouse   *pkgch.Client
	SyncQueue    *queue.RedisQueue
	Limiter      *ratelimit.Limiter
	HTTPHandlers []xhttp.Handler
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	c          Components
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, c Components) *App {
	if l == nil {
		l = applogger.NewNop()
	}
	return &App{cfg: cfg, l: l, c: c}
}

// Worker returns the cache router.
func (a *App) Worker() *cacherouter.Worker { return a.c.Worker }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.run(ctx)
}

func (a *App) run(ctx context.Context) error {
	if a.c.Pipeline != nil {
		a.c.Pipeline.Start(ctx)
		a.l.Info("journal pipeline started", applogger.String("backend", a.cfg.Journal.Backend))
	}

	a.install(ctx)

	if a.c.Consumer != nil && len(a.c.Handlers) > 0 {
		topics := make([]string, 0, len(a.c.Handlers))
		for _, h := range a.c.Handlers {
			a.c.Consumer.RegisterHandler(h)
			topics = append(topics, h.Topic())
		}
		if err := a.c.Consumer.Start(); err != nil {
			a.l.Error("kafka consumer error", applogger.Error(err))
		} else {
			a.l.Info("kafka consumer started", applogger.Strings("topics", topics))
		}
	}

	if a.c.SyncQueue != nil {
		if err := a.c.SyncQueue.Start(); err != nil {
			a.l.Error("sync queue start error", applogger.Error(err))
		} else {
			a.l.Info("sync queue started", applogger.Int("workers", a.cfg.Sync.Workers))
		}
	}

	if a.c.Limiter != nil {
		go a.sweep(ctx)
	}

	a.httpServer = xhttp.NewServer(a.c.HTTPHandlers,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithBodyLimit(a.cfg.Server.BodyLimit),
		xhttp.WithCORSOrigins(a.cfg.Server.CORSOrigins...),
		xhttp.WithMetricsPath(a.metricsPath()),
		xhttp.WithLogger(a.l),
	)
	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.l.Info("shutdown signal received")
	case runErr = <-a.httpServer.Errors():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	return errors.Join(runErr, a.shutdown(shutdownCtx))
}

// install precaches the shell. A failed install leaves the worker redundant
// and is retried through POST /-/sw/install.
func (a *App) install(ctx context.Context) {
	ictx, cancel := context.WithTimeout(ctx, installTimeout)
	defer cancel()
	if err := a.c.Worker.Install(ictx); err != nil {
		a.l.Warn("cache router install failed, serving passthrough",
			applogger.String("version", a.cfg.Router.Version),
			applogger.Error(err),
		)
		return
	}
	a.l.Info("cache router ready", applogger.String("state", string(a.c.Worker.State())))
}

func (a *App) sweep(ctx context.Context) {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := a.c.Limiter.Sweep(sweepIdle); n > 0 {
				a.l.Debug("rate limiter swept", applogger.Int("buckets", n))
			}
		}
	}
}

func (a *App) metricsPath() string {
	if !a.cfg.Metrics.Enabled {
		return ""
	}
	return a.cfg.Metrics.Path
}

// shutdown gracefully stops all services, front to back.
func (a *App) shutdown(ctx context.Context) error {
	a.l.Info("shutting down...")
	var errs []error

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	if a.c.Hub != nil {
		_ = a.c.Hub.Close()
	}

	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	// Queued syncs run against the worker.
	if a.c.SyncQueue != nil {
		if err := a.c.SyncQueue.Close(ctx); err != nil {
			a.l.Warn("sync queue close error", applogger.Error(err))
		}
	}

	// Background revalidations may still record fetches.
	if err := a.c.Worker.Close(); err != nil {
		a.l.Warn("cache router close error", applogger.Error(err))
	}

	if a.c.Pipeline != nil {
		if err := a.c.Pipeline.Stop(ctx); err != nil {
			a.l.Warn("journal pipeline stop error", applogger.Error(err), applogger.Int("pending", a.c.Pipeline.Pending()))
		}
	}

	// The digest publishes through the producer.
	a.l.DetachDigest()
	if a.c.Producer != nil {
		if err := a.c.Producer.Close(); err != nil {
			a.l.Warn("kafka producer close error", applogger.Error(err))
		}
	}

	if a.c.ClickHouse != nil {
		if err := a.c.ClickHouse.Close(); err != nil {
			a.l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	if a.c.Storage != nil {
		if err := a.c.Storage.Close(); err != nil {
			a.l.Warn("cache storage close error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return errors.Join(errs...)
}
