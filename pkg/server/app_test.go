package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinPWA/internal/domain/models"
	mid "FinPWA/internal/middleware"
	"FinPWA/internal/repository"
	"FinPWA/internal/service/clients"
	"FinPWA/internal/service/ratelimit"
	"FinPWA/internal/services/cacherouter"
	"FinPWA/pkg/cache"
	"FinPWA/pkg/config"
	xhttp "FinPWA/pkg/http"
)

type discardProc struct{}

func (discardProc) ProcessBatch(context.Context, []*models.FetchRecord) error { return nil }

func TestAppRunInstallsAndShutsDown(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>shell</html>")
	}))
	defer upstream.Close()

	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = 5 * time.Second
	cfg.Metrics.Enabled = false

	origin, _ := url.Parse(cfg.Origin)
	up, _ := url.Parse(upstream.URL)
	rc := cacherouter.DefaultConfig(origin)
	rc.Manifest = []string{"/", "/index.html"}

	storage := cache.NewMemoryStorage()
	hub := clients.NewHub()
	pipe := mid.NewJournalPipeline(discardProc{}, nil, mid.WithBatch(10, 10*time.Millisecond))
	w := cacherouter.New(rc, storage, repository.NewUpstreamNetwork(xhttp.NewClient(), origin, up),
		cacherouter.WithClients(hub), cacherouter.WithJournal(pipe))

	app := New(cfg, nil, Components{
		Worker:   w,
		Storage:  storage,
		Hub:      hub,
		Pipeline: pipe,
		Limiter:  ratelimit.New(),
	})
	assert.Same(t, w, app.Worker())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.run(ctx) }()

	assert.Eventually(t, func() bool { return w.State() == cacherouter.StateActivated }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("app did not shut down")
	}
}
