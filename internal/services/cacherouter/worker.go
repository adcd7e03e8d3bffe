package cacherouter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"FinPWA/internal/domain/models"
	"FinPWA/internal/domain/repository"
	"FinPWA/pkg/cache"
	"FinPWA/pkg/logger"
)

var (
	ErrNotInstalled = errors.New("cacherouter: worker is not installed")
	ErrInvalidState = errors.New("cacherouter: invalid lifecycle state")
)

// State is the lifecycle state of a Worker.
type State string

const (
	StateParsed     State = "parsed"
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActivated  State = "activated"
	StateRedundant  State = "redundant"
)

// States lists every lifecycle state in order.
var States = []string{
	string(StateParsed), string(StateInstalling), string(StateInstalled),
	string(StateActivating), string(StateActivated), string(StateRedundant),
}

// ClaimedMessage is posted to every client when an activated worker takes control.
const ClaimedMessage = "CLAIMED"

// Option configures a Worker.
type Option func(*Worker)

func WithClients(c repository.Clients) Option {
	return func(w *Worker) { w.clients = c }
}

func WithJournal(j repository.Journal) Option {
	return func(w *Worker) { w.journal = j }
}

func WithMetrics(m repository.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

func WithLogger(l *logger.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// Worker is the cache router: it owns the static and dynamic partitions and
// answers every intercepted fetch with a strategy chosen by request class.
type Worker struct {
	cfg     Config
	storage cache.Storage
	network repository.Network
	clients repository.Clients
	journal repository.Journal
	metrics repository.Metrics
	logger  *logger.Logger
	now     func() time.Time

	// lifecycle serializes Install and Activate.
	lifecycle sync.Mutex

	mu      sync.RWMutex
	state   State
	preload bool
	closed  bool
	static  cache.Partition
	dynamic cache.Partition

	bg sync.WaitGroup
}

func New(cfg Config, storage cache.Storage, network repository.Network, opts ...Option) *Worker {
	if cfg.InstallConcurrency < 1 {
		cfg.InstallConcurrency = 1
	}
	w := &Worker{
		cfg:     cfg,
		storage: storage,
		network: network,
		logger:  logger.NewNop(),
		now:     time.Now,
		state:   StateParsed,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.recordState()
	return w
}

func (w *Worker) Config() Config { return w.cfg }

func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// NavigationPreload reports whether navigation preload was enabled at activation.
func (w *Worker) NavigationPreload() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.preload
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
	w.recordState()
}

func (w *Worker) recordState() {
	if w.metrics != nil {
		w.metrics.RecordState(string(w.State()), States)
	}
}

// Install precaches the manifest into the static partition and opens the
// dynamic one. The manifest is stored only if every asset fetched OK. With
// SkipWaiting set, Install goes on to Activate.
func (w *Worker) Install(ctx context.Context) error {
	w.lifecycle.Lock()
	err := w.install(ctx)
	w.lifecycle.Unlock()

	if w.metrics != nil {
		w.metrics.RecordLifecycle("install", err)
	}
	if err != nil {
		return err
	}
	if w.cfg.SkipWaiting {
		return w.Activate(ctx)
	}
	return nil
}

func (w *Worker) install(ctx context.Context) error {
	switch s := w.State(); s {
	case StateParsed, StateRedundant:
	default:
		return fmt.Errorf("%w: install in state %s", ErrInvalidState, s)
	}
	w.setState(StateInstalling)
	start := w.now()

	static, err := w.storage.Open(ctx, w.cfg.StaticPartition)
	if err != nil {
		w.setState(StateRedundant)
		return fmt.Errorf("open static partition: %w", err)
	}

	entries, err := w.precache(ctx)
	if err != nil {
		w.setState(StateRedundant)
		return fmt.Errorf("precache: %w", err)
	}

	var total uint64
	for _, e := range entries {
		if err := static.Put(ctx, e); err != nil {
			w.setState(StateRedundant)
			return fmt.Errorf("store %s: %w", e.URL, err)
		}
		total += uint64(e.Size())
	}

	dynamic, err := w.storage.Open(ctx, w.cfg.DynamicPartition)
	if err != nil {
		w.setState(StateRedundant)
		return fmt.Errorf("open dynamic partition: %w", err)
	}

	w.mu.Lock()
	w.static, w.dynamic = static, dynamic
	w.mu.Unlock()
	w.setState(StateInstalled)

	w.logger.Info("worker installed",
		logger.String("version", w.cfg.Version),
		logger.Int("assets", len(entries)),
		logger.String("size", humanize.Bytes(total)),
		logger.Duration("took", w.now().Sub(start)),
	)
	return nil
}

// precache fetches every manifest asset concurrently and fails on the first
// transport error or non-OK response.
func (w *Worker) precache(ctx context.Context) ([]*cache.Entry, error) {
	entries := make([]*cache.Entry, len(w.cfg.Manifest))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.InstallConcurrency)
	for i, ref := range w.cfg.Manifest {
		g.Go(func() error {
			u, err := w.cfg.resolve(ref)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", ref, err)
			}
			req := &models.Request{Method: http.MethodGet, URL: u, Header: http.Header{}}
			resp, err := w.network.Fetch(gctx, req)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", u, err)
			}
			if !resp.OK() {
				return fmt.Errorf("fetch %s: status %d", u, resp.Status)
			}
			entries[i] = toEntry(req, resp, w.now())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Activate deletes every partition other than the current static and dynamic
// ones, then claims all open clients.
func (w *Worker) Activate(ctx context.Context) error {
	w.lifecycle.Lock()
	err := w.activate(ctx)
	w.lifecycle.Unlock()

	if w.metrics != nil {
		w.metrics.RecordLifecycle("activate", err)
	}
	return err
}

func (w *Worker) activate(ctx context.Context) error {
	switch s := w.State(); s {
	case StateInstalled:
	case StateActivated:
		return nil
	case StateParsed, StateInstalling:
		return ErrNotInstalled
	default:
		return fmt.Errorf("%w: activate in state %s", ErrInvalidState, s)
	}
	w.setState(StateActivating)

	deleted, err := cache.Prune(ctx, w.storage, w.cfg.StaticPartition, w.cfg.DynamicPartition)
	if err != nil {
		// Partially pruned storage is still usable; stay installed so a retry can finish.
		w.setState(StateInstalled)
		return fmt.Errorf("prune partitions: %w", err)
	}
	if w.metrics != nil {
		w.metrics.RecordPruned(len(deleted))
	}
	for _, name := range deleted {
		w.logger.Info("deleted stale partition", logger.String("partition", name))
	}

	w.mu.Lock()
	w.preload = w.cfg.NavigationPreload
	w.mu.Unlock()
	w.setState(StateActivated)

	if w.clients != nil {
		n, err := w.clients.Claim(ctx, models.ClientMessage{Type: ClaimedMessage, Message: w.cfg.Version})
		if err != nil {
			w.logger.Warn("claim clients", logger.Error(err))
		} else {
			w.logger.Info("worker activated", logger.String("version", w.cfg.Version), logger.Int("clients", n))
		}
	}
	return nil
}

// Partitions lists the partition names currently in storage.
func (w *Worker) Partitions(ctx context.Context) ([]string, error) {
	return w.storage.Keys(ctx)
}

// Close waits for pending background revalidations. Fetch keeps working
// after Close but no longer revalidates.
func (w *Worker) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.bg.Wait()
	return nil
}

func (w *Worker) controlling() bool {
	return w.State() == StateActivated
}

func (w *Worker) partitions() (static, dynamic cache.Partition) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.static, w.dynamic
}

// goBackground runs f on a tracked goroutine unless the worker is closed.
func (w *Worker) goBackground(f func()) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	w.bg.Add(1)
	go func() {
		defer w.bg.Done()
		f()
	}()
	return true
}
