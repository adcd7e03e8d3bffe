package middleware

import (
	"context"
	"sync"
	"time"

	"FinPWA/internal/domain/models"
	domrepo "FinPWA/internal/domain/repository"
	"FinPWA/pkg/logger"
)

// BatchProc is the downstream the pipeline flushes into.
type BatchProc interface {
	ProcessBatch(ctx context.Context, recs []*models.FetchRecord) error
}

// JournalPipeline sits between the cache router and the journal backend.
// Record never blocks: records are buffered and flushed in batches by a
// background loop, retried with backoff and dropped once the buffer is full.
type JournalPipeline struct {
	proc         BatchProc
	metrics      domrepo.Metrics
	logger       *logger.Logger
	batchSize    int
	batchTimeout time.Duration
	retryMax     int
	backoffMin   time.Duration
	backoffMax   time.Duration

	bufCh   chan *models.FetchRecord
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	started bool
}

type PipelineOption func(*JournalPipeline)

// WithBatch sets the flush size and the longest a partial batch may wait.
func WithBatch(size int, timeout time.Duration) PipelineOption {
	return func(p *JournalPipeline) {
		if size > 0 {
			p.batchSize = size
		}
		if timeout > 0 {
			p.batchTimeout = timeout
		}
	}
}

// WithBufferSize sets how many records may wait for the downstream.
func WithBufferSize(n int) PipelineOption {
	return func(p *JournalPipeline) {
		if n > 0 {
			p.bufCh = make(chan *models.FetchRecord, n)
		}
	}
}

// WithRetry sets how often a failed batch is retried before it is dropped.
func WithRetry(max int, backoffMin, backoffMax time.Duration) PipelineOption {
	return func(p *JournalPipeline) {
		if max >= 0 {
			p.retryMax = max
		}
		if backoffMin > 0 {
			p.backoffMin = backoffMin
		}
		if backoffMax >= p.backoffMin {
			p.backoffMax = backoffMax
		}
	}
}

func WithPipelineLogger(l *logger.Logger) PipelineOption {
	return func(p *JournalPipeline) { p.logger = l }
}

// NewJournalPipeline creates a new pipeline.
func NewJournalPipeline(proc BatchProc, metrics domrepo.Metrics, opts ...PipelineOption) *JournalPipeline {
	p := &JournalPipeline{
		proc:         proc,
		metrics:      metrics,
		logger:       logger.NewNop(),
		batchSize:    100,
		batchTimeout: time.Second,
		retryMax:     3,
		backoffMin:   50 * time.Millisecond,
		backoffMax:   2 * time.Second,
		bufCh:        make(chan *models.FetchRecord, 1000),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var _ domrepo.Journal = (*JournalPipeline)(nil)

// Record buffers rec for the next flush.
func (p *JournalPipeline) Record(rec *models.FetchRecord) {
	if rec == nil || rec.ID == "" {
		p.recordError("journal_invalid")
		return
	}
	select {
	case p.bufCh <- rec:
	default:
		p.recordError("journal_buffer_full")
	}
}

// Start launches the flush loop. ctx bounds every downstream call.
func (p *JournalPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.loop(ctx)
}

// Stop ends the loop after flushing whatever is buffered.
func (p *JournalPipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = false
	p.mu.Unlock()

	close(p.stopCh)
	select {
	case <-p.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending reports the number of buffered records.
func (p *JournalPipeline) Pending() int { return len(p.bufCh) }

func (p *JournalPipeline) loop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.batchTimeout)
	defer ticker.Stop()

	batch := make([]*models.FetchRecord, 0, p.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		p.flush(ctx, batch)
		batch = make([]*models.FetchRecord, 0, p.batchSize)
	}

	for {
		select {
		case <-p.stopCh:
			for {
				select {
				case rec := <-p.bufCh:
					batch = append(batch, rec)
					if len(batch) >= p.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		case rec := <-p.bufCh:
			batch = append(batch, rec)
			if len(batch) >= p.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (p *JournalPipeline) flush(ctx context.Context, batch []*models.FetchRecord) {
	start := time.Now()
	backoff := p.backoffMin
	for attempt := 0; ; attempt++ {
		err := p.proc.ProcessBatch(ctx, batch)
		if err == nil {
			if p.metrics != nil {
				p.metrics.RecordLatency("journal_flush", time.Since(start).Seconds())
			}
			return
		}
		p.recordError("journal_flush")
		if attempt >= p.retryMax || ctx.Err() != nil {
			p.recordError("journal_drop")
			p.logger.Warn("journal batch dropped",
				logger.Int("records", len(batch)),
				logger.Int("attempts", attempt+1),
				logger.Error(err),
			)
			return
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
		}
		if backoff < p.backoffMax {
			backoff = min(backoff*2, p.backoffMax)
		}
	}
}

func (p *JournalPipeline) recordError(kind string) {
	if p.metrics != nil {
		p.metrics.RecordError(kind)
	}
}
