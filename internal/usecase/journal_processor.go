package usecase

import (
	"context"
	"fmt"
	"time"

	"FinPWA/internal/domain/models"
	drepo "FinPWA/internal/domain/repository"
)

// JournalProcessor routes fetch records to the configured journal backend.
type JournalProcessor struct {
	pub     drepo.JournalPublisher
	store   drepo.JournalStorage
	metrics drepo.Metrics
	backend string
}

// NewJournalProcessor creates a new JournalProcessor instance. backend is
// "kafka" or "clickhouse"; only the matching sink needs to be non-nil.
func NewJournalProcessor(
	pub drepo.JournalPublisher,
	store drepo.JournalStorage,
	metrics drepo.Metrics,
	backend string,
) *JournalProcessor {
	return &JournalProcessor{
		pub:     pub,
		store:   store,
		metrics: metrics,
		backend: backend,
	}
}

// Process writes a single record.
func (p *JournalProcessor) Process(ctx context.Context, rec *models.FetchRecord) error {
	if rec == nil {
		return fmt.Errorf("record is nil")
	}
	return p.ProcessBatch(ctx, []*models.FetchRecord{rec})
}

// ProcessBatch writes records in one round trip.
func (p *JournalProcessor) ProcessBatch(ctx context.Context, recs []*models.FetchRecord) error {
	if len(recs) == 0 {
		return nil
	}

	start := time.Now()
	var err error

	switch p.backend {
	case "kafka":
		if p.pub == nil {
			return fmt.Errorf("kafka backend has no publisher")
		}
		err = p.pub.PublishBatch(ctx, recs)
	case "clickhouse":
		if p.store == nil {
			return fmt.Errorf("clickhouse backend has no storage")
		}
		err = p.store.StoreBatch(ctx, recs)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("journal_process")
		return fmt.Errorf("process journal batch: %w", err)
	}

	for range recs {
		p.metrics.RecordMessageSent(p.backend)
	}
	p.metrics.RecordLatency("journal_process", time.Since(start).Seconds())

	return nil
}
