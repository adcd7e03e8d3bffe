package repository

import (
	"context"

	"FinPWA/internal/domain/models"
)

// Network performs the real fetch behind the cache router.
type Network interface {
	Fetch(ctx context.Context, req *models.Request) (*models.Response, error)
}

// Clients is the set of page clients controlled by the worker.
type Clients interface {
	PostMessage(ctx context.Context, msg models.ClientMessage) (int, error)
	Claim(ctx context.Context, msg models.ClientMessage) (int, error)
	// Focus focuses an open client showing url; false when none is open.
	Focus(ctx context.Context, url string) (bool, error)
	OpenWindow(ctx context.Context, url string) error
	ShowNotification(ctx context.Context, n models.Notification) error
	Count() int
}

// JournalPublisher forwards fetch records to a broker.
type JournalPublisher interface {
	Publish(ctx context.Context, rec *models.FetchRecord) error
	PublishBatch(ctx context.Context, recs []*models.FetchRecord) error
	Close() error
}

// JournalStorage persists fetch records.
type JournalStorage interface {
	Init(ctx context.Context) error // ensure tables
	Store(ctx context.Context, rec *models.FetchRecord) error
	StoreBatch(ctx context.Context, recs []*models.FetchRecord) error
	Query(ctx context.Context, q models.JournalQuery) ([]*models.FetchRecord, error)
	Health(ctx context.Context) error
	Close() error
}

// Journal accepts fetch records without blocking the caller.
type Journal interface {
	Record(rec *models.FetchRecord)
}

type Metrics interface {
	RecordFetch(class, strategy, source string)
	RecordCacheWrite(partition string, err error)
	RecordLifecycle(event string, err error)
	RecordPruned(n int)
	RecordState(state string, all []string)
	RecordMessageSent(backend string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
