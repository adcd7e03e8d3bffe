package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinPWA/internal/domain/models"
)

type fakeProc struct {
	mu      sync.Mutex
	fails   int
	calls   int
	batches [][]*models.FetchRecord
}

func (f *fakeProc) ProcessBatch(_ context.Context, recs []*models.FetchRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fails != 0 {
		if f.fails > 0 {
			f.fails--
		}
		return errors.New("downstream unavailable")
	}
	f.batches = append(f.batches, recs)
	return nil
}

func (f *fakeProc) delivered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

type fakeMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func newFakeMetrics() *fakeMetrics { return &fakeMetrics{errors: map[string]int{}} }

func (m *fakeMetrics) RecordFetch(string, string, string) {}
func (m *fakeMetrics) RecordCacheWrite(string, error) {}
func (m *fakeMetrics) RecordLifecycle(string, error) {}
func (m *fakeMetrics) RecordPruned(int) {}
func (m *fakeMetrics) RecordState(string, []string) {}
func (m *fakeMetrics) RecordMessageSent(string) {}
func (m *fakeMetrics) RecordLatency(string, float64) {}
func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *fakeMetrics) count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

func record() *models.FetchRecord {
	return &models.FetchRecord{ID: uuid.NewString(), Time: time.Now(), Class: models.ClassStatic}
}

func TestPipelineFlushesFullBatches(t *testing.T) {
	proc := &fakeProc{}
	p := NewJournalPipeline(proc, newFakeMetrics(), WithBatch(2, time.Hour))
	p.Start(context.Background())
	defer func() { _ = p.Stop(context.Background()) }()

	for i := 0; i < 4; i++ {
		p.Record(record())
	}

	assert.Eventually(t, func() bool { return proc.delivered() == 4 }, time.Second, 5*time.Millisecond)
	proc.mu.Lock()
	defer proc.mu.Unlock()
	for _, b := range proc.batches {
		assert.Len(t, b, 2)
	}
}

func TestPipelineFlushesOnTimeout(t *testing.T) {
	proc := &fakeProc{}
	p := NewJournalPipeline(proc, newFakeMetrics(), WithBatch(100, 10*time.Millisecond))
	p.Start(context.Background())
	defer func() { _ = p.Stop(context.Background()) }()

	p.Record(record())
	assert.Eventually(t, func() bool { return proc.delivered() == 1 }, time.Second, 5*time.Millisecond)
}

func TestPipelineStopDrainsBuffer(t *testing.T) {
	proc := &fakeProc{}
	p := NewJournalPipeline(proc, newFakeMetrics(), WithBatch(100, time.Hour))
	for i := 0; i < 3; i++ {
		p.Record(record())
	}
	p.Start(context.Background())

	require.NoError(t, p.Stop(context.Background()))
	assert.Equal(t, 3, proc.delivered())
	assert.Zero(t, p.Pending())
}

func TestPipelineRetriesWithBackoff(t *testing.T) {
	proc := &fakeProc{fails: 2}
	m := newFakeMetrics()
	p := NewJournalPipeline(proc, m, WithBatch(1, time.Hour), WithRetry(3, time.Millisecond, 4*time.Millisecond))
	p.Start(context.Background())
	defer func() { _ = p.Stop(context.Background()) }()

	p.Record(record())
	assert.Eventually(t, func() bool { return proc.delivered() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, m.count("journal_flush"))
	assert.Zero(t, m.count("journal_drop"))
}

func TestPipelineDropsAfterRetries(t *testing.T) {
	proc := &fakeProc{fails: -1}
	m := newFakeMetrics()
	p := NewJournalPipeline(proc, m, WithBatch(1, time.Hour), WithRetry(1, time.Millisecond, time.Millisecond))
	p.Record(record())
	p.Start(context.Background())

	require.NoError(t, p.Stop(context.Background()))
	proc.mu.Lock()
	assert.Equal(t, 2, proc.calls)
	proc.mu.Unlock()
	assert.Equal(t, 1, m.count("journal_drop"))
}

func TestPipelineRecordNeverBlocks(t *testing.T) {
	m := newFakeMetrics()
	p := NewJournalPipeline(&fakeProc{}, m, WithBufferSize(1))

	p.Record(record())
	p.Record(record())
	p.Record(nil)

	assert.Equal(t, 1, p.Pending())
	assert.Equal(t, 1, m.count("journal_buffer_full"))
	assert.Equal(t, 1, m.count("journal_invalid"))
}
