package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyHandler struct {
	topic string
	fails int
	calls int
	seen  []string
}

func (h *flakyHandler) Topic() string { return h.topic }

func (h *flakyHandler) Handle(_ context.Context, b []byte) error {
	h.calls++
	h.seen = append(h.seen, string(b))
	if h.calls <= h.fails {
		return errors.New("sync backend unavailable")
	}
	return nil
}

type fakeReader struct {
	mu        sync.Mutex
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func newTestConsumer(t *testing.T, opts ...ConsumerOption) *Consumer {
	t.Helper()
	opts = append([]ConsumerOption{
		WithConsumerBrokers([]string{"127.0.0.1:1"}),
		WithConsumerRetry(2, time.Millisecond, 2*time.Millisecond),
	}, opts...)
	c, err := NewConsumer(opts...)
	require.NoError(t, err)
	return c
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestConsumerRetriesThenCommits(t *testing.T) {
	c := newTestConsumer(t)
	h := &flakyHandler{topic: "finpwa.sync", fails: 2}
	r := &fakeReader{}
	c.RegisterHandler(h)
	c.readers["finpwa.sync"] = r

	c.handle(kafka.Message{Topic: "finpwa.sync", Offset: 7, Value: []byte("portfolio-sync")})

	assert.Equal(t, 3, h.calls)
	assert.Equal(t, []int64{7}, r.committed)
}

func TestConsumerFailureWithoutDLQIsNotCommitted(t *testing.T) {
	c := newTestConsumer(t)
	h := &flakyHandler{topic: "finpwa.push", fails: 10}
	r := &fakeReader{}
	c.RegisterHandler(h)
	c.readers["finpwa.push"] = r

	c.handle(kafka.Message{Topic: "finpwa.push", Offset: 3})

	assert.Equal(t, 3, h.calls)
	assert.Empty(t, r.committed)
}

func TestConsumerDeadLettersAndCommits(t *testing.T) {
	c := newTestConsumer(t, WithConsumerDLQ("finpwa.dlq"))
	dlq := &fakeWriter{}
	c.dlq = dlq
	h := &flakyHandler{topic: "finpwa.push", fails: 10}
	r := &fakeReader{}
	c.RegisterHandler(h)
	c.readers["finpwa.push"] = r

	c.handle(kafka.Message{Topic: "finpwa.push", Offset: 9, Key: []byte("k"), Value: []byte("hello")})

	require.Len(t, dlq.msgs, 1)
	dead := dlq.msgs[0]
	assert.Equal(t, "finpwa.dlq", dead.Topic)
	assert.Equal(t, "hello", string(dead.Value))
	assert.Equal(t, "finpwa.push", header(dead, "source_topic"))
	assert.Equal(t, "3", header(dead, "attempts"))
	assert.Equal(t, "sync backend unavailable", header(dead, "error"))
	assert.Equal(t, []int64{9}, r.committed)
}

func TestConsumerHookRejectionSkipsHandler(t *testing.T) {
	c := newTestConsumer(t)
	c.WithConsumerHook(HookFuncs{
		BeforeFunc: func(ctx context.Context, _ *Delivery) (context.Context, error) {
			return ctx, errors.New("rejected")
		},
	})
	h := &flakyHandler{topic: "finpwa.sync"}

	attempts, err := c.process(h, kafka.Message{Topic: "finpwa.sync"})
	assert.EqualError(t, err, "rejected")
	assert.Equal(t, 1, attempts)
	assert.Zero(t, h.calls)
}

func TestConsumerRegisterKeepsFirstHandler(t *testing.T) {
	c := newTestConsumer(t)
	first := &flakyHandler{topic: "finpwa.sync"}
	c.RegisterHandler(first)
	c.RegisterHandler(&flakyHandler{topic: "finpwa.sync"})
	assert.Same(t, first, c.handlers["finpwa.sync"])
}

func TestConsumerStopDrainsQueue(t *testing.T) {
	c := newTestConsumer(t)
	h := &flakyHandler{topic: "finpwa.sync"}
	r := &fakeReader{}
	c.RegisterHandler(h)
	c.readers["finpwa.sync"] = r
	c.queue <- kafka.Message{Topic: "finpwa.sync", Offset: 1, Value: []byte("a")}
	c.queue <- kafka.Message{Topic: "finpwa.sync", Offset: 2, Value: []byte("b")}

	c.run()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))

	assert.Equal(t, []string{"a", "b"}, h.seen)
	assert.Equal(t, []int64{1, 2}, r.committed)
}

func TestNewConsumerRequiresBrokers(t *testing.T) {
	_, err := NewConsumer()
	assert.Error(t, err)
}
