package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Publisher enqueues work. Messages sharing a non-empty key are coalesced
// while one of them is pending; Enqueue then reports false.
type Publisher interface {
	Enqueue(ctx context.Context, msgType, key string, payload interface{}) (bool, error)
}

// Config contains the configuration for the queue.
type Config struct {
	Workers       int           // number of workers
	RetryLimit    int           // retries before a message is dead-lettered
	RetryDelay    time.Duration // delay before the first retry, doubled per attempt
	MaxRetryDelay time.Duration // cap on the retry delay
	PollInterval  time.Duration // how often due retries are promoted
}

// Message is the envelope stored in Redis.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Key       string          `json:"key,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
	LastError string          `json:"last_error,omitempty"`
}

// Stats counts messages by stage.
type Stats struct {
	Queued   int64 `json:"queued"`
	Retrying int64 `json:"retrying"`
	Dead     int64 `json:"dead"`
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Decode unmarshals a payload into T.
func Decode[T any](payload json.RawMessage) (*T, error) {
	var result T
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return &result, nil
}

// retryDelay is the wait before retry number attempt (1-based).
func (c *Config) retryDelay(attempt int) time.Duration {
	d := c.RetryDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if c.MaxRetryDelay > 0 && d >= c.MaxRetryDelay {
			return c.MaxRetryDelay
		}
	}
	return d
}
