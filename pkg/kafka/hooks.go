package kafka

import (
	"context"
	"fmt"
	"time"

	applogger "FinPWA/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// Delivery is one handling attempt of a fetched message. Hooks may replace
// Value before the handler sees it.
type Delivery struct {
	Topic   string
	Message kafka.Message
	Value   []byte
	Attempt int
	Started time.Time
}

// ConsumerHook wraps every handling attempt. An error from Before skips the
// handler and fails the message without retries.
type ConsumerHook interface {
	Before(ctx context.Context, d *Delivery) (context.Context, error)
	After(ctx context.Context, d *Delivery, err error)
	OnError(ctx context.Context, d *Delivery, err error)
}

// HookFuncs adapts plain functions to ConsumerHook. Nil functions are no-ops.
type HookFuncs struct {
	BeforeFunc  func(context.Context, *Delivery) (context.Context, error)
	AfterFunc   func(context.Context, *Delivery, error)
	OnErrorFunc func(context.Context, *Delivery, error)
}

func (h HookFuncs) Before(ctx context.Context, d *Delivery) (context.Context, error) {
	if h.BeforeFunc == nil {
		return ctx, nil
	}
	return h.BeforeFunc(ctx, d)
}

func (h HookFuncs) After(ctx context.Context, d *Delivery, err error) {
	if h.AfterFunc != nil {
		h.AfterFunc(ctx, d, err)
	}
}

func (h HookFuncs) OnError(ctx context.Context, d *Delivery, err error) {
	if h.OnErrorFunc != nil {
		h.OnErrorFunc(ctx, d, err)
	}
}

// HookPanicError is returned when a Before hook panics.
type HookPanicError struct {
	Value any
}

func (e *HookPanicError) Error() string { return fmt.Sprintf("consumer hook panic: %v", e.Value) }

// HookChain runs Before in order and After in reverse. Panics inside hooks
// never reach the consumer.
type HookChain []ConsumerHook

// NewHookChain drops nil hooks.
func NewHookChain(hooks ...ConsumerHook) HookChain {
	chain := make(HookChain, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			chain = append(chain, h)
		}
	}
	return chain
}

func (c HookChain) Before(ctx context.Context, d *Delivery) (context.Context, error) {
	for _, h := range c {
		next, err := safeBefore(h, ctx, d)
		if err != nil {
			c.OnError(ctx, d, err)
			return ctx, err
		}
		ctx = next
	}
	return ctx, nil
}

func (c HookChain) After(ctx context.Context, d *Delivery, err error) {
	for i := len(c) - 1; i >= 0; i-- {
		guard(func() { c[i].After(ctx, d, err) })
	}
}

func (c HookChain) OnError(ctx context.Context, d *Delivery, err error) {
	for _, h := range c {
		guard(func() { h.OnError(ctx, d, err) })
	}
}

func safeBefore(h ConsumerHook, ctx context.Context, d *Delivery) (next context.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			next, err = ctx, &HookPanicError{Value: r}
		}
	}()
	return h.Before(ctx, d)
}

func guard(fn func()) {
	defer func() { _ = recover() }()
	fn()
}

type traceKey struct{}

// ContextWithTraceID stores a correlation id for handlers and hooks.
func ContextWithTraceID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, traceKey{}, id)
}

// TraceID returns the id stored by ContextWithTraceID.
func TraceID(ctx context.Context) string {
	s, _ := ctx.Value(traceKey{}).(string)
	return s
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// TracingHook carries the producer's trace header into the handler context.
func TracingHook() ConsumerHook {
	return HookFuncs{
		BeforeFunc: func(ctx context.Context, d *Delivery) (context.Context, error) {
			return ContextWithTraceID(ctx, headerValue(d.Message, HeaderTraceID)), nil
		},
	}
}

// LoggingHook logs every failed attempt.
func LoggingHook(l *applogger.Logger) ConsumerHook {
	return HookFuncs{
		OnErrorFunc: func(ctx context.Context, d *Delivery, err error) {
			l.Warn("kafka handler attempt failed",
				applogger.String("topic", d.Topic),
				applogger.Int("partition", d.Message.Partition),
				applogger.Int64("offset", d.Message.Offset),
				applogger.Int("attempt", d.Attempt),
				applogger.Duration("elapsed", time.Since(d.Started)),
				applogger.String("trace_id", TraceID(ctx)),
				applogger.Error(err),
			)
		},
	}
}
