package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"FinPWA/internal/domain/models"
	domrepo "FinPWA/internal/domain/repository"
	pkgkafka "FinPWA/pkg/kafka"
	"FinPWA/pkg/logger"
)

// JournalSinkHandler consumes journal records from Kafka and writes them to storage.
type JournalSinkHandler struct {
	topic   string
	storage domrepo.JournalStorage
	metrics domrepo.Metrics
}

func NewJournalSinkHandler(topic string, storage domrepo.JournalStorage, metrics domrepo.Metrics) *JournalSinkHandler {
	return &JournalSinkHandler{topic: topic, storage: storage, metrics: metrics}
}

func (h *JournalSinkHandler) Topic() string { return h.topic }

func (h *JournalSinkHandler) Handle(ctx context.Context, b []byte) error {
	var rec models.FetchRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if rec.ID == "" {
		h.metrics.RecordError("consumer_invalid")
		return errors.New("journal record without id")
	}
	if !rec.Time.IsZero() {
		h.metrics.RecordLatency("journal_e2e_seconds", time.Since(rec.Time).Seconds())
	}

	start := time.Now()
	err := h.storage.Store(ctx, &rec)
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordMessageSent("clickhouse")
	return nil
}

// Pusher delivers a push payload as a notification.
type Pusher interface {
	Push(ctx context.Context, payload []byte) (models.Notification, error)
}

// PushHandler turns every message on the push topic into a push event.
type PushHandler struct {
	topic  string
	pusher Pusher
	logger *logger.Logger
}

func NewPushHandler(topic string, pusher Pusher, l *logger.Logger) *PushHandler {
	return &PushHandler{topic: topic, pusher: pusher, logger: l}
}

func (h *PushHandler) Topic() string { return h.topic }

func (h *PushHandler) Handle(ctx context.Context, b []byte) error {
	n, err := h.pusher.Push(ctx, b)
	if err != nil {
		return err
	}
	h.logger.Debug("push delivered", logger.String("title", n.Title))
	return nil
}

// Syncer runs a background sync for a tag.
type Syncer interface {
	Sync(ctx context.Context, tag string) (bool, error)
}

// SyncHandler triggers background sync. A message is either a bare tag or
// a JSON object with a "tag" field.
type SyncHandler struct {
	topic  string
	syncer Syncer
	logger *logger.Logger
}

func NewSyncHandler(topic string, syncer Syncer, l *logger.Logger) *SyncHandler {
	return &SyncHandler{topic: topic, syncer: syncer, logger: l}
}

func (h *SyncHandler) Topic() string { return h.topic }

func (h *SyncHandler) Handle(ctx context.Context, b []byte) error {
	tag := syncTag(b)
	if tag == "" {
		return errors.New("sync message without tag")
	}
	ok, err := h.syncer.Sync(ctx, tag)
	if err != nil {
		return err
	}
	if !ok {
		// Unknown tags are not retried.
		h.logger.Warn("sync tag ignored", logger.String("tag", tag))
	}
	return nil
}

func syncTag(b []byte) string {
	s := strings.TrimSpace(string(b))
	if gjson.Valid(s) {
		r := gjson.Parse(s)
		if r.Type == gjson.String {
			return strings.TrimSpace(r.String())
		}
		return strings.TrimSpace(r.Get("tag").String())
	}
	return s
}

var (
	_ pkgkafka.MessageHandler = (*JournalSinkHandler)(nil)
	_ pkgkafka.MessageHandler = (*PushHandler)(nil)
	_ pkgkafka.MessageHandler = (*SyncHandler)(nil)
)
