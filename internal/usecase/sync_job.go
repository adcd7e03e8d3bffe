package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"FinPWA/pkg/logger"
	"FinPWA/pkg/queue"
)

// SyncJobType is the queue message type of a deferred background sync.
const SyncJobType = "sync"

// SyncTask is the queued payload of a background sync.
type SyncTask struct {
	Tag string `json:"tag"`
}

// SyncJob replays queued background syncs against the worker. Failures are
// retried by the queue; unknown tags are dead-lettered at once.
type SyncJob struct {
	syncer Syncer
	logger *logger.Logger
}

func NewSyncJob(syncer Syncer, l *logger.Logger) *SyncJob {
	return &SyncJob{syncer: syncer, logger: l}
}

func (j *SyncJob) Type() string { return SyncJobType }

func (j *SyncJob) Handle(ctx context.Context, payload json.RawMessage) error {
	task, err := queue.Decode[SyncTask](payload)
	if err != nil {
		return queue.Permanent(err)
	}
	ok, err := j.syncer.Sync(ctx, task.Tag)
	if err != nil {
		return err
	}
	if !ok {
		return queue.Permanent(fmt.Errorf("unknown sync tag %q", task.Tag))
	}
	j.logger.Debug("queued sync replayed", logger.String("tag", task.Tag))
	return nil
}

var _ queue.Job = (*SyncJob)(nil)
