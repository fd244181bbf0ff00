package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/estore-backend/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultPurgeBatch      = 1000
)

type outboxPurger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time, maxAttempts, limit int) (int64, error)
}

// OutboxRetentionJobParams configure the purge. MaxAttempts must match the
// publisher so rows still being retried survive.
type OutboxRetentionJobParams struct {
	Logger      *logger.Logger
	Repository  outboxPurger
	Retention   time.Duration
	MaxAttempts int
	BatchSize   int
}

// NewOutboxRetentionJob purges published and parked outbox rows older than the
// retention window, one bounded batch per statement.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	case params.MaxAttempts <= 0:
		return nil, errors.New("publisher max attempts required")
	}
	job := &outboxRetentionJob{
		logg:        params.Logger,
		repo:        params.Repository,
		retention:   params.Retention,
		maxAttempts: params.MaxAttempts,
		batch:       params.BatchSize,
		now:         time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultOutboxRetention
	}
	if job.batch <= 0 {
		job.batch = defaultPurgeBatch
	}
	return job, nil
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	repo        outboxPurger
	retention   time.Duration
	maxAttempts int
	batch       int
	now         func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var total int64
	for {
		n, err := j.repo.PurgeBefore(ctx, cutoff, j.maxAttempts, j.batch)
		total += n
		if err != nil {
			return fmt.Errorf("purge outbox after %d rows: %w", total, err)
		}
		if n < int64(j.batch) {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"max_attempts": j.maxAttempts,
		"rows_deleted": total,
	}), "outbox retention cleanup complete")
	return nil
}
