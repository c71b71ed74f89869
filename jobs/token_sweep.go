package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/stockflow/internal/jobs"
	"github.com/odyssey-erp/stockflow/internal/platform/cache"
	"github.com/odyssey-erp/stockflow/internal/procurement"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

const (
	// TaskTokenSweep expires lapsed supplier confirmation links.
	TaskTokenSweep = "confirmation:sweep"
	// DefaultTokenSweepCron runs the sweep at midnight UTC.
	DefaultTokenSweepCron = "0 0 * * *"
)

// TokenSweeper is implemented by procurement.Service.
type TokenSweeper interface {
	ExpireStaleTokens(ctx context.Context) (procurement.SweepResult, error)
}

// TokenSweepJob runs the confirmation link sweep on one worker at a time.
type TokenSweepJob struct {
	Sweeper TokenSweeper
	Locker  *cache.Locker
	LockTTL time.Duration
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewTokenSweepJob constructs the sweep handler.
func NewTokenSweepJob(sweeper TokenSweeper, locker *cache.Locker, logger *slog.Logger, metrics *jobmetrics.Metrics) *TokenSweepJob {
	return &TokenSweepJob{Sweeper: sweeper, Locker: locker, LockTTL: 15 * time.Minute, Logger: logger, Metrics: metrics}
}

// NewTokenSweepTask creates the task scheduled by cron.
func NewTokenSweepTask() *asynq.Task {
	return asynq.NewTask(TaskTokenSweep, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(3))
}

// Handle executes the sweep. A run that finds the lock taken is a no-op.
func (j *TokenSweepJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Sweeper == nil {
		return errors.New("token sweep: sweeper not configured")
	}
	tracker := j.Metrics.Track(TaskTokenSweep)
	err := j.Locker.WithLock(ctx, shared.TokenSweepLockKey(), j.lockTTL(), func(ctx context.Context) error {
		result, err := j.Sweeper.ExpireStaleTokens(ctx)
		j.Metrics.AddSweptTokens("failed", result.Failed)
		j.Metrics.AddSweptTokens("deleted", result.Deleted)
		j.Metrics.AddSweptTokens("error", result.Errors)
		return err
	})
	if errors.Is(err, cache.ErrLockHeld) {
		j.log().Info("token sweep skipped, another worker holds the lock")
		return tracker.End(nil)
	}
	if err != nil {
		j.log().Error("token sweep", slog.Any("error", err))
	}
	return tracker.End(err)
}

func (j *TokenSweepJob) lockTTL() time.Duration {
	if j.LockTTL > 0 {
		return j.LockTTL
	}
	return 15 * time.Minute
}

func (j *TokenSweepJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
