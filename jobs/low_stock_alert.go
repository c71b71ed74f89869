package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockflow/internal/inventory"
	jobmetrics "github.com/odyssey-erp/stockflow/internal/jobs"
	"github.com/odyssey-erp/stockflow/internal/platform/cache"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

const (
	// TaskLowStockAlert mails the daily low stock digest.
	TaskLowStockAlert = "inventory:low-stock-alert"
	// DefaultLowStockCron sends the digest at 07:00 UTC.
	DefaultLowStockCron = "0 7 * * *"
)

// LowStockSource lists entries at or below their minimum level.
type LowStockSource interface {
	ListLowStock(ctx context.Context) ([]inventory.LedgerEntry, error)
}

// LowStockNotifier delivers the digest.
type LowStockNotifier interface {
	NotifyLowStock(ctx context.Context, entries []inventory.LedgerEntry) error
}

// LowStockAlertJob sends at most one digest per calendar day across replicas.
type LowStockAlertJob struct {
	Source   LowStockSource
	Notifier LowStockNotifier
	Locker   *cache.Locker
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewLowStockAlertJob constructs the digest handler.
func NewLowStockAlertJob(source LowStockSource, notifier LowStockNotifier, locker *cache.Locker, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockAlertJob {
	return &LowStockAlertJob{
		Source:   source,
		Notifier: notifier,
		Locker:   locker,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// NewLowStockAlertTask creates the task scheduled by cron.
func NewLowStockAlertTask() *asynq.Task {
	return asynq.NewTask(TaskLowStockAlert, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(3))
}

// Handle executes the digest.
func (j *LowStockAlertJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Source == nil || j.Notifier == nil {
		return errors.New("low stock alert: dependencies not configured")
	}
	tracker := j.Metrics.Track(TaskLowStockAlert)
	day := j.now().Format(time.DateOnly)
	err := j.Locker.Once(ctx, shared.LowStockAlertLockKey(day), 24*time.Hour, func(ctx context.Context) error {
		entries, err := j.Source.ListLowStock(ctx)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			j.log().Info("no low stock entries", slog.String("day", day))
			return nil
		}
		if err := j.Notifier.NotifyLowStock(ctx, entries); err != nil {
			return err
		}
		j.Metrics.AddLowStockAlerts(len(entries))
		j.log().Info("low stock alert queued", slog.String("day", day), slog.Int("entries", len(entries)))
		return nil
	})
	if errors.Is(err, cache.ErrLockHeld) {
		j.log().Info("low stock alert already sent", slog.String("day", day))
		return tracker.End(nil)
	}
	if err != nil {
		j.log().Error("low stock alert", slog.String("day", day), slog.Any("error", err))
	}
	return tracker.End(err)
}

func (j *LowStockAlertJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *LowStockAlertJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
