package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockflow/jobs"
)

// enqueuer is the subset of asynq.Client used for manual triggers.
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// queueCLI wraps manual management helpers for the job queue.
type queueCLI struct {
	client    enqueuer
	inspector *asynq.Inspector
}

func newQueueCLI(opts asynq.RedisClientOpt) *queueCLI {
	return &queueCLI{client: asynq.NewClient(opts), inspector: asynq.NewInspector(opts)}
}

// Close releases underlying resources.
func (c *queueCLI) Close() error {
	var err error
	if c.inspector != nil {
		err = errors.Join(err, c.inspector.Close())
	}
	if c.client != nil {
		err = errors.Join(err, c.client.Close())
	}
	return err
}

// Trigger enqueues a supported job by name.
func (c *queueCLI) Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("queue: client not configured")
	}
	var task *asynq.Task
	switch name {
	case jobs.TaskTokenSweep:
		task = jobs.NewTokenSweepTask()
	case jobs.TaskLowStockAlert:
		task = jobs.NewLowStockAlertTask()
	default:
		return nil, fmt.Errorf("queue: unsupported job %s", name)
	}
	return c.client.EnqueueContext(ctx, task)
}

type queueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

// InspectQueues reports counters for every worker queue.
func (c *queueCLI) InspectQueues(ctx context.Context) ([]queueStats, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("queue: inspector not configured")
	}
	all := make([]queueStats, 0, len(jobs.QueueNames))
	for _, name := range jobs.QueueNames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := c.inspector.GetQueueInfo(name)
		if err != nil {
			return nil, fmt.Errorf("inspect %s: %w", name, err)
		}
		stats := queueStats{Queue: name}
		if info != nil {
			stats.Pending = info.Pending
			stats.Active = info.Active
			stats.Scheduled = info.Scheduled
			stats.Retry = info.Retry
			stats.Archived = info.Archived
		}
		all = append(all, stats)
	}
	return all, nil
}

// ListScheduled returns scheduled task infos.
func (c *queueCLI) ListScheduled(ctx context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("queue: inspector not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}
