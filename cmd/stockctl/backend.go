package main

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockflow/internal/app"
	"github.com/odyssey-erp/stockflow/internal/platform/cache"
	"github.com/odyssey-erp/stockflow/internal/platform/db"
	"github.com/odyssey-erp/stockflow/jobs"
)

const sweepLockTTL = 15 * time.Minute

type backend struct {
	services *app.Services
	locker   *cache.Locker
	pool     *pgxpool.Pool
}

// withBackend opens postgres, redis and the job client for one command.
func (rt *runtime) withBackend(ctx context.Context, fn func(*backend) error) error {
	pool, err := db.New(ctx, rt.cfg.PGDSN, db.PoolOptions{MaxConns: 4})
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, rt.cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	queue, err := jobs.NewClient(asynq.RedisClientOpt{Addr: rt.cfg.RedisAddr})
	if err != nil {
		return err
	}
	defer queue.Close()

	services, err := app.BuildServices(app.ServiceDeps{
		Config: rt.cfg,
		Pool:   pool,
		Logger: rt.logger,
		Queue:  queue,
	})
	if err != nil {
		return err
	}
	return fn(&backend{
		services: services,
		locker:   cache.NewLocker(redisClient, rt.logger),
		pool:     pool,
	})
}

func (rt *runtime) withQueue(fn func(*queueCLI) error) error {
	q := newQueueCLI(asynq.RedisClientOpt{Addr: rt.cfg.RedisAddr})
	defer q.Close()
	return fn(q)
}
