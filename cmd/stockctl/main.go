// Command stockctl runs operational tasks against a stockflow deployment:
// schema migrations, manual job triggers, queue inspection and demo data.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/odyssey-erp/stockflow/internal/app"
	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/platform/cache"
	"github.com/odyssey-erp/stockflow/internal/platform/db"
	"github.com/odyssey-erp/stockflow/internal/procurement"
	"github.com/odyssey-erp/stockflow/internal/shared"
	"github.com/odyssey-erp/stockflow/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "stockctl:", err)
		os.Exit(1)
	}
}

type runtime struct {
	cfg    *app.Config
	logger *slog.Logger
	out    io.Writer
}

func newApp(out io.Writer) *cli.App {
	rt := &runtime{out: out}
	return &cli.App{
		Name:      "stockctl",
		Usage:     "operate a stockflow deployment",
		Writer:    out,
		ErrWriter: out,
		Before: func(c *cli.Context) error {
			if c.Args().First() == "help" || c.Args().Len() == 0 {
				return nil
			}
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			rt.cfg = cfg
			rt.logger = app.NewLogger(cfg, "stockctl")
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "apply or revert the embedded schema migrations",
				Subcommands: []*cli.Command{
					{Name: "up", Usage: "apply all pending migrations", Action: rt.migrateUp},
					{Name: "down", Usage: "revert all migrations", Flags: []cli.Flag{
						&cli.BoolFlag{Name: "yes", Usage: "confirm dropping every table"},
					}, Action: rt.migrateDown},
					{Name: "version", Usage: "print the applied schema version", Action: rt.migrateVersion},
				},
			},
			{
				Name:  "sweep-tokens",
				Usage: "expire lapsed supplier confirmation links",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "enqueue", Usage: "hand the sweep to the worker instead of running it here"},
				},
				Action: rt.sweepTokens,
			},
			{
				Name:  "low-stock",
				Usage: "list ledger entries at or below their minimum level",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "notify", Usage: "queue the daily digest as well"},
				},
				Action: rt.lowStock,
			},
			{
				Name:  "queue",
				Usage: "inspect the job queue",
				Subcommands: []*cli.Command{
					{Name: "stats", Usage: "print queue counters", Action: rt.queueStats},
					{Name: "scheduled", Usage: "list scheduled tasks", Flags: []cli.Flag{
						&cli.IntFlag{Name: "size", Value: 10},
					}, Action: rt.queueScheduled},
				},
			},
			{
				Name:   "seed",
				Usage:  "insert demo suppliers, products and ledger entries",
				Action: rt.seed,
			},
		},
	}
}

func (rt *runtime) migrateUp(c *cli.Context) error {
	if err := db.Migrate(rt.cfg.PGDSN, true); err != nil {
		return err
	}
	return rt.migrateVersion(c)
}

func (rt *runtime) migrateDown(c *cli.Context) error {
	if !c.Bool("yes") {
		return errors.New("migrate down drops every table; pass --yes to continue")
	}
	if err := db.Migrate(rt.cfg.PGDSN, false); err != nil {
		return err
	}
	fmt.Fprintln(rt.out, "schema reverted")
	return nil
}

func (rt *runtime) migrateVersion(*cli.Context) error {
	version, dirty, err := db.MigrationVersion(rt.cfg.PGDSN)
	if err != nil {
		return err
	}
	fmt.Fprintf(rt.out, "schema version %d (dirty=%t)\n", version, dirty)
	return nil
}

func (rt *runtime) sweepTokens(c *cli.Context) error {
	if c.Bool("enqueue") {
		return rt.withQueue(func(q *queueCLI) error {
			info, err := q.Trigger(c.Context, jobs.TaskTokenSweep)
			if err != nil {
				return err
			}
			fmt.Fprintf(rt.out, "enqueued %s as %s\n", jobs.TaskTokenSweep, info.ID)
			return nil
		})
	}
	return rt.withBackend(c.Context, func(b *backend) error {
		var result procurement.SweepResult
		err := b.locker.WithLock(c.Context, shared.TokenSweepLockKey(), sweepLockTTL, func(ctx context.Context) error {
			var err error
			result, err = b.services.Procurement.ExpireStaleTokens(ctx)
			return err
		})
		if errors.Is(err, cache.ErrLockHeld) {
			fmt.Fprintln(rt.out, "another sweep is running, nothing to do")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(rt.out, "scanned=%d failed=%d deleted=%d errors=%d\n", result.Scanned, result.Failed, result.Deleted, result.Errors)
		return nil
	})
}

func (rt *runtime) lowStock(c *cli.Context) error {
	return rt.withBackend(c.Context, func(b *backend) error {
		entries, err := b.services.Inventory.ListLowStock(c.Context)
		if err != nil {
			return err
		}
		if err := writeLowStock(rt.out, entries); err != nil {
			return err
		}
		if !c.Bool("notify") {
			return nil
		}
		return rt.withQueue(func(q *queueCLI) error {
			info, err := q.Trigger(c.Context, jobs.TaskLowStockAlert)
			if err != nil {
				return err
			}
			fmt.Fprintf(rt.out, "enqueued %s as %s\n", jobs.TaskLowStockAlert, info.ID)
			return nil
		})
	})
}

func (rt *runtime) queueStats(c *cli.Context) error {
	return rt.withQueue(func(q *queueCLI) error {
		all, err := q.InspectQueues(c.Context)
		if err != nil {
			return err
		}
		for _, stats := range all {
			fmt.Fprintf(rt.out, "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
				stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
		}
		return nil
	})
}

func (rt *runtime) queueScheduled(c *cli.Context) error {
	return rt.withQueue(func(q *queueCLI) error {
		tasks, err := q.ListScheduled(c.Context, c.Int("size"))
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(rt.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTYPE\tNEXT RUN")
		for _, task := range tasks {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", task.ID, task.Type, task.NextProcessAt.UTC().Format("2006-01-02 15:04"))
		}
		return tw.Flush()
	})
}

func (rt *runtime) seed(c *cli.Context) error {
	return rt.withBackend(c.Context, func(b *backend) error {
		return seedDemo(c.Context, rt.out, b.pool, b.services.Inventory)
	})
}

func writeLowStock(w io.Writer, entries []inventory.LedgerEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "no products at or below their minimum level")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "SKU\tPRODUCT\tON HAND\tRESERVED\tMIN\t")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t\n", e.SKU, e.ProductID, e.CurrentStock, e.ReservedStock, e.MinLevel)
	}
	return tw.Flush()
}
