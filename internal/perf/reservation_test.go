package perf

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/inventory/inventorytest"
	jobmetrics "github.com/odyssey-erp/stockflow/internal/jobs"
	"github.com/odyssey-erp/stockflow/internal/observability"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

func seededLedger(stock int) *inventorytest.Ledger {
	return inventorytest.NewLedger(inventory.LedgerEntry{
		SKU:          "SKU-HOT",
		ProductID:    "HOT",
		CurrentStock: stock,
		MinLevel:     10,
		Status:       inventory.StatusInStock,
	})
}

func TestContendedReservationsNeverOversell(t *testing.T) {
	const stock, callers = 500, 800
	ledger := seededLedger(stock)
	metrics := observability.NewMetrics()
	manager := inventory.NewManager(shared.SystemClock{}, nil, metrics)

	var granted atomic.Int64
	var g errgroup.Group
	g.SetLimit(32)
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			return ledger.WithTx(context.Background(), func(ctx context.Context, tx inventory.TxRepository) error {
				ok, err := manager.Reserve(ctx, tx, "HOT", 1)
				if ok {
					granted.Add(1)
				}
				if errors.Is(err, shared.ErrInsufficientStock) {
					return nil
				}
				return err
			})
		})
	}
	require.NoError(t, g.Wait())

	entry, ok := ledger.Entry("HOT")
	require.True(t, ok)
	assert.Equal(t, int64(stock), granted.Load())
	assert.Equal(t, stock, entry.ReservedStock)
	assert.Equal(t, 0, entry.Available())

	gatherer, ok := metrics.Registerer().(prometheus.Gatherer)
	require.True(t, ok)
	families, err := gatherer.Gather()
	require.NoError(t, err)
	assert.Equal(t, float64(stock), metricValue(t, families, "stockflow_stock_reservations_total", map[string]string{"result": "reserved"}))
	assert.Equal(t, float64(callers-stock), metricValue(t, families, "stockflow_stock_reservations_total", map[string]string{"result": "rejected"}))
}

func TestJobDurationsStayWithinBudget(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	for i := 0; i < 20; i++ {
		tracker := metrics.Track("confirmation:sweep")
		time.Sleep(2 * time.Millisecond)
		require.NoError(t, tracker.End(nil))
	}
	tracker := metrics.Track("confirmation:sweep")
	require.Error(t, tracker.End(errors.New("pool closed")))

	families, err := reg.Gather()
	require.NoError(t, err)
	success := metricValue(t, families, "stockflow_jobs_total", map[string]string{"job": "confirmation:sweep", "status": "success"})
	failure := metricValue(t, families, "stockflow_jobs_total", map[string]string{"job": "confirmation:sweep", "status": "failure"})
	assert.GreaterOrEqual(t, success/(success+failure), 0.9)
	assert.Less(t, histogramMean(t, families, "stockflow_job_duration_seconds", map[string]string{"job": "confirmation:sweep"}), 0.5)
}

func BenchmarkReserveReleaseSingleProduct(b *testing.B) {
	ledger := seededLedger(1 << 30)
	manager := inventory.NewManager(shared.SystemClock{}, nil, nil)
	ctx := context.Background()

	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			err := ledger.WithTx(ctx, func(ctx context.Context, tx inventory.TxRepository) error {
				if _, err := manager.Reserve(ctx, tx, "HOT", 3); err != nil {
					return err
				}
				_, err := manager.Release(ctx, tx, "HOT", 3)
				return err
			})
			if err != nil {
				b.Fatal(err)
			}
		}
	})
}

func BenchmarkReserveAcrossProducts(b *testing.B) {
	const products = 64
	entries := make([]inventory.LedgerEntry, products)
	for i := range entries {
		id := fmt.Sprintf("P%02d", i)
		entries[i] = inventory.LedgerEntry{SKU: "SKU-" + id, ProductID: id, CurrentStock: 1 << 30, Status: inventory.StatusInStock}
	}
	ledger := inventorytest.NewLedger(entries...)
	manager := inventory.NewManager(shared.SystemClock{}, nil, nil)
	ctx := context.Background()
	var n atomic.Int64

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			id := fmt.Sprintf("P%02d", n.Add(1)%products)
			err := ledger.WithTx(ctx, func(ctx context.Context, tx inventory.TxRepository) error {
				_, err := manager.Reserve(ctx, tx, id, 1)
				return err
			})
			if err != nil {
				b.Fatal(err)
			}
		}
	})
}
