package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockflow/internal/catalog"
	"github.com/odyssey-erp/stockflow/internal/inventory"
)

type seedSupplier struct {
	name  string
	email string
}

type seedProduct struct {
	id       string
	name     string
	category string
	price    string
	status   catalog.ProductStatus
	stock    int
	minLevel int
}

var demoSuppliers = []seedSupplier{
	{"Borneo Packaging", "orders@borneo-packaging.example"},
	{"Sumatra Fasteners", "sales@sumatra-fasteners.example"},
}

var demoProducts = []seedProduct{
	{"PRD-WRAP-500", "Pallet wrap 500mm", "Packaging", "18.50", catalog.ProductActive, 120, 40},
	{"PRD-TAPE-48", "Carton tape 48mm", "Packaging", "2.75", catalog.ProductActive, 30, 50},
	{"PRD-BOLT-M8", "Hex bolt M8x40", "Fasteners", "0.35", catalog.ProductActive, 4000, 500},
	{"PRD-LABEL-A6", "Thermal label A6", "Packaging", "0.04", catalog.ProductPlanning, 0, 0},
}

// ledgerCreator is implemented by inventory.Service.
type ledgerCreator interface {
	CreateEntry(ctx context.Context, input inventory.CreateEntryInput) (inventory.LedgerEntry, error)
}

// seedDemo inserts demo catalog rows and ledger entries. Rows that already
// exist are left untouched so the command can be rerun.
func seedDemo(ctx context.Context, out io.Writer, pool *pgxpool.Pool, ledger ledgerCreator) error {
	fmt.Fprintln(out, "→ Seeding suppliers...")
	for _, s := range demoSuppliers {
		_, err := pool.Exec(ctx, `
			INSERT INTO suppliers (name, email)
			SELECT $1, $2
			WHERE NOT EXISTS (SELECT 1 FROM suppliers WHERE email = $2)`, s.name, s.email)
		if err != nil {
			return fmt.Errorf("seed supplier %s: %w", s.name, err)
		}
	}

	fmt.Fprintln(out, "→ Seeding products...")
	for _, p := range demoProducts {
		price, err := decimal.NewFromString(p.price)
		if err != nil {
			return fmt.Errorf("seed product %s: %w", p.id, err)
		}
		_, err = pool.Exec(ctx, `
			INSERT INTO products (id, name, category, price, status)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING`, p.id, p.name, p.category, price.StringFixed(2), string(p.status))
		if err != nil {
			return fmt.Errorf("seed product %s: %w", p.id, err)
		}
	}

	fmt.Fprintln(out, "→ Seeding stock ledger...")
	return seedLedger(ctx, out, ledger)
}

func seedLedger(ctx context.Context, out io.Writer, ledger ledgerCreator) error {
	for _, p := range demoProducts {
		if p.status == catalog.ProductPlanning {
			continue
		}
		entry, err := ledger.CreateEntry(ctx, inventory.CreateEntryInput{
			ProductID:    p.id,
			Location:     "WH-A",
			CurrentStock: p.stock,
			MinLevel:     p.minLevel,
		})
		if errors.Is(err, inventory.ErrLedgerExists) {
			continue
		}
		if err != nil {
			return fmt.Errorf("seed ledger %s: %w", p.id, err)
		}
		fmt.Fprintf(out, "  %s %s stock=%d min=%d\n", entry.SKU, entry.Status, entry.CurrentStock, entry.MinLevel)
	}
	return nil
}
