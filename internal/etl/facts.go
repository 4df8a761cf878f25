//-------------------------------------------------------------------------
//
// pgEdge Stock ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package etl

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// SkippedMovement is a stock movement left out because its source code is
// outside the movement vocabulary.
type SkippedMovement struct {
	ID   int64
	Code string
}

// FactCounts summarizes a fact load.
type FactCounts struct {
	Sales int
	Stock int

	// DroppedSales and DroppedMovements count rows whose product has no
	// dim_producto row.
	DroppedSales     int
	DroppedMovements int

	Skipped []SkippedMovement
}

// costCache reads unit costs from dim_producto, once per product.
type costCache struct {
	q     DB
	costs map[int64]int64
}

func newCostCache(q DB) *costCache {
	return &costCache{q: q, costs: make(map[int64]int64)}
}

func (c *costCache) unitCost(ctx context.Context, productID int64) (int64, error) {
	if cost, ok := c.costs[productID]; ok {
		return cost, nil
	}
	var cost int64
	if err := c.q.QueryRow(ctx, selectProductCostSQL, productID).Scan(&cost); err != nil {
		return 0, fmt.Errorf("failed to read cost of product %d: %w", productID, err)
	}
	c.costs[productID] = cost
	return cost, nil
}

// LoadFacts writes hechos_ventas and hechos_stock. Every foreign key goes
// through keys or resolver. Movements with unmapped codes are skipped with
// a warning; a code whose canonical row is missing aborts the load.
func LoadFacts(ctx context.Context, q DB, data *SourceData, keys *KeyMaps, resolver *MovementResolver, log zerolog.Logger) (*FactCounts, error) {
	counts := &FactCounts{}
	costs := newCostCache(q)

	saleRows := make([][]any, 0, len(data.Sales))
	for _, line := range data.Sales {
		if _, ok := keys.Products[line.ProductID]; !ok {
			counts.DroppedSales++
			log.Debug().
				Int64("venta_id", line.SaleID).
				Int64("producto_id", line.ProductID).
				Msg("Dropping sale line for product not in dim_producto")
			continue
		}
		cost, err := costs.unitCost(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		saleRows = append(saleRows, saleFactRow(line, keys, cost))
	}

	stockRows := make([][]any, 0, len(data.Movements))
	for _, m := range data.Movements {
		if _, ok := keys.Products[m.ProductID]; !ok {
			counts.DroppedMovements++
			log.Debug().
				Int64("movimiento_id", m.ID).
				Int64("producto_id", m.ProductID).
				Msg("Dropping movement for product not in dim_producto")
			continue
		}

		res := resolver.Resolve(m.Type)
		switch res.Kind {
		case Resolved:
			stockRows = append(stockRows, stockFactRow(m, keys, res.ID))
		case Unmapped:
			counts.Skipped = append(counts.Skipped, SkippedMovement{ID: m.ID, Code: m.Type})
			log.Warn().
				Int64("movimiento_id", m.ID).
				Str("tipo", m.Type).
				Msg("Movement type not mapped, skipping movement")
		case MissingEssential:
			return nil, fmt.Errorf("movement %d: %w %s", m.ID, ErrMissingMovementType, res.Code)
		}
	}

	if len(saleRows) > 0 {
		n, err := q.CopyFrom(ctx, pgx.Identifier{salesFactTable}, salesFactColumns, pgx.CopyFromRows(saleRows))
		if err != nil {
			return nil, fmt.Errorf("failed to copy sales facts: %w", err)
		}
		counts.Sales = int(n)
	}

	if len(stockRows) > 0 {
		n, err := q.CopyFrom(ctx, pgx.Identifier{stockFactTable}, stockFactColumns, pgx.CopyFromRows(stockRows))
		if err != nil {
			return nil, fmt.Errorf("failed to copy stock facts: %w", err)
		}
		counts.Stock = int(n)
	}

	return counts, nil
}

// saleFactRow builds a hechos_ventas row. The total is the line subtotal;
// the unit cost is the dim_producto snapshot.
func saleFactRow(line SaleLine, keys *KeyMaps, unitCost int64) []any {
	var customer any
	if line.CustomerRUT != nil {
		if id, ok := keys.Customers[*line.CustomerRUT]; ok {
			customer = id
		}
	}
	return []any{
		ReceiptNumber(line.Receipt),
		line.ProductID,
		line.Date,
		customer,
		line.Quantity,
		unitCost,
		line.Subtotal,
	}
}

// stockFactRow builds a hechos_stock row for a resolved movement.
func stockFactRow(m Movement, keys *KeyMaps, movementTypeID int64) []any {
	return []any{
		m.ProductID,
		m.Date,
		lookup(keys.Locations, m.LocationID),
		movementTypeID,
		m.Quantity,
	}
}
