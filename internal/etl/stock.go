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
)

// RecomputeStock sets dim_producto.stock_actual to the sum of the
// product's stock facts, floored at zero. Products without movements get
// zero. It returns the number of products updated.
func RecomputeStock(ctx context.Context, q DB) (int64, error) {
	withMovements, err := q.Exec(ctx, recomputeStockSQL)
	if err != nil {
		return 0, fmt.Errorf("failed to recompute stock: %w", err)
	}
	withoutMovements, err := q.Exec(ctx, zeroStockSQL)
	if err != nil {
		return 0, fmt.Errorf("failed to zero stock of products without movements: %w", err)
	}
	return withMovements.RowsAffected() + withoutMovements.RowsAffected(), nil
}
