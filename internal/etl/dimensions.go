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
)

// Truncate empties every rebuilt star table and restarts its identity.
func Truncate(ctx context.Context, q DB) error {
	if _, err := q.Exec(ctx, truncateStarSQL); err != nil {
		return fmt.Errorf("failed to truncate star schema: %w", err)
	}
	return nil
}

// LoadDimensions inserts the dimension rows and returns the key maps the
// fact loader translates through. It performs no existence checks and is
// only correct right after Truncate.
func LoadDimensions(ctx context.Context, q DB, data *SourceData) (*KeyMaps, error) {
	keys := NewKeyMaps()

	for _, m := range data.Manufacturers {
		var id int64
		if err := q.QueryRow(ctx, insertManufacturerSQL, m.Name).Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to insert manufacturer %d: %w", m.ID, err)
		}
		keys.Manufacturers[m.ID] = id
	}

	for _, c := range data.Categories {
		var id int64
		if err := q.QueryRow(ctx, insertCategorySQL, c.Name).Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to insert category %d: %w", c.ID, err)
		}
		keys.Categories[c.ID] = id
	}

	for _, l := range data.Locations {
		var id int64
		if err := q.QueryRow(ctx, insertLocationSQL, LocationCode(l.ID), l.Description).Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to insert location %d: %w", l.ID, err)
		}
		keys.Locations[l.ID] = id
	}

	if len(data.Customers) > 0 {
		rows := customerRows(data.Customers, keys)
		if _, err := q.CopyFrom(ctx, pgx.Identifier{customerTable}, customerColumns, pgx.CopyFromRows(rows)); err != nil {
			return nil, fmt.Errorf("failed to copy customers: %w", err)
		}
	}

	if len(data.Products) > 0 {
		rows := make([][]any, 0, len(data.Products))
		for _, p := range data.Products {
			rows = append(rows, productRow(p, keys))
			keys.Products[p.ID] = struct{}{}
		}
		if _, err := q.CopyFrom(ctx, pgx.Identifier{productTable}, productColumns, pgx.CopyFromRows(rows)); err != nil {
			return nil, fmt.Errorf("failed to copy products: %w", err)
		}
	}

	return keys, nil
}

// customerRows numbers customers 1..N in enumeration order and records the
// assignment in keys.
func customerRows(customers []Customer, keys *KeyMaps) [][]any {
	rows := make([][]any, 0, len(customers))
	for i, c := range customers {
		id := int64(i + 1)
		keys.Customers[c.RUT] = id
		rows = append(rows, []any{id, c.RUT, c.Name})
	}
	return rows
}

// productRow keeps the source product id and re-points the manufacturer,
// category and location references. Unknown references become NULL.
func productRow(p Product, keys *KeyMaps) []any {
	return []any{
		p.ID,
		p.Name,
		lookup(keys.Manufacturers, p.ManufacturerID),
		lookup(keys.Categories, p.CategoryID),
		p.SKU,
		p.Cost,
		p.Price,
		p.Stock,
		lookup(keys.Locations, p.LocationID),
	}
}
