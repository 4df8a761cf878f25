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

// SnapshotTxOptions is how the source is read: one read-only snapshot so
// that all seven result sets agree with each other.
var SnapshotTxOptions = pgx.TxOptions{
	IsoLevel:   pgx.RepeatableRead,
	AccessMode: pgx.ReadOnly,
}

// Extract reads everything the rebuild needs from the relational store.
// Soft-deleted products, and the sale lines and movements that reference
// them, are left out.
func Extract(ctx context.Context, q DB) (*SourceData, error) {
	var (
		data SourceData
		err  error
	)

	if data.Manufacturers, err = collect(ctx, q, "manufacturers", selectManufacturersSQL,
		func(row pgx.CollectableRow) (Manufacturer, error) {
			var m Manufacturer
			err := row.Scan(&m.ID, &m.Name)
			return m, err
		}); err != nil {
		return nil, err
	}

	if data.Categories, err = collect(ctx, q, "categories", selectCategoriesSQL,
		func(row pgx.CollectableRow) (Category, error) {
			var c Category
			err := row.Scan(&c.ID, &c.Name)
			return c, err
		}); err != nil {
		return nil, err
	}

	if data.Locations, err = collect(ctx, q, "locations", selectLocationsSQL,
		func(row pgx.CollectableRow) (Location, error) {
			var l Location
			err := row.Scan(&l.ID, &l.Description)
			return l, err
		}); err != nil {
		return nil, err
	}

	if data.Customers, err = collect(ctx, q, "customers", selectCustomersSQL,
		func(row pgx.CollectableRow) (Customer, error) {
			var c Customer
			err := row.Scan(&c.RUT, &c.Name)
			return c, err
		}); err != nil {
		return nil, err
	}

	if data.Products, err = collect(ctx, q, "products", selectActiveProductsSQL,
		func(row pgx.CollectableRow) (Product, error) {
			var p Product
			err := row.Scan(&p.ID, &p.Name, &p.ManufacturerID, &p.CategoryID,
				&p.SKU, &p.Cost, &p.Price, &p.Stock, &p.LocationID)
			return p, err
		}); err != nil {
		return nil, err
	}

	if data.Sales, err = collect(ctx, q, "sale lines", selectSaleLinesSQL,
		func(row pgx.CollectableRow) (SaleLine, error) {
			var s SaleLine
			err := row.Scan(&s.SaleID, &s.Receipt, &s.Date, &s.CustomerRUT,
				&s.ProductID, &s.Quantity, &s.UnitPrice, &s.Subtotal)
			return s, err
		}); err != nil {
		return nil, err
	}

	if data.Movements, err = collect(ctx, q, "movements", selectMovementsSQL,
		func(row pgx.CollectableRow) (Movement, error) {
			var m Movement
			err := row.Scan(&m.ID, &m.Date, &m.Type, &m.Quantity,
				&m.ProductID, &m.LocationID)
			return m, err
		}); err != nil {
		return nil, err
	}

	return &data, nil
}

func collect[T any](ctx context.Context, q DB, what, sql string, fn pgx.RowToFunc[T]) ([]T, error) {
	rows, err := q.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", what, err)
	}
	items, err := pgx.CollectRows(rows, fn)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", what, err)
	}
	return items, nil
}
