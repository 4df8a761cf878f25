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
	"strings"

	"github.com/jackc/pgx/v5"
)

// RowQuerier is what the integrity checks need.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// IntegrityCheck counts rows whose non-null Column does not match any
// RefColumn in RefTable.
type IntegrityCheck struct {
	Table     string
	Column    string
	RefTable  string
	RefColumn string
}

// Name identifies the check in logs and reports.
func (c IntegrityCheck) Name() string {
	return c.Table + "." + c.Column
}

// SQL returns the counting query.
func (c IntegrityCheck) SQL() string {
	return fmt.Sprintf(`
SELECT count(*)
FROM %[1]s t
WHERE t.%[2]s IS NOT NULL
  AND NOT EXISTS (SELECT 1 FROM %[3]s r WHERE r.%[4]s = t.%[2]s)`,
		c.Table, c.Column, c.RefTable, c.RefColumn)
}

// IntegrityChecks covers every foreign key of the star schema.
var IntegrityChecks = []IntegrityCheck{
	{Table: "hechos_ventas", Column: "producto_fk", RefTable: "dim_producto", RefColumn: "producto_id"},
	{Table: "hechos_ventas", Column: "cliente_fk", RefTable: "dim_cliente", RefColumn: "cliente_id"},
	{Table: "hechos_stock", Column: "producto_fk", RefTable: "dim_producto", RefColumn: "producto_id"},
	{Table: "hechos_stock", Column: "ubicacion_fk", RefTable: "dim_ubicacion", RefColumn: "ubicacion_id"},
	{Table: "hechos_stock", Column: "tipo_movimiento_fk", RefTable: "dim_movimiento", RefColumn: "id"},
	{Table: "dim_producto", Column: "fabricante_fk", RefTable: "dim_fabricante", RefColumn: "fabricante_id"},
	{Table: "dim_producto", Column: "categoria_fk", RefTable: "dim_categoria", RefColumn: "categoria_id"},
	{Table: "dim_producto", Column: "ubicacion_fk", RefTable: "dim_ubicacion", RefColumn: "ubicacion_id"},
}

// IntegrityCount is the result of one check.
type IntegrityCount struct {
	Check    IntegrityCheck
	Dangling int64
}

// Integrity runs every check and returns the counts in check order.
func Integrity(ctx context.Context, q RowQuerier) ([]IntegrityCount, error) {
	counts := make([]IntegrityCount, 0, len(IntegrityChecks))
	for _, check := range IntegrityChecks {
		var n int64
		if err := q.QueryRow(ctx, check.SQL()).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to check %s: %w", check.Name(), err)
		}
		counts = append(counts, IntegrityCount{Check: check, Dangling: n})
	}
	return counts, nil
}

// Verify fails with ErrIntegrity if any check finds dangling references.
func Verify(ctx context.Context, q RowQuerier) error {
	counts, err := Integrity(ctx, q)
	if err != nil {
		return err
	}

	var failed []string
	for _, c := range counts {
		if c.Dangling > 0 {
			failed = append(failed, fmt.Sprintf("%s (%d)", c.Check.Name(), c.Dangling))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w: dangling references in %s", ErrIntegrity, strings.Join(failed, ", "))
	}
	return nil
}
