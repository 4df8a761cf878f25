//-------------------------------------------------------------------------
//
// pgEdge Stock ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package report summarises the contents of the star schema after a run.
package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pgEdge/pgedge-stocketl/internal/db"
	"github.com/pgEdge/pgedge-stocketl/internal/etl"
)

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Tables are the star schema tables, in the order they are reported.
var Tables = []string{
	"dim_fabricante", "dim_categoria", "dim_ubicacion", "dim_cliente",
	"dim_producto", "dim_movimiento", "hechos_ventas", "hechos_stock",
}

const (
	stockSummarySQL = `
SELECT count(*),
       count(*) FILTER (WHERE stock_actual > 0),
       count(*) FILTER (WHERE stock_actual <= 0),
       COALESCE(avg(stock_actual), 0)::float8,
       COALESCE(sum(stock_actual), 0)::bigint
FROM dim_producto`

	salesByYearSQL = `
SELECT EXTRACT(YEAR FROM fecha)::int AS anio,
       count(*),
       COALESCE(sum(total_venta), 0)::bigint,
       COALESCE(avg(total_venta), 0)::float8
FROM hechos_ventas
GROUP BY anio
ORDER BY anio`

	movementsByTypeSQL = `
SELECT m.tipo_movimiento,
       count(s.movimiento_id),
       COALESCE(sum(s.cantidad), 0)::bigint
FROM dim_movimiento m
LEFT JOIN hechos_stock s ON s.tipo_movimiento_fk = m.id
GROUP BY m.tipo_movimiento
ORDER BY m.tipo_movimiento`
)

func countSQL(table string) string {
	return "SELECT count(*) FROM " + pgx.Identifier{table}.Sanitize()
}

// TableCount is the number of rows in one table.
type TableCount struct {
	Table string
	Rows  int64
}

// StockSummary describes dim_producto.stock_actual.
type StockSummary struct {
	Products     int64
	WithStock    int64
	WithoutStock int64
	AverageStock float64
	TotalUnits   int64
}

// YearSales aggregates the sales facts of one calendar year.
type YearSales struct {
	Year    int
	Lines   int64
	Revenue int64
	Average float64
}

// MovementTotal aggregates the stock facts of one movement type.
type MovementTotal struct {
	Code      string
	Movements int64
	Units     int64
}

// Summary is everything the report prints.
type Summary struct {
	Tables      []TableCount
	Integrity   []etl.IntegrityCount
	Stock       StockSummary
	SalesByYear []YearSales
	Movements   []MovementTotal

	// LastRun is nil when no run has been recorded.
	LastRun *db.Run
}

// Build queries the star schema.
func Build(ctx context.Context, q Querier) (*Summary, error) {
	var s Summary

	for _, table := range Tables {
		var n int64
		if err := q.QueryRow(ctx, countSQL(table)).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		s.Tables = append(s.Tables, TableCount{Table: table, Rows: n})
	}

	var err error
	if s.Integrity, err = etl.Integrity(ctx, q); err != nil {
		return nil, err
	}

	if err := q.QueryRow(ctx, stockSummarySQL).Scan(&s.Stock.Products, &s.Stock.WithStock,
		&s.Stock.WithoutStock, &s.Stock.AverageStock, &s.Stock.TotalUnits); err != nil {
		return nil, fmt.Errorf("failed to summarise stock: %w", err)
	}

	rows, err := q.Query(ctx, salesByYearSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales by year: %w", err)
	}
	s.SalesByYear, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (YearSales, error) {
		var y YearSales
		err := row.Scan(&y.Year, &y.Lines, &y.Revenue, &y.Average)
		return y, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read sales by year: %w", err)
	}

	rows, err = q.Query(ctx, movementsByTypeSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements by type: %w", err)
	}
	s.Movements, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (MovementTotal, error) {
		var m MovementTotal
		err := row.Scan(&m.Code, &m.Movements, &m.Units)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read movements by type: %w", err)
	}

	exists, err := db.TableExists(ctx, q, "etl_runs")
	if err != nil {
		return nil, fmt.Errorf("failed to look for the run ledger: %w", err)
	}
	if exists {
		s.LastRun, err = db.LastRun(ctx, q)
		if errors.Is(err, db.ErrNoRuns) {
			s.LastRun, err = nil, nil
		}
		if err != nil {
			return nil, err
		}
	}

	return &s, nil
}

// Dangling returns the total number of dangling references found.
func (s *Summary) Dangling() int64 {
	var n int64
	for _, c := range s.Integrity {
		n += c.Dangling
	}
	return n
}

// Write prints the summary as aligned text.
func (s *Summary) Write(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "Table row counts")
	for _, t := range s.Tables {
		fmt.Fprintf(w, "  %s\t%d\n", t.Table, t.Rows)
	}

	fmt.Fprintln(w, "\nIntegrity (dangling references)")
	for _, c := range s.Integrity {
		fmt.Fprintf(w, "  %s -> %s\t%d\n", c.Check.Name(), c.Check.RefTable, c.Dangling)
	}

	fmt.Fprintln(w, "\nProduct stock")
	fmt.Fprintf(w, "  products\t%d\n", s.Stock.Products)
	fmt.Fprintf(w, "  with stock\t%d\n", s.Stock.WithStock)
	fmt.Fprintf(w, "  without stock\t%d\n", s.Stock.WithoutStock)
	fmt.Fprintf(w, "  average stock\t%.2f\n", s.Stock.AverageStock)
	fmt.Fprintf(w, "  total units\t%d\n", s.Stock.TotalUnits)

	fmt.Fprintln(w, "\nSales by year")
	if len(s.SalesByYear) == 0 {
		fmt.Fprintln(w, "  (none)")
	} else {
		fmt.Fprintln(w, "  year\tlines\trevenue\taverage")
		for _, y := range s.SalesByYear {
			fmt.Fprintf(w, "  %d\t%d\t%d\t%.2f\n", y.Year, y.Lines, y.Revenue, y.Average)
		}
	}

	fmt.Fprintln(w, "\nMovements by type")
	fmt.Fprintln(w, "  type\tmovements\tunits")
	for _, m := range s.Movements {
		fmt.Fprintf(w, "  %s\t%d\t%d\n", m.Code, m.Movements, m.Units)
	}

	fmt.Fprintln(w, "\nLast run")
	if r := s.LastRun; r == nil {
		fmt.Fprintln(w, "  (none)")
	} else {
		fmt.Fprintf(w, "  id\t%s\n", r.ID)
		fmt.Fprintf(w, "  status\t%s\n", r.Status)
		fmt.Fprintf(w, "  version\t%s\n", r.Version)
		fmt.Fprintf(w, "  finished\t%s\n", r.FinishedAt.Format(time.RFC3339))
		fmt.Fprintf(w, "  duration\t%s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
		if r.Error != "" {
			fmt.Fprintf(w, "  error\t%s\n", r.Error)
		}
		fmt.Fprintf(w, "  sales facts\t%d\n", r.SalesFacts)
		fmt.Fprintf(w, "  stock facts\t%d\n", r.StockFacts)
		fmt.Fprintf(w, "  skipped movements\t%d\n", r.SkippedMovements)
		fmt.Fprintf(w, "  dropped sales\t%d\n", r.DroppedSales)
		fmt.Fprintf(w, "  dropped movements\t%d\n", r.DroppedMovements)
	}

	return w.Flush()
}
