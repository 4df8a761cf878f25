//-------------------------------------------------------------------------
//
// pgEdge Stock ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pgEdge/pgedge-stocketl/internal/logging"
	"github.com/pgEdge/pgedge-stocketl/pkg/version"
)

// Run statuses stored in the ledger.
const (
	RunCommitted = "committed"
	RunFailed    = "failed"
)

// ErrNoRuns is returned by LastRun when the ledger is empty.
var ErrNoRuns = errors.New("no ETL runs recorded")

// Querier is the subset of pgx shared by *pgx.Conn, pgx.Tx and
// *pgxpool.Pool that the ledger needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Run is one row of the etl_runs ledger.
type Run struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Version    string
	Error      string

	Manufacturers    int
	Categories       int
	Locations        int
	Customers        int
	Products         int
	SalesFacts       int
	StockFacts       int
	SkippedMovements int
	DroppedSales     int
	DroppedMovements int
}

const insertRunSQL = `
INSERT INTO etl_runs (
    run_id, started_at, finished_at, status, version, error,
    fabricantes, categorias, ubicaciones, clientes, productos,
    hechos_ventas, hechos_stock, movimientos_omitidos, ventas_descartadas,
    movimientos_descartados
) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

const lastRunSQL = `
SELECT run_id, started_at, finished_at, status, version, COALESCE(error, ''),
       fabricantes, categorias, ubicaciones, clientes, productos,
       hechos_ventas, hechos_stock, movimientos_omitidos, ventas_descartadas,
       movimientos_descartados
FROM etl_runs
ORDER BY finished_at DESC
LIMIT 1`

// RecordRun appends run to the ledger. A committed run is recorded inside
// the run transaction; a failed one afterwards, on its own.
func RecordRun(ctx context.Context, q Querier, run *Run) error {
	if run.Version == "" {
		run.Version = version.Short()
	}
	_, err := q.Exec(ctx, insertRunSQL,
		run.ID, run.StartedAt, run.FinishedAt, run.Status, run.Version, run.Error,
		run.Manufacturers, run.Categories, run.Locations, run.Customers, run.Products,
		run.SalesFacts, run.StockFacts, run.SkippedMovements, run.DroppedSales, run.DroppedMovements)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}

	logging.Debug().
		Str("run_id", run.ID.String()).
		Str("status", run.Status).
		Msg("Recorded run")

	return nil
}

// LastRun returns the most recently finished run.
func LastRun(ctx context.Context, q Querier) (*Run, error) {
	var run Run
	err := q.QueryRow(ctx, lastRunSQL).Scan(
		&run.ID, &run.StartedAt, &run.FinishedAt, &run.Status, &run.Version, &run.Error,
		&run.Manufacturers, &run.Categories, &run.Locations, &run.Customers, &run.Products,
		&run.SalesFacts, &run.StockFacts, &run.SkippedMovements, &run.DroppedSales, &run.DroppedMovements)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last run: %w", err)
	}
	return &run, nil
}

// TableExists checks if a table exists in the current schema search path.
func TableExists(ctx context.Context, q Querier, table string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT FROM information_schema.tables
            WHERE table_schema = current_schema() AND table_name = $1
        )
    `, table).Scan(&exists)
	return exists, err
}
