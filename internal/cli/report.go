//-------------------------------------------------------------------------
//
// pgEdge Stock ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-stocketl/internal/db"
	"github.com/pgEdge/pgedge-stocketl/internal/etl"
	"github.com/pgEdge/pgedge-stocketl/internal/report"
)

var reportStrict bool

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarise the contents of the star schema",
	Long: `Print row counts, referential integrity counters, a product stock
summary, sales by year, movements by type and the last recorded run.

Example:
  pgedge-stocketl report
  pgedge-stocketl report --strict`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().BoolVar(&reportStrict, "strict", false,
		"exit with an error if any dangling reference is found")
}

func runReport(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateStar(); err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Star, "report")
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	summary, err := report.Build(ctx, pool)
	if err != nil {
		return err
	}
	if err := summary.Write(cmd.OutOrStdout()); err != nil {
		return err
	}

	if n := summary.Dangling(); reportStrict && n > 0 {
		return fmt.Errorf("%w: %d dangling references", etl.ErrIntegrity, n)
	}
	return nil
}
