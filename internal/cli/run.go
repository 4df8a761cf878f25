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
	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-stocketl/internal/etl"
	"github.com/pgEdge/pgedge-stocketl/internal/logging"
)

var (
	runNoRecompute bool
	runNoVerify    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Rebuild the star schema from the transactional store",
	Long: `Truncate the star schema and reload every dimension and fact from the
transactional store. Soft-deleted products and their history are left out.

Both stores must be configured, either in the config file or with the
DB_TRANS_* and DB_STAR_* environment variables (HOST, PORT, NAME, USER,
PASS). The run fails before connecting if any of them is missing.

Example:
  pgedge-stocketl run
  pgedge-stocketl run --no-recompute-stock --log-level debug`,
	RunE: runETL,
}

func init() {
	addRunFlags(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&runNoRecompute, "no-recompute-stock", false,
		"keep the source stock instead of recomputing it from the movements")
	cmd.Flags().BoolVar(&runNoVerify, "no-verify", false,
		"skip the referential integrity check before commit")
}

func runETL(cmd *cobra.Command, args []string) error {
	// Override config with CLI flags
	if runNoRecompute {
		cfg.ETL.RecomputeStock = false
	}
	if runNoVerify {
		cfg.ETL.Verify = false
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	pipeline := etl.New(cfg)
	res, err := pipeline.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			logging.Warn().Msg("ETL interrupted; star schema left unchanged")
		}
		return err
	}

	for _, s := range res.Skipped {
		logging.Debug().
			Int64("movimiento_id", s.ID).
			Str("tipo", s.Code).
			Msg("Skipped movement")
	}

	return nil
}
