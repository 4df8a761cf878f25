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

	"github.com/pgEdge/pgedge-stocketl/internal/config"
	"github.com/pgEdge/pgedge-stocketl/internal/logging"
	"github.com/pgEdge/pgedge-stocketl/internal/schema"
)

var (
	migrateTarget       string
	migrateDropExisting bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schemas",
	Long: `Apply the embedded schema migrations to the transactional store, the
star store, or both. Each store records its applied version in its own
migrations table.

Example:
  pgedge-stocketl migrate
  pgedge-stocketl migrate --target star --drop-existing`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateTarget, "target", "all",
		"schema to migrate: source, star or all")
	migrateCmd.Flags().BoolVar(&migrateDropExisting, "drop-existing", false,
		"roll back every migration before applying them again")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	targets, err := schema.ParseTargets(migrateTarget)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	for _, target := range targets {
		var dbCfg config.DBConfig
		switch target {
		case schema.TargetSource:
			err = cfg.ValidateSource()
			dbCfg = cfg.Source
		case schema.TargetStar:
			err = cfg.ValidateStar()
			dbCfg = cfg.Star
		}
		if err != nil {
			return err
		}

		if migrateDropExisting {
			logging.Warn().Str("target", string(target)).Msg("Dropping existing schema")
			if err := schema.Down(ctx, target, dbCfg); err != nil {
				logging.Error().Err(err).Str("target", string(target)).Msg("Rollback of existing schema failed")
				return err
			}
		}

		if err := schema.Up(ctx, target, dbCfg); err != nil {
			logging.Error().Err(err).Str("target", string(target)).Msg("Migration failed")
			return err
		}

		version, dirty, err := schema.Version(ctx, target, dbCfg)
		if err != nil {
			return err
		}
		logging.Info().
			Str("target", string(target)).
			Uint("version", version).
			Bool("dirty", dirty).
			Msg("Schema is up to date")
	}

	return nil
}
