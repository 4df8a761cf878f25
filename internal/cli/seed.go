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

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-stocketl/internal/datagen"
	"github.com/pgEdge/pgedge-stocketl/internal/db"
	"github.com/pgEdge/pgedge-stocketl/internal/logging"
	"github.com/pgEdge/pgedge-stocketl/internal/schema"
)

var (
	seedCustomers    int
	seedProducts     int
	seedMonths       int
	seedDeletedRatio float64
	seedRandomSeed   uint64
	seedMigrate      bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill the transactional store with generated test data",
	Long: `Replace the contents of the transactional store with a generated
history: catalogs, customers, products, monthly sales and the stock
movements that go with them. A fraction of the products is soft-deleted.

All existing source data is removed. The whole seed runs in one
transaction.

Example:
  pgedge-stocketl seed --customers 150 --products 200 --months 36
  pgedge-stocketl seed --seed 42 --migrate`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().IntVar(&seedCustomers, "customers", 0,
		"number of customers (default: 150)")
	seedCmd.Flags().IntVar(&seedProducts, "products", 0,
		"number of products (default: 200)")
	seedCmd.Flags().IntVar(&seedMonths, "months", 0,
		"months of sales history (default: 36)")
	seedCmd.Flags().Float64Var(&seedDeletedRatio, "deleted-ratio", -1,
		"fraction of products to soft-delete (default: 0.05)")
	seedCmd.Flags().Uint64Var(&seedRandomSeed, "seed", 0,
		"random seed for reproducible data (0 = random)")
	seedCmd.Flags().BoolVar(&seedMigrate, "migrate", false,
		"apply the source schema migrations first")
}

func runSeed(cmd *cobra.Command, args []string) error {
	// Override config with CLI flags
	if seedCustomers > 0 {
		cfg.Seed.Customers = seedCustomers
	}
	if seedProducts > 0 {
		cfg.Seed.Products = seedProducts
	}
	if seedMonths > 0 {
		cfg.Seed.Months = seedMonths
	}
	if seedDeletedRatio >= 0 {
		cfg.Seed.DeletedRatio = seedDeletedRatio
	}
	if seedRandomSeed != 0 {
		cfg.Seed.Seed = seedRandomSeed
	}

	// Validate configuration
	if err := cfg.ValidateSeed(); err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	if seedMigrate {
		if err := schema.Up(ctx, schema.TargetSource, cfg.Source); err != nil {
			return err
		}
	}

	logging.Info().
		Int("customers", cfg.Seed.Customers).
		Int("products", cfg.Seed.Products).
		Int("months", cfg.Seed.Months).
		Msg("Seeding transactional store")

	pool, err := db.Connect(ctx, cfg.Source, "seed")
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	var gen datagen.Generator = datagen.NewSourceGenerator(datagen.NewSourceConfig(cfg.Seed))
	if err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return gen.Generate(ctx, tx)
	}); err != nil {
		logging.Error().Err(err).Msg("Seed failed")
		return fmt.Errorf("failed to generate data: %w", err)
	}

	logging.Info().Msg("Seed complete")
	return nil
}
