//-------------------------------------------------------------------------
//
// pgEdge Stock ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package schema owns the DDL of both stores: the relational source schema
// and the star schema, including the movement-type reference rows the ETL
// expects to find. Migrations are embedded and applied with golang-migrate.
package schema

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/pgEdge/pgedge-stocketl/internal/config"
	"github.com/pgEdge/pgedge-stocketl/internal/logging"
)

//go:embed migrations
var migrationsFS embed.FS

// Target selects which store a migration set applies to.
type Target string

// Migration targets.
const (
	TargetSource Target = "source"
	TargetStar   Target = "star"
)

// Dir returns the embedded directory holding the target's migrations.
func (t Target) Dir() string {
	return "migrations/" + string(t)
}

// MigrationsTable returns the table golang-migrate records versions in.
// Each set gets its own so both can live in one database.
func (t Target) MigrationsTable() string {
	return "stocketl_" + string(t) + "_migrations"
}

// ParseTargets expands the --target flag value.
func ParseTargets(s string) ([]Target, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "source", "transactional":
		return []Target{TargetSource}, nil
	case "star":
		return []Target{TargetStar}, nil
	case "", "all":
		return []Target{TargetSource, TargetStar}, nil
	default:
		return nil, fmt.Errorf("unknown migration target %q (use source, star or all)", s)
	}
}

// migrateLogger adapts the global zerolog logger to migrate.Logger.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...any) {
	logging.Debug().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (migrateLogger) Verbose() bool {
	return false
}

func newMigrate(target Target, cfg config.DBConfig) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, target.Dir())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s migrations: %w", target, err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, cfg.MigrateURL(target.MigrationsTable()))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s migration instance: %w", target, err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

// run executes fn against a fresh migrate instance, asking it to stop
// between migrations when ctx is cancelled.
func run(ctx context.Context, target Target, cfg config.DBConfig, fn func(m *migrate.Migrate) error) error {
	m, err := newMigrate(target, cfg)
	if err != nil {
		return err
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logging.Warn().Err(srcErr).Msg("Failed to close migration source")
		}
		if dbErr != nil {
			logging.Warn().Err(dbErr).Msg("Failed to close migration database")
		}
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.GracefulStop <- true
		case <-done:
		}
	}()

	return fn(m)
}

// Up applies all pending migrations of target.
func Up(ctx context.Context, target Target, cfg config.DBConfig) error {
	return run(ctx, target, cfg, func(m *migrate.Migrate) error {
		err := m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			logging.Info().
				Str("target", string(target)).
				Msg("No migrations to apply (database up-to-date)")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to run %s migrations: %w", target, err)
		}

		newVersion, _, _ := m.Version()
		logging.Info().
			Str("target", string(target)).
			Uint("version", newVersion).
			Msg("Applied migrations successfully")
		return nil
	})
}

// Down reverts every migration of target, dropping its tables.
func Down(ctx context.Context, target Target, cfg config.DBConfig) error {
	return run(ctx, target, cfg, func(m *migrate.Migrate) error {
		err := m.Down()
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to revert %s migrations: %w", target, err)
		}
		logging.Info().
			Str("target", string(target)).
			Msg("Reverted migrations")
		return nil
	})
}

// Version reports the applied version of target and whether the last
// migration left it dirty. A store with no migrations reports version 0.
func Version(ctx context.Context, target Target, cfg config.DBConfig) (uint, bool, error) {
	var (
		version uint
		dirty   bool
	)
	err := run(ctx, target, cfg, func(m *migrate.Migrate) error {
		var err error
		version, dirty, err = m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		return err
	})
	return version, dirty, err
}
