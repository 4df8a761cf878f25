//-------------------------------------------------------------------------
//
// pgEdge Stock ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package etl rebuilds the star schema from the relational store.
//
// A run extracts the source inside one read-only snapshot and performs all
// destination work (truncate, dimensions, facts, stock recompute,
// verification and the ledger row) inside one transaction, so a failed run
// leaves the star schema exactly as it was.
package etl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/pgEdge/pgedge-stocketl/internal/config"
	"github.com/pgEdge/pgedge-stocketl/internal/db"
	"github.com/pgEdge/pgedge-stocketl/internal/logging"
)

// State is a step of a run. Runs move through the states in order and end
// in Committed or Failed.
type State int

const (
	Idle State = iota
	Connecting
	Truncating
	Extracting
	LoadingDimensions
	ResolvingMovementTypes
	LoadingFacts
	Committed
	Failed
)

var stateNames = map[State]string{
	Idle:                   "idle",
	Connecting:             "connecting",
	Truncating:             "truncating",
	Extracting:             "extracting",
	LoadingDimensions:      "loading dimensions",
	ResolvingMovementTypes: "resolving movement types",
	LoadingFacts:           "loading facts",
	Committed:              "committed",
	Failed:                 "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Committed || s == Failed
}

// Connector opens the dedicated connection for one store. role is
// "source" or "star".
type Connector func(ctx context.Context, cfg config.DBConfig, role string) (Conn, error)

// DefaultConnector opens a single pgx connection.
func DefaultConnector(ctx context.Context, cfg config.DBConfig, role string) (Conn, error) {
	conn, err := db.ConnectSingle(ctx, cfg, role)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithConnector replaces the connection factory.
func WithConnector(c Connector) Option {
	return func(p *Pipeline) {
		p.connect = c
	}
}

// Result describes a committed run.
type Result struct {
	// Run is the row written to etl_runs.
	Run db.Run

	// Skipped lists movements left out for unmapped codes.
	Skipped []SkippedMovement

	// StockUpdated is the number of products whose stock was recomputed.
	StockUpdated int64
}

// Pipeline runs the ETL once.
type Pipeline struct {
	cfg     *config.Config
	connect Connector
	runID   uuid.UUID
	log     zerolog.Logger
	state   State
}

// New creates a pipeline for one run with the given configuration.
func New(cfg *config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:     cfg,
		connect: DefaultConnector,
		runID:   uuid.New(),
		state:   Idle,
	}
	p.log = logging.With("run_id", p.runID.String())
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunID identifies this run in logs and in etl_runs.
func (p *Pipeline) RunID() uuid.UUID {
	return p.runID
}

// State returns the current state.
func (p *Pipeline) State() State {
	return p.state
}

func (p *Pipeline) transition(s State) {
	p.log.Info().
		Str("from", p.state.String()).
		Str("to", s.String()).
		Msg("ETL state change")
	p.state = s
}

func (p *Pipeline) fail(err error) error {
	stageErr := &StageError{Stage: p.state, Err: err}
	p.state = Failed
	p.log.Error().
		Err(err).
		Str("stage", stageErr.Stage.String()).
		Msg("ETL failed")
	return stageErr
}

// Run executes the pipeline. On failure the returned error is a
// *StageError and the star schema is unchanged.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if p.state != Idle {
		return nil, fmt.Errorf("pipeline %s already ran (state %s)", p.runID, p.state)
	}

	res := &Result{Run: db.Run{ID: p.runID, StartedAt: time.Now().UTC()}}

	p.transition(Connecting)
	src, err := p.connect(ctx, p.cfg.Source, "source")
	if err != nil {
		return nil, p.fail(fmt.Errorf("source store: %w", err))
	}
	defer p.close(src, "source")

	dst, err := p.connect(ctx, p.cfg.Star, "star")
	if err != nil {
		return nil, p.fail(fmt.Errorf("star store: %w", err))
	}
	defer p.close(dst, "star")

	if err := p.load(ctx, src, dst, res); err != nil {
		stageErr := p.fail(err)
		// The ledger row is the only write a failed run leaves behind;
		// every star table is back to its state before the run.
		p.recordFailure(ctx, dst, res, stageErr)
		return nil, stageErr
	}

	p.transition(Committed)
	p.log.Info().
		Int("fabricantes", res.Run.Manufacturers).
		Int("categorias", res.Run.Categories).
		Int("ubicaciones", res.Run.Locations).
		Int("clientes", res.Run.Customers).
		Int("productos", res.Run.Products).
		Int("hechos_ventas", res.Run.SalesFacts).
		Int("hechos_stock", res.Run.StockFacts).
		Int("movimientos_omitidos", res.Run.SkippedMovements).
		Dur("elapsed", res.Run.FinishedAt.Sub(res.Run.StartedAt)).
		Msg("ETL completed successfully")

	return res, nil
}

// load performs every destination step inside one transaction.
func (p *Pipeline) load(ctx context.Context, src, dst Conn, res *Result) (err error) {
	tx, err := dst.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin star transaction: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			p.log.Warn().Err(rbErr).Msg("Failed to roll back star transaction")
		}
	}()

	p.transition(Truncating)
	if err = Truncate(ctx, tx); err != nil {
		return err
	}

	p.transition(Extracting)
	data, err := p.extract(ctx, src)
	if err != nil {
		return err
	}

	p.transition(LoadingDimensions)
	keys, err := LoadDimensions(ctx, tx, data)
	if err != nil {
		return err
	}
	res.Run.Manufacturers = len(keys.Manufacturers)
	res.Run.Categories = len(keys.Categories)
	res.Run.Locations = len(keys.Locations)
	res.Run.Customers = len(keys.Customers)
	res.Run.Products = len(keys.Products)

	p.transition(ResolvingMovementTypes)
	resolver, err := LoadMovementTypes(ctx, tx)
	if err != nil {
		return err
	}
	if err = resolver.Check(data.Movements, p.log); err != nil {
		return err
	}

	p.transition(LoadingFacts)
	facts, err := LoadFacts(ctx, tx, data, keys, resolver, p.log)
	if err != nil {
		return err
	}
	res.Run.SalesFacts = facts.Sales
	res.Run.StockFacts = facts.Stock
	res.Run.SkippedMovements = len(facts.Skipped)
	res.Run.DroppedSales = facts.DroppedSales
	res.Run.DroppedMovements = facts.DroppedMovements
	res.Skipped = facts.Skipped

	if p.cfg.ETL.RecomputeStock {
		if res.StockUpdated, err = RecomputeStock(ctx, tx); err != nil {
			return err
		}
		p.log.Debug().Int64("productos", res.StockUpdated).Msg("Recomputed stock")
	}

	if p.cfg.ETL.Verify {
		if err = Verify(ctx, tx); err != nil {
			return err
		}
		p.log.Debug().Msg("Integrity verified")
	}

	res.Run.Status = db.RunCommitted
	res.Run.FinishedAt = time.Now().UTC()
	if err = db.RecordRun(ctx, tx, &res.Run); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit star transaction: %w", err)
	}
	return nil
}

// extract reads the source inside a read-only snapshot.
func (p *Pipeline) extract(ctx context.Context, src Conn) (*SourceData, error) {
	tx, err := src.BeginTx(ctx, SnapshotTxOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to begin source snapshot: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	data, err := Extract(ctx, tx)
	if err != nil {
		return nil, err
	}

	p.log.Info().
		Int("fabricantes", len(data.Manufacturers)).
		Int("categorias", len(data.Categories)).
		Int("ubicaciones", len(data.Locations)).
		Int("clientes", len(data.Customers)).
		Int("productos", len(data.Products)).
		Int("ventas", len(data.Sales)).
		Int("movimientos", len(data.Movements)).
		Msg("Extracted source data")

	return data, nil
}

// recordFailure writes a failed ledger row outside the rolled back
// transaction. It only logs if that is not possible.
func (p *Pipeline) recordFailure(ctx context.Context, dst Conn, res *Result, runErr error) {
	run := res.Run
	run.Status = db.RunFailed
	run.Error = runErr.Error()
	run.FinishedAt = time.Now().UTC()
	if err := db.RecordRun(context.WithoutCancel(ctx), dst, &run); err != nil {
		p.log.Warn().Err(err).Msg("Could not record failed run")
	}
}

func (p *Pipeline) close(conn Conn, role string) {
	if err := conn.Close(context.Background()); err != nil {
		p.log.Warn().Err(err).Str("role", role).Msg("Failed to close connection")
	}
}
