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
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-stocketl/pkg/version"
)

type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error { return f(dest...) }

type fakeQuerier struct {
	sql     string
	args    []any
	execErr error
	row     pgx.Row
}

func (f *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql, f.args = sql, args
	return pgconn.NewCommandTag("INSERT 0 1"), f.execErr
}

func (f *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.sql, f.args = sql, args
	return f.row
}

func TestRecordRun(t *testing.T) {
	q := &fakeQuerier{}
	run := &Run{
		ID:               uuid.New(),
		StartedAt:        time.Now(),
		FinishedAt:       time.Now(),
		Status:           RunCommitted,
		SalesFacts:       12,
		DroppedSales:     2,
		DroppedMovements: 5,
	}

	require.NoError(t, RecordRun(context.Background(), q, run))
	assert.Equal(t, version.Short(), run.Version)
	assert.Contains(t, q.sql, "INSERT INTO etl_runs")
	assert.Contains(t, q.sql, "movimientos_descartados")
	require.Len(t, q.args, 16)
	assert.Equal(t, run.ID, q.args[0])
	assert.Equal(t, RunCommitted, q.args[3])
	assert.Equal(t, 12, q.args[11])
	assert.Equal(t, 2, q.args[14])
	assert.Equal(t, 5, q.args[15])
}

func TestRecordRunError(t *testing.T) {
	q := &fakeQuerier{execErr: errors.New("relation \"etl_runs\" does not exist")}
	err := RecordRun(context.Background(), q, &Run{ID: uuid.New(), Status: RunFailed})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "etl_runs")
}

func TestLastRunEmpty(t *testing.T) {
	q := &fakeQuerier{row: scanFunc(func(...any) error { return pgx.ErrNoRows })}
	_, err := LastRun(context.Background(), q)
	assert.ErrorIs(t, err, ErrNoRuns)
}

func TestLastRun(t *testing.T) {
	id := uuid.New()
	q := &fakeQuerier{row: scanFunc(func(dest ...any) error {
		if len(dest) != 16 {
			return errors.New("wrong number of targets")
		}
		*dest[0].(*uuid.UUID) = id
		*dest[3].(*string) = RunFailed
		*dest[5].(*string) = "boom"
		*dest[14].(*int) = 3
		*dest[15].(*int) = 7
		return nil
	})}

	run, err := LastRun(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, id, run.ID)
	assert.Equal(t, RunFailed, run.Status)
	assert.Equal(t, "boom", run.Error)
	assert.Equal(t, 3, run.DroppedSales)
	assert.Equal(t, 7, run.DroppedMovements)
	assert.Contains(t, q.sql, "movimientos_descartados")
}

func TestAppName(t *testing.T) {
	assert.Equal(t, "pgedge-stocketl", appName(""))
	assert.Equal(t, "pgedge-stocketl-star", appName("star"))
}

func TestDefaultPoolConfig(t *testing.T) {
	cfg := DefaultPoolConfig()
	assert.EqualValues(t, 4, cfg.MaxConns)
	assert.EqualValues(t, 1, cfg.MinConns)
}
