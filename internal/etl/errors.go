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
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingMovementType means dim_movimiento lacks a canonical code
	// that the source data needs.
	ErrMissingMovementType = errors.New("missing movement type")

	// ErrIntegrity means the loaded star schema has dangling references.
	ErrIntegrity = errors.New("star schema integrity check failed")
)

// StageError records the state a run was in when it failed.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("etl failed while %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// MissingMovementTypesError lists the canonical codes absent from
// dim_movimiento that movements in the current source require.
type MissingMovementTypesError struct {
	Codes []string
}

func (e *MissingMovementTypesError) Error() string {
	return fmt.Sprintf("%s: dim_movimiento has no %s", ErrMissingMovementType, strings.Join(e.Codes, ", "))
}

func (e *MissingMovementTypesError) Is(target error) bool {
	return target == ErrMissingMovementType
}
