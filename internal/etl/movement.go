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
	"context"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// Canonical movement-type codes seeded in dim_movimiento.
const (
	CodeInitialStock = "ENTRADA_INI"
	CodeSale         = "SALIDA_VTA"
	CodePurchase     = "ENTRADA_COMPRA"
	CodeAdjustUp     = "AJUSTE_INV_POS"
	CodeAdjustDown   = "AJUSTE_INV_NEG"
)

// Source movement codes written by the operational application.
const (
	SourceInitialStock = "compra_inicial"
	SourceSale         = "venta_cliente"
	SourcePurchase     = "compra_proveedor"
	SourceAdjustUp     = "ajuste_positivo"
	SourceAdjustDown   = "ajuste_negativo"
)

// movementVocabulary maps source codes to canonical codes. Any code not
// listed is unmapped.
var movementVocabulary = map[string]string{
	SourceInitialStock: CodeInitialStock,
	SourceSale:         CodeSale,
	SourcePurchase:     CodePurchase,
	SourceAdjustUp:     CodeAdjustUp,
	SourceAdjustDown:   CodeAdjustDown,
}

// CanonicalCodes returns the canonical codes in a stable order.
func CanonicalCodes() []string {
	return []string{CodeInitialStock, CodeSale, CodePurchase, CodeAdjustUp, CodeAdjustDown}
}

// CanonicalCode translates a source code. ok is false for unmapped codes.
func CanonicalCode(source string) (code string, ok bool) {
	code, ok = movementVocabulary[source]
	return code, ok
}

// ResolutionKind tags the outcome of resolving a source movement code.
type ResolutionKind int

const (
	// Resolved carries the dim_movimiento id in Resolution.ID.
	Resolved ResolutionKind = iota

	// Unmapped means the source code is outside the vocabulary. The
	// movement is skipped.
	Unmapped

	// MissingEssential means the code is in the vocabulary but
	// dim_movimiento has no row for its canonical code. The run aborts.
	MissingEssential
)

func (k ResolutionKind) String() string {
	switch k {
	case Resolved:
		return "resolved"
	case Unmapped:
		return "unmapped"
	case MissingEssential:
		return "missing-essential"
	default:
		return fmt.Sprintf("ResolutionKind(%d)", int(k))
	}
}

// Resolution is the result of MovementResolver.Resolve. Code holds the
// source code for Unmapped and the canonical code for MissingEssential.
type Resolution struct {
	Kind ResolutionKind
	ID   int64
	Code string
}

// MovementResolver maps source movement codes to dim_movimiento ids.
type MovementResolver struct {
	ids map[string]int64
}

// NewMovementResolver builds a resolver over a canonical code to id map.
func NewMovementResolver(ids map[string]int64) *MovementResolver {
	return &MovementResolver{ids: ids}
}

// LoadMovementTypes reads dim_movimiento.
func LoadMovementTypes(ctx context.Context, q DB) (*MovementResolver, error) {
	rows, err := q.Query(ctx, selectMovementTypesSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query dim_movimiento: %w", err)
	}

	type movementType struct {
		id   int64
		code string
	}
	types, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (movementType, error) {
		var mt movementType
		err := row.Scan(&mt.id, &mt.code)
		return mt, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read dim_movimiento: %w", err)
	}

	ids := make(map[string]int64, len(types))
	for _, mt := range types {
		ids[mt.code] = mt.id
	}
	return NewMovementResolver(ids), nil
}

// Check fails when a canonical code that some movement needs is absent
// from dim_movimiento. Absent codes that no movement needs are logged.
func (r *MovementResolver) Check(movements []Movement, log zerolog.Logger) error {
	required := make(map[string]bool)
	for _, m := range movements {
		if code, ok := CanonicalCode(m.Type); ok {
			required[code] = true
		}
	}

	var missing []string
	for _, code := range CanonicalCodes() {
		if _, ok := r.ids[code]; ok {
			continue
		}
		if required[code] {
			missing = append(missing, code)
			continue
		}
		log.Warn().
			Str("tipo_movimiento", code).
			Msg("Movement type missing from dim_movimiento; no movement needs it")
	}

	if len(missing) > 0 {
		slices.Sort(missing)
		return &MissingMovementTypesError{Codes: missing}
	}
	return nil
}

// Resolve translates a source code to a dim_movimiento id.
func (r *MovementResolver) Resolve(source string) Resolution {
	code, ok := CanonicalCode(source)
	if !ok {
		return Resolution{Kind: Unmapped, Code: source}
	}
	id, ok := r.ids[code]
	if !ok {
		return Resolution{Kind: MissingEssential, Code: code}
	}
	return Resolution{Kind: Resolved, ID: id, Code: code}
}
