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
	"reflect"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pgEdge/pgedge-stocketl/internal/config"
)

// The fakes below model just enough of PostgreSQL for the pipeline: they
// recognise the package's own SQL constants and keep tables as slices of
// rows in column order.

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.values)
}

type fakeRows struct {
	pgx.Rows
	data [][]any
	pos  int
	err  error
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	return assign(dest, r.data[r.pos-1])
}

func (r *fakeRows) Err() error { return r.err }

func (r *fakeRows) Close() {}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func compatible(from, to reflect.Type) bool {
	return from.AssignableTo(to) || (isNumeric(from.Kind()) && isNumeric(to.Kind()))
}

// assign copies src into the scan targets the way pgx would for the types
// the package uses, including NULL into pointer targets.
func assign(dest []any, src []any) error {
	if len(dest) != len(src) {
		return fmt.Errorf("fake: scanning %d values into %d targets", len(src), len(dest))
	}
	for i, d := range dest {
		dv := reflect.ValueOf(d)
		if dv.Kind() != reflect.Pointer || dv.IsNil() {
			return fmt.Errorf("fake: target %d is not a pointer", i)
		}
		target := dv.Elem()
		if src[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		sv := reflect.ValueOf(src[i])
		switch {
		case compatible(sv.Type(), target.Type()):
			target.Set(sv.Convert(target.Type()))
		case target.Kind() == reflect.Pointer && compatible(sv.Type(), target.Type().Elem()):
			p := reflect.New(target.Type().Elem())
			p.Elem().Set(sv.Convert(target.Type().Elem()))
			target.Set(p)
		default:
			return fmt.Errorf("fake: cannot scan %T into %s", src[i], target.Type())
		}
	}
	return nil
}

func tag(s string) pgconn.CommandTag {
	return pgconn.NewCommandTag(s)
}

// fakeTx wraps a store. Rollback undoes everything since BeginTx.
type fakeTx struct {
	pgx.Tx
	db       DB
	commit   func()
	rollback func()
	done     bool
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.db.Exec(ctx, sql, args...)
}

func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return t.db.Query(ctx, sql, args...)
}

func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return t.db.QueryRow(ctx, sql, args...)
}

func (t *fakeTx) CopyFrom(ctx context.Context, table pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error) {
	return t.db.CopyFrom(ctx, table, cols, src)
}

func (t *fakeTx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.commit()
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.rollback()
	return nil
}

// fakeSource serves the extraction queries from fixed rows.
type fakeSource struct {
	rows    map[string][][]any
	failOn  map[string]error
	txOpts  []pgx.TxOptions
	queried []string
	closed  bool
}

func newFakeSource(data SourceData) *fakeSource {
	rows := map[string][][]any{}
	for _, m := range data.Manufacturers {
		rows[selectManufacturersSQL] = append(rows[selectManufacturersSQL], []any{m.ID, m.Name})
	}
	for _, c := range data.Categories {
		rows[selectCategoriesSQL] = append(rows[selectCategoriesSQL], []any{c.ID, c.Name})
	}
	for _, l := range data.Locations {
		rows[selectLocationsSQL] = append(rows[selectLocationsSQL], []any{l.ID, l.Description})
	}
	for _, c := range data.Customers {
		rows[selectCustomersSQL] = append(rows[selectCustomersSQL], []any{c.RUT, c.Name})
	}
	for _, p := range data.Products {
		rows[selectActiveProductsSQL] = append(rows[selectActiveProductsSQL], []any{
			p.ID, p.Name, deref(p.ManufacturerID), deref(p.CategoryID),
			p.SKU, p.Cost, p.Price, p.Stock, deref(p.LocationID),
		})
	}
	for _, s := range data.Sales {
		var rut any
		if s.CustomerRUT != nil {
			rut = *s.CustomerRUT
		}
		rows[selectSaleLinesSQL] = append(rows[selectSaleLinesSQL], []any{
			s.SaleID, s.Receipt, s.Date, rut, s.ProductID, s.Quantity, s.UnitPrice, s.Subtotal,
		})
	}
	for _, m := range data.Movements {
		rows[selectMovementsSQL] = append(rows[selectMovementsSQL], []any{
			m.ID, m.Date, m.Type, m.Quantity, m.ProductID, deref(m.LocationID),
		})
	}
	return &fakeSource{rows: rows, failOn: map[string]error{}}
}

func deref(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func (s *fakeSource) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return tag(""), fmt.Errorf("fake source is read-only: %s", sql)
}

func (s *fakeSource) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	s.queried = append(s.queried, sql)
	if err := s.failOn[sql]; err != nil {
		return nil, err
	}
	return &fakeRows{data: s.rows[sql]}, nil
}

func (s *fakeSource) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return fakeRow{err: fmt.Errorf("fake source: unexpected QueryRow: %s", sql)}
}

func (s *fakeSource) CopyFrom(ctx context.Context, table pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error) {
	return 0, fmt.Errorf("fake source is read-only: COPY %s", table.Sanitize())
}

func (s *fakeSource) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	s.txOpts = append(s.txOpts, opts)
	return &fakeTx{db: s, commit: func() {}, rollback: func() {}}, nil
}

func (s *fakeSource) Close(ctx context.Context) error {
	s.closed = true
	return nil
}

// starTables is the mutable part of the fake star store.
type starTables struct {
	tables map[string][][]any
	seq    map[string]int64
	runs   [][]any
}

func (t starTables) clone() starTables {
	c := starTables{
		tables: make(map[string][][]any, len(t.tables)),
		seq:    make(map[string]int64, len(t.seq)),
		runs:   append([][]any(nil), t.runs...),
	}
	for name, rows := range t.tables {
		copied := make([][]any, len(rows))
		for i, row := range rows {
			copied[i] = append([]any(nil), row...)
		}
		c.tables[name] = copied
	}
	for name, v := range t.seq {
		c.seq[name] = v
	}
	return c
}

// fakeStar models the star schema. dim_movimiento is fixed reference data.
type fakeStar struct {
	starTables
	movementTypes [][]any
	integrity     map[string]int64
	failOn        map[string]error
	costLookups   int
	commits       int
	rollbacks     int
	closed        bool
}

func newFakeStar() *fakeStar {
	return &fakeStar{
		starTables: starTables{
			tables: map[string][][]any{},
			seq:    map[string]int64{},
		},
		movementTypes: [][]any{
			{int64(1), CodeInitialStock},
			{int64(2), CodeSale},
			{int64(3), CodePurchase},
			{int64(4), CodeAdjustUp},
			{int64(5), CodeAdjustDown},
		},
		integrity: map[string]int64{},
		failOn:    map[string]error{},
	}
}

// withoutMovementType removes a canonical code from dim_movimiento.
func (s *fakeStar) withoutMovementType(code string) *fakeStar {
	kept := s.movementTypes[:0]
	for _, row := range s.movementTypes {
		if row[1] != code {
			kept = append(kept, row)
		}
	}
	s.movementTypes = kept
	return s
}

func (s *fakeStar) rows(table string) [][]any {
	return s.tables[table]
}

func (s *fakeStar) nextID(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

func (s *fakeStar) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if err := s.failOn[sql]; err != nil {
		return tag(""), err
	}
	switch {
	case sql == truncateStarSQL:
		s.tables = map[string][][]any{}
		s.seq = map[string]int64{}
		return tag("TRUNCATE TABLE"), nil

	case sql == recomputeStockSQL:
		totals := map[int64]int64{}
		for _, row := range s.tables[stockFactTable] {
			totals[row[0].(int64)] += row[4].(int64)
		}
		var n int
		for _, row := range s.tables[productTable] {
			if total, ok := totals[row[0].(int64)]; ok {
				row[7] = max(total, 0)
				n++
			}
		}
		return tag(fmt.Sprintf("UPDATE %d", n)), nil

	case sql == zeroStockSQL:
		moved := map[int64]bool{}
		for _, row := range s.tables[stockFactTable] {
			moved[row[0].(int64)] = true
		}
		var n int
		for _, row := range s.tables[productTable] {
			if !moved[row[0].(int64)] {
				row[7] = int64(0)
				n++
			}
		}
		return tag(fmt.Sprintf("UPDATE %d", n)), nil

	case strings.Contains(sql, "INSERT INTO etl_runs"):
		if err := s.failOn["etl_runs"]; err != nil {
			return tag(""), err
		}
		s.runs = append(s.runs, args)
		return tag("INSERT 0 1"), nil
	}
	return tag(""), fmt.Errorf("fake star: unexpected Exec: %s", sql)
}

func (s *fakeStar) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if err := s.failOn[sql]; err != nil {
		return nil, err
	}
	if sql == selectMovementTypesSQL {
		return &fakeRows{data: s.movementTypes}, nil
	}
	return nil, fmt.Errorf("fake star: unexpected Query: %s", sql)
}

func (s *fakeStar) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if err := s.failOn[sql]; err != nil {
		return fakeRow{err: err}
	}
	insert := func(table string, values ...any) pgx.Row {
		id := s.nextID(table)
		s.tables[table] = append(s.tables[table], append([]any{id}, values...))
		return fakeRow{values: []any{id}}
	}

	switch sql {
	case insertManufacturerSQL:
		return insert("dim_fabricante", args[0])
	case insertCategorySQL:
		return insert("dim_categoria", args[0])
	case insertLocationSQL:
		return insert("dim_ubicacion", args[0], args[1])
	case selectProductCostSQL:
		s.costLookups++
		for _, row := range s.tables[productTable] {
			if row[0] == args[0] {
				return fakeRow{values: []any{row[5]}}
			}
		}
		return fakeRow{err: pgx.ErrNoRows}
	}

	for _, check := range IntegrityChecks {
		if sql == check.SQL() {
			return fakeRow{values: []any{s.integrity[check.Name()]}}
		}
	}
	return fakeRow{err: fmt.Errorf("fake star: unexpected QueryRow: %s", sql)}
}

func (s *fakeStar) CopyFrom(ctx context.Context, table pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error) {
	name := table[0]
	if err := s.failOn[name]; err != nil {
		return 0, err
	}
	var n int64
	for src.Next() {
		values, err := src.Values()
		if err != nil {
			return n, err
		}
		if len(values) != len(cols) {
			return n, fmt.Errorf("fake star: %d values for %d columns", len(values), len(cols))
		}
		s.tables[name] = append(s.tables[name], append([]any(nil), values...))
		n++
	}
	return n, src.Err()
}

func (s *fakeStar) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	snapshot := s.starTables.clone()
	return &fakeTx{
		db:     s,
		commit: func() { s.commits++ },
		rollback: func() {
			s.starTables = snapshot
			s.rollbacks++
		},
	}, nil
}

func (s *fakeStar) Close(ctx context.Context) error {
	s.closed = true
	return nil
}

// fakeConnector hands out the fakes by role.
func fakeConnector(src *fakeSource, star *fakeStar) Connector {
	return func(ctx context.Context, cfg config.DBConfig, role string) (Conn, error) {
		switch role {
		case "source":
			return src, nil
		case "star":
			return star, nil
		}
		return nil, fmt.Errorf("unknown role %q", role)
	}
}

func int64p(v int64) *int64 { return &v }

func strp(v string) *string { return &v }
