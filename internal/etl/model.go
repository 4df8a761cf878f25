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
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgx used by every stage. *pgx.Conn, pgx.Tx and
// *pgxpool.Pool all satisfy it.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Conn is a dedicated connection owned by one run.
type Conn interface {
	DB
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Close(ctx context.Context) error
}

// Manufacturer is a row of "Fabricantes".
type Manufacturer struct {
	ID   int64
	Name string
}

// Category is a row of "Categorias".
type Category struct {
	ID   int64
	Name string
}

// Location is a row of "Ubicaciones".
type Location struct {
	ID          int64
	Description string
}

// Customer is a row of "Clientes", keyed by RUT.
type Customer struct {
	RUT  string
	Name string
}

// Product is an active row of "Productos". Money is in whole currency
// units.
type Product struct {
	ID             int64
	Name           string
	ManufacturerID *int64
	CategoryID     *int64
	SKU            string
	Cost           int64
	Price          int64
	Stock          int64
	LocationID     *int64
}

// SaleLine is a "DetallesVenta" row joined with its "Ventas" header.
type SaleLine struct {
	SaleID      int64
	Receipt     string
	Date        time.Time
	CustomerRUT *string
	ProductID   int64
	Quantity    int64
	UnitPrice   int64
	Subtotal    int64
}

// Movement is a row of "MovimientosInventario". Quantity is signed.
type Movement struct {
	ID         int64
	Date       time.Time
	Type       string
	Quantity   int64
	ProductID  int64
	LocationID *int64
}

// SourceData is everything the rebuild reads from the relational store,
// loaded eagerly and ordered by key or timestamp.
type SourceData struct {
	Manufacturers []Manufacturer
	Categories    []Category
	Locations     []Location
	Customers     []Customer
	Products      []Product
	Sales         []SaleLine
	Movements     []Movement
}

// KeyMaps translate source identities to the surrogate keys assigned in
// the current run. They never outlive the run.
type KeyMaps struct {
	Manufacturers map[int64]int64
	Categories    map[int64]int64
	Locations     map[int64]int64
	Customers     map[string]int64

	// Products holds the source ids loaded into dim_producto, which keeps
	// them as its primary key.
	Products map[int64]struct{}
}

// NewKeyMaps returns empty key maps.
func NewKeyMaps() *KeyMaps {
	return &KeyMaps{
		Manufacturers: make(map[int64]int64),
		Categories:    make(map[int64]int64),
		Locations:     make(map[int64]int64),
		Customers:     make(map[string]int64),
		Products:      make(map[int64]struct{}),
	}
}

// lookup translates a nullable source reference. Unknown and NULL
// references both come back as nil, which pgx writes as NULL.
func lookup(m map[int64]int64, id *int64) any {
	if id == nil {
		return nil
	}
	if key, ok := m[*id]; ok {
		return key
	}
	return nil
}
