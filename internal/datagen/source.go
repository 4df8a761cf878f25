//-------------------------------------------------------------------------
//
// pgEdge Stock ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package datagen

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pgEdge/pgedge-stocketl/internal/config"
	"github.com/pgEdge/pgedge-stocketl/internal/etl"
	"github.com/pgEdge/pgedge-stocketl/internal/logging"
)

// Reference data
var (
	categoryNames = []string{"Aceites", "Filtros", "Baterías", "Amortiguadores", "Frenos", "Correas", "Aditivos"}

	manufacturerNames = []string{"Mobil", "Bosch", "ACDelco", "Castrol", "Fram", "Liqui Moly", "Monroe"}

	locationNames = []string{"Bodega Central", "Estantería A-1", "Estantería B-2", "Mostrador", "Taller"}

	productNames = []string{
		"Kit de Mantenimiento", "Componente de Motor", "Sistema de Frenado",
		"Filtro de Alto Flujo", "Aceite Sintético Avanzado",
		"Batería de Larga Duración", "Amortiguador de Gas",
	}

	productModels = []string{"Serie 100", "Pro-V", "XLT", "Gold Standard", "Eco-Max", "Ultra-Duty"}
)

const (
	// restockBelow is the stock level under which a product may be
	// reordered from the supplier at the end of a month.
	restockBelow = 15

	truncateSourceSQL = `
TRUNCATE TABLE "DetallesVenta", "Ventas", "MovimientosInventario", "Productos",
               "Clientes", "Categorias", "Fabricantes", "Ubicaciones"
RESTART IDENTITY CASCADE`
)

// SourceConfig controls the generated history.
type SourceConfig struct {
	Customers     int
	Products      int
	Months        int
	DeletedRatio  float64
	SalesPerMonth int

	// Seed makes generation reproducible when non-zero.
	Seed uint64

	// Now anchors the history: it covers the Months whole months before
	// the month containing Now. Zero means time.Now().
	Now time.Time

	Batch BatchInsertConfig
}

// NewSourceConfig builds a SourceConfig from the seed section of the
// configuration.
func NewSourceConfig(cfg config.SeedConfig) SourceConfig {
	return SourceConfig{
		Customers:     cfg.Customers,
		Products:      cfg.Products,
		Months:        cfg.Months,
		DeletedRatio:  cfg.DeletedRatio,
		SalesPerMonth: 500,
		Seed:          cfg.Seed,
		Batch:         DefaultBatchConfig(),
	}
}

// Customer is a "Clientes" row.
type Customer struct {
	RUT  string
	Name string
}

// Product is a "Productos" row. Money is in whole pesos.
type Product struct {
	ID             int64
	Name           string
	ManufacturerID int64
	CategoryID     int64
	SKU            string
	Cost           int64
	Price          int64
	Stock          int64
	LocationID     int64
	Deleted        bool
	DeletedAt      *time.Time
}

// Sale is a "Ventas" row.
type Sale struct {
	ID          int64
	Receipt     string
	Date        time.Time
	CustomerRUT string
}

// SaleLine is a "DetallesVenta" row.
type SaleLine struct {
	ID        int64
	SaleID    int64
	ProductID int64
	Quantity  int64
	UnitPrice int64
	Subtotal  int64
}

// Movement is a "MovimientosInventario" row. Outbound quantities are
// negative.
type Movement struct {
	ID         int64
	Type       string
	Quantity   int64
	ProductID  int64
	Date       time.Time
	LocationID *int64
}

// Dataset is a complete generated source store. Catalog ids are the
// 1-based positions in their slices.
type Dataset struct {
	Manufacturers []string
	Categories    []string
	Locations     []string
	Customers     []Customer
	Products      []Product
	Sales         []Sale
	SaleLines     []SaleLine
	Movements     []Movement
}

// SourceGenerator generates the relational source store.
type SourceGenerator struct {
	faker *Faker
	cfg   SourceConfig
}

// NewSourceGenerator creates a new source data generator.
func NewSourceGenerator(cfg SourceConfig) *SourceGenerator {
	faker := NewFaker()
	if cfg.Seed != 0 {
		faker = NewFakerWithSeed(cfg.Seed)
	}
	if cfg.Now.IsZero() {
		cfg.Now = time.Now()
	}
	return &SourceGenerator{faker: faker, cfg: cfg}
}

// Generate replaces the contents of the source store with a new dataset.
func (g *SourceGenerator) Generate(ctx context.Context, db DB) error {
	return g.Load(ctx, db, g.Build())
}

// Build simulates the store's history in memory.
func (g *SourceGenerator) Build() *Dataset {
	ds := &Dataset{
		Manufacturers: manufacturerNames,
		Categories:    categoryNames,
		Locations:     locationNames,
	}

	g.buildCustomers(ds)
	g.buildProducts(ds)

	end := time.Date(g.cfg.Now.Year(), g.cfg.Now.Month(), 1, 0, 0, 0, 0, g.cfg.Now.Location())
	start := end.AddDate(0, -g.cfg.Months, 0)

	// Opening stock, the day before the history starts.
	for i := range ds.Products {
		p := &ds.Products[i]
		qty := g.faker.Int64(20, 100)
		p.Stock += qty
		g.addMovement(ds, etl.SourceInitialStock, qty, p.ID, start.AddDate(0, 0, -1), &p.LocationID)
	}

	for m := 0; m < g.cfg.Months; m++ {
		g.simulateMonth(ds, start.AddDate(0, m, 0))
	}

	g.softDelete(ds)

	logging.Info().
		Int("clientes", len(ds.Customers)).
		Int("productos", len(ds.Products)).
		Int("ventas", len(ds.Sales)).
		Int("detalles", len(ds.SaleLines)).
		Int("movimientos", len(ds.Movements)).
		Msg("Generated source dataset")

	return ds
}

func (g *SourceGenerator) buildCustomers(ds *Dataset) {
	seen := make(map[string]bool, g.cfg.Customers)
	for len(ds.Customers) < g.cfg.Customers {
		rut := g.faker.RUT()
		if seen[rut] {
			continue
		}
		seen[rut] = true
		ds.Customers = append(ds.Customers, Customer{RUT: rut, Name: g.faker.Name()})
	}
}

func (g *SourceGenerator) buildProducts(ds *Dataset) {
	skuSeq := make(map[string]int)
	for i := 1; i <= g.cfg.Products; i++ {
		mfr := g.faker.Int(1, len(ds.Manufacturers))
		cat := g.faker.Int(1, len(ds.Categories))
		mfrName, catName := ds.Manufacturers[mfr-1], ds.Categories[cat-1]

		combo := SKUPrefix(mfrName) + "-" + SKUPrefix(catName)
		skuSeq[combo]++

		price := g.faker.Int64(150, 800) * 100
		cost := price * g.faker.Int64(60, 80) / 100

		ds.Products = append(ds.Products, Product{
			ID:             int64(i),
			Name:           fmt.Sprintf("%s %s %d", Choose(g.faker, productNames), Choose(g.faker, productModels), g.faker.Int(100, 999)),
			ManufacturerID: int64(mfr),
			CategoryID:     int64(cat),
			SKU:            SKU(mfrName, catName, skuSeq[combo]),
			Cost:           cost,
			Price:          price,
			LocationID:     int64(g.faker.Int(1, len(ds.Locations))),
		})
	}
}

// simulateMonth records the month's sales in time order, then supplier
// restocks and a few inventory adjustments.
func (g *SourceGenerator) simulateMonth(ds *Dataset, monthStart time.Time) {
	f := g.faker
	days := monthStart.AddDate(0, 1, -1).Day()

	var count int
	if g.cfg.SalesPerMonth > 0 {
		count = f.Int(g.cfg.SalesPerMonth*96/100, g.cfg.SalesPerMonth*104/100)
	}
	times := make([]time.Time, count)
	for i := range times {
		times[i] = time.Date(monthStart.Year(), monthStart.Month(), f.Int(1, days),
			f.Int(9, 18), f.Int(0, 59), 0, 0, monthStart.Location())
	}
	slices.SortFunc(times, time.Time.Compare)

	for _, when := range times {
		sale := Sale{
			ID:          int64(len(ds.Sales) + 1),
			Receipt:     fmt.Sprintf("BOL-%05d", f.Int(10000, 99999)),
			Date:        when,
			CustomerRUT: Choose(f, ds.Customers).RUT,
		}
		ds.Sales = append(ds.Sales, sale)

		for range ChooseWeighted(f, []int{1, 2, 3, 4}, []int{50, 30, 15, 5}) {
			p := &ds.Products[f.Int(0, len(ds.Products)-1)]
			qty := f.Int64(1, 5)
			if p.Stock < qty {
				continue
			}
			p.Stock -= qty
			ds.SaleLines = append(ds.SaleLines, SaleLine{
				ID:        int64(len(ds.SaleLines) + 1),
				SaleID:    sale.ID,
				ProductID: p.ID,
				Quantity:  qty,
				UnitPrice: p.Price,
				Subtotal:  qty * p.Price,
			})
			g.addMovement(ds, etl.SourceSale, -qty, p.ID, when, nil)
		}
	}

	monthEnd := time.Date(monthStart.Year(), monthStart.Month(), days, 19, 0, 0, 0, monthStart.Location())
	for i := range ds.Products {
		p := &ds.Products[i]
		if p.Stock < restockBelow && f.Chance(0.5) {
			qty := f.Int64(20, 60)
			p.Stock += qty
			g.addMovement(ds, etl.SourcePurchase, qty, p.ID, monthEnd, &p.LocationID)
		}
	}

	for range f.Int(1, 3) {
		p := &ds.Products[f.Int(0, len(ds.Products)-1)]
		switch {
		case f.Chance(0.5):
			qty := f.Int64(1, 5)
			p.Stock += qty
			g.addMovement(ds, etl.SourceAdjustUp, qty, p.ID, monthEnd, nil)
		case p.Stock > 0:
			qty := f.Int64(1, min(3, p.Stock))
			p.Stock -= qty
			g.addMovement(ds, etl.SourceAdjustDown, -qty, p.ID, monthEnd, nil)
		}
	}
}

func (g *SourceGenerator) addMovement(ds *Dataset, kind string, qty, productID int64, when time.Time, location *int64) {
	var loc *int64
	if location != nil {
		v := *location
		loc = &v
	}
	ds.Movements = append(ds.Movements, Movement{
		ID:         int64(len(ds.Movements) + 1),
		Type:       kind,
		Quantity:   qty,
		ProductID:  productID,
		Date:       when,
		LocationID: loc,
	})
}

// softDelete marks DeletedRatio of the products as deleted some time in
// the last 90 days. Their history stays in place.
func (g *SourceGenerator) softDelete(ds *Dataset) {
	n := int(math.Round(float64(len(ds.Products)) * g.cfg.DeletedRatio))
	order := make([]int, len(ds.Products))
	for i := range order {
		order[i] = i
	}
	for i := len(order) - 1; i > 0; i-- {
		j := g.faker.Int(0, i)
		order[i], order[j] = order[j], order[i]
	}
	for _, i := range order[:n] {
		at := g.cfg.Now.Add(-time.Duration(g.faker.Int(1, 90*24)) * time.Hour)
		ds.Products[i].Deleted = true
		ds.Products[i].DeletedAt = &at
	}
}

type tableRows struct {
	table    string
	columns  []string
	serialID string
	rows     [][]any
}

// tables lists the dataset as COPY input in foreign key order.
func (ds *Dataset) tables() []tableRows {
	names := func(values []string) [][]any {
		rows := make([][]any, len(values))
		for i, v := range values {
			rows[i] = []any{int64(i + 1), v}
		}
		return rows
	}

	customers := make([][]any, len(ds.Customers))
	for i, c := range ds.Customers {
		customers[i] = []any{c.RUT, c.Name}
	}

	products := make([][]any, len(ds.Products))
	for i, p := range ds.Products {
		products[i] = []any{p.ID, p.Name, p.ManufacturerID, p.CategoryID, p.SKU,
			p.Cost, p.Price, p.Stock, p.LocationID, p.Deleted, p.DeletedAt}
	}

	sales := make([][]any, len(ds.Sales))
	for i, s := range ds.Sales {
		sales[i] = []any{s.ID, s.Receipt, s.Date, s.CustomerRUT}
	}

	lines := make([][]any, len(ds.SaleLines))
	for i, l := range ds.SaleLines {
		lines[i] = []any{l.ID, l.SaleID, l.ProductID, l.Quantity, l.UnitPrice, l.Subtotal}
	}

	movements := make([][]any, len(ds.Movements))
	for i, m := range ds.Movements {
		movements[i] = []any{m.ID, m.Type, m.Quantity, m.ProductID, m.Date, m.LocationID}
	}

	return []tableRows{
		{table: "Fabricantes", columns: []string{"fabricante_id", "nombre"}, serialID: "fabricante_id", rows: names(ds.Manufacturers)},
		{table: "Categorias", columns: []string{"categoria_id", "nombre"}, serialID: "categoria_id", rows: names(ds.Categories)},
		{table: "Ubicaciones", columns: []string{"ubicacion_id", "descripcion"}, serialID: "ubicacion_id", rows: names(ds.Locations)},
		{table: "Clientes", columns: []string{"rut", "nombre_completo"}, rows: customers},
		{table: "Productos", columns: []string{"producto_id", "nombre", "fabricante_id", "categoria_id", "sku",
			"costo_unitario", "precio_venta", "stock", "ubicacion_id", "eliminado", "fecha_eliminacion"}, serialID: "producto_id", rows: products},
		{table: "Ventas", columns: []string{"venta_id", "boleta_numero", "fecha", "cliente_rut"}, serialID: "venta_id", rows: sales},
		{table: "DetallesVenta", columns: []string{"detalle_id", "venta_id", "producto_id", "cantidad", "precio_unitario", "subtotal"}, serialID: "detalle_id", rows: lines},
		{table: "MovimientosInventario", columns: []string{"movimiento_id", "tipo", "cantidad", "producto_id", "fecha_movimiento", "ubicacion_id"}, serialID: "movimiento_id", rows: movements},
	}
}

// setvalSQL moves a serial column's sequence past the explicitly copied ids.
func setvalSQL(table, column string) string {
	ident := pgx.Identifier{table}.Sanitize()
	col := pgx.Identifier{column}.Sanitize()
	return fmt.Sprintf(`SELECT setval(pg_get_serial_sequence('%s', '%s'), COALESCE(MAX(%s), 0) + 1, false) FROM %s`,
		ident, column, col, ident)
}

// Load truncates the source tables and writes ds. Run it inside a
// transaction so a failure leaves the old data in place.
func (g *SourceGenerator) Load(ctx context.Context, db DB, ds *Dataset) error {
	if _, err := db.Exec(ctx, truncateSourceSQL); err != nil {
		return fmt.Errorf("failed to truncate source tables: %w", err)
	}

	for _, t := range ds.tables() {
		if err := CopyRows(ctx, db, g.cfg.Batch, t.table, t.columns, t.rows); err != nil {
			return err
		}
		if t.serialID == "" {
			continue
		}
		if _, err := db.Exec(ctx, setvalSQL(t.table, t.serialID)); err != nil {
			return fmt.Errorf("failed to reset %s sequence: %w", t.table, err)
		}
	}
	return nil
}
