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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomerRowsAreNumberedInOrder(t *testing.T) {
	keys := NewKeyMaps()
	rows := customerRows([]Customer{
		{RUT: "11111111-1", Name: "Uno"},
		{RUT: "12345678-5", Name: "Dos"},
		{RUT: "9876543-3", Name: "Tres"},
	}, keys)

	require.Len(t, rows, 3)
	assert.Equal(t, []any{int64(1), "11111111-1", "Uno"}, rows[0])
	assert.Equal(t, []any{int64(3), "9876543-3", "Tres"}, rows[2])
	assert.Equal(t, map[string]int64{"11111111-1": 1, "12345678-5": 2, "9876543-3": 3}, keys.Customers)
}

func TestProductRowTranslatesReferences(t *testing.T) {
	keys := NewKeyMaps()
	keys.Manufacturers[7] = 1
	keys.Categories[3] = 2
	keys.Locations[4] = 3

	p := Product{
		ID: 42, Name: "Batería 60Ah", ManufacturerID: int64p(7), CategoryID: int64p(3),
		SKU: "ACD-BAT-0001", Cost: 45000, Price: 60000, Stock: 4, LocationID: int64p(4),
	}
	assert.Equal(t,
		[]any{int64(42), "Batería 60Ah", int64(1), int64(2), "ACD-BAT-0001", int64(45000), int64(60000), int64(4), int64(3)},
		productRow(p, keys))

	p.ManufacturerID = int64p(8)
	p.LocationID = nil
	row := productRow(p, keys)
	assert.Nil(t, row[2])
	assert.Nil(t, row[8])
}

func TestLoadDimensionsAssignsFreshKeys(t *testing.T) {
	star := newFakeStar()
	data := richerSource()

	keys, err := LoadDimensions(context.Background(), star, &data)
	require.NoError(t, err)

	assert.Equal(t, map[int64]int64{7: 1, 9: 2}, keys.Manufacturers)
	assert.Equal(t, map[int64]int64{3: 1, 5: 2}, keys.Categories)
	assert.Equal(t, map[int64]int64{4: 1, 12: 2}, keys.Locations)
	assert.Len(t, keys.Products, 2)

	assert.Equal(t, "UB012", star.rows("dim_ubicacion")[1][1])
}

func TestLoadDimensionsEmptySource(t *testing.T) {
	star := newFakeStar()
	keys, err := LoadDimensions(context.Background(), star, &SourceData{})
	require.NoError(t, err)
	assert.Empty(t, keys.Products)
	assert.Empty(t, star.tables)
}

func TestTruncateKeepsReferenceData(t *testing.T) {
	assert.NotContains(t, truncateStarSQL, "dim_movimiento")
	assert.NotContains(t, truncateStarSQL, "etl_runs")
	assert.Contains(t, truncateStarSQL, "RESTART IDENTITY")
	for _, table := range []string{"hechos_stock", "hechos_ventas", "dim_producto", "dim_cliente", "dim_ubicacion", "dim_categoria", "dim_fabricante"} {
		assert.Contains(t, truncateStarSQL, table)
	}
}

func TestExtractionSkipsSoftDeletedProducts(t *testing.T) {
	for _, sql := range []string{selectActiveProductsSQL, selectSaleLinesSQL, selectMovementsSQL} {
		assert.True(t, strings.Contains(sql, "eliminado = FALSE"), sql)
	}
}

func TestExtract(t *testing.T) {
	src := newFakeSource(minimalSource())

	data, err := Extract(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, minimalSource(), *data)
	assert.Len(t, src.queried, 7)
}
