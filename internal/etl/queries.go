//-------------------------------------------------------------------------
//
// pgEdge Stock ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package etl

// Source extraction. Numeric money columns are brought to whole units in
// SQL: costs and prices round, subtotals truncate.
const (
	selectManufacturersSQL = `
SELECT fabricante_id, nombre
FROM "Fabricantes"
ORDER BY fabricante_id`

	selectCategoriesSQL = `
SELECT categoria_id, nombre
FROM "Categorias"
ORDER BY categoria_id`

	selectLocationsSQL = `
SELECT ubicacion_id, descripcion
FROM "Ubicaciones"
ORDER BY ubicacion_id`

	selectCustomersSQL = `
SELECT rut, nombre_completo
FROM "Clientes"
ORDER BY rut`

	selectActiveProductsSQL = `
SELECT producto_id,
       nombre,
       fabricante_id,
       categoria_id,
       sku,
       ROUND(COALESCE(costo_unitario, 0))::bigint,
       ROUND(precio_venta)::bigint,
       COALESCE(stock, 0)::bigint,
       ubicacion_id
FROM "Productos"
WHERE eliminado = FALSE
ORDER BY producto_id`

	selectSaleLinesSQL = `
SELECT v.venta_id,
       v.boleta_numero,
       v.fecha,
       v.cliente_rut,
       dv.producto_id,
       dv.cantidad::bigint,
       ROUND(dv.precio_unitario)::bigint,
       TRUNC(dv.subtotal)::bigint
FROM "Ventas" v
JOIN "DetallesVenta" dv ON v.venta_id = dv.venta_id
JOIN "Productos" p ON dv.producto_id = p.producto_id
WHERE p.eliminado = FALSE
ORDER BY v.fecha, v.venta_id, dv.detalle_id`

	selectMovementsSQL = `
SELECT mi.movimiento_id,
       mi.fecha_movimiento,
       mi.tipo,
       mi.cantidad::bigint,
       mi.producto_id,
       mi.ubicacion_id
FROM "MovimientosInventario" mi
JOIN "Productos" p ON mi.producto_id = p.producto_id
WHERE p.eliminado = FALSE
ORDER BY mi.fecha_movimiento, mi.movimiento_id`
)

// Star schema rebuild. dim_movimiento is reference data and is never
// truncated.
const (
	truncateStarSQL = `
TRUNCATE TABLE hechos_stock, hechos_ventas, dim_producto, dim_cliente,
               dim_ubicacion, dim_categoria, dim_fabricante
RESTART IDENTITY`

	insertManufacturerSQL = `
INSERT INTO dim_fabricante (nombre_fabricante)
VALUES ($1)
RETURNING fabricante_id`

	insertCategorySQL = `
INSERT INTO dim_categoria (nombre_categoria)
VALUES ($1)
RETURNING categoria_id`

	insertLocationSQL = `
INSERT INTO dim_ubicacion (codigo_ubicacion, descripcion_ubicacion)
VALUES ($1, $2)
RETURNING ubicacion_id`

	selectMovementTypesSQL = `
SELECT id, tipo_movimiento
FROM dim_movimiento
ORDER BY id`

	selectProductCostSQL = `
SELECT costo
FROM dim_producto
WHERE producto_id = $1`

	recomputeStockSQL = `
UPDATE dim_producto p
SET stock_actual = GREATEST(s.total, 0)
FROM (
    SELECT producto_fk, SUM(cantidad) AS total
    FROM hechos_stock
    GROUP BY producto_fk
) s
WHERE p.producto_id = s.producto_fk`

	zeroStockSQL = `
UPDATE dim_producto p
SET stock_actual = 0
WHERE NOT EXISTS (
    SELECT 1 FROM hechos_stock h WHERE h.producto_fk = p.producto_id
)`
)

// COPY targets.
var (
	customerTable   = "dim_cliente"
	customerColumns = []string{"cliente_id", "rut", "nombre_cliente"}

	productTable   = "dim_producto"
	productColumns = []string{
		"producto_id", "nombre_articulo", "fabricante_fk", "categoria_fk",
		"sku", "costo", "precio", "stock_actual", "ubicacion_fk",
	}

	salesFactTable   = "hechos_ventas"
	salesFactColumns = []string{
		"nro_boleta", "producto_fk", "fecha", "cliente_fk",
		"cantidad", "costo_unitario", "total_venta",
	}

	stockFactTable   = "hechos_stock"
	stockFactColumns = []string{
		"producto_fk", "fecha", "ubicacion_fk", "tipo_movimiento_fk", "cantidad",
	}
)
