package storetable

import (
	"quereus/internal/schema"
	"quereus/internal/types"
)

// pkValuesOf extracts the primary-key component values from row in PK
// column order.
func (t *Table) pkValuesOf(row types.Row) types.Row {
	out := make(types.Row, len(t.schemaObj.PrimaryKey))
	for i, kc := range t.schemaObj.PrimaryKey {
		out[i] = row[kc.ColumnIndex]
	}
	return out
}

// indexValuesOf extracts an index's indexed-column values from row.
func indexValuesOf(row types.Row, cols []schema.KeyColumn) types.Row {
	out := make(types.Row, len(cols))
	for i, kc := range cols {
		out[i] = row[kc.ColumnIndex]
	}
	return out
}
