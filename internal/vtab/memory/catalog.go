package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"quereus/internal/errs"
	"quereus/internal/keycodec"
	"quereus/internal/kv"
	"quereus/internal/schema"
)

// indexMeta is the catalog payload for a secondary index (spec §6.1:
// "serialized {name, columns:[{index, desc, collation?}]}"). encoding/json
// is stdlib: the retrieval pack's only serialization library
// (BurntSushi/toml) is reserved for human-edited config files per
// SPEC_FULL's ambient stack, and no example repo in the pack carries a
// binary/catalog-metadata codec library, so this one narrow payload uses
// the standard library directly (see DESIGN.md).
type indexMeta struct {
	Name    string          `json:"name"`
	Columns []indexMetaCol  `json:"columns"`
}

type indexMetaCol struct {
	Index     int    `json:"index"`
	Desc      bool   `json:"desc"`
	Collation string `json:"collation,omitempty"`
}

// ddlRecord is the catalog payload stored under the "ddl" meta key: the
// human-readable rendering (for EXPLAIN/debug output) alongside the full
// TableSchema needed to reconstruct the table on boot (spec §4.6: "on
// engine boot the module scans buildMetaScanBounds('ddl') to reconstruct
// schemas"). schema.TableSchema and everything it nests (ColumnDef,
// KeyColumn, IndexSchema, CheckConstraint, types.LogicalType) are already
// plain exported/JSON-friendly types, so no separate mirror struct is
// needed -- the same encoding/json use already justified for indexMeta
// above covers this too.
type ddlRecord struct {
	Text   string              `json:"text"`
	Schema *schema.TableSchema `json:"schema"`
}

// persistDDL writes tbl's catalog record (rendered text plus the full
// schema) to the catalog store (spec §4.6/§6.1).
func persistDDL(ctx context.Context, provider kv.Provider, tbl *schema.TableSchema) error {
	store, err := provider.CatalogStore()
	if err != nil {
		return errs.Wrap(errs.IO, err, "opening catalog store")
	}
	payload, err := json.Marshal(ddlRecord{Text: renderCreateTable(tbl), Schema: tbl})
	if err != nil {
		return errs.Wrap(errs.Internal, err, "encoding DDL record for %s.%s", tbl.SchemaName, tbl.Name)
	}
	ddlKey := keycodec.BuildMetaKey("ddl", tbl.SchemaName, tbl.Name)
	if err := store.Put(ctx, ddlKey, payload); err != nil {
		return errs.Wrap(errs.IO, err, "persisting DDL for %s.%s", tbl.SchemaName, tbl.Name)
	}
	return nil
}

func removeDDL(ctx context.Context, provider kv.Provider, schemaName, tableName string) error {
	store, err := provider.CatalogStore()
	if err != nil {
		return errs.Wrap(errs.IO, err, "opening catalog store")
	}
	if err := store.Delete(ctx, keycodec.BuildMetaKey("ddl", schemaName, tableName)); err != nil {
		return errs.Wrap(errs.IO, err, "removing DDL for %s.%s", schemaName, tableName)
	}
	return nil
}

func persistIndexMeta(ctx context.Context, provider kv.Provider, schemaName, tableName string, idx schema.IndexSchema) error {
	store, err := provider.CatalogStore()
	if err != nil {
		return errs.Wrap(errs.IO, err, "opening catalog store")
	}
	meta := indexMeta{Name: idx.Name}
	for _, kc := range idx.Columns {
		meta.Columns = append(meta.Columns, indexMetaCol{Index: kc.ColumnIndex, Desc: kc.Desc, Collation: string(kc.Collation)})
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "encoding index metadata")
	}
	metaKey := keycodec.BuildMetaKey("index", schemaName, tableName, idx.Name)
	if err := store.Put(ctx, metaKey, payload); err != nil {
		return errs.Wrap(errs.IO, err, "persisting index metadata for %s", idx.Name)
	}
	return nil
}

// renderCreateTable produces a readable (not necessarily re-parseable by
// any particular SQL dialect) CREATE TABLE rendering for the catalog and
// for EXPLAIN/debug output.
func renderCreateTable(tbl *schema.TableSchema) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s.%s (\n", tbl.SchemaName, tbl.Name)
	for i, c := range tbl.Columns {
		fmt.Fprintf(&b, "  %s %s", c.Name, c.Type.Name)
		if !c.Nullable {
			b.WriteString(" NOT NULL")
		}
		if i < len(tbl.Columns)-1 || len(tbl.PrimaryKey) > 0 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	if len(tbl.PrimaryKey) > 0 {
		names := make([]string, len(tbl.PrimaryKey))
		for i, kc := range tbl.PrimaryKey {
			names[i] = tbl.Columns[kc.ColumnIndex].Name
		}
		fmt.Fprintf(&b, "  PRIMARY KEY (%s)\n", strings.Join(names, ", "))
	}
	b.WriteString(")")
	return b.String()
}

// restoreCatalog scans the catalog store's DDL entries and reconstructs
// every table's schema (spec §4.6: "on engine boot the module scans
// buildMetaScanBounds('ddl') to reconstruct schemas"). Entries written
// before ddlRecord carried a Schema (none in this module's lifetime, since
// there is no prior release to be compatible with) would decode with a nil
// Schema and are skipped.
func restoreCatalog(ctx context.Context, provider kv.Provider) ([]*schema.TableSchema, error) {
	store, err := provider.CatalogStore()
	if err != nil {
		return nil, errs.Wrap(errs.IO, err, "opening catalog store")
	}
	bounds := keycodec.BuildMetaScanBounds("ddl")
	it, err := store.Iterate(ctx, kv.IterOptions{Gte: bounds.Lower, Lt: bounds.Upper})
	if err != nil {
		return nil, errs.Wrap(errs.IO, err, "scanning catalog store")
	}
	defer it.Close()

	var out []*schema.TableSchema
	for {
		ok, err := it.Next(ctx)
		if err != nil {
			return nil, errs.Wrap(errs.IO, err, "iterating catalog store")
		}
		if !ok {
			break
		}
		var rec ddlRecord
		if err := json.Unmarshal(it.Entry().Value, &rec); err != nil {
			return nil, errs.Wrap(errs.Internal, err, "decoding DDL record at key %q", it.Entry().Key)
		}
		if rec.Schema != nil {
			out = append(out, rec.Schema)
		}
	}
	return out, nil
}
