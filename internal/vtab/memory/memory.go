// Package memory implements the "memory" virtual-table module (spec §6.2
// default_vtab_module): a concrete vtab.Module that stores every table's
// data in an in-memory kv.Provider (internal/kv/memkv) via
// internal/storetable. It persists DDL to the catalog store exactly as
// spec §4.6 describes and is the module the engine's own integration
// tests (spec §8 S1-S5) run against.
package memory

import (
	"context"
	"strings"
	"sync"

	"quereus/internal/errs"
	"quereus/internal/kv"
	"quereus/internal/schema"
	"quereus/internal/storetable"
	"quereus/internal/vtab"
)

// Module is the "memory" vtab.Module. A given (schemaName, tableName) maps
// to at most one live *storetable.Table per Module instance (spec §4.6
// module-level invariant).
type Module struct {
	provider kv.Provider

	mu     sync.Mutex
	tables map[string]*storetable.Table
}

// New returns a memory module backed by provider (typically
// memkv.NewProvider()).
func New(provider kv.Provider) *Module {
	return &Module{provider: provider, tables: map[string]*storetable.Table{}}
}

func key(schemaName, tableName string) string { return strings.ToLower(schemaName + "." + tableName) }

var _ vtab.Module = (*Module)(nil)
var _ vtab.CatalogRestorer = (*Module)(nil)

// RestoreCatalog implements vtab.CatalogRestorer: it scans the catalog
// store's persisted DDL records and attaches a storetable.Table for every
// one not already connected in this process (spec §4.6 on-boot catalog
// reconstruction). Called once by the database when this module is
// registered.
func (m *Module) RestoreCatalog(ctx context.Context) ([]*schema.TableSchema, error) {
	schemas, err := restoreCatalog(ctx, m.provider)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ts := range schemas {
		k := key(ts.SchemaName, ts.Name)
		if _, ok := m.tables[k]; !ok {
			m.tables[k] = storetable.New(ts, m.provider)
		}
	}
	return schemas, nil
}

// Create builds a fresh storetable.Table, persists its DDL to the catalog
// store, and emits SchemaChangeCreate (spec §4.6).
func (m *Module) Create(ctx context.Context, db vtab.ModuleDB, tbl *schema.TableSchema) (vtab.Table, error) {
	m.mu.Lock()
	k := key(tbl.SchemaName, tbl.Name)
	if _, exists := m.tables[k]; exists {
		m.mu.Unlock()
		return nil, errs.New(errs.Constraint, "table %s already exists", k)
	}
	st := storetable.New(tbl, m.provider)
	m.tables[k] = st
	m.mu.Unlock()

	if err := persistDDL(ctx, m.provider, tbl); err != nil {
		return nil, err
	}
	db.PublishSchemaChange(vtab.SchemaChange{Kind: vtab.SchemaChangeCreate, SchemaName: tbl.SchemaName, TableName: tbl.Name})
	return st, nil
}

// Connect reattaches to an existing table's storage, creating the
// in-process storetable.Table lazily if this is the first connection in
// this process since boot (the table's data/stats/index stores already
// exist in the provider; only the in-memory handle is new).
func (m *Module) Connect(ctx context.Context, db vtab.ModuleDB, aux any, moduleName string, tbl *schema.TableSchema) (vtab.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(tbl.SchemaName, tbl.Name)
	if st, ok := m.tables[k]; ok {
		return st, nil
	}
	st := storetable.New(tbl, m.provider)
	m.tables[k] = st
	return st, nil
}

// Destroy disconnects, closes the table's stores, and removes its DDL from
// the catalog (spec §4.6). Idempotent after the first call.
func (m *Module) Destroy(ctx context.Context, db vtab.ModuleDB, aux any, moduleName, schemaName, tableName string) error {
	m.mu.Lock()
	k := key(schemaName, tableName)
	st, ok := m.tables[k]
	delete(m.tables, k)
	m.mu.Unlock()

	if ok {
		if err := st.Disconnect(ctx); err != nil {
			return err
		}
	}
	if err := m.provider.DeleteTableStores(schemaName, tableName); err != nil {
		return errs.Wrap(errs.IO, err, "deleting stores for %s", k)
	}
	if err := removeDDL(ctx, m.provider, schemaName, tableName); err != nil {
		return err
	}
	db.PublishSchemaChange(vtab.SchemaChange{Kind: vtab.SchemaChangeDrop, SchemaName: schemaName, TableName: tableName})
	return nil
}

// CreateIndex persists index metadata, backfills it by scanning the data
// store, and emits SchemaChangeCreateIndex (spec §4.6).
func (m *Module) CreateIndex(ctx context.Context, db vtab.ModuleDB, tbl *schema.TableSchema, idx schema.IndexSchema) error {
	m.mu.Lock()
	st, ok := m.tables[key(tbl.SchemaName, tbl.Name)]
	m.mu.Unlock()
	if !ok {
		return errs.New(errs.NotFound, "table %s.%s is not connected", tbl.SchemaName, tbl.Name)
	}

	if err := persistIndexMeta(ctx, m.provider, tbl.SchemaName, tbl.Name, idx); err != nil {
		return err
	}
	if err := st.BackfillIndex(ctx, idx); err != nil {
		return err
	}
	// tbl.Indexes doesn't yet include idx here -- the engine only appends
	// it to the catalog's TableSchema after this call returns -- so the
	// persisted DDL record must carry its own copy with idx already
	// appended, or a restart before the next DDL write would restore this
	// table missing the index it already backfilled.
	persisted := *tbl
	persisted.Indexes = append(append([]schema.IndexSchema{}, tbl.Indexes...), idx)
	if err := persistDDL(ctx, m.provider, &persisted); err != nil {
		return err
	}
	db.PublishSchemaChange(vtab.SchemaChange{Kind: vtab.SchemaChangeCreateIndex, SchemaName: tbl.SchemaName, TableName: tbl.Name, IndexName: idx.Name})
	return nil
}
