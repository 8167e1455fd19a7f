// Package engine implements the Database & Connection Manager (spec §4.12,
// C12): statement preparation and execution, implicit-transaction
// orchestration across every registered virtual-table connection, and the
// registries (vtab modules, scalar/aggregate functions, collations) the
// spec requires a Database instance to own with explicit init/teardown
// (spec §9). It is the one package that wires C8 (planner) through C9
// (optimizer) through C10 (emit) through C11 (scheduler) into a single
// statement pipeline, the way the teacher's cli/main.go wires its parser,
// differ and formatter into one command.
package engine

import (
	"context"
	"strings"
	"sync"

	"quereus/internal/emit"
	"quereus/internal/errs"
	"quereus/internal/kv"
	"quereus/internal/logging"
	"quereus/internal/optimizer"
	"quereus/internal/planner"
	"quereus/internal/schema"
	"quereus/internal/vtab"
)

// Database owns the schema catalog, the module/function/collation
// registries, the optimizer and planner instances, the live connection
// registry keyed by UUID, and the transaction-mode flags spec §4.12 lists
// ("isAutocommit, inTransaction, inImplicitTransaction").
type Database struct {
	Catalog   *schema.Catalog
	Provider  kv.Provider
	Modules   *vtab.Registry
	Optimizer *optimizer.Optimizer
	Planner   *planner.Builder
	Options   Options

	mu                     sync.Mutex
	connections            map[vtab.ConnectionID]vtab.Connection
	pendingDisconnect      map[vtab.ConnectionID]bool
	tables                 map[string]vtab.Table
	prepared               map[string]*Statement
	isAutocommit           bool
	inTransaction          bool
	inImplicitTransaction  bool
}

// New returns a Database backed by provider, with autocommit on (spec
// §4.12: "Autocommit mode... means every statement is its own
// transaction" is the engine's resting state). New registers no vtab
// module; callers register one with RegisterVtabModule under the name
// Options.DefaultVtabModule refers to.
func New(provider kv.Provider, opts Options) *Database {
	catalog := schema.New()
	db := &Database{
		Catalog:           catalog,
		Provider:          provider,
		Modules:           vtab.NewRegistry(),
		Options:           opts,
		connections:       map[vtab.ConnectionID]vtab.Connection{},
		pendingDisconnect: map[vtab.ConnectionID]bool{},
		tables:            map[string]vtab.Table{},
		prepared:          map[string]*Statement{},
		isAutocommit:      true,
	}
	db.Planner = planner.New(catalog)
	db.Optimizer = optimizer.New(db)
	db.Optimizer.ValidatePlan = opts.ValidatePlan
	return db
}

func tableKey(schemaName, tableName string) string {
	return strings.ToLower(schemaName) + "." + strings.ToLower(tableName)
}

// RegisterVtabModule adds a module to the database's registry (spec §6.2
// registerVtabModule). If m also implements vtab.CatalogRestorer, its
// catalog is scanned and reconstructed immediately (spec §4.6: "on engine
// boot the module scans buildMetaScanBounds('ddl') to reconstruct
// schemas"), so restart-and-reconnect sees every table the module's
// backing store already durably holds. A restore failure is logged, not
// propagated -- the module is still registered and usable for new tables
// -- matching the log-don't-propagate idiom the background stats flush
// already uses (internal/storetable/stats.go).
func (d *Database) RegisterVtabModule(ctx context.Context, name string, m vtab.Module, aux any) {
	d.Modules.Register(name, m, aux)

	restorer, ok := m.(vtab.CatalogRestorer)
	if !ok {
		return
	}
	schemas, err := restorer.RestoreCatalog(ctx)
	if err != nil {
		logging.Default.Errorf("restoring catalog for vtab module %q: %v", name, err)
		return
	}
	for _, ts := range schemas {
		if ts.ModuleName == "" {
			ts.ModuleName = name
		}
		if _, exists := d.Catalog.Table(ts.SchemaName, ts.Name); !exists {
			d.Catalog.PutTable(ts)
		}
	}
}

// RegisterCollation adds a user collation comparator (spec §6.2
// registerCollation).
func (d *Database) RegisterCollation(name string, fn schema.CollationFunc) {
	d.Catalog.RegisterCollation(name, fn)
}

// CreateScalarFunction registers a scalar function (spec §6.2
// createScalarFunction). numArgs is -1 for variadic.
func (d *Database) CreateScalarFunction(name string, numArgs int, fn schema.ScalarFunc) {
	d.Catalog.RegisterScalar(name, numArgs, fn)
}

// CreateAggregateFunction registers an aggregate function (spec §6.2
// createAggregateFunction).
func (d *Database) CreateAggregateFunction(name string, numArgs int, fn schema.AggregateFunc) {
	d.Catalog.RegisterAggregate(name, numArgs, fn)
}

// PublishSchemaChange implements vtab.ModuleDB: a module calls this after
// create/destroy/createIndex so the database can evict any stale live
// Table handle it is holding (spec §4.6). Dropping the cached handle
// forces the next ResolveTable to reconnect through the module. On a drop
// the table is also removed from the catalog, so a plan that captured it
// fails emit.Context.ValidateCapturedSchemaObjects (NotFound), and a
// same-named table created afterwards is a new TableSchema that the same
// check reports as redefined (S6).
func (d *Database) PublishSchemaChange(change vtab.SchemaChange) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.tables, tableKey(change.SchemaName, change.TableName))
	if change.Kind == vtab.SchemaChangeDrop {
		d.Catalog.DropTable(change.SchemaName, change.TableName)
	}
}

// ResolveTable implements optimizer.TableResolver and emit.TableResolver:
// it looks up the TableSchema in the catalog, then returns a cached live
// vtab.Table or connects a fresh one through the owning module (spec §4.6
// "at most one live Table instance per process").
func (d *Database) ResolveTable(ctx context.Context, schemaName, tableName string) (vtab.Table, error) {
	ts, ok := d.Catalog.Table(schemaName, tableName)
	if !ok {
		return nil, errs.New(errs.NotFound, "no such table: %s.%s", schemaName, tableName)
	}

	k := tableKey(ts.SchemaName, ts.Name)
	d.mu.Lock()
	if t, ok := d.tables[k]; ok {
		d.mu.Unlock()
		return t, nil
	}
	d.mu.Unlock()

	mod, aux, err := d.Modules.Lookup(ts.ModuleName)
	if err != nil {
		return nil, err
	}
	t, err := mod.Connect(ctx, d, aux, ts.ModuleName, ts)
	if err != nil {
		return nil, err
	}
	if err := d.adoptConnection(ctx, t); err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.tables[k] = t
	d.mu.Unlock()
	return t, nil
}

// adoptConnection fetches tbl's stable connection object and registers it
// with the database (spec §4.5: "registration with the database is
// side-effectful and required before transactional DML - the caller,
// internal/engine, is responsible for registering it").
func (d *Database) adoptConnection(ctx context.Context, tbl vtab.Table) error {
	conn, err := tbl.Connection(ctx)
	if err != nil {
		return err
	}
	return d.RegisterConnection(ctx, conn)
}

// CreateTable executes a plan.CreateTable directly against its target
// module, bypassing the optimizer/emitter/scheduler pipeline since a DDL
// statement carries no rows to schedule (spec §4.6 create(db, tableSchema)).
// The schema is registered in the catalog before the module is asked to
// materialize storage, then rolled back from the catalog if that fails.
func (d *Database) CreateTable(ctx context.Context, ts *schema.TableSchema, ifNotExists bool) error {
	moduleName := ts.ModuleName
	if moduleName == "" {
		moduleName = d.Options.DefaultVtabModule
		ts.ModuleName = moduleName
	}

	if existing, exists := d.Catalog.Table(ts.SchemaName, ts.Name); exists {
		if !ifNotExists {
			return errs.New(errs.Constraint, "table %s already exists", tableKey(ts.SchemaName, ts.Name))
		}
		// CREATE TABLE IF NOT EXISTS against a live table: classify the
		// requested shape against what is already there rather than
		// silently no-op'ing a genuinely different table under the same
		// name (spec §4.10/§8 S6 schema-change classification).
		switch schema.Classify(existing, ts) {
		case schema.ChangeNone, schema.ChangeCompatible:
			return nil
		default:
			return errs.New(errs.Constraint, "table %s already exists with an incompatible shape", tableKey(ts.SchemaName, ts.Name))
		}
	}

	mod, aux, err := d.Modules.Lookup(moduleName)
	if err != nil {
		return err
	}
	d.Catalog.PutTable(ts)

	t, err := mod.Create(ctx, d, ts)
	if err != nil {
		d.Catalog.DropTable(ts.SchemaName, ts.Name)
		return err
	}
	_ = aux
	if err := d.adoptConnection(ctx, t); err != nil {
		return err
	}

	d.mu.Lock()
	d.tables[tableKey(ts.SchemaName, ts.Name)] = t
	d.mu.Unlock()
	return nil
}

// CreateIndex executes a plan.CreateIndex directly against its target
// module (spec §4.6 CreateIndex, §4.7 access-plan selection): the table is
// resolved (connecting it if this is the first reference since boot) so
// the module can locate its live storetable.Table, then the new index is
// appended to the catalog's TableSchema so the optimizer can see it on the
// very next statement.
func (d *Database) CreateIndex(ctx context.Context, schemaName, tableName string, idx schema.IndexSchema, ifNotExists bool) error {
	ts, ok := d.Catalog.Table(schemaName, tableName)
	if !ok {
		return errs.New(errs.NotFound, "no such table: %s", tableKey(schemaName, tableName))
	}
	if _, exists := ts.Index(idx.Name); exists {
		if ifNotExists {
			return nil
		}
		return errs.New(errs.Constraint, "index %s already exists on %s", idx.Name, tableKey(schemaName, tableName))
	}

	if _, err := d.ResolveTable(ctx, ts.SchemaName, ts.Name); err != nil {
		return err
	}
	mod, _, err := d.Modules.Lookup(ts.ModuleName)
	if err != nil {
		return err
	}
	if err := mod.CreateIndex(ctx, d, ts, idx); err != nil {
		return err
	}
	ts.Indexes = append(ts.Indexes, idx)
	return nil
}

// Close disconnects every registered connection and releases the
// provider's stores (spec §4.12 close()).
func (d *Database) Close(ctx context.Context) error {
	d.mu.Lock()
	conns := make([]vtab.Connection, 0, len(d.connections))
	for _, c := range d.connections {
		conns = append(conns, c)
	}
	d.connections = map[vtab.ConnectionID]vtab.Connection{}
	d.mu.Unlock()

	var firstErr error
	for _, c := range conns {
		if err := c.Disconnect(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := d.Provider.CloseAll(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
