// Package vtab defines the virtual-table module interface (spec §4.6, C6)
// and the access-plan negotiator contract (spec §4.7, C7). Concrete
// modules (e.g. internal/vtab/memory) implement Module against a
// kv.Provider; the planner and optimizer consume only this interface.
package vtab

import (
	"context"

	"github.com/google/uuid"

	"quereus/internal/schema"
	"quereus/internal/types"
)

// ConnectionID identifies a VirtualTableConnection; spec §4.5/§4.12 require
// connections be "registered by UUID" with the database.
type ConnectionID = uuid.UUID

// NewConnectionID mints a fresh connection identity.
func NewConnectionID() ConnectionID { return uuid.New() }

// Connection is a handle on a virtual table participating in a transaction
// (spec §3/§9: "lives while a transaction or an open scan references it").
// It is the minimal surface the Database's connection registry needs:
// begin/commit/rollback/savepoints, independent of the concrete module.
type Connection interface {
	ID() ConnectionID
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	CreateSavepoint(ctx context.Context, depth int) error
	RollbackToSavepoint(ctx context.Context, depth int) error
	ReleaseSavepoint(ctx context.Context, depth int) error
	Disconnect(ctx context.Context) error
}

// Op is the kind of a DML operation handled by Table.Update.
type Op int

const (
	OpInsert Op = iota
	OpUpdate
	OpDelete
)

// ConflictPolicy governs PK-conflict handling on insert (spec §4.5).
type ConflictPolicy int

const (
	ConflictAbort ConflictPolicy = iota
	ConflictReplace
)

// UpdateRequest describes a single DML operation against a Table (spec
// §4.5): Insert requires Values; Update and Delete require OldKeyValues
// (the previous row's primary-key values, used to locate the data key).
type UpdateRequest struct {
	Operation     Op
	Values        types.Row
	OldKeyValues  types.Row
	OnConflict    ConflictPolicy
}

// FilterConstraint is one predicate the planner offers a table in a
// BestAccessPlanRequest / query call (spec §4.5/§4.7).
type FilterConstraint struct {
	ColumnIndex int
	Op          types.Op
	Usable      bool
	Value       types.Value
}

// FilterInfo is the full predicate/ordering context passed to Table.Query.
type FilterInfo struct {
	Constraints []FilterConstraint
	IndexName   string
	SeekColumns []int
}

// Row is a single query result row.
type Row = types.Row

// RowIterator is the lazy, single-consumer sequence contract for scans
// (spec §9): Next advances, Close releases on every exit path.
type RowIterator interface {
	Next(ctx context.Context) (Row, bool, error)
	Close() error
}

// Table is the live, connected instance of a virtual table (spec §4.5).
type Table interface {
	Schema() *schema.TableSchema
	Query(ctx context.Context, filter FilterInfo) (RowIterator, error)
	Update(ctx context.Context, req UpdateRequest) (types.Row, bool, error)
	EstimatedRowCount(ctx context.Context) (uint64, error)
	Connection(ctx context.Context) (Connection, error)
	Disconnect(ctx context.Context) error
	BestAccessPlan(ctx context.Context, req BestAccessPlanRequest) (BestAccessPlanResult, error)
}

// SchemaChangeKind identifies the DDL event a module emits (spec §4.6).
type SchemaChangeKind int

const (
	SchemaChangeCreate SchemaChangeKind = iota
	SchemaChangeDrop
	SchemaChangeCreateIndex
)

// SchemaChange is emitted by create/destroy/createIndex.
type SchemaChange struct {
	Kind       SchemaChangeKind
	SchemaName string
	TableName  string
	IndexName  string
}

// ModuleDB is the narrow slice of the database a module needs in order to
// persist DDL and publish schema-change notifications; internal/engine
// satisfies it without vtab needing to import engine (breaking the import
// cycle the full Database type would otherwise create).
type ModuleDB interface {
	PublishSchemaChange(change SchemaChange)
}

// Module is the virtual-table module interface (spec §4.6): lifecycle
// (create/connect/destroy) and secondary-index creation. Access planning
// is on Table.BestAccessPlan, not on Module.
// A given (schemaName, tableName) maps to at most one live Table instance
// per process; Destroy is idempotent after the first call.
type Module interface {
	Create(ctx context.Context, db ModuleDB, tbl *schema.TableSchema) (Table, error)
	Connect(ctx context.Context, db ModuleDB, aux any, moduleName string, tbl *schema.TableSchema) (Table, error)
	Destroy(ctx context.Context, db ModuleDB, aux any, moduleName, schemaName, tableName string) error
	CreateIndex(ctx context.Context, db ModuleDB, tbl *schema.TableSchema, idx schema.IndexSchema) error
}

// CatalogRestorer is implemented by a Module that persists DDL/catalog
// metadata durably enough to rebuild its tables' schemas from it (spec
// §4.6: "on engine boot the module scans buildMetaScanBounds('ddl') to
// reconstruct schemas"). It is optional -- a module with nothing durable
// to scan (or that keeps its schemas elsewhere) simply doesn't implement
// it. The database's module registration path type-asserts for this
// interface and calls it automatically so the catalog survives a process
// restart against the same backing store.
type CatalogRestorer interface {
	RestoreCatalog(ctx context.Context) ([]*schema.TableSchema, error)
}

// BestAccessPlanRequest is the planner's query to a module (spec §4.7).
type BestAccessPlanRequest struct {
	Filters           []FilterConstraint
	RequiredOrdering  []OrderingSpec
	EstimatedRows     uint64
}

// OrderingSpec names one column of a required or provided ordering.
type OrderingSpec struct {
	ColumnIndex int
	Desc        bool
}

// BestAccessPlanResult is the module's committed access strategy (spec
// §4.7). HandledFilters must have the same length as the request's
// Filters; IsSet true implies Rows <= 1 (spec invariant 9).
type BestAccessPlanResult struct {
	Cost             float64
	Rows             uint64
	HandledFilters   []bool
	ProvidesOrdering []OrderingSpec
	IsSet            bool
	IndexName        string
	SeekColumns      []int
	Explains         string
}

// Validate checks the planner-side contract of spec §4.7/invariant 9.
func (r BestAccessPlanResult) Validate(numFilters int) error {
	if len(r.HandledFilters) != numFilters {
		return errInvalidAccessPlan("handledFilters length %d != filters length %d", len(r.HandledFilters), numFilters)
	}
	if r.IsSet && r.Rows > 1 {
		return errInvalidAccessPlan("isSet result must have rows <= 1, got %d", r.Rows)
	}
	return nil
}
