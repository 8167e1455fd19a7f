// Package schema implements the schema & type registry (spec §4.13, C13):
// the catalog of tables, indexes, functions, and collations, namespaced by
// schema name ("main", "temp"). Logical types themselves live in
// internal/types; this package catalogues objects built from them.
package schema

import (
	"strings"
	"sync"

	"quereus/internal/errs"
	"quereus/internal/types"
)

// ColumnDef is a single column of a TableSchema (spec §3).
type ColumnDef struct {
	Name     string
	Type     types.LogicalType
	Nullable bool
}

// KeyColumn is one column of a primary key or index definition: a column
// index into the owning TableSchema plus direction and an optional
// collation override.
type KeyColumn struct {
	ColumnIndex int
	Desc        bool
	Collation   types.Collation
}

// IndexSchema is a secondary index definition (spec §3).
type IndexSchema struct {
	Name    string
	Columns []KeyColumn
}

// CheckConstraint is a named boolean-expression constraint; the expression
// text is opaque to the schema catalog (evaluated by the scalar algebra).
type CheckConstraint struct {
	Name string
	Expr string
}

// TableSchema is the full definition of a table or view (spec §3).
type TableSchema struct {
	Name          string
	SchemaName    string
	Columns       []ColumnDef
	PrimaryKey    []KeyColumn
	Indexes       []IndexSchema
	Checks        []CheckConstraint
	IsView        bool
	ModuleName    string
	ModuleArgs    []string
	EstimatedRows uint64
}

// ColumnIndex returns the ordinal of the named column, or -1.
func (t *TableSchema) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// PKColumnIndexes returns the ordinals of the primary-key columns in order.
func (t *TableSchema) PKColumnIndexes() []int {
	out := make([]int, len(t.PrimaryKey))
	for i, kc := range t.PrimaryKey {
		out[i] = kc.ColumnIndex
	}
	return out
}

// Index looks up a secondary index by name.
func (t *TableSchema) Index(name string) (IndexSchema, bool) {
	for _, ix := range t.Indexes {
		if strings.EqualFold(ix.Name, name) {
			return ix, true
		}
	}
	return IndexSchema{}, false
}

// FunctionKey identifies a registered scalar/aggregate function: a
// lowercased name and an arity, where -1 means variadic (spec §4.13).
type FunctionKey struct {
	Name    string
	NumArgs int
}

// ScalarFunc is a registered scalar function implementation.
type ScalarFunc func(args []types.Value) (types.Value, error)

// AggregateFunc pairs a step accumulator with a final extractor; State is
// opaque to the catalog and threaded through by the caller (emit/scheduler
// carry it per group).
type AggregateFunc struct {
	Step  func(state any, args []types.Value) (any, error)
	Final func(state any) (types.Value, error)
	Init  func() any
}

// CollationFunc is a registered text-comparison function.
type CollationFunc func(a, b string) int

// Catalog is the schema & type registry: a namespaced table catalog plus
// function and collation registries, owned by a Database instance with
// explicit init/teardown per spec §9 ("global registries... owned by the
// Database instance").
type Catalog struct {
	mu sync.RWMutex

	tables     map[string]map[string]*TableSchema
	scalars    map[FunctionKey]ScalarFunc
	aggregates map[FunctionKey]AggregateFunc
	collations map[string]CollationFunc
}

// New returns a Catalog with BINARY, NOCASE and RTRIM pre-registered (spec
// §4.13).
func New() *Catalog {
	c := &Catalog{
		tables:     map[string]map[string]*TableSchema{},
		scalars:    map[FunctionKey]ScalarFunc{},
		aggregates: map[FunctionKey]AggregateFunc{},
		collations: map[string]CollationFunc{},
	}
	c.RegisterCollation(string(types.CollationBinary), func(a, b string) int {
		return types.CollationBinary.Compare(a, b)
	})
	c.RegisterCollation(string(types.CollationNocase), func(a, b string) int {
		return types.CollationNocase.Compare(a, b)
	})
	c.RegisterCollation(string(types.CollationRtrim), func(a, b string) int {
		return types.CollationRtrim.Compare(a, b)
	})
	return c
}

func schemaName(name string) string {
	if name == "" {
		return "main"
	}
	return name
}

// PutTable registers (or replaces) a table/view definition.
func (c *Catalog) PutTable(t *TableSchema) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sn := schemaName(t.SchemaName)
	t.SchemaName = sn
	if c.tables[sn] == nil {
		c.tables[sn] = map[string]*TableSchema{}
	}
	c.tables[sn][strings.ToLower(t.Name)] = t
}

// Table looks up a table by schema and name.
func (c *Catalog) Table(schemaName, name string) (*TableSchema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sn := defaultSchema(schemaName)
	m, ok := c.tables[sn]
	if !ok {
		return nil, false
	}
	t, ok := m[strings.ToLower(name)]
	return t, ok
}

// DropTable removes a table/view definition; idempotent.
func (c *Catalog) DropTable(schemaName, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sn := defaultSchema(schemaName)
	if m, ok := c.tables[sn]; ok {
		delete(m, strings.ToLower(name))
	}
}

// Tables returns every table defined in the given schema.
func (c *Catalog) Tables(schemaName string) []*TableSchema {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sn := defaultSchema(schemaName)
	out := make([]*TableSchema, 0, len(c.tables[sn]))
	for _, t := range c.tables[sn] {
		out = append(out, t)
	}
	return out
}

func defaultSchema(s string) string {
	if s == "" {
		return "main"
	}
	return s
}

// RegisterScalar registers a scalar function under (name lowercased,
// numArgs); numArgs -1 means variadic (spec §4.13).
func (c *Catalog) RegisterScalar(name string, numArgs int, fn ScalarFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scalars[FunctionKey{Name: strings.ToLower(name), NumArgs: numArgs}] = fn
}

// Scalar resolves a scalar function call by name and argument count,
// falling back to the variadic (-1) registration.
func (c *Catalog) Scalar(name string, numArgs int) (ScalarFunc, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key := FunctionKey{Name: strings.ToLower(name), NumArgs: numArgs}
	if fn, ok := c.scalars[key]; ok {
		return fn, true
	}
	fn, ok := c.scalars[FunctionKey{Name: key.Name, NumArgs: -1}]
	return fn, ok
}

// RegisterAggregate registers an aggregate function the same way.
func (c *Catalog) RegisterAggregate(name string, numArgs int, fn AggregateFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aggregates[FunctionKey{Name: strings.ToLower(name), NumArgs: numArgs}] = fn
}

// Aggregate resolves an aggregate function call.
func (c *Catalog) Aggregate(name string, numArgs int) (AggregateFunc, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key := FunctionKey{Name: strings.ToLower(name), NumArgs: numArgs}
	if fn, ok := c.aggregates[key]; ok {
		return fn, true
	}
	fn, ok := c.aggregates[FunctionKey{Name: key.Name, NumArgs: -1}]
	return fn, ok
}

// RegisterCollation registers a user collation comparator.
func (c *Catalog) RegisterCollation(name string, fn CollationFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.collations[strings.ToUpper(name)] = fn
}

// Collation resolves a collation by name.
func (c *Catalog) Collation(name string) (CollationFunc, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.collations[strings.ToUpper(name)]
	if !ok {
		return nil, errs.New(errs.NotFound, "unknown collation %q", name)
	}
	return fn, nil
}
