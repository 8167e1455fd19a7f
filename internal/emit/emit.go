// Package emit lowers an optimized plan tree into the instruction DAG the
// scheduler runs (spec §4.10, C10): each plan node becomes one Instruction
// whose Run closure captures exactly the schema objects it needs, recorded
// as SchemaDependencies so a later schema change can invalidate the cached
// plan.
package emit

import (
	"context"

	"quereus/internal/schema"
)

// Instruction is one node of the runtime DAG: an ordered list of parameter
// instructions plus a run closure that computes this node's value from its
// parameters' already-computed results (spec §4.10: "{params, run, note}").
type Instruction struct {
	Params []*Instruction
	Run    func(ctx context.Context, args []any) (any, error)
	Note   string
}

// DependencyKind identifies what kind of schema object a SchemaDependency
// names (spec §4.10).
type DependencyKind int

const (
	DependencyTable DependencyKind = iota
	DependencyFunction
	DependencyCollation
	DependencyModule
)

// SchemaDependency records one schema object an emitted instruction
// resolved, keyed so a schema-change notification naming the same key can
// invalidate the cached plan (spec §4.10 "dependency fingerprint").
type SchemaDependency struct {
	Kind       DependencyKind
	SchemaName string
	ObjectName string
	Version    int
}

// Key returns the dependency's cache-invalidation key.
func (d SchemaDependency) Key() string {
	switch d.Kind {
	case DependencyTable:
		return "table:" + d.SchemaName + "." + d.ObjectName
	case DependencyFunction:
		return "function:" + d.ObjectName
	case DependencyCollation:
		return "collation:" + d.ObjectName
	case DependencyModule:
		return "module:" + d.ObjectName
	default:
		return "?:" + d.ObjectName
	}
}

// Context is the EmissionContext (spec §4.10): it resolves schema objects
// at emission time and captures each one under a stable key so the
// scheduler later retrieves the exact object that was resolved, immune to
// schema changes made between emit and run.
type Context struct {
	Catalog *schema.Catalog

	dependencies []SchemaDependency
	captured     map[string]any
}

// NewContext returns an EmissionContext bound to catalog.
func NewContext(catalog *schema.Catalog) *Context {
	return &Context{Catalog: catalog, captured: map[string]any{}}
}

// CaptureTable resolves and records a table dependency, returning its
// TableSchema for the emitter to build a scan/DML instruction from.
func (c *Context) CaptureTable(schemaName, tableName string) (*schema.TableSchema, bool) {
	t, ok := c.Catalog.Table(schemaName, tableName)
	if !ok {
		return nil, false
	}
	key := SchemaDependency{Kind: DependencyTable, SchemaName: schemaName, ObjectName: tableName}
	c.dependencies = append(c.dependencies, key)
	c.captured[key.Key()] = t
	return t, true
}

// CaptureFunction records a scalar/aggregate function name dependency.
func (c *Context) CaptureFunction(name string) {
	key := SchemaDependency{Kind: DependencyFunction, ObjectName: name}
	c.dependencies = append(c.dependencies, key)
}

// CaptureCollation records a collation dependency.
func (c *Context) CaptureCollation(name string) {
	key := SchemaDependency{Kind: DependencyCollation, ObjectName: name}
	c.dependencies = append(c.dependencies, key)
}

// Dependencies returns every dependency recorded during emission, the
// input to the plan cache's fingerprint (spec §4.10: "sorted union of
// dependency keys").
func (c *Context) Dependencies() []SchemaDependency { return c.dependencies }

// Fingerprint returns the sorted set of dependency keys.
func (c *Context) Fingerprint() []string {
	keys := make([]string, 0, len(c.dependencies))
	seen := map[string]bool{}
	for _, d := range c.dependencies {
		k := d.Key()
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

// ValidateCapturedSchemaObjects re-resolves every captured table and
// reports whether any object disappeared or was redefined since emission
// (spec §4.10 "early schema-change detection at execution start").
func (c *Context) ValidateCapturedSchemaObjects() error {
	for _, d := range c.dependencies {
		if d.Kind != DependencyTable {
			continue
		}
		t, ok := c.Catalog.Table(d.SchemaName, d.ObjectName)
		if !ok {
			return missingTableError(d.SchemaName, d.ObjectName)
		}
		cached := c.captured[d.Key()].(*schema.TableSchema)
		if t != cached {
			return redefinedTableError(d.SchemaName, d.ObjectName)
		}
	}
	return nil
}
