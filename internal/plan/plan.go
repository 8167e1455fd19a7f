// Package plan implements the scalar/relational plan algebra (spec §4.8,
// C8): the node variants the optimizer rewrites and the emitter lowers,
// plus each node's typed output schema.
package plan

import (
	"quereus/internal/schema"
	"quereus/internal/types"
)

// OutputColumn is one column of a node's typed output schema (spec §4.8:
// "every node carries...a typed output schema (column logical types +
// nullability + set-semantics flag)").
type OutputColumn struct {
	Name string
	Type types.LogicalType
}

// OutputSchema is a plan node's result shape.
type OutputSchema struct {
	Columns  []OutputColumn
	IsSet    bool // true if the node is known to produce no duplicate rows
}

// ColumnIndex returns the ordinal of name in the schema, or -1.
func (s OutputSchema) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Context carries planning-time state shared by every node built for one
// statement: the schema catalog and options that affect planning (spec
// §4.8: "every node carries a PlanningContext reference").
type Context struct {
	Catalog *schema.Catalog
	Params  map[string]types.Value
}

// Node is a relational plan node.
type Node interface {
	Schema() OutputSchema
	Children() []Node
}

// ScalarNode is a node of the scalar sub-algebra (§4.8).
type ScalarNode interface {
	ScalarType(input OutputSchema) types.LogicalType
}

// --- Relational nodes -------------------------------------------------

// TableScan reads rows from a virtual table under an access plan chosen by
// the optimizer (initially unresolved; C9 fills AccessPlan in).
type TableScan struct {
	TableSchema *schema.TableSchema
	Alias       string
	Filters     []ScalarFilter
	AccessPlan  *ResolvedAccessPlan
	out         OutputSchema
}

// ScalarFilter is one candidate predicate a TableScan may hand to the
// table's access-plan negotiation (spec §4.7).
type ScalarFilter struct {
	ColumnIndex int
	Op          types.Op
	Value       Scalar
}

// ResolvedAccessPlan is filled in by the optimizer after calling the
// table's getBestAccessPlan (spec §4.9).
type ResolvedAccessPlan struct {
	Cost             float64
	Rows             uint64
	HandledFilters   []bool
	ProvidesOrdering []OrderingSpec
	IsSet            bool
	IndexName        string
	SeekColumns      []int
	Explains         string
}

// OrderingSpec names one column of an ordering, relational-plan side.
type OrderingSpec struct {
	ColumnIndex int
	Desc        bool
}

func NewTableScan(ts *schema.TableSchema, alias string) *TableScan {
	cols := make([]OutputColumn, len(ts.Columns))
	for i, c := range ts.Columns {
		cols[i] = OutputColumn{Name: c.Name, Type: c.Type}
	}
	return &TableScan{TableSchema: ts, Alias: alias, out: OutputSchema{Columns: cols}}
}

func (n *TableScan) Schema() OutputSchema { return n.out }
func (n *TableScan) Children() []Node     { return nil }

// Filter applies a residual predicate to its input.
type Filter struct {
	Input     Node
	Predicate Scalar
	// Pushed marks a predicate as already pushed into a child's access
	// plan. The optimizer does not set it and the emitter does not read it:
	// every Filter predicate is evaluated against each input row.
	Pushed bool
}

func (n *Filter) Schema() OutputSchema { return n.Input.Schema() }
func (n *Filter) Children() []Node     { return []Node{n.Input} }

// Project computes a new row from a set of scalar expressions over Input.
type Project struct {
	Input Node
	Exprs []ProjectExpr
}

// ProjectExpr is one output column of a Project.
type ProjectExpr struct {
	Name string
	Expr Scalar
}

func (n *Project) Schema() OutputSchema {
	cols := make([]OutputColumn, len(n.Exprs))
	in := n.Input.Schema()
	for i, e := range n.Exprs {
		cols[i] = OutputColumn{Name: e.Name, Type: e.Expr.ScalarType(in)}
	}
	return OutputSchema{Columns: cols, IsSet: in.IsSet}
}
func (n *Project) Children() []Node { return []Node{n.Input} }

// Values is a literal row source.
type Values struct {
	Rows []types.Row
	out  OutputSchema
}

func NewValues(rows []types.Row, out OutputSchema) *Values { return &Values{Rows: rows, out: out} }
func (n *Values) Schema() OutputSchema                      { return n.out }
func (n *Values) Children() []Node                          { return nil }

// SingleRow is the one-empty-row source used to plan a no-FROM SELECT.
type SingleRow struct{}

func (n *SingleRow) Schema() OutputSchema { return OutputSchema{IsSet: true} }
func (n *SingleRow) Children() []Node     { return nil }

// JoinType enumerates NestedLoopJoin's join kinds (spec §4.8).
type JoinType int

const (
	JoinInner JoinType = iota
	JoinLeft
	JoinRight
	JoinFull
	JoinCross
)

// NestedLoopJoin joins Outer and Inner row-wise (spec §4.8). Cross joins
// use selectivity 1.0 and carry no Condition; equality-join conditions use
// a default selectivity of 0.1 (spec §4.8 join planning). NLJ preserves
// outer order except when DriveInner is set (see below).
//
// The join tree's shape -- which relations pair up, and in what nesting --
// is fixed by the FROM clause the planner read; the spec explicitly
// excludes reordering joins beyond greedy selection. DriveInner is a
// narrower decision: which side is cheaper to iterate as the physical
// outer loop of the nested-loop execution, scored by internal/planner's
// buildFrom using the spec's recursive cost formula (leftCost +
// leftRows·innerPlanCost) to compare "left drives" against "right
// drives". It is only ever set when Type is JoinInner or JoinCross,
// where swapping the driving side cannot change which rows are produced;
// JoinLeft/JoinRight must keep driving from their preserved side so
// unmatched-row padding stays correct.
type NestedLoopJoin struct {
	Outer, Inner Node
	Type         JoinType
	Condition    Scalar
	DriveInner   bool
}

func (n *NestedLoopJoin) Schema() OutputSchema {
	o, i := n.Outer.Schema(), n.Inner.Schema()
	cols := append(append([]OutputColumn{}, o.Columns...), i.Columns...)
	return OutputSchema{Columns: cols}
}
func (n *NestedLoopJoin) Children() []Node { return []Node{n.Outer, n.Inner} }

// AggregateExpr is one aggregate output column of an Aggregate node.
type AggregateExpr struct {
	Name     string
	Func     string
	Arg      Scalar // nil for count(*)
	ArgCount int
}

// Aggregate groups Input by GroupExprs and computes Aggs per group.
type Aggregate struct {
	Input       Node
	GroupExprs  []Scalar
	GroupNames  []string
	Aggs        []AggregateExpr
}

func (n *Aggregate) Schema() OutputSchema {
	in := n.Input.Schema()
	cols := make([]OutputColumn, 0, len(n.GroupExprs)+len(n.Aggs))
	for i, g := range n.GroupExprs {
		cols = append(cols, OutputColumn{Name: n.GroupNames[i], Type: g.ScalarType(in)})
	}
	for _, a := range n.Aggs {
		t := types.LogicalType{Name: types.LogicalNumeric}
		if a.Arg != nil {
			t = a.Arg.ScalarType(in)
		}
		cols = append(cols, OutputColumn{Name: a.Name, Type: t})
	}
	return OutputSchema{Columns: cols, IsSet: len(n.GroupExprs) > 0}
}
func (n *Aggregate) Children() []Node { return []Node{n.Input} }

// SortKey is one ORDER BY term.
type SortKey struct {
	Expr Scalar
	Desc bool
}

// Sort orders Input by OrderBy.
type Sort struct {
	Input   Node
	OrderBy []SortKey
}

func (n *Sort) Schema() OutputSchema { return n.Input.Schema() }
func (n *Sort) Children() []Node     { return []Node{n.Input} }

// Limit caps Input to Count rows after skipping Offset.
type Limit struct {
	Input  Node
	Count  int64
	Offset int64
	HasCount  bool
	HasOffset bool
}

func (n *Limit) Schema() OutputSchema { return n.Input.Schema() }
func (n *Limit) Children() []Node     { return []Node{n.Input} }

// TableValuedFunctionCall invokes a registered TVF (spec §6.3).
type TableValuedFunctionCall struct {
	Name     string
	Operands []Scalar
	out      OutputSchema
}

func NewTVFCall(name string, operands []Scalar, out OutputSchema) *TableValuedFunctionCall {
	return &TableValuedFunctionCall{Name: name, Operands: operands, out: out}
}
func (n *TableValuedFunctionCall) Schema() OutputSchema { return n.out }
func (n *TableValuedFunctionCall) Children() []Node     { return nil }

// DMLKind enumerates the DML node's operation.
type DMLKind int

const (
	DMLInsert DMLKind = iota
	DMLUpdate
	DMLDelete
)

// DML wraps a mutating statement over Table; Source supplies the rows
// (typically a Values node for INSERT, or a Filter/TableScan for
// UPDATE/DELETE).
type DML struct {
	Kind        DMLKind
	TableSchema *schema.TableSchema
	Source      Node
	Assignments []Assignment // UPDATE only
}

// Assignment is one SET column = expr clause of an UPDATE.
type Assignment struct {
	ColumnIndex int
	Expr        Scalar
}

func (n *DML) Schema() OutputSchema { return OutputSchema{} }
func (n *DML) Children() []Node {
	if n.Source == nil {
		return nil
	}
	return []Node{n.Source}
}

// CreateTable wraps a CREATE TABLE statement lowered to a TableSchema; the
// engine hands TableSchema straight to the target vtab.Module's Create
// rather than routing it through the optimizer/emitter (spec §4.6
// create(db, tableSchema)).
type CreateTable struct {
	TableSchema *schema.TableSchema
	ModuleName  string
	ModuleArgs  []string
	IfNotExists bool
}

func (n *CreateTable) Schema() OutputSchema { return OutputSchema{} }
func (n *CreateTable) Children() []Node     { return nil }

// CreateIndex wraps a CREATE INDEX statement lowered against an already
// registered table; like CreateTable the engine hands it straight to the
// target vtab.Module's CreateIndex rather than routing it through the
// optimizer/emitter.
type CreateIndex struct {
	SchemaName  string
	TableName   string
	Index       schema.IndexSchema
	IfNotExists bool
}

func (n *CreateIndex) Schema() OutputSchema { return OutputSchema{} }
func (n *CreateIndex) Children() []Node     { return nil }

// Block sequences multiple statements (e.g. an implicit-transaction batch).
type Block struct {
	Stmts []Node
}

func (n *Block) Schema() OutputSchema {
	if len(n.Stmts) == 0 {
		return OutputSchema{}
	}
	return n.Stmts[len(n.Stmts)-1].Schema()
}
func (n *Block) Children() []Node { return n.Stmts }
