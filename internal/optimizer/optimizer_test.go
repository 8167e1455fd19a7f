package optimizer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quereus/internal/optimizer"
	"quereus/internal/plan"
	"quereus/internal/schema"
	"quereus/internal/types"
	"quereus/internal/vtab"
)

// fakeTable is the minimal vtab.Table stub needed to exercise access-plan
// negotiation without a real storage backend.
type fakeTable struct {
	schema *schema.TableSchema
	// handledColumn, when >= 0, marks one filter column as handled by an
	// imaginary index so pushIntoScan can observe a residual-free scan.
	handledColumn int
}

func (f *fakeTable) Schema() *schema.TableSchema { return f.schema }
func (f *fakeTable) Query(context.Context, vtab.FilterInfo) (vtab.RowIterator, error) {
	return nil, nil
}
func (f *fakeTable) Update(context.Context, vtab.UpdateRequest) (types.Row, bool, error) {
	return nil, false, nil
}
func (f *fakeTable) EstimatedRowCount(context.Context) (uint64, error) { return 100, nil }
func (f *fakeTable) Connection(context.Context) (vtab.Connection, error) { return nil, nil }
func (f *fakeTable) Disconnect(context.Context) error                    { return nil }
func (f *fakeTable) BestAccessPlan(ctx context.Context, req vtab.BestAccessPlanRequest) (vtab.BestAccessPlanResult, error) {
	handled := make([]bool, len(req.Filters))
	for i, c := range req.Filters {
		if c.ColumnIndex == f.handledColumn {
			handled[i] = true
		}
	}
	return vtab.BestAccessPlanResult{Cost: 1, Rows: 10, HandledFilters: handled}, nil
}

type fakeResolver struct{ tbl *fakeTable }

func (r *fakeResolver) ResolveTable(ctx context.Context, schemaName, tableName string) (vtab.Table, error) {
	return r.tbl, nil
}

func widgetsSchema() *schema.TableSchema {
	return &schema.TableSchema{
		SchemaName: "main",
		Name:       "widgets",
		Columns: []schema.ColumnDef{
			{Name: "id", Type: types.LogicalType{Name: types.LogicalInteger}},
			{Name: "price", Type: types.LogicalType{Name: types.LogicalInteger}},
		},
	}
}

func TestOptimizeResolvesAccessPlan(t *testing.T) {
	ts := widgetsSchema()
	resolver := &fakeResolver{tbl: &fakeTable{schema: ts, handledColumn: -1}}
	opt := optimizer.New(resolver)

	scan := plan.NewTableScan(ts, "widgets")
	node, err := opt.Optimize(context.Background(), scan)
	require.NoError(t, err)

	resolved, ok := node.(*plan.TableScan)
	require.True(t, ok)
	require.NotNil(t, resolved.AccessPlan)
	assert.Equal(t, uint64(10), resolved.AccessPlan.Rows)
}

func TestOptimizePushesHandledFilterEntirelyIntoScan(t *testing.T) {
	ts := widgetsSchema()
	resolver := &fakeResolver{tbl: &fakeTable{schema: ts, handledColumn: 0}}
	opt := optimizer.New(resolver)

	scan := plan.NewTableScan(ts, "widgets")
	pred := &plan.BinaryOp{Op: types.OpEq, Left: &plan.Column{Index: 0, Name: "id"}, Right: &plan.Literal{Value: types.Integer(1)}}
	filter := &plan.Filter{Input: scan, Predicate: pred}

	node, err := opt.Optimize(context.Background(), filter)
	require.NoError(t, err)

	// The filter term on column 0 was fully handled by the access plan, so
	// no residual Filter node should remain above the scan.
	_, ok := node.(*plan.TableScan)
	assert.True(t, ok, "expected the Filter to be eliminated, got %T", node)
}

func TestOptimizeKeepsResidualFilterForUnhandledTerm(t *testing.T) {
	ts := widgetsSchema()
	resolver := &fakeResolver{tbl: &fakeTable{schema: ts, handledColumn: -1}}
	opt := optimizer.New(resolver)

	scan := plan.NewTableScan(ts, "widgets")
	pred := &plan.BinaryOp{Op: types.OpGt, Left: &plan.Column{Index: 1, Name: "price"}, Right: &plan.Literal{Value: types.Integer(5)}}
	filter := &plan.Filter{Input: scan, Predicate: pred}

	node, err := opt.Optimize(context.Background(), filter)
	require.NoError(t, err)

	residual, ok := node.(*plan.Filter)
	require.True(t, ok, "expected a residual Filter above the scan, got %T", node)
	_, ok = residual.Input.(*plan.TableScan)
	assert.True(t, ok)
}

func TestOptimizePushesFilterThroughPassthroughProject(t *testing.T) {
	ts := widgetsSchema()
	resolver := &fakeResolver{tbl: &fakeTable{schema: ts, handledColumn: 0}}
	opt := optimizer.New(resolver)

	scan := plan.NewTableScan(ts, "widgets")
	proj := &plan.Project{
		Input: scan,
		Exprs: []plan.ProjectExpr{
			{Name: "id", Expr: &plan.Column{Index: 0, Name: "id"}},
			{Name: "price", Expr: &plan.Column{Index: 1, Name: "price"}},
		},
	}
	pred := &plan.BinaryOp{Op: types.OpEq, Left: &plan.Column{Index: 0, Name: "id"}, Right: &plan.Literal{Value: types.Integer(1)}}
	filter := &plan.Filter{Input: proj, Predicate: pred}

	node, err := opt.Optimize(context.Background(), filter)
	require.NoError(t, err)

	// The predicate references only a pass-through projected column and
	// was fully handled by the access plan, so it ends up pushed below the
	// Project with no residual Filter; since this Project is a pure
	// identity over its input, dead-code elimination then drops it too,
	// leaving the bare resolved scan.
	_, ok := node.(*plan.TableScan)
	assert.True(t, ok, "expected the filter pushed into the scan and the identity Project eliminated, got %T", node)
}

func TestOptimizePushesFilterThroughJoinOuterSide(t *testing.T) {
	ts := widgetsSchema()
	resolver := &fakeResolver{tbl: &fakeTable{schema: ts, handledColumn: 0}}
	opt := optimizer.New(resolver)

	outerScan := plan.NewTableScan(ts, "widgets")
	innerScan := plan.NewTableScan(ts, "w2")
	join := &plan.NestedLoopJoin{Outer: outerScan, Inner: innerScan, Type: plan.JoinInner}

	pred := &plan.BinaryOp{Op: types.OpEq, Left: &plan.Column{Index: 0, Name: "id"}, Right: &plan.Literal{Value: types.Integer(1)}}
	filter := &plan.Filter{Input: join, Predicate: pred}

	node, err := opt.Optimize(context.Background(), filter)
	require.NoError(t, err)

	resultJoin, ok := node.(*plan.NestedLoopJoin)
	require.True(t, ok, "expected the Filter to be eliminated and a bare NestedLoopJoin left, got %T", node)
	_, ok = resultJoin.Outer.(*plan.TableScan)
	assert.True(t, ok, "expected the outer-only predicate to be pushed into the outer scan, got %T", resultJoin.Outer)
}

func TestOptimizePrunesCollapsedProjectColumns(t *testing.T) {
	ts := widgetsSchema()
	resolver := &fakeResolver{tbl: &fakeTable{schema: ts, handledColumn: -1}}
	opt := optimizer.New(resolver)

	scan := plan.NewTableScan(ts, "widgets")
	inner := &plan.Project{Input: scan, Exprs: []plan.ProjectExpr{
		{Name: "id", Expr: &plan.Column{Index: 0, Name: "id"}},
		{Name: "price", Expr: &plan.Column{Index: 1, Name: "price"}},
	}}
	outer := &plan.Project{Input: inner, Exprs: []plan.ProjectExpr{
		{Name: "price", Expr: &plan.Column{Index: 1, Name: "price"}},
	}}

	node, err := opt.Optimize(context.Background(), outer)
	require.NoError(t, err)

	proj, ok := node.(*plan.Project)
	require.True(t, ok)
	require.Len(t, proj.Exprs, 1)
	// The intermediate Project's "id" column is dropped entirely, and the
	// surviving expression is remapped straight to the scan's column 1.
	col, ok := proj.Exprs[0].Expr.(*plan.Column)
	require.True(t, ok)
	assert.Equal(t, 1, col.Index)
	_, ok = proj.Input.(*plan.TableScan)
	assert.True(t, ok, "expected the intermediate Project to be eliminated, got %T", proj.Input)
}

func TestOptimizeEliminatesNoOpSortAndLimit(t *testing.T) {
	ts := widgetsSchema()
	resolver := &fakeResolver{tbl: &fakeTable{schema: ts, handledColumn: -1}}
	opt := optimizer.New(resolver)

	scan := plan.NewTableScan(ts, "widgets")
	sort := &plan.Sort{Input: scan}
	limit := &plan.Limit{Input: sort}

	node, err := opt.Optimize(context.Background(), limit)
	require.NoError(t, err)

	_, ok := node.(*plan.TableScan)
	assert.True(t, ok, "expected both the empty Sort and no-op Limit to be eliminated, got %T", node)
}

func TestOptimizeValidatePlanRejectsOutOfScopeColumnReference(t *testing.T) {
	ts := widgetsSchema()
	resolver := &fakeResolver{tbl: &fakeTable{schema: ts, handledColumn: -1}}
	opt := optimizer.New(resolver)
	opt.ValidatePlan = true

	scan := plan.NewTableScan(ts, "widgets")
	proj := &plan.Project{Input: scan, Exprs: []plan.ProjectExpr{
		{Name: "bogus", Expr: &plan.Column{Index: 99, Name: "bogus"}},
	}}

	_, err := opt.Optimize(context.Background(), proj)
	assert.Error(t, err)
}

func TestOptimizeValidatePlanAcceptsWellFormedPlan(t *testing.T) {
	ts := widgetsSchema()
	resolver := &fakeResolver{tbl: &fakeTable{schema: ts, handledColumn: -1}}
	opt := optimizer.New(resolver)
	opt.ValidatePlan = true

	scan := plan.NewTableScan(ts, "widgets")
	pred := &plan.BinaryOp{Op: types.OpGt, Left: &plan.Column{Index: 1, Name: "price"}, Right: &plan.Literal{Value: types.Integer(5)}}
	filter := &plan.Filter{Input: scan, Predicate: pred}

	_, err := opt.Optimize(context.Background(), filter)
	assert.NoError(t, err)
}

func TestOptimizeFoldsConstantComparison(t *testing.T) {
	ts := widgetsSchema()
	resolver := &fakeResolver{tbl: &fakeTable{schema: ts, handledColumn: -1}}
	opt := optimizer.New(resolver)

	scan := plan.NewTableScan(ts, "widgets")
	constPred := &plan.BinaryOp{Op: types.OpEq, Left: &plan.Literal{Value: types.Integer(1)}, Right: &plan.Literal{Value: types.Integer(1)}}
	projectInput := &plan.Project{Input: &plan.Filter{Input: scan, Predicate: constPred}}

	node, err := opt.Optimize(context.Background(), projectInput)
	require.NoError(t, err)

	proj, ok := node.(*plan.Project)
	require.True(t, ok)
	filter, ok := proj.Input.(*plan.Filter)
	require.True(t, ok)
	lit, ok := filter.Predicate.(*plan.Literal)
	require.True(t, ok, "expected the constant comparison to fold to a Literal, got %T", filter.Predicate)
	assert.Equal(t, types.Bool(true), lit.Value)
}
