package planner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quereus/internal/plan"
	"quereus/internal/planner"
	"quereus/internal/schema"
	"quereus/internal/types"
)

func widgetsCatalog() *schema.Catalog {
	cat := schema.New()
	cat.PutTable(&schema.TableSchema{
		SchemaName: "main",
		Name:       "widgets",
		Columns: []schema.ColumnDef{
			{Name: "id", Type: types.LogicalType{Name: types.LogicalInteger}},
			{Name: "name", Type: types.LogicalType{Name: types.LogicalText}},
			{Name: "price", Type: types.LogicalType{Name: types.LogicalInteger}},
		},
		PrimaryKey: []schema.KeyColumn{{ColumnIndex: 0}},
		ModuleName: "memory",
	})
	return cat
}

func buildOne(t *testing.T, b *planner.Builder, sql string) plan.Node {
	t.Helper()
	stmts, err := b.ParseStatements(sql)
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	node, err := b.Build(stmts[0])
	require.NoError(t, err)
	return node
}

func TestBuildSelectProducesFilterProjectSort(t *testing.T) {
	b := planner.New(widgetsCatalog())
	node := buildOne(t, b, "SELECT name, price FROM widgets WHERE price > 5 ORDER BY price DESC LIMIT 10")

	limit, ok := node.(*plan.Limit)
	require.True(t, ok, "expected top node to be a Limit, got %T", node)
	assert.True(t, limit.HasCount)
	assert.Equal(t, int64(10), limit.Count)

	sort, ok := limit.Input.(*plan.Sort)
	require.True(t, ok, "expected Limit's input to be a Sort, got %T", limit.Input)
	require.Len(t, sort.OrderBy, 1)
	assert.True(t, sort.OrderBy[0].Desc)

	proj, ok := sort.Input.(*plan.Project)
	require.True(t, ok, "expected Sort's input to be a Project, got %T", sort.Input)
	require.Len(t, proj.Exprs, 2)
	assert.Equal(t, "name", proj.Exprs[0].Name)

	filter, ok := proj.Input.(*plan.Filter)
	require.True(t, ok, "expected Project's input to be a Filter, got %T", proj.Input)
	require.NotNil(t, filter.Predicate)

	_, ok = filter.Input.(*plan.TableScan)
	require.True(t, ok, "expected Filter's input to be a TableScan, got %T", filter.Input)
}

func TestBuildSelectStarExpandsColumns(t *testing.T) {
	b := planner.New(widgetsCatalog())
	node := buildOne(t, b, "SELECT * FROM widgets")

	proj, ok := node.(*plan.Project)
	require.True(t, ok)
	require.Len(t, proj.Exprs, 3)
	assert.Equal(t, "id", proj.Exprs[0].Name)
	assert.Equal(t, "name", proj.Exprs[1].Name)
	assert.Equal(t, "price", proj.Exprs[2].Name)
}

func TestBuildInsertLowersConstantValues(t *testing.T) {
	b := planner.New(widgetsCatalog())
	node := buildOne(t, b, "INSERT INTO widgets (id, name, price) VALUES (1, 'bolt', 10)")

	dml, ok := node.(*plan.DML)
	require.True(t, ok)
	assert.Equal(t, plan.DMLInsert, dml.Kind)

	values, ok := dml.Source.(*plan.Values)
	require.True(t, ok)
	require.Len(t, values.Rows, 1)
	assert.Equal(t, "bolt", values.Rows[0][1].Str())
	assert.Equal(t, int64(10), values.Rows[0][2].Int64())
}

func TestBuildUpdateLowersAssignmentsAndFilter(t *testing.T) {
	b := planner.New(widgetsCatalog())
	node := buildOne(t, b, "UPDATE widgets SET price = 20 WHERE id = 1")

	dml, ok := node.(*plan.DML)
	require.True(t, ok)
	assert.Equal(t, plan.DMLUpdate, dml.Kind)
	require.Len(t, dml.Assignments, 1)
	assert.Equal(t, 2, dml.Assignments[0].ColumnIndex)

	_, ok = dml.Source.(*plan.Filter)
	require.True(t, ok)
}

func TestBuildDeleteLowersFilter(t *testing.T) {
	b := planner.New(widgetsCatalog())
	node := buildOne(t, b, "DELETE FROM widgets WHERE id = 1")

	dml, ok := node.(*plan.DML)
	require.True(t, ok)
	assert.Equal(t, plan.DMLDelete, dml.Kind)
	_, ok = dml.Source.(*plan.Filter)
	require.True(t, ok)
}

func TestBuildCreateTable(t *testing.T) {
	b := planner.New(widgetsCatalog())
	node := buildOne(t, b, "CREATE TABLE gadgets (id INT PRIMARY KEY, label VARCHAR(64))")

	ct, ok := node.(*plan.CreateTable)
	require.True(t, ok)
	assert.Equal(t, "gadgets", ct.TableSchema.Name)
	assert.Equal(t, "memory", ct.ModuleName)
	require.Len(t, ct.TableSchema.Columns, 2)
}

func TestBuildFromChoosesCheaperJoinDrivingDirection(t *testing.T) {
	cat := widgetsCatalog()
	cat.PutTable(&schema.TableSchema{
		SchemaName: "main",
		Name:       "orders",
		Columns: []schema.ColumnDef{
			{Name: "id", Type: types.LogicalType{Name: types.LogicalInteger}},
			{Name: "widget_id", Type: types.LogicalType{Name: types.LogicalInteger}},
		},
		PrimaryKey:    []schema.KeyColumn{{ColumnIndex: 0}},
		ModuleName:    "memory",
		EstimatedRows: 10,
	})
	if ts, ok := cat.Table("main", "widgets"); ok {
		ts.EstimatedRows = 1000
	}

	b := planner.New(cat)
	node := buildOne(t, b, "SELECT * FROM widgets JOIN orders ON widgets.id = orders.widget_id")

	proj, ok := node.(*plan.Project)
	require.True(t, ok, "expected top node to be a Project, got %T", node)
	join, ok := proj.Input.(*plan.NestedLoopJoin)
	require.True(t, ok, "expected Project's input to be a NestedLoopJoin, got %T", proj.Input)

	// widgets (1000 rows, left/outer) driving orders (10 rows, right/inner)
	// costs 1000 + 1000*10 = 11000; orders driving widgets costs 10 +
	// 10*1000 = 10010, so the cheaper direction drives from the inner side.
	assert.True(t, join.DriveInner)
}

func TestBuildFromLeftJoinNeverDrivesFromInner(t *testing.T) {
	cat := widgetsCatalog()
	cat.PutTable(&schema.TableSchema{
		SchemaName:    "main",
		Name:          "orders",
		Columns:       []schema.ColumnDef{{Name: "id", Type: types.LogicalType{Name: types.LogicalInteger}}, {Name: "widget_id", Type: types.LogicalType{Name: types.LogicalInteger}}},
		PrimaryKey:    []schema.KeyColumn{{ColumnIndex: 0}},
		ModuleName:    "memory",
		EstimatedRows: 10,
	})
	if ts, ok := cat.Table("main", "widgets"); ok {
		ts.EstimatedRows = 1000
	}

	b := planner.New(cat)
	node := buildOne(t, b, "SELECT * FROM widgets LEFT JOIN orders ON widgets.id = orders.widget_id")

	proj, ok := node.(*plan.Project)
	require.True(t, ok)
	join, ok := proj.Input.(*plan.NestedLoopJoin)
	require.True(t, ok)

	assert.False(t, join.DriveInner, "a left join must always drive from its preserved outer side")
}

func TestResolveUnknownTableIsNotFound(t *testing.T) {
	b := planner.New(widgetsCatalog())
	_, err := b.ParseStatements("SELECT * FROM nosuch")
	require.NoError(t, err)
	stmts, _ := b.ParseStatements("SELECT * FROM nosuch")
	_, err = b.Build(stmts[0])
	require.Error(t, err)
}
