package explain_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quereus/internal/emit"
	"quereus/internal/explain"
	"quereus/internal/plan"
	"quereus/internal/schema"
	"quereus/internal/types"
)

func sampleTree() plan.Node {
	ts := &schema.TableSchema{
		SchemaName: "main",
		Name:       "widgets",
		Columns:    []schema.ColumnDef{{Name: "id", Type: types.LogicalType{Name: types.LogicalInteger}}},
	}
	scan := plan.NewTableScan(ts, "")
	return &plan.Filter{
		Input: scan,
		Predicate: &plan.BinaryOp{
			Op:    types.OpGt,
			Left:  &plan.Column{Index: 0, Name: "id"},
			Right: &plan.Literal{Value: types.Integer(5), Type: types.LogicalType{Name: types.LogicalInteger}},
		},
	}
}

func TestNewFormatterDefaultsToText(t *testing.T) {
	f, err := explain.NewFormatter("")
	require.NoError(t, err)
	out, err := f.FormatPlan(sampleTree())
	require.NoError(t, err)
	assert.Contains(t, out, "TableScan main.widgets")
	assert.Contains(t, out, "Filter (id > 5)")
}

func TestNewFormatterJSONRendersNestedChildren(t *testing.T) {
	f, err := explain.NewFormatter("json")
	require.NoError(t, err)
	out, err := f.FormatPlan(sampleTree())
	require.NoError(t, err)
	assert.Contains(t, out, `"kind": "Filter"`)
	assert.Contains(t, out, `"kind": "TableScan"`)
}

func TestNewFormatterRejectsUnknownName(t *testing.T) {
	_, err := explain.NewFormatter("xml")
	require.Error(t, err)
}

func TestFormatInstructionsMarksSharedNodeOnlyOnRevisit(t *testing.T) {
	shared := &emit.Instruction{Note: "shared", Run: func(ctx context.Context, args []any) (any, error) { return nil, nil }}
	root := &emit.Instruction{
		Note:   "root",
		Params: []*emit.Instruction{shared, shared},
		Run:    func(ctx context.Context, args []any) (any, error) { return nil, nil },
	}

	f, err := explain.NewFormatter("text")
	require.NoError(t, err)
	out, err := f.FormatInstructions(root)
	require.NoError(t, err)
	assert.Contains(t, out, "shared (shared)")
}

func TestRenderScalarCompactForm(t *testing.T) {
	expr := &plan.BinaryOp{
		Op:    types.OpEq,
		Left:  &plan.Column{Index: 0, Name: "price"},
		Right: &plan.Literal{Value: types.Integer(10), Type: types.LogicalType{Name: types.LogicalInteger}},
	}
	assert.Equal(t, "(price = 10)", explain.RenderScalar(expr))
}
