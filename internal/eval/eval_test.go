package eval_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quereus/internal/eval"
	"quereus/internal/plan"
	"quereus/internal/schema"
	"quereus/internal/types"
)

func TestEvalArithmeticAndComparison(t *testing.T) {
	e := eval.New(schema.New(), nil, nil)
	ctx := context.Background()

	expr := &plan.BinaryOp{
		Op:    types.OpGt,
		Left:  &plan.BinaryOp{Op: "+", Left: &plan.Literal{Value: types.Integer(2)}, Right: &plan.Literal{Value: types.Integer(3)}},
		Right: &plan.Literal{Value: types.Integer(4)},
	}
	v, err := e.Eval(ctx, expr, nil)
	require.NoError(t, err)
	assert.Equal(t, types.Bool(true), v)
}

func TestEvalThreeValuedAND(t *testing.T) {
	e := eval.New(schema.New(), nil, nil)
	ctx := context.Background()

	// NULL AND FALSE = FALSE, not NULL.
	expr := &plan.BinaryOp{
		Op:   "AND",
		Left: &plan.Literal{Value: types.Null()},
		Right: &plan.Literal{Value: types.Bool(false)},
	}
	v, err := e.Eval(ctx, expr, nil)
	require.NoError(t, err)
	assert.False(t, v.IsNull())
	assert.Equal(t, int64(0), v.Int64())

	// NULL AND TRUE = NULL.
	expr2 := &plan.BinaryOp{
		Op:    "AND",
		Left:  &plan.Literal{Value: types.Null()},
		Right: &plan.Literal{Value: types.Bool(true)},
	}
	v2, err := e.Eval(ctx, expr2, nil)
	require.NoError(t, err)
	assert.True(t, v2.IsNull())
}

func TestEvalDivisionByZero(t *testing.T) {
	e := eval.New(schema.New(), nil, nil)
	ctx := context.Background()

	expr := &plan.BinaryOp{Op: "/", Left: &plan.Literal{Value: types.Integer(1)}, Right: &plan.Literal{Value: types.Integer(0)}}
	_, err := e.Eval(ctx, expr, nil)
	require.Error(t, err)
}

func TestEvalLike(t *testing.T) {
	e := eval.New(schema.New(), nil, nil)
	ctx := context.Background()

	expr := &plan.BinaryOp{
		Op:    types.OpLike,
		Left:  &plan.Literal{Value: types.Text("hello world")},
		Right: &plan.Literal{Value: types.Text("hel%")},
	}
	v, err := e.Eval(ctx, expr, nil)
	require.NoError(t, err)
	assert.Equal(t, types.Bool(true), v)
}

func TestEvalCaseWhen(t *testing.T) {
	e := eval.New(schema.New(), nil, nil)
	ctx := context.Background()

	expr := &plan.CaseWhen{
		Whens: []plan.WhenClause{
			{Cond: &plan.Literal{Value: types.Bool(false)}, Result: &plan.Literal{Value: types.Text("a")}},
			{Cond: &plan.Literal{Value: types.Bool(true)}, Result: &plan.Literal{Value: types.Text("b")}},
		},
		Else: &plan.Literal{Value: types.Text("c")},
	}
	v, err := e.Eval(ctx, expr, nil)
	require.NoError(t, err)
	assert.Equal(t, "b", v.Str())
}

func TestEvalInListWithNull(t *testing.T) {
	e := eval.New(schema.New(), nil, nil)
	ctx := context.Background()

	// 3 NOT IN (1, NULL) is NULL (unknown), not true.
	expr := &plan.In{
		Expr: &plan.Literal{Value: types.Integer(3)},
		List: []plan.Scalar{
			&plan.Literal{Value: types.Integer(1)},
			&plan.Literal{Value: types.Null()},
		},
		Negate: true,
	}
	v, err := e.Eval(ctx, expr, nil)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestEvalColumnOutOfRange(t *testing.T) {
	e := eval.New(schema.New(), nil, nil)
	ctx := context.Background()

	_, err := e.Eval(ctx, &plan.Column{Index: 5}, types.Row{types.Integer(1)})
	require.Error(t, err)
}

func TestEvalSubqueryRequiresRunner(t *testing.T) {
	e := eval.New(schema.New(), nil, nil)
	ctx := context.Background()

	_, err := e.Eval(ctx, &plan.Subquery{Query: &plan.SingleRow{}}, nil)
	require.Error(t, err)
}

func TestEvalExistsSubquery(t *testing.T) {
	runner := func(ctx context.Context, node plan.Node) ([]types.Row, error) {
		return []types.Row{{types.Integer(1)}}, nil
	}
	e := eval.New(schema.New(), nil, runner)
	ctx := context.Background()

	v, err := e.Eval(ctx, &plan.Subquery{Query: &plan.SingleRow{}, Exists: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, types.Bool(true), v)
}
