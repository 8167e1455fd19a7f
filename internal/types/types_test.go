package types_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"quereus/internal/types"
)

func TestValueStringFormatsEachKind(t *testing.T) {
	assert.Equal(t, "NULL", types.Null().String())
	assert.Equal(t, "42", types.Integer(42).String())
	assert.Equal(t, "3.5", types.Real(3.5).String())
	assert.Equal(t, "hello", types.Text("hello").String())
	assert.Equal(t, "123", types.BigInt(big.NewInt(123)).String())
}

func TestBoolEncodesAsZeroOrOneInteger(t *testing.T) {
	assert.Equal(t, types.Integer(1), types.Bool(true))
	assert.Equal(t, types.Integer(0), types.Bool(false))
}

func TestRowCloneIsIndependent(t *testing.T) {
	row := types.Row{types.Integer(1), types.Text("a")}
	clone := row.Clone()
	clone[0] = types.Integer(99)
	assert.Equal(t, int64(1), row[0].Int64())
	assert.Equal(t, int64(99), clone[0].Int64())
}

func TestCollationNocaseIgnoresCase(t *testing.T) {
	assert.Equal(t, 0, types.CollationNocase.Compare("Hello", "HELLO"))
	assert.NotEqual(t, 0, types.CollationBinary.Compare("Hello", "HELLO"))
}

func TestCollationRtrimIgnoresTrailingSpace(t *testing.T) {
	assert.Equal(t, 0, types.CollationRtrim.Compare("abc", "abc   "))
}

func TestCompareNumericAcrossKinds(t *testing.T) {
	assert.Equal(t, 0, types.Compare(types.Integer(5), types.Real(5.0), types.CollationBinary))
	assert.Equal(t, -1, types.Compare(types.Integer(1), types.Integer(2), types.CollationBinary))
	assert.Equal(t, 1, types.Compare(types.Real(2.5), types.Integer(1), types.CollationBinary))
}

func TestEvalOpNullComparisonsAreAlwaysFalse(t *testing.T) {
	assert.False(t, types.EvalOp(types.OpEq, types.Null(), types.Integer(1), types.CollationBinary))
	assert.False(t, types.EvalOp(types.OpNe, types.Null(), types.Null(), types.CollationBinary))
}

func TestEvalOpOrdering(t *testing.T) {
	assert.True(t, types.EvalOp(types.OpLt, types.Integer(1), types.Integer(2), types.CollationBinary))
	assert.True(t, types.EvalOp(types.OpGe, types.Integer(2), types.Integer(2), types.CollationBinary))
	assert.False(t, types.EvalOp(types.OpGt, types.Integer(1), types.Integer(2), types.CollationBinary))
}

func TestInferResultTypeAllSame(t *testing.T) {
	in := types.LogicalType{Name: types.LogicalInteger}
	got := types.InferResultType([]types.LogicalType{in, in})
	assert.Equal(t, types.LogicalInteger, got.Name)
}

func TestInferResultTypeMixedNumericPromotesToReal(t *testing.T) {
	got := types.InferResultType([]types.LogicalType{
		{Name: types.LogicalInteger},
		{Name: types.LogicalReal},
	})
	assert.Equal(t, types.LogicalReal, got.Name)
}

func TestInferResultTypeNonNumericFallsBackToFirstArg(t *testing.T) {
	got := types.InferResultType([]types.LogicalType{
		{Name: types.LogicalText},
		{Name: types.LogicalInteger},
	})
	assert.Equal(t, types.LogicalText, got.Name)
}

func TestInferResultTypeEmptyIsAny(t *testing.T) {
	got := types.InferResultType(nil)
	assert.Equal(t, types.LogicalAny, got.Name)
}
