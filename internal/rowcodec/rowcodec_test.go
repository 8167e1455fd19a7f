package rowcodec

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quereus/internal/types"
)

func roundTrip(t *testing.T, row types.Row) types.Row {
	t.Helper()
	out, err := DeserializeRow(SerializeRow(row))
	require.NoError(t, err)
	return out
}

func TestRoundTrip_AllKinds(t *testing.T) {
	bigVal, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)
	row := types.Row{
		types.Null(),
		types.Integer(-42),
		types.Integer(math.MaxInt64),
		types.BigInt(bigVal),
		types.Real(3.14159),
		types.Text("hello, world"),
		types.Text(""),
		types.Blob([]byte{1, 2, 3}),
		types.Blob(nil),
	}
	got := roundTrip(t, row)
	require.Len(t, got, len(row))
	assert.True(t, got[0].IsNull())
	assert.Equal(t, int64(-42), got[1].Int64())
	assert.Equal(t, int64(math.MaxInt64), got[2].Int64())
	assert.Equal(t, float64(3.14159), got[4].Float64())
	assert.Equal(t, "hello, world", got[5].Str())
	assert.Equal(t, "", got[6].Str())
	assert.Equal(t, []byte{1, 2, 3}, got[7].Bytes())
	assert.Equal(t, []byte{}, got[8].Bytes())
}

func TestRoundTrip_BigInt(t *testing.T) {
	bi, ok := new(big.Int).SetString("-123456789012345678901234567890", 10)
	require.True(t, ok)
	row := types.Row{types.BigInt(bi)}
	got := roundTrip(t, row)
	assert.Equal(t, 0, bi.Cmp(got[0].Big()))
}

func TestRoundTrip_NaNByBitPattern(t *testing.T) {
	row := types.Row{types.Real(math.NaN())}
	got := roundTrip(t, row)
	assert.Equal(t, math.Float64bits(math.NaN()), math.Float64bits(got[0].Float64()))
}

func TestRoundTrip_EmptyRow(t *testing.T) {
	got := roundTrip(t, types.Row{})
	assert.Empty(t, got)
}

func TestStatsRoundTrip(t *testing.T) {
	s := Stats{RowCount: 42, UpdatedAt: 1700000000000}
	got, err := DeserializeStats(SerializeStats(s))
	require.NoError(t, err)
	assert.Equal(t, s, got)
}
