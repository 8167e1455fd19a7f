package storetable_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quereus/internal/keycodec"
	"quereus/internal/kv"
	"quereus/internal/kv/memkv"
	"quereus/internal/schema"
	"quereus/internal/storetable"
	"quereus/internal/types"
	"quereus/internal/vtab"
)

func usersSchema() *schema.TableSchema {
	return &schema.TableSchema{
		SchemaName: "main",
		Name:       "users",
		Columns: []schema.ColumnDef{
			{Name: "id", Type: types.LogicalType{Name: types.LogicalInteger}},
			{Name: "name", Type: types.LogicalType{Name: types.LogicalText}},
		},
		PrimaryKey: []schema.KeyColumn{{ColumnIndex: 0}},
	}
}

func indexKeys(t *testing.T, store kv.Store) [][]byte {
	t.Helper()
	it, err := store.Iterate(context.Background(), kv.IterOptions{})
	require.NoError(t, err)
	defer it.Close()

	var keys [][]byte
	for {
		ok, err := it.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		keys = append(keys, append([]byte(nil), it.Entry().Key...))
	}
	return keys
}

func countersSchema() *schema.TableSchema {
	return &schema.TableSchema{
		SchemaName: "main",
		Name:       "counters",
		Columns: []schema.ColumnDef{
			{Name: "id", Type: types.LogicalType{Name: types.LogicalInteger}},
			{Name: "n", Type: types.LogicalType{Name: types.LogicalInteger}},
		},
		PrimaryKey: []schema.KeyColumn{{ColumnIndex: 0}},
	}
}

func drain(t *testing.T, it vtab.RowIterator) []types.Row {
	t.Helper()
	defer it.Close()
	var rows []types.Row
	for {
		row, ok, err := it.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		rows = append(rows, row)
	}
	return rows
}

func TestInsertThenPointLookup(t *testing.T) {
	ctx := context.Background()
	tbl := storetable.New(countersSchema(), memkv.NewProvider())

	_, _, err := tbl.Update(ctx, vtab.UpdateRequest{
		Operation: vtab.OpInsert,
		Values:    types.Row{types.Integer(1), types.Integer(10)},
	})
	require.NoError(t, err)

	it, err := tbl.Query(ctx, vtab.FilterInfo{Constraints: []vtab.FilterConstraint{
		{ColumnIndex: 0, Op: types.OpEq, Usable: true, Value: types.Integer(1)},
	}})
	require.NoError(t, err)
	rows := drain(t, it)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(10), rows[0][1].Int64())
}

func TestInsertDuplicatePrimaryKeyFails(t *testing.T) {
	ctx := context.Background()
	tbl := storetable.New(countersSchema(), memkv.NewProvider())

	req := vtab.UpdateRequest{Operation: vtab.OpInsert, Values: types.Row{types.Integer(1), types.Integer(10)}}
	_, _, err := tbl.Update(ctx, req)
	require.NoError(t, err)

	_, _, err = tbl.Update(ctx, req)
	require.Error(t, err)
}

func TestUpdateChangesRowInPlace(t *testing.T) {
	ctx := context.Background()
	tbl := storetable.New(countersSchema(), memkv.NewProvider())

	_, _, err := tbl.Update(ctx, vtab.UpdateRequest{Operation: vtab.OpInsert, Values: types.Row{types.Integer(1), types.Integer(10)}})
	require.NoError(t, err)

	_, present, err := tbl.Update(ctx, vtab.UpdateRequest{
		Operation:    vtab.OpUpdate,
		OldKeyValues: types.Row{types.Integer(1)},
		Values:       types.Row{types.Integer(1), types.Integer(99)},
	})
	require.NoError(t, err)
	assert.True(t, present)

	it, err := tbl.Query(ctx, vtab.FilterInfo{})
	require.NoError(t, err)
	rows := drain(t, it)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(99), rows[0][1].Int64())
}

func TestDeleteRemovesRow(t *testing.T) {
	ctx := context.Background()
	tbl := storetable.New(countersSchema(), memkv.NewProvider())

	_, _, err := tbl.Update(ctx, vtab.UpdateRequest{Operation: vtab.OpInsert, Values: types.Row{types.Integer(1), types.Integer(10)}})
	require.NoError(t, err)

	_, present, err := tbl.Update(ctx, vtab.UpdateRequest{Operation: vtab.OpDelete, OldKeyValues: types.Row{types.Integer(1)}})
	require.NoError(t, err)
	assert.True(t, present)

	it, err := tbl.Query(ctx, vtab.FilterInfo{})
	require.NoError(t, err)
	rows := drain(t, it)
	assert.Empty(t, rows)
}

func TestDeleteOfMissingRowReportsNotPresent(t *testing.T) {
	ctx := context.Background()
	tbl := storetable.New(countersSchema(), memkv.NewProvider())

	_, present, err := tbl.Update(ctx, vtab.UpdateRequest{Operation: vtab.OpDelete, OldKeyValues: types.Row{types.Integer(404)}})
	require.NoError(t, err)
	assert.False(t, present)
}

func TestFullScanAppliesResidualFilter(t *testing.T) {
	ctx := context.Background()
	tbl := storetable.New(countersSchema(), memkv.NewProvider())

	for i := int64(1); i <= 3; i++ {
		_, _, err := tbl.Update(ctx, vtab.UpdateRequest{Operation: vtab.OpInsert, Values: types.Row{types.Integer(i), types.Integer(i * 10)}})
		require.NoError(t, err)
	}

	it, err := tbl.Query(ctx, vtab.FilterInfo{Constraints: []vtab.FilterConstraint{
		{ColumnIndex: 1, Op: types.OpGt, Usable: true, Value: types.Integer(15)},
	}})
	require.NoError(t, err)
	rows := drain(t, it)
	require.Len(t, rows, 2)
}

func TestRangeScanOnLeadingPKColumnExcludesLowerRows(t *testing.T) {
	ctx := context.Background()
	tbl := storetable.New(countersSchema(), memkv.NewProvider())

	for i := int64(1); i <= 3; i++ {
		_, _, err := tbl.Update(ctx, vtab.UpdateRequest{Operation: vtab.OpInsert, Values: types.Row{types.Integer(i), types.Integer(i * 10)}})
		require.NoError(t, err)
	}

	it, err := tbl.Query(ctx, vtab.FilterInfo{Constraints: []vtab.FilterConstraint{
		{ColumnIndex: 0, Op: types.OpGe, Usable: true, Value: types.Integer(2)},
	}})
	require.NoError(t, err)
	rows := drain(t, it)
	require.Len(t, rows, 2, "the range scan must exclude id=1")
	assert.Equal(t, int64(2), rows[0][0].Int64())
	assert.Equal(t, int64(3), rows[1][0].Int64())
}

// TestSecondaryIndexBackfillAndMaintenanceFollowsCollation covers the
// BackfillIndex/rewriteIndexes lifecycle under a NOCASE-collated secondary
// index: the index key for a case-folded-equal update lands next to the
// row it replaces rather than moving, and deleting a row removes exactly
// its own index entry.
func TestSecondaryIndexBackfillAndMaintenanceFollowsCollation(t *testing.T) {
	ctx := context.Background()
	provider := memkv.NewProvider()
	ts := usersSchema()
	tbl := storetable.New(ts, provider)

	for _, row := range []types.Row{
		{types.Integer(1), types.Text("alice")},
		{types.Integer(2), types.Text("bob")},
		{types.Integer(3), types.Text("alice")},
	} {
		_, _, err := tbl.Update(ctx, vtab.UpdateRequest{Operation: vtab.OpInsert, Values: row})
		require.NoError(t, err)
	}

	idx := schema.IndexSchema{Name: "ix_name", Columns: []schema.KeyColumn{{ColumnIndex: 1, Collation: types.CollationNocase}}}
	require.NoError(t, tbl.BackfillIndex(ctx, idx))
	ts.Indexes = append(ts.Indexes, idx)

	_, present, err := tbl.Update(ctx, vtab.UpdateRequest{
		Operation:    vtab.OpUpdate,
		OldKeyValues: types.Row{types.Integer(3)},
		Values:       types.Row{types.Integer(3), types.Text("ALICE")},
	})
	require.NoError(t, err)
	assert.True(t, present)

	store, err := provider.IndexStore("main", "users", "ix_name")
	require.NoError(t, err)
	opts := keycodec.Options{Collation: types.CollationNocase}

	aliceKey1, err := keycodec.BuildIndexKey(types.Row{types.Text("alice")}, types.Row{types.Integer(1)}, opts)
	require.NoError(t, err)
	aliceKey3, err := keycodec.BuildIndexKey(types.Row{types.Text("ALICE")}, types.Row{types.Integer(3)}, opts)
	require.NoError(t, err)
	bobKey, err := keycodec.BuildIndexKey(types.Row{types.Text("bob")}, types.Row{types.Integer(2)}, opts)
	require.NoError(t, err)

	keys := indexKeys(t, store)
	require.Len(t, keys, 3, "two case-folded-equal alice entries plus one bob entry")
	assert.Equal(t, aliceKey1, keys[0])
	assert.Equal(t, aliceKey3, keys[1])
	assert.Equal(t, bobKey, keys[2])

	_, present, err = tbl.Update(ctx, vtab.UpdateRequest{Operation: vtab.OpDelete, OldKeyValues: types.Row{types.Integer(1)}})
	require.NoError(t, err)
	assert.True(t, present)

	remaining := indexKeys(t, store)
	require.Len(t, remaining, 2, "deleting id=1 must leave exactly one alice-prefix entry")
	assert.Equal(t, aliceKey3, remaining[0])
	assert.Equal(t, bobKey, remaining[1])
}

func TestBestAccessPlanReturnsValidResult(t *testing.T) {
	ctx := context.Background()
	tbl := storetable.New(countersSchema(), memkv.NewProvider())
	_, _, err := tbl.Update(ctx, vtab.UpdateRequest{Operation: vtab.OpInsert, Values: types.Row{types.Integer(1), types.Integer(10)}})
	require.NoError(t, err)

	result, err := tbl.BestAccessPlan(ctx, vtab.BestAccessPlanRequest{})
	require.NoError(t, err)
	require.NoError(t, result.Validate(0))
}
