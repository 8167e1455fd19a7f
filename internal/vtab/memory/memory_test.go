package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quereus/internal/kv/memkv"
	"quereus/internal/schema"
	"quereus/internal/types"
	"quereus/internal/vtab"
	"quereus/internal/vtab/memory"
)

// recordingDB is the minimal vtab.ModuleDB stub needed to observe the
// schema-change notifications a module emits around create/destroy.
type recordingDB struct {
	changes []vtab.SchemaChange
}

func (r *recordingDB) PublishSchemaChange(change vtab.SchemaChange) {
	r.changes = append(r.changes, change)
}

func widgetsSchema() *schema.TableSchema {
	return &schema.TableSchema{
		SchemaName: "main",
		Name:       "widgets",
		Columns: []schema.ColumnDef{
			{Name: "id", Type: types.LogicalType{Name: types.LogicalInteger}},
		},
		PrimaryKey: []schema.KeyColumn{{ColumnIndex: 0}},
	}
}

func TestCreateRejectsDuplicateTable(t *testing.T) {
	ctx := context.Background()
	mod := memory.New(memkv.NewProvider())
	db := &recordingDB{}
	ts := widgetsSchema()

	_, err := mod.Create(ctx, db, ts)
	require.NoError(t, err)
	require.Len(t, db.changes, 1)
	assert.Equal(t, vtab.SchemaChangeCreate, db.changes[0].Kind)

	_, err = mod.Create(ctx, db, ts)
	require.Error(t, err)
}

func TestConnectReusesExistingTableHandle(t *testing.T) {
	ctx := context.Background()
	mod := memory.New(memkv.NewProvider())
	db := &recordingDB{}
	ts := widgetsSchema()

	created, err := mod.Create(ctx, db, ts)
	require.NoError(t, err)

	connected, err := mod.Connect(ctx, db, nil, "memory", ts)
	require.NoError(t, err)
	assert.Same(t, created, connected)
}

func TestDestroyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	mod := memory.New(memkv.NewProvider())
	db := &recordingDB{}
	ts := widgetsSchema()

	_, err := mod.Create(ctx, db, ts)
	require.NoError(t, err)

	require.NoError(t, mod.Destroy(ctx, db, nil, "memory", ts.SchemaName, ts.Name))
	require.NoError(t, mod.Destroy(ctx, db, nil, "memory", ts.SchemaName, ts.Name))

	// Destroy publishes a drop notification on every call, even when the
	// table was already gone, so two calls after one create yield three
	// total change records.
	require.Len(t, db.changes, 3)
	assert.Equal(t, vtab.SchemaChangeDrop, db.changes[1].Kind)
	assert.Equal(t, vtab.SchemaChangeDrop, db.changes[2].Kind)
}

func TestCreateIndexRequiresConnectedTable(t *testing.T) {
	ctx := context.Background()
	mod := memory.New(memkv.NewProvider())
	db := &recordingDB{}
	ts := widgetsSchema()

	err := mod.CreateIndex(ctx, db, ts, schema.IndexSchema{Name: "idx_id", Columns: ts.PrimaryKey})
	require.Error(t, err)
}

// TestRestoreCatalogReconstructsTablesAndIndexesFromPersistedDDL exercises
// the on-boot path: a fresh Module built against a provider that already has
// DDL persisted (including an index added after the table was created) must
// come back with the same tables and indexes without a Create/CreateIndex
// call, and a query against the reconstructed table must actually work.
func TestRestoreCatalogReconstructsTablesAndIndexesFromPersistedDDL(t *testing.T) {
	ctx := context.Background()
	provider := memkv.NewProvider()
	ts := widgetsSchema()

	first := memory.New(provider)
	db := &recordingDB{}
	created, err := first.Create(ctx, db, ts)
	require.NoError(t, err)

	_, _, err = created.Update(ctx, vtab.UpdateRequest{Operation: vtab.OpInsert, Values: types.Row{types.Integer(1)}})
	require.NoError(t, err)

	require.NoError(t, first.CreateIndex(ctx, db, ts, schema.IndexSchema{Name: "idx_id", Columns: ts.PrimaryKey}))

	restored := memory.New(provider)
	schemas, err := restored.RestoreCatalog(ctx)
	require.NoError(t, err)
	require.Len(t, schemas, 1)
	assert.Equal(t, "widgets", schemas[0].Name)
	_, found := schemas[0].Index("idx_id")
	assert.True(t, found, "the index added after Create must survive restoreCatalog's re-read of the DDL record")

	reconnected, err := restored.Connect(ctx, db, nil, "memory", schemas[0])
	require.NoError(t, err)
	it, err := reconnected.Query(ctx, vtab.FilterInfo{})
	require.NoError(t, err)
	defer it.Close()
	row, ok, err := it.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok, "the row inserted before restore must still be readable afterward")
	assert.Equal(t, int64(1), row[0].Int64())
}

// TestRestoreCatalogIsIdempotentAlongsideAnAlreadyConnectedTable covers the
// engine.Database.RegisterVtabModule call path: restoring into a Module that
// already has the table connected (e.g. this process just created it) must
// not replace the live storetable.Table handle.
func TestRestoreCatalogIsIdempotentAlongsideAnAlreadyConnectedTable(t *testing.T) {
	ctx := context.Background()
	provider := memkv.NewProvider()
	ts := widgetsSchema()

	mod := memory.New(provider)
	db := &recordingDB{}
	created, err := mod.Create(ctx, db, ts)
	require.NoError(t, err)

	schemas, err := mod.RestoreCatalog(ctx)
	require.NoError(t, err)
	require.Len(t, schemas, 1)

	reconnected, err := mod.Connect(ctx, db, nil, "memory", ts)
	require.NoError(t, err)
	assert.Same(t, created, reconnected, "RestoreCatalog must not displace an already-connected table's handle")
}
