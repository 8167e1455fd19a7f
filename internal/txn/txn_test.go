package txn_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quereus/internal/errs"
	"quereus/internal/kv/memkv"
	"quereus/internal/txn"
)

func TestPutOutsideTransactionIsMisuse(t *testing.T) {
	c := txn.New()
	store := memkv.New()
	err := c.Put(store, []byte("k"), []byte("v"))
	require.Error(t, err)
	assert.Equal(t, errs.Misuse, errs.KindOf(err))
}

// TestReadYourWrites covers invariant 3/5: within a transaction, a read of
// a key reflects the latest buffered write to that key, even though the
// underlying store has not been touched yet.
func TestReadYourWrites(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	c := txn.New()

	c.Begin()
	require.NoError(t, c.Put(store, []byte("k"), []byte("v1")))
	v, ok, err := c.Get(ctx, store, []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), v)

	require.NoError(t, c.Put(store, []byte("k"), []byte("v2")))
	v, ok, err = c.Get(ctx, store, []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), v)

	_, ok, err = store.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.False(t, ok, "underlying store must not observe the write before commit")

	require.NoError(t, c.Delete(store, []byte("k")))
	_, ok, err = c.Get(ctx, store, []byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestCommitRoutesWritesPerStore is the coordinator-level regression for
// spec §9's index-mutation-must-route-through-the-coordinator bug fix: a
// single commit spanning a data store and a secondary index store applies
// both, atomically per store.
func TestCommitRoutesWritesPerStore(t *testing.T) {
	ctx := context.Background()
	dataStore := memkv.New()
	indexStore := memkv.New()
	c := txn.New()

	c.Begin()
	require.NoError(t, c.Put(dataStore, []byte("row1"), []byte("payload")))
	require.NoError(t, c.Put(indexStore, []byte("idx1"), []byte("row1")))
	require.NoError(t, c.Commit(ctx))

	v, ok, err := dataStore.Get(ctx, []byte("row1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), v)

	v, ok, err = indexStore.Get(ctx, []byte("idx1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("row1"), v)

	assert.Equal(t, txn.Idle, c.State())
}

// TestRollbackDiscardsAllStores ensures a rollback after writes spanning
// multiple stores leaves every store untouched, including the index store
// — the same bug fix from the other direction.
func TestRollbackDiscardsAllStores(t *testing.T) {
	ctx := context.Background()
	dataStore := memkv.New()
	indexStore := memkv.New()
	c := txn.New()

	c.Begin()
	require.NoError(t, c.Put(dataStore, []byte("row1"), []byte("payload")))
	require.NoError(t, c.Put(indexStore, []byte("idx1"), []byte("row1")))
	require.NoError(t, c.Rollback())

	_, ok, err := dataStore.Get(ctx, []byte("row1"))
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = indexStore.Get(ctx, []byte("idx1"))
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, txn.Idle, c.State())
	// Rollback on an already-idle coordinator is a no-op, not an error.
	require.NoError(t, c.Rollback())
}

// TestSavepointNesting covers invariant 7/8: a nested savepoint rollback
// discards only writes made after it was created, and releasing a
// savepoint keeps its writes live for an enclosing commit.
func TestSavepointNesting(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	c := txn.New()

	c.Begin()
	require.NoError(t, c.Put(store, []byte("a"), []byte("1")))
	require.NoError(t, c.CreateSavepoint(1))
	require.NoError(t, c.Put(store, []byte("b"), []byte("2")))
	require.NoError(t, c.CreateSavepoint(2))
	require.NoError(t, c.Put(store, []byte("c"), []byte("3")))

	require.NoError(t, c.RollbackToSavepoint(2))
	_, ok, err := c.Get(ctx, store, []byte("c"))
	require.NoError(t, err)
	assert.False(t, ok, "writes after savepoint 2 must be discarded")
	v, ok, err := c.Get(ctx, store, []byte("b"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("2"), v)

	require.NoError(t, c.RollbackToSavepoint(1))
	_, ok, err = c.Get(ctx, store, []byte("b"))
	require.NoError(t, err)
	assert.False(t, ok, "writes after savepoint 1 must be discarded")

	require.NoError(t, c.Commit(ctx))
	v, ok, err = store.Get(ctx, []byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)
	_, ok, err = store.Get(ctx, []byte("b"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReleaseSavepointKeepsWrites(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	c := txn.New()

	c.Begin()
	require.NoError(t, c.CreateSavepoint(1))
	require.NoError(t, c.Put(store, []byte("a"), []byte("1")))
	require.NoError(t, c.ReleaseSavepoint(1))
	require.NoError(t, c.Commit(ctx))

	v, ok, err := store.Get(ctx, []byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)
}

func TestRollbackToUnknownSavepointIsNotFound(t *testing.T) {
	c := txn.New()
	c.Begin()
	err := c.RollbackToSavepoint(7)
	require.Error(t, err)
	assert.Equal(t, errs.NotFound, errs.KindOf(err))
}

// TestEventOrderingFIFOAtCommit covers the coordinator's event ordering
// guarantee: events queued during a transaction are delivered to subscribers only at commit, in the
// exact order they were queued, never before and never out of order.
func TestEventOrderingFIFOAtCommit(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	c := txn.New()

	var delivered []string
	c.Subscribe(func(e txn.Event) { delivered = append(delivered, e.Kind) })

	c.Begin()
	c.QueueEvent(txn.Event{Kind: "insert-a"})
	require.NoError(t, c.Put(store, []byte("a"), []byte("1")))
	c.QueueEvent(txn.Event{Kind: "insert-b"})
	require.NoError(t, c.Put(store, []byte("b"), []byte("2")))

	assert.Empty(t, delivered, "events must not be delivered before commit")

	require.NoError(t, c.Commit(ctx))
	assert.Equal(t, []string{"insert-a", "insert-b"}, delivered)
}

func TestEventDeliveredImmediatelyOutsideTransaction(t *testing.T) {
	c := txn.New()
	var delivered []string
	c.Subscribe(func(e txn.Event) { delivered = append(delivered, e.Kind) })
	c.QueueEvent(txn.Event{Kind: "autocommit-insert"})
	assert.Equal(t, []string{"autocommit-insert"}, delivered)
}

func TestOnCommitAndOnRollbackCallbacks(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()

	c := txn.New()
	committed := false
	c.OnCommit(func() { committed = true })
	c.Begin()
	require.NoError(t, c.Put(store, []byte("a"), []byte("1")))
	require.NoError(t, c.Commit(ctx))
	assert.True(t, committed)

	c2 := txn.New()
	rolledBack := false
	c2.OnRollback(func() { rolledBack = true })
	c2.Begin()
	require.NoError(t, c2.Put(store, []byte("b"), []byte("2")))
	require.NoError(t, c2.Rollback())
	assert.True(t, rolledBack)
}

// TestPendingOpsForScopesToStore ensures a scan overlay for one store never
// sees another store's pending writes, even though both were buffered by
// the same coordinator in the same transaction.
func TestPendingOpsForScopesToStore(t *testing.T) {
	dataStore := memkv.New()
	indexStore := memkv.New()
	c := txn.New()

	c.Begin()
	require.NoError(t, c.Put(dataStore, []byte("row1"), []byte("payload")))
	require.NoError(t, c.Put(indexStore, []byte("idx1"), []byte("row1")))
	require.NoError(t, c.Delete(dataStore, []byte("row0")))

	dataOps := c.PendingOpsFor(dataStore)
	require.Len(t, dataOps, 2)
	assert.Equal(t, []byte("row1"), dataOps[0].Key)
	assert.False(t, dataOps[0].Delete)
	assert.Equal(t, []byte("row0"), dataOps[1].Key)
	assert.True(t, dataOps[1].Delete)

	indexOps := c.PendingOpsFor(indexStore)
	require.Len(t, indexOps, 1)
	assert.Equal(t, []byte("idx1"), indexOps[0].Key)
}

func TestCommitWhenIdleIsNoOp(t *testing.T) {
	c := txn.New()
	require.NoError(t, c.Commit(context.Background()))
	assert.Equal(t, txn.Idle, c.State())
}
