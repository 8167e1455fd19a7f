package storetable

import (
	"context"

	"quereus/internal/errs"
	"quereus/internal/logging"
	"quereus/internal/rowcodec"
)

// statsKey is the fixed single key the stats store holds its record under
// (spec §3/§6.1: "a single entry under a fixed key").
var statsKey = []byte{}

// Statistics policy (spec §4.5): a mutation bumps flushedDelta directly
// when it runs outside a transaction ("applies immediately"), or
// txnDelta while a transaction is open. Commit folds txnDelta into
// flushedDelta and checks STATS_FLUSH_INTERVAL; rollback discards txnDelta
// without touching flushedDelta. flushedDelta itself persists, unflushed,
// across any number of commits until the interval triggers a write.

// currentRowCount reads the persisted stats row count and layers the
// not-yet-flushed deltas on top, caching the result.
func (t *Table) currentRowCount(ctx context.Context) (uint64, error) {
	t.mu.Lock()
	if t.rowCountCache != nil {
		v := *t.rowCountCache
		t.mu.Unlock()
		return v, nil
	}
	t.mu.Unlock()

	data, found, err := t.statsStore.Get(ctx, statsKey)
	if err != nil {
		return 0, errs.Wrap(errs.IO, err, "reading stats record")
	}
	var base uint64
	if found {
		stats, err := rowcodec.DeserializeStats(data)
		if err != nil {
			return 0, errs.Wrap(errs.Internal, err, "deserializing stats record")
		}
		base = stats.RowCount
	}

	t.mu.Lock()
	v := clampUint64(int64(base) + t.flushedDelta + t.txnDelta)
	t.rowCountCache = &v
	t.mu.Unlock()
	return v, nil
}

func clampUint64(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

// addStatsDelta records a +1/-1 mutation, routed to the transaction-scoped
// or immediately-flushed-pending bucket depending on coordinator state, and
// keeps the row-count cache in step so readers see it right away (spec
// invariant 3's "read-your-own-writes" extends to the row count itself).
func (t *Table) addStatsDelta(delta int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.coord.InTransaction() {
		t.txnDelta += delta
		t.txnMutations++
	} else {
		t.flushedDelta += delta
		t.flushedMutations++
	}
	if t.rowCountCache != nil {
		v := clampUint64(int64(*t.rowCountCache) + delta)
		t.rowCountCache = &v
	}
}

// onTxnCommit folds the transaction-scoped delta into the flushed-pending
// bucket (spec §4.5: "On commit, pending delta is applied, then the
// interval counter is checked").
func (t *Table) onTxnCommit(ctx context.Context) {
	t.mu.Lock()
	t.flushedDelta += t.txnDelta
	t.flushedMutations += t.txnMutations
	t.txnDelta = 0
	t.txnMutations = 0
	due := t.flushedMutations >= statsFlushInterval
	t.mu.Unlock()
	if due {
		if err := t.flushStats(ctx); err != nil {
			logStatsFlushFailure(t.schemaObj.Name, err)
		}
	}
}

// onTxnRollback discards the transaction-scoped delta (spec §4.5: "On
// rollback, pending delta is discarded").
func (t *Table) onTxnRollback() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rowCountCache != nil {
		v := clampUint64(int64(*t.rowCountCache) - t.txnDelta)
		t.rowCountCache = &v
	}
	t.txnDelta = 0
	t.txnMutations = 0
}

func (t *Table) flushStats(ctx context.Context) error {
	count, err := t.currentRowCount(ctx)
	if err != nil {
		return err
	}
	rec := rowcodec.SerializeStats(rowcodec.Stats{RowCount: count, UpdatedAt: nowMillis()})
	if err := t.statsStore.Put(ctx, statsKey, rec); err != nil {
		return errs.Wrap(errs.IO, err, "flushing stats")
	}
	t.mu.Lock()
	t.flushedDelta = 0
	t.flushedMutations = 0
	t.mu.Unlock()
	return nil
}

// EstimatedRowCount returns the cached/persisted row count (spec §4.5
// getEstimatedRowCount): absent stats record means 0.
func (t *Table) EstimatedRowCount(ctx context.Context) (uint64, error) {
	if err := t.ensureStore(); err != nil {
		return 0, err
	}
	return t.currentRowCount(ctx)
}

func logStatsFlushFailure(table string, err error) {
	logging.Default.Errorf("background stats flush failed for table %s: %v", table, err)
}
