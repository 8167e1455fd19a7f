// Package storetable implements the KV-backed relational table engine
// (spec §4.5, C5): primary-key and secondary-index storage over a
// kv.Provider, lazily-flushed statistics, and DML routed through a
// txn.Coordinator so that index mutations made inside a transaction are
// never applied outside it (spec §9's fix for the "direct apply" bug).
package storetable

import (
	"context"
	"sync"
	"time"

	"quereus/internal/errs"
	"quereus/internal/keycodec"
	"quereus/internal/kv"
	"quereus/internal/schema"
	"quereus/internal/txn"
	"quereus/internal/vtab"
)

var _ vtab.Table = (*Table)(nil)

// statsFlushInterval is STATS_FLUSH_INTERVAL from spec §4.5: the number of
// non-zero mutations after which a deferred stats flush writes the record.
const statsFlushInterval = 100

// Table is a StoreTable instance (spec §4.5). One Table owns exactly one
// Coordinator for its lifetime and a reference to every logical store it
// needs (data, one per secondary index, stats); stores are shared by key
// identity through the Provider, per spec §3 ownership rules.
type Table struct {
	schemaObj *schema.TableSchema
	provider  kv.Provider

	coord *txn.Coordinator

	initOnce  sync.Once
	initErr   error
	dataStore kv.Store
	idxStores map[string]kv.Store
	statsStore kv.Store

	mu               sync.Mutex
	flushedDelta     int64 // uncommitted-to-disk delta, persists across commits until flush
	flushedMutations int
	txnDelta         int64 // delta accumulated in the currently open transaction only
	txnMutations     int
	rowCountCache    *uint64

	connMu sync.Mutex
	conn   *Connection
}

// New constructs a Table bound to schemaObj, lazily opening its stores
// from provider on first use (ensureStore, spec §4.5 concurrency note).
func New(schemaObj *schema.TableSchema, provider kv.Provider) *Table {
	t := &Table{
		schemaObj: schemaObj,
		provider:  provider,
		coord:     txn.New(),
		idxStores: map[string]kv.Store{},
	}
	t.coord.OnCommit(func() { t.onTxnCommit(context.Background()) })
	t.coord.OnRollback(t.onTxnRollback)
	return t
}

func nowMillis() int64 { return time.Now().UnixMilli() }

func (t *Table) Schema() *schema.TableSchema { return t.schemaObj }

// ensureStore opens the data, index and stats stores exactly once,
// regardless of how many goroutines call concurrently: sync.Once supplies
// the single-flight behaviour the spec calls for.
func (t *Table) ensureStore() error {
	t.initOnce.Do(func() {
		ds, err := t.provider.DataStore(t.schemaObj.SchemaName, t.schemaObj.Name)
		if err != nil {
			t.initErr = errs.Wrap(errs.IO, err, "opening data store for %s.%s", t.schemaObj.SchemaName, t.schemaObj.Name)
			return
		}
		t.dataStore = ds

		ss, err := t.provider.StatsStore(t.schemaObj.SchemaName, t.schemaObj.Name)
		if err != nil {
			t.initErr = errs.Wrap(errs.IO, err, "opening stats store for %s.%s", t.schemaObj.SchemaName, t.schemaObj.Name)
			return
		}
		t.statsStore = ss

		for _, ix := range t.schemaObj.Indexes {
			is, err := t.provider.IndexStore(t.schemaObj.SchemaName, t.schemaObj.Name, ix.Name)
			if err != nil {
				t.initErr = errs.Wrap(errs.IO, err, "opening index store %s for %s.%s", ix.Name, t.schemaObj.SchemaName, t.schemaObj.Name)
				return
			}
			t.idxStores[ix.Name] = is
		}
	})
	return t.initErr
}

// pkOptions builds the composite-key encoding options for the table's
// primary key.
func (t *Table) pkOptions() keycodec.Options {
	opts := keycodec.Options{Directions: make([]keycodec.Direction, len(t.schemaObj.PrimaryKey))}
	for i, kc := range t.schemaObj.PrimaryKey {
		opts.Directions[i] = keycodec.Direction(kc.Desc)
		if kc.Collation != "" {
			opts.Collation = kc.Collation
		}
	}
	if opts.Collation == "" {
		opts.Collation = "BINARY"
	}
	return opts
}

// indexOptions builds the composite-key encoding options for one secondary
// index's leading (indexed) columns.
func (t *Table) indexOptions(ix schema.IndexSchema) keycodec.Options {
	opts := keycodec.Options{Directions: make([]keycodec.Direction, len(ix.Columns))}
	for i, kc := range ix.Columns {
		opts.Directions[i] = keycodec.Direction(kc.Desc)
		if kc.Collation != "" {
			opts.Collation = kc.Collation
		}
	}
	if opts.Collation == "" {
		opts.Collation = "BINARY"
	}
	return opts
}

// Disconnect flushes any pending stats and relinquishes this Table's own
// handle reference without closing the underlying stores, which other
// tables may still share (spec §4.5/§3).
func (t *Table) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	dirty := t.flushedMutations > 0 || t.flushedDelta != 0
	t.mu.Unlock()
	if dirty {
		if err := t.flushStats(ctx); err != nil {
			return err
		}
	}
	return nil
}
