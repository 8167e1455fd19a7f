// Package kv defines the KVStore contract (spec §4.3, C3): an abstract
// byte-keyed ordered store with ranged iteration and atomic write batches,
// uniform across concrete backends (in-memory, LevelDB, IndexedDB, a SQL
// table, ...), only one of which — the in-memory reference backend in
// kv/memkv — is implemented here; the rest are out of scope per spec §1.
package kv

import (
	"context"
	"errors"
)

// ErrClosed is returned by any operation on a closed store.
var ErrClosed = errors.New("kv: store is closed")

// Entry is a single key/value pair produced by iteration.
type Entry struct {
	Key   []byte
	Value []byte
}

// IterOptions bounds and directs a range scan. Gte/Lte are inclusive,
// Gt/Lt are exclusive; Limit caps the number of entries returned; Reverse
// flips iteration order to byte-descending.
type IterOptions struct {
	Gte     []byte
	Gt      []byte
	Lte     []byte
	Lt      []byte
	Limit   int
	Reverse bool
}

// Iterator is a lazy, single-consumer cursor over a range (spec §9:
// "lazy sequence with at-most-one consumer; close releases resources on
// all exit paths").
type Iterator interface {
	// Next advances the cursor and reports whether an entry is available.
	Next(ctx context.Context) (bool, error)
	// Entry returns the entry at the current cursor position; valid only
	// after a Next call returned true.
	Entry() Entry
	// Close releases resources. Idempotent.
	Close() error
}

// WriteBatch accumulates puts/deletes for atomic application.
type WriteBatch interface {
	Put(key, value []byte)
	Delete(key []byte)
	Clear()
	Write(ctx context.Context) error
}

// CountOptions bounds an approximateCount call.
type CountOptions struct {
	Gte []byte
	Lte []byte
	Gt  []byte
	Lt  []byte
}

// Store is the KVStore contract of spec §4.3.
type Store interface {
	Get(ctx context.Context, key []byte) ([]byte, bool, error)
	Put(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error
	Has(ctx context.Context, key []byte) (bool, error)
	Iterate(ctx context.Context, opts IterOptions) (Iterator, error)
	Batch() WriteBatch
	ApproximateCount(ctx context.Context, opts CountOptions) (uint64, error)
	Close() error
}

// Kind identifies which logical store a Provider is being asked for.
type Kind int

const (
	KindData Kind = iota
	KindIndex
	KindStats
	KindCatalog
)

// Provider maps (schemaName, tableName[, indexName]) to a Store, guaranteeing
// identity: repeated requests for the same logical store return the same
// underlying Store (spec §4.3). It owns store lifecycle.
type Provider interface {
	DataStore(schemaName, tableName string) (Store, error)
	IndexStore(schemaName, tableName, indexName string) (Store, error)
	StatsStore(schemaName, tableName string) (Store, error)
	CatalogStore() (Store, error)

	CloseStore(schemaName, tableName string) error
	CloseAll() error
	DeleteTableStores(schemaName, tableName string) error
}
