package memkv

import (
	"bytes"
	"context"
	"sort"

	"quereus/internal/kv"
)

type op struct {
	key    []byte
	value  []byte
	delete bool
}

type writeBatch struct {
	store *Store
	ops   []op
}

func (s *Store) Batch() kv.WriteBatch {
	return &writeBatch{store: s}
}

func (b *writeBatch) Put(key, value []byte) {
	b.ops = append(b.ops, op{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
}

func (b *writeBatch) Delete(key []byte) {
	b.ops = append(b.ops, op{key: append([]byte(nil), key...), delete: true})
}

func (b *writeBatch) Clear() {
	b.ops = b.ops[:0]
}

// Write applies the batch atomically with respect to concurrent readers:
// the store's lock is held for the whole apply, so no reader observes a
// partial batch (spec §4.3: "batch().write() is atomic with respect to
// concurrent readers at the KV level"). Operations on the same key are
// applied in program order so a later one wins, matching
// the ordered pending-log semantics the coordinator (C4) relies on.
func (b *writeBatch) Write(_ context.Context) error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	if b.store.closed {
		return kv.ErrClosed
	}
	// Stable-sort only to make iteration order deterministic for
	// equal-priority ops on distinct keys; last-write-wins on duplicate
	// keys is preserved because ops keeps its original program order and
	// sort.SliceStable is stable.
	ops := make([]op, len(b.ops))
	copy(ops, b.ops)
	sort.SliceStable(ops, func(i, j int) bool { return bytes.Compare(ops[i].key, ops[j].key) < 0 })
	for _, o := range ops {
		if o.delete {
			b.store.tree.Delete(&kvItem{key: o.key})
		} else {
			b.store.tree.ReplaceOrInsert(&kvItem{key: o.key, value: o.value})
		}
	}
	return nil
}
