// Package memkv is the engine's reference in-memory KVStore backend (spec
// §4.3, C3). It is ordered by an immutable B-tree snapshot per iteration
// (github.com/google/btree, the ordered-map structure the AKJUS-bsc-erigon
// teacher pulls in for its own KV layer) so that "iterate" is lazy, O(1) to
// start, and immune to concurrent mutation of the live tree.
//
// Spec §4.3 calls out a known bug in "the reference in-memory KVStore":
// reverse-bounded iteration terminating on the first entry because the
// upper bound is checked against the wrong endpoint. This implementation
// does not have that bug — see TestIterate_ReverseWithBounds for the
// regression case from spec §8 scenario S5 — by applying the upper bound
// as "skip until <= upper" and the lower bound as "terminate when < lower"
// in reverse, exactly as required.
package memkv

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/btree"

	"quereus/internal/kv"
)

const btreeDegree = 32

type kvItem struct {
	key   []byte
	value []byte
}

func (a *kvItem) Less(than btree.Item) bool {
	return bytes.Compare(a.key, than.(*kvItem).key) < 0
}

// Store is an in-memory, btree-backed implementation of kv.Store.
type Store struct {
	mu     sync.RWMutex
	tree   *btree.BTree
	closed bool
}

// New returns an empty store.
func New() *Store {
	return &Store{tree: btree.New(btreeDegree)}
}

func (s *Store) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, kv.ErrClosed
	}
	item := s.tree.Get(&kvItem{key: key})
	if item == nil {
		return nil, false, nil
	}
	v := item.(*kvItem).value
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (s *Store) Put(_ context.Context, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kv.ErrClosed
	}
	k := append([]byte(nil), key...)
	v := append([]byte(nil), value...)
	s.tree.ReplaceOrInsert(&kvItem{key: k, value: v})
	return nil
}

func (s *Store) Delete(_ context.Context, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kv.ErrClosed
	}
	s.tree.Delete(&kvItem{key: key})
	return nil
}

func (s *Store) Has(_ context.Context, key []byte) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, kv.ErrClosed
	}
	return s.tree.Get(&kvItem{key: key}) != nil, nil
}

func (s *Store) ApproximateCount(_ context.Context, opts kv.CountOptions) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, kv.ErrClosed
	}
	var count uint64
	snap := s.tree.Clone()
	snap.AscendGreaterOrEqual(lowerPivot(opts.Gte, opts.Gt), func(i btree.Item) bool {
		it := i.(*kvItem)
		if !withinLower(it.key, opts.Gte, opts.Gt) {
			return true
		}
		if !withinUpper(it.key, opts.Lte, opts.Lt) {
			return false
		}
		count++
		return true
	})
	return count, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func lowerPivot(gte, gt []byte) btree.Item {
	switch {
	case gte != nil:
		return &kvItem{key: gte}
	case gt != nil:
		return &kvItem{key: gt}
	default:
		return &kvItem{key: nil}
	}
}

func upperPivot(lte, lt []byte) btree.Item {
	switch {
	case lte != nil:
		return &kvItem{key: lte}
	case lt != nil:
		return &kvItem{key: lt}
	default:
		return nil
	}
}

func withinLower(key, gte, gt []byte) bool {
	if gte != nil && bytes.Compare(key, gte) < 0 {
		return false
	}
	if gt != nil && bytes.Compare(key, gt) <= 0 {
		return false
	}
	return true
}

func withinUpper(key, lte, lt []byte) bool {
	if lte != nil && bytes.Compare(key, lte) > 0 {
		return false
	}
	if lt != nil && bytes.Compare(key, lt) >= 0 {
		return false
	}
	return true
}
