package memkv

import (
	"context"
	"sync"

	"github.com/google/btree"

	"quereus/internal/kv"
)

// Iterate returns a lazy cursor over an immutable snapshot of the store
// taken at call time, walked by a background goroutine that blocks on
// Entry delivery so an abandoned iterator (never fully drained) does not
// leak: the goroutine selects on its done channel on every emit.
func (s *Store) Iterate(_ context.Context, opts kv.IterOptions) (kv.Iterator, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, kv.ErrClosed
	}
	snap := s.tree.Clone()
	s.mu.RUnlock()

	it := &iterator{
		ch:   make(chan kv.Entry),
		done: make(chan struct{}),
	}
	go it.run(snap, opts)
	return it, nil
}

type iterator struct {
	ch        chan kv.Entry
	done      chan struct{}
	closeOnce sync.Once
	cur       kv.Entry
}

func (it *iterator) run(snap *btree.BTree, opts kv.IterOptions) {
	defer close(it.ch)
	emitted := 0
	emit := func(k, v []byte) bool {
		if opts.Limit > 0 && emitted >= opts.Limit {
			return false
		}
		entry := kv.Entry{
			Key:   append([]byte(nil), k...),
			Value: append([]byte(nil), v...),
		}
		select {
		case it.ch <- entry:
			emitted++
			return true
		case <-it.done:
			return false
		}
	}

	if !opts.Reverse {
		snap.AscendGreaterOrEqual(lowerPivot(opts.Gte, opts.Gt), func(i btree.Item) bool {
			kvi := i.(*kvItem)
			if !withinLower(kvi.key, opts.Gte, opts.Gt) {
				return true
			}
			if !withinUpper(kvi.key, opts.Lte, opts.Lt) {
				return false
			}
			return emit(kvi.key, kvi.value)
		})
		return
	}

	// Reverse: the upper bound is where descent starts ("skip until <=
	// upper"), the lower bound is where descent stops ("terminate when <
	// lower") — see package doc for the bug this fixes.
	walk := func(i btree.Item) bool {
		kvi := i.(*kvItem)
		if !withinUpper(kvi.key, opts.Lte, opts.Lt) {
			return true
		}
		if !withinLower(kvi.key, opts.Gte, opts.Gt) {
			return false
		}
		return emit(kvi.key, kvi.value)
	}
	if pivot := upperPivot(opts.Lte, opts.Lt); pivot != nil {
		snap.DescendLessOrEqual(pivot, walk)
	} else {
		snap.Descend(walk)
	}
}

func (it *iterator) Next(ctx context.Context) (bool, error) {
	select {
	case e, ok := <-it.ch:
		if !ok {
			return false, nil
		}
		it.cur = e
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (it *iterator) Entry() kv.Entry { return it.cur }

func (it *iterator) Close() error {
	it.closeOnce.Do(func() { close(it.done) })
	return nil
}
