// Package txn implements the per-table TransactionCoordinator (spec §4.4,
// C4): buffered writes, savepoints, event queueing, and commit/rollback
// callbacks.
//
// A StoreTable owns exactly one Coordinator for its whole instance (spec
// §3), even though its data lives across several physical kv.Stores (the
// data store and one store per secondary index). Spec §9 flags a source
// bug where "secondary index mutations under an active transaction are
// applied directly rather than through the coordinator", which can leave
// indexes inconsistent with data on rollback, and requires index mutations
// to route through the coordinator instead. This Coordinator therefore
// tags every pending write with the target kv.Store, so both the data key
// and every index key touched by one DML operation are buffered, read
// back (read-your-writes), and committed or discarded together.
package txn

import (
	"context"
	"sync"

	"quereus/internal/errs"
	"quereus/internal/kv"
)

// State is the coordinator's position in the Idle/InTx state machine.
type State int

const (
	Idle State = iota
	InTx
)

// Event is queued by DML and delivered to subscribers at commit, in the
// program order the DML ran (spec §4.4 ordering guarantee).
type Event struct {
	Kind    string
	Payload any
}

type logEntry struct {
	store  kv.Store
	key    []byte
	value  []byte
	delete bool
}

type savepointMark struct {
	logLen   int
	eventLen int
}

// Coordinator is one-per-table-instance transaction state (spec §3
// ownership: "owns the pending write buffer and the pending-event queue for
// the lifetime of a transaction").
type Coordinator struct {
	mu sync.Mutex

	state      State
	log        []logEntry
	events     []Event
	savepoints map[int]savepointMark

	subscribers []func(Event)
	onCommit    []func()
	onRollback  []func()
}

// New returns an idle coordinator. Stores are supplied per-op to Put/Delete
// so one coordinator can buffer writes across a table's data store and all
// of its index stores.
func New() *Coordinator {
	return &Coordinator{savepoints: map[int]savepointMark{}}
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers a callback invoked for every event, whether emitted
// immediately (outside a transaction) or drained at commit.
func (c *Coordinator) Subscribe(fn func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

// OnCommit registers a callback invoked after a successful commit.
func (c *Coordinator) OnCommit(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCommit = append(c.onCommit, fn)
}

// OnRollback registers a callback invoked after a rollback.
func (c *Coordinator) OnRollback(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRollback = append(c.onRollback, fn)
}

// Begin enters InTx; idempotent when already InTx (spec §4.4).
func (c *Coordinator) Begin() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = InTx
}

// InTransaction reports whether the coordinator is currently InTx.
func (c *Coordinator) InTransaction() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == InTx
}

// Put appends a write targeting store to the pending log. Fails with
// Misuse outside InTx.
func (c *Coordinator) Put(store kv.Store, key, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != InTx {
		return errs.New(errs.Misuse, "put called outside a transaction")
	}
	c.log = append(c.log, logEntry{store: store, key: clone(key), value: clone(value)})
	return nil
}

// Delete appends a deletion targeting store to the pending log. Fails with
// Misuse outside InTx.
func (c *Coordinator) Delete(store kv.Store, key []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != InTx {
		return errs.New(errs.Misuse, "delete called outside a transaction")
	}
	c.log = append(c.log, logEntry{store: store, key: clone(key), delete: true})
	return nil
}

// Get reads a key from store, consulting the pending log first so a
// transaction observes its own writes (spec §4.4/invariant 3/5).
func (c *Coordinator) Get(ctx context.Context, store kv.Store, key []byte) ([]byte, bool, error) {
	c.mu.Lock()
	if c.state == InTx {
		for i := len(c.log) - 1; i >= 0; i-- {
			e := c.log[i]
			if e.store == store && string(e.key) == string(key) {
				c.mu.Unlock()
				if e.delete {
					return nil, false, nil
				}
				return clone(e.value), true, nil
			}
		}
	}
	c.mu.Unlock()
	return store.Get(ctx, key)
}

// PendingOpsFor returns, in program order, the pending writes targeting
// store — used by a scan to overlay buffered writes onto the persisted
// range (spec invariant 3).
func (c *Coordinator) PendingOpsFor(store kv.Store) []Op {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Op
	for _, e := range c.log {
		if e.store == store {
			out = append(out, Op{Key: clone(e.key), Value: clone(e.value), Delete: e.delete})
		}
	}
	return out
}

// Op is the exported view of a pending log entry.
type Op struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// QueueEvent appends an event to the pending queue inside a transaction, or
// delivers it to subscribers immediately outside one (spec §4.4).
func (c *Coordinator) QueueEvent(e Event) {
	c.mu.Lock()
	if c.state == InTx {
		c.events = append(c.events, e)
		c.mu.Unlock()
		return
	}
	subs := append([]func(Event){}, c.subscribers...)
	c.mu.Unlock()
	for _, s := range subs {
		s(e)
	}
}

// CreateSavepoint records the current log/event lengths under depth.
func (c *Coordinator) CreateSavepoint(depth int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != InTx {
		return errs.New(errs.Misuse, "createSavepoint called outside a transaction")
	}
	c.savepoints[depth] = savepointMark{logLen: len(c.log), eventLen: len(c.events)}
	return nil
}

// RollbackToSavepoint truncates the log/events back to the recorded mark.
func (c *Coordinator) RollbackToSavepoint(depth int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	mark, ok := c.savepoints[depth]
	if !ok {
		return errs.New(errs.NotFound, "unknown savepoint depth %d", depth)
	}
	c.log = c.log[:mark.logLen]
	c.events = c.events[:mark.eventLen]
	for d := range c.savepoints {
		if d > depth {
			delete(c.savepoints, d)
		}
	}
	return nil
}

// ReleaseSavepoint discards the mark without touching the log.
func (c *Coordinator) ReleaseSavepoint(depth int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.savepoints[depth]; !ok {
		return errs.New(errs.NotFound, "unknown savepoint depth %d", depth)
	}
	delete(c.savepoints, depth)
	return nil
}

// Commit groups the pending log by target store and applies one atomic
// batch per store, drains events in FIFO order, invokes onCommit
// callbacks, then clears state. A no-op when Idle.
func (c *Coordinator) Commit(ctx context.Context) error {
	c.mu.Lock()
	if c.state != InTx {
		c.mu.Unlock()
		return nil
	}
	log := c.log
	events := c.events
	subs := append([]func(Event){}, c.subscribers...)
	onCommit := append([]func(){}, c.onCommit...)
	c.mu.Unlock()

	order := []kv.Store{}
	batches := map[kv.Store]kv.WriteBatch{}
	for _, e := range log {
		b, ok := batches[e.store]
		if !ok {
			b = e.store.Batch()
			batches[e.store] = b
			order = append(order, e.store)
		}
		if e.delete {
			b.Delete(e.key)
		} else {
			b.Put(e.key, e.value)
		}
	}
	for _, store := range order {
		if err := batches[store].Write(ctx); err != nil {
			return errs.Wrap(errs.IO, err, "commit: writing batch")
		}
	}

	for _, e := range events {
		for _, s := range subs {
			s(e)
		}
	}
	for _, cb := range onCommit {
		cb()
	}

	c.mu.Lock()
	c.state = Idle
	c.log = nil
	c.events = nil
	c.savepoints = map[int]savepointMark{}
	c.mu.Unlock()
	return nil
}

// Rollback discards pending writes and events and invokes onRollback
// callbacks. A no-op when Idle.
func (c *Coordinator) Rollback() error {
	c.mu.Lock()
	if c.state != InTx {
		c.mu.Unlock()
		return nil
	}
	onRollback := append([]func(){}, c.onRollback...)
	c.state = Idle
	c.log = nil
	c.events = nil
	c.savepoints = map[int]savepointMark{}
	c.mu.Unlock()

	for _, cb := range onRollback {
		cb()
	}
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
