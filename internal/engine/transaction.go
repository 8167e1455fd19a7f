package engine

import (
	"context"

	"quereus/internal/errs"
	"quereus/internal/vtab"
)

// TransactionMode names the SQLite-style BEGIN variant (spec §4.12
// beginTransaction({deferred|immediate|exclusive})). The in-memory
// coordinator behind every storetable.Table buffers writes identically
// regardless of mode, so all three begin every registered connection the
// same way; the mode is accepted (and rejected if unrecognized) for
// interface fidelity with the spec rather than to select a different
// locking strategy.
type TransactionMode string

const (
	Deferred  TransactionMode = "deferred"
	Immediate TransactionMode = "immediate"
	Exclusive TransactionMode = "exclusive"
)

// RegisterConnection adds conn to the registry. If the database is already
// inTransaction, Begin is called immediately so the connection joins the
// transaction mid-flight (spec §4.12).
func (d *Database) RegisterConnection(ctx context.Context, conn vtab.Connection) error {
	d.mu.Lock()
	d.connections[conn.ID()] = conn
	inTx := d.inTransaction
	d.mu.Unlock()

	if inTx {
		return conn.Begin(ctx)
	}
	return nil
}

// UnregisterConnection removes conn from the registry, unless an implicit
// transaction is in flight, in which case the disconnect is deferred until
// the implicit transaction's commit or rollback completes (spec §4.12).
func (d *Database) UnregisterConnection(ctx context.Context, id vtab.ConnectionID) error {
	d.mu.Lock()
	if d.inImplicitTransaction {
		d.pendingDisconnect[id] = true
		d.mu.Unlock()
		return nil
	}
	conn, ok := d.connections[id]
	delete(d.connections, id)
	d.mu.Unlock()

	if !ok {
		return nil
	}
	return conn.Disconnect(ctx)
}

func (d *Database) connectionList() []vtab.Connection {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]vtab.Connection, 0, len(d.connections))
	for _, c := range d.connections {
		out = append(out, c)
	}
	return out
}

// BeginTransaction opens an explicit transaction across every registered
// connection (spec §4.12 beginTransaction).
func (d *Database) BeginTransaction(ctx context.Context, mode TransactionMode) error {
	switch mode {
	case Deferred, Immediate, Exclusive:
	default:
		return errs.New(errs.Misuse, "unknown transaction mode %q", mode)
	}

	d.mu.Lock()
	if d.inTransaction {
		d.mu.Unlock()
		return errs.New(errs.Misuse, "a transaction is already open")
	}
	d.inTransaction = true
	d.mu.Unlock()

	for _, c := range d.connectionList() {
		if err := c.Begin(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Commit commits every registered connection and then performs any
// disconnects deferred while an implicit transaction was open.
func (d *Database) Commit(ctx context.Context) error {
	for _, c := range d.connectionList() {
		if err := c.Commit(ctx); err != nil {
			return err
		}
	}
	d.endTransaction()
	return d.flushPendingDisconnects(ctx)
}

// Rollback rolls back every registered connection and then performs any
// deferred disconnects.
func (d *Database) Rollback(ctx context.Context) error {
	var firstErr error
	for _, c := range d.connectionList() {
		if err := c.Rollback(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.endTransaction()
	if err := d.flushPendingDisconnects(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (d *Database) endTransaction() {
	d.mu.Lock()
	d.inTransaction = false
	d.inImplicitTransaction = false
	d.mu.Unlock()
}

func (d *Database) flushPendingDisconnects(ctx context.Context) error {
	d.mu.Lock()
	pending := d.pendingDisconnect
	d.pendingDisconnect = map[vtab.ConnectionID]bool{}
	d.mu.Unlock()

	var firstErr error
	for id := range pending {
		d.mu.Lock()
		conn, ok := d.connections[id]
		delete(d.connections, id)
		d.mu.Unlock()
		if ok {
			if err := conn.Disconnect(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// beginImplicit opens an implicit transaction across every registered
// connection ahead of a multi-statement exec batch (spec §4.12).
func (d *Database) beginImplicit(ctx context.Context) error {
	d.mu.Lock()
	d.inTransaction = true
	d.inImplicitTransaction = true
	d.mu.Unlock()

	for _, c := range d.connectionList() {
		if err := c.Begin(ctx); err != nil {
			return err
		}
	}
	return nil
}
