package storetable

import (
	"context"

	"quereus/internal/vtab"
)

// Connection is the stable per-table connection object (spec §4.5
// createConnection/getConnection): a thin façade over the table's single
// Coordinator, identified by a UUID for registration with the database
// (spec §3/§4.12).
type Connection struct {
	id    vtab.ConnectionID
	table *Table
}

var _ vtab.Connection = (*Connection)(nil)

func (c *Connection) ID() vtab.ConnectionID { return c.id }

func (c *Connection) Begin(ctx context.Context) error {
	c.table.coord.Begin()
	return nil
}

func (c *Connection) Commit(ctx context.Context) error {
	return c.table.coord.Commit(ctx)
}

func (c *Connection) Rollback(ctx context.Context) error {
	return c.table.coord.Rollback()
}

func (c *Connection) CreateSavepoint(ctx context.Context, depth int) error {
	return c.table.coord.CreateSavepoint(depth)
}

func (c *Connection) RollbackToSavepoint(ctx context.Context, depth int) error {
	return c.table.coord.RollbackToSavepoint(depth)
}

func (c *Connection) ReleaseSavepoint(ctx context.Context, depth int) error {
	return c.table.coord.ReleaseSavepoint(depth)
}

func (c *Connection) Disconnect(ctx context.Context) error {
	return c.table.Disconnect(ctx)
}

// CreateConnection returns the table's stable connection object, creating
// it on first call (spec §4.5: "returns a stable per-table connection
// object").
func (t *Table) CreateConnection() *Connection {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	if t.conn == nil {
		t.conn = &Connection{id: vtab.NewConnectionID(), table: t}
	}
	return t.conn
}

// GetConnection returns the existing connection, if any.
func (t *Table) GetConnection() (*Connection, bool) {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	return t.conn, t.conn != nil
}

// Connection implements vtab.Table, lazily creating the connection (spec
// §4.5: "registration with the database is side-effectful and required
// before transactional DML" — the caller, internal/engine, is responsible
// for registering it).
func (t *Table) Connection(ctx context.Context) (vtab.Connection, error) {
	return t.CreateConnection(), nil
}
