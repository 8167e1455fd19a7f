package storetable

import (
	"context"

	"quereus/internal/errs"
	"quereus/internal/keycodec"
	"quereus/internal/rowcodec"
	"quereus/internal/schema"
	"quereus/internal/txn"
	"quereus/internal/types"
	"quereus/internal/vtab"
)

// Update applies one DML operation (spec §4.5). All store mutations -
// data key and every secondary index key - are routed through the
// Coordinator, whether or not a transaction is open: outside a
// transaction the Coordinator's Put/Delete still requires InTx, so callers
// doing ad-hoc (non-transactional) DML wrap the single operation in an
// implicit begin/commit pair here, keeping data and index writes atomic
// together even for a lone statement.
func (t *Table) Update(ctx context.Context, req vtab.UpdateRequest) (types.Row, bool, error) {
	if err := t.ensureStore(); err != nil {
		return nil, false, err
	}

	ownTxn := !t.coord.InTransaction()
	if ownTxn {
		t.coord.Begin()
	}

	row, present, err := t.applyUpdate(ctx, req)
	if err != nil {
		if ownTxn {
			_ = t.coord.Rollback()
		}
		return nil, false, err
	}

	if ownTxn {
		if err := t.coord.Commit(ctx); err != nil {
			return nil, false, err
		}
	}
	return row, present, nil
}

func (t *Table) applyUpdate(ctx context.Context, req vtab.UpdateRequest) (types.Row, bool, error) {
	switch req.Operation {
	case vtab.OpInsert:
		return t.applyInsert(ctx, req)
	case vtab.OpUpdate:
		return t.applyRowUpdate(ctx, req)
	case vtab.OpDelete:
		return t.applyDelete(ctx, req)
	default:
		return nil, false, errs.New(errs.Misuse, "unknown update operation %d", req.Operation)
	}
}

func (t *Table) applyInsert(ctx context.Context, req vtab.UpdateRequest) (types.Row, bool, error) {
	if req.Values == nil {
		return nil, false, errs.New(errs.Misuse, "insert requires values")
	}
	pk := t.pkValuesOf(req.Values)
	dataKey, err := keycodec.BuildDataKey(pk, t.pkOptions())
	if err != nil {
		return nil, false, errs.Wrap(errs.Internal, err, "encoding primary key")
	}

	existing, found, err := t.coord.Get(ctx, t.dataStore, dataKey)
	if err != nil {
		return nil, false, errs.Wrap(errs.IO, err, "reading existing row")
	}
	if found && req.OnConflict != vtab.ConflictReplace {
		return nil, false, errs.New(errs.Constraint, "UNIQUE constraint failed: %s primary key", t.schemaObj.Name)
	}

	var oldRow types.Row
	if found {
		oldRow, err = rowcodec.DeserializeRow(existing)
		if err != nil {
			return nil, false, errs.Wrap(errs.Internal, err, "deserializing replaced row")
		}
	}

	if err := t.coord.Put(t.dataStore, dataKey, rowcodec.SerializeRow(req.Values)); err != nil {
		return nil, false, err
	}
	if err := t.rewriteIndexes(ctx, oldRow, req.Values, pk); err != nil {
		return nil, false, err
	}

	if !found {
		t.addStatsDelta(1)
	}
	t.coord.QueueEvent(txn.Event{Kind: "insert", Payload: req.Values})
	return req.Values, true, nil
}

func (t *Table) applyRowUpdate(ctx context.Context, req vtab.UpdateRequest) (types.Row, bool, error) {
	if req.OldKeyValues == nil {
		return nil, false, errs.New(errs.Misuse, "update requires oldKeyValues")
	}
	oldPK := req.OldKeyValues
	oldDataKey, err := keycodec.BuildDataKey(oldPK, t.pkOptions())
	if err != nil {
		return nil, false, errs.Wrap(errs.Internal, err, "encoding old primary key")
	}
	existing, found, err := t.coord.Get(ctx, t.dataStore, oldDataKey)
	if err != nil {
		return nil, false, errs.Wrap(errs.IO, err, "reading row to update")
	}
	if !found {
		return nil, false, errs.New(errs.NotFound, "row not found for update")
	}
	oldRow, err := rowcodec.DeserializeRow(existing)
	if err != nil {
		return nil, false, errs.Wrap(errs.Internal, err, "deserializing old row")
	}

	newPK := t.pkValuesOf(req.Values)
	newDataKey, err := keycodec.BuildDataKey(newPK, t.pkOptions())
	if err != nil {
		return nil, false, errs.Wrap(errs.Internal, err, "encoding new primary key")
	}

	if string(newDataKey) != string(oldDataKey) {
		if err := t.coord.Delete(t.dataStore, oldDataKey); err != nil {
			return nil, false, err
		}
	}
	if err := t.coord.Put(t.dataStore, newDataKey, rowcodec.SerializeRow(req.Values)); err != nil {
		return nil, false, err
	}
	if err := t.rewriteIndexes(ctx, oldRow, req.Values, newPK); err != nil {
		return nil, false, err
	}

	t.coord.QueueEvent(txn.Event{Kind: "update", Payload: [2]types.Row{oldRow, req.Values}})
	return req.Values, true, nil
}

func (t *Table) applyDelete(ctx context.Context, req vtab.UpdateRequest) (types.Row, bool, error) {
	if req.OldKeyValues == nil {
		return nil, false, errs.New(errs.Misuse, "delete requires oldKeyValues")
	}
	pk := req.OldKeyValues
	dataKey, err := keycodec.BuildDataKey(pk, t.pkOptions())
	if err != nil {
		return nil, false, errs.Wrap(errs.Internal, err, "encoding primary key")
	}
	existing, found, err := t.coord.Get(ctx, t.dataStore, dataKey)
	if err != nil {
		return nil, false, errs.Wrap(errs.IO, err, "reading row to delete")
	}
	if !found {
		return nil, false, nil
	}
	oldRow, err := rowcodec.DeserializeRow(existing)
	if err != nil {
		return nil, false, errs.Wrap(errs.Internal, err, "deserializing deleted row")
	}

	if err := t.coord.Delete(t.dataStore, dataKey); err != nil {
		return nil, false, err
	}
	for _, ix := range t.schemaObj.Indexes {
		if err := t.deleteIndexEntry(ix, oldRow, pk); err != nil {
			return nil, false, err
		}
	}

	t.addStatsDelta(-1)
	t.coord.QueueEvent(txn.Event{Kind: "delete", Payload: oldRow})
	return oldRow, true, nil
}

// rewriteIndexes deletes oldRow's entry (if any) and inserts newRow's entry
// in every secondary index, all through the Coordinator (spec §9 fix).
func (t *Table) rewriteIndexes(ctx context.Context, oldRow, newRow types.Row, pk types.Row) error {
	for _, ix := range t.schemaObj.Indexes {
		if oldRow != nil {
			if err := t.deleteIndexEntry(ix, oldRow, pk); err != nil {
				return err
			}
		}
		if err := t.insertIndexEntry(ix, newRow, pk); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) insertIndexEntry(ix schema.IndexSchema, row types.Row, pk types.Row) error {
	store := t.idxStores[ix.Name]
	vals := indexValuesOf(row, ix.Columns)
	key, err := keycodec.BuildIndexKey(vals, pk, t.indexOptions(ix))
	if err != nil {
		return errs.Wrap(errs.Internal, err, "encoding index key for %s", ix.Name)
	}
	return t.coord.Put(store, key, []byte{})
}

func (t *Table) deleteIndexEntry(ix schema.IndexSchema, row types.Row, pk types.Row) error {
	store := t.idxStores[ix.Name]
	vals := indexValuesOf(row, ix.Columns)
	key, err := keycodec.BuildIndexKey(vals, pk, t.indexOptions(ix))
	if err != nil {
		return errs.Wrap(errs.Internal, err, "encoding index key for %s", ix.Name)
	}
	return t.coord.Delete(store, key)
}

