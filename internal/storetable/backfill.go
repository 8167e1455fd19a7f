package storetable

import (
	"context"

	"quereus/internal/errs"
	"quereus/internal/kv"
	"quereus/internal/rowcodec"
	"quereus/internal/schema"
)

// BackfillIndex scans the full data store and writes an entry for idx for
// every existing row (spec §4.6 CreateIndex: "build index entries by
// scanning the data store"). The scan-and-write runs as a single
// coordinator transaction so a failure partway through leaves no partial
// index.
func (t *Table) BackfillIndex(ctx context.Context, idx schema.IndexSchema) error {
	if err := t.ensureStore(); err != nil {
		return err
	}
	store, err := t.provider.IndexStore(t.schemaObj.SchemaName, t.schemaObj.Name, idx.Name)
	if err != nil {
		return errs.Wrap(errs.IO, err, "opening new index store %s", idx.Name)
	}
	t.idxStores[idx.Name] = store

	it, err := t.dataStore.Iterate(ctx, kv.IterOptions{})
	if err != nil {
		return errs.Wrap(errs.IO, err, "scanning data store for backfill")
	}
	defer it.Close()

	ownTxn := !t.coord.InTransaction()
	if ownTxn {
		t.coord.Begin()
	}
	for {
		ok, err := it.Next(ctx)
		if err != nil {
			if ownTxn {
				_ = t.coord.Rollback()
			}
			return errs.Wrap(errs.IO, err, "backfill scan")
		}
		if !ok {
			break
		}
		entry := it.Entry()
		row, err := rowcodec.DeserializeRow(entry.Value)
		if err != nil {
			if ownTxn {
				_ = t.coord.Rollback()
			}
			return err
		}
		pk := t.pkValuesOf(row)
		if err := t.insertIndexEntry(idx, row, pk); err != nil {
			if ownTxn {
				_ = t.coord.Rollback()
			}
			return err
		}
	}
	if ownTxn {
		return t.coord.Commit(ctx)
	}
	return nil
}
