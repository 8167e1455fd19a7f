package storetable

import (
	"bytes"
	"context"
	"sort"

	"quereus/internal/errs"
	"quereus/internal/keycodec"
	"quereus/internal/kv"
	"quereus/internal/rowcodec"
	"quereus/internal/txn"
	"quereus/internal/types"
)

// overlayPending folds a program-ordered pending-op log into a
// last-write-wins map of key -> (value, deleted), restricted to bounds, so
// a scan can read its own transaction's writes (spec invariant 3/5).
func overlayPending(ops []txn.Op, bounds keycodec.Bounds) map[string]txn.Op {
	out := map[string]txn.Op{}
	for _, op := range ops {
		if !keyWithinBounds(op.Key, bounds) {
			continue
		}
		out[string(op.Key)] = op
	}
	return out
}

func keyWithinBounds(key []byte, bounds keycodec.Bounds) bool {
	if bounds.Lower != nil && bytes.Compare(key, bounds.Lower) < 0 {
		return false
	}
	if bounds.Upper != nil && bytes.Compare(key, bounds.Upper) >= 0 {
		return false
	}
	return true
}

// drainMerged consumes the persisted iterator, overriding/augmenting it
// with the pending overlay, and returns deserialized rows in key order.
func drainMerged(ctx context.Context, it kv.Iterator, overlay map[string]txn.Op) ([]types.Row, error) {
	defer it.Close()

	seen := map[string]bool{}
	type kept struct {
		key   []byte
		value []byte
	}
	var out []kept

	for {
		ok, err := it.Next(ctx)
		if err != nil {
			return nil, errs.Wrap(errs.IO, err, "iterating store")
		}
		if !ok {
			break
		}
		e := it.Entry()
		seen[string(e.Key)] = true
		if op, overridden := overlay[string(e.Key)]; overridden {
			if op.Delete {
				continue
			}
			out = append(out, kept{key: e.Key, value: op.Value})
			continue
		}
		out = append(out, kept{key: e.Key, value: e.Value})
	}

	for k, op := range overlay {
		if seen[k] || op.Delete {
			continue
		}
		out = append(out, kept{key: op.Key, value: op.Value})
	}

	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].key, out[j].key) < 0 })

	rows := make([]types.Row, 0, len(out))
	for _, k := range out {
		row, err := rowcodec.DeserializeRow(k.value)
		if err != nil {
			return nil, errs.Wrap(errs.Internal, err, "deserializing row")
		}
		rows = append(rows, row)
	}
	return rows, nil
}
