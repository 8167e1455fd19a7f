package emit

import (
	"context"

	"quereus/internal/types"
	"quereus/internal/vtab"
)

// sliceIterator replays a fixed, already-materialized slice of rows.
type sliceIterator struct {
	rows []types.Row
	pos  int
}

func newSliceIterator(rows []types.Row) *sliceIterator { return &sliceIterator{rows: rows} }

func (it *sliceIterator) Next(context.Context) (vtab.Row, bool, error) {
	if it.pos >= len(it.rows) {
		return nil, false, nil
	}
	row := it.rows[it.pos]
	it.pos++
	return row, true, nil
}
func (it *sliceIterator) Close() error { return nil }

// predicateFunc evaluates a residual predicate against one row.
type predicateFunc func(ctx context.Context, row types.Row) (bool, error)

// filterIterator yields only the rows of Input for which Pred is true.
type filterIterator struct {
	input vtab.RowIterator
	pred  predicateFunc
}

func (it *filterIterator) Next(ctx context.Context) (vtab.Row, bool, error) {
	for {
		row, ok, err := it.input.Next(ctx)
		if err != nil || !ok {
			return nil, ok, err
		}
		keep, err := it.pred(ctx, row)
		if err != nil {
			return nil, false, err
		}
		if keep {
			return row, true, nil
		}
	}
}
func (it *filterIterator) Close() error { return it.input.Close() }

// projectFunc computes one output row from an input row.
type projectFunc func(ctx context.Context, row types.Row) (types.Row, error)

// projectIterator transforms each row of Input via Fn.
type projectIterator struct {
	input vtab.RowIterator
	fn    projectFunc
}

func (it *projectIterator) Next(ctx context.Context) (vtab.Row, bool, error) {
	row, ok, err := it.input.Next(ctx)
	if err != nil || !ok {
		return nil, ok, err
	}
	out, err := it.fn(ctx, row)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}
func (it *projectIterator) Close() error { return it.input.Close() }

// limitIterator skips Offset rows then yields at most Count more.
type limitIterator struct {
	input        vtab.RowIterator
	remaining    int64
	toSkip       int64
	hasCount     bool
	skippedAll   bool
}

func (it *limitIterator) Next(ctx context.Context) (vtab.Row, bool, error) {
	if !it.skippedAll {
		for it.toSkip > 0 {
			_, ok, err := it.input.Next(ctx)
			if err != nil || !ok {
				return nil, ok, err
			}
			it.toSkip--
		}
		it.skippedAll = true
	}
	if it.hasCount && it.remaining <= 0 {
		return nil, false, nil
	}
	row, ok, err := it.input.Next(ctx)
	if err != nil || !ok {
		return nil, ok, err
	}
	if it.hasCount {
		it.remaining--
	}
	return row, true, nil
}
func (it *limitIterator) Close() error { return it.input.Close() }

// drain fully materializes a RowIterator, closing it on every exit path
// (spec §9 lazy-iterator discipline: close exactly once regardless of
// outcome).
func drain(ctx context.Context, it vtab.RowIterator) ([]types.Row, error) {
	defer it.Close()
	var out []types.Row
	for {
		row, ok, err := it.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, row)
	}
}
