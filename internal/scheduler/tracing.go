package scheduler

import (
	"context"

	"quereus/internal/vtab"
)

// tracingIterator wraps a RowIterator exactly once (idempotent per spec
// §4.11: "wrapped once, marked by a sentinel") so each produced row fires
// Tracer.TraceRow.
type tracingIterator struct {
	inner            vtab.RowIterator
	tracer           Tracer
	instructionIndex int
	rowIndex         int
}

func (it *tracingIterator) Next(ctx context.Context) (vtab.Row, bool, error) {
	row, ok, err := it.inner.Next(ctx)
	if ok {
		it.tracer.TraceRow(it.instructionIndex, it.rowIndex, row)
		it.rowIndex++
	}
	return row, ok, err
}

func (it *tracingIterator) Close() error { return it.inner.Close() }
