package storetable

import (
	"context"

	"quereus/internal/errs"
	"quereus/internal/keycodec"
	"quereus/internal/kv"
	"quereus/internal/rowcodec"
	"quereus/internal/types"
	"quereus/internal/vtab"
)

// Query analyzes filter and picks an access pattern (spec §4.5): point
// lookup when every PK column has an "=" constraint, range scan when the
// leading PK column has a comparison constraint, full scan otherwise.
// Residual predicates (those the access pattern doesn't already satisfy)
// are re-checked per row via the type-aware comparator.
func (t *Table) Query(ctx context.Context, filter vtab.FilterInfo) (vtab.RowIterator, error) {
	if err := t.ensureStore(); err != nil {
		return nil, err
	}

	plan := t.analyzePKAccess(filter.Constraints)
	switch plan.kind {
	case accessPoint:
		return t.pointLookup(ctx, plan, filter.Constraints)
	case accessRange:
		return t.rangeScan(ctx, plan, filter.Constraints)
	default:
		return t.fullScan(ctx, filter.Constraints)
	}
}

type accessKind int

const (
	accessFull accessKind = iota
	accessPoint
	accessRange
)

type accessPattern struct {
	kind        accessKind
	pkEquals    types.Row // one value per PK column, for accessPoint
	lower       types.Row
	lowerIncl   bool
	upper       types.Row
	upperIncl   bool
}

// analyzePKAccess recognizes a leading-PK-column range pattern and builds
// bounds from it directly (spec §9: the reimplementation must not fall
// back to a full scan once a range constraint on the leading column is
// recognized, unlike the source's scanPKRange bug).
func (t *Table) analyzePKAccess(constraints []vtab.FilterConstraint) accessPattern {
	pkCols := t.schemaObj.PKColumnIndexes()
	if len(pkCols) == 0 {
		return accessPattern{kind: accessFull}
	}

	eq := make(map[int]types.Value)
	var lowerVal, upperVal *types.Value
	var lowerIncl, upperIncl bool
	for _, c := range constraints {
		if !c.Usable {
			continue
		}
		if c.ColumnIndex == pkCols[0] {
			switch c.Op {
			case types.OpGt:
				v := c.Value
				lowerVal, lowerIncl = &v, false
			case types.OpGe:
				v := c.Value
				lowerVal, lowerIncl = &v, true
			case types.OpLt:
				v := c.Value
				upperVal, upperIncl = &v, false
			case types.OpLe:
				v := c.Value
				upperVal, upperIncl = &v, true
			}
		}
		if c.Op == types.OpEq {
			eq[c.ColumnIndex] = c.Value
		}
	}

	allEq := true
	eqVals := make(types.Row, len(pkCols))
	for i, col := range pkCols {
		v, ok := eq[col]
		if !ok {
			allEq = false
			break
		}
		eqVals[i] = v
	}
	if allEq {
		return accessPattern{kind: accessPoint, pkEquals: eqVals}
	}

	if lowerVal != nil || upperVal != nil {
		ap := accessPattern{kind: accessRange, lowerIncl: lowerIncl, upperIncl: upperIncl}
		if lowerVal != nil {
			ap.lower = types.Row{*lowerVal}
		}
		if upperVal != nil {
			ap.upper = types.Row{*upperVal}
		}
		return ap
	}

	return accessPattern{kind: accessFull}
}

func (t *Table) pointLookup(ctx context.Context, plan accessPattern, constraints []vtab.FilterConstraint) (vtab.RowIterator, error) {
	key, err := keycodec.BuildDataKey(plan.pkEquals, t.pkOptions())
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "encoding point-lookup key")
	}
	data, found, err := t.coord.Get(ctx, t.dataStore, key)
	if err != nil {
		return nil, errs.Wrap(errs.IO, err, "point lookup")
	}
	var rows []types.Row
	if found {
		row, err := rowcodec.DeserializeRow(data)
		if err != nil {
			return nil, errs.Wrap(errs.Internal, err, "deserializing row")
		}
		if residualMatch(row, constraints, t.collationFor) {
			rows = append(rows, row)
		}
	}
	return &sliceIterator{rows: rows}, nil
}

func (t *Table) rangeScan(ctx context.Context, plan accessPattern, constraints []vtab.FilterConstraint) (vtab.RowIterator, error) {
	bounds, err := keycodec.BuildTableScanBounds(plan.lower, plan.upper, plan.lowerIncl, plan.upperIncl, t.pkOptions())
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "encoding range-scan bounds")
	}
	return t.scan(ctx, bounds, constraints)
}

func (t *Table) fullScan(ctx context.Context, constraints []vtab.FilterConstraint) (vtab.RowIterator, error) {
	return t.scan(ctx, keycodec.BuildFullScanBounds(), constraints)
}

// scan merges the coordinator's pending writes for dataStore with the
// persisted range (spec invariant 3: read-your-own-writes extends to
// scans, not just point Gets).
func (t *Table) scan(ctx context.Context, bounds keycodec.Bounds, constraints []vtab.FilterConstraint) (vtab.RowIterator, error) {
	it, err := t.dataStore.Iterate(ctx, kv.IterOptions{Gte: bounds.Lower, Lt: bounds.Upper})
	if err != nil {
		return nil, errs.Wrap(errs.IO, err, "scanning data store")
	}

	overlay := overlayPending(t.coord.PendingOpsFor(t.dataStore), bounds)
	rows, err := drainMerged(ctx, it, overlay)
	if err != nil {
		return nil, err
	}

	out := rows[:0]
	for _, row := range rows {
		if residualMatch(row, constraints, t.collationFor) {
			out = append(out, row)
		}
	}
	return &sliceIterator{rows: out}, nil
}

func (t *Table) collationFor(columnIndex int) types.Collation {
	if columnIndex >= 0 && columnIndex < len(t.schemaObj.Columns) {
		return t.schemaObj.Columns[columnIndex].Type.Collation
	}
	return types.CollationBinary
}

// residualMatch evaluates every usable constraint against row under SQL
// NULL semantics (spec §4.5 comparator).
func residualMatch(row types.Row, constraints []vtab.FilterConstraint, collationFor func(int) types.Collation) bool {
	for _, c := range constraints {
		if !c.Usable || c.Op == types.OpIn || c.Op == types.OpLike {
			continue
		}
		if c.ColumnIndex < 0 || c.ColumnIndex >= len(row) {
			continue
		}
		if !types.EvalOp(c.Op, row[c.ColumnIndex], c.Value, collationFor(c.ColumnIndex)) {
			return false
		}
	}
	return true
}

// sliceIterator adapts a materialized []Row to vtab.RowIterator. Scans are
// bounded (a table's own store) so this is acceptably lazy in practice; it
// still honors the at-most-one-consumer/close-on-every-exit contract.
type sliceIterator struct {
	rows []types.Row
	pos  int
}

func (s *sliceIterator) Next(ctx context.Context) (types.Row, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if s.pos >= len(s.rows) {
		return nil, false, nil
	}
	row := s.rows[s.pos]
	s.pos++
	return row, true, nil
}

func (s *sliceIterator) Close() error { return nil }
