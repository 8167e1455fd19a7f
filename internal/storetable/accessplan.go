package storetable

import (
	"context"
	"math"

	"quereus/internal/schema"
	"quereus/internal/types"
	"quereus/internal/vtab"
)

// candidateIndex is one of the table's PK or secondary indexes, viewed
// uniformly for access-plan selection (spec §4.7: "enumerate available
// indexes (including a synthetic _primary_)").
type candidateIndex struct {
	name    string
	columns []schema.KeyColumn
}

func (t *Table) candidateIndexes() []candidateIndex {
	out := []candidateIndex{{name: "_primary_", columns: t.schemaObj.PrimaryKey}}
	for _, ix := range t.schemaObj.Indexes {
		out = append(out, candidateIndex{name: ix.Name, columns: ix.Columns})
	}
	return out
}

// BestAccessPlan implements the module-side selection algorithm of spec
// §4.7 against this table's primary key and secondary indexes.
func (t *Table) BestAccessPlan(ctx context.Context, req vtab.BestAccessPlanRequest) (vtab.BestAccessPlanResult, error) {
	tableSize := req.EstimatedRows
	if tableSize == 0 {
		n, err := t.EstimatedRowCount(ctx)
		if err != nil {
			return vtab.BestAccessPlanResult{}, err
		}
		tableSize = n
	}
	if tableSize == 0 {
		tableSize = 1
	}

	eqByCol := map[int]bool{}
	rangeByCol := map[int]bool{}
	for _, f := range req.Filters {
		if !f.Usable {
			continue
		}
		switch f.Op {
		case "=":
			eqByCol[f.ColumnIndex] = true
		case "<", "<=", ">", ">=":
			rangeByCol[f.ColumnIndex] = true
		}
	}

	var best *vtab.BestAccessPlanResult
	var bestIdx candidateIndex
	for _, ix := range t.candidateIndexes() {
		if len(ix.columns) == 0 {
			continue
		}
		result := scoreIndex(ix, tableSize, req.Filters, eqByCol, rangeByCol)
		if best == nil || result.Cost < best.Cost {
			best = &result
			bestIdx = ix
		}
	}
	if best == nil {
		best = fullScanPlan(tableSize, req.Filters)
	}

	applyOrderingDiscount(best, bestIdx.columns, req.RequiredOrdering)

	anyHandled := false
	for _, h := range best.HandledFilters {
		if h {
			anyHandled = true
			break
		}
	}
	if !anyHandled && len(req.Filters) > 0 && best.IndexName == "" {
		best.Cost += 0.01
	}

	if err := best.Validate(len(req.Filters)); err != nil {
		return vtab.BestAccessPlanResult{}, err
	}
	return *best, nil
}

func scoreIndex(ix candidateIndex, tableSize uint64, filters []vtab.FilterConstraint, eqByCol, rangeByCol map[int]bool) vtab.BestAccessPlanResult {
	handled := make([]bool, len(filters))
	allEq := true
	for _, kc := range ix.columns {
		if !eqByCol[kc.ColumnIndex] {
			allEq = false
			break
		}
	}
	if allEq {
		for i, f := range filters {
			if f.Op == "=" && isLeading(ix.columns, f.ColumnIndex) {
				handled[i] = true
			}
		}
		return vtab.BestAccessPlanResult{
			Cost:           math.Log2(float64(tableSize)) + 1,
			Rows:           1,
			HandledFilters: handled,
			IsSet:          true,
			IndexName:      ix.name,
			SeekColumns:    columnIndexes(ix.columns),
			Explains:       "seek " + ix.name,
		}
	}

	if len(ix.columns) > 0 && rangeByCol[ix.columns[0].ColumnIndex] {
		for i, f := range filters {
			if f.ColumnIndex == ix.columns[0].ColumnIndex && isRangeOp(f.Op) {
				handled[i] = true
			}
		}
		rows := tableSize / 4
		if rows == 0 {
			rows = 1
		}
		return vtab.BestAccessPlanResult{
			Cost:           math.Log2(float64(tableSize))*2 + float64(rows),
			Rows:           rows,
			HandledFilters: handled,
			IndexName:      ix.name,
			SeekColumns:    []int{ix.columns[0].ColumnIndex},
			Explains:       "range scan " + ix.name,
		}
	}

	return *fullScanPlan(tableSize, filters)
}

func fullScanPlan(tableSize uint64, filters []vtab.FilterConstraint) *vtab.BestAccessPlanResult {
	return &vtab.BestAccessPlanResult{
		Cost:           10 * float64(tableSize),
		Rows:           tableSize,
		HandledFilters: make([]bool, len(filters)),
		Explains:       "full scan",
	}
}

func isLeading(columns []schema.KeyColumn, colIdx int) bool {
	for _, kc := range columns {
		if kc.ColumnIndex == colIdx {
			return true
		}
	}
	return false
}

func isRangeOp(op types.Op) bool {
	switch op {
	case types.OpLt, types.OpLe, types.OpGt, types.OpGe:
		return true
	default:
		return false
	}
}

func columnIndexes(cols []schema.KeyColumn) []int {
	out := make([]int, len(cols))
	for i, c := range cols {
		out[i] = c.ColumnIndex
	}
	return out
}

// applyOrderingDiscount implements spec §4.7's ordering bonus: if
// requiredOrdering is non-empty and is a prefix of the chosen index's
// columns with matching directions, discount cost by 10% and report the
// ordering as provided.
func applyOrderingDiscount(best *vtab.BestAccessPlanResult, indexCols []schema.KeyColumn, required []vtab.OrderingSpec) {
	if len(required) == 0 || len(required) > len(indexCols) {
		return
	}
	for i, o := range required {
		if indexCols[i].ColumnIndex != o.ColumnIndex || indexCols[i].Desc != o.Desc {
			return
		}
	}
	best.Cost *= 0.9
	best.ProvidesOrdering = required
}
