package scheduler

import "quereus/internal/types"

// countRows tallies an instruction argument/result for metrics purposes
// (spec §4.11: "scalar arguments count as one, arrays count by length,
// async sequences count as one (size unknown)").
func countRows(v any) int {
	switch val := v.(type) {
	case nil:
		return 0
	case []types.Row:
		return len(val)
	case types.Row:
		return 1
	default:
		// A RowIterator (the lazy-sequence case) or any other scalar: the
		// spec prescribes counting it as one since its size is not known
		// without consuming it.
		return 1
	}
}
