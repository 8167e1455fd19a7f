package types

import "math/big"

// Op is a scalar comparison operator recognized by the residual predicate
// evaluator (spec §4.5) and the access-plan filter contract (spec §4.7).
type Op string

const (
	OpEq   Op = "="
	OpNe   Op = "!="
	OpLt   Op = "<"
	OpLe   Op = "<="
	OpGt   Op = ">"
	OpGe   Op = ">="
	OpIn   Op = "IN"
	OpLike Op = "LIKE"
)

// Compare orders two non-null values of compatible kinds under the given
// collation (used only for text); returns -1, 0, 1. Numeric kinds are
// coerced to a common representation before comparing.
func Compare(a, b Value, collation Collation) int {
	if a.kind == KindText && b.kind == KindText {
		return collation.Compare(a.text, b.text)
	}
	if a.kind == KindBlob && b.kind == KindBlob {
		return compareBytes(a.blob, b.blob)
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	// Incomparable kinds: fall back to kind ordering so the comparator is
	// still total (used only to break ties; residual predicates on
	// incompatible kinds should have already been filtered upstream).
	switch {
	case a.kind < b.kind:
		return -1
	case a.kind > b.kind:
		return 1
	default:
		return 0
	}
}

func asFloat(v Value) (float64, bool) {
	switch v.kind {
	case KindInteger:
		return float64(v.i64), true
	case KindReal:
		return v.f64, true
	case KindBigInt:
		f := new(big.Float).SetInt(v.big)
		out, _ := f.Float64()
		return out, true
	default:
		return 0, false
	}
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// EvalOp evaluates op(a, b) with SQL NULL semantics: NULL is not equal to
// anything (including NULL), and any ordered comparison with NULL is false
// (spec §4.5).
func EvalOp(op Op, a, b Value, collation Collation) bool {
	if a.IsNull() || b.IsNull() {
		return false
	}
	cmp := Compare(a, b, collation)
	switch op {
	case OpEq:
		return cmp == 0
	case OpNe:
		return cmp != 0
	case OpLt:
		return cmp < 0
	case OpLe:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGe:
		return cmp >= 0
	default:
		return false
	}
}
