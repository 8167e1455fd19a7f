// Package eval evaluates the scalar sub-algebra (internal/plan's Scalar
// nodes) against a concrete row: the shared expression evaluator used by
// the emitter's Filter/Project/Aggregate/Sort instructions (spec §4.10).
package eval

import (
	"context"
	"math/big"

	"quereus/internal/errs"
	"quereus/internal/plan"
	"quereus/internal/schema"
	"quereus/internal/types"
)

// SubqueryRunner executes a nested plan.Node to completion and returns its
// rows; used for scalar/EXISTS/IN subqueries. Quereus does not support
// correlated subqueries (spec's non-goal on full SQL compliance): the
// runner is called each time the subquery expression is evaluated and is
// given only the subquery's plan, never the outer row.
type SubqueryRunner func(ctx context.Context, node plan.Node) ([]types.Row, error)

// Evaluator evaluates plan.Scalar trees against rows drawn from a fixed
// input schema.
type Evaluator struct {
	Catalog  *schema.Catalog
	Params   map[string]types.Value
	RunSub   SubqueryRunner
}

// New returns an Evaluator bound to catalog for function/collation
// resolution and params for bound statement parameters.
func New(catalog *schema.Catalog, params map[string]types.Value, runSub SubqueryRunner) *Evaluator {
	return &Evaluator{Catalog: catalog, Params: params, RunSub: runSub}
}

// Eval computes expr's value for one row.
func (e *Evaluator) Eval(ctx context.Context, expr plan.Scalar, row types.Row) (types.Value, error) {
	switch v := expr.(type) {
	case *plan.Column:
		if v.Index < 0 || v.Index >= len(row) {
			return types.Null(), errs.New(errs.Internal, "column index %d out of range for row of length %d", v.Index, len(row))
		}
		return row[v.Index], nil

	case *plan.Literal:
		return v.Value, nil

	case *plan.Param:
		val, ok := e.Params[v.Name]
		if !ok {
			return types.Null(), nil
		}
		return val, nil

	case *plan.BinaryOp:
		return e.evalBinary(ctx, v, row)

	case *plan.UnaryOp:
		return e.evalUnary(ctx, v, row)

	case *plan.FunctionCall:
		return e.evalFunc(ctx, v, row)

	case *plan.CaseWhen:
		return e.evalCase(ctx, v, row)

	case *plan.In:
		return e.evalIn(ctx, v, row)

	case *plan.Subquery:
		return e.evalSubquery(ctx, v)

	default:
		return types.Null(), errs.New(errs.Unsupported, "unsupported scalar node %T", expr)
	}
}

func (e *Evaluator) evalBinary(ctx context.Context, v *plan.BinaryOp, row types.Row) (types.Value, error) {
	switch v.Op {
	case "AND":
		left, err := e.Eval(ctx, v.Left, row)
		if err != nil {
			return types.Null(), err
		}
		if !left.IsNull() && left.Int64() == 0 {
			return types.Bool(false), nil
		}
		right, err := e.Eval(ctx, v.Right, row)
		if err != nil {
			return types.Null(), err
		}
		if !right.IsNull() && right.Int64() == 0 {
			return types.Bool(false), nil
		}
		if left.IsNull() || right.IsNull() {
			return types.Null(), nil
		}
		return types.Bool(true), nil

	case "OR":
		left, err := e.Eval(ctx, v.Left, row)
		if err != nil {
			return types.Null(), err
		}
		if !left.IsNull() && left.Int64() != 0 {
			return types.Bool(true), nil
		}
		right, err := e.Eval(ctx, v.Right, row)
		if err != nil {
			return types.Null(), err
		}
		if !right.IsNull() && right.Int64() != 0 {
			return types.Bool(true), nil
		}
		if left.IsNull() || right.IsNull() {
			return types.Null(), nil
		}
		return types.Bool(false), nil

	case types.OpEq, types.OpNe, types.OpLt, types.OpLe, types.OpGt, types.OpGe:
		left, err := e.Eval(ctx, v.Left, row)
		if err != nil {
			return types.Null(), err
		}
		right, err := e.Eval(ctx, v.Right, row)
		if err != nil {
			return types.Null(), err
		}
		if left.IsNull() || right.IsNull() {
			return types.Null(), nil
		}
		return types.Bool(types.EvalOp(v.Op, left, right, types.CollationBinary)), nil

	case types.OpLike:
		left, err := e.Eval(ctx, v.Left, row)
		if err != nil {
			return types.Null(), err
		}
		right, err := e.Eval(ctx, v.Right, row)
		if err != nil {
			return types.Null(), err
		}
		if left.IsNull() || right.IsNull() {
			return types.Null(), nil
		}
		return types.Bool(likeMatch(left.Str(), right.Str())), nil

	case "+", "-", "*", "/", "%":
		left, err := e.Eval(ctx, v.Left, row)
		if err != nil {
			return types.Null(), err
		}
		right, err := e.Eval(ctx, v.Right, row)
		if err != nil {
			return types.Null(), err
		}
		if left.IsNull() || right.IsNull() {
			return types.Null(), nil
		}
		return arith(string(v.Op), left, right)

	default:
		return types.Null(), errs.New(errs.Unsupported, "unsupported binary operator %q", v.Op)
	}
}

func (e *Evaluator) evalUnary(ctx context.Context, v *plan.UnaryOp, row types.Row) (types.Value, error) {
	inner, err := e.Eval(ctx, v.Expr, row)
	if err != nil {
		return types.Null(), err
	}
	switch v.Op {
	case "NOT":
		if inner.IsNull() {
			return types.Null(), nil
		}
		return types.Bool(inner.Int64() == 0), nil
	case "-":
		if inner.IsNull() {
			return types.Null(), nil
		}
		switch inner.Kind() {
		case types.KindInteger:
			return types.Integer(-inner.Int64()), nil
		case types.KindReal:
			return types.Real(-inner.Float64()), nil
		case types.KindBigInt:
			return types.BigInt(new(big.Int).Neg(inner.Big())), nil
		default:
			return types.Null(), errs.New(errs.Type, "cannot negate non-numeric value")
		}
	default:
		return types.Null(), errs.New(errs.Unsupported, "unsupported unary operator %q", v.Op)
	}
}

func (e *Evaluator) evalFunc(ctx context.Context, v *plan.FunctionCall, row types.Row) (types.Value, error) {
	if v.Name == "is_null" {
		arg, err := e.Eval(ctx, v.Args[0], row)
		if err != nil {
			return types.Null(), err
		}
		return types.Bool(arg.IsNull()), nil
	}
	fn, ok := e.Catalog.Scalar(v.Name, len(v.Args))
	if !ok {
		return types.Null(), errs.New(errs.Resolve, "no such function: %s/%d", v.Name, len(v.Args))
	}
	args := make([]types.Value, len(v.Args))
	for i, a := range v.Args {
		val, err := e.Eval(ctx, a, row)
		if err != nil {
			return types.Null(), err
		}
		args[i] = val
	}
	return fn(args)
}

func (e *Evaluator) evalCase(ctx context.Context, v *plan.CaseWhen, row types.Row) (types.Value, error) {
	for _, w := range v.Whens {
		cond, err := e.Eval(ctx, w.Cond, row)
		if err != nil {
			return types.Null(), err
		}
		if !cond.IsNull() && cond.Int64() != 0 {
			return e.Eval(ctx, w.Result, row)
		}
	}
	if v.Else != nil {
		return e.Eval(ctx, v.Else, row)
	}
	return types.Null(), nil
}

func (e *Evaluator) evalIn(ctx context.Context, v *plan.In, row types.Row) (types.Value, error) {
	left, err := e.Eval(ctx, v.Expr, row)
	if err != nil {
		return types.Null(), err
	}
	if left.IsNull() {
		return types.Null(), nil
	}

	match := false
	sawNull := false
	if v.Subquery != nil {
		if e.RunSub == nil {
			return types.Null(), errs.New(errs.Unsupported, "subqueries are not supported in this evaluation context")
		}
		rows, err := e.RunSub(ctx, v.Subquery)
		if err != nil {
			return types.Null(), err
		}
		for _, r := range rows {
			if len(r) == 0 {
				continue
			}
			if r[0].IsNull() {
				sawNull = true
				continue
			}
			if types.EvalOp(types.OpEq, left, r[0], types.CollationBinary) {
				match = true
				break
			}
		}
	} else {
		for _, item := range v.List {
			val, err := e.Eval(ctx, item, row)
			if err != nil {
				return types.Null(), err
			}
			if val.IsNull() {
				sawNull = true
				continue
			}
			if types.EvalOp(types.OpEq, left, val, types.CollationBinary) {
				match = true
				break
			}
		}
	}

	result := match
	if v.Negate {
		if !match && sawNull {
			return types.Null(), nil
		}
		return types.Bool(!match), nil
	}
	if !match && sawNull {
		return types.Null(), nil
	}
	return types.Bool(result), nil
}

func (e *Evaluator) evalSubquery(ctx context.Context, v *plan.Subquery) (types.Value, error) {
	if e.RunSub == nil {
		return types.Null(), errs.New(errs.Unsupported, "subqueries are not supported in this evaluation context")
	}
	rows, err := e.RunSub(ctx, v.Query)
	if err != nil {
		return types.Null(), err
	}
	if v.Exists {
		return types.Bool(len(rows) > 0), nil
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return types.Null(), nil
	}
	return rows[0][0], nil
}

func arith(op string, a, b types.Value) (types.Value, error) {
	if a.Kind() == types.KindReal || b.Kind() == types.KindReal {
		af, bf := asFloat(a), asFloat(b)
		switch op {
		case "+":
			return types.Real(af + bf), nil
		case "-":
			return types.Real(af - bf), nil
		case "*":
			return types.Real(af * bf), nil
		case "/":
			if bf == 0 {
				return types.Null(), errs.New(errs.Constraint, "division by zero")
			}
			return types.Real(af / bf), nil
		}
	}
	ai, bi := a.Int64(), b.Int64()
	switch op {
	case "+":
		return types.Integer(ai + bi), nil
	case "-":
		return types.Integer(ai - bi), nil
	case "*":
		return types.Integer(ai * bi), nil
	case "/":
		if bi == 0 {
			return types.Null(), errs.New(errs.Constraint, "division by zero")
		}
		return types.Integer(ai / bi), nil
	case "%":
		if bi == 0 {
			return types.Null(), errs.New(errs.Constraint, "division by zero")
		}
		return types.Integer(ai % bi), nil
	}
	return types.Null(), errs.New(errs.Unsupported, "unsupported arithmetic operator %q", op)
}

func asFloat(v types.Value) float64 {
	switch v.Kind() {
	case types.KindReal:
		return v.Float64()
	case types.KindInteger:
		return float64(v.Int64())
	default:
		return 0
	}
}

// likeMatch implements SQL LIKE with '%' and '_' wildcards (no ESCAPE
// clause support, matching the scalar function set's intentionally small
// surface per spec's non-goal on full SQL compliance).
func likeMatch(s, pattern string) bool {
	return likeMatchRunes([]rune(s), []rune(pattern))
}

func likeMatchRunes(s, p []rune) bool {
	if len(p) == 0 {
		return len(s) == 0
	}
	switch p[0] {
	case '%':
		for i := 0; i <= len(s); i++ {
			if likeMatchRunes(s[i:], p[1:]) {
				return true
			}
		}
		return false
	case '_':
		if len(s) == 0 {
			return false
		}
		return likeMatchRunes(s[1:], p[1:])
	default:
		if len(s) == 0 || s[0] != p[0] {
			return false
		}
		return likeMatchRunes(s[1:], p[1:])
	}
}
