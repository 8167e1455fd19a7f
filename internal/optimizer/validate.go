package optimizer

import (
	"quereus/internal/errs"
	"quereus/internal/plan"
)

// validate walks an optimized tree and rejects structural violations the
// rewrite passes above must never produce (spec §4.9 debug.validatePlan:
// "a structural validator that rejects trees violating schema or scope
// constraints"). It is a cheap, purely structural check -- it never
// touches storage or re-negotiates access plans -- run only when
// Optimizer.ValidatePlan is set, since it exists to catch optimizer bugs
// during development rather than to run on every statement in production.
func validate(node plan.Node) error {
	switch n := node.(type) {
	case *plan.TableScan:
		if n.AccessPlan == nil {
			return errs.New(errs.Internal, "table scan %s left unresolved after optimization", n.Alias)
		}
		return nil

	case *plan.Filter:
		if n.Predicate == nil {
			return errs.New(errs.Internal, "filter with nil predicate survived dead-code elimination")
		}
		if err := checkScalarScope(n.Predicate, n.Input.Schema()); err != nil {
			return err
		}
		return validate(n.Input)

	case *plan.Project:
		in := n.Input.Schema()
		for _, e := range n.Exprs {
			if err := checkScalarScope(e.Expr, in); err != nil {
				return err
			}
		}
		return validate(n.Input)

	case *plan.Aggregate:
		in := n.Input.Schema()
		for _, g := range n.GroupExprs {
			if err := checkScalarScope(g, in); err != nil {
				return err
			}
		}
		for _, a := range n.Aggs {
			if a.Arg != nil {
				if err := checkScalarScope(a.Arg, in); err != nil {
					return err
				}
			}
		}
		return validate(n.Input)

	case *plan.Sort:
		if len(n.OrderBy) == 0 {
			return errs.New(errs.Internal, "sort with no keys survived dead-code elimination")
		}
		in := n.Input.Schema()
		for _, k := range n.OrderBy {
			if err := checkScalarScope(k.Expr, in); err != nil {
				return err
			}
		}
		return validate(n.Input)

	case *plan.Limit:
		if !n.HasCount && !n.HasOffset {
			return errs.New(errs.Internal, "limit with no count or offset survived dead-code elimination")
		}
		return validate(n.Input)

	case *plan.NestedLoopJoin:
		if n.DriveInner && n.Type != plan.JoinInner && n.Type != plan.JoinCross {
			return errs.New(errs.Internal, "join drive direction set on a %v join, which must preserve its driving side", n.Type)
		}
		if n.Condition != nil {
			if err := checkScalarScope(n.Condition, n.Schema()); err != nil {
				return err
			}
		}
		if err := validate(n.Outer); err != nil {
			return err
		}
		return validate(n.Inner)

	case *plan.DML:
		if n.Source == nil {
			return nil
		}
		return validate(n.Source)

	case *plan.Block:
		for _, stmt := range n.Stmts {
			if err := validate(stmt); err != nil {
				return err
			}
		}
		return nil

	default:
		return nil
	}
}

// checkScalarScope verifies every column reference in s falls within in's
// bounds (spec §4.9: reject trees "violating schema or scope
// constraints"). A Subquery/In.Subquery operand is opaque: it carries its
// own independently-valid schema and is never checked against in.
func checkScalarScope(s plan.Scalar, in plan.OutputSchema) error {
	refs := map[int]bool{}
	collectColumnIndexes(s, refs)
	for idx := range refs {
		if idx < 0 || idx >= len(in.Columns) {
			return errs.New(errs.Internal, "column reference %d out of scope (schema has %d columns)", idx, len(in.Columns))
		}
	}
	return nil
}
