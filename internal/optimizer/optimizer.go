// Package optimizer implements the rule-driven plan rewriter (spec §4.9,
// C9): predicate push-down into access-plan negotiation with each scanned
// table (and through intervening Project/Sort/left-driven-join nodes),
// predicate/constant folding, column pruning of collapsed projections, and
// dead-node elimination, finishing with access-plan resolution. It never
// chooses join order beyond the tree the planner already built (spec §1
// Non-goal: "a cost-based join reorderer beyond greedy selection").
package optimizer

import (
	"context"

	"quereus/internal/errs"
	"quereus/internal/plan"
	"quereus/internal/types"
	"quereus/internal/vtab"
)

// TableResolver looks up the live vtab.Table behind a TableScan's schema so
// the optimizer can negotiate an access plan with it (spec §4.7). The
// engine's Database implements this by consulting its connection registry.
type TableResolver interface {
	ResolveTable(ctx context.Context, schemaName, tableName string) (vtab.Table, error)
}

// Optimizer rewrites a plan.Node tree in place, producing a new tree with
// every TableScan's AccessPlan resolved.
type Optimizer struct {
	Tables TableResolver

	// ValidatePlan gates the structural validator run after the rewrite
	// pass (spec §4.9 debug.validatePlan): "after each pass the optimizer
	// invokes a structural validator that rejects trees violating schema
	// or scope constraints". Off by default; engine.Options.ValidatePlan
	// turns it on.
	ValidatePlan bool
}

func New(tables TableResolver) *Optimizer { return &Optimizer{Tables: tables} }

// Optimize applies every rewrite pass and returns the optimized tree. A
// failure to resolve one table's access plan aborts the whole optimization
// (spec §4.9: the scheduler must never run against an unresolved scan).
func (o *Optimizer) Optimize(ctx context.Context, node plan.Node) (plan.Node, error) {
	out, err := o.rewrite(ctx, node)
	if err != nil {
		return nil, err
	}
	if o.ValidatePlan {
		if err := validate(out); err != nil {
			return nil, errs.Wrap(errs.Internal, err, "optimized plan failed structural validation")
		}
	}
	return out, nil
}

func (o *Optimizer) rewrite(ctx context.Context, node plan.Node) (plan.Node, error) {
	switch n := node.(type) {
	case *plan.Filter:
		return o.rewriteFilter(ctx, n)

	case *plan.TableScan:
		return o.resolveScan(ctx, n, nil)

	case *plan.Project:
		input, err := o.rewrite(ctx, n.Input)
		if err != nil {
			return nil, err
		}
		n.Input = input
		return eliminateDead(composeProjects(n)), nil

	case *plan.Aggregate:
		input, err := o.rewrite(ctx, n.Input)
		if err != nil {
			return nil, err
		}
		n.Input = input
		return n, nil

	case *plan.Sort:
		input, err := o.rewrite(ctx, n.Input)
		if err != nil {
			return nil, err
		}
		n.Input = input
		return eliminateDead(n), nil

	case *plan.Limit:
		input, err := o.rewrite(ctx, n.Input)
		if err != nil {
			return nil, err
		}
		n.Input = input
		return eliminateDead(n), nil

	case *plan.NestedLoopJoin:
		outer, err := o.rewrite(ctx, n.Outer)
		if err != nil {
			return nil, err
		}
		inner, err := o.rewrite(ctx, n.Inner)
		if err != nil {
			return nil, err
		}
		n.Outer, n.Inner = outer, inner
		return n, nil

	case *plan.DML:
		if n.Source != nil {
			src, err := o.rewrite(ctx, n.Source)
			if err != nil {
				return nil, err
			}
			n.Source = src
		}
		return n, nil

	case *plan.Block:
		for i, stmt := range n.Stmts {
			r, err := o.rewrite(ctx, stmt)
			if err != nil {
				return nil, err
			}
			n.Stmts[i] = r
		}
		return n, nil

	default:
		// Values, SingleRow, TableValuedFunctionCall, CreateTable carry no
		// children needing access-plan resolution.
		return node, nil
	}
}

// rewriteFilter pushes f's predicate as far toward a scan as it safely can
// go (spec §4.9 predicate push-down: "push-down through projection and
// left side of inner/left joins"), merging consecutive filters and pulling
// sort nodes up above the filter along the way (predicate pull-up: a
// filter commutes freely with a Sort, since removing rows doesn't change
// the relative order of the rows that remain, so moving it below the Sort
// keeps it moving toward the scan instead of getting stuck).
func (o *Optimizer) rewriteFilter(ctx context.Context, f *plan.Filter) (plan.Node, error) {
	switch input := f.Input.(type) {
	case *plan.TableScan:
		return o.pushIntoScan(ctx, f, input)

	case *plan.Filter:
		merged := &plan.Filter{Input: input.Input, Predicate: &plan.BinaryOp{Op: "AND", Left: f.Predicate, Right: input.Predicate}}
		return o.rewriteFilter(ctx, merged)

	case *plan.Sort:
		f.Input = input.Input
		pushed, err := o.rewriteFilter(ctx, f)
		if err != nil {
			return nil, err
		}
		input.Input = pushed
		return input, nil

	case *plan.Project:
		return o.pushThroughProject(ctx, f, input)

	case *plan.NestedLoopJoin:
		if input.Type == plan.JoinInner || input.Type == plan.JoinLeft {
			return o.pushIntoJoinOuter(ctx, f, input)
		}
	}

	input, err := o.rewrite(ctx, f.Input)
	if err != nil {
		return nil, err
	}
	f.Input = input
	f.Predicate = foldConstants(f.Predicate)
	return eliminateDead(f), nil
}

// pushIntoScan decomposes Filter.Predicate's top-level AND terms into
// access-plan FilterConstraints, hands them to the scan's table, and keeps
// only the unhandled terms as a residual Filter above the resolved scan
// (spec §4.9 predicate push-down).
func (o *Optimizer) pushIntoScan(ctx context.Context, f *plan.Filter, scan *plan.TableScan) (plan.Node, error) {
	terms := decomposeConjunction(f.Predicate)
	candidates := make([]*termFilter, 0, len(terms))
	for _, t := range terms {
		if tf := asColumnFilter(t); tf != nil {
			candidates = append(candidates, tf)
		}
	}

	resolved, err := o.resolveScan(ctx, scan, candidates)
	if err != nil {
		return nil, err
	}

	var residual []plan.Scalar
	handled := resolved.AccessPlan.HandledFilters
	ci := 0
	for _, t := range terms {
		tf := asColumnFilter(t)
		if tf == nil {
			residual = append(residual, t)
			continue
		}
		if ci < len(handled) && handled[ci] {
			// handled by the access plan, drop it
		} else {
			residual = append(residual, t)
		}
		ci++
	}

	if len(residual) == 0 {
		return resolved, nil
	}
	return &plan.Filter{Input: resolved, Predicate: foldConstants(conjoin(residual))}, nil
}

// pushThroughProject splits f's predicate into terms that reference only
// pure pass-through columns of proj (plain *plan.Column output exprs) and
// terms that don't. The former are remapped to proj.Input's column indexes
// and pushed below proj; the rest stay as a residual Filter above it (spec
// §4.9: "push-down through projection").
func (o *Optimizer) pushThroughProject(ctx context.Context, f *plan.Filter, proj *plan.Project) (plan.Node, error) {
	terms := decomposeConjunction(f.Predicate)
	var pushable, residual []plan.Scalar
	for _, t := range terms {
		refs := map[int]bool{}
		collectColumnIndexes(t, refs)
		if len(refs) == 0 {
			residual = append(residual, t)
			continue
		}
		passthrough := true
		for idx := range refs {
			if idx < 0 || idx >= len(proj.Exprs) {
				passthrough = false
				break
			}
			if _, ok := proj.Exprs[idx].Expr.(*plan.Column); !ok {
				passthrough = false
				break
			}
		}
		if passthrough {
			pushable = append(pushable, remapThroughProject(t, proj.Exprs))
		} else {
			residual = append(residual, t)
		}
	}

	var err error
	if len(pushable) > 0 {
		pushed := &plan.Filter{Input: proj.Input, Predicate: conjoin(pushable)}
		proj.Input, err = o.rewriteFilter(ctx, pushed)
	} else {
		proj.Input, err = o.rewrite(ctx, proj.Input)
	}
	if err != nil {
		return nil, err
	}

	result := eliminateDead(composeProjects(proj))
	if len(residual) == 0 {
		return result, nil
	}
	return &plan.Filter{Input: result, Predicate: foldConstants(conjoin(residual))}, nil
}

// pushIntoJoinOuter splits f's predicate into terms referencing only
// join.Outer's columns (the leading columns of the join's schema) and
// pushes those into a Filter wrapping join.Outer; the rest stay above the
// join (spec §4.9: "push-down...through...left side of inner/left
// joins"). Only called for JoinInner/JoinLeft, where the outer side is
// never null-padded, so filtering it before the join cannot change which
// outer rows the join preserves.
func (o *Optimizer) pushIntoJoinOuter(ctx context.Context, f *plan.Filter, join *plan.NestedLoopJoin) (plan.Node, error) {
	outerWidth := len(join.Outer.Schema().Columns)
	terms := decomposeConjunction(f.Predicate)
	var pushable, residual []plan.Scalar
	for _, t := range terms {
		refs := map[int]bool{}
		collectColumnIndexes(t, refs)
		onlyOuter := len(refs) > 0
		for idx := range refs {
			if idx >= outerWidth {
				onlyOuter = false
				break
			}
		}
		if onlyOuter {
			pushable = append(pushable, t)
		} else {
			residual = append(residual, t)
		}
	}

	if len(pushable) == 0 {
		rewritten, err := o.rewrite(ctx, join)
		if err != nil {
			return nil, err
		}
		f.Input = rewritten
		f.Predicate = foldConstants(f.Predicate)
		return eliminateDead(f), nil
	}

	pushedFilter := &plan.Filter{Input: join.Outer, Predicate: conjoin(pushable)}
	newOuter, err := o.rewriteFilter(ctx, pushedFilter)
	if err != nil {
		return nil, err
	}
	join.Outer = newOuter
	inner, err := o.rewrite(ctx, join.Inner)
	if err != nil {
		return nil, err
	}
	join.Inner = inner

	if len(residual) == 0 {
		return join, nil
	}
	return &plan.Filter{Input: join, Predicate: foldConstants(conjoin(residual))}, nil
}

func (o *Optimizer) resolveScan(ctx context.Context, scan *plan.TableScan, candidates []*termFilter) (*plan.TableScan, error) {
	tbl, err := o.Tables.ResolveTable(ctx, scan.TableSchema.SchemaName, scan.TableSchema.Name)
	if err != nil {
		return nil, err
	}

	req := vtab.BestAccessPlanRequest{EstimatedRows: scan.TableSchema.EstimatedRows}
	for _, c := range candidates {
		req.Filters = append(req.Filters, vtab.FilterConstraint{
			ColumnIndex: c.column,
			Op:          c.op,
			Usable:      true,
			Value:       c.value,
		})
	}

	result, err := tbl.BestAccessPlan(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := result.Validate(len(req.Filters)); err != nil {
		return nil, errs.Wrap(errs.Internal, err, "table %s returned an invalid access plan", scan.TableSchema.Name)
	}

	scan.AccessPlan = &plan.ResolvedAccessPlan{
		Cost:           result.Cost,
		Rows:           result.Rows,
		HandledFilters: result.HandledFilters,
		IsSet:          result.IsSet,
		IndexName:      result.IndexName,
		SeekColumns:    result.SeekColumns,
		Explains:       result.Explains,
	}
	for _, os := range result.ProvidesOrdering {
		scan.AccessPlan.ProvidesOrdering = append(scan.AccessPlan.ProvidesOrdering, plan.OrderingSpec{ColumnIndex: os.ColumnIndex, Desc: os.Desc})
	}
	for _, c := range candidates {
		scan.Filters = append(scan.Filters, plan.ScalarFilter{ColumnIndex: c.column, Op: c.op, Value: &plan.Literal{Value: c.value}})
	}
	return scan, nil
}

// termFilter is one top-level AND term recognized as column-op-literal.
type termFilter struct {
	column int
	op     types.Op
	value  types.Value
}

func asColumnFilter(s plan.Scalar) *termFilter {
	bo, ok := s.(*plan.BinaryOp)
	if !ok {
		return nil
	}
	switch bo.Op {
	case types.OpEq, types.OpNe, types.OpLt, types.OpLe, types.OpGt, types.OpGe:
	default:
		return nil
	}
	if col, ok := bo.Left.(*plan.Column); ok {
		if lit, ok := bo.Right.(*plan.Literal); ok {
			return &termFilter{column: col.Index, op: bo.Op, value: lit.Value}
		}
	}
	if col, ok := bo.Right.(*plan.Column); ok {
		if lit, ok := bo.Left.(*plan.Literal); ok {
			return &termFilter{column: col.Index, op: flipOp(bo.Op), value: lit.Value}
		}
	}
	return nil
}

func flipOp(op types.Op) types.Op {
	switch op {
	case types.OpLt:
		return types.OpGt
	case types.OpLe:
		return types.OpGe
	case types.OpGt:
		return types.OpLt
	case types.OpGe:
		return types.OpLe
	default:
		return op
	}
}

// decomposeConjunction splits a predicate on its top-level AND connectives.
func decomposeConjunction(s plan.Scalar) []plan.Scalar {
	if bo, ok := s.(*plan.BinaryOp); ok && bo.Op == "AND" {
		return append(decomposeConjunction(bo.Left), decomposeConjunction(bo.Right)...)
	}
	return []plan.Scalar{s}
}

// conjoin is decomposeConjunction's inverse: AND-join one or more terms
// back into a single predicate.
func conjoin(terms []plan.Scalar) plan.Scalar {
	pred := terms[0]
	for _, t := range terms[1:] {
		pred = &plan.BinaryOp{Op: "AND", Left: pred, Right: t}
	}
	return pred
}

// collectColumnIndexes gathers every *plan.Column.Index referenced by s
// into out. A Subquery/In.Subquery operand is opaque: subqueries in this
// planner are uncorrelated, so they never reference the enclosing node's
// columns.
func collectColumnIndexes(s plan.Scalar, out map[int]bool) {
	switch v := s.(type) {
	case *plan.Column:
		out[v.Index] = true
	case *plan.BinaryOp:
		collectColumnIndexes(v.Left, out)
		collectColumnIndexes(v.Right, out)
	case *plan.UnaryOp:
		collectColumnIndexes(v.Expr, out)
	case *plan.FunctionCall:
		for _, a := range v.Args {
			collectColumnIndexes(a, out)
		}
	case *plan.CaseWhen:
		if v.Expr != nil {
			collectColumnIndexes(v.Expr, out)
		}
		for _, w := range v.Whens {
			collectColumnIndexes(w.Cond, out)
			collectColumnIndexes(w.Result, out)
		}
		if v.Else != nil {
			collectColumnIndexes(v.Else, out)
		}
	case *plan.In:
		if v.Expr != nil {
			collectColumnIndexes(v.Expr, out)
		}
		for _, l := range v.List {
			collectColumnIndexes(l, out)
		}
	}
}

// substituteColumns rebuilds s with every *plan.Column replaced by
// sub(column.Index). Used both to remap a predicate pushed through a
// Project and to compose two stacked Projects into one.
func substituteColumns(s plan.Scalar, sub func(idx int) plan.Scalar) plan.Scalar {
	switch v := s.(type) {
	case *plan.Column:
		return sub(v.Index)
	case *plan.BinaryOp:
		return &plan.BinaryOp{Op: v.Op, Left: substituteColumns(v.Left, sub), Right: substituteColumns(v.Right, sub)}
	case *plan.UnaryOp:
		return &plan.UnaryOp{Op: v.Op, Expr: substituteColumns(v.Expr, sub)}
	case *plan.FunctionCall:
		args := make([]plan.Scalar, len(v.Args))
		for i, a := range v.Args {
			args[i] = substituteColumns(a, sub)
		}
		return &plan.FunctionCall{Name: v.Name, Args: args, Resolved: v.Resolved}
	case *plan.CaseWhen:
		whens := make([]plan.WhenClause, len(v.Whens))
		for i, w := range v.Whens {
			whens[i] = plan.WhenClause{Cond: substituteColumns(w.Cond, sub), Result: substituteColumns(w.Result, sub)}
		}
		cw := &plan.CaseWhen{Whens: whens}
		if v.Expr != nil {
			cw.Expr = substituteColumns(v.Expr, sub)
		}
		if v.Else != nil {
			cw.Else = substituteColumns(v.Else, sub)
		}
		return cw
	case *plan.In:
		list := make([]plan.Scalar, len(v.List))
		for i, l := range v.List {
			list[i] = substituteColumns(l, sub)
		}
		in := &plan.In{List: list, Subquery: v.Subquery, Negate: v.Negate}
		if v.Expr != nil {
			in.Expr = substituteColumns(v.Expr, sub)
		}
		return in
	default:
		// Literal, Param, Subquery: no column references to rewrite.
		return s
	}
}

// remapThroughProject rewrites a predicate built against proj's output
// columns into one built against proj.Input's columns, for terms already
// known (by pushThroughProject) to reference only pass-through columns.
func remapThroughProject(s plan.Scalar, exprs []plan.ProjectExpr) plan.Scalar {
	return substituteColumns(s, func(idx int) plan.Scalar { return exprs[idx].Expr })
}

// composeProjects collapses Project(Project(x)) into one Project over x,
// pruning whatever intermediate columns the outer projection never
// references (spec §4.9 "column pruning from projections").
func composeProjects(n *plan.Project) *plan.Project {
	inner, ok := n.Input.(*plan.Project)
	if !ok {
		return n
	}
	exprs := make([]plan.ProjectExpr, len(n.Exprs))
	for i, e := range n.Exprs {
		exprs[i] = plan.ProjectExpr{Name: e.Name, Expr: substituteColumns(e.Expr, func(idx int) plan.Scalar { return inner.Exprs[idx].Expr })}
	}
	return &plan.Project{Input: inner.Input, Exprs: exprs}
}

// eliminateDead removes nodes proven to be no-ops (spec §4.9 "dead-code
// elimination"): a Sort with no keys, a Limit with neither Count nor
// Offset set, an identity Project (same columns, same names, same order
// as its input), or a Filter with no predicate.
func eliminateDead(node plan.Node) plan.Node {
	switch n := node.(type) {
	case *plan.Sort:
		if len(n.OrderBy) == 0 {
			return n.Input
		}
	case *plan.Limit:
		if !n.HasCount && !n.HasOffset {
			return n.Input
		}
	case *plan.Project:
		if isIdentityProject(n) {
			return n.Input
		}
	case *plan.Filter:
		if n.Predicate == nil {
			return n.Input
		}
	}
	return node
}

func isIdentityProject(n *plan.Project) bool {
	in := n.Input.Schema()
	if len(n.Exprs) != len(in.Columns) {
		return false
	}
	for i, e := range n.Exprs {
		col, ok := e.Expr.(*plan.Column)
		if !ok || col.Index != i {
			return false
		}
		if e.Name != in.Columns[i].Name {
			return false
		}
	}
	return true
}

// foldConstants collapses a literal-only binary comparison into its boolean
// result so the residual filter the emitter runs doesn't re-evaluate
// already-decided constant terms every row.
func foldConstants(s plan.Scalar) plan.Scalar {
	bo, ok := s.(*plan.BinaryOp)
	if !ok {
		return s
	}
	bo.Left = foldConstants(bo.Left)
	bo.Right = foldConstants(bo.Right)
	ll, lok := bo.Left.(*plan.Literal)
	rl, rok := bo.Right.(*plan.Literal)
	if !lok || !rok {
		return bo
	}
	switch bo.Op {
	case types.OpEq, types.OpNe, types.OpLt, types.OpLe, types.OpGt, types.OpGe:
		result := types.EvalOp(bo.Op, ll.Value, rl.Value, types.CollationBinary)
		return &plan.Literal{Value: types.Bool(result), Type: types.LogicalType{Name: types.LogicalBoolean}}
	default:
		return bo
	}
}
