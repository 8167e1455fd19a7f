package planner

import (
	"fmt"

	"github.com/pingcap/tidb/pkg/parser/ast"

	"quereus/internal/errs"
	"quereus/internal/plan"
)

// buildSelect lowers one SELECT statement into the relational plan
// algebra: FROM/JOIN, WHERE, GROUP BY/aggregates, HAVING, projection,
// ORDER BY, LIMIT, applied in that order exactly as SQL defines them.
func (b *Builder) buildSelect(s *ast.SelectStmt) (plan.Node, error) {
	var node plan.Node
	var sc *scope

	if s.From == nil {
		node = &plan.SingleRow{}
		sc = newScope(node.Schema())
	} else {
		n, qualifiers, err := b.buildFrom(s.From.TableRefs)
		if err != nil {
			return nil, err
		}
		node = n
		sc = &scope{out: node.Schema(), qualifiers: qualifiers}
	}

	if s.Where != nil {
		pred, err := b.exprToScalar(s.Where, sc)
		if err != nil {
			return nil, err
		}
		node = &plan.Filter{Input: node, Predicate: pred}
	}

	hasAgg := false
	for _, f := range s.Fields.Fields {
		if _, ok := f.Expr.(*ast.AggregateFuncExpr); ok {
			hasAgg = true
			break
		}
	}

	if hasAgg || s.GroupBy != nil {
		agg, err := b.buildAggregate(node, sc, s)
		if err != nil {
			return nil, err
		}
		node = agg
		sc = newScope(node.Schema())

		if s.Having != nil {
			pred, err := b.exprToScalar(s.Having.Expr, sc)
			if err != nil {
				return nil, err
			}
			node = &plan.Filter{Input: node, Predicate: pred}
		}
		// The group-by/aggregate output schema already matches the select
		// list 1:1 in the common case this planner targets (spec's "full
		// SQL standard compliance" is an explicit non-goal); arbitrary
		// expressions mixing aggregates and scalars are not rewritten.
		return b.finishSelect(node, s)
	}

	projExprs, err := b.buildProjection(s.Fields, sc)
	if err != nil {
		return nil, err
	}
	node = &plan.Project{Input: node, Exprs: projExprs}

	return b.finishSelect(node, s)
}

func (b *Builder) finishSelect(node plan.Node, s *ast.SelectStmt) (plan.Node, error) {
	sc := newScope(node.Schema())
	if s.OrderBy != nil {
		keys := make([]plan.SortKey, 0, len(s.OrderBy.Items))
		for _, item := range s.OrderBy.Items {
			expr, err := b.exprToScalar(item.Expr, sc)
			if err != nil {
				return nil, err
			}
			keys = append(keys, plan.SortKey{Expr: expr, Desc: item.Desc})
		}
		node = &plan.Sort{Input: node, OrderBy: keys}
	}

	if s.Limit != nil {
		lim := &plan.Limit{Input: node}
		if s.Limit.Count != nil {
			if v, ok := s.Limit.Count.(ast.ValueExpr); ok {
				lit := valueExprToLiteral(v)
				lim.Count = lit.Value.Int64()
				lim.HasCount = true
			}
		}
		if s.Limit.Offset != nil {
			if v, ok := s.Limit.Offset.(ast.ValueExpr); ok {
				lit := valueExprToLiteral(v)
				lim.Offset = lit.Value.Int64()
				lim.HasOffset = true
			}
		}
		node = lim
	}
	return node, nil
}

func (b *Builder) buildProjection(fl *ast.FieldList, sc *scope) ([]plan.ProjectExpr, error) {
	var out []plan.ProjectExpr
	for _, f := range fl.Fields {
		if f.WildCard != nil {
			if f.WildCard.Table.O != "" {
				rng, ok := sc.qualifiers[f.WildCard.Table.O]
				if !ok {
					return nil, errs.New(errs.Resolve, "no such table: %s", f.WildCard.Table.O)
				}
				for i := rng[0]; i < rng[1]; i++ {
					out = append(out, plan.ProjectExpr{Name: sc.out.Columns[i].Name, Expr: &plan.Column{Index: i, Name: sc.out.Columns[i].Name}})
				}
				continue
			}
			for i, c := range sc.out.Columns {
				out = append(out, plan.ProjectExpr{Name: c.Name, Expr: &plan.Column{Index: i, Name: c.Name}})
			}
			continue
		}
		expr, err := b.exprToScalar(f.Expr, sc)
		if err != nil {
			return nil, err
		}
		name := f.AsName.O
		if name == "" {
			name = fieldDisplayName(f)
		}
		out = append(out, plan.ProjectExpr{Name: name, Expr: expr})
	}
	return out, nil
}

func fieldDisplayName(f *ast.SelectField) string {
	if col, ok := f.Expr.(*ast.ColumnNameExpr); ok {
		return col.Name.Name.O
	}
	return fmt.Sprintf("col_%p", f)
}

// buildAggregate builds one Aggregate node from the SELECT's GROUP BY
// items and any top-level AggregateFuncExpr fields (spec §4.8 Aggregate).
func (b *Builder) buildAggregate(input plan.Node, sc *scope, s *ast.SelectStmt) (*plan.Aggregate, error) {
	agg := &plan.Aggregate{Input: input}
	if s.GroupBy != nil {
		for _, item := range s.GroupBy.Items {
			expr, err := b.exprToScalar(item.Expr, sc)
			if err != nil {
				return nil, err
			}
			name := "group"
			if col, ok := item.Expr.(*ast.ColumnNameExpr); ok {
				name = col.Name.Name.O
			}
			agg.GroupExprs = append(agg.GroupExprs, expr)
			agg.GroupNames = append(agg.GroupNames, name)
		}
	}
	for _, f := range s.Fields.Fields {
		af, ok := f.Expr.(*ast.AggregateFuncExpr)
		if !ok {
			continue
		}
		name := f.AsName.O
		if name == "" {
			name = af.F
		}
		var arg plan.Scalar
		if len(af.Args) > 0 {
			e, err := b.exprToScalar(af.Args[0], sc)
			if err != nil {
				return nil, err
			}
			arg = e
		}
		agg.Aggs = append(agg.Aggs, plan.AggregateExpr{Name: name, Func: af.F, Arg: arg, ArgCount: len(af.Args)})
	}
	return agg, nil
}

// buildFrom lowers a FROM clause's join tree (recursively, for multi-table
// joins) into a relational Node plus a table-alias -> column-range map for
// qualified column resolution.
func (b *Builder) buildFrom(node ast.ResultSetNode) (plan.Node, map[string][2]int, error) {
	switch v := node.(type) {
	case *ast.Join:
		if v.Right == nil {
			return b.buildFrom(v.Left)
		}
		left, lq, err := b.buildFrom(v.Left)
		if err != nil {
			return nil, nil, err
		}
		right, rq, err := b.buildFrom(v.Right)
		if err != nil {
			return nil, nil, err
		}
		offset := len(left.Schema().Columns)
		merged := map[string][2]int{}
		for k, r := range lq {
			merged[k] = r
		}
		for k, r := range rq {
			merged[k] = [2]int{r[0] + offset, r[1] + offset}
		}

		jt := joinTypeFor(v.Tp)
		join := &plan.NestedLoopJoin{Outer: left, Inner: right, Type: jt}
		if v.On != nil {
			combinedOut := join.Schema()
			sc := &scope{out: combinedOut, qualifiers: merged}
			cond, err := b.exprToScalar(v.On.Expr, sc)
			if err != nil {
				return nil, nil, err
			}
			join.Condition = cond
		} else {
			join.Type = plan.JoinCross
		}

		// Spec §4.8 join planning: score (leftRel, rightRel, type, condition)
		// by recursive cost (leftCost + leftRows·innerPlanCost) and choose the
		// cheaper driving direction. This is not a join reorder -- the tree
		// shape above is already fixed by the AST -- only which side drives
		// the nested loop. Only safe for inner/cross joins; left/right joins
		// must drive from their preserved side.
		if join.Type == plan.JoinInner || join.Type == plan.JoinCross {
			leftRows, leftCost := estimateJoinInput(left)
			rightRows, rightCost := estimateJoinInput(right)
			costLeftDrives := leftCost + float64(leftRows)*rightCost
			costRightDrives := rightCost + float64(rightRows)*leftCost
			join.DriveInner = costRightDrives < costLeftDrives
		}
		return join, merged, nil

	case *ast.TableSource:
		tn, alias, ok := singleSourceTable(node)
		if !ok {
			inner, q, err := b.buildFrom(v.Source)
			if err != nil {
				return nil, nil, err
			}
			if v.AsName.O != "" {
				q = map[string][2]int{v.AsName.O: {0, len(inner.Schema().Columns)}}
			}
			return inner, q, nil
		}
		tbl, err := b.resolveTable(tn)
		if err != nil {
			return nil, nil, err
		}
		scan := plan.NewTableScan(tbl, alias)
		return scan, map[string][2]int{alias: {0, len(scan.Schema().Columns)}}, nil

	default:
		return nil, nil, errs.New(errs.Unsupported, "unsupported FROM clause element %T", node)
	}
}

// defaultJoinRowEstimate is the row count assumed for a relation with no
// catalog statistics yet (a fresh table's TableSchema.EstimatedRows is
// zero) when scoring a join's driving direction. Distinct from
// storetable's runtime fallback of 1 row (spec §4.7, used once a table is
// actually queried with no stats): at build time a join input with
// unknown size is assumed to be of ordinary size rather than trivially
// small, so an unmeasured table doesn't look artificially cheap to drive.
const defaultJoinRowEstimate = 1000

// estimateJoinInput gives a rough (rows, cost) estimate for one side of a
// join, used only to pick a NestedLoopJoin's driving direction (spec §4.8:
// "scores each (leftRel, rightRel, type, condition) by recursive cost").
func estimateJoinInput(n plan.Node) (rows uint64, cost float64) {
	switch v := n.(type) {
	case *plan.TableScan:
		rows = v.TableSchema.EstimatedRows
		if rows == 0 {
			rows = defaultJoinRowEstimate
		}
		return rows, float64(rows)

	case *plan.Values:
		rows = uint64(len(v.Rows))
		if rows == 0 {
			rows = 1
		}
		return rows, float64(rows)

	case *plan.SingleRow:
		return 1, 1

	case *plan.Filter:
		return estimateJoinInput(v.Input)

	case *plan.Project:
		return estimateJoinInput(v.Input)

	case *plan.NestedLoopJoin:
		lr, lc := estimateJoinInput(v.Outer)
		rr, rc := estimateJoinInput(v.Inner)
		selectivity := 1.0
		if v.Type != plan.JoinCross && v.Condition != nil {
			selectivity = 0.1
		}
		rows = uint64(float64(lr) * float64(rr) * selectivity)
		if rows == 0 {
			rows = 1
		}
		return rows, lc + float64(lr)*rc

	default:
		return defaultJoinRowEstimate, float64(defaultJoinRowEstimate)
	}
}

func joinTypeFor(tp ast.JoinType) plan.JoinType {
	switch tp {
	case ast.LeftJoin:
		return plan.JoinLeft
	case ast.RightJoin:
		return plan.JoinRight
	default:
		return plan.JoinInner
	}
}
