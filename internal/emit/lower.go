package emit

import (
	"context"
	"sort"

	"quereus/internal/errs"
	"quereus/internal/eval"
	"quereus/internal/plan"
	"quereus/internal/schema"
	"quereus/internal/types"
	"quereus/internal/vtab"
)

// TableResolver looks up the live vtab.Table backing a TableScan/DML
// target, same contract the optimizer uses (spec §4.7/§4.10).
type TableResolver interface {
	ResolveTable(ctx context.Context, schemaName, tableName string) (vtab.Table, error)
}

// Emitter lowers an optimized plan.Node tree into an Instruction DAG,
// recording every schema object it touches on its Context (spec §4.10).
type Emitter struct {
	Ctx    *Context
	Tables TableResolver
	Params map[string]types.Value
	runSub SubqueryRunnerHook
}

// SubqueryRunnerHook lets the engine supply a way to plan+emit+run a
// nested plan.Node for scalar/EXISTS/IN subqueries (spec §4.10 data flow:
// subqueries are themselves full statements lowered through C8-C11).
type SubqueryRunnerHook func(ctx context.Context, node plan.Node) ([]types.Row, error)

// New returns an Emitter. runSub may be nil if the statement being emitted
// is known not to contain subqueries.
func New(ectx *Context, tables TableResolver, params map[string]types.Value, runSub SubqueryRunnerHook) *Emitter {
	return &Emitter{Ctx: ectx, Tables: tables, Params: params, runSub: runSub}
}

func (em *Emitter) evaluator() *eval.Evaluator {
	var hook eval.SubqueryRunner
	if em.runSub != nil {
		hook = func(ctx context.Context, node plan.Node) ([]types.Row, error) { return em.runSub(ctx, node) }
	}
	return eval.New(em.Ctx.Catalog, em.Params, hook)
}

// Emit lowers node into a root Instruction.
func (em *Emitter) Emit(ctx context.Context, node plan.Node) (*Instruction, error) {
	switch n := node.(type) {
	case *plan.TableScan:
		return em.emitTableScan(ctx, n)
	case *plan.Filter:
		return em.emitFilter(ctx, n)
	case *plan.Project:
		return em.emitProject(ctx, n)
	case *plan.Values:
		return em.emitValues(n)
	case *plan.SingleRow:
		return em.emitSingleRow(), nil
	case *plan.Sort:
		return em.emitSort(ctx, n)
	case *plan.Limit:
		return em.emitLimit(ctx, n)
	case *plan.Aggregate:
		return em.emitAggregate(ctx, n)
	case *plan.NestedLoopJoin:
		return em.emitJoin(ctx, n)
	case *plan.DML:
		return em.emitDML(ctx, n)
	case *plan.Block:
		return em.emitBlock(ctx, n)
	default:
		return nil, errs.New(errs.Unsupported, "unsupported plan node %T", node)
	}
}

func (em *Emitter) emitTableScan(ctx context.Context, n *plan.TableScan) (*Instruction, error) {
	ts, ok := em.Ctx.CaptureTable(n.TableSchema.SchemaName, n.TableSchema.Name)
	if !ok {
		return nil, errs.New(errs.NotFound, "table %s.%s not found", n.TableSchema.SchemaName, n.TableSchema.Name)
	}
	tbl, err := em.Tables.ResolveTable(ctx, ts.SchemaName, ts.Name)
	if err != nil {
		return nil, err
	}

	info := vtab.FilterInfo{}
	for _, f := range n.Filters {
		lit, _ := f.Value.(*plan.Literal)
		var val types.Value
		if lit != nil {
			val = lit.Value
		}
		info.Constraints = append(info.Constraints, vtab.FilterConstraint{ColumnIndex: f.ColumnIndex, Op: f.Op, Usable: true, Value: val})
	}
	if n.AccessPlan != nil {
		info.IndexName = n.AccessPlan.IndexName
		info.SeekColumns = n.AccessPlan.SeekColumns
	}

	return &Instruction{
		Note: "TableScan " + n.TableSchema.Name,
		Run: func(ctx context.Context, args []any) (any, error) {
			return tbl.Query(ctx, info)
		},
	}, nil
}

func (em *Emitter) emitFilter(ctx context.Context, n *plan.Filter) (*Instruction, error) {
	input, err := em.Emit(ctx, n.Input)
	if err != nil {
		return nil, err
	}
	ev := em.evaluator()
	pred := n.Predicate
	return &Instruction{
		Params: []*Instruction{input},
		Note:   "Filter",
		Run: func(ctx context.Context, args []any) (any, error) {
			it := args[0].(vtab.RowIterator)
			return &filterIterator{input: it, pred: func(ctx context.Context, row types.Row) (bool, error) {
				v, err := ev.Eval(ctx, pred, row)
				if err != nil {
					return false, err
				}
				return !v.IsNull() && v.Int64() != 0, nil
			}}, nil
		},
	}, nil
}

func (em *Emitter) emitProject(ctx context.Context, n *plan.Project) (*Instruction, error) {
	input, err := em.Emit(ctx, n.Input)
	if err != nil {
		return nil, err
	}
	ev := em.evaluator()
	exprs := n.Exprs
	return &Instruction{
		Params: []*Instruction{input},
		Note:   "Project",
		Run: func(ctx context.Context, args []any) (any, error) {
			it := args[0].(vtab.RowIterator)
			return &projectIterator{input: it, fn: func(ctx context.Context, row types.Row) (types.Row, error) {
				out := make(types.Row, len(exprs))
				for i, e := range exprs {
					v, err := ev.Eval(ctx, e.Expr, row)
					if err != nil {
						return nil, err
					}
					out[i] = v
				}
				return out, nil
			}}, nil
		},
	}, nil
}

func (em *Emitter) emitValues(n *plan.Values) (*Instruction, error) {
	rows := n.Rows
	return &Instruction{
		Note: "Values",
		Run: func(ctx context.Context, args []any) (any, error) {
			return newSliceIterator(rows), nil
		},
	}, nil
}

func (em *Emitter) emitSingleRow() *Instruction {
	return &Instruction{
		Note: "SingleRow",
		Run: func(ctx context.Context, args []any) (any, error) {
			return newSliceIterator([]types.Row{{}}), nil
		},
	}
}

func (em *Emitter) emitSort(ctx context.Context, n *plan.Sort) (*Instruction, error) {
	input, err := em.Emit(ctx, n.Input)
	if err != nil {
		return nil, err
	}
	ev := em.evaluator()
	keys := n.OrderBy
	return &Instruction{
		Params: []*Instruction{input},
		Note:   "Sort",
		Run: func(ctx context.Context, args []any) (any, error) {
			rows, err := drain(ctx, args[0].(vtab.RowIterator))
			if err != nil {
				return nil, err
			}
			var sortErr error
			sort.SliceStable(rows, func(i, j int) bool {
				for _, k := range keys {
					vi, err := ev.Eval(ctx, k.Expr, rows[i])
					if err != nil {
						sortErr = err
						return false
					}
					vj, err := ev.Eval(ctx, k.Expr, rows[j])
					if err != nil {
						sortErr = err
						return false
					}
					cmp := types.Compare(vi, vj, types.CollationBinary)
					if cmp == 0 {
						continue
					}
					if k.Desc {
						return cmp > 0
					}
					return cmp < 0
				}
				return false
			})
			if sortErr != nil {
				return nil, sortErr
			}
			return newSliceIterator(rows), nil
		},
	}, nil
}

func (em *Emitter) emitLimit(ctx context.Context, n *plan.Limit) (*Instruction, error) {
	input, err := em.Emit(ctx, n.Input)
	if err != nil {
		return nil, err
	}
	count, offset, hasCount := n.Count, n.Offset, n.HasCount
	return &Instruction{
		Params: []*Instruction{input},
		Note:   "Limit",
		Run: func(ctx context.Context, args []any) (any, error) {
			return &limitIterator{input: args[0].(vtab.RowIterator), remaining: count, toSkip: offset, hasCount: hasCount}, nil
		},
	}, nil
}

type groupState struct {
	key    types.Row
	states []any
}

func (em *Emitter) emitAggregate(ctx context.Context, n *plan.Aggregate) (*Instruction, error) {
	input, err := em.Emit(ctx, n.Input)
	if err != nil {
		return nil, err
	}
	ev := em.evaluator()
	groupExprs := n.GroupExprs
	aggs := n.Aggs
	catalog := em.Ctx.Catalog

	return &Instruction{
		Params: []*Instruction{input},
		Note:   "Aggregate",
		Run: func(ctx context.Context, args []any) (any, error) {
			rows, err := drain(ctx, args[0].(vtab.RowIterator))
			if err != nil {
				return nil, err
			}

			funcs := make([]schema.AggregateFunc, len(aggs))
			for i, a := range aggs {
				argc := a.ArgCount
				fn, ok := catalog.Aggregate(a.Func, argc)
				if !ok {
					return nil, errs.New(errs.Resolve, "no such aggregate function: %s/%d", a.Func, argc)
				}
				funcs[i] = fn
			}

			order := make([]string, 0)
			groups := map[string]*groupState{}
			for _, row := range rows {
				key := make(types.Row, len(groupExprs))
				for i, g := range groupExprs {
					v, err := ev.Eval(ctx, g, row)
					if err != nil {
						return nil, err
					}
					key[i] = v
				}
				k := groupKeyString(key)
				gs, ok := groups[k]
				if !ok {
					gs = &groupState{key: key, states: make([]any, len(aggs))}
					for i, fn := range funcs {
						gs.states[i] = fn.Init()
					}
					groups[k] = gs
					order = append(order, k)
				}
				for i, a := range aggs {
					var argVals []types.Value
					if a.Arg != nil {
						v, err := ev.Eval(ctx, a.Arg, row)
						if err != nil {
							return nil, err
						}
						argVals = []types.Value{v}
					}
					st, err := funcs[i].Step(gs.states[i], argVals)
					if err != nil {
						return nil, err
					}
					gs.states[i] = st
				}
			}

			var out []types.Row
			for _, k := range order {
				gs := groups[k]
				row := make(types.Row, len(groupExprs)+len(aggs))
				copy(row, gs.key)
				for i, fn := range funcs {
					v, err := fn.Final(gs.states[i])
					if err != nil {
						return nil, err
					}
					row[len(groupExprs)+i] = v
				}
				out = append(out, row)
			}
			return newSliceIterator(out), nil
		},
	}, nil
}

func groupKeyString(key types.Row) string {
	var b []byte
	for _, v := range key {
		b = append(b, []byte(v.String())...)
		b = append(b, 0)
	}
	return string(b)
}

func (em *Emitter) emitJoin(ctx context.Context, n *plan.NestedLoopJoin) (*Instruction, error) {
	outer, err := em.Emit(ctx, n.Outer)
	if err != nil {
		return nil, err
	}
	inner, err := em.Emit(ctx, n.Inner)
	if err != nil {
		return nil, err
	}
	ev := em.evaluator()
	cond := n.Condition
	innerWidth := len(n.Inner.Schema().Columns)
	left := n.Type == plan.JoinLeft
	driveInner := n.DriveInner

	return &Instruction{
		Params: []*Instruction{outer, inner},
		Note:   "NestedLoopJoin",
		Run: func(ctx context.Context, args []any) (any, error) {
			outerRows, err := drain(ctx, args[0].(vtab.RowIterator))
			if err != nil {
				return nil, err
			}
			innerRows, err := drain(ctx, args[1].(vtab.RowIterator))
			if err != nil {
				return nil, err
			}

			var out []types.Row
			match := func(o, i types.Row) (types.Row, bool, error) {
				combined := make(types.Row, 0, len(o)+len(i))
				combined = append(combined, o...)
				combined = append(combined, i...)
				if cond != nil {
					v, err := ev.Eval(ctx, cond, combined)
					if err != nil {
						return nil, false, err
					}
					if v.IsNull() || v.Int64() == 0 {
						return nil, false, nil
					}
				}
				return combined, true, nil
			}

			// DriveInner (spec §4.8: cheaper driving direction) swaps which
			// relation's rows form the outer loop of the nested-loop
			// execution; only set for JoinInner/JoinCross (plan.go), so the
			// output columns stay Outer-then-Inner either way and no
			// unmatched-row padding logic is affected.
			if !driveInner {
				for _, o := range outerRows {
					matched := false
					for _, i := range innerRows {
						combined, ok, err := match(o, i)
						if err != nil {
							return nil, err
						}
						if ok {
							matched = true
							out = append(out, combined)
						}
					}
					if left && !matched {
						out = append(out, padRight(o, innerWidth))
					}
				}
				return newSliceIterator(out), nil
			}

			matchedOuter := make([]bool, len(outerRows))
			for _, i := range innerRows {
				for oi, o := range outerRows {
					combined, ok, err := match(o, i)
					if err != nil {
						return nil, err
					}
					if ok {
						matchedOuter[oi] = true
						out = append(out, combined)
					}
				}
			}
			if left {
				for oi, o := range outerRows {
					if !matchedOuter[oi] {
						out = append(out, padRight(o, innerWidth))
					}
				}
			}
			return newSliceIterator(out), nil
		},
	}, nil
}

// padRight appends width null columns to o, used for an unmatched
// preserved-side row of a left join.
func padRight(o types.Row, width int) types.Row {
	combined := make(types.Row, 0, len(o)+width)
	combined = append(combined, o...)
	for i := 0; i < width; i++ {
		combined = append(combined, types.Null())
	}
	return combined
}

func (em *Emitter) emitBlock(ctx context.Context, n *plan.Block) (*Instruction, error) {
	instrs := make([]*Instruction, len(n.Stmts))
	for i, s := range n.Stmts {
		instr, err := em.Emit(ctx, s)
		if err != nil {
			return nil, err
		}
		instrs[i] = instr
	}
	return &Instruction{
		Params: instrs,
		Note:   "Block",
		Run: func(ctx context.Context, args []any) (any, error) {
			if len(args) == 0 {
				return nil, nil
			}
			return args[len(args)-1], nil
		},
	}, nil
}
