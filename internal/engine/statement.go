package engine

import (
	"context"

	"github.com/pingcap/tidb/pkg/parser/ast"

	"quereus/internal/emit"
	"quereus/internal/errs"
	"quereus/internal/plan"
	"quereus/internal/scheduler"
	"quereus/internal/types"
	"quereus/internal/vtab"
)

// Statement is a prepared statement (spec §4.12 prepare(sql)): a plan that
// has already been built, optimized and emitted, ready to Run repeatedly
// with the parameters bound at Prepare time, without re-parsing or
// re-optimizing,
// until its captured schema objects are invalidated by a later DDL change.
type Statement struct {
	db          *Database
	SQL         string
	Node        plan.Node
	EmitCtx     *emit.Context
	Instruction *emit.Instruction
}

// Prepare parses sql (expected to contain exactly one statement), plans,
// optimizes and emits it, and caches the result under the source text
// (spec §4.12 "set of live prepared statements").
func (d *Database) Prepare(ctx context.Context, sql string, params map[string]types.Value) (*Statement, error) {
	stmts, err := d.Planner.ParseStatements(sql)
	if err != nil {
		return nil, err
	}
	if len(stmts) != 1 {
		return nil, errs.New(errs.Misuse, "prepare expects exactly one statement, got %d", len(stmts))
	}

	stmt, err := d.planAndEmit(ctx, stmts[0], params)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.prepared[sql] = stmt
	d.mu.Unlock()
	return stmt, nil
}

// planAndEmit lowers, optimizes and emits a single AST statement, handling
// CREATE TABLE by routing it straight to the target module instead of
// through the optimizer/emitter (spec §4.6).
func (d *Database) planAndEmit(ctx context.Context, stmt ast.StmtNode, params map[string]types.Value) (*Statement, error) {
	node, err := d.Planner.Build(stmt)
	if err != nil {
		return nil, err
	}

	if ct, ok := node.(*plan.CreateTable); ok {
		return &Statement{db: d, Node: ct}, nil
	}
	if ci, ok := node.(*plan.CreateIndex); ok {
		return &Statement{db: d, Node: ci}, nil
	}

	optimized, err := d.Optimizer.Optimize(ctx, node)
	if err != nil {
		return nil, err
	}

	ectx := emit.NewContext(d.Catalog)
	emitter := emit.New(ectx, d, params, d.runSubquery)
	instr, err := emitter.Emit(ctx, optimized)
	if err != nil {
		return nil, err
	}

	return &Statement{db: d, Node: optimized, EmitCtx: ectx, Instruction: instr}, nil
}

// runSubquery plans, optimizes, emits and runs node as an independent
// statement, draining its result into a row slice (spec §4.10 "subqueries
// are themselves full statements lowered through C8-C11"). It is called
// each time the enclosing expression is evaluated and receives no values
// from the outer row, so correlated subqueries are not supported (spec
// §4.8 Non-goal: "full SQL standard compliance").
func (d *Database) runSubquery(ctx context.Context, node plan.Node) ([]types.Row, error) {
	optimized, err := d.Optimizer.Optimize(ctx, node)
	if err != nil {
		return nil, err
	}
	ectx := emit.NewContext(d.Catalog)
	emitter := emit.New(ectx, d, nil, d.runSubquery)
	instr, err := emitter.Emit(ctx, optimized)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(nil, false)
	result, err := sched.Run(ctx, instr)
	if err != nil {
		return nil, err
	}
	return drainResult(ctx, result)
}

// Run executes a prepared statement. CREATE TABLE is applied directly;
// everything else is validated against its captured schema (spec §8 S6)
// and run through the scheduler.
func (s *Statement) Run(ctx context.Context) (*Result, error) {
	if ct, ok := s.Node.(*plan.CreateTable); ok {
		if err := s.db.CreateTable(ctx, ct.TableSchema, ct.IfNotExists); err != nil {
			return nil, err
		}
		return &Result{}, nil
	}
	if ci, ok := s.Node.(*plan.CreateIndex); ok {
		if err := s.db.CreateIndex(ctx, ci.SchemaName, ci.TableName, ci.Index, ci.IfNotExists); err != nil {
			return nil, err
		}
		return &Result{}, nil
	}

	if err := s.EmitCtx.ValidateCapturedSchemaObjects(); err != nil {
		return nil, err
	}

	tracer, metrics := s.db.tracerFor(ctx)
	sched := scheduler.New(tracer, metrics)
	out, err := sched.Run(ctx, s.Instruction)
	if err != nil {
		return nil, err
	}

	if affected, ok := out.(types.Value); ok && affected.Kind() == types.KindInteger {
		return &Result{RowsAffected: affected.Int64()}, nil
	}
	rows, err := drainResult(ctx, out)
	if err != nil {
		return nil, err
	}
	return &Result{Rows: rows, IsQuery: true}, nil
}

// tracerFor returns the diagnostics the scheduler should use for this run.
// No Tracer is wired into the engine's execution path; RuntimeStats alone
// controls whether the scheduler tallies per-instruction metrics.
func (d *Database) tracerFor(ctx context.Context) (scheduler.Tracer, bool) {
	return nil, d.Options.RuntimeStats
}

// drainResult normalizes a scheduler result into a row slice: a
// vtab.RowIterator is drained to completion and closed, a single Row is
// wrapped, and nil yields no rows.
func drainResult(ctx context.Context, out any) ([]types.Row, error) {
	switch v := out.(type) {
	case nil:
		return nil, nil
	case types.Row:
		return []types.Row{v}, nil
	case vtab.RowIterator:
		defer v.Close()
		var rows []types.Row
		for {
			row, ok, err := v.Next(ctx)
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			rows = append(rows, row)
		}
		return rows, nil
	default:
		return nil, errs.New(errs.Internal, "unexpected statement result type %T", out)
	}
}
