package engine

import (
	"context"

	"quereus/internal/errs"
	"quereus/internal/types"
)

// Result is one statement's outcome: either a row set (IsQuery) or an
// affected-row count, matching the DML/SELECT split the scheduler's
// instructions already produce (spec §4.5/§4.10).
type Result struct {
	Rows         []types.Row
	RowsAffected int64
	IsQuery      bool
}

// Exec parses sql as a batch of statements and runs each in turn. A batch
// of two or more statements with no explicit transaction already open is
// wrapped in an implicit transaction: begin on every registered
// connection, run each statement, commit all on success or roll back all
// on the first failure (spec §4.12).
func (d *Database) Exec(ctx context.Context, sql string, params map[string]types.Value) ([]*Result, error) {
	stmts, err := d.Planner.ParseStatements(sql)
	if err != nil {
		return nil, err
	}
	if len(stmts) == 0 {
		return nil, nil
	}

	d.mu.Lock()
	alreadyInTx := d.inTransaction
	d.mu.Unlock()

	implicit := len(stmts) >= 2 && !alreadyInTx
	if implicit {
		if err := d.beginImplicit(ctx); err != nil {
			return nil, err
		}
	}

	results := make([]*Result, 0, len(stmts))
	for _, s := range stmts {
		stmt, err := d.planAndEmit(ctx, s, params)
		if err != nil {
			if implicit {
				_ = d.Rollback(ctx)
			}
			return nil, err
		}
		res, err := stmt.Run(ctx)
		if err != nil {
			if implicit {
				_ = d.Rollback(ctx)
			}
			return nil, err
		}
		results = append(results, res)
	}

	if implicit {
		if err := d.Commit(ctx); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// Eval runs sql, which must parse to exactly one statement, and returns
// its row sequence (spec §4.12 eval(sql, params?) → sequence of rows).
// Autocommit semantics apply automatically: outside an explicit
// transaction, each table's Coordinator wraps its own Update call in a
// begin/commit pair (storetable.Table.Update), so a lone statement needs
// no transaction bracketing from the engine itself.
func (d *Database) Eval(ctx context.Context, sql string, params map[string]types.Value) ([]types.Row, error) {
	stmts, err := d.Planner.ParseStatements(sql)
	if err != nil {
		return nil, err
	}
	if len(stmts) != 1 {
		return nil, errs.New(errs.Misuse, "eval expects exactly one statement, got %d", len(stmts))
	}
	stmt, err := d.planAndEmit(ctx, stmts[0], params)
	if err != nil {
		return nil, err
	}
	res, err := stmt.Run(ctx)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}
