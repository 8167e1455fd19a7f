package emit

import (
	"context"

	"quereus/internal/errs"
	"quereus/internal/plan"
	"quereus/internal/types"
	"quereus/internal/vtab"
)

// emitDML lowers an INSERT/UPDATE/DELETE into an Instruction that drives
// the source iterator to completion, applying one vtab.Table.Update call
// per row, and returns the number of rows affected as an Integer value
// (spec §4.5 DML contract, §9's require-coordinator-routing fix).
func (em *Emitter) emitDML(ctx context.Context, n *plan.DML) (*Instruction, error) {
	ts, ok := em.Ctx.CaptureTable(n.TableSchema.SchemaName, n.TableSchema.Name)
	if !ok {
		return nil, errs.New(errs.NotFound, "table %s.%s not found", n.TableSchema.SchemaName, n.TableSchema.Name)
	}
	tbl, err := em.Tables.ResolveTable(ctx, ts.SchemaName, ts.Name)
	if err != nil {
		return nil, err
	}

	source, err := em.Emit(ctx, n.Source)
	if err != nil {
		return nil, err
	}

	ev := em.evaluator()
	pkIdx := ts.PKColumnIndexes()
	kind := n.Kind
	assigns := n.Assignments

	return &Instruction{
		Params: []*Instruction{source},
		Note:   "DML",
		Run: func(ctx context.Context, args []any) (any, error) {
			it := args[0].(vtab.RowIterator)
			defer it.Close()

			var affected int64
			for {
				row, ok, err := it.Next(ctx)
				if err != nil {
					return nil, err
				}
				if !ok {
					break
				}

				switch kind {
				case plan.DMLInsert:
					_, _, err := tbl.Update(ctx, vtab.UpdateRequest{Operation: vtab.OpInsert, Values: row, OnConflict: vtab.ConflictAbort})
					if err != nil {
						return nil, err
					}

				case plan.DMLUpdate:
					newRow := row.Clone()
					for _, a := range assigns {
						v, err := ev.Eval(ctx, a.Expr, row)
						if err != nil {
							return nil, err
						}
						newRow[a.ColumnIndex] = v
					}
					_, _, err := tbl.Update(ctx, vtab.UpdateRequest{
						Operation:    vtab.OpUpdate,
						Values:       newRow,
						OldKeyValues: pkValues(row, pkIdx),
					})
					if err != nil {
						return nil, err
					}

				case plan.DMLDelete:
					_, _, err := tbl.Update(ctx, vtab.UpdateRequest{
						Operation:    vtab.OpDelete,
						OldKeyValues: pkValues(row, pkIdx),
					})
					if err != nil {
						return nil, err
					}
				}
				affected++
			}
			return types.Integer(affected), nil
		},
	}, nil
}

func pkValues(row types.Row, pkIdx []int) types.Row {
	out := make(types.Row, len(pkIdx))
	for i, idx := range pkIdx {
		out[i] = row[idx]
	}
	return out
}
