package planner

import (
	"github.com/pingcap/tidb/pkg/parser/ast"

	"quereus/internal/errs"
	"quereus/internal/plan"
	"quereus/internal/types"
)

// buildInsert lowers INSERT INTO t (cols...) VALUES (...), (...) into a
// DML node over a Values source (spec §4.8 DML{Insert}).
func (b *Builder) buildInsert(s *ast.InsertStmt) (plan.Node, error) {
	tn, _, ok := singleSourceTable(s.Table.TableRefs.Left)
	if !ok {
		return nil, errs.New(errs.Unsupported, "unsupported INSERT target")
	}
	tbl, err := b.resolveTable(tn)
	if err != nil {
		return nil, err
	}

	colIndexes := make([]int, 0, len(s.Columns))
	if len(s.Columns) > 0 {
		for _, c := range s.Columns {
			idx := tbl.ColumnIndex(c.Name.O)
			if idx < 0 {
				return nil, errs.New(errs.Resolve, "no such column: %s", c.Name.O)
			}
			colIndexes = append(colIndexes, idx)
		}
	} else {
		for i := range tbl.Columns {
			colIndexes = append(colIndexes, i)
		}
	}

	sc := newScope(plan.OutputSchema{})
	rows := make([]types.Row, 0, len(s.Lists))
	for _, list := range s.Lists {
		row := make(types.Row, len(tbl.Columns))
		for i := range row {
			row[i] = types.Null()
		}
		for i, expr := range list {
			val, err := b.exprToScalar(expr, sc)
			if err != nil {
				return nil, err
			}
			lit, ok := val.(*plan.Literal)
			if !ok {
				return nil, errs.New(errs.Unsupported, "INSERT ... VALUES requires constant expressions")
			}
			row[colIndexes[i]] = lit.Value
		}
		rows = append(rows, row)
	}

	outCols := make([]plan.OutputColumn, len(tbl.Columns))
	for i, c := range tbl.Columns {
		outCols[i] = plan.OutputColumn{Name: c.Name, Type: c.Type}
	}
	values := plan.NewValues(rows, plan.OutputSchema{Columns: outCols})
	return &plan.DML{Kind: plan.DMLInsert, TableSchema: tbl, Source: values}, nil
}

// buildUpdate lowers UPDATE t SET col = expr, ... [WHERE ...] into a DML
// node whose Source is a Filter over the table scan (spec §4.8
// DML{Update}).
func (b *Builder) buildUpdate(s *ast.UpdateStmt) (plan.Node, error) {
	source, qualifiers, err := b.buildFrom(s.TableRefs.TableRefs)
	if err != nil {
		return nil, err
	}
	tn, _, ok := singleSourceTable(s.TableRefs.TableRefs.Left)
	if !ok {
		return nil, errs.New(errs.Unsupported, "unsupported UPDATE target")
	}
	tbl, err := b.resolveTable(tn)
	if err != nil {
		return nil, err
	}

	sc := &scope{out: source.Schema(), qualifiers: qualifiers}
	var node plan.Node = source
	if s.Where != nil {
		pred, err := b.exprToScalar(s.Where, sc)
		if err != nil {
			return nil, err
		}
		node = &plan.Filter{Input: node, Predicate: pred}
	}

	assigns := make([]plan.Assignment, 0, len(s.List))
	for _, a := range s.List {
		idx := tbl.ColumnIndex(a.Column.Name.O)
		if idx < 0 {
			return nil, errs.New(errs.Resolve, "no such column: %s", a.Column.Name.O)
		}
		val, err := b.exprToScalar(a.Expr, sc)
		if err != nil {
			return nil, err
		}
		assigns = append(assigns, plan.Assignment{ColumnIndex: idx, Expr: val})
	}

	return &plan.DML{Kind: plan.DMLUpdate, TableSchema: tbl, Source: node, Assignments: assigns}, nil
}

// buildDelete lowers DELETE FROM t [WHERE ...] into a DML node whose Source
// is a Filter over the table scan (spec §4.8 DML{Delete}).
func (b *Builder) buildDelete(s *ast.DeleteStmt) (plan.Node, error) {
	source, qualifiers, err := b.buildFrom(s.TableRefs.TableRefs)
	if err != nil {
		return nil, err
	}
	tn, _, ok := singleSourceTable(s.TableRefs.TableRefs.Left)
	if !ok {
		return nil, errs.New(errs.Unsupported, "unsupported DELETE target")
	}
	tbl, err := b.resolveTable(tn)
	if err != nil {
		return nil, err
	}

	var node plan.Node = source
	if s.Where != nil {
		sc := &scope{out: source.Schema(), qualifiers: qualifiers}
		pred, err := b.exprToScalar(s.Where, sc)
		if err != nil {
			return nil, err
		}
		node = &plan.Filter{Input: node, Predicate: pred}
	}

	return &plan.DML{Kind: plan.DMLDelete, TableSchema: tbl, Source: node}, nil
}
