package planner

import (
	"fmt"
	"math/big"

	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/opcode"

	"quereus/internal/errs"
	"quereus/internal/plan"
	"quereus/internal/types"
)

// scope resolves unqualified and table-qualified column names against the
// schema a node's children expose, mirroring how the teacher's analyzer
// resolves a core.Column against a core.Table by name.
type scope struct {
	out plan.OutputSchema
	// qualifiers maps a table alias to the half-open range of column
	// indexes it contributes, for qualified references like "t.col" over a
	// join's concatenated schema.
	qualifiers map[string][2]int
}

func newScope(out plan.OutputSchema) *scope {
	return &scope{out: out}
}

func (s *scope) resolve(colName *ast.ColumnName) (int, error) {
	name := colName.Name.O
	table := colName.Table.O
	if table != "" {
		if rng, ok := s.qualifiers[table]; ok {
			for i := rng[0]; i < rng[1]; i++ {
				if s.out.Columns[i].Name == name {
					return i, nil
				}
			}
			return -1, errs.New(errs.Resolve, "no such column: %s.%s", table, name)
		}
	}
	idx := s.out.ColumnIndex(name)
	if idx < 0 {
		return -1, errs.New(errs.Resolve, "no such column: %s", name)
	}
	return idx, nil
}

// exprToScalar lowers one WHERE/SELECT/ORDER-BY scalar expression into the
// plan algebra's Scalar sub-tree.
func (b *Builder) exprToScalar(e ast.ExprNode, sc *scope) (plan.Scalar, error) {
	switch v := e.(type) {
	case *ast.ColumnNameExpr:
		idx, err := sc.resolve(v.Name)
		if err != nil {
			return nil, err
		}
		return &plan.Column{Index: idx, Name: sc.out.Columns[idx].Name}, nil

	case ast.ValueExpr:
		return valueExprToLiteral(v), nil

	case *ast.ParenthesesExpr:
		return b.exprToScalar(v.Expr, sc)

	case *ast.BinaryOperationExpr:
		left, err := b.exprToScalar(v.L, sc)
		if err != nil {
			return nil, err
		}
		right, err := b.exprToScalar(v.R, sc)
		if err != nil {
			return nil, err
		}
		if op, ok := binOpFor(v.Op); ok {
			return &plan.BinaryOp{Op: op, Left: left, Right: right}, nil
		}
		return &plan.BinaryOp{Op: types.Op(arithOpName(v.Op)), Left: left, Right: right}, nil

	case *ast.UnaryOperationExpr:
		inner, err := b.exprToScalar(v.V, sc)
		if err != nil {
			return nil, err
		}
		switch v.Op {
		case opcode.Not:
			return &plan.UnaryOp{Op: "NOT", Expr: inner}, nil
		case opcode.Minus:
			return &plan.UnaryOp{Op: "-", Expr: inner}, nil
		case opcode.Plus:
			return inner, nil
		default:
			return nil, errs.New(errs.Unsupported, "unsupported unary operator %v", v.Op)
		}

	case *ast.IsNullExpr:
		inner, err := b.exprToScalar(v.Expr, sc)
		if err != nil {
			return nil, err
		}
		isNull := &plan.FunctionCall{Name: "is_null", Args: []plan.Scalar{inner}}
		if v.Not {
			return &plan.UnaryOp{Op: "NOT", Expr: isNull}, nil
		}
		return isNull, nil

	case *ast.BetweenExpr:
		expr, err := b.exprToScalar(v.Expr, sc)
		if err != nil {
			return nil, err
		}
		lo, err := b.exprToScalar(v.Left, sc)
		if err != nil {
			return nil, err
		}
		hi, err := b.exprToScalar(v.Right, sc)
		if err != nil {
			return nil, err
		}
		between := &plan.BinaryOp{Op: "AND",
			Left:  &plan.BinaryOp{Op: types.OpGe, Left: expr, Right: lo},
			Right: &plan.BinaryOp{Op: types.OpLe, Left: expr, Right: hi},
		}
		if v.Not {
			return &plan.UnaryOp{Op: "NOT", Expr: between}, nil
		}
		return between, nil

	case *ast.PatternInExpr:
		expr, err := b.exprToScalar(v.Expr, sc)
		if err != nil {
			return nil, err
		}
		if v.Sel != nil {
			sub, err := b.buildSelect(v.Sel.Query.(*ast.SelectStmt))
			if err != nil {
				return nil, err
			}
			return &plan.In{Expr: expr, Subquery: sub, Negate: v.Not}, nil
		}
		list := make([]plan.Scalar, len(v.List))
		for i, item := range v.List {
			s, err := b.exprToScalar(item, sc)
			if err != nil {
				return nil, err
			}
			list[i] = s
		}
		return &plan.In{Expr: expr, List: list, Negate: v.Not}, nil

	case *ast.PatternLikeExpr:
		expr, err := b.exprToScalar(v.Expr, sc)
		if err != nil {
			return nil, err
		}
		pattern, err := b.exprToScalar(v.Pattern, sc)
		if err != nil {
			return nil, err
		}
		like := &plan.BinaryOp{Op: types.OpLike, Left: expr, Right: pattern}
		if v.Not {
			return &plan.UnaryOp{Op: "NOT", Expr: like}, nil
		}
		return like, nil

	case *ast.FuncCallExpr:
		args := make([]plan.Scalar, len(v.Args))
		for i, a := range v.Args {
			s, err := b.exprToScalar(a, sc)
			if err != nil {
				return nil, err
			}
			args[i] = s
		}
		return &plan.FunctionCall{Name: v.FnName.L, Args: args}, nil

	case *ast.CaseExpr:
		return b.caseExprToScalar(v, sc)

	case *ast.ExistsSubqueryExpr:
		sub, err := b.buildSelect(v.Sel.Query.(*ast.SelectStmt))
		if err != nil {
			return nil, err
		}
		s := plan.Scalar(&plan.Subquery{Query: sub, Exists: true})
		if v.Not {
			return &plan.UnaryOp{Op: "NOT", Expr: s}, nil
		}
		return s, nil

	case *ast.SubqueryExpr:
		sub, err := b.buildSelect(v.Query.(*ast.SelectStmt))
		if err != nil {
			return nil, err
		}
		return &plan.Subquery{Query: sub}, nil

	case ast.ParamMarkerExpr:
		return &plan.Param{Name: fmt.Sprintf("?%d", v.GetOrder())}, nil

	default:
		return nil, errs.New(errs.Unsupported, "unsupported expression type %T", e)
	}
}

func (b *Builder) caseExprToScalar(v *ast.CaseExpr, sc *scope) (plan.Scalar, error) {
	out := &plan.CaseWhen{}
	if v.Value != nil {
		val, err := b.exprToScalar(v.Value, sc)
		if err != nil {
			return nil, err
		}
		out.Expr = val
	}
	for _, w := range v.WhenClauses {
		cond, err := b.exprToScalar(w.Expr, sc)
		if err != nil {
			return nil, err
		}
		res, err := b.exprToScalar(w.Result, sc)
		if err != nil {
			return nil, err
		}
		if out.Expr != nil {
			cond = &plan.BinaryOp{Op: types.OpEq, Left: out.Expr, Right: cond}
		}
		out.Whens = append(out.Whens, plan.WhenClause{Cond: cond, Result: res})
	}
	if v.ElseClause != nil {
		els, err := b.exprToScalar(v.ElseClause, sc)
		if err != nil {
			return nil, err
		}
		out.Else = els
	}
	return out, nil
}

// valueExprToLiteral lowers a tidb ast.ValueExpr (the literal wrapper
// registered by the blank-imported test_driver package, exactly as the
// teacher's table_test.go builds literals with ast.NewValueExpr) into a
// plan.Literal.
func valueExprToLiteral(v ast.ValueExpr) *plan.Literal {
	raw := v.GetValue()
	switch val := raw.(type) {
	case nil:
		return &plan.Literal{Value: types.Null(), Type: types.LogicalType{Name: types.LogicalNull}}
	case int64:
		return &plan.Literal{Value: types.Integer(val), Type: types.LogicalType{Name: types.LogicalInteger}}
	case uint64:
		return &plan.Literal{Value: types.BigInt(new(big.Int).SetUint64(val)), Type: types.LogicalType{Name: types.LogicalInteger}}
	case float64:
		return &plan.Literal{Value: types.Real(val), Type: types.LogicalType{Name: types.LogicalReal}}
	case string:
		return &plan.Literal{Value: types.Text(val), Type: types.LogicalType{Name: types.LogicalText}}
	case []byte:
		return &plan.Literal{Value: types.Blob(val), Type: types.LogicalType{Name: types.LogicalBlob}}
	default:
		// Decimal and other driver-specific kinds: fall back to the
		// literal's own string rendering rather than guessing its shape.
		return &plan.Literal{Value: types.Text(v.GetDatumString()), Type: types.LogicalType{Name: types.LogicalNumeric}}
	}
}
