package plan

import "quereus/internal/types"

// Scalar is a node of the scalar sub-algebra: it evaluates to one
// types.Value given a row conforming to an input OutputSchema (spec §4.8).
type Scalar interface {
	ScalarType(input OutputSchema) types.LogicalType
}

// Column references one column of the current row by ordinal.
type Column struct {
	Index int
	Name  string
}

func (c *Column) ScalarType(input OutputSchema) types.LogicalType {
	if c.Index < 0 || c.Index >= len(input.Columns) {
		return types.LogicalType{Name: types.LogicalAny}
	}
	return input.Columns[c.Index].Type
}

// Literal is a constant value.
type Literal struct {
	Value types.Value
	Type  types.LogicalType
}

func (l *Literal) ScalarType(OutputSchema) types.LogicalType { return l.Type }

// Param references a bound statement parameter by name (spec §4.13 "$name"
// / "?" placeholders).
type Param struct {
	Name string
	Type types.LogicalType
}

func (p *Param) ScalarType(OutputSchema) types.LogicalType { return p.Type }

// BinaryOp applies a binary scalar operator.
type BinaryOp struct {
	Op          types.Op
	Left, Right Scalar
}

func (b *BinaryOp) ScalarType(input OutputSchema) types.LogicalType {
	switch b.Op {
	case types.OpEq, types.OpNe, types.OpLt, types.OpLe, types.OpGt, types.OpGe, types.OpIn, types.OpLike:
		return types.LogicalType{Name: types.LogicalBoolean}
	default:
		return types.InferResultType([]types.LogicalType{b.Left.ScalarType(input), b.Right.ScalarType(input)})
	}
}

// UnaryOp applies a unary scalar operator (e.g. NOT, unary minus).
type UnaryOp struct {
	Op   string
	Expr Scalar
}

func (u *UnaryOp) ScalarType(input OutputSchema) types.LogicalType {
	if u.Op == "NOT" {
		return types.LogicalType{Name: types.LogicalBoolean}
	}
	return u.Expr.ScalarType(input)
}

// FunctionCall invokes a registered scalar function by name (spec §4.13).
type FunctionCall struct {
	Name     string
	Args     []Scalar
	Resolved types.LogicalType // filled in once the optimizer resolves the function
}

func (f *FunctionCall) ScalarType(input OutputSchema) types.LogicalType {
	if f.Resolved.Name != "" {
		return f.Resolved
	}
	argTypes := make([]types.LogicalType, len(f.Args))
	for i, a := range f.Args {
		argTypes[i] = a.ScalarType(input)
	}
	return types.InferResultType(argTypes)
}

// WhenClause is one WHEN cond THEN result arm of a CaseWhen.
type WhenClause struct {
	Cond   Scalar
	Result Scalar
}

// CaseWhen implements CASE [expr] WHEN ... THEN ... [ELSE ...] END. When
// Expr is non-nil this is the "simple" form (Expr = each WHEN compared for
// equality); otherwise each WHEN is itself a boolean predicate.
type CaseWhen struct {
	Expr  Scalar // nil for the searched form
	Whens []WhenClause
	Else  Scalar // nil means ELSE NULL
}

func (c *CaseWhen) ScalarType(input OutputSchema) types.LogicalType {
	types_ := make([]types.LogicalType, 0, len(c.Whens)+1)
	for _, w := range c.Whens {
		types_ = append(types_, w.Result.ScalarType(input))
	}
	if c.Else != nil {
		types_ = append(types_, c.Else.ScalarType(input))
	}
	return types.InferResultType(types_)
}

// In implements `expr IN (list...)` / `expr IN (subquery)`.
type In struct {
	Expr    Scalar
	List    []Scalar
	Subquery Node // non-nil for `IN (SELECT ...)`
	Negate  bool
}

func (i *In) ScalarType(OutputSchema) types.LogicalType {
	return types.LogicalType{Name: types.LogicalBoolean}
}

// Subquery wraps a relational Node used in scalar position: a scalar
// subquery yields its first row's first column, EXISTS yields a boolean.
type Subquery struct {
	Query  Node
	Exists bool
}

func (s *Subquery) ScalarType(OutputSchema) types.LogicalType {
	if s.Exists {
		return types.LogicalType{Name: types.LogicalBoolean}
	}
	sub := s.Query.Schema()
	if len(sub.Columns) == 0 {
		return types.LogicalType{Name: types.LogicalAny}
	}
	return sub.Columns[0].Type
}
