package explain

import (
	"fmt"
	"strings"

	"quereus/internal/emit"
	"quereus/internal/plan"
)

type textFormatter struct{}

// FormatPlan renders node as an indented tree, one line per node naming
// its kind and salient detail (the table scanned, the predicate applied,
// the projected columns), mirroring EXPLAIN QUERY PLAN's shape rather than
// a raw struct dump.
func (textFormatter) FormatPlan(node plan.Node) (string, error) {
	var b strings.Builder
	renderNode(&b, node, 0)
	return b.String(), nil
}

// FormatInstructions renders the instruction DAG rooted at root, again
// indented by dependency depth, labeling each instruction by its Note
// (spec §4.10 "{params, run, note}" — Note is the one human-readable field
// an instruction carries).
func (textFormatter) FormatInstructions(root *emit.Instruction) (string, error) {
	var b strings.Builder
	renderInstruction(&b, root, 0, map[*emit.Instruction]bool{})
	return b.String(), nil
}

func renderNode(b *strings.Builder, node plan.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(b, "%s%s\n", indent, describeNode(node))
	for _, c := range node.Children() {
		renderNode(b, c, depth+1)
	}
}

func renderInstruction(b *strings.Builder, instr *emit.Instruction, depth int, seen map[*emit.Instruction]bool) {
	indent := strings.Repeat("  ", depth)
	if seen[instr] {
		fmt.Fprintf(b, "%s%s (shared)\n", indent, instr.Note)
		return
	}
	seen[instr] = true
	fmt.Fprintf(b, "%s%s\n", indent, instr.Note)
	for _, p := range instr.Params {
		renderInstruction(b, p, depth+1, seen)
	}
}

func describeNode(node plan.Node) string {
	switch n := node.(type) {
	case *plan.TableScan:
		desc := fmt.Sprintf("TableScan %s.%s", n.TableSchema.SchemaName, n.TableSchema.Name)
		if n.AccessPlan != nil {
			if n.AccessPlan.IndexName != "" {
				desc += fmt.Sprintf(" using index %s", n.AccessPlan.IndexName)
			}
			desc += fmt.Sprintf(" (rows~%d cost~%.1f)", n.AccessPlan.Rows, n.AccessPlan.Cost)
		}
		return desc
	case *plan.Filter:
		return "Filter " + RenderScalar(n.Predicate)
	case *plan.Project:
		names := make([]string, len(n.Exprs))
		for i, e := range n.Exprs {
			names[i] = e.Name
		}
		return "Project " + strings.Join(names, ", ")
	case *plan.Values:
		return fmt.Sprintf("Values (%d rows)", len(n.Rows))
	case *plan.SingleRow:
		return "SingleRow"
	case *plan.NestedLoopJoin:
		kind := joinKindName(n.Type)
		if n.Condition != nil {
			return fmt.Sprintf("NestedLoopJoin %s ON %s", kind, RenderScalar(n.Condition))
		}
		return "NestedLoopJoin " + kind
	case *plan.Aggregate:
		parts := make([]string, len(n.Aggs))
		for i, a := range n.Aggs {
			parts[i] = a.Name + "=" + a.Func + "(...)"
		}
		return "Aggregate " + strings.Join(parts, ", ")
	case *plan.Sort:
		parts := make([]string, len(n.OrderBy))
		for i, k := range n.OrderBy {
			dir := "ASC"
			if k.Desc {
				dir = "DESC"
			}
			parts[i] = RenderScalar(k.Expr) + " " + dir
		}
		return "Sort " + strings.Join(parts, ", ")
	case *plan.Limit:
		if n.HasCount {
			return fmt.Sprintf("Limit %d offset %d", n.Count, n.Offset)
		}
		return fmt.Sprintf("Limit offset %d", n.Offset)
	case *plan.TableValuedFunctionCall:
		return "TableValuedFunctionCall " + n.Name
	case *plan.DML:
		return "DML " + dmlKindName(n.Kind) + " " + n.TableSchema.Name
	case *plan.CreateTable:
		return "CreateTable " + n.TableSchema.Name
	case *plan.Block:
		return fmt.Sprintf("Block (%d statements)", len(n.Stmts))
	default:
		return fmt.Sprintf("%T", node)
	}
}

func joinKindName(t plan.JoinType) string {
	switch t {
	case plan.JoinInner:
		return "INNER"
	case plan.JoinLeft:
		return "LEFT"
	case plan.JoinRight:
		return "RIGHT"
	case plan.JoinFull:
		return "FULL"
	case plan.JoinCross:
		return "CROSS"
	default:
		return "?"
	}
}

func dmlKindName(k plan.DMLKind) string {
	switch k {
	case plan.DMLInsert:
		return "INSERT"
	case plan.DMLUpdate:
		return "UPDATE"
	case plan.DMLDelete:
		return "DELETE"
	default:
		return "?"
	}
}

// RenderScalar renders a scalar expression as a compact SQL-like string,
// for use in plan explanations and error messages.
func RenderScalar(s plan.Scalar) string {
	switch e := s.(type) {
	case nil:
		return ""
	case *plan.Column:
		return e.Name
	case *plan.Literal:
		return e.Value.String()
	case *plan.Param:
		return "$" + e.Name
	case *plan.BinaryOp:
		return fmt.Sprintf("(%s %s %s)", RenderScalar(e.Left), e.Op, RenderScalar(e.Right))
	case *plan.UnaryOp:
		return fmt.Sprintf("(%s %s)", e.Op, RenderScalar(e.Expr))
	case *plan.FunctionCall:
		parts := make([]string, len(e.Args))
		for i, a := range e.Args {
			parts[i] = RenderScalar(a)
		}
		return fmt.Sprintf("%s(%s)", e.Name, strings.Join(parts, ", "))
	case *plan.CaseWhen:
		return "CASE ... END"
	case *plan.In:
		if e.Negate {
			return RenderScalar(e.Expr) + " NOT IN (...)"
		}
		return RenderScalar(e.Expr) + " IN (...)"
	case *plan.Subquery:
		if e.Exists {
			return "EXISTS (...)"
		}
		return "(SELECT ...)"
	default:
		return fmt.Sprintf("%T", s)
	}
}
