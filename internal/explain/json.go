package explain

import (
	"encoding/json"

	"quereus/internal/emit"
	"quereus/internal/errs"
	"quereus/internal/plan"
)

type jsonFormatter struct{}

// planNode is the JSON-serializable shape of one explained plan node. Like
// vtab/memory's indexMeta, this is a narrow metadata payload with no
// domain-specific codec library in the retrieval pack, so encoding/json is
// the justified stdlib choice (see DESIGN.md).
type planNode struct {
	Kind     string     `json:"kind"`
	Detail   string     `json:"detail"`
	Children []planNode `json:"children,omitempty"`
}

type instrNode struct {
	Note   string      `json:"note"`
	Params []instrNode `json:"params,omitempty"`
}

func (jsonFormatter) FormatPlan(node plan.Node) (string, error) {
	tree := toPlanNode(node)
	out, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return "", errs.Wrap(errs.Internal, err, "encoding plan explanation")
	}
	return string(out), nil
}

func (jsonFormatter) FormatInstructions(root *emit.Instruction) (string, error) {
	tree := toInstrNode(root, map[*emit.Instruction]bool{})
	out, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return "", errs.Wrap(errs.Internal, err, "encoding instruction explanation")
	}
	return string(out), nil
}

func toPlanNode(node plan.Node) planNode {
	pn := planNode{Kind: nodeKind(node), Detail: describeNode(node)}
	for _, c := range node.Children() {
		pn.Children = append(pn.Children, toPlanNode(c))
	}
	return pn
}

func nodeKind(node plan.Node) string {
	switch node.(type) {
	case *plan.TableScan:
		return "TableScan"
	case *plan.Filter:
		return "Filter"
	case *plan.Project:
		return "Project"
	case *plan.Values:
		return "Values"
	case *plan.SingleRow:
		return "SingleRow"
	case *plan.NestedLoopJoin:
		return "NestedLoopJoin"
	case *plan.Aggregate:
		return "Aggregate"
	case *plan.Sort:
		return "Sort"
	case *plan.Limit:
		return "Limit"
	case *plan.TableValuedFunctionCall:
		return "TableValuedFunctionCall"
	case *plan.DML:
		return "DML"
	case *plan.CreateTable:
		return "CreateTable"
	case *plan.Block:
		return "Block"
	default:
		return "Unknown"
	}
}

func toInstrNode(instr *emit.Instruction, seen map[*emit.Instruction]bool) instrNode {
	in := instrNode{Note: instr.Note}
	if seen[instr] {
		in.Note += " (shared)"
		return in
	}
	seen[instr] = true
	for _, p := range instr.Params {
		in.Params = append(in.Params, toInstrNode(p, seen))
	}
	return in
}
