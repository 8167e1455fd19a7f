// Package planner lowers a tidb SQL AST (spec §1: "the SQL lexer and
// grammar" is an external collaborator; "the AST it emits" is this
// package's input) into the C8 plan algebra of internal/plan. It mirrors
// the teacher's internal/parser/mysql.Parser: one parser.New() instance,
// fed through ast.StmtNode type switches, building application types from
// AST fields rather than re-implementing SQL parsing.
package planner

import (
	"fmt"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/opcode"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"

	"quereus/internal/errs"
	"quereus/internal/plan"
	"quereus/internal/schema"
	"quereus/internal/types"
)

// Builder lowers parsed statements against a fixed schema Catalog.
type Builder struct {
	catalog *schema.Catalog
	parser  *parser.Parser
}

// New returns a Builder bound to catalog for name resolution.
func New(catalog *schema.Catalog) *Builder {
	return &Builder{catalog: catalog, parser: parser.New()}
}

// ParseStatements splits sql into individual AST statements, exactly as
// the teacher's Parser.Parse does with p.p.Parse(sql, "", "") (spec §1:
// statement batching is the caller's concern, not the grammar's).
func (b *Builder) ParseStatements(sql string) ([]ast.StmtNode, error) {
	stmts, _, err := b.parser.Parse(sql, "", "")
	if err != nil {
		return nil, errs.Wrap(errs.Parse, err, "parsing statement")
	}
	return stmts, nil
}

// Build lowers one parsed statement into a plan.Node.
func (b *Builder) Build(stmt ast.StmtNode) (plan.Node, error) {
	switch s := stmt.(type) {
	case *ast.SelectStmt:
		return b.buildSelect(s)
	case *ast.InsertStmt:
		return b.buildInsert(s)
	case *ast.UpdateStmt:
		return b.buildUpdate(s)
	case *ast.DeleteStmt:
		return b.buildDelete(s)
	case *ast.CreateTableStmt:
		return b.buildCreateTable(s)
	case *ast.CreateIndexStmt:
		return b.buildCreateIndex(s)
	default:
		return nil, errs.New(errs.Unsupported, "unsupported statement type %T", stmt)
	}
}

// resolveTable looks up a table by its ast.TableName, defaulting to the
// "main" schema when unqualified (spec §4.13 schema namespacing).
func (b *Builder) resolveTable(tn *ast.TableName) (*schema.TableSchema, error) {
	schemaName := tn.Schema.O
	tbl, ok := b.catalog.Table(schemaName, tn.Name.O)
	if !ok {
		return nil, errs.New(errs.NotFound, "no such table: %s", tn.Name.O)
	}
	return tbl, nil
}

// singleSourceTable extracts the table name and alias from a plain table
// source, reporting false for anything else (joins are lowered in
// buildFrom).
func singleSourceTable(node ast.ResultSetNode) (*ast.TableName, string, bool) {
	ts, ok := node.(*ast.TableSource)
	if !ok {
		return nil, "", false
	}
	tn, ok := ts.Source.(*ast.TableName)
	if !ok {
		return nil, "", false
	}
	alias := tn.Name.O
	if ts.AsName.O != "" {
		alias = ts.AsName.O
	}
	return tn, alias, true
}

func binOpFor(op opcode.Op) (types.Op, bool) {
	switch op {
	case opcode.EQ:
		return types.OpEq, true
	case opcode.NE:
		return types.OpNe, true
	case opcode.LT:
		return types.OpLt, true
	case opcode.LE:
		return types.OpLe, true
	case opcode.GT:
		return types.OpGt, true
	case opcode.GE:
		return types.OpGe, true
	default:
		return "", false
	}
}

func arithOpName(op opcode.Op) string {
	switch op {
	case opcode.Plus:
		return "+"
	case opcode.Minus:
		return "-"
	case opcode.Mul:
		return "*"
	case opcode.Div:
		return "/"
	case opcode.Mod:
		return "%"
	case opcode.And:
		return "AND"
	case opcode.Or:
		return "OR"
	default:
		return fmt.Sprintf("op(%d)", op)
	}
}
