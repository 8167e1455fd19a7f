package planner

import (
	"strings"

	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/types"

	"quereus/internal/errs"
	"quereus/internal/plan"
	"quereus/internal/schema"
	qtypes "quereus/internal/types"
)

// buildCreateTable lowers a CREATE TABLE statement into a plan.CreateTable
// node, mirroring the teacher's Parser.convertCreateTable: walk Cols for
// column definitions, then Constraints for table-level PRIMARY KEY/UNIQUE
// (spec §4.6/§4.13 schema objects).
func (b *Builder) buildCreateTable(s *ast.CreateTableStmt) (plan.Node, error) {
	tbl := &schema.TableSchema{
		Name:        s.Table.Name.O,
		SchemaName:  s.Table.Schema.O,
		ModuleName:  "memory",
	}

	for _, colDef := range s.Cols {
		col := schema.ColumnDef{
			Name:     colDef.Name.Name.O,
			Type:     logicalTypeFor(colDef.Tp),
			Nullable: true,
		}
		var isPK bool
		for _, opt := range colDef.Options {
			switch opt.Tp {
			case ast.ColumnOptionNotNull:
				col.Nullable = false
			case ast.ColumnOptionNull:
				col.Nullable = true
			case ast.ColumnOptionPrimaryKey:
				isPK = true
				col.Nullable = false
			}
		}
		col.Type.Nullable = col.Nullable
		tbl.Columns = append(tbl.Columns, col)
		if isPK {
			idx := len(tbl.Columns) - 1
			tbl.PrimaryKey = append(tbl.PrimaryKey, schema.KeyColumn{ColumnIndex: idx})
		}
	}

	for _, c := range s.Constraints {
		switch c.Tp {
		case ast.ConstraintPrimaryKey:
			tbl.PrimaryKey = nil
			for _, key := range c.Keys {
				idx := tbl.ColumnIndex(key.Column.Name.O)
				if idx >= 0 {
					tbl.PrimaryKey = append(tbl.PrimaryKey, schema.KeyColumn{ColumnIndex: idx})
				}
			}
		case ast.ConstraintUniq, ast.ConstraintUniqKey, ast.ConstraintUniqIndex, ast.ConstraintIndex, ast.ConstraintKey:
			var cols []schema.KeyColumn
			for _, key := range c.Keys {
				idx := tbl.ColumnIndex(key.Column.Name.O)
				if idx >= 0 {
					cols = append(cols, schema.KeyColumn{ColumnIndex: idx})
				}
			}
			name := c.Name
			if name == "" {
				name = strings.Join(colNames(tbl, cols), "_") + "_idx"
			}
			tbl.Indexes = append(tbl.Indexes, schema.IndexSchema{Name: name, Columns: cols})
		}
	}

	return &plan.CreateTable{TableSchema: tbl, ModuleName: tbl.ModuleName, IfNotExists: s.IfNotExists}, nil
}

// buildCreateIndex lowers a CREATE INDEX statement against an
// already-registered table, resolving each indexed column by name.
func (b *Builder) buildCreateIndex(s *ast.CreateIndexStmt) (plan.Node, error) {
	tbl, err := b.resolveTable(s.Table)
	if err != nil {
		return nil, err
	}

	var cols []schema.KeyColumn
	for _, part := range s.IndexPartSpecifications {
		if part.Column == nil {
			return nil, errs.New(errs.Unsupported, "expression index parts are not supported")
		}
		idx := tbl.ColumnIndex(part.Column.Name.O)
		if idx < 0 {
			return nil, errs.New(errs.NotFound, "no such column: %s", part.Column.Name.O)
		}
		cols = append(cols, schema.KeyColumn{ColumnIndex: idx})
	}

	name := s.IndexName
	if name == "" {
		name = strings.Join(colNames(tbl, cols), "_") + "_idx"
	}

	return &plan.CreateIndex{
		SchemaName:  tbl.SchemaName,
		TableName:   tbl.Name,
		Index:       schema.IndexSchema{Name: name, Columns: cols},
		IfNotExists: s.IfNotExists,
	}, nil
}

func colNames(tbl *schema.TableSchema, cols []schema.KeyColumn) []string {
	out := make([]string, len(cols))
	for i, kc := range cols {
		out[i] = tbl.Columns[kc.ColumnIndex].Name
	}
	return out
}

// logicalTypeFor maps a tidb parser FieldType's rendered type name (the
// same colDef.Tp.String() the teacher reads in
// internal/parser/mysql/column.go, there fed through core.NormalizeDataType)
// onto the engine's own logical type catalog (spec §3).
func logicalTypeFor(ft *types.FieldType) qtypes.LogicalType {
	rendered := strings.ToUpper(ft.String())
	keyword := rendered
	if paren := strings.IndexAny(rendered, "( "); paren >= 0 {
		keyword = rendered[:paren]
	}
	switch keyword {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT", "YEAR":
		return qtypes.LogicalType{Name: qtypes.LogicalInteger}
	case "FLOAT", "DOUBLE", "DECIMAL", "NEWDECIMAL":
		return qtypes.LogicalType{Name: qtypes.LogicalReal}
	case "VARCHAR", "CHAR", "TEXT", "TINYTEXT", "MEDIUMTEXT", "LONGTEXT", "ENUM", "SET":
		return qtypes.LogicalType{Name: qtypes.LogicalText}
	case "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BINARY", "VARBINARY":
		return qtypes.LogicalType{Name: qtypes.LogicalBlob}
	case "JSON":
		return qtypes.LogicalType{Name: qtypes.LogicalJSON}
	case "DATETIME", "TIMESTAMP", "DATE", "TIME":
		return qtypes.LogicalType{Name: qtypes.LogicalTime}
	default:
		return qtypes.LogicalType{Name: qtypes.LogicalAny}
	}
}
