package emit

import "quereus/internal/errs"

func missingTableError(schemaName, tableName string) error {
	return errs.New(errs.NotFound, "table %s.%s no longer exists", schemaName, tableName)
}

func redefinedTableError(schemaName, tableName string) error {
	return errs.New(errs.Constraint, "table %s.%s was redefined since this plan was prepared", schemaName, tableName)
}
