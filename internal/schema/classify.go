package schema

// ChangeKind classifies how a new table schema relates to an existing one
// of the same name. Adapted from the teacher's internal/diff table
// comparator, which classifies a SchemaDiff as breaking or compatible.
// Its one caller is engine.Database.CreateTable, which treats CREATE TABLE
// IF NOT EXISTS as a no-op for ChangeNone/ChangeCompatible and rejects it
// otherwise; emitted-plan invalidation does not consult it.
type ChangeKind int

const (
	// ChangeNone means old and new are structurally identical: a no-op
	// re-create that requires no invalidation.
	ChangeNone ChangeKind = iota
	// ChangeCompatible means the table was altered but in a way a plan
	// captured against the old shape could still reference safely (e.g. a
	// trailing column appended, an index added).
	ChangeCompatible
	// ChangeBreaking means a captured plan referencing the old schema is
	// no longer valid: columns removed/reordered/retyped, primary key or
	// module changed, or the table was dropped and replaced.
	ChangeBreaking
)

// Classify compares old (nil if the table did not previously exist) against
// new and returns how a schema dependency fingerprinted against old should
// be treated.
func Classify(old, new *TableSchema) ChangeKind {
	if old == nil {
		return ChangeNone
	}
	if new == nil {
		return ChangeBreaking
	}
	if old.ModuleName != new.ModuleName || old.IsView != new.IsView {
		return ChangeBreaking
	}
	if !sameColumnPrefix(old.Columns, new.Columns) {
		return ChangeBreaking
	}
	if !sameKeyColumns(old.PrimaryKey, new.PrimaryKey) {
		return ChangeBreaking
	}
	if len(new.Columns) == len(old.Columns) && len(new.Indexes) == len(old.Indexes) {
		return ChangeNone
	}
	// Extra trailing columns or additional indexes don't invalidate
	// references to the columns/indexes a plan already resolved.
	return ChangeCompatible
}

// sameColumnPrefix reports whether every column present in old still
// exists at the same ordinal with the same name and type in new; new may
// have additional trailing columns.
func sameColumnPrefix(old, new []ColumnDef) bool {
	if len(new) < len(old) {
		return false
	}
	for i, c := range old {
		nc := new[i]
		if c.Name != nc.Name || c.Type.Name != nc.Type.Name {
			return false
		}
	}
	return true
}

func sameKeyColumns(old, new []KeyColumn) bool {
	if len(old) != len(new) {
		return false
	}
	for i, kc := range old {
		if kc.ColumnIndex != new[i].ColumnIndex || kc.Desc != new[i].Desc {
			return false
		}
	}
	return true
}
