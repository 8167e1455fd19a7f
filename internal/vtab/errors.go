package vtab

import "quereus/internal/errs"

func errInvalidAccessPlan(format string, args ...any) error {
	return errs.New(errs.Internal, "invalid access plan: "+format, args...)
}
