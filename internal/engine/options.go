package engine

import (
	"github.com/BurntSushi/toml"

	"quereus/internal/errs"
)

// Options is the database's runtime configuration (spec §6.2): loadable
// from a TOML file the way the teacher's own config layer decodes its
// settings with BurntSushi/toml, rather than a bespoke flag parser.
type Options struct {
	RuntimeStats            bool   `toml:"runtime_stats"`
	ValidatePlan            bool   `toml:"validate_plan"`
	DefaultVtabModule       string `toml:"default_vtab_module"`
	DefaultVtabArgs         []string `toml:"default_vtab_args"`
	DefaultColumnNullability bool  `toml:"default_column_nullability"`
	TracePlanStack          bool   `toml:"trace_plan_stack"`
}

// DefaultOptions returns the engine's out-of-the-box configuration: the
// "memory" module as the default vtab backend, nullable columns by
// default, and every diagnostics flag (RuntimeStats, ValidatePlan,
// TracePlanStack) off.
func DefaultOptions() Options {
	return Options{
		DefaultVtabModule:        "memory",
		DefaultColumnNullability: true,
	}
}

// LoadOptions decodes a TOML options file, starting from DefaultOptions so
// an omitted key keeps its default rather than zeroing out.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	if _, err := toml.DecodeFile(path, &opts); err != nil {
		return Options{}, errs.Wrap(errs.IO, err, "loading options from %s", path)
	}
	return opts, nil
}
