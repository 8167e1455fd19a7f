package engine_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quereus/internal/engine"
)

func TestDefaultOptionsUsesMemoryModule(t *testing.T) {
	opts := engine.DefaultOptions()
	assert.Equal(t, "memory", opts.DefaultVtabModule)
	assert.True(t, opts.DefaultColumnNullability)
	assert.False(t, opts.RuntimeStats)
}

func TestLoadOptionsOverridesOnlyGivenKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "options.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
runtime_stats = true
default_vtab_module = "custom"
`), 0o644))

	opts, err := engine.LoadOptions(path)
	require.NoError(t, err)
	assert.True(t, opts.RuntimeStats)
	assert.Equal(t, "custom", opts.DefaultVtabModule)
	assert.True(t, opts.DefaultColumnNullability, "unspecified keys must keep their default")
}

func TestLoadOptionsMissingFileFails(t *testing.T) {
	_, err := engine.LoadOptions(filepath.Join(t.TempDir(), "nosuch.toml"))
	require.Error(t, err)
}
