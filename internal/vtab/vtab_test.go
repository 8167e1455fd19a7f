package vtab_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quereus/internal/vtab"
)

func TestRegistryLookupIsCaseInsensitive(t *testing.T) {
	reg := vtab.NewRegistry()
	var mod vtab.Module
	reg.Register("Memory", mod, "aux-data")

	got, aux, err := reg.Lookup("MEMORY")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, "aux-data", aux)
}

func TestRegistryLookupUnknownModuleFails(t *testing.T) {
	reg := vtab.NewRegistry()
	_, _, err := reg.Lookup("nosuch")
	require.Error(t, err)
}

func TestBestAccessPlanResultValidateRejectsLengthMismatch(t *testing.T) {
	result := vtab.BestAccessPlanResult{HandledFilters: []bool{true}}
	err := result.Validate(2)
	require.Error(t, err)
}

func TestBestAccessPlanResultValidateRejectsSetWithMultipleRows(t *testing.T) {
	result := vtab.BestAccessPlanResult{IsSet: true, Rows: 5}
	err := result.Validate(0)
	require.Error(t, err)
}

func TestBestAccessPlanResultValidateAcceptsWellFormedResult(t *testing.T) {
	result := vtab.BestAccessPlanResult{IsSet: true, Rows: 1, HandledFilters: []bool{true, false}}
	require.NoError(t, result.Validate(2))
}
