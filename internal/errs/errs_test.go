package errs_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quereus/internal/errs"
)

func TestNewFormatsMessageAndKind(t *testing.T) {
	err := errs.New(errs.NotFound, "table %s not found", "widgets")
	assert.Equal(t, "NOTFOUND: table widgets not found", err.Error())
}

func TestWithLocationAppendsPosition(t *testing.T) {
	err := errs.New(errs.Parse, "unexpected token").WithLocation(3, 7)
	assert.Contains(t, err.Error(), "(line 3, col 7)")
}

func TestWrapPreservesCauseChainForUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	wrapped := errs.Wrap(errs.IO, cause, "writing checkpoint")
	assert.Same(t, cause, errors.Unwrap(wrapped))
}

func TestKindOfExtractsKindThroughChain(t *testing.T) {
	wrapped := errs.Wrap(errs.Constraint, errors.New("dup key"), "insert failed")
	assert.Equal(t, errs.Constraint, errs.KindOf(wrapped))
}

func TestKindOfDefaultsToInternalForPlainErrors(t *testing.T) {
	assert.Equal(t, errs.Internal, errs.KindOf(errors.New("boom")))
}

func TestIsFindsKindAcrossCauseChain(t *testing.T) {
	inner := errs.New(errs.NotFound, "missing table")
	outer := errs.Wrap(errs.Internal, inner, "during planning")
	assert.True(t, errs.Is(outer, errs.NotFound))
	assert.False(t, errs.Is(outer, errs.Parse))
}

func TestFormatJoinsCauseChain(t *testing.T) {
	inner := errors.New("disk full")
	outer := errs.Wrap(errs.IO, inner, "flush failed")
	out := errs.Format(outer)
	require.Contains(t, out, "IO: flush failed")
	require.Contains(t, out, "caused by: disk full")
}

func TestFormatOfNilIsEmpty(t *testing.T) {
	assert.Empty(t, errs.Format(nil))
}
