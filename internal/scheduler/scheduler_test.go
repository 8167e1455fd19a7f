package scheduler_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quereus/internal/emit"
	"quereus/internal/scheduler"
)

func leaf(note string, value any) *emit.Instruction {
	return &emit.Instruction{
		Note: note,
		Run:  func(ctx context.Context, args []any) (any, error) { return value, nil },
	}
}

func TestRunLinearizesAndReturnsRootResult(t *testing.T) {
	a := leaf("a", 1)
	b := leaf("b", 2)
	sum := &emit.Instruction{
		Note:   "sum",
		Params: []*emit.Instruction{a, b},
		Run: func(ctx context.Context, args []any) (any, error) {
			return args[0].(int) + args[1].(int), nil
		},
	}

	s := scheduler.New(nil, false)
	out, err := s.Run(context.Background(), sum)
	require.NoError(t, err)
	assert.Equal(t, 3, out)
}

func TestRunDedupsSharedInstructionAcrossParents(t *testing.T) {
	calls := 0
	shared := &emit.Instruction{
		Note: "shared",
		Run: func(ctx context.Context, args []any) (any, error) {
			calls++
			return 7, nil
		},
	}
	left := &emit.Instruction{
		Note:   "left",
		Params: []*emit.Instruction{shared},
		Run:    func(ctx context.Context, args []any) (any, error) { return args[0], nil },
	}
	right := &emit.Instruction{
		Note:   "right",
		Params: []*emit.Instruction{shared},
		Run:    func(ctx context.Context, args []any) (any, error) { return args[0], nil },
	}
	root := &emit.Instruction{
		Note:   "root",
		Params: []*emit.Instruction{left, right},
		Run: func(ctx context.Context, args []any) (any, error) {
			return args[0].(int) + args[1].(int), nil
		},
	}

	s := scheduler.New(nil, false)
	out, err := s.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 14, out)
	assert.Equal(t, 1, calls, "shared instruction must run exactly once despite two parents")
}

func TestRunStopsOnFirstError(t *testing.T) {
	boom := &emit.Instruction{
		Note: "boom",
		Run:  func(ctx context.Context, args []any) (any, error) { return nil, errors.New("boom") },
	}
	downstream := &emit.Instruction{
		Note:   "downstream",
		Params: []*emit.Instruction{boom},
		Run:    func(ctx context.Context, args []any) (any, error) { return "unreachable", nil },
	}

	s := scheduler.New(nil, false)
	_, err := s.Run(context.Background(), downstream)
	require.Error(t, err)
}

func TestRunWithMetricsModeRecordsExecutions(t *testing.T) {
	a := leaf("a", 1)
	s := scheduler.New(nil, true)
	_, err := s.Run(context.Background(), a)
	require.NoError(t, err)

	m := s.Metrics()[a]
	require.NotNil(t, m)
	assert.Equal(t, 1, m.Executions)
}

// recordingTracer captures call/result events to verify the scheduler wires
// a Tracer through every instruction exactly once.
type recordingTracer struct {
	calls, results int
}

func (r *recordingTracer) TraceCall(instructionIndex int, note string, args []any)             { r.calls++ }
func (r *recordingTracer) TraceResult(instructionIndex int, note string, result any, err error) { r.results++ }
func (r *recordingTracer) TraceRow(instructionIndex int, rowIndex int, row any)                 {}

func TestRunInvokesTracerForEveryInstruction(t *testing.T) {
	a := leaf("a", 1)
	b := leaf("b", 2)
	root := &emit.Instruction{
		Note:   "root",
		Params: []*emit.Instruction{a, b},
		Run:    func(ctx context.Context, args []any) (any, error) { return nil, nil },
	}

	tracer := &recordingTracer{}
	s := scheduler.New(tracer, false)
	_, err := s.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 3, tracer.calls)
	assert.Equal(t, 3, tracer.results)
}
