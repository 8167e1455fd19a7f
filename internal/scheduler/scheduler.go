// Package scheduler implements the data-driven instruction-DAG executor
// (spec §4.11, C11): post-order linearization, a single-threaded
// cooperative execution loop, optional row-level tracing, metrics
// tallying, and a ContextTracker for per-query context-stack hygiene.
//
// The spec's "synchronous until some instruction returns an async value,
// then switches to async mode" describes a JavaScript async-generator
// runtime; Go has no promise/await pair to transition between, so the
// equivalent here is structural: an Instruction's Run always executes
// synchronously to completion, and any node whose output is a lazy
// sequence (vtab.RowIterator) stays lazy until a consumer (Sort, Aggregate,
// a join's inner side, DML) explicitly drains it. The DAG linearization,
// destination tracking, tracing and metrics are carried over unchanged.
package scheduler

import (
	"context"
	"time"

	"quereus/internal/emit"
	"quereus/internal/logging"
	"quereus/internal/vtab"
)

// Tracer receives row-level and call-level events when attached to a
// Scheduler (spec §4.11 "row-level tracing wrapper").
type Tracer interface {
	TraceCall(instructionIndex int, note string, args []any)
	TraceResult(instructionIndex int, note string, result any, err error)
	TraceRow(instructionIndex int, rowIndex int, row any)
}

// InstructionMetrics is the per-instruction tally the spec's metrics mode
// accumulates.
type InstructionMetrics struct {
	Executions int
	ElapsedNs  int64
	InputRows  int
	OutputRows int
}

// Scheduler executes one Instruction DAG to completion.
type Scheduler struct {
	Tracer        Tracer
	MetricsMode   bool
	ContextStack  *ContextTracker

	metrics map[*emit.Instruction]*InstructionMetrics
}

// New returns a Scheduler. Pass a non-nil Tracer to enable row tracing;
// set metricsMode to tally per-instruction execution counters.
func New(tracer Tracer, metricsMode bool) *Scheduler {
	return &Scheduler{Tracer: tracer, MetricsMode: metricsMode, ContextStack: NewContextTracker(), metrics: map[*emit.Instruction]*InstructionMetrics{}}
}

// Run linearizes root's params DAG by post-order (each instruction
// appearing once regardless of fan-in), runs each instruction exactly
// once, and returns the root's result (spec §4.11 steps 1-3).
func (s *Scheduler) Run(ctx context.Context, root *emit.Instruction) (any, error) {
	order := postOrder(root)
	results := make(map[*emit.Instruction]any, len(order))

	for idx, instr := range order {
		args := make([]any, len(instr.Params))
		for i, p := range instr.Params {
			args[i] = results[p]
		}

		if s.Tracer != nil {
			s.Tracer.TraceCall(idx, instr.Note, args)
		}

		start := time.Time{}
		if s.MetricsMode {
			start = time.Now()
		}

		out, err := instr.Run(ctx, args)
		if err == nil && s.Tracer != nil {
			if it, ok := out.(vtab.RowIterator); ok {
				if _, wrapped := it.(*tracingIterator); !wrapped {
					out = &tracingIterator{inner: it, tracer: s.Tracer, instructionIndex: idx}
				}
			}
		}

		if s.MetricsMode {
			s.recordMetrics(instr, start, args, out)
		}
		if s.Tracer != nil {
			s.Tracer.TraceResult(idx, instr.Note, out, err)
		}
		if err != nil {
			return nil, err
		}
		results[instr] = out
	}

	if residual := s.ContextStack.Residual(); len(residual) > 0 {
		logging.Default.Warnf("scheduler: %d residual context(s) left open at end of query: %v", len(residual), residual)
	}

	if s.MetricsMode {
		s.logMetricsSummary(order)
	}

	return results[root], nil
}

func (s *Scheduler) recordMetrics(instr *emit.Instruction, start time.Time, args []any, out any) {
	m, ok := s.metrics[instr]
	if !ok {
		m = &InstructionMetrics{}
		s.metrics[instr] = m
	}
	m.Executions++
	m.ElapsedNs += time.Since(start).Nanoseconds()
	for _, a := range args {
		m.InputRows += countRows(a)
	}
	m.OutputRows += countRows(out)
}

func (s *Scheduler) logMetricsSummary(order []*emit.Instruction) {
	var totalExec, totalIn, totalOut int
	var totalNs int64
	for _, instr := range order {
		if m, ok := s.metrics[instr]; ok {
			totalExec += m.Executions
			totalIn += m.InputRows
			totalOut += m.OutputRows
			totalNs += m.ElapsedNs
		}
	}
	logging.Default.Infof("scheduler: %d instructions, %d executions, %d input rows, %d output rows, %dns elapsed", len(order), totalExec, totalIn, totalOut, totalNs)
}

// Metrics returns the per-instruction tally recorded by the last Run
// (valid only when MetricsMode is true).
func (s *Scheduler) Metrics() map[*emit.Instruction]*InstructionMetrics { return s.metrics }

// postOrder linearizes the DAG rooted at root such that every instruction
// appears exactly once, after all of its params (spec §4.11: "linearizes
// instructions by post-order during construction").
func postOrder(root *emit.Instruction) []*emit.Instruction {
	var order []*emit.Instruction
	visited := map[*emit.Instruction]bool{}
	var visit func(*emit.Instruction)
	visit = func(instr *emit.Instruction) {
		if visited[instr] {
			return
		}
		visited[instr] = true
		for _, p := range instr.Params {
			visit(p)
		}
		order = append(order, instr)
	}
	visit(root)
	return order
}
