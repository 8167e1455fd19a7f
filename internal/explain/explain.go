// Package explain renders a plan.Node tree and its emitted instruction DAG
// for EXPLAIN/EXPLAIN QUERY PLAN support (spec §4.9/§4.10 "Explains" field,
// §4.11 tracing), mirroring the teacher's internal/output package: a small
// Format enum, a Formatter interface with one method per renderable shape,
// and a factory picking the concrete formatter by name.
package explain

import (
	"fmt"
	"strings"

	"quereus/internal/emit"
	"quereus/internal/plan"
)

// Format names a supported rendering.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Formatter renders a plan tree or instruction DAG for EXPLAIN output.
type Formatter interface {
	FormatPlan(node plan.Node) (string, error)
	FormatInstructions(root *emit.Instruction) (string, error)
}

// NewFormatter returns the Formatter named by name, defaulting to text when
// name is empty.
func NewFormatter(name string) (Formatter, error) {
	switch Format(strings.ToLower(strings.TrimSpace(name))) {
	case "", FormatText:
		return textFormatter{}, nil
	case FormatJSON:
		return jsonFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported explain format: %s; use 'text' or 'json'", name)
	}
}
