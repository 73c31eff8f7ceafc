package solver

import (
	"fmt"
	"io"
)

// SearchPosition is a snapshot of the search at the moment a dead end
// is encountered.
type SearchPosition interface {
	Variables() []Variable
	Conflicts() []AppliedConstraint
}

// Tracer is notified when the search backtracks out of an
// unsatisfiable set of assumptions.
type Tracer interface {
	Trace(p SearchPosition)
}

// DefaultTracer discards trace events.
type DefaultTracer struct{}

func (DefaultTracer) Trace(_ SearchPosition) {
}

// LoggingTracer writes each search position it observes to Writer.
type LoggingTracer struct {
	Writer io.Writer
}

func (t LoggingTracer) Trace(p SearchPosition) {
	fmt.Fprintf(t.Writer, "---\nAssumptions:\n")
	for _, i := range p.Variables() {
		fmt.Fprintf(t.Writer, "- %s\n", i.Identifier())
	}
	fmt.Fprintf(t.Writer, "Conflicts:\n")
	for _, a := range p.Conflicts() {
		fmt.Fprintf(t.Writer, "- %s\n", a)
	}
}
