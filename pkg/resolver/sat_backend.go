package resolver

import (
	"context"

	"github.com/pkg/errors"

	"github.com/marmotpm/marmot/pkg/conda"
	"github.com/marmotpm/marmot/pkg/solver"
)

// SATBackend delegates the search to the gini SAT solver through the
// solver package. Each invocation constructs its own solver instance
// and constraint circuit, uses it for the duration of the call, and
// abandons it on every exit path; instances are never pooled or shared
// across calls because the solver's internal state is not reentrant.
type SATBackend struct {
	// Tracer, when set, observes backtracking during the search.
	Tracer solver.Tracer
}

var _ Backend = &SATBackend{}

func (b *SATBackend) Name() string {
	return "sat"
}

func (b *SATBackend) Solve(ctx context.Context, p *problem) ([]*conda.PackageRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	options := []solver.Option{solver.WithInput(p.variableSlice())}
	if b.Tracer != nil {
		options = append(options, solver.WithTracer(b.Tracer))
	}
	s, err := solver.New(options...)
	if err != nil {
		return nil, newBackendFault(b.Name(), err)
	}

	selected, err := s.Solve(ctx)
	if err != nil {
		var unsat solver.NotSatisfiable
		if errors.As(err, &unsat) {
			return nil, newConflict(unsat)
		}
		if errors.Is(err, solver.Incomplete) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, newBackendFault(b.Name(), err)
	}
	return p.recordsOf(selected), nil
}
