package resolver

import (
	"context"

	"github.com/marmotpm/marmot/pkg/conda"
)

// Backend is one interchangeable solving strategy. Given a translated
// problem it returns a set of records satisfying every constraint, or
// an error: *Conflict when the problem is unsatisfiable, *BackendFault
// on internal failure, or the context's error on cancellation.
//
// All backends are sound (every returned record satisfies every
// applicable constraint, at most one record per name) and complete
// relative to the candidate pool (if any valid selection exists, one
// is found). Backends may differ in which valid selection they return
// first; the engine's tie-break pass makes the final choice
// backend-independent.
type Backend interface {
	Name() string
	Solve(ctx context.Context, p *problem) ([]*conda.PackageRecord, error)
}
