package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/marmotpm/marmot/pkg/solver"
)

// Conflict is the failure surface of an unsatisfiable resolution: a
// causal chain of constraint applications, in domain terms, that is
// sufficient to prove no solution exists. After minimization the
// chain is locally minimal: removing any single step leaves evidence
// insufficient to prove unsatisfiability.
type Conflict struct {
	// Steps are the human-readable causal steps.
	Steps []string

	applied []solver.AppliedConstraint
}

func newConflict(applied []solver.AppliedConstraint) *Conflict {
	steps := make([]string, len(applied))
	for i, a := range applied {
		steps[i] = a.String()
	}
	return &Conflict{Steps: steps, applied: applied}
}

func (c *Conflict) Error() string {
	const msg = "packages are not compatible"
	if len(c.Steps) == 0 {
		return msg
	}
	return fmt.Sprintf("%s: %s", msg, strings.Join(c.Steps, "; "))
}

// IsConflict reports whether err is a resolution conflict, as opposed
// to a malformed task or an internal fault.
func IsConflict(err error) bool {
	_, ok := err.(*Conflict)
	return ok
}

// minimize reduces conflict evidence to a locally minimal subset by
// deletion: each step is removed in turn and the reduced problem
// re-solved; steps whose removal leaves the problem unsatisfiable are
// redundant and dropped permanently. Minimization is worst-case
// expensive, so it is capped; past the cap the full evidence is
// returned rather than hanging.
func (e *Engine) minimize(ctx context.Context, p *problem, c *Conflict) *Conflict {
	working := append([]solver.AppliedConstraint(nil), c.applied...)
	rounds := 0
	for i := 0; i < len(working); {
		if rounds >= e.maxMinimizeRounds || ctx.Err() != nil {
			return newConflict(c.applied)
		}
		key := appliedKey{
			subject:    working[i].Variable.Identifier(),
			constraint: working[i].Constraint,
		}
		p.exclude(key)
		rounds++
		_, err := e.backend.Solve(ctx, p)
		if IsConflict(err) {
			// Still unsatisfiable without this step, so it is
			// not part of a minimal explanation.
			working = append(working[:i], working[i+1:]...)
			continue
		}
		p.unexclude(key)
		i++
	}
	return newConflict(working)
}
