package solver

import (
	"context"
	"testing"

	"github.com/go-air/gini"
	"github.com/go-air/gini/inter"
	"github.com/go-air/gini/z"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testScopeCounter struct {
	depth *int
	inter.S
}

func (c *testScopeCounter) Test(dst []z.Lit) (result int, out []z.Lit) {
	result, out = c.S.Test(dst)
	*c.depth++
	return
}

func (c *testScopeCounter) Untest() (result int) {
	result = c.S.Untest()
	*c.depth--
	return
}

func TestSearch(t *testing.T) {
	type tc struct {
		Name        string
		Variables   []Variable
		Result      int
		Assumptions []Identifier
	}

	for _, tt := range []tc{
		{
			Name: "all dependency constraints of a variable are guessed",
			Variables: []Variable{
				variable("a", Mandatory(), Dependency("x1", "x2"), Dependency("y1", "y2")),
				variable("x1"),
				variable("x2"),
				variable("y1"),
				variable("y2"),
			},
			Result:      satisfiable,
			Assumptions: []Identifier{"a", "x1", "y1"},
		},
		{
			Name: "conflicting guess backtracks to the next candidate",
			Variables: []Variable{
				variable("a", Mandatory(), Dependency("x", "y")),
				variable("b", Mandatory(), Dependency("p", "q")),
				variable("x", Conflict("p"), Conflict("q")),
				variable("y"),
				variable("p"),
				variable("q"),
			},
			Result:      satisfiable,
			Assumptions: []Identifier{"a", "b", "y", "p"},
		},
		{
			Name: "candidates exhausted",
			Variables: []Variable{
				variable("a", Mandatory(), Dependency("x1", "x2")),
				variable("b", Mandatory(), Dependency("y1", "y2")),
				variable("x1", Conflict("y1"), Conflict("y2")),
				variable("x2", Conflict("y1"), Conflict("y2")),
				variable("y1"),
				variable("y2"),
			},
			Result:      unsatisfiable,
			Assumptions: nil,
		},
	} {
		t.Run(tt.Name, func(t *testing.T) {
			lits, err := newLitMapping(tt.Variables)
			require.NoError(t, err)

			g := gini.New()
			var depth int
			counter := &testScopeCounter{depth: &depth, S: g}

			lits.AddConstraints(counter)
			lits.AssumeConstraints(counter)
			outcome, _ := counter.Test(nil)
			require.Equal(t, unknown, outcome, "baseline must not be decided before the search")

			h := search{s: counter, lits: lits, tracer: DefaultTracer{}}
			var anchors []z.Lit
			for _, id := range lits.AnchorIdentifiers() {
				anchors = append(anchors, lits.LitOf(id))
			}

			result, ms, set := h.Do(context.Background(), anchors)

			assert.Equal(t, tt.Result, result)
			var ids []Identifier
			for _, m := range ms {
				ids = append(ids, lits.VariableOf(m).Identifier())
			}
			assert.Equal(t, tt.Assumptions, ids)
			assert.Len(t, set, len(ms))
			// Every test scope opened by the search was closed
			// again, leaving only the baseline scope.
			assert.Equal(t, 1, depth)
			assert.NoError(t, lits.Error())
		})
	}
}

func TestSearchCancelledContext(t *testing.T) {
	lits, err := newLitMapping([]Variable{
		variable("a", Mandatory(), Dependency("x", "y")),
		variable("x"),
		variable("y"),
	})
	require.NoError(t, err)

	g := gini.New()
	lits.AddConstraints(g)
	lits.AssumeConstraints(g)
	outcome, _ := g.Test(nil)
	require.Equal(t, unknown, outcome)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := search{s: g, lits: lits, tracer: DefaultTracer{}}
	result, ms, _ := h.Do(ctx, []z.Lit{lits.LitOf("a")})
	assert.Equal(t, unknown, result)
	assert.Empty(t, ms)
}
