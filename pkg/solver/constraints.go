package solver

import (
	"fmt"
	"strings"

	"github.com/go-air/gini/logic"
	"github.com/go-air/gini/z"
)

// Constraint implementations limit the circumstances under which a
// particular Variable can appear in a solution.
type Constraint interface {
	String(subject Identifier) string
	apply(c *logic.C, lm *litMapping, subject Identifier) z.Lit
	order() []Identifier
	anchor() bool
}

// zeroConstraint is returned by ConstraintOf in error cases.
type zeroConstraint struct{}

var _ Constraint = zeroConstraint{}

func (zeroConstraint) String(subject Identifier) string {
	return ""
}

func (zeroConstraint) apply(c *logic.C, lm *litMapping, subject Identifier) z.Lit {
	return z.LitNull
}

func (zeroConstraint) order() []Identifier {
	return nil
}

func (zeroConstraint) anchor() bool {
	return false
}

// AppliedConstraint values compose a single Constraint with the
// Variable it applies to.
type AppliedConstraint struct {
	Variable   Variable
	Constraint Constraint
}

// String implements fmt.Stringer and returns a human-readable message
// representing the receiver.
func (a AppliedConstraint) String() string {
	return a.Constraint.String(a.Variable.Identifier())
}

type mandatory struct{}

func (c mandatory) String(subject Identifier) string {
	return fmt.Sprintf("%s is mandatory", subject)
}

func (c mandatory) apply(_ *logic.C, lm *litMapping, subject Identifier) z.Lit {
	return lm.LitOf(subject)
}

func (c mandatory) order() []Identifier {
	return nil
}

func (c mandatory) anchor() bool {
	return true
}

// Mandatory returns a Constraint that will permit only solutions that
// contain a particular Variable.
func Mandatory() Constraint {
	return mandatory{}
}

type prohibited struct{}

func (c prohibited) String(subject Identifier) string {
	return fmt.Sprintf("%s is prohibited", subject)
}

func (c prohibited) apply(_ *logic.C, lm *litMapping, subject Identifier) z.Lit {
	return lm.LitOf(subject).Not()
}

func (c prohibited) order() []Identifier {
	return nil
}

func (c prohibited) anchor() bool {
	return false
}

// Prohibited returns a Constraint that will reject any solution that
// contains a particular Variable. Callers may also decide to omit
// a Variable from input to Solve rather than apply such a Constraint.
func Prohibited() Constraint {
	return prohibited{}
}

type dependency struct {
	ids []Identifier
}

func (c *dependency) String(subject Identifier) string {
	if len(c.ids) == 0 {
		return fmt.Sprintf("%s has a dependency without any candidates to satisfy it", subject)
	}
	s := make([]string, len(c.ids))
	for i, each := range c.ids {
		s[i] = string(each)
	}
	return fmt.Sprintf("%s requires at least one of %s", subject, strings.Join(s, ", "))
}

func (c *dependency) apply(cc *logic.C, lm *litMapping, subject Identifier) z.Lit {
	m := lm.LitOf(subject)
	if len(c.ids) == 0 {
		// A dependency with no candidates makes its subject
		// unselectable.
		return m.Not()
	}
	clause := make([]z.Lit, 0, len(c.ids)+1)
	clause = append(clause, m.Not())
	for _, each := range c.ids {
		clause = append(clause, lm.LitOf(each))
	}
	return cc.Ors(clause...)
}

func (c *dependency) order() []Identifier {
	return c.ids
}

func (c *dependency) anchor() bool {
	return false
}

// Dependency returns a Constraint that will only permit solutions
// containing a given Variable on the condition that at least one
// of the Variables identified by the given Identifiers also
// appears in the solution. Identifiers appearing earlier in the
// argument list have higher preference than those appearing later.
// Each call returns a distinct Constraint value.
func Dependency(ids ...Identifier) Constraint {
	return &dependency{ids: ids}
}

type conflict Identifier

func (c conflict) String(subject Identifier) string {
	return fmt.Sprintf("%s conflicts with %s", subject, c)
}

func (c conflict) apply(cc *logic.C, lm *litMapping, subject Identifier) z.Lit {
	return cc.Ors(lm.LitOf(subject).Not(), lm.LitOf(Identifier(c)).Not())
}

func (c conflict) order() []Identifier {
	return nil
}

func (c conflict) anchor() bool {
	return false
}

// Conflict returns a Constraint that will permit solutions containing
// either the constrained Variable, the Variable identified by
// the given Identifier, or neither, but not both.
func Conflict(id Identifier) Constraint {
	return conflict(id)
}

type atMost struct {
	n   int
	ids []Identifier
}

func (c *atMost) String(subject Identifier) string {
	s := make([]string, len(c.ids))
	for i, each := range c.ids {
		s[i] = string(each)
	}
	return fmt.Sprintf("%s permits at most %d of %s", subject, c.n, strings.Join(s, ", "))
}

func (c *atMost) apply(cc *logic.C, lm *litMapping, subject Identifier) z.Lit {
	ms := make([]z.Lit, len(c.ids))
	for i, each := range c.ids {
		ms[i] = lm.LitOf(each)
	}
	return cc.CardSort(ms).Leq(c.n)
}

func (c *atMost) order() []Identifier {
	return nil
}

func (c *atMost) anchor() bool {
	return false
}

// AtMost returns a Constraint that forbids solutions containing more
// than n of the Variables identified by the given Identifiers.
func AtMost(n int, ids ...Identifier) Constraint {
	return &atMost{
		n:   n,
		ids: ids,
	}
}
