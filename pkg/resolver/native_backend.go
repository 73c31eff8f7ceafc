package resolver

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/marmotpm/marmot/pkg/conda"
	"github.com/marmotpm/marmot/pkg/solver"
)

const defaultNativeBudget = 1 << 20

// NativeBackend is an in-process decision/backtrack search operating
// directly over the translated problem's domain tables, with no
// external solver involved. Candidates are tried in preference order,
// so the first solution found is already close to the preferred one.
type NativeBackend struct {
	// Budget caps the number of search steps before the attempt is
	// abandoned as a fault. Zero means the default budget.
	Budget int
}

var _ Backend = &NativeBackend{}

func (b *NativeBackend) Name() string {
	return "native"
}

func (b *NativeBackend) Solve(ctx context.Context, p *problem) ([]*conda.PackageRecord, error) {
	budget := b.Budget
	if budget <= 0 {
		budget = defaultNativeBudget
	}
	st := &nativeState{
		p:        p,
		ctx:      ctx,
		budget:   budget,
		selected: make(map[solver.Identifier]bool),
		evidence: make(map[appliedKey]solver.AppliedConstraint),
	}

	// Mandatory variables have no alternatives; a blocked one is an
	// immediate conflict.
	for _, id := range p.mandatoryIDs() {
		if st.selected[id] {
			continue
		}
		if blocker, ok := st.blockerOf(id); ok {
			st.recordMandatoryEvidence()
			st.record(blocker)
			return nil, newConflict(st.sortedEvidence())
		}
		st.selectVar(id)
	}

	ok, err := st.search()
	if err != nil {
		return nil, err
	}
	if !ok {
		st.recordMandatoryEvidence()
		return nil, newConflict(st.sortedEvidence())
	}

	var records []*conda.PackageRecord
	for _, id := range st.order {
		if r, found := p.records[id]; found {
			records = append(records, r)
		}
	}
	return records, nil
}

type nativeState struct {
	p        *problem
	ctx      context.Context
	budget   int
	steps    int
	selected map[solver.Identifier]bool
	order    []solver.Identifier
	evidence map[appliedKey]solver.AppliedConstraint
}

// search satisfies dependency edges depth-first, trying candidates in
// the order they appear within each edge. It returns false when the
// current partial selection cannot be extended to a full solution.
func (s *nativeState) search() (bool, error) {
	if err := s.ctx.Err(); err != nil {
		return false, err
	}
	s.steps++
	if s.steps > s.budget {
		return false, newBackendFault("native", errors.New("search budget exhausted"))
	}

	edge, found := s.firstUnsatisfied()
	if !found {
		return true, nil
	}

	for _, candidate := range edge.candidates {
		if blocker, blocked := s.blockerOf(candidate); blocked {
			s.record(blocker)
			continue
		}
		s.selectVar(candidate)
		ok, err := s.search()
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		s.unselectVar(candidate)
	}

	s.record(appliedKey{subject: edge.subject, constraint: edge.constraint})
	return false, nil
}

// firstUnsatisfied returns the earliest dependency edge of a selected
// variable that no selected candidate satisfies yet.
func (s *nativeState) firstUnsatisfied() (depEdge, bool) {
	for _, id := range s.order {
		for _, edge := range s.p.deps[id] {
			if s.p.isExcluded(edge.subject, edge.constraint) {
				continue
			}
			satisfied := false
			for _, candidate := range edge.candidates {
				if s.selected[candidate] {
					satisfied = true
					break
				}
			}
			if !satisfied {
				return edge, true
			}
		}
	}
	return depEdge{}, false
}

// blockerOf reports whether id is currently unselectable, returning
// the constraint application responsible.
func (s *nativeState) blockerOf(id solver.Identifier) (appliedKey, bool) {
	if c, ok := s.p.prohibited[id]; ok && !s.p.isExcluded(id, c) {
		return appliedKey{subject: id, constraint: c}, true
	}
	for _, edge := range s.p.conflicts[id] {
		if s.p.isExcluded(edge.subject, edge.constraint) {
			continue
		}
		if s.selected[edge.other] {
			return appliedKey{subject: edge.subject, constraint: edge.constraint}, true
		}
	}
	for _, index := range s.p.groupsByMember[id] {
		group := s.p.groups[index]
		if s.p.isExcluded(group.subject, group.constraint) {
			continue
		}
		count := 0
		for _, member := range group.ids {
			if s.selected[member] {
				count++
			}
		}
		if count >= group.limit {
			return appliedKey{subject: group.subject, constraint: group.constraint}, true
		}
	}
	return appliedKey{}, false
}

func (s *nativeState) selectVar(id solver.Identifier) {
	s.selected[id] = true
	s.order = append(s.order, id)
}

func (s *nativeState) unselectVar(id solver.Identifier) {
	delete(s.selected, id)
	s.order = s.order[:len(s.order)-1]
}

func (s *nativeState) record(key appliedKey) {
	if _, ok := s.evidence[key]; ok {
		return
	}
	v, found := s.p.varsByID[key.subject]
	if !found {
		return
	}
	s.evidence[key] = solver.AppliedConstraint{
		Variable:   v,
		Constraint: key.constraint,
	}
}

// recordMandatoryEvidence adds the mandatory constraint applications
// to the evidence so the explanation names what was being requested.
func (s *nativeState) recordMandatoryEvidence() {
	for _, m := range s.p.mandatory {
		if s.p.isExcluded(m.subject, m.constraint) {
			continue
		}
		s.record(appliedKey{subject: m.subject, constraint: m.constraint})
	}
}

func (s *nativeState) sortedEvidence() []solver.AppliedConstraint {
	out := make([]solver.AppliedConstraint, 0, len(s.evidence))
	for _, a := range s.evidence {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}
