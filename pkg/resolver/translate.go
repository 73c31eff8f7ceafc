package resolver

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/marmotpm/marmot/pkg/conda"
	"github.com/marmotpm/marmot/pkg/solver"
)

// appliedKey identifies one constraint application within a problem.
// Used to drop individual constraints during conflict minimization.
type appliedKey struct {
	subject    solver.Identifier
	constraint solver.Constraint
}

// variable is the problem's concrete solver.Variable. Record variables
// carry the candidate they represent; request and package-group
// variables carry none.
type variable struct {
	id          solver.Identifier
	constraints []solver.Constraint
	record      *conda.PackageRecord
	prob        *problem
}

func (v *variable) Identifier() solver.Identifier {
	return v.id
}

func (v *variable) Constraints() []solver.Constraint {
	out := make([]solver.Constraint, 0, len(v.constraints)+1)
	for _, c := range v.constraints {
		if v.prob.excluded[appliedKey{subject: v.id, constraint: c}] {
			continue
		}
		out = append(out, c)
	}
	if v.prob.forced[v.id] {
		out = append(out, solver.Mandatory())
	}
	return out
}

// depEdge is the domain-level view of one Dependency constraint:
// when subject is selected, one of candidates must be too.
type depEdge struct {
	subject    solver.Identifier
	candidates []solver.Identifier
	constraint solver.Constraint
}

// conflictEdge records mutual exclusion between two variables.
type conflictEdge struct {
	subject    solver.Identifier
	other      solver.Identifier
	constraint solver.Constraint
}

// exclusivityGroup caps how many of ids may be selected together; one
// group exists per package name with multiple candidates.
type exclusivityGroup struct {
	subject    solver.Identifier
	ids        []solver.Identifier
	limit      int
	constraint solver.Constraint
}

// mandEdge records that subject must appear in any solution.
type mandEdge struct {
	subject    solver.Identifier
	constraint solver.Constraint
}

// problem is a Task translated into backend form: a deterministic,
// total, and invertible mapping between pool records and solver
// variables, plus the domain-level constraint tables the native
// backend searches directly. Translating the same task twice yields
// identical variable order and identifiers.
type problem struct {
	task *Task

	names      []string
	candidates map[string][]*conda.PackageRecord

	variables []*variable
	varsByID  map[solver.Identifier]*variable
	records   map[solver.Identifier]*conda.PackageRecord
	idsByKey  map[conda.RecordKey]solver.Identifier

	mandatory      []mandEdge
	deps           map[solver.Identifier][]depEdge
	conflicts      map[solver.Identifier][]conflictEdge
	groups         []exclusivityGroup
	groupsByMember map[solver.Identifier][]int
	prohibited     map[solver.Identifier]solver.Constraint

	// excluded and forced adjust the problem without recompiling:
	// excluded drops individual constraint applications during
	// conflict minimization; forced adds Mandatory during tie-break
	// tightening.
	excluded map[appliedKey]bool
	forced   map[solver.Identifier]bool

	prefer func(a, b *conda.PackageRecord) int
}

// compileProblem translates a validated task into solver form.
func compileProblem(task *Task, order PreferenceOrder) (*problem, error) {
	p := &problem{
		task:           task,
		candidates:     make(map[string][]*conda.PackageRecord),
		varsByID:       make(map[solver.Identifier]*variable),
		records:        make(map[solver.Identifier]*conda.PackageRecord),
		idsByKey:       make(map[conda.RecordKey]solver.Identifier),
		deps:           make(map[solver.Identifier][]depEdge),
		conflicts:      make(map[solver.Identifier][]conflictEdge),
		groupsByMember: make(map[solver.Identifier][]int),
		prohibited:     make(map[solver.Identifier]solver.Constraint),
		excluded:       make(map[appliedKey]bool),
		forced:         make(map[solver.Identifier]bool),
		prefer:         task.comparator(order),
	}

	pool := effectivePool(task)
	for _, r := range pool {
		p.candidates[r.Name] = append(p.candidates[r.Name], r)
	}
	for name := range p.candidates {
		p.names = append(p.names, name)
	}
	sort.Strings(p.names)
	for _, name := range p.names {
		cands := p.candidates[name]
		sort.SliceStable(cands, func(i, j int) bool {
			return p.prefer(cands[i], cands[j]) < 0
		})
	}

	// Record variables, in deterministic pool order.
	for _, name := range p.names {
		for _, r := range p.candidates[name] {
			id := solver.Identifier(r.ID())
			v := p.getOrCreate(id)
			v.record = r
			p.records[id] = r
			p.idsByKey[r.Key()] = id
		}
	}

	// Locked records are hard requirements.
	for _, locked := range task.Locked {
		id, ok := p.idsByKey[locked.Key()]
		if !ok {
			// effectivePool always includes locked records;
			// reaching this means the pool was mutated.
			return nil, errors.Errorf("locked record %s missing from pool", locked)
		}
		p.addMandatory(id)
	}

	// One exclusivity group per name: a solution holds at most one
	// record per package name.
	for _, name := range p.names {
		cands := p.candidates[name]
		if len(cands) < 2 {
			continue
		}
		ids := make([]solver.Identifier, len(cands))
		for i, r := range cands {
			ids[i] = p.idsByKey[r.Key()]
		}
		group := p.getOrCreate(solver.Identifier(name))
		c := solver.AtMost(1, ids...)
		group.constraints = append(group.constraints, c)
		index := len(p.groups)
		p.groups = append(p.groups, exclusivityGroup{
			subject:    group.id,
			ids:        ids,
			limit:      1,
			constraint: c,
		})
		for _, id := range ids {
			p.groupsByMember[id] = append(p.groupsByMember[id], index)
		}
	}

	// Record-level dependencies and mutual exclusions.
	for _, name := range p.names {
		for _, r := range p.candidates[name] {
			if err := p.addRecordEdges(r); err != nil {
				return nil, err
			}
		}
	}

	// Requested specs are mandatory and satisfied by any matching
	// candidate, preferred candidates first.
	for _, spec := range task.Specs {
		v := p.getOrCreate(solver.Identifier(spec.String()))
		p.addMandatory(v.id)
		p.addDependency(v.id, p.matchingIDs(spec))
	}

	// Pinned specs restrict, but do not force, their package: every
	// non-matching candidate of the pinned name is unselectable.
	for _, pin := range task.Pinned {
		for _, r := range p.candidates[pin.Name] {
			if pin.Matches(r) {
				continue
			}
			p.addProhibited(p.idsByKey[r.Key()])
		}
	}

	return p, nil
}

// effectivePool merges the task pool with locked, installed, and
// virtual records, deduplicated with pool records taking precedence.
func effectivePool(task *Task) []*conda.PackageRecord {
	merged := make([]*conda.PackageRecord, 0, len(task.Pool)+len(task.Locked)+len(task.Installed)+len(task.Virtual))
	merged = append(merged, task.Pool...)
	merged = append(merged, task.Locked...)
	merged = append(merged, task.Installed...)
	merged = append(merged, task.Virtual...)
	seen := make(map[conda.RecordKey]bool, len(merged))
	out := merged[:0]
	for _, r := range merged {
		if seen[r.Key()] {
			continue
		}
		seen[r.Key()] = true
		out = append(out, r)
	}
	return out
}

func (p *problem) getOrCreate(id solver.Identifier) *variable {
	if v, ok := p.varsByID[id]; ok {
		return v
	}
	v := &variable{id: id, prob: p}
	p.varsByID[id] = v
	p.variables = append(p.variables, v)
	return v
}

// The add* helpers attach a constraint to a variable and mirror it
// into the domain-level tables the native backend searches.

func (p *problem) addMandatory(id solver.Identifier) {
	c := solver.Mandatory()
	v := p.varsByID[id]
	v.constraints = append(v.constraints, c)
	p.mandatory = append(p.mandatory, mandEdge{subject: id, constraint: c})
}

func (p *problem) addDependency(id solver.Identifier, candidates []solver.Identifier) {
	c := solver.Dependency(candidates...)
	v := p.varsByID[id]
	v.constraints = append(v.constraints, c)
	p.deps[id] = append(p.deps[id], depEdge{
		subject:    id,
		candidates: candidates,
		constraint: c,
	})
}

func (p *problem) addProhibited(id solver.Identifier) {
	if _, ok := p.prohibited[id]; ok {
		return
	}
	c := solver.Prohibited()
	v := p.varsByID[id]
	v.constraints = append(v.constraints, c)
	p.prohibited[id] = c
}

func (p *problem) addConflict(id, otherID solver.Identifier) {
	c := solver.Conflict(otherID)
	v := p.varsByID[id]
	v.constraints = append(v.constraints, c)
	p.conflicts[id] = append(p.conflicts[id], conflictEdge{
		subject:    id,
		other:      otherID,
		constraint: c,
	})
	p.conflicts[otherID] = append(p.conflicts[otherID], conflictEdge{
		subject:    otherID,
		other:      id,
		constraint: c,
	})
}

func (p *problem) addRecordEdges(r *conda.PackageRecord) error {
	id := p.idsByKey[r.Key()]
	for _, depText := range r.Depends {
		spec, err := conda.ParseMatchSpec(depText)
		if err != nil {
			return errors.Wrapf(err, "record %s has invalid dependency", r)
		}
		p.addDependency(id, p.matchingIDs(spec))
	}
	for _, conText := range r.Constrains {
		spec, err := conda.ParseMatchSpec(conText)
		if err != nil {
			return errors.Wrapf(err, "record %s has invalid run constraint", r)
		}
		for _, other := range p.candidates[spec.Name] {
			if spec.Matches(other) {
				continue
			}
			p.addConflict(id, p.idsByKey[other.Key()])
		}
	}
	return nil
}

// matchingIDs returns the identifiers of every candidate satisfying
// spec, in preference order.
func (p *problem) matchingIDs(spec *conda.MatchSpec) []solver.Identifier {
	var ids []solver.Identifier
	for _, r := range p.candidates[spec.Name] {
		if spec.Matches(r) {
			ids = append(ids, p.idsByKey[r.Key()])
		}
	}
	return ids
}

// variableSlice exposes the problem in the form the SAT backend
// consumes.
func (p *problem) variableSlice() []solver.Variable {
	out := make([]solver.Variable, len(p.variables))
	for i, v := range p.variables {
		out[i] = v
	}
	return out
}

// recordsOf maps solved variables back to their records, dropping
// request and group variables.
func (p *problem) recordsOf(vars []solver.Variable) []*conda.PackageRecord {
	var records []*conda.PackageRecord
	for _, v := range vars {
		if r, ok := p.records[v.Identifier()]; ok {
			records = append(records, r)
		}
	}
	return records
}

func (p *problem) exclude(k appliedKey) {
	p.excluded[k] = true
}

func (p *problem) unexclude(k appliedKey) {
	delete(p.excluded, k)
}

func (p *problem) isExcluded(subject solver.Identifier, c solver.Constraint) bool {
	return p.excluded[appliedKey{subject: subject, constraint: c}]
}

func (p *problem) force(id solver.Identifier) {
	p.forced[id] = true
}

func (p *problem) unforce(id solver.Identifier) {
	delete(p.forced, id)
}

func (p *problem) clearForced() {
	for id := range p.forced {
		delete(p.forced, id)
	}
}

// mandatoryIDs returns every identifier that must appear in a
// solution: Mandatory constraint subjects plus any identifier forced
// by tie-break tightening, in deterministic order.
func (p *problem) mandatoryIDs() []solver.Identifier {
	seen := make(map[solver.Identifier]bool, len(p.mandatory)+len(p.forced))
	var ids []solver.Identifier
	for _, m := range p.mandatory {
		if p.isExcluded(m.subject, m.constraint) || seen[m.subject] {
			continue
		}
		seen[m.subject] = true
		ids = append(ids, m.subject)
	}
	for _, v := range p.variables {
		if p.forced[v.id] && !seen[v.id] {
			seen[v.id] = true
			ids = append(ids, v.id)
		}
	}
	return ids
}
