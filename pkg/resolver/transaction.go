package resolver

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/marmotpm/marmot/pkg/conda"
)

// OperationKind distinguishes the three transaction operations.
type OperationKind int

const (
	// OpInstall adds a package that was not previously present.
	OpInstall OperationKind = iota
	// OpRemove deletes a previously present package.
	OpRemove
	// OpChange replaces a previous record with a different
	// version, build, or channel of the same package.
	OpChange
)

func (k OperationKind) String() string {
	switch k {
	case OpInstall:
		return "install"
	case OpRemove:
		return "remove"
	case OpChange:
		return "change"
	}
	return "unknown"
}

// Operation is one step of a transaction. Record is the installed
// record for OpInstall, the removed record for OpRemove, and the new
// record for OpChange; Old is populated for OpChange only.
type Operation struct {
	Kind   OperationKind
	Record *conda.PackageRecord
	Old    *conda.PackageRecord
}

func (o Operation) String() string {
	if o.Kind == OpChange {
		return fmt.Sprintf("change %s -> %s", o.Old, o.Record)
	}
	return fmt.Sprintf("%s %s", o.Kind, o.Record)
}

// Transaction is an ordered sequence of operations turning the
// previous state into the resolved state. The order is a valid
// topological order of the combined dependency graph: dependencies
// are installed before their dependents, and dependents are removed
// before anything they depended on.
type Transaction struct {
	Operations []Operation
}

// Apply returns the record set produced by running the transaction
// against previous. It is primarily a verification aid.
func (t *Transaction) Apply(previous []*conda.PackageRecord) []*conda.PackageRecord {
	byName := make(map[string]*conda.PackageRecord, len(previous))
	for _, r := range previous {
		byName[r.Name] = r
	}
	for _, op := range t.Operations {
		switch op.Kind {
		case OpInstall, OpChange:
			byName[op.Record.Name] = op.Record
		case OpRemove:
			delete(byName, op.Record.Name)
		}
	}
	out := make([]*conda.PackageRecord, 0, len(byName))
	for _, r := range byName {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// BuildTransaction diffs the previous state against a resolved record
// set and orders the resulting operations. A dependency cycle in
// either state is corrupt metadata and fails the attempt with
// *CyclicDependencyError.
func BuildTransaction(previous, resolved []*conda.PackageRecord, channelPriority []string) (*Transaction, error) {
	prevByName := realByName(previous)
	newByName := realByName(resolved)

	prevDeps, err := dependencyGraph(prevByName)
	if err != nil {
		return nil, err
	}
	newDeps, err := dependencyGraph(newByName)
	if err != nil {
		return nil, err
	}
	if cycle := findCycle(prevDeps); cycle != nil {
		return nil, &CyclicDependencyError{Cycle: cycle}
	}
	if cycle := findCycle(newDeps); cycle != nil {
		return nil, &CyclicDependencyError{Cycle: cycle}
	}

	ops := make(map[string]*Operation)
	for name, old := range prevByName {
		if updated, ok := newByName[name]; ok {
			if old.SameContent(updated) {
				continue
			}
			ops[name] = &Operation{Kind: OpChange, Record: updated, Old: old}
			continue
		}
		ops[name] = &Operation{Kind: OpRemove, Record: old}
	}
	for name, updated := range newByName {
		if _, ok := prevByName[name]; !ok {
			ops[name] = &Operation{Kind: OpInstall, Record: updated}
		}
	}

	order, err := orderOperations(ops, prevDeps, newDeps, channelPriority)
	if err != nil {
		return nil, err
	}
	return &Transaction{Operations: order}, nil
}

func realByName(records []*conda.PackageRecord) map[string]*conda.PackageRecord {
	byName := make(map[string]*conda.PackageRecord, len(records))
	for _, r := range records {
		if r.IsVirtual() {
			continue
		}
		byName[r.Name] = r
	}
	return byName
}

// dependencyGraph maps each name to the dependency names it requires,
// restricted to names present in the set. Every name in the set has an
// entry, even when it depends on nothing.
func dependencyGraph(byName map[string]*conda.PackageRecord) (map[string][]string, error) {
	graph := make(map[string][]string, len(byName))
	for name, r := range byName {
		deps := make([]string, 0, len(r.Depends))
		for _, depText := range r.Depends {
			spec, err := conda.ParseMatchSpec(depText)
			if err != nil {
				return nil, errors.Wrapf(err, "record %s has invalid dependency", r)
			}
			if _, ok := byName[spec.Name]; ok {
				deps = append(deps, spec.Name)
			}
		}
		sort.Strings(deps)
		graph[name] = deps
	}
	return graph, nil
}

// findCycle returns the names left over after peeling nodes with no
// remaining dependencies, sorted, or nil when the graph is acyclic.
func findCycle(deps map[string][]string) []string {
	remaining := make(map[string]int, len(deps))
	dependents := make(map[string][]string)
	for name, ds := range deps {
		remaining[name] = len(ds)
		for _, d := range ds {
			dependents[d] = append(dependents[d], name)
		}
	}
	queue := make([]string, 0, len(remaining))
	for name, n := range remaining {
		if n == 0 {
			queue = append(queue, name)
		}
	}
	processed := 0
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		processed++
		for _, dependent := range dependents[name] {
			remaining[dependent]--
			if remaining[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}
	if processed == len(remaining) {
		return nil
	}
	var cycle []string
	for name, n := range remaining {
		if n > 0 {
			cycle = append(cycle, name)
		}
	}
	sort.Strings(cycle)
	return cycle
}

// orderOperations topologically sorts operations so that every
// install or change runs after the operations providing its new
// dependencies, and every remove runs after the operations releasing
// the old dependents that still required it. Ties are broken by
// channel priority, then name.
func orderOperations(ops map[string]*Operation, prevDeps, newDeps map[string][]string, channelPriority []string) ([]Operation, error) {
	// blockers counts outstanding prerequisites per operation.
	blockers := make(map[string]int, len(ops))
	unblocks := make(map[string][]string, len(ops))
	for name := range ops {
		blockers[name] = 0
	}
	addEdge := func(before, after string) {
		unblocks[before] = append(unblocks[before], after)
		blockers[after]++
	}

	for name, op := range ops {
		// New-image dependencies run first.
		if op.Kind == OpInstall || op.Kind == OpChange {
			for _, dep := range newDeps[name] {
				if depOp, ok := ops[dep]; ok && depOp.Kind != OpRemove {
					addEdge(dep, name)
				}
			}
		}
		// Old images release their dependencies before those are
		// removed.
		if op.Kind == OpRemove || op.Kind == OpChange {
			for _, dep := range prevDeps[name] {
				if depOp, ok := ops[dep]; ok && depOp.Kind == OpRemove && dep != name {
					addEdge(name, dep)
				}
			}
		}
	}

	rank := buildChannelRank(channelPriority)
	channelRankOf := func(op *Operation) int {
		if r, ok := rank[op.Record.Channel]; ok {
			return r
		}
		return len(rank)
	}

	var ready []string
	for name, n := range blockers {
		if n == 0 {
			ready = append(ready, name)
		}
	}

	ordered := make([]Operation, 0, len(ops))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool {
			a, b := ops[ready[i]], ops[ready[j]]
			if ra, rb := channelRankOf(a), channelRankOf(b); ra != rb {
				return ra < rb
			}
			return ready[i] < ready[j]
		})
		name := ready[0]
		ready = ready[1:]
		ordered = append(ordered, *ops[name])
		for _, after := range unblocks[name] {
			blockers[after]--
			if blockers[after] == 0 {
				ready = append(ready, after)
			}
		}
	}
	if len(ordered) != len(ops) {
		var stuck []string
		for name, n := range blockers {
			if n > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, &CyclicDependencyError{Cycle: stuck}
	}
	return ordered, nil
}
