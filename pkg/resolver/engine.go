package resolver

import (
	"context"
	"sort"

	"github.com/mitchellh/hashstructure"
	"github.com/sirupsen/logrus"

	"github.com/marmotpm/marmot/pkg/conda"
)

const (
	defaultMinimizeRounds = 64
	defaultTightenRounds  = 256
)

// phase tracks where a resolution attempt is in its lifecycle. Only
// phaseSolving runs a backend; every other phase is a pure data
// transformation.
type phase string

const (
	phaseBuilt      phase = "built"
	phaseTranslated phase = "translated"
	phaseSolving    phase = "solving"
	phaseSucceeded  phase = "succeeded"
	phaseFailed     phase = "failed"
)

// ResolutionResult is a successful resolution: at most one record per
// package name, sorted by name, with virtual packages omitted.
type ResolutionResult struct {
	Records []*conda.PackageRecord
}

// Get returns the selected record for a package name, or nil.
func (r *ResolutionResult) Get(name string) *conda.PackageRecord {
	for _, record := range r.Records {
		if record.Name == name {
			return record
		}
	}
	return nil
}

// Engine orchestrates one resolution attempt: validation, translation,
// backend invocation, tie-breaking, and interpretation of the outcome.
// An Engine holds no per-attempt state and is safe for concurrent use
// as long as the candidate pools it reads are not mutated mid-flight.
type Engine struct {
	backend           Backend
	order             PreferenceOrder
	logger            logrus.FieldLogger
	maxMinimizeRounds int
	maxTightenRounds  int
}

type EngineOption func(*Engine)

func WithBackend(b Backend) EngineOption {
	return func(e *Engine) {
		e.backend = b
	}
}

func WithPreferenceOrder(order PreferenceOrder) EngineOption {
	return func(e *Engine) {
		e.order = order
	}
}

func WithLogger(logger logrus.FieldLogger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMinimizeRounds caps re-solves spent minimizing a conflict
// explanation before falling back to the full evidence.
func WithMinimizeRounds(n int) EngineOption {
	return func(e *Engine) {
		e.maxMinimizeRounds = n
	}
}

func NewEngine(options ...EngineOption) *Engine {
	e := &Engine{
		backend:           &SATBackend{},
		order:             DefaultPreferenceOrder(),
		logger:            logrus.StandardLogger(),
		maxMinimizeRounds: defaultMinimizeRounds,
		maxTightenRounds:  defaultTightenRounds,
	}
	for _, option := range options {
		option(e)
	}
	return e
}

// Resolve computes a consistent record set for the task, or explains
// why none exists. The engine never relaxes the task on its own: a
// returned result satisfies every requested spec, and an unsatisfiable
// request surfaces as a *Conflict for the caller to act on.
func (e *Engine) Resolve(ctx context.Context, task *Task) (*ResolutionResult, error) {
	logger := e.logger.WithField("backend", e.backend.Name())
	if fingerprint, err := hashstructure.Hash(taskFingerprint(task), nil); err == nil {
		logger = logger.WithField("task", fingerprint)
	}
	logger.WithField("phase", phaseBuilt).Debug("resolution started")

	if err := task.validate(); err != nil {
		return nil, err
	}

	p, err := compileProblem(task, e.order)
	if err != nil {
		return nil, err
	}
	logger.WithField("phase", phaseTranslated).
		WithField("variables", len(p.variables)).
		Debug("task translated")

	logger.WithField("phase", phaseSolving).Debug("search running")
	selected, err := e.backend.Solve(ctx, p)
	if err != nil {
		if c, ok := err.(*Conflict); ok {
			c = e.minimize(ctx, p, c)
			logger.WithField("phase", phaseFailed).
				WithField("steps", len(c.Steps)).
				Debug("request unsatisfiable")
			return nil, c
		}
		if fault, ok := err.(*BackendFault); ok {
			logger.WithField("phase", phaseFailed).
				WithError(fault.fault()).
				Error("backend fault")
		}
		return nil, err
	}

	selected = e.tighten(ctx, p, selected)

	result := &ResolutionResult{}
	for _, r := range selected {
		if r.IsVirtual() {
			continue
		}
		result.Records = append(result.Records, r)
	}
	sort.Slice(result.Records, func(i, j int) bool {
		return result.Records[i].Name < result.Records[j].Name
	})
	logger.WithField("phase", phaseSucceeded).
		WithField("records", len(result.Records)).
		Debug("resolution complete")
	return result, nil
}

// tighten enforces the preference policy independently of the backend
// by successive constraint tightening: walking package names in
// deterministic order, it tries each strictly more preferred candidate
// under the choices finalized so far and adopts the first that still
// admits a solution, then finalizes the name. Re-solves are bounded;
// past the bound the current solution is kept.
func (e *Engine) tighten(ctx context.Context, p *problem, initial []*conda.PackageRecord) []*conda.PackageRecord {
	defer p.clearForced()

	current := initial
	chosen := chosenByName(current)
	rounds := 0
	for _, name := range p.names {
		record := chosen[name]
		if record == nil {
			continue
		}
		for _, candidate := range p.candidates[name] {
			if candidate == record {
				// Already the most preferred candidate
				// compatible with the finalized choices.
				break
			}
			if rounds >= e.maxTightenRounds || ctx.Err() != nil {
				return current
			}
			id := p.idsByKey[candidate.Key()]
			p.force(id)
			rounds++
			improved, err := e.backend.Solve(ctx, p)
			if err == nil {
				current = improved
				chosen = chosenByName(current)
				record = candidate
				break
			}
			p.unforce(id)
		}
		p.force(p.idsByKey[record.Key()])
	}
	return current
}

func chosenByName(records []*conda.PackageRecord) map[string]*conda.PackageRecord {
	byName := make(map[string]*conda.PackageRecord, len(records))
	for _, r := range records {
		byName[r.Name] = r
	}
	return byName
}

// taskFingerprint is the hashed shape of a task used to correlate log
// lines for one attempt.
func taskFingerprint(task *Task) interface{} {
	specs := make([]string, len(task.Specs))
	for i, s := range task.Specs {
		specs[i] = s.String()
	}
	locked := make([]string, len(task.Locked))
	for i, r := range task.Locked {
		locked[i] = r.ID()
	}
	return struct {
		Specs    []string
		Locked   []string
		Channels []string
		PoolSize int
	}{
		Specs:    specs,
		Locked:   locked,
		Channels: task.ChannelPriority,
		PoolSize: len(task.Pool),
	}
}
