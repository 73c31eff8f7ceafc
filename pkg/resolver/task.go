package resolver

import (
	"time"

	"github.com/marmotpm/marmot/pkg/conda"
)

// Task is one fully assembled resolution request. A Task is
// constructed once per attempt, validated eagerly, and discarded
// afterward; the engine keeps no state between attempts.
type Task struct {
	// Specs are the user-requested constraints, in request order.
	// Order influences tie-breaking only, never satisfiability.
	Specs []*conda.MatchSpec
	// Locked records must appear in the solution exactly as given.
	Locked []*conda.PackageRecord
	// Pinned specs may be satisfied by any matching candidate, with
	// an existing installation preferred.
	Pinned []*conda.MatchSpec
	// Installed is the previous state; it biases candidate
	// preference and seeds transaction construction.
	Installed []*conda.PackageRecord
	// Pool is the deduplicated candidate pool.
	Pool []*conda.PackageRecord
	// Virtual holds the platform-fact records injected into the
	// pool.
	Virtual []*conda.PackageRecord
	// ChannelPriority orders channel namespaces, highest priority
	// first. Channels absent from the ordering sort below all
	// listed channels.
	ChannelPriority []string
	// Cutoff, when non-zero, excludes pool records published after
	// it. Records without a timestamp are never excluded.
	Cutoff time.Time

	channelRank map[string]int
}

// TaskOption configures optional Task inputs.
type TaskOption func(*Task)

func WithLocked(records ...*conda.PackageRecord) TaskOption {
	return func(t *Task) {
		t.Locked = append(t.Locked, records...)
	}
}

func WithPinned(specs ...*conda.MatchSpec) TaskOption {
	return func(t *Task) {
		t.Pinned = append(t.Pinned, specs...)
	}
}

func WithInstalled(records ...*conda.PackageRecord) TaskOption {
	return func(t *Task) {
		t.Installed = append(t.Installed, records...)
	}
}

func WithVirtualPackages(records ...*conda.PackageRecord) TaskOption {
	return func(t *Task) {
		t.Virtual = append(t.Virtual, records...)
	}
}

func WithChannelPriority(channels ...string) TaskOption {
	return func(t *Task) {
		t.ChannelPriority = append(t.ChannelPriority, channels...)
	}
}

func WithCutoff(cutoff time.Time) TaskOption {
	return func(t *Task) {
		t.Cutoff = cutoff
	}
}

// NewTask assembles and validates a resolution request. Construction
// is pure: the pool is deduplicated and filtered by the cutoff, every
// requested name is checked against the pool, and locked records are
// checked against requested and pinned specs. Validation failures are
// returned as *UnknownPackageError or *ConflictingPinError.
func NewTask(pool []*conda.PackageRecord, specs []*conda.MatchSpec, opts ...TaskOption) (*Task, error) {
	t := &Task{Specs: specs}
	for _, opt := range opts {
		opt(t)
	}
	t.Pool = dedupe(filterCutoff(pool, t.Cutoff))
	t.channelRank = buildChannelRank(t.ChannelPriority)
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Task) validate() error {
	known := make(map[string]bool, len(t.Pool))
	for _, r := range t.Pool {
		known[r.Name] = true
	}
	for _, r := range t.Virtual {
		known[r.Name] = true
	}
	for _, r := range t.Locked {
		known[r.Name] = true
	}
	for _, r := range t.Installed {
		known[r.Name] = true
	}

	for _, spec := range t.Specs {
		if !known[spec.Name] {
			return &UnknownPackageError{Name: spec.Name}
		}
	}

	// A locked record that cannot satisfy a same-name request or
	// pin guarantees an unsatisfiable task; fail fast instead of
	// surfacing an opaque solver conflict.
	for _, locked := range t.Locked {
		for _, spec := range t.Specs {
			if spec.Name == locked.Name && !spec.Matches(locked) {
				return &ConflictingPinError{
					Name:   locked.Name,
					Locked: locked.String(),
					Spec:   spec.String(),
				}
			}
		}
		for _, pin := range t.Pinned {
			if pin.Name == locked.Name && !pin.Matches(locked) {
				return &ConflictingPinError{
					Name:   locked.Name,
					Locked: locked.String(),
					Spec:   pin.String(),
				}
			}
		}
	}
	return nil
}

// channelRank maps a channel to its priority index; lower is better.
// Unlisted channels rank below every listed channel.
func buildChannelRank(priority []string) map[string]int {
	rank := make(map[string]int, len(priority))
	for i, channel := range priority {
		if _, ok := rank[channel]; !ok {
			rank[channel] = i
		}
	}
	return rank
}

func (t *Task) rankOf(channel string) int {
	if rank, ok := t.channelRank[channel]; ok {
		return rank
	}
	return len(t.channelRank)
}

func filterCutoff(pool []*conda.PackageRecord, cutoff time.Time) []*conda.PackageRecord {
	if cutoff.IsZero() {
		return pool
	}
	limit := cutoff.UnixMilli()
	kept := make([]*conda.PackageRecord, 0, len(pool))
	for _, r := range pool {
		if r.Timestamp > limit {
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

func dedupe(pool []*conda.PackageRecord) []*conda.PackageRecord {
	seen := make(map[conda.RecordKey]bool, len(pool))
	out := make([]*conda.PackageRecord, 0, len(pool))
	for _, r := range pool {
		key := r.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}
