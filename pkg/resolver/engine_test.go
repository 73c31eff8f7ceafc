package resolver

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmotpm/marmot/pkg/conda"
)

func backends() []Backend {
	return []Backend{
		&SATBackend{},
		&NativeBackend{},
	}
}

func testEngine(b Backend, opts ...EngineOption) *Engine {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewEngine(append([]EngineOption{WithBackend(b), WithLogger(logger)}, opts...)...)
}

func resultIDs(result *ResolutionResult) []string {
	ids := make([]string, len(result.Records))
	for i, r := range result.Records {
		ids[i] = r.ID()
	}
	sort.Strings(ids)
	return ids
}

func TestResolveHighestVersionPreferred(t *testing.T) {
	pool := []*conda.PackageRecord{
		newRecord("a", "1.0", "0", "main"),
		newRecord("a", "2.0", "0", "main"),
	}

	for _, backend := range backends() {
		t.Run(backend.Name(), func(t *testing.T) {
			task, err := NewTask(pool, specs(t, "a >=1.0"))
			require.NoError(t, err)

			result, err := testEngine(backend).Resolve(context.Background(), task)
			require.NoError(t, err)
			require.Len(t, result.Records, 1)
			assert.Equal(t, "2.0", result.Records[0].Version.String())
		})
	}
}

func TestResolveConflictExplanation(t *testing.T) {
	pool := []*conda.PackageRecord{
		newRecord("a", "1.0", "0", "main", "b ==1.0"),
		newRecord("b", "1.0", "0", "main"),
		newRecord("b", "2.0", "0", "main"),
	}

	for _, backend := range backends() {
		t.Run(backend.Name(), func(t *testing.T) {
			task, err := NewTask(pool, specs(t, "a", "b ==2.0"))
			require.NoError(t, err)

			_, err = testEngine(backend).Resolve(context.Background(), task)
			require.Error(t, err)
			require.True(t, IsConflict(err), "expected a conflict, got %v", err)

			conflict := err.(*Conflict)
			assert.NotEmpty(t, conflict.Steps)
			assert.Contains(t, conflict.Error(), "packages are not compatible")
		})
	}
}

func TestResolveSoundness(t *testing.T) {
	pool := []*conda.PackageRecord{
		newRecord("python", "2.7.15", "0", "main"),
		newRecord("python", "3.8.2", "0", "main"),
		newRecord("numpy", "1.8.1", "0", "main", "python >=2.7,<2.8"),
		newRecord("numpy", "1.18.1", "0", "main", "python >=3.8,<3.9"),
		newRecord("scipy", "1.4.1", "0", "main", "numpy >=1.18", "python >=3.8,<3.9"),
	}
	requested := []string{"scipy", "numpy"}

	for _, backend := range backends() {
		t.Run(backend.Name(), func(t *testing.T) {
			task, err := NewTask(pool, specs(t, requested...))
			require.NoError(t, err)

			result, err := testEngine(backend).Resolve(context.Background(), task)
			require.NoError(t, err)

			// Every requested spec is satisfied by a selected record.
			for _, s := range task.Specs {
				matched := false
				for _, r := range result.Records {
					if s.Matches(r) {
						matched = true
						break
					}
				}
				assert.Truef(t, matched, "no selected record satisfies %s", s)
			}

			// At most one record per name.
			seen := make(map[string]bool)
			for _, r := range result.Records {
				assert.Falsef(t, seen[r.Name], "duplicate selection for %s", r.Name)
				seen[r.Name] = true
			}

			// Selected dependencies are satisfied within the result.
			for _, r := range result.Records {
				for _, depText := range r.Depends {
					dep := spec(t, depText)
					assert.NotNilf(t, result.Get(dep.Name), "%s dependency %q unsatisfied", r, depText)
				}
			}
		})
	}
}

func TestResolveMultipleDependenciesPerRecord(t *testing.T) {
	// A record with several dependency constraints must have every
	// one of them satisfied in the result, and both backends must
	// agree on the selected set.
	pool := []*conda.PackageRecord{
		newRecord("app", "1.0", "0", "main", "lib >=1", "util"),
		newRecord("lib", "1.0", "0", "main"),
		newRecord("lib", "2.0", "0", "main"),
		newRecord("util", "1.0", "0", "main"),
	}
	want := []string{
		"app=1.0=0@main",
		"lib=2.0=0@main",
		"util=1.0=0@main",
	}

	for _, backend := range backends() {
		t.Run(backend.Name(), func(t *testing.T) {
			task, err := NewTask(pool, specs(t, "app"))
			require.NoError(t, err)

			result, err := testEngine(backend).Resolve(context.Background(), task)
			require.NoError(t, err)
			assert.Equal(t, want, resultIDs(result))
		})
	}
}

func TestResolveIdempotence(t *testing.T) {
	pool := []*conda.PackageRecord{
		newRecord("python", "2.7.15", "0", "main"),
		newRecord("python", "3.8.2", "0", "main"),
		newRecord("numpy", "1.18.1", "0", "main", "python >=3.8,<3.9"),
	}

	for _, backend := range backends() {
		t.Run(backend.Name(), func(t *testing.T) {
			task, err := NewTask(pool, specs(t, "numpy"))
			require.NoError(t, err)
			first, err := testEngine(backend).Resolve(context.Background(), task)
			require.NoError(t, err)

			again, err := NewTask(pool, specs(t, "numpy"), WithLocked(first.Records...))
			require.NoError(t, err)
			second, err := testEngine(backend).Resolve(context.Background(), again)
			require.NoError(t, err)

			if diff := cmp.Diff(resultIDs(first), resultIDs(second)); diff != "" {
				t.Fatalf("re-solving with the result locked changed the result:\n%s", diff)
			}
		})
	}
}

func TestResolvePrefersInstalled(t *testing.T) {
	installed := newRecord("a", "1.0", "0", "main")
	pool := []*conda.PackageRecord{
		newRecord("a", "1.0", "0", "main"),
		newRecord("a", "2.0", "0", "main"),
	}

	for _, backend := range backends() {
		t.Run(backend.Name(), func(t *testing.T) {
			task, err := NewTask(pool, specs(t, "a"), WithInstalled(installed))
			require.NoError(t, err)

			result, err := testEngine(backend).Resolve(context.Background(), task)
			require.NoError(t, err)
			require.Len(t, result.Records, 1)
			assert.Equal(t, "1.0", result.Records[0].Version.String())
		})
	}
}

func TestResolveChannelPriority(t *testing.T) {
	pool := []*conda.PackageRecord{
		newRecord("a", "1.0", "0", "extra"),
		newRecord("a", "1.0", "0", "main"),
	}

	for _, backend := range backends() {
		t.Run(backend.Name(), func(t *testing.T) {
			task, err := NewTask(pool, specs(t, "a"), WithChannelPriority("main", "extra"))
			require.NoError(t, err)

			result, err := testEngine(backend).Resolve(context.Background(), task)
			require.NoError(t, err)
			require.Len(t, result.Records, 1)
			assert.Equal(t, "main", result.Records[0].Channel)
		})
	}
}

func TestResolveVirtualPackages(t *testing.T) {
	pool := []*conda.PackageRecord{
		newRecord("a", "1.0", "0", "main", "__linux"),
	}
	virtual := conda.NewVirtualPackage("__linux", "5.10", "0")

	for _, backend := range backends() {
		t.Run(backend.Name(), func(t *testing.T) {
			task, err := NewTask(pool, specs(t, "a"), WithVirtualPackages(virtual))
			require.NoError(t, err)

			result, err := testEngine(backend).Resolve(context.Background(), task)
			require.NoError(t, err)
			// The virtual record satisfied the dependency but is not
			// part of the result.
			require.Len(t, result.Records, 1)
			assert.Equal(t, "a", result.Records[0].Name)
		})
	}
}

func TestResolveLockedRecordWins(t *testing.T) {
	older := newRecord("a", "1.0", "0", "main")
	pool := []*conda.PackageRecord{
		older,
		newRecord("a", "2.0", "0", "main"),
	}

	for _, backend := range backends() {
		t.Run(backend.Name(), func(t *testing.T) {
			task, err := NewTask(pool, specs(t, "a"), WithLocked(older))
			require.NoError(t, err)

			result, err := testEngine(backend).Resolve(context.Background(), task)
			require.NoError(t, err)
			require.Len(t, result.Records, 1)
			assert.Equal(t, "1.0", result.Records[0].Version.String())
		})
	}
}

func TestResolveSpecWithoutCandidatesConflicts(t *testing.T) {
	pool := []*conda.PackageRecord{
		newRecord("a", "1.0", "0", "main"),
	}

	for _, backend := range backends() {
		t.Run(backend.Name(), func(t *testing.T) {
			// The name is known, but nothing satisfies the range.
			task, err := NewTask(pool, specs(t, "a >=9.0"))
			require.NoError(t, err)

			_, err = testEngine(backend).Resolve(context.Background(), task)
			require.Error(t, err)
			assert.True(t, IsConflict(err), "expected a conflict, got %v", err)
		})
	}
}

func TestNativeBackendBudgetFault(t *testing.T) {
	pool := []*conda.PackageRecord{
		newRecord("a", "1.0", "0", "main", "b"),
		newRecord("b", "1.0", "0", "main"),
	}
	task, err := NewTask(pool, specs(t, "a"))
	require.NoError(t, err)

	_, err = testEngine(&NativeBackend{Budget: 1}).Resolve(context.Background(), task)
	require.Error(t, err)
	assert.False(t, IsConflict(err))
	assert.Contains(t, err.Error(), "internal fault in native backend")
}

func TestResolveCancelledContext(t *testing.T) {
	pool := []*conda.PackageRecord{
		newRecord("a", "1.0", "0", "main"),
	}
	task, err := NewTask(pool, specs(t, "a"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, backend := range backends() {
		t.Run(backend.Name(), func(t *testing.T) {
			_, err := testEngine(backend).Resolve(ctx, task)
			assert.Error(t, err)
		})
	}
}

func TestInstrumentedEngine(t *testing.T) {
	pool := []*conda.PackageRecord{
		newRecord("a", "1.0", "0", "main", "b ==1.0"),
		newRecord("b", "2.0", "0", "main"),
	}

	var succeeded, failed int
	engine := NewInstrumentedEngine(
		testEngine(&SATBackend{}),
		func(_ time.Duration) { succeeded++ },
		func(_ time.Duration) { failed++ },
	)

	task, err := NewTask(pool, specs(t, "b"))
	require.NoError(t, err)
	_, err = engine.Resolve(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, failed)

	task, err = NewTask(pool, specs(t, "a"))
	require.NoError(t, err)
	_, err = engine.Resolve(context.Background(), task)
	require.Error(t, err)
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, failed)
}

func TestResolveAll(t *testing.T) {
	pool := []*conda.PackageRecord{
		newRecord("a", "1.0", "0", "main"),
		newRecord("b", "1.0", "0", "main"),
	}

	taskA, err := NewTask(pool, specs(t, "a"))
	require.NoError(t, err)
	taskB, err := NewTask(pool, specs(t, "b"))
	require.NoError(t, err)

	results, err := ResolveAll(context.Background(), testEngine(&SATBackend{}), []*Task{taskA, taskB})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Records[0].Name)
	assert.Equal(t, "b", results[1].Records[0].Name)
}
