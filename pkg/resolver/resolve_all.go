package resolver

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ResolveAll resolves independent tasks concurrently against shared
// read-only pools. Each attempt owns its task and result lifetimes;
// nothing mutable is shared between them. The first failure cancels
// the remaining attempts.
func ResolveAll(ctx context.Context, engine *Engine, tasks []*Task) ([]*ResolutionResult, error) {
	results := make([]*ResolutionResult, len(tasks))
	g, ctx := errgroup.WithContext(ctx)
	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			result, err := engine.Resolve(ctx, task)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
