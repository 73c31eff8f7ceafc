package resolver

import (
	"context"
	"time"
)

// Resolver is the caller-facing contract implemented by Engine and its
// wrappers.
type Resolver interface {
	Resolve(ctx context.Context, task *Task) (*ResolutionResult, error)
}

var _ Resolver = &Engine{}

// InstrumentedEngine reports the duration and outcome of each attempt
// to the provided emitters without changing resolution behavior.
type InstrumentedEngine struct {
	resolver              Resolver
	successMetricsEmitter func(time.Duration)
	failureMetricsEmitter func(time.Duration)
}

var _ Resolver = &InstrumentedEngine{}

func NewInstrumentedEngine(resolver Resolver, successMetricsEmitter, failureMetricsEmitter func(time.Duration)) *InstrumentedEngine {
	return &InstrumentedEngine{
		resolver:              resolver,
		successMetricsEmitter: successMetricsEmitter,
		failureMetricsEmitter: failureMetricsEmitter,
	}
}

func (ie *InstrumentedEngine) Resolve(ctx context.Context, task *Task) (*ResolutionResult, error) {
	start := time.Now()
	result, err := ie.resolver.Resolve(ctx, task)
	if err != nil {
		ie.failureMetricsEmitter(time.Since(start))
	} else {
		ie.successMetricsEmitter(time.Since(start))
	}
	return result, err
}
