package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/bcap/stepper/capability"
	"github.com/bcap/stepper/chain"
	"github.com/bcap/stepper/metrics"
	"github.com/bcap/stepper/sync"
)

type Runner struct {
	provider    capability.Provider
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	concurrency int

	outstanding sync.WaitGroup
}

type Option func(*Runner)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Runner) {
		r.tracer = tp.Tracer(tracerName)
	}
}

// WithConcurrency limits how many steps RunTuple runs at the same time. 1 runs
// them one after the other; 0 or less runs all of them at once (the default)
func WithConcurrency(concurrency int) Option {
	return func(r *Runner) {
		r.concurrency = concurrency
	}
}

func New(provider capability.Provider, opts ...Option) *Runner {
	r := &Runner{provider: provider}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.tracer == nil {
		r.tracer = otel.GetTracerProvider().Tracer(tracerName)
	}
	return r
}

// Outstanding returns how many steps are running right now
func (r *Runner) Outstanding() int {
	return r.outstanding.Current()
}

// Run runs the steps of c in order, starting from initial, and returns the final
// accumulator. A chain with no steps returns initial unchanged.
//
// The run stops at the first failing step: the error is returned together with
// a nil accumulator. Cancelling ctx stops the run before the next step starts.
func (r *Runner) Run(ctx context.Context, c chain.Chain, initial chain.Accumulator) (chain.Accumulator, error) {
	ctx, runID := ensureRunID(ctx)
	logger := r.logger.With("run", runID, "tag", c.Tag)
	start := time.Now()

	ctx, span := r.startRunSpan(ctx, c.Tag, runID, len(c.Steps))
	acc, err := r.runSteps(ctx, logger, c.Steps, initial)
	endSpan(span, err)
	r.metrics.ObserveRun(c.Tag, start, err)

	if err != nil {
		logger.Warn("chain run failed", "error", err, "took", time.Since(start))
		return nil, err
	}
	logger.Debug("chain run done", "steps", len(c.Steps), "took", time.Since(start))
	return acc, nil
}

// RunSteps is Run for a step list that is not wrapped in a chain. The steps are
// not validated
func (r *Runner) RunSteps(ctx context.Context, steps []chain.Step, initial chain.Accumulator) (chain.Accumulator, error) {
	return r.Run(ctx, chain.Chain{Steps: steps}, initial)
}

func (r *Runner) runSteps(ctx context.Context, logger *slog.Logger, steps []chain.Step, initial chain.Accumulator) (chain.Accumulator, error) {
	acc := initial
	for stepIdx, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		partial, err := r.RunStep(ctx, step, acc)
		if err != nil {
			logger.Debug("step failed", "step", stepIdx, "key", stepKey(step), "error", err)
			return nil, err
		}
		acc = acc.MergeAll(partial)
		logger.Debug("step done", "step", stepIdx, "key", step.StepKey(), "type", step.StepType())
	}
	return acc, nil
}

// RunStep runs a single step against acc and returns the partial result, a
// record holding only the step key.
func (r *Runner) RunStep(ctx context.Context, step chain.Step, acc chain.Accumulator) (chain.Accumulator, error) {
	if chain.IsNil(step) {
		return nil, &chain.ConfigError{Err: chain.ErrInvalidStep, Detail: "step is nil"}
	}
	defer r.outstanding.Track()()

	start := time.Now()
	ctx, span := r.startStepSpan(ctx, step)
	value, err := r.runStep(ctx, step, acc.Clone())
	endSpan(span, err)
	r.metrics.ObserveStep(step.StepKey(), string(step.StepType()), start, err)
	if err != nil {
		return nil, err
	}
	return chain.Accumulator{step.StepKey(): value}, nil
}

func (r *Runner) runStep(ctx context.Context, step chain.Step, snapshot chain.Accumulator) (any, error) {
	switch v := step.(type) {
	case *chain.Pure:
		return r.pure(*v, snapshot)
	case chain.Pure:
		return r.pure(v, snapshot)
	case *chain.Effect:
		return r.effect(ctx, *v, snapshot)
	case chain.Effect:
		return r.effect(ctx, v, snapshot)
	default:
		return nil, &chain.ConfigError{
			Err:    chain.ErrInvalidStep,
			Key:    step.StepKey(),
			Detail: fmt.Sprintf("unrecognized step type %T", step),
		}
	}
}

func (r *Runner) pure(step chain.Pure, snapshot chain.Accumulator) (any, error) {
	if step.Fn == nil {
		return nil, &chain.ConfigError{Err: chain.ErrInvalidStep, Key: step.Key, Detail: "pure step has no function"}
	}
	return step.Fn(snapshot)
}

func (r *Runner) effect(ctx context.Context, step chain.Effect, snapshot chain.Accumulator) (any, error) {
	arg, err := step.Arg(snapshot)
	if err != nil {
		return nil, err
	}
	if r.provider == nil {
		return nil, chain.CapabilityNotFound(step.Key, step.Capability)
	}
	c, err := r.provider.Resolve(step.Capability)
	if err != nil {
		if errors.Is(err, chain.ErrCapabilityNotFound) {
			return nil, chain.CapabilityNotFound(step.Key, step.Capability)
		}
		return nil, err
	}
	return c.Invoke(ctx, arg)
}

func stepKey(step chain.Step) string {
	if chain.IsNil(step) {
		return ""
	}
	return step.StepKey()
}
