package runner

import (
	"context"
	"fmt"
	"maps"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bcap/stepper/chain"
)

// RunTuple runs steps[i] against inputs[i] for every i and collects the values
// into a single record keyed by step key. Unlike Run, inputs are not carried
// over to the output and steps do not see each other's values.
//
// Steps run concurrently, bounded by the runner concurrency. The output does not
// depend on the order in which steps complete. The first failure cancels the
// context passed to the remaining steps and is returned with a nil record.
func (r *Runner) RunTuple(ctx context.Context, steps []chain.Step, inputs []chain.Accumulator) (chain.Accumulator, error) {
	if len(steps) != len(inputs) {
		return nil, &chain.ConfigError{
			Err:    chain.ErrInputMismatch,
			Detail: fmt.Sprintf("%d steps and %d inputs", len(steps), len(inputs)),
		}
	}

	ctx, runID := ensureRunID(ctx)
	logger := r.logger.With("run", runID, "mode", "tuple")
	start := time.Now()

	ctx, span := r.startRunSpan(ctx, "", runID, len(steps))
	partials := make([]chain.Accumulator, len(steps))
	err := r.processSteps(ctx, len(steps), func(ctx context.Context, stepIdx int) error {
		partial, err := r.RunStep(ctx, steps[stepIdx], inputs[stepIdx])
		if err != nil {
			logger.Debug("step failed", "step", stepIdx, "key", stepKey(steps[stepIdx]), "error", err)
			return err
		}
		partials[stepIdx] = partial
		return nil
	})
	endSpan(span, err)

	if err != nil {
		logger.Warn("tuple run failed", "error", err, "took", time.Since(start))
		return nil, err
	}

	output := make(chain.Accumulator, len(steps))
	for _, partial := range partials {
		maps.Copy(output, partial)
	}
	logger.Debug("tuple run done", "steps", len(steps), "took", time.Since(start))
	return output, nil
}

func (r *Runner) processSteps(ctx context.Context, count int, process func(context.Context, int) error) error {
	concurrency := r.concurrency
	if concurrency == 1 {
		for stepIdx := 0; stepIdx < count; stepIdx++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := process(ctx, stepIdx); err != nil {
				return err
			}
		}
		return nil
	}

	if concurrency <= 0 || concurrency > count {
		concurrency = count
	}
	group, ctx := errgroup.WithContext(ctx)
	stepsC := make(chan int)
	for i := 0; i < concurrency; i++ {
		group.Go(func() error {
			for stepIdx := range stepsC {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := process(ctx, stepIdx); err != nil {
					return err
				}
			}
			return nil
		})
	}
	group.Go(func() error {
		defer close(stepsC)
		for stepIdx := 0; stepIdx < count; stepIdx++ {
			select {
			case stepsC <- stepIdx:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	return group.Wait()
}
