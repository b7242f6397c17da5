package manifest

import (
	"context"
	"fmt"

	"github.com/bcap/stepper/chain"
	"github.com/bcap/stepper/runner"
)

// Parallel defines a capability that runs a group of steps concurrently and
// returns their values as one record keyed by step key.
//
// Invoked with a record, every step runs against that same record. Invoked with
// a list of records, step i runs against element i and the list must have one
// element per step. Steps never see each other's values.
//
// Concurrency bounds how many steps run at once: 1 runs them one after the
// other, 0 falls back to the concurrency of the runner options given to Build.
type Parallel struct {
	Concurrency int   `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
	Steps       Steps `json:"steps" yaml:"steps"`
}

type parallelCapability struct {
	runner *runner.Runner
	steps  []chain.Step
}

func (p *parallelCapability) Invoke(ctx context.Context, arg any) (any, error) {
	inputs, err := tupleInputs(arg, len(p.steps))
	if err != nil {
		return nil, err
	}
	result, err := p.runner.RunTuple(ctx, p.steps, inputs)
	if err != nil {
		return nil, err
	}
	return map[string]any(result), nil
}

func tupleInputs(arg any, count int) ([]chain.Accumulator, error) {
	repeat := func(acc chain.Accumulator) []chain.Accumulator {
		inputs := make([]chain.Accumulator, count)
		for idx := range inputs {
			inputs[idx] = acc
		}
		return inputs
	}
	switch v := arg.(type) {
	case nil:
		return repeat(chain.Accumulator{}), nil
	case chain.Accumulator:
		return repeat(v), nil
	case map[string]any:
		return repeat(chain.Accumulator(v)), nil
	case []any:
		inputs := make([]chain.Accumulator, len(v))
		for idx, elem := range v {
			switch record := elem.(type) {
			case chain.Accumulator:
				inputs[idx] = record
			case map[string]any:
				inputs[idx] = chain.Accumulator(record)
			default:
				return nil, fmt.Errorf("parallel input %d is a %T, expected a record", idx, elem)
			}
		}
		return inputs, nil
	default:
		return nil, fmt.Errorf("parallel capability takes a record or a list of records, got a %T", arg)
	}
}

// compile compiles and validates the steps of the group
func (p *Parallel) compile() ([]chain.Step, error) {
	if len(p.Steps) == 0 {
		return nil, fmt.Errorf("parallel capability has no steps")
	}
	steps := make([]chain.Step, len(p.Steps))
	for idx, def := range p.Steps {
		step, err := def.Compile()
		if err != nil {
			return nil, err
		}
		steps[idx] = step
	}
	if err := chain.Validate(steps); err != nil {
		return nil, err
	}
	return steps, nil
}
