package chain

import (
	"fmt"
	"slices"
)

// Chain is an ordered list of steps plus the tag used to dispatch inputs to it.
// Running a chain threads an accumulator through its steps, in order.
//
// Chains are values: Extend returns a new chain and never touches the step
// list of the chain it was called on.
type Chain struct {
	Tag   string
	Steps []Step
}

// New validates steps and builds a chain out of them
func New(tag string, steps ...Step) (Chain, error) {
	if err := Validate(steps); err != nil {
		if ce, ok := err.(*ConfigError); ok && ce.Tag == "" {
			ce.Tag = tag
		}
		return Chain{}, err
	}
	return Chain{Tag: tag, Steps: slices.Clone(steps)}, nil
}

// MustNew is like New but panics on validation errors. It is meant for chains
// wired statically in code
func MustNew(tag string, steps ...Step) Chain {
	c, err := New(tag, steps...)
	if err != nil {
		panic(err)
	}
	return c
}

// Extend returns a new chain with steps appended to the ones of c. The result
// is validated as a whole, so a key repeated across c and steps is rejected.
func (c Chain) Extend(steps ...Step) (Chain, error) {
	all := make([]Step, 0, len(c.Steps)+len(steps))
	all = append(all, c.Steps...)
	all = append(all, steps...)
	return New(c.Tag, all...)
}

// Keys returns the step keys in execution order
func (c Chain) Keys() []string {
	keys := make([]string, len(c.Steps))
	for idx, step := range c.Steps {
		keys[idx] = step.StepKey()
	}
	return keys
}

// Validate checks a step list before it is used by a chain:
//   - every step is either a Pure or an Effect step, with its required fields set
//   - every step has a non-empty key
//   - no two steps share a key
//
// Keys shared with the initial input of a run are not detected here; at run
// time the step value overwrites the input field.
func Validate(steps []Step) error {
	seen := make(map[string]int, len(steps))
	for idx, step := range steps {
		if err := validateStep(idx, step); err != nil {
			return err
		}
		key := step.StepKey()
		if prev, ok := seen[key]; ok {
			return &ConfigError{
				Err:    ErrDuplicateKey,
				Key:    key,
				Detail: fmt.Sprintf("steps %d and %d", prev, idx),
			}
		}
		seen[key] = idx
	}
	return nil
}

func validateStep(idx int, step Step) error {
	invalid := func(key string, format string, args ...any) error {
		return &ConfigError{
			Err:    ErrInvalidStep,
			Key:    key,
			Detail: fmt.Sprintf("step %d: ", idx) + fmt.Sprintf(format, args...),
		}
	}
	if IsNil(step) {
		return invalid("", "step is nil")
	}
	if step.StepKey() == "" {
		return invalid("", "%s step has an empty key", step.StepType())
	}
	switch v := step.(type) {
	case *Pure:
		if v.Fn == nil {
			return invalid(v.Key, "pure step has no function")
		}
	case Pure:
		if v.Fn == nil {
			return invalid(v.Key, "pure step has no function")
		}
	case *Effect:
		if v.Capability == "" {
			return invalid(v.Key, "effect step has no capability")
		}
	case Effect:
		if v.Capability == "" {
			return invalid(v.Key, "effect step has no capability")
		}
	default:
		return invalid(step.StepKey(), "unrecognized step type %T", step)
	}
	return nil
}

// IsNil reports whether step is nil, including typed nil *Pure and *Effect
// pointers whose methods would dereference nil
func IsNil(step Step) bool {
	switch v := step.(type) {
	case nil:
		return true
	case *Pure:
		return v == nil
	case *Effect:
		return v == nil
	}
	return false
}
