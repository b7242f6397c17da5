// Package manifest reads chain definitions from YAML or JSON documents.
//
// A manifest declares named capabilities (HTTP endpoints, SQL queries, groups
// of steps run in parallel) and the chains that use them. Step inputs and pure step values are described with
// dotted paths into the accumulator (from), Go text templates (template) or
// value trees whose string leaves are templates (input). Build compiles all of
// it into chains and a capability registry ready for a runner.
package manifest

import (
	"fmt"

	"github.com/bcap/stepper/capability"
	"github.com/bcap/stepper/chain"
)

type Manifest struct {
	Capabilities map[string]Capability `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Chains       []Chain               `json:"chains" yaml:"chains"`
}

// Capability is a capability definition. Exactly one field must be set
type Capability struct {
	HTTP     *capability.HTTP `json:"http,omitempty" yaml:"http,omitempty"`
	SQL      *SQL             `json:"sql,omitempty" yaml:"sql,omitempty"`
	Parallel *Parallel        `json:"parallel,omitempty" yaml:"parallel,omitempty"`
}

// SQL defines a query against a sqlite database. Manifests sharing a DSN share
// the same database handle
type SQL struct {
	DSN   string `json:"dsn" yaml:"dsn"`
	Query string `json:"query" yaml:"query"`
}

type Chain struct {
	Tag   string `json:"tag" yaml:"tag"`
	Steps Steps  `json:"steps,omitempty" yaml:"steps,omitempty"`
}

// Step is the definition of a single chain step.
//
// Pure steps take their value from exactly one of From, Template or Input.
// Effect steps take their capability argument from at most one of them; with
// none set the capability receives the whole accumulator.
type Step struct {
	Type chain.StepType `json:"-" yaml:"-"`

	Key        string `json:"key" yaml:"key"`
	Capability string `json:"capability,omitempty" yaml:"capability,omitempty"`
	From       string `json:"from,omitempty" yaml:"from,omitempty"`
	Template   string `json:"template,omitempty" yaml:"template,omitempty"`
	Input      any    `json:"input,omitempty" yaml:"input,omitempty"`
}

// Compile turns the definition into a chain.Step
func (s Step) Compile() (chain.Step, error) {
	sources := 0
	for _, set := range []bool{s.From != "", s.Template != "", s.Input != nil} {
		if set {
			sources++
		}
	}
	if sources > 1 {
		return nil, fmt.Errorf("step %q: only one of from, template and input can be set", s.Key)
	}

	var value valueFunc
	var err error
	switch {
	case s.From != "":
		value, err = compilePath(s.From)
	case s.Template != "":
		value, err = compileTemplate(s.Template)
	case s.Input != nil:
		value, err = compileTree(s.Input)
	}
	if err != nil {
		return nil, fmt.Errorf("step %q: %w", s.Key, err)
	}

	switch s.Type {
	case chain.StepTypePure:
		if s.Capability != "" {
			return nil, fmt.Errorf("step %q: pure steps cannot use a capability", s.Key)
		}
		if value == nil {
			return nil, fmt.Errorf("step %q: pure step needs one of from, template or input", s.Key)
		}
		return &chain.Pure{Key: s.Key, Fn: chain.PureFunc(value)}, nil
	case chain.StepTypeEffect:
		if s.Capability == "" {
			return nil, fmt.Errorf("step %q: effect step needs a capability", s.Key)
		}
		effect := &chain.Effect{Key: s.Key, Capability: s.Capability}
		if value != nil {
			effect.Input = chain.InputFunc(value)
		}
		return effect, nil
	default:
		return nil, fmt.Errorf("step %q: unrecognized step type %q", s.Key, s.Type)
	}
}

// Compile compiles every step of the chain and validates the result
func (c Chain) Compile() (chain.Chain, error) {
	steps := make([]chain.Step, len(c.Steps))
	for idx, def := range c.Steps {
		step, err := def.Compile()
		if err != nil {
			return chain.Chain{}, fmt.Errorf("chain %q: %w", c.Tag, err)
		}
		steps[idx] = step
	}
	return chain.New(c.Tag, steps...)
}
