package chain

// Step is an item in a chain. Check the StepType enum values for the kinds of
// steps. Steps are immutable descriptors: they are built once, when the chain
// is defined, and never changed afterwards.
type Step interface {
	StepType() StepType
	StepKey() string
}

type StepType string

const (
	StepTypePure   StepType = "pure"
	StepTypeEffect StepType = "effect"
)

// PureFunc computes a step value from the accumulator alone
type PureFunc func(Accumulator) (any, error)

// InputFunc derives the capability argument of an effect step from the accumulator
type InputFunc func(Accumulator) (any, error)

// Pure is a step that needs no capability: its value is Fn(accumulator)
type Pure struct {
	Key string
	Fn  PureFunc
}

func (Pure) StepType() StepType {
	return StepTypePure
}

func (p Pure) StepKey() string {
	return p.Key
}

// Effect is a step backed by an external capability. Input maps the accumulator
// to the capability argument; the capability named by Capability is resolved
// when the step runs and its result is stored under Key.
//
// A nil Input passes a copy of the whole accumulator as the argument.
type Effect struct {
	Key        string
	Capability string
	Input      InputFunc
}

func (Effect) StepType() StepType {
	return StepTypeEffect
}

func (e Effect) StepKey() string {
	return e.Key
}

// Arg computes the capability argument for acc
func (e Effect) Arg(acc Accumulator) (any, error) {
	if e.Input == nil {
		return acc.Clone(), nil
	}
	return e.Input(acc)
}

// NewPure builds a pure step from a function that cannot fail
func NewPure(key string, fn func(Accumulator) any) *Pure {
	return &Pure{
		Key: key,
		Fn: func(acc Accumulator) (any, error) {
			return fn(acc), nil
		},
	}
}

// NewEffect builds an effect step from an input mapping that cannot fail. A nil
// input passes the whole accumulator to the capability.
func NewEffect(key string, capability string, input func(Accumulator) any) *Effect {
	effect := &Effect{Key: key, Capability: capability}
	if input != nil {
		effect.Input = func(acc Accumulator) (any, error) {
			return input(acc), nil
		}
	}
	return effect
}
