package runner

import (
	"context"
	"sort"

	"github.com/bcap/stepper/chain"
)

// Dispatcher runs the chain registered for the tag carried by an input (the
// chain.TagKey field). The tag table is built once and never changes.
type Dispatcher struct {
	runner *Runner
	chains map[string]chain.Chain
}

// NewDispatcher indexes chains by tag. Two chains with the same tag are a
// configuration error
func NewDispatcher(r *Runner, chains ...chain.Chain) (*Dispatcher, error) {
	d := &Dispatcher{runner: r, chains: make(map[string]chain.Chain, len(chains))}
	for _, c := range chains {
		if _, ok := d.chains[c.Tag]; ok {
			return nil, &chain.ConfigError{Err: chain.ErrDuplicateTag, Tag: c.Tag}
		}
		d.chains[c.Tag] = c
	}
	return d, nil
}

// RunByTag runs the chain whose tag matches input.Tag(), with input as the
// initial accumulator. Inputs with no registered chain fail with a
// *chain.ConfigError wrapping chain.ErrNoChainForTag.
func (d *Dispatcher) RunByTag(ctx context.Context, input chain.Accumulator) (chain.Accumulator, error) {
	tag := input.Tag()
	c, ok := d.chains[tag]
	if !ok {
		d.runner.logger.Warn("no chain for tag", "tag", tag)
		return nil, chain.NoChainForTag(tag)
	}
	return d.runner.Run(ctx, c, input)
}

func (d *Dispatcher) Chain(tag string) (chain.Chain, bool) {
	c, ok := d.chains[tag]
	return c, ok
}

func (d *Dispatcher) Tags() []string {
	tags := make([]string, 0, len(d.chains))
	for tag := range d.chains {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

func (d *Dispatcher) Runner() *Runner {
	return d.runner
}
