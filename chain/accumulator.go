package chain

import (
	"maps"
	"slices"
)

// TagKey is the accumulator field used to dispatch an input to a chain
const TagKey = "tag"

// Accumulator is the record threaded through a chain. It holds the initial input
// fields plus one field per step that already ran.
//
// Accumulators are treated as values: Merge never mutates its receiver, so a
// step can hold on to the snapshot it was given while later steps extend it.
type Accumulator map[string]any

// Clone returns a shallow copy. A nil accumulator clones to an empty one
func (a Accumulator) Clone() Accumulator {
	clone := make(Accumulator, len(a)+1)
	maps.Copy(clone, a)
	return clone
}

// Merge returns a new accumulator containing every field of a plus key set to
// value. If key already exists the new value wins.
func (a Accumulator) Merge(key string, value any) Accumulator {
	merged := a.Clone()
	merged[key] = value
	return merged
}

// MergeAll is Merge for every field of partial
func (a Accumulator) MergeAll(partial Accumulator) Accumulator {
	merged := a.Clone()
	maps.Copy(merged, partial)
	return merged
}

// Tag returns the dispatch tag of the accumulator, or "" if there is none or it
// is not a string
func (a Accumulator) Tag() string {
	tag, _ := a[TagKey].(string)
	return tag
}

func (a Accumulator) Keys() []string {
	return slices.Sorted(maps.Keys(a))
}
