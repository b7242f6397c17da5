package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeDoesNotMutate(t *testing.T) {
	initial := Accumulator{"orgNick": "foo"}
	merged := initial.Merge("org", map[string]any{"id": "foo"})

	assert.Equal(t, Accumulator{"orgNick": "foo"}, initial)
	assert.Equal(t, Accumulator{"orgNick": "foo", "org": map[string]any{"id": "foo"}}, merged)
}

func TestMergeLastWriteWins(t *testing.T) {
	acc := Accumulator{"name": "first"}
	assert.Equal(t, "second", acc.Merge("name", "second")["name"])
	assert.Equal(t, "first", acc["name"])
}

func TestMergeAll(t *testing.T) {
	acc := Accumulator{"a": 1}
	merged := acc.MergeAll(Accumulator{"b": 2, "c": 3})
	assert.Equal(t, Accumulator{"a": 1, "b": 2, "c": 3}, merged)
	assert.Len(t, acc, 1)
}

func TestCloneNil(t *testing.T) {
	var acc Accumulator
	clone := acc.Clone()
	assert.NotNil(t, clone)
	assert.Empty(t, clone)
}

func TestTag(t *testing.T) {
	assert.Equal(t, "GetOrg", Accumulator{"tag": "GetOrg"}.Tag())
	assert.Equal(t, "", Accumulator{"tag": 10}.Tag())
	assert.Equal(t, "", Accumulator{}.Tag())
}

func TestKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "tag"}, Accumulator{"tag": "x", "b": 1, "a": 2}.Keys())
}
