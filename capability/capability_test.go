package capability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcap/stepper/chain"
)

func TestRegistry(t *testing.T) {
	registry := NewRegistry().
		RegisterFunc("echo", func(ctx context.Context, arg any) (any, error) {
			return arg, nil
		}).
		RegisterFunc("fail", func(ctx context.Context, arg any) (any, error) {
			return nil, errors.New("boom")
		})

	assert.Equal(t, []string{"echo", "fail"}, registry.Keys())

	echo, err := registry.Resolve("echo")
	require.NoError(t, err)
	value, err := echo.Invoke(context.Background(), "foo")
	require.NoError(t, err)
	assert.Equal(t, "foo", value)

	fail, err := registry.Resolve("fail")
	require.NoError(t, err)
	_, err = fail.Invoke(context.Background(), nil)
	assert.EqualError(t, err, "boom")
}

func TestRegistryMissing(t *testing.T) {
	_, err := NewRegistry().Resolve("lookupOrg")
	require.Error(t, err)
	assert.ErrorIs(t, err, chain.ErrCapabilityNotFound)
	assert.True(t, chain.IsConfigError(err))
}

func TestRegistryZeroValue(t *testing.T) {
	var registry Registry
	registry.RegisterFunc("x", func(ctx context.Context, arg any) (any, error) { return 1, nil })
	_, err := registry.Resolve("x")
	assert.NoError(t, err)
}
