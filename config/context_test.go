package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewFillsZeroFieldsWithDefaults(t *testing.T) {
	ctx := New(nil, nil, nil)
	require.NotNil(t, ctx.Log)
	require.NotNil(t, ctx.Metrics)
	require.NotNil(t, ctx.Clock)
}

func TestSystemClockMonotonicDoesNotGoBackwards(t *testing.T) {
	var c SystemClock
	first := c.Monotonic()
	second := c.Monotonic()
	require.False(t, second.Before(first))
}
