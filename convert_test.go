package webbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvert(t *testing.T) {
	n, err := convert[int](float64(42))
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	s, err := convert[string]("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", s)

	m, err := convert[map[string]int](map[string]any{"a": float64(1)})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 1}, m)

	var zero []string
	got, err := convert[[]string](nil)
	require.NoError(t, err)
	assert.Equal(t, zero, got)

	_, err = convert[int]("not a number")
	assert.Error(t, err)
}
