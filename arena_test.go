package tkvdb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDynamicArenaUnboundedByDefault(t *testing.T) {
	a := newDynamicArena(0)
	for i := 0; i < 100; i++ {
		_, err := a.newNode([]byte("some-prefix"), []byte("some-value"), nil, true)
		require.NoError(t, err)
	}
	require.True(t, a.Used() > 0)
}

func TestFixedArenaRejectsZeroLimit(t *testing.T) {
	_, err := newFixedArena(0)
	require.Error(t, err)
}

func TestFixedArenaEnforcesCeiling(t *testing.T) {
	a, err := newFixedArena(nodeByteSize(1, 1, 0))
	require.NoError(t, err)

	_, err = a.newNode([]byte("a"), []byte("1"), nil, true)
	require.NoError(t, err)

	_, err = a.newNode([]byte("b"), []byte("2"), nil, true)
	require.ErrorIs(t, err, ErrENOMEM)
}

func TestArenaResetReclaimsBudget(t *testing.T) {
	a, err := newFixedArena(nodeByteSize(1, 1, 0))
	require.NoError(t, err)

	_, err = a.newNode([]byte("a"), []byte("1"), nil, true)
	require.NoError(t, err)

	a.reset()
	require.EqualValues(t, 0, a.Used())

	_, err = a.newNode([]byte("a"), []byte("1"), nil, true)
	require.NoError(t, err)
}
