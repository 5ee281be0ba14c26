package provider_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/heapalloc"
	"github.com/vkngwrapper/heapalloc/provider"
)

func TestArenaSbrk(t *testing.T) {
	arena := provider.NewArena(64)
	require.Equal(t, 64, arena.Capacity())
	require.Len(t, arena.Bytes(), 0)

	oldBreak, err := arena.Sbrk(16)
	require.NoError(t, err)
	require.Equal(t, 0, oldBreak)
	require.Len(t, arena.Bytes(), 16)

	first := &arena.Bytes()[0]

	oldBreak, err = arena.Sbrk(48)
	require.NoError(t, err)
	require.Equal(t, 16, oldBreak)
	require.Len(t, arena.Bytes(), 64)

	// The region must never move
	require.Same(t, first, &arena.Bytes()[0])
}

func TestArenaExhausted(t *testing.T) {
	arena := provider.NewArena(32)

	_, err := arena.Sbrk(24)
	require.NoError(t, err)

	_, err = arena.Sbrk(16)
	require.Error(t, err)
	require.True(t, errors.Is(err, heapalloc.ErrOutOfMemory))
	require.Len(t, arena.Bytes(), 24)

	oldBreak, err := arena.Sbrk(8)
	require.NoError(t, err)
	require.Equal(t, 24, oldBreak)
}

func TestArenaRejectsShrink(t *testing.T) {
	arena := provider.NewArena(32)

	_, err := arena.Sbrk(-8)
	require.Error(t, err)
	require.False(t, errors.Is(err, heapalloc.ErrOutOfMemory))
}

func TestArenaReset(t *testing.T) {
	arena := provider.NewArena(0)
	require.Equal(t, provider.DefaultArenaSize, arena.Capacity())

	_, err := arena.Sbrk(4096)
	require.NoError(t, err)

	arena.Reset()
	require.Len(t, arena.Bytes(), 0)

	oldBreak, err := arena.Sbrk(8)
	require.NoError(t, err)
	require.Equal(t, 0, oldBreak)
}
