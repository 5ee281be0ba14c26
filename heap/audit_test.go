package heap_test

import (
	"testing"

	cerrors "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/heapalloc/heap"
)

func requireAssertionPanic(t *testing.T, f func()) {
	t.Helper()

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		require.True(t, cerrors.IsAssertionFailure(err))
	}()

	f()
}

func TestAuditDoubleFree(t *testing.T) {
	h := newHeap(t, heap.CreateOptions{Flags: heap.CreateAuditAllocations})

	a := allocate(t, h, 64)
	allocate(t, h, 64)
	free(t, h, a)

	requireAssertionPanic(t, func() {
		h.Free(a)
	})
	require.NoError(t, h.Validate())
}

func TestAuditForeignPointer(t *testing.T) {
	h := newHeap(t, heap.CreateOptions{Flags: heap.CreateAuditAllocations})
	a := allocate(t, h, 64)

	requireAssertionPanic(t, func() {
		h.Free(a + 8)
	})
	requireAssertionPanic(t, func() {
		_, _ = h.Resize(a+16, 10)
	})
	require.NoError(t, h.Validate())
}

func TestAuditResizeTracksPointers(t *testing.T) {
	h := newHeap(t, heap.CreateOptions{Flags: heap.CreateAuditAllocations | heap.CreateValidateEveryOperation})

	a := allocate(t, h, 64)
	b, err := h.Resize(a, 200)
	require.NoError(t, err)

	requireAssertionPanic(t, func() {
		h.Free(a)
	})

	free(t, h, b)
	require.True(t, h.IsEmpty())
}
