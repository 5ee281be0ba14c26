package heap_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/heapalloc"
	"github.com/vkngwrapper/heapalloc/heap"
	"github.com/vkngwrapper/heapalloc/layout"
	"github.com/vkngwrapper/heapalloc/provider"
	"golang.org/x/exp/slog"
)

type blockInfo struct {
	Ptr  heap.Pointer
	Size int
	Free bool
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHeap(t *testing.T, options heap.CreateOptions) *heap.Heap {
	t.Helper()

	h, err := heap.New(quietLogger(), provider.NewArena(16<<20), options)
	require.NoError(t, err)
	require.NoError(t, h.Validate())
	return h
}

func allocate(t *testing.T, h *heap.Heap, size int) heap.Pointer {
	t.Helper()

	ptr, err := h.Allocate(size)
	require.NoError(t, err)
	require.NotEqual(t, heap.Null, ptr)
	require.NoError(t, h.Validate())
	return ptr
}

func free(t *testing.T, h *heap.Heap, ptr heap.Pointer) {
	t.Helper()

	h.Free(ptr)
	require.NoError(t, h.Validate())
}

func blocks(t *testing.T, h *heap.Heap) []blockInfo {
	t.Helper()

	var result []blockInfo
	err := h.VisitAllBlocks(func(ptr heap.Pointer, size int, free bool) error {
		result = append(result, blockInfo{Ptr: ptr, Size: size, Free: free})
		return nil
	})
	require.NoError(t, err)
	return result
}

func fill(h *heap.Heap, ptr heap.Pointer, seed byte) {
	payload := h.Bytes(ptr)
	for i := range payload {
		payload[i] = seed + byte(i)
	}
}

func requireFilled(t *testing.T, h *heap.Heap, ptr heap.Pointer, seed byte, count int) {
	t.Helper()

	payload := h.Bytes(ptr)
	require.GreaterOrEqual(t, len(payload), count)

	expected := make([]byte, count)
	for i := range expected {
		expected[i] = seed + byte(i)
	}
	require.Equal(t, expected, payload[:count], "payload of pointer %s", ptr)
}

func TestNewHeap(t *testing.T) {
	h := newHeap(t, heap.CreateOptions{})

	require.Equal(t, heap.FitPolicyFirstFit, h.FitPolicy())
	require.Equal(t, 16+heap.DefaultChunkSize, h.Size())
	require.Equal(t, 1, h.ExtendCount())
	require.True(t, h.IsEmpty())

	require.Equal(t, []blockInfo{
		{Ptr: 16, Size: 4096, Free: true},
	}, blocks(t, h))
}

func TestNewHeapChunkSize(t *testing.T) {
	h := newHeap(t, heap.CreateOptions{ChunkSize: 100})

	require.Equal(t, 16+104, h.Size())
	require.Equal(t, []blockInfo{
		{Ptr: 16, Size: 104, Free: true},
	}, blocks(t, h))
}

func TestNewHeapInvalidOptions(t *testing.T) {
	_, err := heap.New(quietLogger(), provider.NewArena(1<<20), heap.CreateOptions{ChunkSize: 10})
	require.EqualError(t, err, "chunk size 10 is smaller than the minimum block size 16")

	_, err = heap.New(quietLogger(), provider.NewArena(1<<20), heap.CreateOptions{FitPolicy: heap.FitPolicy(7)})
	require.EqualError(t, err, "unknown fit policy: 7")

	_, err = heap.New(quietLogger(), nil, heap.CreateOptions{})
	require.Error(t, err)
}

func TestNewHeapNilLogger(t *testing.T) {
	h, err := heap.New(nil, provider.NewArena(1<<20), heap.CreateOptions{})
	require.NoError(t, err)
	require.NoError(t, h.Validate())
}

func TestNewHeapOutOfMemory(t *testing.T) {
	// Room for the sentinels but not for the first chunk
	_, err := heap.New(quietLogger(), provider.NewArena(1024), heap.CreateOptions{})
	require.Error(t, err)
	require.True(t, errors.Is(err, heapalloc.ErrOutOfMemory))

	// No room at all
	_, err = heap.New(quietLogger(), provider.NewArena(8), heap.CreateOptions{})
	require.Error(t, err)
	require.True(t, errors.Is(err, heapalloc.ErrOutOfMemory))
}

func TestAllocateZero(t *testing.T) {
	h := newHeap(t, heap.CreateOptions{})

	ptr, err := h.Allocate(0)
	require.NoError(t, err)
	require.Equal(t, heap.Null, ptr)
	require.True(t, h.IsEmpty())
}

func TestAllocateInvalidSize(t *testing.T) {
	h := newHeap(t, heap.CreateOptions{})

	_, err := h.Allocate(-1)
	require.Error(t, err)
	require.True(t, errors.Is(err, heap.ErrInvalidSize))

	maxBlock := layout.MaxBlockSize
	if uint64(int(maxBlock)) == maxBlock {
		_, err = h.Allocate(int(maxBlock))
		require.Error(t, err)
		require.True(t, errors.Is(err, heap.ErrRequestTooLarge))
	}

	require.NoError(t, h.Validate())
	require.Equal(t, 1, h.ExtendCount())
}

func TestAllocateMinimumBlock(t *testing.T) {
	h := newHeap(t, heap.CreateOptions{})

	a := allocate(t, h, 1)
	b := allocate(t, h, 8)
	c := allocate(t, h, 9)

	require.Equal(t, heap.Pointer(16), a)
	require.Equal(t, heap.Pointer(32), b)
	require.Equal(t, heap.Pointer(48), c)
	require.Equal(t, 8, h.UsableSize(a))
	require.Equal(t, 8, h.UsableSize(b))
	require.Equal(t, 16, h.UsableSize(c))
	require.Len(t, h.Bytes(c), 16)

	require.Equal(t, []blockInfo{
		{Ptr: 16, Size: 16},
		{Ptr: 32, Size: 16},
		{Ptr: 48, Size: 24},
		{Ptr: 72, Size: 4040, Free: true},
	}, blocks(t, h))
}

func TestFreeNull(t *testing.T) {
	h := newHeap(t, heap.CreateOptions{})
	h.Free(heap.Null)
	require.NoError(t, h.Validate())
}

func TestAllocateReusesFreedBlock(t *testing.T) {
	h := newHeap(t, heap.CreateOptions{})

	a := allocate(t, h, 100)
	b := allocate(t, h, 40)
	require.Equal(t, heap.Pointer(16), a)
	require.Equal(t, heap.Pointer(128), b)

	free(t, h, a)
	c := allocate(t, h, 90)

	require.Equal(t, a, c)
	require.Equal(t, 1, h.ExtendCount())

	// 112 - 104 is too small to split, so c holds the whole block
	require.Equal(t, []blockInfo{
		{Ptr: 16, Size: 112},
		{Ptr: 128, Size: 48},
		{Ptr: 176, Size: 3936, Free: true},
	}, blocks(t, h))
}

func TestAllocateFreeRoundTrip(t *testing.T) {
	for _, size := range []int{1, 16, 100, 1000, 4088} {
		h := newHeap(t, heap.CreateOptions{})
		keep := allocate(t, h, 24)

		ptr := allocate(t, h, size)
		heapSize := h.Size()
		free(t, h, ptr)

		again := allocate(t, h, size)
		require.Equal(t, ptr, again)
		require.Equal(t, heapSize, h.Size())

		free(t, h, again)
		free(t, h, keep)
		require.True(t, h.IsEmpty())
	}
}

func TestHeapPointersAreAligned(t *testing.T) {
	h := newHeap(t, heap.CreateOptions{})

	for size := 1; size < 300; size += 7 {
		ptr := allocate(t, h, size)
		require.True(t, heapalloc.IsAligned(int(ptr), uint(layout.DoubleWordSize)))
		require.GreaterOrEqual(t, h.UsableSize(ptr), size)
	}
}

func TestLogUnreleased(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h, err := heap.New(logger, provider.NewArena(1<<20), heap.CreateOptions{})
	require.NoError(t, err)

	a, err := h.Allocate(10)
	require.NoError(t, err)
	_, err = h.Allocate(20)
	require.NoError(t, err)
	h.Free(a)

	buf.Reset()
	require.Equal(t, 1, h.LogUnreleased())
	require.Contains(t, buf.String(), "[UNRELEASED MEMORY] unfreed allocation")
	require.Contains(t, buf.String(), "offset=40")
	require.Contains(t, buf.String(), "size=32")
}

func TestDebugLogAllBlocks(t *testing.T) {
	h := newHeap(t, heap.CreateOptions{})
	allocate(t, h, 10)
	allocate(t, h, 100)

	var seen []heap.Pointer
	h.DebugLogAllBlocks(quietLogger(), func(log *slog.Logger, ptr heap.Pointer, size int) {
		seen = append(seen, ptr)
	})
	require.Equal(t, []heap.Pointer{16, 40}, seen)
}

func TestPointerString(t *testing.T) {
	require.Equal(t, "Null", heap.Null.String())
	require.Equal(t, "0x10", heap.Pointer(16).String())
}

func TestCreateFlagsString(t *testing.T) {
	require.Equal(t, "None", heap.CreateFlags(0).String())
	require.Equal(t, "CreateAuditAllocations", heap.CreateAuditAllocations.String())
	require.Equal(t, "CreateAuditAllocations|CreateValidateEveryOperation",
		(heap.CreateAuditAllocations | heap.CreateValidateEveryOperation).String())
	require.Equal(t, "FitPolicyNextFit", heap.FitPolicyNextFit.String())
}
