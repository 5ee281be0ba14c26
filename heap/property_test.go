package heap_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/heapalloc"
	"github.com/vkngwrapper/heapalloc/heap"
	"github.com/vkngwrapper/heapalloc/layout"
)

type liveAllocation struct {
	ptr  heap.Pointer
	size int
	seed byte
}

func checkAllocation(t *testing.T, h *heap.Heap, alloc liveAllocation) {
	t.Helper()

	require.True(t, heapalloc.IsAligned(int(alloc.ptr), uint(layout.DoubleWordSize)))
	require.GreaterOrEqual(t, h.UsableSize(alloc.ptr), alloc.size)
	requireFilled(t, h, alloc.ptr, alloc.seed, alloc.size)
}

func runRandomOperations(t *testing.T, policy heap.FitPolicy, seed int64) {
	h := newHeap(t, heap.CreateOptions{
		FitPolicy: policy,
		Flags:     heap.CreateAuditAllocations,
	})

	rng := rand.New(rand.NewSource(seed))
	var live []liveAllocation

	for i := 0; i < 2000; i++ {
		switch op := rng.Intn(10); {
		case op < 5 || len(live) == 0:
			size := 1 + rng.Intn(600)
			if rng.Intn(20) == 0 {
				size = 4000 + rng.Intn(6000)
			}

			ptr, err := h.Allocate(size)
			require.NoError(t, err, "step %d", i)

			alloc := liveAllocation{ptr: ptr, size: size, seed: byte(rng.Intn(256))}
			fill(h, ptr, alloc.seed)
			live = append(live, alloc)
		case op < 8:
			index := rng.Intn(len(live))
			checkAllocation(t, h, live[index])

			h.Free(live[index].ptr)
			live[index] = live[len(live)-1]
			live = live[:len(live)-1]
		default:
			index := rng.Intn(len(live))
			alloc := live[index]
			checkAllocation(t, h, alloc)

			newSize := 1 + rng.Intn(1200)
			ptr, err := h.Resize(alloc.ptr, newSize)
			require.NoError(t, err, "step %d", i)

			requireFilled(t, h, ptr, alloc.seed, min(alloc.size, newSize))

			alloc.ptr = ptr
			alloc.size = newSize
			fill(h, ptr, alloc.seed)
			live[index] = alloc
		}

		require.NoError(t, h.Validate(), "step %d", i)
		require.Equal(t, len(live), h.AllocationCount())
	}

	for _, alloc := range live {
		checkAllocation(t, h, alloc)
	}

	for _, alloc := range live {
		h.Free(alloc.ptr)
	}

	require.NoError(t, h.Validate())
	require.True(t, h.IsEmpty())

	// With everything freed, coalescing must leave exactly one free block spanning the heap
	all := blocks(t, h)
	require.Len(t, all, 1)
	require.True(t, all[0].Free)
	require.Equal(t, h.Size()-16, all[0].Size)
}

func TestRandomOperationsFirstFit(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		runRandomOperations(t, heap.FitPolicyFirstFit, seed)
	}
}

func TestRandomOperationsNextFit(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		runRandomOperations(t, heap.FitPolicyNextFit, seed)
	}
}

func TestRoundTripNeverGrows(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for _, policy := range []heap.FitPolicy{heap.FitPolicyFirstFit, heap.FitPolicyNextFit} {
		h := newHeap(t, heap.CreateOptions{FitPolicy: policy})

		for i := 0; i < 200; i++ {
			size := 1 + rng.Intn(5000)

			ptr := allocate(t, h, size)
			heapSize := h.Size()
			free(t, h, ptr)

			again := allocate(t, h, size)
			require.Equal(t, heapSize, h.Size())
			free(t, h, again)
		}
	}
}
