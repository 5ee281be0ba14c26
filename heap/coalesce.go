package heap

import "github.com/vkngwrapper/heapalloc/layout"

// coalesce merges a block whose tags already mark it free with whichever of its physical neighbors
// are also free, and returns the merged block. The prologue and epilogue are always allocated, so
// both neighbors exist.
func (h *Heap) coalesce(block layout.Block) layout.Block {
	prev := h.region.Prev(block)
	next := h.region.Next(block)
	prevAllocated := h.region.Footer(prev).Allocated()
	nextAllocated := h.region.Header(next).Allocated()
	size := h.region.Header(block).Size()

	switch {
	case prevAllocated && nextAllocated:
		return block
	case prevAllocated && !nextAllocated:
		size += h.region.Header(next).Size()
		h.region.SetBlock(block, size, false)
	case !prevAllocated && nextAllocated:
		size += h.region.Header(prev).Size()
		h.region.SetBlock(prev, size, false)
		block = prev
	default:
		size += h.region.Header(prev).Size() + h.region.Header(next).Size()
		h.region.SetBlock(prev, size, false)
		block = prev
	}

	// A cursor that pointed at an absorbed block now points into the middle of the merged block
	if h.cursor > block && int(h.cursor) < int(block)+size {
		h.cursor = block
	}

	return block
}
