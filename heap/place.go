package heap

import "github.com/vkngwrapper/heapalloc/layout"

// place commits size bytes of a free block to an allocation. If the remainder is large enough to
// be a block of its own, it is split off as a new free block; otherwise the whole block is
// allocated and the remainder is absorbed as internal fragmentation.
func (h *Heap) place(block layout.Block, size int) {
	blockSize := h.region.Header(block).Size()

	if blockSize-size >= layout.MinBlockSize {
		h.region.SetBlock(block, size, true)

		remainder := h.region.Next(block)
		h.region.SetBlock(remainder, blockSize-size, false)
		h.cursor = remainder
		return
	}

	h.region.SetBlock(block, blockSize, true)
	h.cursor = h.region.Next(block)
}
