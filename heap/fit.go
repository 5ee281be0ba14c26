package heap

import "github.com/vkngwrapper/heapalloc/layout"

// findFit locates a free block of at least size bytes according to the heap's fit policy. It
// returns layout.NoBlock if no free block is large enough.
func (h *Heap) findFit(size int) layout.Block {
	if h.policy == FitPolicyNextFit {
		return h.nextFit(size)
	}

	return h.firstFit(size)
}

func (h *Heap) fits(block layout.Block, size int) bool {
	header := h.region.Header(block)
	return !header.Allocated() && header.Size() >= size
}

func (h *Heap) firstFit(size int) layout.Block {
	for block := h.firstBlock(); h.region.Header(block).Size() > 0; block = h.region.Next(block) {
		if h.fits(block, size) {
			return block
		}
	}

	return layout.NoBlock
}

func (h *Heap) nextFit(size int) layout.Block {
	// Cursor to the epilogue
	for block := h.cursor; h.region.Header(block).Size() > 0; block = h.region.Next(block) {
		if h.fits(block, size) {
			return block
		}
	}

	// Wrap around: start of the heap up to the cursor
	for block := h.firstBlock(); block != h.cursor && h.region.Header(block).Size() > 0; block = h.region.Next(block) {
		if h.fits(block, size) {
			return block
		}
	}

	return layout.NoBlock
}
