package heap

import (
	"github.com/pkg/errors"
	"github.com/vkngwrapper/heapalloc/layout"
)

// Validate walks every block in the heap and performs consistency checks. It returns an error
// describing the first problem found. When the heap is functioning correctly and its callers
// respect the Free and Resize preconditions, it should not be possible for this method to
// return an error.
func (h *Heap) Validate() error {
	prologueTag := layout.Pack(layout.DoubleWordSize, true)
	if h.region.Header(h.prologue) != prologueTag || h.region.Footer(h.prologue) != prologueTag {
		return errors.Errorf("prologue at offset %d has been overwritten", h.prologue)
	}

	var allocCount, allocBytes int
	cursorFound := h.cursor == layout.NoBlock
	prevFree := false

	block := h.firstBlock()
	for ; h.region.Header(block).Size() > 0; block = h.region.Next(block) {
		if block == h.cursor {
			cursorFound = true
		}

		err := h.region.CheckBlock(block)
		if err != nil {
			return err
		}

		header := h.region.Header(block)
		if header.Size() < layout.MinBlockSize {
			return errors.Errorf("block at offset %d has size %d, which is smaller than the minimum block size", block, header.Size())
		}
		if header.Size()%layout.DoubleWordSize != 0 {
			return errors.Errorf("block at offset %d has size %d, which is not a multiple of %d", block, header.Size(), layout.DoubleWordSize)
		}

		if !header.Allocated() {
			if prevFree {
				return errors.Errorf("block at offset %d is free, but so is the block before it", block)
			}
			prevFree = true
			continue
		}

		prevFree = false
		allocCount++
		allocBytes += header.Size()

		if h.live != nil {
			if _, ok := h.live.Get(Pointer(block)); !ok {
				return errors.Errorf("block at offset %d is allocated but is not tracked as a live allocation", block)
			}
		}
	}

	if block == h.cursor {
		cursorFound = true
	}

	if !h.region.Header(block).Allocated() {
		return errors.Errorf("epilogue at offset %d is not marked allocated", block)
	}
	if h.region.HeaderOffset(block) != h.region.Len()-layout.WordSize {
		return errors.Errorf("the block list ends at offset %d, but the heap ends at offset %d", h.region.HeaderOffset(block)+layout.WordSize, h.region.Len())
	}

	if !cursorFound {
		return errors.Errorf("search cursor at offset %d is not the start of a block", h.cursor)
	}

	if allocCount != h.allocCount {
		return errors.Errorf("the allocation count of the heap is %d, but the allocated blocks only added up to %d", h.allocCount, allocCount)
	}

	if allocBytes != h.allocBytes {
		return errors.Errorf("the allocated size of the heap is %d, but the allocated blocks only added up to %d", h.allocBytes, allocBytes)
	}

	if h.live != nil && h.live.Count() != allocCount {
		return errors.Errorf("%d allocations are tracked as live, but %d blocks are allocated", h.live.Count(), allocCount)
	}

	return nil
}
