package heap

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/heapalloc"
	"github.com/vkngwrapper/heapalloc/layout"
)

// blockSize is the size of the block needed to hold a payload of size bytes: the payload plus
// both tags, rounded up to the alignment unit, and never smaller than layout.MinBlockSize
func blockSize(size int) (int, error) {
	if size < 0 {
		return 0, cerrors.Wrapf(ErrInvalidSize, "invalid allocation size: %d", size)
	}
	if uint64(size) > layout.MaxBlockSize-uint64(layout.TagOverhead) {
		return 0, cerrors.Wrapf(ErrRequestTooLarge, "invalid allocation size: %d", size)
	}

	if size <= layout.DoubleWordSize {
		return layout.MinBlockSize, nil
	}

	return heapalloc.AlignUp(size+layout.TagOverhead, uint(layout.DoubleWordSize)), nil
}

// Allocate reserves a block with at least size bytes of payload and returns a pointer to the payload.
// The payload's contents are undefined.
//
// A size of 0 returns Null with no error. If the heap cannot grow to satisfy the request, Null is
// returned with an error wrapping heapalloc.ErrOutOfMemory, and the heap is left unchanged.
func (h *Heap) Allocate(size int) (Pointer, error) {
	if size == 0 {
		return Null, nil
	}

	asize, err := blockSize(size)
	if err != nil {
		return Null, err
	}

	heapalloc.DebugValidate(h)

	block := h.findFit(asize)
	if block == layout.NoBlock {
		block, err = h.extend(max(asize, h.chunkSize))
		if err != nil {
			return Null, err
		}
	}

	h.place(block, asize)

	ptr := Pointer(block)
	h.trackAllocation(ptr, h.region.Header(block).Size())
	h.validateIfRequested()

	return ptr, nil
}

// Free returns an allocation to the heap and merges it with any free neighbors. Freeing Null is a
// no-op.
//
// ptr must have been returned from Allocate or Resize on this heap and must not have been freed
// since. Anything else is undefined behavior and will corrupt the heap, unless the heap was
// created with CreateAuditAllocations, in which case Free panics.
func (h *Heap) Free(ptr Pointer) {
	if ptr == Null {
		return
	}

	heapalloc.DebugValidate(h)
	h.untrackAllocation(ptr, "free")

	block := layout.Block(ptr)
	h.region.SetBlock(block, h.region.Header(block).Size(), false)
	h.coalesce(block)

	h.validateIfRequested()
}

// Resize moves an allocation into a block with at least size bytes of payload, preserving the
// first min(UsableSize(ptr), size) bytes, and returns the new pointer. The old pointer is freed.
//
// Resize(Null, size) behaves as Allocate(size). Resize(ptr, 0) behaves as Free(ptr) and returns Null.
// If the new block cannot be allocated, Null is returned with an error and ptr remains valid.
//
// ptr has the same requirements as it does for Free.
func (h *Heap) Resize(ptr Pointer, size int) (Pointer, error) {
	if ptr == Null {
		return h.Allocate(size)
	}

	if size == 0 {
		h.Free(ptr)
		return Null, nil
	}

	if h.live != nil {
		if _, ok := h.live.Get(ptr); !ok {
			panic(cerrors.AssertionFailedf("resize of pointer %d, which is not a live allocation", ptr))
		}
	}

	newPtr, err := h.Allocate(size)
	if err != nil {
		return Null, err
	}

	src := h.Bytes(ptr)
	dst := h.Bytes(newPtr)
	copy(dst, src[:min(len(src), size)])

	h.Free(ptr)
	return newPtr, nil
}

// UsableSize is the number of payload bytes available at ptr, which may exceed the size that was
// requested
func (h *Heap) UsableSize(ptr Pointer) int {
	if ptr == Null {
		return 0
	}

	return h.region.Header(layout.Block(ptr)).Size() - layout.TagOverhead
}

// Bytes returns the payload of a live allocation. The slice aliases heap memory; it has a length
// and capacity of UsableSize(ptr) and remains valid until ptr is freed.
func (h *Heap) Bytes(ptr Pointer) []byte {
	if ptr == Null {
		return nil
	}

	return h.region.Payload(layout.Block(ptr))
}

func (h *Heap) trackAllocation(ptr Pointer, size int) {
	h.allocCount++
	h.allocBytes += size

	if h.live != nil {
		h.live.Put(ptr, size)
	}
}

func (h *Heap) untrackAllocation(ptr Pointer, operation string) {
	if h.live != nil {
		if _, ok := h.live.Get(ptr); !ok {
			panic(cerrors.AssertionFailedf("%s of pointer %d, which is not a live allocation", operation, ptr))
		}
		h.live.Delete(ptr)
	}

	h.allocCount--
	h.allocBytes -= h.region.Header(layout.Block(ptr)).Size()
}

func (h *Heap) validateIfRequested() {
	if h.flags&CreateValidateEveryOperation == 0 {
		return
	}

	err := h.Validate()
	if err != nil {
		panic(cerrors.Wrap(err, "heap validation failed"))
	}
}
