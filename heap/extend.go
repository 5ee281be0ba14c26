package heap

import (
	"context"

	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/heapalloc"
	"github.com/vkngwrapper/heapalloc/layout"
	"golang.org/x/exp/slog"
)

// extend grows the heap by at least requested bytes and formats the new space as a single free block,
// moving the epilogue to the new top of the heap. The new block is coalesced with the block before
// the old epilogue if that block was free, and the resulting free block is returned.
func (h *Heap) extend(requested int) (layout.Block, error) {
	size := heapalloc.AlignUp(requested, uint(layout.DoubleWordSize))
	if uint64(size) > layout.MaxBlockSize {
		return layout.NoBlock, cerrors.Wrapf(ErrRequestTooLarge, "cannot extend the heap by %d bytes", size)
	}
	// Every block lies inside the heap, so capping the heap caps any coalesced block
	if uint64(h.Size())+uint64(size) > layout.MaxBlockSize {
		return layout.NoBlock, cerrors.Wrapf(heapalloc.ErrOutOfMemory,
			"cannot extend a heap of %d bytes by %d bytes: the heap may not exceed the maximum block size %d",
			h.Size(), size, layout.MaxBlockSize)
	}

	oldBreak, err := h.provider.Sbrk(size)
	if err != nil {
		h.logger.LogAttrs(context.Background(), slog.LevelError, "failed to extend heap",
			slog.Int("requested", requested),
			slog.Int("heapSize", h.Size()),
			slog.Any("error", err),
		)
		return layout.NoBlock, cerrors.Wrapf(err, "failed to extend the heap by %d bytes", size)
	}
	if oldBreak != h.region.Len() {
		return layout.NoBlock, cerrors.AssertionFailedf("provider break moved from %d to %d outside of the heap", h.region.Len(), oldBreak)
	}

	h.region = layout.NewRegion(h.provider.Bytes())

	// The new block's header overwrites the old epilogue
	block := layout.Block(oldBreak)
	h.region.SetBlock(block, size, false)
	h.region.SetEpilogue(h.region.Next(block))
	h.extendCount++

	h.logger.LogAttrs(context.Background(), slog.LevelDebug, "Heap::extend",
		slog.Int("requested", requested),
		slog.Int("granted", size),
		slog.Int("heapSize", h.Size()),
	)

	return h.coalesce(block), nil
}
