package heap

import (
	"context"
	"fmt"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/heapalloc"
	"github.com/vkngwrapper/heapalloc/layout"
	"golang.org/x/exp/slog"
)

// VisitAllBlocks calls the provided callback once for each block between the prologue and the
// epilogue, in address order. Iteration stops at the first error returned from the callback.
func (h *Heap) VisitAllBlocks(handleBlock func(ptr Pointer, size int, free bool) error) error {
	for block := h.firstBlock(); h.region.Header(block).Size() > 0; block = h.region.Next(block) {
		header := h.region.Header(block)
		err := handleBlock(Pointer(block), header.Size(), !header.Allocated())
		if err != nil {
			return err
		}
	}

	return nil
}

// Statistics returns the heap's running totals. The whole heap counts as one heap; no blocks are
// visited.
func (h *Heap) Statistics() heapalloc.Statistics {
	return heapalloc.Statistics{
		HeapCount:       1,
		HeapBytes:       h.Size(),
		AllocationCount: h.allocCount,
		AllocatedBytes:  h.allocBytes,
	}
}

// DetailedStatistics walks every block in the heap and returns the per-block breakdown
func (h *Heap) DetailedStatistics() heapalloc.DetailedStatistics {
	stats := heapalloc.DetailedStatistics{
		Statistics: heapalloc.Statistics{
			HeapCount: 1,
			HeapBytes: h.Size(),
		},
	}

	_ = h.VisitAllBlocks(func(ptr Pointer, size int, free bool) error {
		if free {
			stats.RecordFreeBlock(size)
		} else {
			stats.RecordAllocation(size)
		}
		return nil
	})

	return stats
}

// PrintDetailedMap writes a json object describing the heap and every block in it
func (h *Heap) PrintDetailedMap(writer *jwriter.Writer) {
	stats := h.DetailedStatistics()

	obj := writer.Object()
	defer obj.End()

	obj.Name("TotalBytes").Int(h.Size())
	obj.Name("UnusedBytes").Int(stats.FreeBytes())
	obj.Name("Allocations").Int(stats.AllocationCount)
	obj.Name("UnusedRanges").Int(stats.FreeBlockCount)
	obj.Name("LargestUnusedRange").Int(stats.LargestFreeBlock)
	obj.Name("FitPolicy").String(h.policy.String())
	obj.Name("Extensions").Int(h.extendCount)

	blocks := obj.Name("Blocks").Array()
	defer blocks.End()

	_ = h.VisitAllBlocks(func(ptr Pointer, size int, free bool) error {
		blockObj := blocks.Object()
		defer blockObj.End()

		blockObj.Name("Offset").Int(int(ptr))
		blockObj.Name("Size").Int(size)
		if free {
			blockObj.Name("Type").String("FREE")
		} else {
			blockObj.Name("Type").String("ALLOCATED")
			blockObj.Name("Payload").Int(size - layout.TagOverhead)
		}
		return nil
	})
}

// LogUnreleased logs every live allocation at error level and returns the number of allocations
// logged. It is intended to be called when the heap is about to be discarded.
func (h *Heap) LogUnreleased() int {
	count := 0
	_ = h.VisitAllBlocks(func(ptr Pointer, size int, free bool) error {
		if free {
			return nil
		}

		count++
		h.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] unfreed allocation",
			slog.Int("offset", int(ptr)),
			slog.Int("size", size),
		)
		return nil
	})

	return count
}

// DebugLogAllBlocks calls logFunc for every allocated block in the heap
func (h *Heap) DebugLogAllBlocks(logger *slog.Logger, logFunc func(log *slog.Logger, ptr Pointer, size int)) {
	_ = h.VisitAllBlocks(func(ptr Pointer, size int, free bool) error {
		if !free {
			logFunc(logger, ptr, size)
		}
		return nil
	})
}

func (p Pointer) String() string {
	if p == Null {
		return "Null"
	}

	return fmt.Sprintf("0x%x", int(p))
}
