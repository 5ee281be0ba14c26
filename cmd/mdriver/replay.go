package main

import (
	"context"

	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/heapalloc/heap"
	"github.com/vkngwrapper/heapalloc/provider"
	"golang.org/x/exp/slog"
)

// ReplayOptions controls how a trace is replayed against a fresh heap
type ReplayOptions struct {
	Heap heap.CreateOptions
	// ArenaSize is the capacity of the provider backing the heap. If it is not positive,
	// provider.DefaultArenaSize is used.
	ArenaSize int
	// Mapped backs the heap with reserved virtual memory instead of a Go slice
	Mapped bool
	// Check runs heap.Validate after every operation
	Check bool
}

// Result summarizes a single replayed trace
type Result struct {
	Name        string
	Ops         int
	PeakPayload int
	HeapSize    int
	Extensions  int
	Utilization float64
}

type liveAllocation struct {
	ptr  heap.Pointer
	size int
}

type closer interface {
	Close() error
}

// Replay runs every operation in trace against a new heap, filling each payload with a pattern
// derived from its id and verifying the pattern before the payload is resized or freed. If inspect
// is not nil, it is called with the heap after the last operation, before the heap's memory is
// released.
func Replay(logger *slog.Logger, trace *Trace, options ReplayOptions, inspect func(h *heap.Heap)) (Result, error) {
	result := Result{Name: trace.Name}
	if trace.NumIDs < 0 {
		return result, cerrors.Newf("%s: invalid id count %d", trace.Name, trace.NumIDs)
	}

	memory, err := newProvider(options)
	if err != nil {
		return result, err
	}
	if c, ok := memory.(closer); ok {
		defer func() {
			if closeErr := c.Close(); closeErr != nil {
				logger.LogAttrs(context.Background(), slog.LevelWarn, "failed to release heap memory",
					slog.String("trace", trace.Name),
					slog.Any("error", closeErr),
				)
			}
		}()
	}

	h, err := heap.New(logger, memory, options.Heap)
	if err != nil {
		return result, cerrors.Wrapf(err, "%s: failed to create heap", trace.Name)
	}

	live := make([]liveAllocation, trace.NumIDs)
	payload := 0

	for index, op := range trace.Ops {
		allocation := &live[op.ID]

		switch op.Kind {
		case OpAlloc:
			ptr, err := h.Allocate(op.Size)
			if err != nil {
				return result, cerrors.Wrapf(err, "%s: op %d: %s of %d bytes for id %d failed", trace.Name, index, op.Kind, op.Size, op.ID)
			}
			*allocation = liveAllocation{ptr: ptr, size: op.Size}
			fillPattern(h.Bytes(ptr)[:op.Size], op.ID)
			payload += op.Size

		case OpRealloc:
			if err := checkPattern(h, *allocation, op.ID); err != nil {
				return result, cerrors.Wrapf(err, "%s: op %d", trace.Name, index)
			}

			ptr, err := h.Resize(allocation.ptr, op.Size)
			if err != nil {
				return result, cerrors.Wrapf(err, "%s: op %d: %s of %d bytes for id %d failed", trace.Name, index, op.Kind, op.Size, op.ID)
			}

			preserved := liveAllocation{ptr: ptr, size: min(allocation.size, op.Size)}
			if err := checkPattern(h, preserved, op.ID); err != nil {
				return result, cerrors.Wrapf(err, "%s: op %d: contents were not preserved", trace.Name, index)
			}

			payload += op.Size - allocation.size
			*allocation = liveAllocation{ptr: ptr, size: op.Size}
			fillPattern(h.Bytes(ptr)[:op.Size], op.ID)

		case OpFree:
			if err := checkPattern(h, *allocation, op.ID); err != nil {
				return result, cerrors.Wrapf(err, "%s: op %d", trace.Name, index)
			}

			h.Free(allocation.ptr)
			payload -= allocation.size
			*allocation = liveAllocation{}
		}

		result.Ops++
		result.PeakPayload = max(result.PeakPayload, payload)

		if options.Check {
			if err := h.Validate(); err != nil {
				return result, cerrors.Wrapf(err, "%s: op %d: heap is inconsistent after %s of id %d", trace.Name, index, op.Kind, op.ID)
			}
		}
	}

	result.HeapSize = h.Size()
	result.Extensions = h.ExtendCount()
	if result.HeapSize > 0 {
		result.Utilization = float64(result.PeakPayload) / float64(result.HeapSize)
	}

	logger.LogAttrs(context.Background(), slog.LevelDebug, "replayed trace",
		slog.String("trace", trace.Name),
		slog.Int("ops", result.Ops),
		slog.Int("heapSize", result.HeapSize),
		slog.Int("liveAllocations", h.AllocationCount()),
	)

	if inspect != nil {
		inspect(h)
	}

	return result, nil
}

func newProvider(options ReplayOptions) (provider.Provider, error) {
	size := options.ArenaSize
	if size <= 0 {
		size = provider.DefaultArenaSize
	}

	if options.Mapped {
		return provider.NewMapped(size)
	}

	return provider.NewArena(size), nil
}

func patternByte(id, index int) byte {
	return byte(id*31 + index)
}

func fillPattern(payload []byte, id int) {
	for i := range payload {
		payload[i] = patternByte(id, i)
	}
}

func checkPattern(h *heap.Heap, allocation liveAllocation, id int) error {
	if allocation.ptr == heap.Null {
		return nil
	}

	payload := h.Bytes(allocation.ptr)
	if len(payload) < allocation.size {
		return cerrors.AssertionFailedf("id %d at %s has %d usable bytes but %d were requested", id, allocation.ptr, len(payload), allocation.size)
	}

	for i := 0; i < allocation.size; i++ {
		if payload[i] != patternByte(id, i) {
			return cerrors.AssertionFailedf("id %d at %s was overwritten at byte %d", id, allocation.ptr, i)
		}
	}

	return nil
}
