// Package heap implements a single growable heap with an implicit free list. Every block carries
// a boundary tag at each end, free blocks are coalesced with their neighbors as soon as they are
// created, and free space is located with either a first-fit or a next-fit scan.
//
// A Heap is not safe for concurrent use. Allocate, Free and Resize must never be called from more
// than one goroutine at a time.
package heap

import (
	"context"

	cerrors "github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/heapalloc"
	"github.com/vkngwrapper/heapalloc/layout"
	"github.com/vkngwrapper/heapalloc/provider"
	"golang.org/x/exp/slog"
)

// Pointer is the offset of an allocation's payload within the heap's provider region
type Pointer int

// Null is never a valid payload pointer
const Null Pointer = 0

var (
	// ErrRequestTooLarge is returned when an allocation is too large to be described by a boundary tag
	ErrRequestTooLarge = errors.New("requested size exceeds the maximum block size")
	// ErrInvalidSize is returned when a negative size is requested
	ErrInvalidSize = errors.New("requested size is negative")
)

const (
	// bootstrapSize holds an alignment pad word, the prologue header and footer, and the epilogue header
	bootstrapSize int = 4 * layout.WordSize
)

// Heap manages blocks within a region obtained from a provider.Provider
type Heap struct {
	logger   *slog.Logger
	provider provider.Provider
	region   layout.Region

	flags     CreateFlags
	policy    FitPolicy
	chunkSize int

	origin   int
	prologue layout.Block
	cursor   layout.Block

	allocCount  int
	allocBytes  int
	extendCount int
	live        *swiss.Map[Pointer, int]
}

var _ heapalloc.Validatable = &Heap{}

// New creates a heap on top of the provided raw memory provider. It installs the prologue and
// epilogue sentinels and grows the heap once by the chunk size so the first allocations can be
// served without further growth.
//
// logger - Receives debug output when the heap grows and error output when growth fails. If nil,
// slog.Default() is used.
//
// memory - The provider the heap grows into. The heap assumes it is the only consumer of the provider.
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, memory provider.Provider, options CreateOptions) (*Heap, error) {
	if memory == nil {
		return nil, errors.New("a raw memory provider is required")
	}

	err := options.validate()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	chunkSize, _ := options.chunkSize()
	h := &Heap{
		logger:    logger,
		provider:  memory,
		flags:     options.Flags,
		policy:    options.FitPolicy,
		chunkSize: chunkSize,
		cursor:    layout.NoBlock,
	}

	if h.flags&CreateAuditAllocations != 0 {
		h.live = swiss.NewMap[Pointer, int](42)
	}

	err = h.bootstrap()
	if err != nil {
		return nil, err
	}

	return h, nil
}

func (h *Heap) bootstrap() error {
	origin, err := h.provider.Sbrk(bootstrapSize)
	if err != nil {
		return cerrors.Wrapf(err, "failed to obtain %d bytes for the heap sentinels", bootstrapSize)
	}
	if !heapalloc.IsAligned(origin, uint(layout.DoubleWordSize)) {
		return cerrors.Newf("provider returned break %d, which is not aligned to %d bytes", origin, layout.DoubleWordSize)
	}

	h.origin = origin
	h.region = layout.NewRegion(h.provider.Bytes())

	h.region.SetTag(origin, 0)
	h.prologue = layout.Block(origin + 2*layout.WordSize)
	h.region.SetBlock(h.prologue, layout.DoubleWordSize, true)
	h.region.SetEpilogue(h.region.Next(h.prologue))

	h.logger.LogAttrs(context.Background(), slog.LevelDebug, "Heap::bootstrap",
		slog.Int("origin", origin),
		slog.String("FitPolicy", h.policy.String()),
		slog.Int("ChunkSize", h.chunkSize),
		slog.String("Flags", h.flags.String()),
	)

	_, err = h.extend(h.chunkSize)
	if err != nil {
		return err
	}

	h.cursor = h.firstBlock()
	return nil
}

// firstBlock is the first block after the prologue, which may be the epilogue
func (h *Heap) firstBlock() layout.Block {
	return h.region.Next(h.prologue)
}

// FitPolicy is the search policy the heap was created with
func (h *Heap) FitPolicy() FitPolicy { return h.policy }

// Size is the number of bytes the heap has obtained from its provider, including sentinels
func (h *Heap) Size() int {
	return h.region.Len() - h.origin
}

// ExtendCount is the number of times the heap has grown, including the growth performed by New
func (h *Heap) ExtendCount() int { return h.extendCount }

// AllocationCount is the number of live allocations
func (h *Heap) AllocationCount() int { return h.allocCount }

// IsEmpty returns true if the heap has no live allocations
func (h *Heap) IsEmpty() bool { return h.allocCount == 0 }
