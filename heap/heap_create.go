package heap

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/vkngwrapper/heapalloc"
	"github.com/vkngwrapper/heapalloc/layout"
)

// FitPolicy selects how a Heap searches for a free block. A Heap uses one policy for its
// entire lifetime.
type FitPolicy uint32

const (
	// FitPolicyFirstFit scans from the first block after the prologue and returns the first
	// free block that is large enough
	FitPolicyFirstFit FitPolicy = iota
	// FitPolicyNextFit scans from a rotating cursor positioned just past the most recent
	// placement, wrapping around to the start of the heap if needed
	FitPolicyNextFit
)

var fitPolicyMapping = map[FitPolicy]string{
	FitPolicyFirstFit: "FitPolicyFirstFit",
	FitPolicyNextFit:  "FitPolicyNextFit",
}

func (p FitPolicy) String() string {
	return fitPolicyMapping[p]
}

// CreateFlags indicate specific heap behaviors to activate or deactivate
type CreateFlags uint32

const (
	// CreateAuditAllocations tracks every live payload pointer. Freeing or resizing a pointer that
	// is not live (a double free, or a pointer that never came from this heap) panics instead of
	// corrupting the heap.
	CreateAuditAllocations CreateFlags = 1 << iota
	// CreateValidateEveryOperation runs Validate after every Allocate, Free and Resize and panics
	// if the heap is inconsistent. This is very slow.
	CreateValidateEveryOperation
)

var createFlagsMapping = map[CreateFlags]string{
	CreateAuditAllocations:       "CreateAuditAllocations",
	CreateValidateEveryOperation: "CreateValidateEveryOperation",
}

func (f CreateFlags) String() string {
	if f == 0 {
		return "None"
	}

	var sb strings.Builder
	for bit := CreateFlags(1); bit != 0 && bit <= f; bit <<= 1 {
		if f&bit == 0 {
			continue
		}

		if sb.Len() > 0 {
			sb.WriteString("|")
		}

		str, ok := createFlagsMapping[bit]
		if !ok {
			str = "Unknown"
		}
		sb.WriteString(str)
	}

	return sb.String()
}

const (
	// DefaultChunkSize is the minimum number of bytes the heap requests from its provider whenever
	// it runs out of free blocks. It is equal to 4Kb.
	DefaultChunkSize int = 1 << 12
)

// CreateOptions contains optional settings when creating a heap. It is valid to leave all the
// fields blank.
type CreateOptions struct {
	// Flags indicates specific heap behaviors to activate or deactivate
	Flags CreateFlags
	// FitPolicy chooses the free block search. The default is FitPolicyFirstFit.
	FitPolicy FitPolicy
	// ChunkSize is the minimum number of bytes requested from the provider each time the heap
	// grows. It is rounded up to a multiple of the alignment unit. The default is DefaultChunkSize.
	ChunkSize int
}

func (o CreateOptions) chunkSize() (int, error) {
	if o.ChunkSize == 0 {
		return DefaultChunkSize, nil
	}

	if o.ChunkSize < layout.MinBlockSize {
		return 0, errors.Errorf("chunk size %d is smaller than the minimum block size %d", o.ChunkSize, layout.MinBlockSize)
	}

	chunkSize := heapalloc.AlignUp(o.ChunkSize, uint(layout.DoubleWordSize))
	if uint64(chunkSize) > layout.MaxBlockSize {
		return 0, errors.Errorf("chunk size %d is larger than the maximum block size %d", o.ChunkSize, layout.MaxBlockSize)
	}

	return chunkSize, nil
}

func (o CreateOptions) validate() error {
	if _, ok := fitPolicyMapping[o.FitPolicy]; !ok {
		return errors.Errorf("unknown fit policy: %d", o.FitPolicy)
	}

	_, err := o.chunkSize()
	return err
}
