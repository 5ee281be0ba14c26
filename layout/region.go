package layout

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/vkngwrapper/heapalloc"
)

// Block is the payload offset of a block within a Region: the header lives one word before it.
// Blocks obtained from Region.Block are validated; blocks derived from them through Region
// navigation are trusted to be valid as long as the tags they were derived from are consistent.
type Block int

// NoBlock is returned from searches that do not locate a block
const NoBlock Block = -1

// Region is a view over the bytes of a managed heap, from offset 0 up to the current top of heap.
// It is a cheap value type; a new Region must be taken whenever the underlying slice grows.
type Region struct {
	data []byte
}

// NewRegion wraps the provided heap bytes
func NewRegion(data []byte) Region {
	return Region{data: data}
}

// Len is the number of bytes currently in the region
func (r Region) Len() int { return len(r.data) }

// Block validates that offset is usable as a block payload offset: it must be aligned to
// DoubleWordSize and its header must lie within the region
func (r Region) Block(offset int) (Block, error) {
	if !heapalloc.IsAligned(offset, uint(DoubleWordSize)) {
		return NoBlock, errors.Errorf("offset %d is not aligned to %d bytes", offset, DoubleWordSize)
	}
	if offset < WordSize || offset > len(r.data) {
		return NoBlock, errors.Errorf("offset %d lies outside a region of %d bytes", offset, len(r.data))
	}

	return Block(offset), nil
}

// Tag reads the raw boundary tag stored at a byte offset
func (r Region) Tag(offset int) Tag {
	return Tag(binary.LittleEndian.Uint32(r.data[offset : offset+WordSize]))
}

// SetTag writes a raw boundary tag at a byte offset. Block tags should be written through
// SetBlock instead, so that header and footer never disagree.
func (r Region) SetTag(offset int, tag Tag) {
	binary.LittleEndian.PutUint32(r.data[offset:offset+WordSize], uint32(tag))
}

// HeaderOffset is the byte offset of the block's header
func (r Region) HeaderOffset(b Block) int {
	return int(b) - WordSize
}

// FooterOffset is the byte offset of the block's footer, derived from the size in its header
func (r Region) FooterOffset(b Block) int {
	return int(b) + r.Header(b).Size() - DoubleWordSize
}

func (r Region) Header(b Block) Tag {
	return r.Tag(r.HeaderOffset(b))
}

func (r Region) Footer(b Block) Tag {
	return r.Tag(r.FooterOffset(b))
}

// Next is the block that physically follows b
func (r Region) Next(b Block) Block {
	return b + Block(r.Header(b).Size())
}

// Prev is the block that physically precedes b, located through the footer that sits directly
// behind b's header
func (r Region) Prev(b Block) Block {
	return b - Block(r.Tag(int(b)-DoubleWordSize).Size())
}

// SetBlock formats b as a block of the provided size and allocation state, writing the header
// and the footer together
func (r Region) SetBlock(b Block, size int, allocated bool) {
	tag := Pack(size, allocated)
	r.SetTag(int(b)-WordSize, tag)
	r.SetTag(int(b)+size-DoubleWordSize, tag)
}

// SetEpilogue writes a zero-size allocated header for b, marking the top of the heap
func (r Region) SetEpilogue(b Block) {
	r.SetTag(int(b)-WordSize, Pack(0, true))
}

// Payload returns the usable bytes of b. The returned slice aliases the region.
func (r Region) Payload(b Block) []byte {
	end := int(b) + r.Header(b).Size() - TagOverhead
	return r.data[int(b):end:end]
}

// CheckBlock verifies that b's header and footer lie within the region and agree with one another
func (r Region) CheckBlock(b Block) error {
	if _, err := r.Block(int(b)); err != nil {
		return err
	}

	header := r.Header(b)
	if header.Size() == 0 {
		return nil
	}

	footerOffset := int(b) + header.Size() - DoubleWordSize
	if footerOffset+WordSize > len(r.data) {
		return errors.Errorf("block at offset %d has size %d, which extends past the end of a region of %d bytes", b, header.Size(), len(r.data))
	}

	footer := r.Tag(footerOffset)
	if footer != header {
		return errors.Errorf("block at offset %d has header (%d, %t) but footer (%d, %t)", b, header.Size(), header.Allocated(), footer.Size(), footer.Allocated())
	}

	return nil
}
