package layout

import "math"

const (
	// WordSize is the width in bytes of a single boundary tag
	WordSize int = 4
	// DoubleWordSize is the alignment unit: every block size and every payload offset is a
	// multiple of it
	DoubleWordSize int = 2 * WordSize
	// MinBlockSize is the smallest block that can exist: a header, a footer, and one alignment
	// unit of payload
	MinBlockSize int = 2 * DoubleWordSize
	// TagOverhead is the number of bytes a block spends on its header and footer
	TagOverhead int = 2 * WordSize

	// MaxBlockSize is the largest size a 32-bit tag can encode
	MaxBlockSize uint64 = math.MaxUint32 &^ uint64(sizeMask)

	allocatedBit Tag = 0x1
	sizeMask     Tag = 0x7
)

// Tag is a packed boundary tag: the block size occupies every bit above the alignment boundary
// and the allocation bit occupies bit 0
type Tag uint32

// Pack builds a tag from a block size, which must be a multiple of DoubleWordSize, and an allocation bit
func Pack(size int, allocated bool) Tag {
	t := Tag(size)
	if allocated {
		t |= allocatedBit
	}
	return t
}

// Size returns the total block size, in bytes, encoded in the tag
func (t Tag) Size() int {
	return int(t &^ sizeMask)
}

// Allocated returns true if the tag's allocation bit is set
func (t Tag) Allocated() bool {
	return t&allocatedBit != 0
}
