package heapalloc

// Statistics summarizes one or more heaps. Byte counts are block sizes, so they include the
// boundary tags around each payload.
type Statistics struct {
	// HeapCount is the number of heaps that contributed to these statistics
	HeapCount int
	// HeapBytes is the number of bytes the heaps have obtained from their providers, including the
	// prologue, epilogue and alignment padding
	HeapBytes       int
	AllocationCount int
	AllocatedBytes  int
}

// Merge adds other into s
func (s *Statistics) Merge(other Statistics) {
	s.HeapCount += other.HeapCount
	s.HeapBytes += other.HeapBytes
	s.AllocationCount += other.AllocationCount
	s.AllocatedBytes += other.AllocatedBytes
}

// FreeBytes is the number of heap bytes not held by allocations, including sentinel overhead
func (s Statistics) FreeBytes() int {
	return s.HeapBytes - s.AllocatedBytes
}

// Utilization is the fraction of heap bytes held by allocations
func (s Statistics) Utilization() float64 {
	if s.HeapBytes == 0 {
		return 0
	}

	return float64(s.AllocatedBytes) / float64(s.HeapBytes)
}

// DetailedStatistics extends Statistics with a breakdown of free blocks and the size extremes
// of both kinds of block. The zero value is ready to use; the extremes are 0 until a block of
// that kind has been recorded.
type DetailedStatistics struct {
	Statistics
	FreeBlockCount     int
	FreeBlockBytes     int
	SmallestAllocation int
	LargestAllocation  int
	SmallestFreeBlock  int
	LargestFreeBlock   int
}

// RecordAllocation counts one allocated block of the given size
func (s *DetailedStatistics) RecordAllocation(size int) {
	s.SmallestAllocation, s.LargestAllocation = widen(s.AllocationCount, s.SmallestAllocation, s.LargestAllocation, size, size)
	s.AllocationCount++
	s.AllocatedBytes += size
}

// RecordFreeBlock counts one free block of the given size
func (s *DetailedStatistics) RecordFreeBlock(size int) {
	s.SmallestFreeBlock, s.LargestFreeBlock = widen(s.FreeBlockCount, s.SmallestFreeBlock, s.LargestFreeBlock, size, size)
	s.FreeBlockCount++
	s.FreeBlockBytes += size
}

// Merge adds other into s
func (s *DetailedStatistics) Merge(other DetailedStatistics) {
	if other.AllocationCount > 0 {
		s.SmallestAllocation, s.LargestAllocation = widen(s.AllocationCount, s.SmallestAllocation, s.LargestAllocation, other.SmallestAllocation, other.LargestAllocation)
	}
	if other.FreeBlockCount > 0 {
		s.SmallestFreeBlock, s.LargestFreeBlock = widen(s.FreeBlockCount, s.SmallestFreeBlock, s.LargestFreeBlock, other.SmallestFreeBlock, other.LargestFreeBlock)
	}

	s.Statistics.Merge(other.Statistics)
	s.FreeBlockCount += other.FreeBlockCount
	s.FreeBlockBytes += other.FreeBlockBytes
}

// Fragmentation is the share of free bytes that lie outside the largest free block: 0 when all
// free memory is one block, approaching 1 as it splinters
func (s DetailedStatistics) Fragmentation() float64 {
	if s.FreeBlockBytes == 0 {
		return 0
	}

	return 1 - float64(s.LargestFreeBlock)/float64(s.FreeBlockBytes)
}

func widen(count, smallest, largest, newSmallest, newLargest int) (int, int) {
	if count == 0 {
		return newSmallest, newLargest
	}

	return min(smallest, newSmallest), max(largest, newLargest)
}
