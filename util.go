package heapalloc

import (
	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Integer
}

func CheckPow2[T Number](number T, name string) error {
	if number <= 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// AlignUp rounds value up to the nearest multiple of alignment, which must be a power of two
func AlignUp(value int, alignment uint) int {
	DebugCheckPow2(alignment, "alignment")
	return (value + int(alignment) - 1) & int(^(alignment - 1))
}

// IsAligned reports whether value is a multiple of alignment, which must be a power of two
func IsAligned(value int, alignment uint) bool {
	DebugCheckPow2(alignment, "alignment")
	return value&int(alignment-1) == 0
}
