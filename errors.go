package heapalloc

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// ErrOutOfMemory is returned when a raw memory provider cannot grant the requested growth. Errors
// returned from providers and from the heap wrap this value, so callers should test for it with errors.Is
var ErrOutOfMemory error = errors.New("out of address space")
