// Package provider supplies raw, contiguous memory to a heap on demand. A Provider behaves like
// sbrk(2): it only grows, it never relocates the bytes it has already handed out, and a request
// either succeeds in full or fails without side effects.
package provider

//go:generate mockgen -source provider.go -destination ./mocks/provider.go -package mocks

// Provider extends a contiguous region of memory
type Provider interface {
	// Sbrk grows the region by increment bytes and returns the offset of the previous break, which
	// is where the new bytes begin. If the region cannot grow by increment bytes, an error wrapping
	// heapalloc.ErrOutOfMemory is returned and the region is unchanged.
	Sbrk(increment int) (int, error)
	// Bytes returns the region from offset 0 up to the current break. The slice is only valid until
	// the next call to Sbrk, but the memory it refers to is never moved.
	Bytes() []byte
}
