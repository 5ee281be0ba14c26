package provider

import (
	"github.com/bytedance/gopkg/lang/dirtmake"
	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/heapalloc"
)

const (
	// DefaultArenaSize is the capacity used by NewArena when none is provided. It is equal to 20Mb.
	DefaultArenaSize int = 20 * 1024 * 1024
)

// Arena is a Provider backed by a single Go allocation of fixed capacity. The whole capacity is
// reserved up front and the break moves within it, so the backing array never moves.
type Arena struct {
	data []byte
}

var _ Provider = &Arena{}

// NewArena reserves maxSize bytes. If maxSize is not positive, DefaultArenaSize is used.
func NewArena(maxSize int) *Arena {
	if maxSize <= 0 {
		maxSize = DefaultArenaSize
	}

	return &Arena{
		// Contents are undefined until a heap formats them
		data: dirtmake.Bytes(0, maxSize),
	}
}

func (a *Arena) Sbrk(increment int) (int, error) {
	if increment < 0 {
		return 0, cerrors.Newf("arena cannot shrink: received increment %d", increment)
	}

	oldBreak := len(a.data)
	if increment > cap(a.data)-oldBreak {
		return 0, cerrors.Wrapf(heapalloc.ErrOutOfMemory, "arena cannot grow by %d bytes: %d of %d bytes are in use", increment, oldBreak, cap(a.data))
	}

	a.data = a.data[:oldBreak+increment]
	return oldBreak, nil
}

func (a *Arena) Bytes() []byte {
	return a.data
}

// Capacity is the number of bytes reserved by the arena
func (a *Arena) Capacity() int {
	return cap(a.data)
}

// Reset moves the break back to offset 0 so the arena can back a fresh heap. Any heap built on top
// of the arena is invalidated.
func (a *Arena) Reset() {
	a.data = a.data[:0]
}
