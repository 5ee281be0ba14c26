//go:build linux || darwin || freebsd

package provider

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/heapalloc"
	"golang.org/x/sys/unix"
)

// Mapped is a Provider backed by an anonymous memory mapping. The full reservation is mapped
// without access rights when the provider is created, and pages are made readable and writable
// as the break moves past them.
type Mapped struct {
	mem       []byte
	brk       int
	committed int
	pageSize  int
}

var _ Provider = &Mapped{}

// NewMapped reserves at least reserve bytes of address space, rounded up to the page size
func NewMapped(reserve int) (*Mapped, error) {
	if reserve <= 0 {
		return nil, cerrors.Newf("invalid reservation size: %d", reserve)
	}

	pageSize := unix.Getpagesize()
	if err := heapalloc.CheckPow2(pageSize, "page size"); err != nil {
		return nil, err
	}
	reserve = heapalloc.AlignUp(reserve, uint(pageSize))

	mem, err := unix.Mmap(-1, 0, reserve, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, cerrors.Wrapf(err, "failed to reserve %d bytes of address space", reserve)
	}

	return &Mapped{
		mem:      mem,
		pageSize: pageSize,
	}, nil
}

func (m *Mapped) Sbrk(increment int) (int, error) {
	if m.mem == nil {
		return 0, cerrors.New("mapping has been closed")
	}
	if increment < 0 {
		return 0, cerrors.Newf("mapping cannot shrink: received increment %d", increment)
	}

	oldBreak := m.brk
	if increment > len(m.mem)-oldBreak {
		return 0, cerrors.Wrapf(heapalloc.ErrOutOfMemory, "mapping cannot grow by %d bytes: %d of %d bytes are in use", increment, oldBreak, len(m.mem))
	}

	newBreak := oldBreak + increment
	if newBreak > m.committed {
		commitEnd := heapalloc.AlignUp(newBreak, uint(m.pageSize))
		err := unix.Mprotect(m.mem[m.committed:commitEnd], unix.PROT_READ|unix.PROT_WRITE)
		if err != nil {
			return 0, cerrors.Wrapf(heapalloc.ErrOutOfMemory, "failed to commit %d bytes: %v", commitEnd-m.committed, err)
		}
		m.committed = commitEnd
	}

	m.brk = newBreak
	return oldBreak, nil
}

func (m *Mapped) Bytes() []byte {
	return m.mem[:m.brk:m.brk]
}

// Reserved is the number of bytes of address space held by the mapping
func (m *Mapped) Reserved() int {
	return len(m.mem)
}

// Close releases the mapping. Any heap built on top of it must not be used afterward.
func (m *Mapped) Close() error {
	if m.mem == nil {
		return nil
	}

	err := unix.Munmap(m.mem)
	m.mem = nil
	m.brk = 0
	m.committed = 0
	return err
}
