//go:build !(linux || darwin || freebsd)

package provider

import (
	cerrors "github.com/cockroachdb/errors"
)

// Mapped is only available on platforms with anonymous mmap support
type Mapped struct{}

var _ Provider = &Mapped{}

func NewMapped(reserve int) (*Mapped, error) {
	return nil, cerrors.New("memory-mapped providers are not supported on this platform")
}

func (m *Mapped) Sbrk(increment int) (int, error) {
	return 0, cerrors.New("memory-mapped providers are not supported on this platform")
}

func (m *Mapped) Bytes() []byte { return nil }

func (m *Mapped) Reserved() int { return 0 }

func (m *Mapped) Close() error { return nil }
