//go:build unix

package readpool

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// MmapAllocator maps every segment as a private anonymous mapping, outside the
// Go heap. With Lock set the pages are also locked into RAM (mlock), which needs
// a sufficient RLIMIT_MEMLOCK or CAP_IPC_LOCK.
type MmapAllocator struct {
	Lock bool
}

// NewMmapAllocator creates an mmap-backed allocator.
func NewMmapAllocator(lock bool) *MmapAllocator {
	return &MmapAllocator{Lock: lock}
}

// Allocate maps size bytes of zeroed memory.
func (a *MmapAllocator) Allocate(size int) ([]byte, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, mmapError("mmap", size, err)
	}

	if a.Lock {
		if err := unix.Mlock(data); err != nil {
			_ = unix.Munmap(data)
			return nil, mmapError("mlock", size, err)
		}
	}

	return data, nil
}

// Release unmaps buf. Locked pages are unlocked by the unmap.
func (a *MmapAllocator) Release(buf []byte) error {
	if err := unix.Munmap(buf); err != nil {
		return fmt.Errorf("munmap %d bytes: %w", len(buf), err)
	}
	return nil
}

func mmapError(op string, size int, err error) error {
	if errors.Is(err, unix.ENOMEM) || errors.Is(err, unix.EAGAIN) {
		return fmt.Errorf("%w: %s %d bytes: %v", ErrOutOfMemory, op, size, err)
	}
	return fmt.Errorf("%s %d bytes: %w", op, size, err)
}

func newMmapAllocator(lock bool) (Allocator, error) {
	return NewMmapAllocator(lock), nil
}

// DefaultAllocator returns the off-heap mmap allocator without page locking.
func DefaultAllocator() Allocator {
	return NewMmapAllocator(false)
}
