package readpool

import (
	"fmt"
	"sync"
)

// Allocator provides the raw memory behind pool segments.
//
// Allocate must return a slice of exactly size bytes, or an error wrapping
// ErrOutOfMemory when the memory is not available. Release returns memory obtained
// from Allocate; it is called at most once per slice.
type Allocator interface {
	Allocate(size int) ([]byte, error)
	Release(buf []byte) error
}

// HeapAllocator allocates segments on the Go heap.
//
// Limit, when positive, caps the bytes that may be outstanding at once; an
// allocation that would exceed it fails with ErrOutOfMemory. This makes the heap
// allocator usable as a bounded stand-in for off-heap memory.
type HeapAllocator struct {
	Limit int64

	mu    sync.Mutex
	inUse int64
}

// NewHeapAllocator creates a heap allocator with the given limit (0 = unlimited).
func NewHeapAllocator(limit int64) *HeapAllocator {
	return &HeapAllocator{Limit: limit}
}

// Allocate returns a zeroed slice of size bytes.
func (a *HeapAllocator) Allocate(size int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.Limit > 0 && a.inUse+int64(size) > a.Limit {
		return nil, fmt.Errorf("%w: heap limit %d bytes reached (in use: %d, requested: %d)",
			ErrOutOfMemory, a.Limit, a.inUse, size)
	}
	a.inUse += int64(size)
	return make([]byte, size), nil
}

// Release forgets buf. The memory is reclaimed by the garbage collector.
func (a *HeapAllocator) Release(buf []byte) error {
	a.mu.Lock()
	a.inUse -= int64(cap(buf))
	a.mu.Unlock()
	return nil
}

// InUse returns the number of bytes currently allocated and not released.
func (a *HeapAllocator) InUse() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inUse
}

// Allocator kinds accepted by NewAllocator.
const (
	AllocatorMmap = "mmap"
	AllocatorHeap = "heap"
)

// NewAllocator builds the allocator named by kind. lockMemory only applies to
// the mmap allocator.
func NewAllocator(kind string, lockMemory bool) (Allocator, error) {
	switch kind {
	case AllocatorHeap:
		return NewHeapAllocator(0), nil
	case AllocatorMmap, "":
		return newMmapAllocator(lockMemory)
	default:
		return nil, fmt.Errorf("%w: unknown allocator %q", ErrInvalidArgument, kind)
	}
}
