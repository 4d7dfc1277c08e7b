//go:build !unix

package readpool

import "fmt"

func newMmapAllocator(bool) (Allocator, error) {
	return nil, fmt.Errorf("%w: the mmap allocator is only available on unix platforms", ErrInvalidArgument)
}

// DefaultAllocator returns a heap allocator; anonymous mappings are only
// available on unix platforms.
func DefaultAllocator() Allocator {
	return NewHeapAllocator(0)
}
