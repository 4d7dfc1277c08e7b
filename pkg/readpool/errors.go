package readpool

import (
	"errors"
	"fmt"
)

// Pool errors. Use errors.Is to classify a failure returned by the pool.
var (
	// ErrConfiguration is returned by New when the construction arguments are invalid.
	ErrConfiguration = errors.New("invalid buffer pool configuration")

	// ErrOutOfMemory is returned when the bulk allocation cannot secure the full
	// configured capacity.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrTimeout is returned when a request cannot be satisfied before its deadline.
	ErrTimeout = errors.New("buffer request timed out")

	// ErrDestroyed is returned by requests made during or after Destroy.
	ErrDestroyed = errors.New("buffer pool is already destroyed")

	// ErrInvalidArgument reports a caller contract violation.
	ErrInvalidArgument = errors.New("invalid argument")
)

// ConfigError describes a rejected construction argument.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrConfiguration, e.Field, e.Message)
}

// Is reports whether target is ErrConfiguration.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

// OutOfMemoryError is returned when bulk allocation fails partway. Every segment
// allocated before the failure has already been released when it is returned.
type OutOfMemoryError struct {
	// AllocatedBytes is how much was successfully allocated before the failure.
	AllocatedBytes int64

	// MissingBytes is how much was still needed to complete the allocation.
	MissingBytes int64

	// Keys names the configuration options an operator can adjust.
	Keys ConfigKeys

	// Cause is the allocator error that stopped the allocation.
	Cause error
}

func (e *OutOfMemoryError) Error() string {
	msg := fmt.Sprintf("can't allocate enough memory for the batch shuffle read buffer pool "+
		"(bytes allocated: %d, bytes still needed: %d)", e.AllocatedBytes, e.MissingBytes)

	k := e.Keys
	if k.FrameworkOffHeapMemory != "" && k.ReadMemory != "" && k.TaskOffHeapMemory != "" {
		msg += fmt.Sprintf(". To avoid the error, do one of the following: "+
			"1) if you have ever decreased %s, undo the decrement; "+
			"2) if you have ever increased %s, also increase %s; "+
			"3) otherwise other parts of the application have consumed too much off-heap memory "+
			"and %s should be increased",
			k.FrameworkOffHeapMemory, k.ReadMemory, k.FrameworkOffHeapMemory, k.TaskOffHeapMemory)
	}

	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Is reports whether target is ErrOutOfMemory.
func (e *OutOfMemoryError) Is(target error) bool {
	return target == ErrOutOfMemory
}

// Unwrap returns the allocator error.
func (e *OutOfMemoryError) Unwrap() error {
	return e.Cause
}

// ConfigKeys carries the configuration key names embedded in diagnostic messages.
// The configuration layer supplies them; empty keys produce neutral wording.
type ConfigKeys struct {
	// ReadMemory is the key for the total memory of the pool.
	ReadMemory string

	// SegmentSize is the key for the size of a single buffer.
	SegmentSize string

	// FrameworkOffHeapMemory is the key for the framework off-heap budget.
	FrameworkOffHeapMemory string

	// TaskOffHeapMemory is the key for the task off-heap budget.
	TaskOffHeapMemory string
}

func (k ConfigKeys) readMemory() string {
	if k.ReadMemory == "" {
		return "the total read memory"
	}
	return "'" + k.ReadMemory + "'"
}

func (k ConfigKeys) segmentSize() string {
	if k.SegmentSize == "" {
		return "the buffer size"
	}
	return "'" + k.SegmentSize + "'"
}

func timeoutError(keys ConfigKeys) error {
	return fmt.Errorf("%w: can't allocate enough buffers in the given timeout, which means there is "+
		"a fierce contention for read buffers, please increase %s", ErrTimeout, keys.readMemory())
}
