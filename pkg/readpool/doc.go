// Package readpool provides the fixed-capacity buffer pool used by the batch
// shuffle read path.
//
// # Overview
//
// A Pool owns a bounded budget of equally-sized off-heap segments. Readers take
// segments in fixed-size batches, fill them with shuffle data, hand them on, and
// eventually give them back. The memory is allocated once, in bulk, on the first
// request, and released when the pool is destroyed.
//
//	Pool
//	├── plan      (Plan)          Buffer counts derived from the configuration
//	├── free      (queue.Queue)   FIFO ring of free segments
//	├── state     (State)         Uninitialized → Initialized → Destroyed
//	└── waitCh    (chan)          Closed to wake every blocked requester
//
// # Lifecycle
//
//  1. New validates the configuration and computes the Plan. No memory is touched.
//  2. The first RequestBuffers allocates every segment through the Allocator.
//     A partial allocation is unwound and reported as an *OutOfMemoryError.
//     The pool stays Uninitialized, so a later request retries.
//  3. RequestBuffers hands out NumBuffersPerRequest segments per call, blocking
//     until enough are free, the request timeout elapses, or ctx is done.
//  4. Recycle and RecycleAll return segments; waiters are woken once a full
//     batch is available.
//  5. Destroy releases every free segment and wakes all waiters, who fail with
//     ErrDestroyed. Segments recycled afterwards are released immediately.
//
// # Ownership
//
// Every Segment remembers whether it is free, outstanding or released. Recycling
// a segment that is not outstanding from the receiving pool fails with
// ErrInvalidArgument and leaves the pool untouched.
//
// # Waiting
//
// The deadline of a request is fixed when the pool is ready to serve it and is
// never extended by wakeups. Wakeups are broadcast: every waiter re-checks the
// free set, and no ordering between waiters is guaranteed.
package readpool
