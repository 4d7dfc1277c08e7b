package readpool

// segmentState tracks who owns a segment. It is only read or written while
// holding the owning pool's lock.
type segmentState uint8

const (
	segmentFree segmentState = iota
	segmentOutstanding
	segmentReleased
)

// Segment is a fixed-size off-heap memory buffer handed out by a Pool.
//
// A segment returned by RequestBuffers is owned by the caller until it is passed
// back to Recycle or RecycleAll. The caller must not touch Bytes after that.
type Segment struct {
	id    uint64
	data  []byte
	pool  *Pool
	state segmentState
}

// ID returns the segment's identifier, unique within its pool.
func (s *Segment) ID() uint64 { return s.id }

// Bytes returns the segment's memory. The slice is only valid while the caller
// owns the segment.
func (s *Segment) Bytes() []byte { return s.data }

// Size returns the segment size in bytes.
func (s *Segment) Size() int { return len(s.data) }
