package eventlog

// DefaultCapacity is the ring buffer size used when none is configured.
const DefaultCapacity = 1000

// Ring is a fixed-capacity FIFO of events with O(1) append.
// It is not safe for concurrent use; Logger guards it.
type Ring struct {
	buf   []*Event
	start int
	size  int
}

// NewRing creates a ring holding at most capacity events.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{buf: make([]*Event, capacity)}
}

// Push appends e, evicting the oldest event when full.
func (r *Ring) Push(e *Event) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = e
		r.size++
		return
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

// Last returns up to n of the newest events, oldest first.
// n <= 0 returns everything buffered.
func (r *Ring) Last(n int) []*Event {
	if n <= 0 || n > r.size {
		n = r.size
	}
	out := make([]*Event, n)
	first := r.start + r.size - n
	for i := 0; i < n; i++ {
		out[i] = r.buf[(first+i)%len(r.buf)]
	}
	return out
}

// Len returns the number of buffered events.
func (r *Ring) Len() int {
	return r.size
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}
