// Package ringbuf provides a fixed-capacity FIFO ring buffer.
package ringbuf

// Ring holds at most Cap() values. Pushing onto a full ring evicts the
// oldest value. The zero value is not usable; create rings with New.
//
// Ring is not safe for concurrent use.
type Ring[T any] struct {
	buf  []T
	head int // index of the oldest value
	n    int
}

// New returns an empty ring with the given capacity. It panics if capacity
// is less than 1.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		panic("ringbuf: capacity must be at least 1")
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v as the newest value. If the ring was full the oldest value
// is removed and returned with evicted == true.
func (r *Ring[T]) Push(v T) (old T, evicted bool) {
	if r.n < len(r.buf) {
		r.buf[(r.head+r.n)%len(r.buf)] = v
		r.n++
		return old, false
	}
	old = r.buf[r.head]
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	return old, true
}

// Len returns the number of values held.
func (r *Ring[T]) Len() int { return r.n }

// Cap returns the maximum number of values the ring holds.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Slice returns a copy of the values, oldest first. It never returns nil.
func (r *Ring[T]) Slice() []T {
	out := make([]T, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}
