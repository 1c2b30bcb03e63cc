// Package ringqueue implements a mutable FIFO over a contiguous buffer,
// shared by the RTT estimators' sample queues, the TIME_WAIT timer
// queue, and the reordering classifier's packet-record store.
package ringqueue

// Queue is a FIFO of T, stored contiguously and wrapped modulo the
// buffer's length. A zero Queue with Increment set (via New) and
// Bounded false grows by Increment items whenever it fills; a queue
// constructed with Bounded true and a fixed Capacity instead rejects
// Add once full.
type Queue[T any] struct {
	buf       []T
	lower     int
	length    int
	bounded   bool
	increment int
}

// New creates an unbounded queue that grows by increment items at a time
// whenever it fills. increment must be positive.
func New[T any](increment int) *Queue[T] {
	if increment <= 0 {
		increment = 1
	}
	return &Queue[T]{increment: increment}
}

// NewBounded creates a queue with a fixed capacity; Add fails once the
// queue holds capacity items.
func NewBounded[T any](capacity int) *Queue[T] {
	return &Queue[T]{buf: make([]T, capacity), bounded: true}
}

// Len returns the number of items currently queued.
func (q *Queue[T]) Len() int {
	return q.length
}

// Cap returns the size of the backing buffer.
func (q *Queue[T]) Cap() int {
	return len(q.buf)
}

// Add appends item to the head of the queue, growing the backing buffer
// if necessary (and permitted), and returns a pointer to the stored
// slot. It returns false if the queue is bounded and full.
func (q *Queue[T]) Add(item T) (*T, bool) {
	if len(q.buf) == 0 {
		if q.bounded {
			return nil, false
		}
		q.buf = make([]T, q.increment)
	} else if q.length == len(q.buf) {
		if q.bounded {
			return nil, false
		}
		q.grow()
	}
	idx := q.lower + q.length
	if idx >= len(q.buf) {
		idx -= len(q.buf)
	}
	q.buf[idx] = item
	q.length++
	return &q.buf[idx], true
}

// grow reallocates the backing buffer, linearizing the existing contents
// starting at index 0 and resetting lower to 0. FIFO order is preserved.
func (q *Queue[T]) grow() {
	newBuf := make([]T, len(q.buf)+q.increment)
	for i := 0; i < q.length; i++ {
		newBuf[i] = q.buf[(q.lower+i)%len(q.buf)]
	}
	q.buf = newBuf
	q.lower = 0
}

// PopBottom removes and returns the lowest (oldest) item in the queue.
func (q *Queue[T]) PopBottom() (T, bool) {
	var zero T
	if q.length == 0 {
		return zero, false
	}
	item := q.buf[q.lower]
	q.buf[q.lower] = zero
	q.lower++
	if q.lower == len(q.buf) {
		q.lower = 0
	}
	q.length--
	return item, true
}

// Clear empties the queue without releasing the backing buffer.
func (q *Queue[T]) Clear() {
	q.lower = 0
	q.length = 0
}

// PeekBottom returns a pointer to the lowest (oldest) item without
// removing it.
func (q *Queue[T]) PeekBottom() (*T, bool) {
	if q.length == 0 {
		return nil, false
	}
	return &q.buf[q.lower], true
}

// PeekTop returns a pointer to the highest (newest) item without
// removing it.
func (q *Queue[T]) PeekTop() (*T, bool) {
	if q.length == 0 {
		return nil, false
	}
	idx := (q.lower + q.length - 1) % len(q.buf)
	return &q.buf[idx], true
}

// Iterator walks a Queue from the bottom (oldest) item forward. Remove
// only ever advances the queue's lower index, so it is only valid when
// called on the iterator's *current* position while that position is
// still the bottom element of the queue — i.e. callers must call Remove
// before calling Next again if they intend to keep removing a contiguous
// prefix. This mirrors queue_itr_remove in the original, which is used
// exactly this way to "acknowledge a contiguous prefix".
type Iterator[T any] struct {
	q       *Queue[T]
	visited int
	pos     int
}

// Begin returns an iterator positioned at the bottom of the queue, and
// true if the queue is non-empty.
func (q *Queue[T]) Begin() (*Iterator[T], bool) {
	if q.length == 0 {
		return nil, false
	}
	return &Iterator[T]{q: q, visited: 1, pos: q.lower}, true
}

// Item returns a pointer to the item at the iterator's current position.
func (it *Iterator[T]) Item() *T {
	return &it.q.buf[it.pos]
}

// Next advances the iterator, returning false once every item present
// when Begin/Next was last successful has been visited.
func (it *Iterator[T]) Next() bool {
	if it.visited == it.q.length {
		return false
	}
	it.pos++
	if it.pos == len(it.q.buf) {
		it.pos = 0
	}
	it.visited++
	return true
}

// Remove removes the item at the iterator's current position from the
// queue. It is only valid to call this on the bottom element of the
// queue (i.e. immediately after Begin, or after a sequence of Removes
// with no intervening Next) — it always advances the queue's lower
// index regardless of where the iterator's logical position was.
func (it *Iterator[T]) Remove() {
	var zero T
	it.q.buf[it.q.lower] = zero
	it.q.lower++
	if it.q.lower == len(it.q.buf) {
		it.q.lower = 0
	}
	it.q.length--
	it.visited--
}
