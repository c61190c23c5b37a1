package notification

// DefaultCapacity is the queue size used when none is configured.
const DefaultCapacity = 100

// Queue is a fixed-capacity FIFO ring buffer. Push rejects new items when
// full; nothing is overwritten. Queue is not safe for concurrent use.
type Queue struct {
	buf   []Notification
	head  int
	tail  int
	count int
}

// NewQueue returns an empty queue. Non-positive capacities fall back to
// DefaultCapacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{buf: make([]Notification, capacity)}
}

// Push appends n and reports whether it was accepted.
func (q *Queue) Push(n Notification) bool {
	if q.count == len(q.buf) {
		return false
	}
	q.buf[q.tail] = n
	q.tail = (q.tail + 1) % len(q.buf)
	q.count++
	return true
}

// Pop removes and returns the oldest notification.
func (q *Queue) Pop() (Notification, bool) {
	if q.count == 0 {
		return Notification{}, false
	}
	n := q.buf[q.head]
	q.buf[q.head] = Notification{}
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return n, true
}

// Len returns the number of queued notifications.
func (q *Queue) Len() int { return q.count }

// Cap returns the fixed capacity.
func (q *Queue) Cap() int { return len(q.buf) }
