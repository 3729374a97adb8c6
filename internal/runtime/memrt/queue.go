package memrt

import "sync"

// recordQueue is a thread-safe FIFO of input records.
//
// The queue is unbounded so producers (the CLI reader, tests) never block
// on the processing loop. A buffered signal channel lets Run wait with a
// context instead of blocking inside the queue.
type recordQueue struct {
	mu      sync.Mutex
	records []Record
	closed  bool
	signal  chan struct{} // buffered, size 1
}

func newRecordQueue() *recordQueue {
	return &recordQueue{
		records: make([]Record, 0, 64),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds a record to the back of the queue.
// Returns false if the queue is closed.
func (q *recordQueue) Enqueue(r Record) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.records = append(q.records, r)

	// Buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front record without blocking.
func (q *recordQueue) TryDequeue() (Record, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.records) == 0 {
		return Record{}, false
	}

	r := q.records[0]

	// Drop the slot's byte slices so the backing array does not retain them.
	q.records[0] = Record{}

	if len(q.records) == 1 {
		q.records = q.records[:0]
	} else {
		q.records = q.records[1:]
	}

	return r, true
}

// Wait returns a channel that signals when records may be available.
// The channel is closed when the queue is closed.
func (q *recordQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued records.
func (q *recordQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}

// Drained reports whether the queue is closed and empty.
func (q *recordQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.records) == 0
}

// Close stops further enqueues and wakes any waiter.
func (q *recordQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
