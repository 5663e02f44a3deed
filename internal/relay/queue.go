package relay

import "sync"

// lineQueue is a fixed-capacity FIFO of lines. When full, push discards the
// oldest line and the count is attached to the next line popped.
type lineQueue struct {
	mu      sync.Mutex
	lines   []string
	head    int
	count   int
	pending uint64 // drops not yet reported
	dropped uint64 // total drops
	closed  bool
	notify  chan struct{}
}

func newLineQueue(size int) *lineQueue {
	if size < 1 {
		size = 1
	}
	return &lineQueue{
		lines:  make([]string, size),
		notify: make(chan struct{}, 1),
	}
}

func (q *lineQueue) push(text string) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	if q.count == len(q.lines) {
		q.lines[q.head] = ""
		q.head = (q.head + 1) % len(q.lines)
		q.count--
		q.pending++
		q.dropped++
	}
	q.lines[(q.head+q.count)%len(q.lines)] = text
	q.count++
	q.mu.Unlock()

	q.wake()
}

// pop returns the oldest line. ok is false when the queue is empty;
// closed reports that no more lines will arrive.
func (q *lineQueue) pop() (line Line, ok, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return Line{}, false, q.closed
	}

	line = Line{Text: q.lines[q.head], Dropped: q.pending}
	q.lines[q.head] = ""
	q.head = (q.head + 1) % len(q.lines)
	q.count--
	q.pending = 0
	return line, true, false
}

func (q *lineQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

func (q *lineQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *lineQueue) droppedTotal() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
