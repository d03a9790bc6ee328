package executor

import "sync"

// inbox is the executor's unbounded FIFO of commands.
//
// It is unbounded so that Inform never blocks the environment, however long
// the executor is busy inside a component action.
//
// Any goroutine may Put; only the executor loop takes. The buffered signal
// channel lets the loop wait in a select alongside its context.
type inbox struct {
	mu     sync.Mutex
	items  []command
	closed bool
	signal chan struct{} // buffered, size 1
}

func newInbox() *inbox {
	return &inbox{
		items:  make([]command, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Put appends a command. Returns false if the inbox is closed.
func (q *inbox) Put(c command) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, c)

	// Non-blocking: a pending signal already covers this item.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryTake removes and returns the front command without blocking.
func (q *inbox) TryTake() (command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return command{}, false
	}
	c := q.items[0]
	// Clear the slot so reply channels and payloads can be collected.
	q.items[0] = command{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return c, true
}

// Wait returns a channel that signals when commands may be available.
func (q *inbox) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued commands.
func (q *inbox) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further commands and drains what is queued. The drained
// commands are returned so their callers can be answered.
func (q *inbox) Close() []command {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	rest := q.items
	q.items = nil
	return rest
}
