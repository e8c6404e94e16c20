package loop

import "sync"

// Manual is a Dispatcher that only runs tasks when Drain is called. Tests use it to step
// through callback ordering deterministically.
type Manual struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
}

// NewManual returns an empty manual queue.
func NewManual() *Manual {
	return &Manual{}
}

// Post enqueues fn.
func (m *Manual) Post(fn func()) bool {
	if fn == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.queue = append(m.queue, fn)
	return true
}

// Len returns the number of queued tasks.
func (m *Manual) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Step runs the oldest queued task and reports whether one existed.
func (m *Manual) Step() bool {
	m.mu.Lock()
	if len(m.queue) == 0 {
		m.mu.Unlock()
		return false
	}
	fn := m.queue[0]
	m.queue = m.queue[1:]
	m.mu.Unlock()

	fn()
	return true
}

// Drain runs tasks until the queue is empty, including tasks posted while draining, and
// returns how many ran.
func (m *Manual) Drain() int {
	n := 0
	for m.Step() {
		n++
	}
	return n
}

// Close rejects further posts. Queued tasks stay queued until drained.
func (m *Manual) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}
