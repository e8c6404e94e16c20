// Package loop provides the single cooperative dispatcher that goSession runs all
// observer callbacks and backend completions on.
//
// # Ordering
//
// Tasks run one at a time, in the order they were posted. Post never runs the task
// inline, so a task that posts more work cannot re-enter itself.
//
// # What this package must NOT do
//
//   - Run tasks concurrently.
//   - Drop accepted tasks: Close drains everything accepted before it.
package loop

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned when work is submitted after Close.
var ErrClosed = errors.New("loop closed")

// Dispatcher accepts tasks for later, serialized execution. Post reports false when the
// task was rejected.
type Dispatcher interface {
	Post(fn func()) bool
}

// Loop is a FIFO dispatcher backed by one goroutine.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	// inTask is set while a batch runs on the loop goroutine.
	inTask atomic.Bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// New starts a loop goroutine.
func New() *Loop {
	l := &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *Loop) run() {
	defer l.wg.Done()

	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			closed := l.closed
			l.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-l.wake:
			case <-l.done:
			}
			continue
		}
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		l.inTask.Store(true)
		for _, fn := range batch {
			fn()
		}
		l.inTask.Store(false)
	}
}

// Post enqueues fn. It is safe to call from any goroutine, including from a task.
func (l *Loop) Post(fn func()) bool {
	if l == nil || fn == nil {
		return false
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do posts fn and blocks until it has run. It must not be called from a task running on
// the same loop.
func (l *Loop) Do(fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}
	<-finished
	return nil
}

// Sync blocks until every task posted before it has run.
func (l *Loop) Sync() error {
	return l.Do(func() {})
}

// Close stops accepting work, runs what is queued and waits for the goroutine to exit.
// Called while a task is running, including from the task itself, Close returns without
// waiting and the loop exits on its own once the queue is empty. Close is idempotent.
func (l *Loop) Close() {
	if l == nil {
		return
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	close(l.done)
	if l.inTask.Load() {
		return
	}
	l.wg.Wait()
}
