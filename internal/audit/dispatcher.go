package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// Dispatcher hands audit events to a sink from a single worker, so sign-in paths never
// wait on sink I/O. At most BufferSize events wait at once. A full buffer either drops
// and counts the event (DropIfFull) or makes Emit wait for a slot until ctx ends.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool

	// slots holds one token per free buffer position.
	slots chan struct{}

	mu      sync.Mutex
	pending []Event
	wake    chan struct{}
	stop    chan struct{}
	exited  chan struct{}

	dropped   atomic.Uint64
	delivered atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts a dispatcher. It returns nil when auditing is disabled; a nil
// dispatcher accepts and ignores every call.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	size := max(cfg.BufferSize, 1)
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		slots:      make(chan struct{}, size),
		wake:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
		exited:     make(chan struct{}),
	}
	for i := 0; i < size; i++ {
		d.slots <- struct{}{}
	}
	go d.work()
	return d
}

func (d *Dispatcher) work() {
	defer close(d.exited)
	for {
		batch := d.take()
		if len(batch) == 0 {
			select {
			case <-d.wake:
				continue
			case <-d.stop:
				for batch = d.take(); len(batch) > 0; batch = d.take() {
					d.deliver(batch)
				}
				return
			}
		}
		d.deliver(batch)
	}
}

// take removes everything pending and frees its buffer slots.
func (d *Dispatcher) take() []Event {
	d.mu.Lock()
	batch := d.pending
	d.pending = nil
	d.mu.Unlock()
	for range batch {
		d.slots <- struct{}{}
	}
	return batch
}

func (d *Dispatcher) deliver(batch []Event) {
	for _, event := range batch {
		d.sink.Emit(context.Background(), event)
		d.delivered.Add(1)
	}
}

// Emit queues event for the sink. Events emitted after Close are ignored.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull {
		select {
		case <-d.slots:
		default:
			d.dropped.Add(1)
			return
		}
	} else {
		select {
		case <-d.slots:
		case <-ctx.Done():
			d.dropped.Add(1)
			return
		case <-d.stop:
			return
		}
	}

	d.mu.Lock()
	d.pending = append(d.pending, event)
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Close stops accepting events and waits until queued events reach the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		<-d.exited
	})
}

// Dropped counts events lost to a full buffer or an expired context.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}
