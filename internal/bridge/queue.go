package bridge

import (
	"sync"

	"github.com/vk/patchgridgo/internal/protocol"
)

// eventQueue is an unbounded FIFO between the bridge's emit paths and the
// session's receive channel. The bridge holds the live service connection
// and must never block while emitting, so a bounded channel is not an
// option here; the queue buffers in memory instead.
type eventQueue struct {
	in  chan protocol.Event
	out chan protocol.Event

	mu     sync.Mutex
	closed bool
}

func newEventQueue() *eventQueue {
	q := &eventQueue{
		in:  make(chan protocol.Event),
		out: make(chan protocol.Event),
	}
	go q.pump()
	return q
}

// pump shuttles events from in to out through an in-memory buffer. It is
// always ready to receive, which is what keeps Push non-blocking in
// practice. The out channel is closed once in is closed and drained.
func (q *eventQueue) pump() {
	var buf []protocol.Event
	in := q.in
	for in != nil || len(buf) > 0 {
		var out chan protocol.Event
		var next protocol.Event
		if len(buf) > 0 {
			out = q.out
			next = buf[0]
		}
		select {
		case ev, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			buf = append(buf, ev)
		case out <- next:
			buf = buf[1:]
		}
	}
	close(q.out)
}

// Push enqueues an event. Pushing after Close is a silent no-op; the
// connection's receive path can still fire callbacks briefly while the
// bridge is shutting down.
func (q *eventQueue) Push(ev protocol.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.in <- ev
}

// Out is the receive side consumed by the session.
func (q *eventQueue) Out() <-chan protocol.Event {
	return q.out
}

// Close stops the queue. Already queued events are still delivered.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.in)
}
