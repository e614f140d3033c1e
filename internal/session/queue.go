package session

import (
	"context"
	"errors"
	"sync"

	"github.com/eapache/queue"
)

var errQueueClosed = errors.New("queue closed")

// handoff carries raw frames from the producer to the consumer in FIFO
// order. Put and Close are only called by the producer, Get only by the
// consumer.
type handoff interface {
	// Put enqueues a frame. A bounded queue blocks while full.
	Put(ctx context.Context, frame []byte) error
	// Get dequeues the next frame. ok is false once the queue is closed and
	// drained.
	Get(ctx context.Context) (frame []byte, ok bool, err error)
	// Close marks the end of the stream. Queued frames stay available.
	Close()
	Len() int
}

// newHandoff returns a bounded queue for size > 0 and an unbounded one
// otherwise.
func newHandoff(size int) handoff {
	if size > 0 {
		return &boundedQueue{items: make(chan []byte, size)}
	}
	return newUnboundedQueue()
}

type boundedQueue struct {
	items     chan []byte
	closeOnce sync.Once
}

func (q *boundedQueue) Put(ctx context.Context, frame []byte) error {
	select {
	case q.items <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *boundedQueue) Get(ctx context.Context) ([]byte, bool, error) {
	select {
	case frame, ok := <-q.items:
		return frame, ok, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (q *boundedQueue) Close() {
	q.closeOnce.Do(func() { close(q.items) })
}

func (q *boundedQueue) Len() int {
	return len(q.items)
}

type unboundedQueue struct {
	mu     sync.Mutex
	items  *queue.Queue
	closed bool
	ready  chan struct{}
}

func newUnboundedQueue() *unboundedQueue {
	return &unboundedQueue{
		items: queue.New(),
		ready: make(chan struct{}, 1),
	}
}

func (q *unboundedQueue) Put(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errQueueClosed
	}
	q.items.Add(frame)
	q.mu.Unlock()
	q.notify()
	return nil
}

func (q *unboundedQueue) Get(ctx context.Context) ([]byte, bool, error) {
	for {
		q.mu.Lock()
		if q.items.Length() > 0 {
			frame := q.items.Remove().([]byte)
			q.mu.Unlock()
			return frame, true, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, false, nil
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}

func (q *unboundedQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.notify()
}

func (q *unboundedQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}

func (q *unboundedQueue) notify() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
