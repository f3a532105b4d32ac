package realtime

import "context"

// Queue is the bounded FIFO of serialized events pending for one subscriber.
// Producers are publish calls; the single consumer is the owning Session.
//
// The channel is never closed: a publish holding a registry snapshot may still
// offer to a queue whose subscriber has just unregistered.
type Queue struct {
	ch chan []byte
}

func newQueue(capacity int) *Queue {
	return &Queue{ch: make(chan []byte, capacity)}
}

// offer enqueues payload without blocking. It reports false when the queue is
// full and the payload was dropped.
func (q *Queue) offer(payload []byte) bool {
	select {
	case q.ch <- payload:
		return true
	default:
		return false
	}
}

// C exposes the receive side for select loops.
func (q *Queue) C() <-chan []byte {
	return q.ch
}

// Next blocks until a payload is available or ctx is done.
func (q *Queue) Next(ctx context.Context) ([]byte, error) {
	select {
	case p := <-q.ch:
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the number of pending payloads.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return cap(q.ch) }
