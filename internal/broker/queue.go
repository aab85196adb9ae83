// Path: internal/broker/queue.go
package broker

import (
	"context"
	"sync"
	"time"
)

// DefaultQueueCapacity is the number of payloads a subscriber can have pending.
const DefaultQueueCapacity = 100

// queue is the bounded delivery path of one subscription. The registry keeps
// the producer side, the subscriber receives the consumer side as an *Endpoint.
type queue struct {
	ch chan []byte

	// mu is held for reading by every offer and for writing while ch is
	// closed, so a send never races with close(ch).
	mu          sync.RWMutex
	closing     chan struct{} // producer side closed by Unsubscribe
	closeOnce   sync.Once
	discarded   chan struct{} // consumer side closed by the subscriber
	discardOnce sync.Once
}

func newQueue(capacity int) *queue {
	return &queue{
		ch:        make(chan []byte, capacity),
		closing:   make(chan struct{}),
		discarded: make(chan struct{}),
	}
}

// offer hands payload to the subscriber according to policy.
func (q *queue) offer(ctx context.Context, payload []byte, policy DeliveryPolicy, timeout time.Duration) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	select {
	case <-q.closing:
		return ErrEndpointClosed
	case <-q.discarded:
		return ErrSubscriberGone
	default:
	}

	if policy == DropWhenFull {
		select {
		case q.ch <- payload:
			return nil
		default:
			return ErrQueueFull
		}
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case q.ch <- payload:
		return nil
	case <-q.closing:
		return ErrEndpointClosed
	case <-q.discarded:
		return ErrSubscriberGone
	case <-expired:
		return ErrDeliveryTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close shuts the producer side. Payloads already queued stay readable.
func (q *queue) close() {
	q.closeOnce.Do(func() {
		close(q.closing)
		q.mu.Lock()
		close(q.ch)
		q.mu.Unlock()
	})
}

func (q *queue) discard() {
	q.discardOnce.Do(func() {
		close(q.discarded)
	})
}

// Endpoint is the consumer side of a subscription. It is safe for concurrent
// use, although a single reader keeps payloads in publish order.
type Endpoint struct {
	id      SubscriberID
	channel string
	q       *queue
}

// ID returns the subscriber id assigned by Subscribe.
func (e *Endpoint) ID() SubscriberID { return e.id }

// Channel returns the name of the channel the endpoint is subscribed to.
func (e *Endpoint) Channel() string { return e.channel }

// Len returns the number of payloads waiting to be received.
func (e *Endpoint) Len() int { return len(e.q.ch) }

// Receive blocks until the next payload is available. It returns
// ErrEndpointClosed after the subscription was removed and the queue has been
// drained, or once the endpoint itself was closed.
func (e *Endpoint) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-e.q.discarded:
		return nil, ErrEndpointClosed
	default:
	}

	select {
	case payload, ok := <-e.q.ch:
		if !ok {
			return nil, ErrEndpointClosed
		}
		return payload, nil
	case <-e.q.discarded:
		return nil, ErrEndpointClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Messages exposes the queue as a channel. It is closed when the subscription
// is removed by Unsubscribe; closing the endpoint does not close it.
func (e *Endpoint) Messages() <-chan []byte {
	return e.q.ch
}

// Close tells the broker the subscriber is no longer interested. The broker
// notices on the next publish to the channel, when delivery fails.
func (e *Endpoint) Close() {
	e.q.discard()
}
