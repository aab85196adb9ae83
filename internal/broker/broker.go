// Path: internal/broker/broker.go
package broker

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"chanbroker/internal/logger"
)

// SubscriberID identifies a subscription for the lifetime of the process.
type SubscriberID uint64

// ChannelInfo is a point-in-time view of a channel.
type ChannelInfo struct {
	Name        string `json:"name"`
	Subscribers int    `json:"subscribers"`
}

type subscription struct {
	id SubscriberID
	q  *queue
}

type channel struct {
	name string
	// subs is replaced, never modified in place, so a publish can fan out
	// from the slice it read without holding the registry lock.
	subs []subscription
	// fanout serializes publishes on this channel so every subscriber sees
	// the same payload order.
	fanout sync.Mutex
}

// Broker is an in-memory pub/sub registry of named channels.
// All registry reads and writes go through one exclusive lock; fan-out runs
// outside of it.
type Broker struct {
	mu       sync.Mutex
	channels map[string]*channel

	lastID atomic.Uint64

	queueCapacity   int
	policy          DeliveryPolicy
	deliveryTimeout time.Duration
	logger          *slog.Logger
}

// New creates an empty broker.
func New(opts ...Option) *Broker {
	b := &Broker{
		channels:      make(map[string]*channel),
		queueCapacity: DefaultQueueCapacity,
		policy:        BlockWhenFull,
		logger:        discardLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With(logger.Component("broker"))
	return b
}

// CreateChannel registers a new channel with no subscribers.
func (b *Broker) CreateChannel(ctx context.Context, name string) error {
	if name == "" {
		return ErrEmptyChannelName
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.channels[name]; exists {
		return &ChannelAlreadyExistsError{Channel: name}
	}
	b.channels[name] = &channel{name: name}

	b.logger.InfoContext(ctx, "channel created", logger.Channel(name))
	return nil
}

// Subscribe attaches a new subscriber to the channel and returns its id and
// the endpoint it receives payloads from. No id is consumed on failure.
func (b *Broker) Subscribe(ctx context.Context, name string) (SubscriberID, *Endpoint, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.channels[name]
	if !ok {
		return 0, nil, &ChannelNotFoundError{Channel: name}
	}

	id := SubscriberID(b.lastID.Add(1))
	q := newQueue(b.queueCapacity)

	subs := make([]subscription, len(ch.subs), len(ch.subs)+1)
	copy(subs, ch.subs)
	ch.subs = append(subs, subscription{id: id, q: q})

	b.logger.InfoContext(ctx, "subscriber added",
		logger.Channel(name),
		logger.SubscriberID(uint64(id)),
	)
	return id, &Endpoint{id: id, channel: name, q: q}, nil
}

// Unsubscribe removes the subscription with the given id from the channel.
// The endpoint keeps yielding what was already queued and then reports
// ErrEndpointClosed.
func (b *Broker) Unsubscribe(ctx context.Context, name string, id SubscriberID) error {
	q, err := b.detach(name, id)
	if err != nil {
		return err
	}
	q.close()

	b.logger.InfoContext(ctx, "subscriber removed",
		logger.Channel(name),
		logger.SubscriberID(uint64(id)),
	)
	return nil
}

func (b *Broker) detach(name string, id SubscriberID) (*queue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.channels[name]
	if !ok {
		return nil, &ChannelNotFoundError{Channel: name}
	}

	for i, sub := range ch.subs {
		if sub.id != id {
			continue
		}
		subs := make([]subscription, 0, len(ch.subs)-1)
		subs = append(subs, ch.subs[:i]...)
		subs = append(subs, ch.subs[i+1:]...)
		ch.subs = subs
		return sub.q, nil
	}
	return nil, &SubscriberNotFoundError{ID: id, Channel: name}
}

// Publish offers payload, in subscription order, to every subscriber of the
// channel at the time of the call. A failed delivery is logged and skipped;
// only an unknown channel makes Publish fail. Subscribers share the payload
// slice and must not modify it.
func (b *Broker) Publish(ctx context.Context, name string, payload []byte) error {
	ch, err := b.lookup(name)
	if err != nil {
		return err
	}

	ch.fanout.Lock()
	defer ch.fanout.Unlock()

	b.mu.Lock()
	subs := ch.subs
	b.mu.Unlock()

	b.logger.InfoContext(ctx, "publishing message",
		logger.Channel(name),
		logger.Count("subscribers", len(subs)),
		logger.Count("bytes", len(payload)),
	)

	for i, sub := range subs {
		err := sub.q.offer(ctx, payload, b.policy, b.deliveryTimeout)
		if err == nil {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			b.logger.WarnContext(ctx, "publish cancelled before fan-out finished",
				logger.Channel(name),
				logger.Count("undelivered", len(subs)-i),
				logger.Error(err),
			)
			return nil
		}
		b.logger.WarnContext(ctx, "delivery failed",
			logger.Channel(name),
			logger.SubscriberID(uint64(sub.id)),
			logger.Error(err),
		)
	}
	return nil
}

func (b *Broker) lookup(name string) (*channel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.channels[name]
	if !ok {
		return nil, &ChannelNotFoundError{Channel: name}
	}
	return ch, nil
}

// Channels returns every registered channel sorted by name.
func (b *Broker) Channels() []ChannelInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	infos := make([]ChannelInfo, 0, len(b.channels))
	for name, ch := range b.channels {
		infos = append(infos, ChannelInfo{Name: name, Subscribers: len(ch.subs)})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
