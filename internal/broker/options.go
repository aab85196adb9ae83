// Path: internal/broker/options.go
package broker

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// DeliveryPolicy decides what a publish does when a subscriber queue is full.
type DeliveryPolicy int

const (
	// BlockWhenFull waits for the subscriber to make room, bounded by the
	// delivery timeout (if any) and the publish context.
	BlockWhenFull DeliveryPolicy = iota
	// DropWhenFull fails the delivery immediately and moves on.
	DropWhenFull
)

func (p DeliveryPolicy) String() string {
	switch p {
	case BlockWhenFull:
		return "block"
	case DropWhenFull:
		return "drop"
	default:
		return fmt.Sprintf("DeliveryPolicy(%d)", int(p))
	}
}

// ParseDeliveryPolicy converts a config value ("block" or "drop") to a policy.
func ParseDeliveryPolicy(s string) (DeliveryPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "block":
		return BlockWhenFull, nil
	case "drop":
		return DropWhenFull, nil
	default:
		return BlockWhenFull, fmt.Errorf("unknown delivery policy %q", s)
	}
}

// Option configures a Broker.
type Option func(*Broker)

// WithQueueCapacity sets the per-subscriber queue capacity. Values below 1 are
// ignored.
func WithQueueCapacity(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.queueCapacity = n
		}
	}
}

// WithDeliveryPolicy sets how publish treats a full subscriber queue.
func WithDeliveryPolicy(p DeliveryPolicy) Option {
	return func(b *Broker) {
		b.policy = p
	}
}

// WithDeliveryTimeout bounds how long a blocking delivery may wait for a
// single subscriber. Zero waits until the publish context is done.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(b *Broker) {
		if d >= 0 {
			b.deliveryTimeout = d
		}
	}
}

// WithLogger sets the logger that receives broker notices.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
