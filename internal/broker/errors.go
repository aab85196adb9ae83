// Path: internal/broker/errors.go
package broker

import (
	"errors"
	"fmt"
)

var (
	// ErrChannelAlreadyExists is matched by *ChannelAlreadyExistsError.
	ErrChannelAlreadyExists = errors.New("channel already exists")

	// ErrChannelNotFound is matched by *ChannelNotFoundError.
	ErrChannelNotFound = errors.New("channel not found")

	// ErrSubscriberNotFound is matched by *SubscriberNotFoundError.
	ErrSubscriberNotFound = errors.New("subscriber not found")

	// ErrEmptyChannelName is returned when a channel is created without a name.
	ErrEmptyChannelName = errors.New("channel name must not be empty")

	// ErrEndpointClosed is returned by Endpoint.Receive once the subscription
	// was removed and every queued payload has been consumed, or after the
	// consumer closed the endpoint itself.
	ErrEndpointClosed = errors.New("endpoint closed")

	// Delivery failures. These never leave Publish; they are only logged.
	ErrSubscriberGone  = errors.New("subscriber discarded its endpoint")
	ErrQueueFull       = errors.New("subscriber queue is full")
	ErrDeliveryTimeout = errors.New("delivery timed out")
)

// ChannelAlreadyExistsError reports an attempt to create a registered channel.
type ChannelAlreadyExistsError struct {
	Channel string
}

func (e *ChannelAlreadyExistsError) Error() string {
	return fmt.Sprintf("Channel '%s' already exists", e.Channel)
}

func (e *ChannelAlreadyExistsError) Is(target error) bool {
	return target == ErrChannelAlreadyExists
}

// ChannelNotFoundError reports an operation on a channel that is not registered.
type ChannelNotFoundError struct {
	Channel string
}

func (e *ChannelNotFoundError) Error() string {
	return fmt.Sprintf("Channel '%s' not found", e.Channel)
}

func (e *ChannelNotFoundError) Is(target error) bool {
	return target == ErrChannelNotFound
}

// SubscriberNotFoundError reports an unsubscribe for an id that is not
// currently active on the channel.
type SubscriberNotFoundError struct {
	ID      SubscriberID
	Channel string
}

func (e *SubscriberNotFoundError) Error() string {
	return fmt.Sprintf("Subscriber '%d' not found in channel '%s'", e.ID, e.Channel)
}

func (e *SubscriberNotFoundError) Is(target error) bool {
	return target == ErrSubscriberNotFound
}
