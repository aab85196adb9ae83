package broker_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"chanbroker/internal/broker"
	"chanbroker/internal/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// syncBuffer lets the broker log from several goroutines while a test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestBroker(t *testing.T, opts ...broker.Option) (*broker.Broker, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	log := logger.New(logger.WithOutput(out), logger.WithLevel(slog.LevelDebug))
	b := broker.New(append([]broker.Option{broker.WithLogger(log)}, opts...)...)
	return b, out
}

func receive(t *testing.T, e *broker.Endpoint) []byte {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := e.Receive(ctx)
	require.NoError(t, err)
	return msg
}

func TestBroker_PublishSubscribeScenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, _ := newTestBroker(t)

	require.NoError(t, b.CreateChannel(ctx, "test"))

	id1, e1, err := b.Subscribe(ctx, "test")
	require.NoError(t, err)
	_, e2, err := b.Subscribe(ctx, "test")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "test", []byte("hello")))
	assert.Equal(t, []byte("hello"), receive(t, e1))
	assert.Equal(t, []byte("hello"), receive(t, e2))

	require.NoError(t, b.Unsubscribe(ctx, "test", id1))
	require.NoError(t, b.Publish(ctx, "test", []byte("world")))
	assert.Equal(t, []byte("world"), receive(t, e2))

	_, err = e1.Receive(ctx)
	assert.ErrorIs(t, err, broker.ErrEndpointClosed)
}

func TestBroker_CreateChannel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("duplicate name is rejected", func(t *testing.T) {
		t.Parallel()
		b, _ := newTestBroker(t)

		require.NoError(t, b.CreateChannel(ctx, "news"))
		_, _, err := b.Subscribe(ctx, "news")
		require.NoError(t, err)

		err = b.CreateChannel(ctx, "news")
		require.ErrorIs(t, err, broker.ErrChannelAlreadyExists)

		var exists *broker.ChannelAlreadyExistsError
		require.ErrorAs(t, err, &exists)
		assert.Equal(t, "news", exists.Channel)
		assert.Equal(t, "Channel 'news' already exists", err.Error())

		assert.Equal(t, []broker.ChannelInfo{{Name: "news", Subscribers: 1}}, b.Channels())
	})

	t.Run("names are case sensitive", func(t *testing.T) {
		t.Parallel()
		b, _ := newTestBroker(t)

		require.NoError(t, b.CreateChannel(ctx, "News"))
		require.NoError(t, b.CreateChannel(ctx, "news"))
		assert.Len(t, b.Channels(), 2)
	})

	t.Run("empty name is rejected", func(t *testing.T) {
		t.Parallel()
		b, _ := newTestBroker(t)

		require.ErrorIs(t, b.CreateChannel(ctx, ""), broker.ErrEmptyChannelName)
		assert.Empty(t, b.Channels())
	})

	t.Run("logs a notice", func(t *testing.T) {
		t.Parallel()
		b, out := newTestBroker(t)

		require.NoError(t, b.CreateChannel(ctx, "general"))
		assert.Contains(t, out.String(), "channel created")
		assert.Contains(t, out.String(), "channel=general")
	})
}

func TestBroker_Subscribe(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("unknown channel does not consume an id", func(t *testing.T) {
		t.Parallel()
		b, _ := newTestBroker(t)
		require.NoError(t, b.CreateChannel(ctx, "a"))

		_, e, err := b.Subscribe(ctx, "missing")
		require.ErrorIs(t, err, broker.ErrChannelNotFound)
		assert.Nil(t, e)

		var notFound *broker.ChannelNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "missing", notFound.Channel)

		id, _, err := b.Subscribe(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, broker.SubscriberID(1), id)
	})

	t.Run("ids are global and increasing", func(t *testing.T) {
		t.Parallel()
		b, _ := newTestBroker(t)
		require.NoError(t, b.CreateChannel(ctx, "a"))
		require.NoError(t, b.CreateChannel(ctx, "b"))

		var ids []broker.SubscriberID
		for _, name := range []string{"a", "b", "a", "b"} {
			id, e, err := b.Subscribe(ctx, name)
			require.NoError(t, err)
			assert.Equal(t, id, e.ID())
			assert.Equal(t, name, e.Channel())
			ids = append(ids, id)
		}
		assert.Equal(t, []broker.SubscriberID{1, 2, 3, 4}, ids)
	})

	t.Run("ids are never reused", func(t *testing.T) {
		t.Parallel()
		b, _ := newTestBroker(t)
		require.NoError(t, b.CreateChannel(ctx, "a"))

		id, _, err := b.Subscribe(ctx, "a")
		require.NoError(t, err)
		require.NoError(t, b.Unsubscribe(ctx, "a", id))

		next, _, err := b.Subscribe(ctx, "a")
		require.NoError(t, err)
		assert.Greater(t, next, id)
	})

	t.Run("concurrent subscribers get unique ids", func(t *testing.T) {
		t.Parallel()
		b, _ := newTestBroker(t)
		require.NoError(t, b.CreateChannel(ctx, "a"))
		require.NoError(t, b.CreateChannel(ctx, "b"))

		const n = 200
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			seen = make(map[broker.SubscriberID]bool, n)
		)
		for i := range n {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				name := "a"
				if i%2 == 1 {
					name = "b"
				}
				id, _, err := b.Subscribe(ctx, name)
				assert.NoError(t, err)
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}(i)
		}
		wg.Wait()

		assert.Len(t, seen, n)
		for id := broker.SubscriberID(1); id <= n; id++ {
			assert.True(t, seen[id], "missing id %d", id)
		}
	})
}

func TestBroker_Unsubscribe(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("unknown channel", func(t *testing.T) {
		t.Parallel()
		b, _ := newTestBroker(t)

		err := b.Unsubscribe(ctx, "missing", 1)
		require.ErrorIs(t, err, broker.ErrChannelNotFound)
	})

	t.Run("double unsubscribe", func(t *testing.T) {
		t.Parallel()
		b, _ := newTestBroker(t)
		require.NoError(t, b.CreateChannel(ctx, "a"))
		id, _, err := b.Subscribe(ctx, "a")
		require.NoError(t, err)

		require.NoError(t, b.Unsubscribe(ctx, "a", id))
		err = b.Unsubscribe(ctx, "a", id)
		require.ErrorIs(t, err, broker.ErrSubscriberNotFound)

		var notFound *broker.SubscriberNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, id, notFound.ID)
		assert.Equal(t, "a", notFound.Channel)
		assert.Equal(t, fmt.Sprintf("Subscriber '%d' not found in channel 'a'", id), err.Error())
	})

	t.Run("id from another channel", func(t *testing.T) {
		t.Parallel()
		b, _ := newTestBroker(t)
		require.NoError(t, b.CreateChannel(ctx, "a"))
		require.NoError(t, b.CreateChannel(ctx, "b"))
		id, _, err := b.Subscribe(ctx, "a")
		require.NoError(t, err)

		require.ErrorIs(t, b.Unsubscribe(ctx, "b", id), broker.ErrSubscriberNotFound)
		assert.Equal(t, 1, b.Channels()[0].Subscribers)
	})

	t.Run("id that never existed", func(t *testing.T) {
		t.Parallel()
		b, _ := newTestBroker(t)
		require.NoError(t, b.CreateChannel(ctx, "a"))

		require.ErrorIs(t, b.Unsubscribe(ctx, "a", 42), broker.ErrSubscriberNotFound)
	})

	t.Run("queued payloads stay readable", func(t *testing.T) {
		t.Parallel()
		b, _ := newTestBroker(t)
		require.NoError(t, b.CreateChannel(ctx, "a"))
		id, e, err := b.Subscribe(ctx, "a")
		require.NoError(t, err)

		require.NoError(t, b.Publish(ctx, "a", []byte("one")))
		require.NoError(t, b.Publish(ctx, "a", []byte("two")))
		require.NoError(t, b.Unsubscribe(ctx, "a", id))

		var got []string
		for msg := range e.Messages() {
			got = append(got, string(msg))
		}
		assert.Equal(t, []string{"one", "two"}, got)

		_, err = e.Receive(ctx)
		assert.ErrorIs(t, err, broker.ErrEndpointClosed)
	})

	t.Run("other subscribers keep receiving", func(t *testing.T) {
		t.Parallel()
		b, _ := newTestBroker(t)
		require.NoError(t, b.CreateChannel(ctx, "a"))

		endpoints := make([]*broker.Endpoint, 3)
		for i := range endpoints {
			_, e, err := b.Subscribe(ctx, "a")
			require.NoError(t, err)
			endpoints[i] = e
		}
		require.NoError(t, b.Unsubscribe(ctx, "a", endpoints[1].ID()))
		require.NoError(t, b.Publish(ctx, "a", []byte("x")))

		assert.Equal(t, []byte("x"), receive(t, endpoints[0]))
		assert.Equal(t, []byte("x"), receive(t, endpoints[2]))
		assert.Equal(t, 0, endpoints[1].Len())
	})
}

func TestBroker_Publish(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("unknown channel", func(t *testing.T) {
		t.Parallel()
		b, _ := newTestBroker(t)

		err := b.Publish(ctx, "missing", []byte("x"))
		require.ErrorIs(t, err, broker.ErrChannelNotFound)
		assert.Equal(t, "Channel 'missing' not found", err.Error())
	})

	t.Run("no subscribers", func(t *testing.T) {
		t.Parallel()
		b, out := newTestBroker(t)
		require.NoError(t, b.CreateChannel(ctx, "empty"))

		require.NoError(t, b.Publish(ctx, "empty", []byte("x")))
		assert.Contains(t, out.String(), "publishing message")
		assert.NotContains(t, out.String(), "delivery failed")
	})

	t.Run("every subscriber gets exactly one copy", func(t *testing.T) {
		t.Parallel()
		b, _ := newTestBroker(t)
		require.NoError(t, b.CreateChannel(ctx, "fan"))

		const n = 25
		endpoints := make([]*broker.Endpoint, n)
		for i := range endpoints {
			_, e, err := b.Subscribe(ctx, "fan")
			require.NoError(t, err)
			endpoints[i] = e
		}

		payload := []byte{0x00, 0xff, 0x10, 'h', 'i'}
		require.NoError(t, b.Publish(ctx, "fan", payload))

		for _, e := range endpoints {
			assert.Equal(t, payload, receive(t, e))
			assert.Equal(t, 0, e.Len())
		}
	})

	t.Run("payload order is kept per subscriber", func(t *testing.T) {
		t.Parallel()
		b, _ := newTestBroker(t)
		require.NoError(t, b.CreateChannel(ctx, "seq"))
		_, e, err := b.Subscribe(ctx, "seq")
		require.NoError(t, err)

		for i := range 50 {
			require.NoError(t, b.Publish(ctx, "seq", []byte(fmt.Sprint(i))))
		}
		for i := range 50 {
			assert.Equal(t, fmt.Sprint(i), string(receive(t, e)))
		}
	})

	t.Run("discarded endpoint is skipped and logged", func(t *testing.T) {
		t.Parallel()
		b, out := newTestBroker(t)
		require.NoError(t, b.CreateChannel(ctx, "a"))
		_, gone, err := b.Subscribe(ctx, "a")
		require.NoError(t, err)
		_, alive, err := b.Subscribe(ctx, "a")
		require.NoError(t, err)

		gone.Close()
		gone.Close()

		require.NoError(t, b.Publish(ctx, "a", []byte("x")))
		assert.Equal(t, []byte("x"), receive(t, alive))
		assert.Contains(t, out.String(), "delivery failed")
		assert.Contains(t, out.String(), broker.ErrSubscriberGone.Error())

		_, err = gone.Receive(ctx)
		assert.ErrorIs(t, err, broker.ErrEndpointClosed)
	})

	t.Run("drop policy skips a full queue", func(t *testing.T) {
		t.Parallel()
		b, out := newTestBroker(t,
			broker.WithQueueCapacity(1),
			broker.WithDeliveryPolicy(broker.DropWhenFull),
		)
		require.NoError(t, b.CreateChannel(ctx, "a"))
		_, full, err := b.Subscribe(ctx, "a")
		require.NoError(t, err)

		require.NoError(t, b.Publish(ctx, "a", []byte("first")))
		require.NoError(t, b.Publish(ctx, "a", []byte("second")))

		assert.Contains(t, out.String(), broker.ErrQueueFull.Error())
		assert.Equal(t, []byte("first"), receive(t, full))
		assert.Equal(t, 0, full.Len())
	})

	t.Run("delivery timeout bounds a blocked offer", func(t *testing.T) {
		t.Parallel()
		b, out := newTestBroker(t,
			broker.WithQueueCapacity(1),
			broker.WithDeliveryTimeout(20*time.Millisecond),
		)
		require.NoError(t, b.CreateChannel(ctx, "a"))
		_, slow, err := b.Subscribe(ctx, "a")
		require.NoError(t, err)
		_, fast, err := b.Subscribe(ctx, "a")
		require.NoError(t, err)

		require.NoError(t, b.Publish(ctx, "a", []byte("1")))
		assert.Equal(t, []byte("1"), receive(t, fast))

		require.NoError(t, b.Publish(ctx, "a", []byte("2")))
		assert.Equal(t, []byte("2"), receive(t, fast))
		assert.Contains(t, out.String(), broker.ErrDeliveryTimeout.Error())
		assert.Equal(t, 1, slow.Len())
	})

	t.Run("cancelled publish still succeeds", func(t *testing.T) {
		t.Parallel()
		b, out := newTestBroker(t, broker.WithQueueCapacity(1))
		require.NoError(t, b.CreateChannel(ctx, "a"))
		_, e, err := b.Subscribe(ctx, "a")
		require.NoError(t, err)
		require.NoError(t, b.Publish(ctx, "a", []byte("fill")))

		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		require.NoError(t, b.Publish(cctx, "a", []byte("late")))
		assert.Contains(t, out.String(), "publish cancelled")
		assert.Equal(t, []byte("fill"), receive(t, e))
	})
}

func TestBroker_StalledSubscriberDoesNotBlockOtherChannels(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, _ := newTestBroker(t, broker.WithQueueCapacity(1))

	require.NoError(t, b.CreateChannel(ctx, "slow"))
	_, stalled, err := b.Subscribe(ctx, "slow")
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, "slow", []byte("fill")))

	done := make(chan error, 1)
	go func() {
		done <- b.Publish(ctx, "slow", []byte("blocked"))
	}()

	// the blocked publish must not hold the registry
	opCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, b.CreateChannel(opCtx, "fast"))
	id, e, err := b.Subscribe(opCtx, "fast")
	require.NoError(t, err)
	require.NoError(t, b.Publish(opCtx, "fast", []byte("ok")))
	assert.Equal(t, []byte("ok"), receive(t, e))
	require.NoError(t, b.Unsubscribe(opCtx, "fast", id))

	select {
	case <-done:
		t.Fatal("publish to a full queue returned early")
	default:
	}

	assert.Equal(t, []byte("fill"), receive(t, stalled))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publish did not resume after the queue drained")
	}
	assert.Equal(t, []byte("blocked"), receive(t, stalled))
}

func TestBroker_UnsubscribeReleasesBlockedPublish(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, out := newTestBroker(t, broker.WithQueueCapacity(1))

	require.NoError(t, b.CreateChannel(ctx, "a"))
	id, _, err := b.Subscribe(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, "a", []byte("fill")))

	done := make(chan error, 1)
	go func() {
		done <- b.Publish(ctx, "a", []byte("blocked"))
	}()

	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("subscribers=1 bytes=7"))
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Unsubscribe(ctx, "a", id))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("unsubscribe did not release the blocked publish")
	}
	assert.Contains(t, out.String(), broker.ErrEndpointClosed.Error())
}

func TestBroker_ConcurrentPublishersShareOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, _ := newTestBroker(t, broker.WithQueueCapacity(200))
	require.NoError(t, b.CreateChannel(ctx, "a"))

	_, e1, err := b.Subscribe(ctx, "a")
	require.NoError(t, err)
	_, e2, err := b.Subscribe(ctx, "a")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for p := range 4 {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := range 25 {
				assert.NoError(t, b.Publish(ctx, "a", []byte(fmt.Sprintf("%d-%d", p, i))))
			}
		}(p)
	}
	wg.Wait()

	require.Equal(t, 100, e1.Len())
	require.Equal(t, 100, e2.Len())
	for range 100 {
		assert.Equal(t, receive(t, e1), receive(t, e2))
	}
}

func TestEndpoint_Receive(t *testing.T) {
	t.Parallel()

	t.Run("honours context", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		b, _ := newTestBroker(t)
		require.NoError(t, b.CreateChannel(ctx, "a"))
		_, e, err := b.Subscribe(ctx, "a")
		require.NoError(t, err)

		cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		_, err = e.Receive(cctx)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
	})
}

func TestParseDeliveryPolicy(t *testing.T) {
	t.Parallel()

	p, err := broker.ParseDeliveryPolicy("drop")
	require.NoError(t, err)
	assert.Equal(t, broker.DropWhenFull, p)

	p, err = broker.ParseDeliveryPolicy("")
	require.NoError(t, err)
	assert.Equal(t, broker.BlockWhenFull, p)
	assert.Equal(t, "block", p.String())

	_, err = broker.ParseDeliveryPolicy("spill")
	require.Error(t, err)
}
