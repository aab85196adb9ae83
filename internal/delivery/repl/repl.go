// Path: internal/delivery/repl/repl.go
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"chanbroker/internal/broker"
	"chanbroker/internal/logger"
)

// brokerService defines the operations the interpreter needs from the core service.
type brokerService interface {
	CreateChannel(ctx context.Context, name string) error
	Subscribe(ctx context.Context, channel string) (broker.SubscriberID, *broker.Endpoint, error)
	Unsubscribe(ctx context.Context, channel string, id broker.SubscriberID) error
	Publish(ctx context.Context, channel string, payload []byte) error
	Channels() []broker.ChannelInfo
}

const banner = `Welcome to chanbroker - in-memory message broker!
Available commands:
  create <channel>             - create channel
  channels                     - list channels
  subscribe <channel>          - subscribe to channel
  unsubscribe <channel>        - unsubscribe from channel
  publish <channel> <message>  - send message
  exit                         - exit :)
`

type session struct {
	id       broker.SubscriberID
	endpoint *broker.Endpoint
	cancel   context.CancelFunc
}

// REPL reads commands line by line and maps them onto the broker. It holds at
// most one subscription per channel and prints what each one receives.
type REPL struct {
	service brokerService
	in      io.Reader
	logger  *slog.Logger

	outMu sync.Mutex
	out   io.Writer

	subscriptions map[string]session
	readers       sync.WaitGroup
}

// New creates an interpreter reading from in and writing to out.
func New(s brokerService, in io.Reader, out io.Writer, log *slog.Logger) *REPL {
	if log == nil {
		log = slog.Default()
	}
	return &REPL{
		service:       s,
		in:            in,
		out:           out,
		logger:        log.With(logger.Component("repl")),
		subscriptions: make(map[string]session),
	}
}

// Run prints the banner and processes commands until "exit", the end of
// input, or ctx is done. Every subscription opened by the session is removed
// before Run returns.
func (r *REPL) Run(ctx context.Context) error {
	defer r.closeAll(context.WithoutCancel(ctx))

	r.print(banner)

	scanCtx, stopScan := context.WithCancel(ctx)
	defer stopScan()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-scanCtx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("failed to read command: %w", err)
					}
				default:
				}
				return nil
			}
			if !r.execute(ctx, line) {
				return nil
			}
		}
	}
}

// execute runs one command line and reports whether the loop should go on.
func (r *REPL) execute(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return true
	}
	parts := strings.SplitN(line, " ", 3)

	switch parts[0] {
	case "create":
		if len(parts) < 2 {
			r.print("Using: create <channel>\n")
			return true
		}
		r.create(ctx, parts[1])
	case "channels":
		r.listChannels()
	case "subscribe":
		if len(parts) < 2 {
			r.print("Using: subscribe <channel>\n")
			return true
		}
		r.subscribe(ctx, parts[1])
	case "unsubscribe":
		if len(parts) < 2 {
			r.print("Using: unsubscribe <channel>\n")
			return true
		}
		r.unsubscribe(ctx, parts[1])
	case "publish":
		if len(parts) < 3 {
			r.print("Using: publish <channel> <message>\n")
			return true
		}
		r.publish(ctx, parts[1], parts[2])
	case "exit":
		r.print("Exit...\n")
		return false
	default:
		r.print("Unknown command\n")
	}
	return true
}

func (r *REPL) create(ctx context.Context, channel string) {
	if err := r.service.CreateChannel(ctx, channel); err != nil {
		r.printf("Create error: %v\n", err)
		return
	}
	r.printf("Channel '%s' created\n", channel)
}

func (r *REPL) listChannels() {
	channels := r.service.Channels()
	if len(channels) == 0 {
		r.print("No channels\n")
		return
	}
	for _, c := range channels {
		r.printf("  %s (%d subscribers)\n", c.Name, c.Subscribers)
	}
}

func (r *REPL) subscribe(ctx context.Context, channel string) {
	if _, ok := r.subscriptions[channel]; ok {
		r.printf("Already subscribed to channel '%s'\n", channel)
		return
	}

	id, endpoint, err := r.service.Subscribe(ctx, channel)
	if err != nil {
		r.printf("Subscribe error: %v\n", err)
		return
	}
	r.printf("Subscribed to channel '%s' with subscribe id %d\n", channel, id)

	readCtx, cancel := context.WithCancel(ctx)
	r.subscriptions[channel] = session{id: id, endpoint: endpoint, cancel: cancel}

	r.readers.Add(1)
	go func() {
		defer r.readers.Done()
		for {
			msg, err := endpoint.Receive(readCtx)
			if err != nil {
				if !errors.Is(err, broker.ErrEndpointClosed) && !errors.Is(err, context.Canceled) {
					r.logger.Warn("subscription reader stopped", logger.Channel(channel), logger.Error(err))
				}
				return
			}
			r.printf("Received from channel '%s': %s\n", channel, strings.ToValidUTF8(string(msg), "�"))
		}
	}()
}

func (r *REPL) unsubscribe(ctx context.Context, channel string) {
	s, ok := r.subscriptions[channel]
	if !ok {
		r.printf("Subscription to channel '%s' not found\n", channel)
		return
	}
	delete(r.subscriptions, channel)
	defer s.cancel()

	if err := r.service.Unsubscribe(ctx, channel, s.id); err != nil {
		r.printf("Unsubscribe error: %v\n", err)
		return
	}
	r.printf("Unsubscribed from channel '%s'\n", channel)
}

func (r *REPL) publish(ctx context.Context, channel, message string) {
	if err := r.service.Publish(ctx, channel, []byte(message)); err != nil {
		r.printf("Publish error: %v\n", err)
		return
	}
	r.printf("Message sent to channel '%s'\n", channel)
}

func (r *REPL) closeAll(ctx context.Context) {
	for channel, s := range r.subscriptions {
		if err := r.service.Unsubscribe(ctx, channel, s.id); err != nil {
			r.logger.Warn("failed to unsubscribe on exit", logger.Channel(channel), logger.Error(err))
		}
		s.cancel()
		s.endpoint.Close()
		delete(r.subscriptions, channel)
	}
	r.readers.Wait()
}

func (r *REPL) print(s string) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	io.WriteString(r.out, s)
}

func (r *REPL) printf(format string, args ...any) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}
