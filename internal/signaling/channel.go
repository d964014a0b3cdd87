package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var ErrChannelClosed = errors.New("signaling: channel closed")

// Handler receives events from the remote party only.
type Handler func(Event)

// Channel scopes signaling to one session channel for one local participant.
// Handlers run sequentially on the channel's dispatch goroutine, in relay order.
// Events whose sender is the local participant are dropped before dispatch.
type Channel struct {
	name    string
	localID string
	relay   Relay
	sub     Subscription
	log     *slog.Logger

	mu       sync.Mutex
	handlers map[EventKind]Handler
	closed   bool

	loopDone chan struct{}
}

// Open subscribes to name on relay. The subscription is live when Open returns.
func Open(ctx context.Context, relay Relay, name, localID string, log *slog.Logger) (*Channel, error) {
	if relay == nil {
		return nil, errors.New("signaling: relay is nil")
	}
	if name == "" || localID == "" {
		return nil, errors.New("signaling: channel name and local id are required")
	}
	if log == nil {
		log = slog.Default()
	}
	sub, err := relay.Subscribe(ctx, name)
	if err != nil {
		return nil, err
	}
	c := &Channel{
		name:     name,
		localID:  localID,
		relay:    relay,
		sub:      sub,
		log:      log.With("session_channel", name, "local_id", localID),
		handlers: map[EventKind]Handler{},
		loopDone: make(chan struct{}),
	}
	go c.dispatch()
	return c, nil
}

func (c *Channel) Name() string    { return c.name }
func (c *Channel) LocalID() string { return c.localID }

// On installs h for kind, replacing any previous handler.
func (c *Channel) On(kind EventKind, h Handler) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.handlers[kind] = h
}

// Off removes the handler for kind.
func (c *Channel) Off(kind EventKind) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, kind)
}

// Handlers reports how many handlers are installed.
func (c *Channel) Handlers() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}

// Publish stamps e with the local participant id and sends it.
func (c *Channel) Publish(ctx context.Context, e Event) error {
	if c == nil {
		return ErrChannelClosed
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}

	msg, err := Encode(e.withSender(c.localID))
	if err != nil {
		return fmt.Errorf("signaling: encode %s: %w", e.Kind(), err)
	}
	if err := c.relay.Publish(ctx, c.name, msg); err != nil {
		return fmt.Errorf("signaling: publish %s: %w", e.Kind(), err)
	}
	return nil
}

// Close drops every handler and ends the subscription.
// It is safe on a nil Channel and safe to call more than once.
func (c *Channel) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.handlers = map[EventKind]Handler{}
	c.mu.Unlock()
	return c.sub.Close()
}

// Closed reports whether Close has been called.
func (c *Channel) Closed() bool {
	if c == nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Done is closed when the dispatch goroutine has exited.
func (c *Channel) Done() <-chan struct{} { return c.loopDone }

func (c *Channel) dispatch() {
	defer close(c.loopDone)
	for msg := range c.sub.Messages() {
		ev, err := Decode(msg)
		if err != nil {
			c.log.Warn("signaling message dropped", "err", err)
			continue
		}
		if ev.Sender() == c.localID {
			continue
		}

		c.mu.Lock()
		h := c.handlers[ev.Kind()]
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		if h == nil {
			c.log.Debug("no handler for signaling event", "event", ev.Kind(), "sender", ev.Sender())
			continue
		}
		h(ev)
	}
}
