package signaling

import (
	"context"
	"sync"
)

// MemoryRelay is an in-process Relay. Publish never blocks on slow subscribers.
type MemoryRelay struct {
	mu   sync.Mutex
	subs map[string]map[*memorySub]struct{}
}

func NewMemoryRelay() *MemoryRelay {
	return &MemoryRelay{subs: map[string]map[*memorySub]struct{}{}}
}

func (r *MemoryRelay) Publish(ctx context.Context, channel string, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for s := range r.subs[channel] {
		s.enqueue(msg)
	}
	return nil
}

func (r *MemoryRelay) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &memorySub{
		relay:   r,
		channel: channel,
		signal:  make(chan struct{}, 1),
		out:     make(chan []byte),
		done:    make(chan struct{}),
	}
	r.mu.Lock()
	if r.subs[channel] == nil {
		r.subs[channel] = map[*memorySub]struct{}{}
	}
	r.subs[channel][s] = struct{}{}
	r.mu.Unlock()

	go s.pump()
	return s, nil
}

// Subscribers reports the live subscription count for channel.
func (r *MemoryRelay) Subscribers(channel string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[channel])
}

func (r *MemoryRelay) remove(s *memorySub) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs[s.channel], s)
	if len(r.subs[s.channel]) == 0 {
		delete(r.subs, s.channel)
	}
}

type memorySub struct {
	relay   *MemoryRelay
	channel string

	mu    sync.Mutex
	queue [][]byte

	signal chan struct{}
	out    chan []byte
	done   chan struct{}
	once   sync.Once
}

func (s *memorySub) enqueue(msg []byte) {
	cp := make([]byte, len(msg))
	copy(cp, msg)
	s.mu.Lock()
	s.queue = append(s.queue, cp)
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *memorySub) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.signal:
				continue
			case <-s.done:
				return
			}
		}
		msg := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- msg:
		case <-s.done:
			return
		}
	}
}

func (s *memorySub) Messages() <-chan []byte { return s.out }

func (s *memorySub) Close() error {
	s.once.Do(func() {
		s.relay.remove(s)
		close(s.done)
	})
	return nil
}
