package signaling

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisRelay carries signaling over Redis pub/sub, one Redis channel per call.
type RedisRelay struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisRelay(rdb redis.UniversalClient, prefix string) *RedisRelay {
	return &RedisRelay{rdb: rdb, prefix: prefix}
}

func (r *RedisRelay) key(channel string) string { return r.prefix + channel }

func (r *RedisRelay) Publish(ctx context.Context, channel string, msg []byte) error {
	if r.rdb == nil {
		return fmt.Errorf("redis client is nil")
	}
	return r.rdb.Publish(ctx, r.key(channel), msg).Err()
}

func (r *RedisRelay) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	if r.rdb == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	ps := r.rdb.Subscribe(ctx, r.key(channel))
	// Wait for the subscribe confirmation so nothing published afterwards is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", channel, err)
	}

	s := &redisSub{ps: ps, out: make(chan []byte), done: make(chan struct{})}
	go s.forward(ps.Channel())
	return s, nil
}

type redisSub struct {
	ps   *redis.PubSub
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func (s *redisSub) forward(in <-chan *redis.Message) {
	defer close(s.out)
	for {
		select {
		case m, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.out <- []byte(m.Payload):
			case <-s.done:
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *redisSub) Messages() <-chan []byte { return s.out }

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
