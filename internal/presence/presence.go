// Package presence guards the one-active-call-per-participant rule across processes.
package presence

import (
	"context"
	"errors"
	"sync"
	"time"

	"telehealth-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

var ErrBusy = errors.New("presence: participant already in a call")

// Locker hands out one call slot per participant. The slot owner is the
// session channel, so re-acquiring for the same call succeeds.
type Locker interface {
	Acquire(ctx context.Context, participantID, sessionChannel string, ttl time.Duration) error
	Release(ctx context.Context, participantID, sessionChannel string) error
}

type RedisLocker struct {
	rdb    redis.Scripter
	prefix string
}

func NewRedisLocker(rdb redis.Scripter, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "telehealth:presence:"
	}
	return &RedisLocker{rdb: rdb, prefix: prefix}
}

func (l *RedisLocker) Acquire(ctx context.Context, participantID, sessionChannel string, ttl time.Duration) error {
	ok, err := utils.AcquireSlot(ctx, l.rdb, l.prefix+participantID, sessionChannel, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrBusy
	}
	return nil
}

func (l *RedisLocker) Release(ctx context.Context, participantID, sessionChannel string) error {
	return utils.ReleaseSlot(ctx, l.rdb, l.prefix+participantID, sessionChannel)
}

// MemoryLocker is a process-local Locker. TTLs are ignored.
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[string]string
}

func NewMemoryLocker() *MemoryLocker { return &MemoryLocker{slots: map[string]string{}} }

func (l *MemoryLocker) Acquire(ctx context.Context, participantID, sessionChannel string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.slots[participantID]; ok && cur != sessionChannel {
		return ErrBusy
	}
	l.slots[participantID] = sessionChannel
	return nil
}

func (l *MemoryLocker) Release(ctx context.Context, participantID, sessionChannel string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.slots[participantID] == sessionChannel {
		delete(l.slots, participantID)
	}
	return nil
}

// Holder returns the session channel holding participantID's slot.
func (l *MemoryLocker) Holder(participantID string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[participantID]
	return ch, ok
}
