package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func exerciseLocker(t *testing.T, l Locker) {
	t.Helper()
	ctx := context.Background()

	if err := l.Acquire(ctx, "patient-1", "appt-1", time.Minute); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := l.Acquire(ctx, "patient-1", "appt-1", time.Minute); err != nil {
		t.Fatalf("re-acquire same call: %v", err)
	}
	if err := l.Acquire(ctx, "patient-1", "appt-2", time.Minute); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected busy, got %v", err)
	}
	if err := l.Acquire(ctx, "doctor-1", "appt-2", time.Minute); err != nil {
		t.Fatalf("other participant: %v", err)
	}
	if err := l.Release(ctx, "patient-1", "appt-1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := l.Acquire(ctx, "patient-1", "appt-2", time.Minute); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestMemoryLocker(t *testing.T) {
	exerciseLocker(t, NewMemoryLocker())
}

func TestRedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	exerciseLocker(t, NewRedisLocker(rdb, ""))
}
