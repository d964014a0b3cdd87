package utils

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestSlot_ExclusiveUntilReleased(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	ok, err := AcquireSlot(ctx, rdb, "slot:u1", "call-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected acquire, got %v %v", ok, err)
	}
	ok, err = AcquireSlot(ctx, rdb, "slot:u1", "call-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected re-acquire by same owner, got %v %v", ok, err)
	}
	ok, err = AcquireSlot(ctx, rdb, "slot:u1", "call-b", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected rejection for other owner, got %v %v", ok, err)
	}

	// Releasing with the wrong owner leaves the slot held.
	if err := ReleaseSlot(ctx, rdb, "slot:u1", "call-b"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if !mr.Exists("slot:u1") {
		t.Fatalf("slot released by non-owner")
	}
	if err := ReleaseSlot(ctx, rdb, "slot:u1", "call-a"); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = AcquireSlot(ctx, rdb, "slot:u1", "call-b", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected acquire after release, got %v %v", ok, err)
	}
}

func TestSlot_ExpiresWithTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	if ok, _ := AcquireSlot(ctx, rdb, "slot:u2", "call-a", time.Second); !ok {
		t.Fatalf("expected acquire")
	}
	mr.FastForward(2 * time.Second)
	if ok, _ := AcquireSlot(ctx, rdb, "slot:u2", "call-b", time.Second); !ok {
		t.Fatalf("expected slot free after ttl")
	}
}

func TestOpenRedis_RequiresAddr(t *testing.T) {
	if _, err := OpenRedis(context.Background(), RedisConfig{}); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}
