package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(s.Close)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() {
		if err := rdb.Close(); err != nil {
			t.Fatalf("close redis: %v", err)
		}
	})
	return s, rdb
}

func TestLimiter_AllowWithinLimit(t *testing.T) {
	_, rdb := newMiniRedis(t)
	limiter := NewLimiter(rdb, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "login:alice@example.com")
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("expected attempt %d to pass", i)
		}
	}

	ok, err := limiter.Allow(ctx, "login:alice@example.com")
	if err != nil {
		t.Fatalf("allow over limit: %v", err)
	}
	if ok {
		t.Fatalf("expected attempt over the limit to be rejected")
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	_, rdb := newMiniRedis(t)
	limiter := NewLimiter(rdb, 1, time.Minute)
	ctx := context.Background()

	if ok, _ := limiter.Allow(ctx, "login:a@example.com"); !ok {
		t.Fatalf("expected first key to pass")
	}
	if ok, _ := limiter.Allow(ctx, "login:a@example.com"); ok {
		t.Fatalf("expected first key to be exhausted")
	}
	if ok, _ := limiter.Allow(ctx, "login:b@example.com"); !ok {
		t.Fatalf("expected second key to be unaffected")
	}
}

func TestLimiter_WindowExpiryReopens(t *testing.T) {
	s, rdb := newMiniRedis(t)
	limiter := NewLimiter(rdb, 1, time.Second)
	ctx := context.Background()

	if ok, _ := limiter.Allow(ctx, "login:c@example.com"); !ok {
		t.Fatalf("expected first attempt to pass")
	}
	if ok, _ := limiter.Allow(ctx, "login:c@example.com"); ok {
		t.Fatalf("expected second attempt to be rejected")
	}

	s.FastForward(2 * time.Second)

	ok, err := limiter.Allow(ctx, "login:c@example.com")
	if err != nil {
		t.Fatalf("allow after expiry: %v", err)
	}
	if !ok {
		t.Fatalf("expected window to reopen after expiry")
	}
}

func TestLimiter_ResetClearsCount(t *testing.T) {
	_, rdb := newMiniRedis(t)
	limiter := NewLimiter(rdb, 1, time.Minute)
	ctx := context.Background()

	if ok, _ := limiter.Allow(ctx, "login:d@example.com"); !ok {
		t.Fatalf("expected first attempt to pass")
	}
	if err := limiter.Reset(ctx, "login:d@example.com"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if ok, _ := limiter.Allow(ctx, "login:d@example.com"); !ok {
		t.Fatalf("expected attempt after reset to pass")
	}
}

func TestLimiter_DisabledPassesThrough(t *testing.T) {
	limiter := NewLimiter(nil, 0, 0)
	ok, err := limiter.Allow(context.Background(), "anything")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !ok {
		t.Fatalf("expected disabled limiter to pass")
	}
}
