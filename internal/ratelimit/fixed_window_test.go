package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"siashare-go/internal/testutil"
)

func newLimiter(t *testing.T, limit int) (*FixedWindowLimiter, *miniredis.Miniredis, *testutil.StubClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	clock := testutil.FixedClock()
	l, err := NewFixedWindowLimiter(client, "test", limit, time.Minute, clock)
	if err != nil {
		t.Fatalf("NewFixedWindowLimiter: %v", err)
	}
	return l, mr, clock
}

func TestFixedWindowLimiter(t *testing.T) {
	ctx := context.Background()
	l, _, clock := newLimiter(t, 2)

	for i, want := range []bool{true, true, false} {
		ok, err := l.Allow(ctx, "1.2.3.4")
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if ok != want {
			t.Errorf("request %d allowed = %v, want %v", i+1, ok, want)
		}
	}

	ok, err := l.Allow(ctx, "5.6.7.8")
	if err != nil || !ok {
		t.Errorf("other key allowed = %v, %v; want true", ok, err)
	}

	clock.Advance(time.Minute)
	ok, err = l.Allow(ctx, "1.2.3.4")
	if err != nil || !ok {
		t.Errorf("next window allowed = %v, %v; want true", ok, err)
	}
}

func TestFixedWindowLimiter_SetsExpiry(t *testing.T) {
	l, mr, clock := newLimiter(t, 5)
	if _, err := l.Allow(context.Background(), "k"); err != nil {
		t.Fatal(err)
	}
	slot := clock.Now().UnixMilli() / time.Minute.Milliseconds()
	key := fmt.Sprintf("test:ratelimit:k:%d", slot)
	if ttl := mr.TTL(key); ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL(%s) = %v, want (0, 1m]", key, ttl)
	}
}

func TestFixedWindowLimiter_RedisDown(t *testing.T) {
	l, mr, _ := newLimiter(t, 1)
	mr.Close()
	ok, err := l.Allow(context.Background(), "k")
	if err == nil {
		t.Error("expected error with redis down")
	}
	if ok {
		t.Error("request allowed with redis down")
	}
}

func TestNewFixedWindowLimiter_Validation(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	clock := testutil.FixedClock()

	tests := []struct {
		name   string
		client *redis.Client
		limit  int
		window time.Duration
	}{
		{"nil client", nil, 1, time.Second},
		{"zero limit", client, 0, time.Second},
		{"zero window", client, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewFixedWindowLimiter(tt.client, "", tt.limit, tt.window, clock); err == nil {
				t.Error("expected error")
			}
		})
	}
}
