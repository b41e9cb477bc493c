package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newLimiter(t *testing.T, limit int) (*FixedWindowLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(mr.Addr(), "")
	if err != nil {
		t.Fatalf("new redis client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	limiter, err := NewFixedWindowLimiter(client, "test:ratelimit", limit, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	return limiter, mr
}

func TestFixedWindowLimiterBlocksOverQuota(t *testing.T) {
	limiter, _ := newLimiter(t, 2)
	ctx := context.Background()

	for i, wantRemaining := range []int{1, 0} {
		d, err := limiter.Allow(ctx, "user-1")
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !d.Allowed || d.Remaining != wantRemaining {
			t.Fatalf("hit %d: got %+v, want allowed with %d remaining", i, d, wantRemaining)
		}
	}
	d, err := limiter.Allow(ctx, "user-1")
	if err != nil {
		t.Fatalf("allow 3: %v", err)
	}
	if d.Allowed {
		t.Fatalf("third hit should be blocked")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Fatalf("retry after = %v", d.RetryAfter)
	}

	other, err := limiter.Allow(ctx, "user-2")
	if err != nil || !other.Allowed {
		t.Fatalf("other key should have its own quota: %+v %v", other, err)
	}
}

func TestFixedWindowLimiterNewWindowResets(t *testing.T) {
	limiter, _ := newLimiter(t, 1)
	base := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return base }
	ctx := context.Background()

	if d, _ := limiter.Allow(ctx, "ip-1"); !d.Allowed {
		t.Fatalf("first hit should pass")
	}
	if d, _ := limiter.Allow(ctx, "ip-1"); d.Allowed {
		t.Fatalf("second hit in same window should be blocked")
	}
	limiter.now = func() time.Time { return base.Add(time.Minute) }
	if d, _ := limiter.Allow(ctx, "ip-1"); !d.Allowed {
		t.Fatalf("next window should pass")
	}
}

func TestFixedWindowLimiterFailsClosed(t *testing.T) {
	limiter, mr := newLimiter(t, 5)
	mr.Close()
	d, err := limiter.Allow(context.Background(), "ip-1")
	if err == nil {
		t.Fatalf("expected redis error")
	}
	if d.Allowed {
		t.Fatalf("limiter should deny on redis errors")
	}
}

func TestConstructorValidation(t *testing.T) {
	if _, err := NewRedisClient("", ""); err == nil {
		t.Fatalf("expected error for empty redis addr")
	}
	if _, err := NewFixedWindowLimiter(nil, "", 1, time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
	mr := miniredis.RunT(t)
	client, _ := NewRedisClient(mr.Addr(), "")
	defer client.Close()
	if _, err := NewFixedWindowLimiter(client, "", 0, time.Second); err == nil {
		t.Fatalf("expected error for zero limit")
	}
}
