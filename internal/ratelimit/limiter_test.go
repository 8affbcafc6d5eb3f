package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
)

func newTestLimiter(t *testing.T) (*Limiter, *redis.Client) {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	log, _ := test.NewNullLogger()
	return NewLimiter(client, log), client
}

func TestAllow(t *testing.T) {
	l, client := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:", Limit: 3, Window: 5 * time.Second}
	client.Del(ctx, rule.Key+"u1")
	t.Cleanup(func() { client.Del(ctx, rule.Key+"u1") })

	for i := 1; i <= 3; i++ {
		ok, err := l.Allow(ctx, "u1", rule)
		if err != nil || !ok {
			t.Fatalf("Allow #%d = %v, %v, want true", i, ok, err)
		}
	}
	if ok, _ := l.Allow(ctx, "u1", rule); ok {
		t.Error("Allow #4 = true, want limited")
	}
	if rem, _ := l.Remaining(ctx, "u1", rule); rem != 0 {
		t.Errorf("Remaining = %d, want 0", rem)
	}
}

func TestAllowFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	log, hook := test.NewNullLogger()
	l := NewLimiter(client, log)

	ok, err := l.Allow(context.Background(), "u1", RuleReportStart)
	if !ok {
		t.Error("Allow on broken redis = false, want fail open")
	}
	if err == nil {
		t.Error("expected redis error to be returned")
	}
	if len(hook.Entries) == 0 {
		t.Error("expected a warning to be logged")
	}
}
