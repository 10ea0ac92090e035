package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisCache(t *testing.T) (Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedis(client, "cdn-test"), mr
}

func TestRedisCache_SetGet(t *testing.T) {
	c, _ := newTestRedisCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "manifest-request-code:730:2347771", []byte("12345"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := c.Get(ctx, "manifest-request-code:730:2347771")
	if err != nil || !ok || string(got) != "12345" {
		t.Fatalf("got %q, %v, %v", got, ok, err)
	}
}

func TestRedisCache_Miss(t *testing.T) {
	c, _ := newTestRedisCache(t)
	if _, ok, err := c.Get(context.Background(), "nope"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
}

func TestRedisCache_Expiry(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	mr.FastForward(2 * time.Second)

	if _, ok, err := c.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expected expired entry to miss, got ok=%v err=%v", ok, err)
	}
}
