//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// TestRedisCache_TestcontainersIntegration exercises the Redis-backed cache
// against a real Redis server, as a fleet of orchestrator processes sharing
// one Redis would see it, rather than the in-memory miniredis fake used elsewhere in
// this package's test suite.
func TestRedisCache_TestcontainersIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testcontainers integration test in short mode")
	}
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("starting redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminating redis container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}
	opts, err := redis.ParseURL(connStr)
	if err != nil {
		t.Fatalf("parsing redis connection string: %v", err)
	}

	c := NewRedis(redis.NewClient(opts), "cdn-itest")

	if err := c.Set(ctx, "mrc:730:2347771:9071851182114336641", []byte("42"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := c.Get(ctx, "mrc:730:2347771:9071851182114336641")
	if err != nil || !ok || string(got) != "42" {
		t.Fatalf("got %q, ok=%v, err=%v", got, ok, err)
	}

	if _, ok, err := c.Get(ctx, "never-set"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
}
