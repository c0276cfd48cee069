package health

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRedisChecker_Unreachable(t *testing.T) {
	// Port 1 is reserved and refuses connections.
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := NewRedisChecker(client).HealthCheck(ctx); err == nil {
		t.Fatal("expected error for unreachable redis")
	}
}

func TestRedisChecker_CancelledContext(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewRedisChecker(client).HealthCheck(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestRedisChecker_Live(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("invalid REDIS_URL: %v", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	if err := NewRedisChecker(client).HealthCheck(context.Background()); err != nil {
		t.Errorf("expected healthy redis, got %v", err)
	}
}
