package testutil

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	redisTC "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/zhejian/url-shortener/shortlink/internal/infra"
)

// TestCache is a Redis container backing the link cache in tests
type TestCache struct {
	Client     *redis.Client
	ConnString string
	container  *redisTC.RedisContainer
}

// SetupTestCache starts Redis and connects to it the way the server does
func SetupTestCache(ctx context.Context) (*TestCache, error) {
	container, err := redisTC.Run(ctx,
		"redis:8-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, err
	}

	tc := &TestCache{container: container}
	tc.ConnString, err = container.ConnectionString(ctx)
	if err == nil {
		tc.Client, err = infra.NewCacheClient(ctx, tc.ConnString)
	}
	if err != nil {
		if terr := container.Terminate(ctx); terr != nil {
			err = terr
		}
		return nil, err
	}
	return tc, nil
}

// UnreachableCacheClient returns a client for a port nobody listens on.
// Retries are off so every call fails fast, which trips circuit breakers
// quickly.
func UnreachableCacheClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "localhost:59997",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
}

// Cleanup drops every cached link
func (t *TestCache) Cleanup(ctx context.Context) {
	if t == nil || t.Client == nil {
		return
	}
	t.Client.FlushDB(ctx)
}

// Teardown closes the client and terminates the container
func (t *TestCache) Teardown(ctx context.Context) {
	if t.Client != nil {
		t.Client.Close()
	}
	if t.container != nil {
		_ = t.container.Terminate(ctx)
	}
}
