package redis

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// testRedis connects to TEST_REDIS_ADDR, or to a throwaway container when it is
// unset. The test is skipped when neither is available.
func testRedis(t *testing.T) *goredis.Client {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		if os.Getenv("TEST_SKIP_CONTAINERS") != "" {
			t.Skip("TEST_REDIS_ADDR not set and containers disabled")
		}
		addr = startContainer(t, ctx)
	}

	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}
	return rdb
}

func startContainer(t *testing.T, ctx context.Context) (addr string) {
	t.Helper()

	defer func() {
		if r := recover(); r != nil {
			t.Skipf("docker unavailable: %v", r)
		}
	}()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	addr, err = container.Endpoint(ctx, "")
	if err != nil {
		t.Skipf("container endpoint: %v", err)
	}
	return addr
}
