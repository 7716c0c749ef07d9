//go:build integration

package locker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedis_ExclusiveUntilUnlocked(t *testing.T) {
	client := startRedis(t)
	a := NewRedis(client, "labqms:lock:", 5*time.Second)
	b := NewRedis(client, "labqms:lock:", 5*time.Second)

	unlock, err := a.Lock(context.Background(), "nonconformities")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = b.Lock(ctx, "nonconformities")
	assert.ErrorIs(t, err, ErrNotAcquired)

	unlock()
	unlockB, err := b.Lock(context.Background(), "nonconformities")
	require.NoError(t, err)
	unlockB()
}

func TestRedis_ExpiredLockIsNotReleasedByFormerHolder(t *testing.T) {
	client := startRedis(t)
	short := NewRedis(client, "labqms:lock:", 50*time.Millisecond)

	unlockStale, err := short.Lock(context.Background(), "k")
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	fresh := NewRedis(client, "labqms:lock:", 5*time.Second)
	unlockFresh, err := fresh.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlockFresh()

	unlockStale()
	exists, err := client.Exists(context.Background(), "labqms:lock:k").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists, "stale holder must not delete the new holder's key")
}
