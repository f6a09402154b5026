//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callwatch/internal/platform/config"
	"callwatch/pkg/platform/sentinel"
	"callwatch/pkg/testutil/containers"
)

func TestHealthReportsAvailability(t *testing.T) {
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)

	client, err := New(config.RedisConfig{
		URL:          rc.Addr,
		PoolSize:     2,
		MinIdleConns: 1,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	require.NotNil(t, client)

	require.NoError(t, client.Health(ctx))

	require.NoError(t, client.Close())
	err = client.Health(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel.ErrUnavailable)
}
