package telemetry

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestMonitorRedis(t *testing.T) {
	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	t.Cleanup(func() { _ = rc.Close() })

	require.NoError(t, MonitorRedis(rc))

	ctx := context.Background()
	require.NoError(t, rc.Set(ctx, "k", "v", 0).Err())
	require.ErrorIs(t, rc.Get(ctx, "missing").Err(), redis.Nil)

	_, err := rc.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Get(ctx, "k")
		p.Del(ctx, "k")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, rs.Exists("k"))
}

func TestGRPCCodeToLevel(t *testing.T) {
	tests := map[codes.Code]logging.Level{
		codes.OK:              logging.LevelDebug,
		codes.NotFound:        logging.LevelInfo,
		codes.Unavailable:     logging.LevelWarn,
		codes.Internal:        logging.LevelError,
		codes.InvalidArgument: logging.LevelInfo,
	}

	for code, want := range tests {
		assert.Equal(t, want, grpcCodeToLevel(code), code.String())
	}
}
