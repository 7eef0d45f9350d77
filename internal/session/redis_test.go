package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/adaptivequiz/internal/domain"
	"github.com/victornm/adaptivequiz/internal/session"
)

func TestRedisRepository(t *testing.T) {
	ctx := context.Background()
	rs, rc := makeRedis(t)
	repo := session.NewRedisRepository(rc, "quiz", time.Minute)

	_, err := repo.Load(ctx, "s1")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	start := time.Date(2024, 10, 15, 9, 0, 0, 0, time.UTC)
	ss := &domain.Session{
		SessionID:         "s1",
		UserID:            "u1",
		Username:          "alice",
		CurrentDifficulty: domain.DifficultyMedium,
		TotalQuestions:    3,
		StartTime:         start,
	}
	require.NoError(t, ss.Present(makeQuestions(domain.DifficultyMedium, 1)[0]))
	ss.RecordAnswer(0, start.Add(time.Second))

	require.NoError(t, repo.Save(ctx, ss))
	assert.True(t, rs.Exists("quiz:session:s1"))
	assert.Equal(t, time.Minute, rs.TTL("quiz:session:s1"))

	got, err := repo.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, ss, got)

	rs.FastForward(2 * time.Minute)
	_, err = repo.Load(ctx, "s1")
	require.ErrorIs(t, err, domain.ErrSessionNotFound, "abandoned sessions expire")
}

func TestRedisLocker(t *testing.T) {
	_, rc := makeRedis(t)
	testLocker(t, session.NewRedisLocker(rc, "quiz", time.Minute))
}

func TestLocalLocker(t *testing.T) {
	testLocker(t, session.NewLocalLocker())
}

func testLocker(t *testing.T, l session.Locker) {
	t.Helper()
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "s1")
	require.NoError(t, err)

	other, err := l.Lock(ctx, "s2")
	require.NoError(t, err, "different sessions do not contend")
	other()

	timeoutCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = l.Lock(timeoutCtx, "s1")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "s1")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			mu.Lock()
			inside++
			maxSeen = max(maxSeen, inside)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen, "holders of the same session must not overlap")
}

func makeRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")
	t.Cleanup(func() { _ = rc.Close() })

	return rs, rc
}
