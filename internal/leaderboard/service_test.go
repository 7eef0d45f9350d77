package leaderboard_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/adaptivequiz/internal/domain"
	"github.com/victornm/adaptivequiz/internal/event"
	"github.com/victornm/adaptivequiz/internal/leaderboard"
	"github.com/victornm/adaptivequiz/internal/stats"
)

var t0 = time.Date(2024, 10, 15, 9, 0, 0, 0, time.UTC)

func TestRank(t *testing.T) {
	tests := map[string]struct {
		stats  []domain.UserStats
		metric domain.Metric
		want   []string
	}{
		"should rank by best score descending": {
			stats: []domain.UserStats{
				userStats("u1", 50, t0),
				userStats("u2", 90, t0),
				userStats("u3", 70, t0),
			},
			metric: domain.MetricBest,
			want:   []string{"u2", "u3", "u1"},
		},

		"should rank the user who reached a tied score first higher": {
			stats: []domain.UserStats{
				userStats("u1", 90, t0.Add(2*time.Minute)),
				userStats("u2", 90, t0.Add(time.Minute)),
				userStats("u3", 50, t0),
			},
			metric: domain.MetricBest,
			want:   []string{"u2", "u1", "u3"},
		},

		"should fall back to user id when score and time are tied": {
			stats: []domain.UserStats{
				userStats("u3", 80, t0),
				userStats("u1", 80, t0),
				userStats("u2", 80, t0),
			},
			metric: domain.MetricBest,
			want:   []string{"u1", "u2", "u3"},
		},

		"should rank by average using the latest quiz time for ties": {
			stats: []domain.UserStats{
				{UserID: "u1", AverageScore: decimal.NewFromInt(50), BestScore: decimal.NewFromInt(100), UpdatedAt: t0.Add(2 * time.Minute)},
				{UserID: "u2", AverageScore: decimal.NewFromInt(50), BestScore: decimal.NewFromInt(50), UpdatedAt: t0.Add(time.Minute)},
				{UserID: "u3", AverageScore: decimal.NewFromInt(60), BestScore: decimal.NewFromInt(60), UpdatedAt: t0},
			},
			metric: domain.MetricAverage,
			want:   []string{"u3", "u2", "u1"},
		},

		"should return no entries for no stats": {
			metric: domain.MetricBest,
			want:   []string{},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			entries := leaderboard.Rank(tt.stats, tt.metric)

			got := make([]string, 0, len(entries))
			for i, e := range entries {
				assert.Equal(t, i+1, e.Rank, "rank should be the position in the ordering")
				got = append(got, e.UserID)
			}
			assert.Equal(t, tt.want, got)

			// Ranking again must not depend on the input order left behind by the previous call.
			again := leaderboard.Rank(tt.stats, tt.metric)
			assert.Equal(t, entries, again)
		})
	}
}

func TestService_Top(t *testing.T) {
	st := stats.NewMemoryStore(domain.DefaultRecentScores)
	record(t, st, "s1", "u1", 50, t0)
	record(t, st, "s2", "u2", 90, t0.Add(time.Minute))
	record(t, st, "s3", "u3", 70, t0.Add(2*time.Minute))
	record(t, st, "s4", "u3", 100, t0.Add(3*time.Minute))

	s := makeService(t, withStats(st))
	ctx := context.Background()

	best, err := s.TopByBest(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.MetricBest, best.Metric)
	assert.Equal(t, 3, best.Total)
	assert.Equal(t, []string{"u3", "u2"}, userIDs(best.Entries))
	assert.Equal(t, "100", best.Entries[0].BestScore.String())
	assert.Equal(t, "85", best.Entries[0].AverageScore.String())
	assert.Equal(t, 2, best.Entries[0].TotalQuizzes)
	assert.Nil(t, best.Me)

	avg, err := s.TopByAverage(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, avg.Total)
	assert.Equal(t, []string{"u2", "u3", "u1"}, userIDs(avg.Entries))
}

func TestService_Top_InvalidRequest(t *testing.T) {
	tests := map[string]leaderboard.TopRequest{
		"zero limit":     {Metric: domain.MetricBest, Limit: 0},
		"negative limit": {Metric: domain.MetricAverage, Limit: -1},
		"unknown metric": {Metric: "worst", Limit: 10},
	}

	for name, req := range tests {
		req := req
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s := makeService(t)

			_, err := s.Top(context.Background(), req)
			require.ErrorIs(t, err, domain.ErrInvalidArgument)
		})
	}
}

func TestService_RankOf(t *testing.T) {
	st := stats.NewMemoryStore(domain.DefaultRecentScores)
	for i := range 8 {
		pct := float64((i * 37) % 101)
		record(t, st, fmt.Sprintf("s%d", i), fmt.Sprintf("u%d", i%5), pct, t0.Add(time.Duration(i%3)*time.Minute))
	}

	s := makeService(t, withStats(st))
	ctx := context.Background()

	for _, m := range []domain.Metric{domain.MetricBest, domain.MetricAverage} {
		l, err := s.Top(ctx, leaderboard.TopRequest{Metric: m, Limit: 100})
		require.NoError(t, err)
		require.Len(t, l.Entries, 5)

		for _, e := range l.Entries {
			r, err := s.RankOf(ctx, leaderboard.RankRequest{UserID: e.UserID, Metric: m})
			require.NoError(t, err)
			assert.Equal(t, e.Rank, r.Rank, "rank of %s by %s should match its leaderboard position", e.UserID, m)
			assert.Equal(t, m, r.Metric)
		}
	}

	_, err := s.RankOf(ctx, leaderboard.RankRequest{UserID: "nobody", Metric: domain.MetricBest})
	require.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = s.RankOf(ctx, leaderboard.RankRequest{UserID: "u1", Metric: "worst"})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestService_Board(t *testing.T) {
	st := stats.NewMemoryStore(domain.DefaultRecentScores)
	record(t, st, "s1", "u1", 90, t0)
	record(t, st, "s2", "u2", 80, t0)
	record(t, st, "s3", "u3", 70, t0)

	s := makeService(t, withStats(st))

	l, err := s.Board(context.Background(), leaderboard.BoardRequest{
		Metric: domain.MetricBest,
		Limit:  2,
		UserID: "u3",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, userIDs(l.Entries))
	require.NotNil(t, l.Me, "should include the caller's entry even outside the page")
	assert.Equal(t, 3, l.Me.Rank)
	assert.Equal(t, "u3", l.Me.UserID)

	l, err = s.Board(context.Background(), leaderboard.BoardRequest{
		Metric: domain.MetricBest,
		Limit:  2,
		UserID: "nobody",
	})
	require.NoError(t, err)
	assert.Nil(t, l.Me, "should not include an entry for an unranked caller")
}

func TestService_SnapshotUnavailable(t *testing.T) {
	s := makeService(t, withStats(failingSnapshotter{}))

	_, err := s.TopByBest(context.Background(), 10)
	require.ErrorIs(t, err, domain.ErrRepositoryUnavailable)

	_, err = s.RankOf(context.Background(), leaderboard.RankRequest{UserID: "u1", Metric: domain.MetricBest})
	require.ErrorIs(t, err, domain.ErrRepositoryUnavailable)
}

func TestService_SnapshotOutlivesCancelledCaller(t *testing.T) {
	st := stats.NewMemoryStore(domain.DefaultRecentScores)
	record(t, st, "s1", "u1", 80, t0)

	snap := &blockingSnapshotter{
		Snapshotter: st,
		started:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	s := makeService(t, withStats(snap))

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := s.TopByBest(ctx, 10)
		first <- err
	}()

	<-snap.started
	second := make(chan error, 1)
	go func() {
		_, err := s.TopByBest(context.Background(), 10)
		second <- err
	}()

	cancel()
	close(snap.release)

	require.NoError(t, <-first)
	require.NoError(t, <-second)
}

func TestService_PublishLeaderboardUpdated(t *testing.T) {
	type (
		inputs struct {
			receivedEvents []domain.EventStatsUpdated
			// between runs after each received event.
			between func()
		}

		outputs struct {
			publishedEvents []domain.EventLeaderboardUpdated
		}
	)

	tests := map[string]struct {
		arrange func(t *testing.T, st *stats.MemoryStore) (inputs, []options)
		assert  func(t *testing.T, out outputs)
	}{
		"should publish the top of the leaderboard after receiving stats.updated": {
			arrange: func(t *testing.T, st *stats.MemoryStore) (inputs, []options) {
				return inputs{
					receivedEvents: []domain.EventStatsUpdated{
						record(t, st, "s1", "u1", 80, t0),
					},
				}, []options{withRedis(makeRedis(t).client)}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 1, "should receive 1 leaderboard updated event")
				l := out.publishedEvents[0].Leaderboard
				assert.Equal(t, domain.MetricBest, l.Metric)
				assert.Equal(t, []string{"u1"}, userIDs(l.Entries))
				assert.Equal(t, 1, l.Total)
			},
		},

		"should publish 1 event for many stats.updated within the publish interval": {
			arrange: func(t *testing.T, st *stats.MemoryStore) (inputs, []options) {
				return inputs{
					receivedEvents: []domain.EventStatsUpdated{
						record(t, st, "s1", "u1", 80, t0),
						record(t, st, "s2", "u2", 90, t0),
						record(t, st, "s3", "u3", 70, t0),
					},
				}, []options{withRedis(makeRedis(t).client)}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 1, "should receive 1 leaderboard updated event")
			},
		},

		"should publish again once the publish interval elapsed": {
			arrange: func(t *testing.T, st *stats.MemoryStore) (inputs, []options) {
				r := makeRedis(t)
				return inputs{
					receivedEvents: []domain.EventStatsUpdated{
						record(t, st, "s1", "u1", 80, t0),
						record(t, st, "s2", "u2", 90, t0),
					},
					between: func() { r.server.FastForward(time.Second) },
				}, []options{withRedis(r.client)}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 2, "should receive 2 leaderboard updated events")
			},
		},

		"should throttle locally without redis": {
			arrange: func(t *testing.T, st *stats.MemoryStore) (inputs, []options) {
				var mu sync.Mutex
				now := t0
				clock := func() time.Time {
					mu.Lock()
					defer mu.Unlock()
					return now
				}

				return inputs{
					receivedEvents: []domain.EventStatsUpdated{
						record(t, st, "s1", "u1", 80, t0),
						record(t, st, "s2", "u2", 90, t0),
						record(t, st, "s3", "u3", 70, t0),
					},
					between: func() {
						mu.Lock()
						now = now.Add(100 * time.Millisecond)
						mu.Unlock()
					},
				}, []options{withClock(clock)}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 2, "should publish at t0 and t0+200ms only")
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			st := stats.NewMemoryStore(domain.DefaultRecentScores)
			in, opts := tt.arrange(t, st)
			out := outputs{}

			eb := event.NewBus()

			var mu sync.Mutex
			eb.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
				mu.Lock()
				out.publishedEvents = append(out.publishedEvents, e.(domain.EventLeaderboardUpdated))
				mu.Unlock()
				return nil
			})

			s := makeService(t, append(opts, withEventBus(eb), withStats(st))...)

			for _, e := range in.receivedEvents {
				err := s.UpdateLeaderboard(context.Background(), e)
				require.NoError(t, err)
				if in.between != nil {
					in.between()
				}
			}

			eb.Stop()

			tt.assert(t, out)
		})
	}
}

func TestService_SubscribesToStatsUpdated(t *testing.T) {
	st := stats.NewMemoryStore(domain.DefaultRecentScores)
	eb := event.NewBus()

	published := make(chan domain.EventLeaderboardUpdated, 1)
	eb.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		published <- e.(domain.EventLeaderboardUpdated)
		return nil
	})

	makeService(t, withEventBus(eb), withStats(st))

	eb.Publish(context.Background(), record(t, st, "s1", "u1", 60, t0))

	select {
	case e := <-published:
		assert.Equal(t, []string{"u1"}, userIDs(e.Leaderboard.Entries))
	case <-time.After(time.Second):
		t.Fatal("should publish leaderboard.updated after stats.updated")
	}

	eb.Stop()
}

func makeService(t *testing.T, opts ...options) *leaderboard.Service {
	c := leaderboard.Config{
		EventBus:        event.NewBus(),
		Stats:           stats.NewMemoryStore(domain.DefaultRecentScores),
		Prefix:          "test",
		PublishInterval: 200 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(&c)
	}

	return leaderboard.NewService(c)
}

type options func(c *leaderboard.Config)

func withEventBus(eb *event.Bus) options {
	return func(c *leaderboard.Config) {
		c.EventBus = eb
	}
}

func withStats(st leaderboard.Snapshotter) options {
	return func(c *leaderboard.Config) {
		c.Stats = st
	}
}

func withRedis(rc redis.UniversalClient) options {
	return func(c *leaderboard.Config) {
		c.Redis = rc
	}
}

func withClock(now func() time.Time) options {
	return func(c *leaderboard.Config) {
		c.Now = now
	}
}

type testRedis struct {
	server *miniredis.Miniredis
	client redis.UniversalClient
}

func makeRedis(t *testing.T) testRedis {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	t.Cleanup(func() { _ = rc.Close() })
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	return testRedis{server: rs, client: rc}
}

func record(t *testing.T, st *stats.MemoryStore, sessionID, userID string, pct float64, at time.Time) domain.EventStatsUpdated {
	t.Helper()

	sc := domain.UserScore{
		SessionID:   sessionID,
		UserID:      userID,
		Username:    userID,
		Percentage:  decimal.NewFromFloat(pct),
		CompletedAt: at,
	}
	us, err := st.Record(context.Background(), sc)
	require.NoError(t, err)

	return domain.EventStatsUpdated{Score: sc, Stats: us}
}

func userStats(userID string, best float64, at time.Time) domain.UserStats {
	return domain.UserStats{
		UserID:       userID,
		Username:     userID,
		TotalQuizzes: 1,
		BestScore:    decimal.NewFromFloat(best),
		BestAt:       at,
		AverageScore: decimal.NewFromFloat(best),
		UpdatedAt:    at,
	}
}

func userIDs(entries []domain.LeaderboardEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.UserID)
	}
	return ids
}

type failingSnapshotter struct{}

func (failingSnapshotter) Snapshot(context.Context) ([]domain.UserStats, error) {
	return nil, errors.New("connection refused")
}

// blockingSnapshotter holds every read until release is closed and fails reads whose context is done.
type blockingSnapshotter struct {
	leaderboard.Snapshotter
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (b *blockingSnapshotter) Snapshot(ctx context.Context) ([]domain.UserStats, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return b.Snapshotter.Snapshot(ctx)
}
