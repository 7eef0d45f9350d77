package leaderboard

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/victornm/adaptivequiz/internal/domain"
	"github.com/victornm/adaptivequiz/internal/errors"
	"github.com/victornm/adaptivequiz/internal/event"
	"github.com/victornm/adaptivequiz/internal/telemetry"
)

const (
	defaultPublishInterval = 200 * time.Millisecond
	defaultNotifyLimit     = 10
	snapshotTimeout        = 5 * time.Second
)

// Snapshotter provides a consistent copy of all ranked users' stats.
type Snapshotter interface {
	Snapshot(ctx context.Context) ([]domain.UserStats, error)
}

type Config struct {
	EventBus *event.Bus
	Stats    Snapshotter
	// Redis, when set, throttles leaderboard.updated across all instances sharing it.
	Redis           redis.UniversalClient
	Prefix          string
	PublishInterval time.Duration
	NotifyLimit     int
	Now             func() time.Time
}

// Service ranks users by their best or average percentage. Rankings are recomputed from a stats snapshot
// on every call.
type Service struct {
	eb          *event.Bus
	stats       Snapshotter
	redis       redis.UniversalClient
	prefix      string
	interval    time.Duration
	notifyLimit int
	now         func() time.Time

	group singleflight.Group

	mu          sync.Mutex
	lastPublish time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		eb:          c.EventBus,
		stats:       c.Stats,
		redis:       c.Redis,
		prefix:      c.Prefix,
		interval:    c.PublishInterval,
		notifyLimit: c.NotifyLimit,
		now:         c.Now,
	}

	if s.interval <= 0 {
		s.interval = defaultPublishInterval
	}
	if s.notifyLimit <= 0 {
		s.notifyLimit = defaultNotifyLimit
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.eb.Subscribe(domain.EventNameStatsUpdated, func(ctx context.Context, e event.Event) error {
		return s.UpdateLeaderboard(ctx, e.(domain.EventStatsUpdated))
	})

	return s
}

type TopRequest struct {
	Metric domain.Metric
	Limit  int
}

// Top returns the first Limit entries of the ranking by Metric.
func (s *Service) Top(ctx context.Context, req TopRequest) (*domain.Leaderboard, error) {
	return s.Board(ctx, BoardRequest{Metric: req.Metric, Limit: req.Limit})
}

func (s *Service) TopByBest(ctx context.Context, limit int) (*domain.Leaderboard, error) {
	return s.Top(ctx, TopRequest{Metric: domain.MetricBest, Limit: limit})
}

func (s *Service) TopByAverage(ctx context.Context, limit int) (*domain.Leaderboard, error) {
	return s.Top(ctx, TopRequest{Metric: domain.MetricAverage, Limit: limit})
}

type BoardRequest struct {
	Metric domain.Metric
	Limit  int
	// UserID, when set, also looks up the user's own entry in the same snapshot.
	UserID string
}

// Board returns a page of the ranking and, optionally, the requesting user's entry, both computed from
// one snapshot so they never disagree.
func (s *Service) Board(ctx context.Context, req BoardRequest) (*domain.Leaderboard, error) {
	if _, err := domain.ParseMetric(string(req.Metric)); err != nil {
		return nil, errors.Kind(domain.ErrInvalidArgument, errors.WithMessagef("unknown metric %q", req.Metric))
	}
	if req.Limit <= 0 {
		return nil, errors.Kind(domain.ErrInvalidArgument, errors.WithMessagef("limit must be positive, got %d", req.Limit))
	}

	all, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	entries := Rank(all, req.Metric)
	l := &domain.Leaderboard{
		Metric:  req.Metric,
		Entries: entries[:min(req.Limit, len(entries))],
		Total:   len(entries),
	}

	if req.UserID != "" {
		for i := range entries {
			if entries[i].UserID == req.UserID {
				me := entries[i]
				l.Me = &me
				break
			}
		}
	}

	return l, nil
}

type RankRequest struct {
	UserID string
	Metric domain.Metric
}

// RankOf returns the user's 1-based position in the full ranking by Metric. Users without a completed quiz
// are unranked and get an error wrapping domain.ErrUserNotFound.
func (s *Service) RankOf(ctx context.Context, req RankRequest) (*domain.UserRank, error) {
	if _, err := domain.ParseMetric(string(req.Metric)); err != nil {
		return nil, errors.Kind(domain.ErrInvalidArgument, errors.WithMessagef("unknown metric %q", req.Metric))
	}

	all, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	i := slices.IndexFunc(all, func(st domain.UserStats) bool { return st.UserID == req.UserID })
	if i < 0 {
		return nil, errors.Kind(domain.ErrUserNotFound, errors.WithMessagef("user %s has no ranked quiz", req.UserID))
	}

	rank := 1
	for _, other := range all {
		if compare(other, all[i], req.Metric) < 0 {
			rank++
		}
	}

	return &domain.UserRank{
		UserID: req.UserID,
		Metric: req.Metric,
		Rank:   rank,
	}, nil
}

// Rank orders stats by metric, highest first. Ties go to whoever reached the score earlier, then to the
// smaller user ID.
func Rank(all []domain.UserStats, m domain.Metric) []domain.LeaderboardEntry {
	sorted := slices.Clone(all)
	slices.SortFunc(sorted, func(a, b domain.UserStats) int {
		return compare(a, b, m)
	})

	entries := make([]domain.LeaderboardEntry, 0, len(sorted))
	for i, st := range sorted {
		entries = append(entries, domain.LeaderboardEntry{
			Rank:         i + 1,
			UserID:       st.UserID,
			Username:     st.Username,
			BestScore:    st.BestScore,
			AverageScore: st.AverageScore,
			TotalQuizzes: st.TotalQuizzes,
			RecentScores: slices.Clone(st.RecentScores),
		})
	}

	return entries
}

func compare(a, b domain.UserStats, m domain.Metric) int {
	if c := b.Score(m).Cmp(a.Score(m)); c != 0 {
		return c
	}
	if c := a.AchievedAt(m).Compare(b.AchievedAt(m)); c != 0 {
		return c
	}
	return strings.Compare(a.UserID, b.UserID)
}

// snapshot coalesces concurrent reads. The result is shared and must not be modified.
// The shared read outlives the caller that started it, other callers may be waiting on it.
func (s *Service) snapshot(ctx context.Context) ([]domain.UserStats, error) {
	v, err, _ := s.group.Do("snapshot", func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), snapshotTimeout)
		defer cancel()

		return s.stats.Snapshot(ctx)
	})
	if err != nil {
		return nil, errors.Unavailable(fmt.Errorf("stats snapshot: %w", err))
	}

	return v.([]domain.UserStats), nil
}

// UpdateLeaderboard reacts to a recorded quiz by publishing the new top of the leaderboard.
func (s *Service) UpdateLeaderboard(ctx context.Context, e domain.EventStatsUpdated) error {
	ok, err := s.acquirePublishSlot(ctx, e.Score.CompletedAt)
	if err != nil || !ok {
		return err
	}

	return s.publishLeaderboard(ctx)
}

// acquirePublishSlot lets at most one leaderboard.updated out per publish interval. Many quizzes complete
// in a short time and each would otherwise trigger its own notification fan-out.
func (s *Service) acquirePublishSlot(ctx context.Context, at time.Time) (bool, error) {
	if s.redis != nil {
		ok, err := s.redis.SetNX(ctx, s.getPublishKey(), at.UnixMilli(), s.interval).Result()
		if err != nil {
			return false, fmt.Errorf("setnx: %w", err)
		}
		return ok, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !s.lastPublish.IsZero() && now.Sub(s.lastPublish) < s.interval {
		return false, nil
	}
	s.lastPublish = now
	return true, nil
}

func (s *Service) publishLeaderboard(ctx context.Context) error {
	l, err := s.TopByBest(ctx, s.notifyLimit)
	if err != nil {
		return fmt.Errorf("get leaderboard failed: %w", err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})
	telemetry.LeaderboardPublished.Inc()

	return nil
}

func (s *Service) getPublishKey() string {
	return fmt.Sprintf("%s:leaderboard:publish", s.prefix)
}
