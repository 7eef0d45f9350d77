package domain

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultRecentScores is the number of recent percentages kept per user.
const DefaultRecentScores = 5

// UserStats aggregates all completed quizzes of a user.
type UserStats struct {
	UserID       string
	Username     string
	TotalQuizzes int
	BestScore    decimal.Decimal
	// BestAt is when BestScore was first reached.
	BestAt       time.Time
	AverageScore decimal.Decimal
	// RecentScores is ordered oldest first.
	RecentScores []decimal.Decimal
	// UpdatedAt is when the latest quiz was recorded, which is also when AverageScore was reached.
	UpdatedAt time.Time
}

// Record folds a new quiz percentage into the stats. capacity bounds RecentScores, evicting the oldest.
func (s *UserStats) Record(percentage decimal.Decimal, at time.Time, capacity int) {
	n := decimal.NewFromInt(int64(s.TotalQuizzes))
	s.AverageScore = s.AverageScore.Mul(n).Add(percentage).Div(n.Add(decimal.NewFromInt(1)))

	if s.TotalQuizzes == 0 || percentage.GreaterThan(s.BestScore) {
		s.BestScore = percentage
		s.BestAt = at
	}

	s.TotalQuizzes++
	s.RecentScores = append(slices.Clone(s.RecentScores), percentage)
	if capacity > 0 && len(s.RecentScores) > capacity {
		s.RecentScores = s.RecentScores[len(s.RecentScores)-capacity:]
	}
	s.UpdatedAt = at
}

// Metric is a leaderboard ordering.
type Metric string

const (
	MetricBest    Metric = "best"
	MetricAverage Metric = "average"
)

func ParseMetric(s string) (Metric, error) {
	switch m := Metric(s); m {
	case MetricBest, MetricAverage:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown metric %q", ErrInvalidArgument, s)
	}
}

func (s UserStats) Score(m Metric) decimal.Decimal {
	if m == MetricAverage {
		return s.AverageScore
	}

	return s.BestScore
}

func (s UserStats) AchievedAt(m Metric) time.Time {
	if m == MetricAverage {
		return s.UpdatedAt
	}

	return s.BestAt
}

// Leaderboard is a page of the full ranking for a metric, ordered by rank.
type Leaderboard struct {
	Metric  Metric
	Entries []LeaderboardEntry
	// Total is the size of the ranked population.
	Total int
	// Me is the requesting user's entry, nil if not requested or unranked.
	Me *LeaderboardEntry
}

type LeaderboardEntry struct {
	Rank         int
	UserID       string
	Username     string
	BestScore    decimal.Decimal
	AverageScore decimal.Decimal
	TotalQuizzes int
	RecentScores []decimal.Decimal
}

type UserRank struct {
	UserID string
	Metric Metric
	Rank   int
}
