package domain_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/adaptivequiz/internal/domain"
)

func TestUserStats_Record(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	var s domain.UserStats
	scores := []string{"70", "80", "80", "40", "100", "90"}
	for i, sc := range scores {
		s.Record(decimal.RequireFromString(sc), t0.Add(time.Duration(i)*time.Minute), domain.DefaultRecentScores)
	}

	assert.Equal(t, 6, s.TotalQuizzes)
	assert.True(t, decimal.NewFromInt(100).Equal(s.BestScore), "best=%s", s.BestScore)
	assert.Equal(t, t0.Add(4*time.Minute), s.BestAt)
	assert.True(t, decimal.NewFromInt(460).Div(decimal.NewFromInt(6)).Equal(s.AverageScore), "average=%s", s.AverageScore)
	assert.Equal(t, t0.Add(5*time.Minute), s.UpdatedAt)

	require.Len(t, s.RecentScores, domain.DefaultRecentScores)
	assert.Equal(t, "80", s.RecentScores[0].String(), "oldest score should be evicted first")
	assert.Equal(t, "90", s.RecentScores[4].String())
}

func TestUserStats_Record_keepsEarliestBest(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	var s domain.UserStats
	s.Record(decimal.NewFromInt(90), t0, 5)
	s.Record(decimal.NewFromInt(90), t0.Add(time.Hour), 5)

	assert.Equal(t, t0, s.BestAt, "an equal score should not move the best achievement time")
	assert.True(t, decimal.NewFromInt(90).Equal(s.AverageScore))
}

func TestParseMetric(t *testing.T) {
	m, err := domain.ParseMetric("average")
	require.NoError(t, err)
	assert.Equal(t, domain.MetricAverage, m)

	_, err = domain.ParseMetric("worst")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}
