package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quiz"

var (
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_started_total",
		Help:      "Number of quiz sessions started.",
	})

	AnswersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "answers_submitted_total",
		Help:      "Number of accepted answers by question difficulty and correctness.",
	}, []string{"difficulty", "correct"})

	SessionsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_completed_total",
		Help:      "Number of quiz results recorded into user stats.",
	})

	ResultPercentage = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "result_percentage",
		Help:      "Distribution of final quiz percentages.",
		Buckets:   prometheus.LinearBuckets(0, 10, 11),
	})

	LeaderboardPublished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "leaderboard_published_total",
		Help:      "Number of leaderboard.updated events published.",
	})
)
