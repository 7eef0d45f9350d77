// Package stats keeps per-user quiz aggregates and the history of completed quizzes.
package stats

import (
	"context"
	"errors"

	"github.com/victornm/adaptivequiz/internal/domain"
)

// ErrAlreadyRecorded is returned by Store.Record when the session was recorded before.
var ErrAlreadyRecorded = errors.New("stats: result already recorded")

type Store interface {
	// Load returns the stats of a user, the zero value with UserID set if the user has none.
	Load(ctx context.Context, userID string) (domain.UserStats, error)
	// Record appends sc to the user's history and folds it into the user's stats in one atomic step.
	// A session is recorded at most once.
	Record(ctx context.Context, sc domain.UserScore) (domain.UserStats, error)
	// Snapshot returns a consistent copy of the stats of every user with at least one quiz.
	Snapshot(ctx context.Context) ([]domain.UserStats, error)
	// History returns the latest completed quizzes of a user, newest first.
	History(ctx context.Context, userID string, limit int) ([]domain.UserScore, error)
}
