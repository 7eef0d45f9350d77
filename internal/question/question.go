// Package question provides the question banks the quiz engine draws from.
package question

import (
	"context"

	"github.com/victornm/adaptivequiz/internal/domain"
)

// Bank is a read-only source of published questions.
type Bank interface {
	// FetchOne returns one question matching req, or an error wrapping domain.ErrNoQuestionsAvailable
	// when none is left. Any other error is a failure of the bank itself.
	FetchOne(ctx context.Context, req FetchRequest) (domain.Question, error)
	// Count returns how many questions the bank holds across all difficulties, restricted to category
	// when not empty.
	Count(ctx context.Context, category string) (int, error)
}

type FetchRequest struct {
	Difficulty domain.Difficulty
	// Category restricts the draw when not empty.
	Category   string
	ExcludeIDs []string
}
