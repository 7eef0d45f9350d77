// Package result turns completed sessions into quiz results and feeds them into user stats.
package result

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/victornm/adaptivequiz/internal/domain"
	"github.com/victornm/adaptivequiz/internal/errors"
	"github.com/victornm/adaptivequiz/internal/event"
	"github.com/victornm/adaptivequiz/internal/stats"
	"github.com/victornm/adaptivequiz/internal/telemetry"
)

type Config struct {
	Stats    stats.Store
	EventBus *event.Bus
}

type Compiler struct {
	stats stats.Store
	eb    *event.Bus
}

func NewCompiler(c Config) *Compiler {
	return &Compiler{
		stats: c.Stats,
		eb:    c.EventBus,
	}
}

// Compile builds the result of a completed session and records it in the owner's stats.
// Compiling the same session again returns the same result without counting it twice.
func (c *Compiler) Compile(ctx context.Context, ss *domain.Session) (*domain.QuizResult, error) {
	res, err := Build(ss)
	if err != nil {
		return nil, err
	}

	sc := domain.UserScore{
		SessionID:      res.SessionID,
		UserID:         res.UserID,
		Username:       res.Username,
		Score:          res.Score,
		CorrectAnswers: res.CorrectAnswers,
		TotalQuestions: res.TotalQuestions,
		Percentage:     res.Percentage,
		CompletedAt:    res.CompletedAt,
	}

	st, err := c.stats.Record(ctx, sc)
	if stderrors.Is(err, stats.ErrAlreadyRecorded) {
		return res, nil
	}
	if err != nil {
		return nil, errors.Unavailable(err)
	}

	telemetry.SessionsCompleted.Inc()
	telemetry.ResultPercentage.Observe(res.Percentage.InexactFloat64())
	slog.InfoContext(ctx, "result: recorded",
		"session", res.SessionID,
		"user", res.UserID,
		"percentage", res.Percentage.String(),
		"total_quizzes", st.TotalQuizzes,
	)

	c.eb.Publish(ctx, domain.EventStatsUpdated{
		Score: sc,
		Stats: st,
	})

	return res, nil
}

// Build derives the result of a completed session without side effects.
func Build(ss *domain.Session) (*domain.QuizResult, error) {
	if !ss.IsComplete() || ss.EndTime == nil {
		return nil, errors.Kind(domain.ErrSessionNotComplete,
			errors.WithMessagef("session %s is not complete: %d/%d answered", ss.SessionID, ss.Cursor, ss.TotalQuestions))
	}

	res := &domain.QuizResult{
		SessionID:             ss.SessionID,
		UserID:                ss.UserID,
		Username:              ss.Username,
		TotalQuestions:        ss.TotalQuestions,
		DifficultyProgression: ss.Progression(),
		Answers:               make([]domain.AnswerRecord, 0, len(ss.Questions)),
		CompletedAt:           *ss.EndTime,
		DurationSeconds:       int64(max(ss.EndTime.Sub(ss.StartTime), 0) / time.Second),
	}

	for _, q := range ss.Questions {
		rec := domain.AnswerRecord{Question: q}
		if a, ok := ss.AnswerFor(q.QuestionID); ok {
			idx := a.AnswerIndex
			rec.UserAnswer = &idx
			rec.IsCorrect = idx == q.CorrectAnswer
		}

		if rec.IsCorrect {
			res.CorrectAnswers++
			res.Score += q.Difficulty.Points()
		}
		res.Answers = append(res.Answers, rec)
	}

	res.Percentage = Percentage(res.CorrectAnswers, res.TotalQuestions)
	return res, nil
}

// Percentage is 100*correct/total rounded to one decimal place.
func Percentage(correct, total int) decimal.Decimal {
	if total <= 0 {
		return decimal.Zero
	}

	return decimal.NewFromInt(int64(correct) * 100).
		Div(decimal.NewFromInt(int64(total))).
		Round(1)
}
