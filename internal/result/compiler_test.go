package result_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/adaptivequiz/internal/domain"
	"github.com/victornm/adaptivequiz/internal/event"
	"github.com/victornm/adaptivequiz/internal/result"
	"github.com/victornm/adaptivequiz/internal/stats"
)

var t0 = time.Date(2024, 10, 15, 9, 0, 0, 0, time.UTC)

func TestBuild(t *testing.T) {
	type (
		inputs struct {
			session *domain.Session
		}

		outputs struct {
			res *domain.QuizResult
			err error
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"10 questions with 7 correct answers should yield 70.0 percent": {
			arrange: func() inputs {
				return inputs{session: playSession(10, 7, 95*time.Second+900*time.Millisecond)}
			},
			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				assert.Equal(t, "70", out.res.Percentage.String())
				assert.Equal(t, 7, out.res.CorrectAnswers)
				assert.Equal(t, 10, out.res.TotalQuestions)
				assert.Equal(t, int64(95), out.res.DurationSeconds, "duration is truncated to whole seconds")
				assert.Len(t, out.res.DifficultyProgression, 10)
				assert.Len(t, out.res.Answers, 10)
			},
		},

		"percentage should be rounded to one decimal": {
			arrange: func() inputs {
				return inputs{session: playSession(3, 2, time.Second)}
			},
			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				assert.Equal(t, "66.7", out.res.Percentage.String())
			},
		},

		"an unanswered question should be reported as absent and incorrect": {
			arrange: func() inputs {
				ss := playSession(2, 2, time.Second)
				ss.Answers = ss.Answers[:1]
				return inputs{session: ss}
			},
			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				require.Len(t, out.res.Answers, 2)
				assert.Nil(t, out.res.Answers[1].UserAnswer)
				assert.False(t, out.res.Answers[1].IsCorrect)
				assert.Equal(t, 1, out.res.CorrectAnswers)
				assert.Equal(t, "50", out.res.Percentage.String())
			},
		},

		"an incomplete session should fail with session not complete": {
			arrange: func() inputs {
				ss := playSession(2, 2, time.Second)
				ss.Cursor = 1
				ss.EndTime = nil
				return inputs{session: ss}
			},
			assert: func(t *testing.T, out outputs) {
				require.ErrorIs(t, out.err, domain.ErrSessionNotComplete)
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()
			var out outputs
			out.res, out.err = result.Build(in.session)
			tt.assert(t, out)
		})
	}
}

func TestCompiler_Compile(t *testing.T) {
	ctx := context.Background()
	st := stats.NewMemoryStore(domain.DefaultRecentScores)
	eb := event.NewBus()

	var (
		mu        sync.Mutex
		published []domain.EventStatsUpdated
	)
	eb.Subscribe(domain.EventNameStatsUpdated, func(ctx context.Context, e event.Event) error {
		mu.Lock()
		published = append(published, e.(domain.EventStatsUpdated))
		mu.Unlock()
		return nil
	})

	c := result.NewCompiler(result.Config{Stats: st, EventBus: eb})
	ss := playSession(5, 5, time.Minute)

	res, err := c.Compile(ctx, ss)
	require.NoError(t, err)
	assert.Equal(t, "100", res.Percentage.String())

	again, err := c.Compile(ctx, ss)
	require.NoError(t, err)
	assert.Equal(t, res, again)
	eb.Stop()

	us, err := st.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, us.TotalQuizzes, "compiling twice must record once")
	assert.Equal(t, "100", us.BestScore.String())

	require.Len(t, published, 1)
	assert.Equal(t, ss.SessionID, published[0].Score.SessionID)
}

// playSession builds a completed session of total questions, answering the first correct ones right.
func playSession(total, correct int, took time.Duration) *domain.Session {
	ss := &domain.Session{
		SessionID:         "s1",
		UserID:            "u1",
		Username:          "alice",
		TotalQuestions:    total,
		CurrentDifficulty: domain.InitialDifficulty,
		StartTime:         t0,
	}

	for i := 0; i < total; i++ {
		q := domain.Question{
			QuestionID:    string(rune('a' + i)),
			Text:          "question",
			Options:       []string{"a", "b"},
			CorrectAnswer: 1,
			Difficulty:    ss.CurrentDifficulty,
		}
		if err := ss.Present(q); err != nil {
			panic(err)
		}

		answer := 0
		if i < correct {
			answer = 1
		}
		ss.RecordAnswer(answer, t0.Add(took*time.Duration(i+1)/time.Duration(total)))
	}

	return ss
}
