package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/victornm/adaptivequiz/internal/domain"
	"github.com/victornm/adaptivequiz/internal/session"
)

type (
	StartSessionRequest struct {
		NumQuestions int    `json:"numQuestions"`
		Category     string `json:"category"`
	}

	SubmitAnswerRequest struct {
		SessionID  string `json:"sessionId" binding:"required"`
		QuestionID string `json:"questionId" binding:"required"`
		// AnswerIndex is a pointer so that a missing index is told apart from option 0.
		AnswerIndex *int `json:"answerIndex" binding:"required"`
	}

	LeaderboardQuery struct {
		SortBy domain.Metric `form:"sortBy" binding:"omitempty,oneof=best average"`
		Limit  int           `form:"limit" binding:"omitempty,min=1"`
	}

	HistoryQuery struct {
		Limit int `form:"limit" binding:"omitempty,min=1"`
	}
)

type (
	Question struct {
		ID         string            `json:"id"`
		Text       string            `json:"text"`
		Options    []string          `json:"options"`
		Difficulty domain.Difficulty `json:"difficulty"`
		Category   string            `json:"category,omitempty"`
	}

	Session struct {
		SessionID         string            `json:"sessionId"`
		TotalQuestions    int               `json:"totalQuestions"`
		CurrentQuestion   int               `json:"currentQuestion"`
		Question          *Question         `json:"question,omitempty"`
		CurrentDifficulty domain.Difficulty `json:"currentDifficulty"`
		Score             int               `json:"score"`
		IsComplete        bool              `json:"isComplete"`
		StartTime         time.Time         `json:"startTime"`
		EndTime           *time.Time        `json:"endTime,omitempty"`
	}

	AnswerResult struct {
		IsCorrect         bool              `json:"isCorrect"`
		CorrectAnswer     int               `json:"correctAnswer"`
		Explanation       string            `json:"explanation,omitempty"`
		IsComplete        bool              `json:"isComplete"`
		NextQuestion      *Question         `json:"nextQuestion,omitempty"`
		CurrentQuestion   int               `json:"currentQuestion"`
		Score             int               `json:"score"`
		CurrentDifficulty domain.Difficulty `json:"currentDifficulty"`
		Result            *QuizResult       `json:"result,omitempty"`
	}

	AnswerRecord struct {
		QuestionID    string            `json:"questionId"`
		Text          string            `json:"text"`
		Options       []string          `json:"options"`
		Difficulty    domain.Difficulty `json:"difficulty"`
		CorrectAnswer int               `json:"correctAnswer"`
		Explanation   string            `json:"explanation,omitempty"`
		UserAnswer    *int              `json:"userAnswer"`
		IsCorrect     bool              `json:"isCorrect"`
	}

	QuizResult struct {
		SessionID             string              `json:"sessionId"`
		UserID                string              `json:"userId"`
		Username              string              `json:"username"`
		TotalQuestions        int                 `json:"totalQuestions"`
		CorrectAnswers        int                 `json:"correctAnswers"`
		Score                 int                 `json:"score"`
		Percentage            float64             `json:"percentage"`
		Duration              int64               `json:"duration"`
		DifficultyProgression []domain.Difficulty `json:"difficultyProgression"`
		Answers               []AnswerRecord      `json:"answers"`
		CompletedAt           time.Time           `json:"completedAt"`
	}

	Leaderboard struct {
		SortBy  domain.Metric      `json:"sortBy"`
		Total   int                `json:"total"`
		Entries []LeaderboardEntry `json:"entries"`
		Me      *LeaderboardEntry  `json:"me,omitempty"`
	}

	LeaderboardEntry struct {
		Rank         int       `json:"rank"`
		UserID       string    `json:"userId"`
		Username     string    `json:"username"`
		BestScore    float64   `json:"bestScore"`
		AverageScore float64   `json:"averageScore"`
		TotalQuizzes int       `json:"totalQuizzes"`
		RecentScores []float64 `json:"recentScores"`
	}

	Rank struct {
		UserID string        `json:"userId"`
		SortBy domain.Metric `json:"sortBy"`
		// Rank is -1 for a user without a completed quiz.
		Rank int `json:"rank"`
	}

	UserStats struct {
		UserID       string    `json:"userId"`
		Username     string    `json:"username"`
		TotalQuizzes int       `json:"totalQuizzes"`
		BestScore    float64   `json:"bestScore"`
		AverageScore float64   `json:"averageScore"`
		RecentScores []float64 `json:"recentScores"`
	}

	UserScore struct {
		SessionID      string    `json:"sessionId"`
		Username       string    `json:"username"`
		Score          int       `json:"score"`
		CorrectAnswers int       `json:"correctAnswers"`
		TotalQuestions int       `json:"totalQuestions"`
		Percentage     float64   `json:"percentage"`
		CompletedAt    time.Time `json:"completedAt"`
	}
)

func toQuestion(q *domain.QuestionView) *Question {
	if q == nil {
		return nil
	}

	return &Question{
		ID:         q.QuestionID,
		Text:       q.Text,
		Options:    q.Options,
		Difficulty: q.Difficulty,
		Category:   q.Category,
	}
}

func toSession(v *session.View) Session {
	return Session{
		SessionID:         v.SessionID,
		TotalQuestions:    v.TotalQuestions,
		CurrentQuestion:   v.CurrentQuestion,
		Question:          toQuestion(v.Question),
		CurrentDifficulty: v.CurrentDifficulty,
		Score:             v.Score,
		IsComplete:        v.IsComplete,
		StartTime:         v.StartTime,
		EndTime:           v.EndTime,
	}
}

func toAnswerResult(r *session.SubmitAnswerResponse) AnswerResult {
	out := AnswerResult{
		IsCorrect:         r.IsCorrect,
		CorrectAnswer:     r.CorrectAnswer,
		Explanation:       r.Explanation,
		IsComplete:        r.IsComplete,
		NextQuestion:      toQuestion(r.NextQuestion),
		CurrentQuestion:   r.CurrentQuestion,
		Score:             r.Score,
		CurrentDifficulty: r.CurrentDifficulty,
	}

	if r.Result != nil {
		res := toQuizResult(r.Result)
		out.Result = &res
	}

	return out
}

func toQuizResult(r *domain.QuizResult) QuizResult {
	out := QuizResult{
		SessionID:             r.SessionID,
		UserID:                r.UserID,
		Username:              r.Username,
		TotalQuestions:        r.TotalQuestions,
		CorrectAnswers:        r.CorrectAnswers,
		Score:                 r.Score,
		Percentage:            r.Percentage.InexactFloat64(),
		Duration:              r.DurationSeconds,
		DifficultyProgression: r.DifficultyProgression,
		Answers:               make([]AnswerRecord, 0, len(r.Answers)),
		CompletedAt:           r.CompletedAt,
	}

	for _, a := range r.Answers {
		out.Answers = append(out.Answers, AnswerRecord{
			QuestionID:    a.Question.QuestionID,
			Text:          a.Question.Text,
			Options:       a.Question.Options,
			Difficulty:    a.Question.Difficulty,
			CorrectAnswer: a.Question.CorrectAnswer,
			Explanation:   a.Question.Explanation,
			UserAnswer:    a.UserAnswer,
			IsCorrect:     a.IsCorrect,
		})
	}

	return out
}

func toLeaderboard(l *domain.Leaderboard) Leaderboard {
	out := Leaderboard{
		SortBy:  l.Metric,
		Total:   l.Total,
		Entries: make([]LeaderboardEntry, 0, len(l.Entries)),
	}

	for _, e := range l.Entries {
		out.Entries = append(out.Entries, toLeaderboardEntry(e))
	}

	if l.Me != nil {
		me := toLeaderboardEntry(*l.Me)
		out.Me = &me
	}

	return out
}

func toLeaderboardEntry(e domain.LeaderboardEntry) LeaderboardEntry {
	return LeaderboardEntry{
		Rank:         e.Rank,
		UserID:       e.UserID,
		Username:     e.Username,
		BestScore:    e.BestScore.InexactFloat64(),
		AverageScore: e.AverageScore.Round(1).InexactFloat64(),
		TotalQuizzes: e.TotalQuizzes,
		RecentScores: toFloats(e.RecentScores),
	}
}

func toUserStats(st domain.UserStats) UserStats {
	return UserStats{
		UserID:       st.UserID,
		Username:     st.Username,
		TotalQuizzes: st.TotalQuizzes,
		BestScore:    st.BestScore.InexactFloat64(),
		AverageScore: st.AverageScore.Round(1).InexactFloat64(),
		RecentScores: toFloats(st.RecentScores),
	}
}

func toUserScores(scores []domain.UserScore) []UserScore {
	out := make([]UserScore, 0, len(scores))
	for _, sc := range scores {
		out = append(out, UserScore{
			SessionID:      sc.SessionID,
			Username:       sc.Username,
			Score:          sc.Score,
			CorrectAnswers: sc.CorrectAnswers,
			TotalQuestions: sc.TotalQuestions,
			Percentage:     sc.Percentage.InexactFloat64(),
			CompletedAt:    sc.CompletedAt,
		})
	}

	return out
}

func toFloats(ds []decimal.Decimal) []float64 {
	out := make([]float64, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.InexactFloat64())
	}

	return out
}
