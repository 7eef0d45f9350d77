package domain

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

const (
	MinQuestions = 1
	MaxQuestions = 50
)

// Question is published by the question bank and never modified afterwards.
type Question struct {
	QuestionID    string     `json:"id" yaml:"id"`
	Text          string     `json:"text" yaml:"text"`
	Options       []string   `json:"options" yaml:"options"`
	CorrectAnswer int        `json:"correct_answer" yaml:"correct_answer"`
	Difficulty    Difficulty `json:"difficulty" yaml:"difficulty"`
	Category      string     `json:"category,omitempty" yaml:"category,omitempty"`
	Explanation   string     `json:"explanation,omitempty" yaml:"explanation,omitempty"`
}

func (q Question) Validate() error {
	switch {
	case q.QuestionID == "":
		return fmt.Errorf("%w: question id is empty", ErrInvalidArgument)
	case q.Text == "":
		return fmt.Errorf("%w: question %s: text is empty", ErrInvalidArgument, q.QuestionID)
	case len(q.Options) < 2:
		return fmt.Errorf("%w: question %s: need at least 2 options, got %d", ErrInvalidArgument, q.QuestionID, len(q.Options))
	case q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options):
		return fmt.Errorf("%w: question %s: correct answer %d out of range", ErrInvalidArgument, q.QuestionID, q.CorrectAnswer)
	case !q.Difficulty.Valid():
		return fmt.Errorf("%w: question %s: invalid difficulty", ErrInvalidArgument, q.QuestionID)
	}

	return nil
}

// View hides the correct answer and the explanation.
func (q Question) View() QuestionView {
	return QuestionView{
		QuestionID: q.QuestionID,
		Text:       q.Text,
		Options:    slices.Clone(q.Options),
		Difficulty: q.Difficulty,
		Category:   q.Category,
	}
}

// QuestionView is what a client sees of a question it has not answered yet.
type QuestionView struct {
	QuestionID string
	Text       string
	Options    []string
	Difficulty Difficulty
	Category   string
}

// Answer is one entry of a session's answer log.
type Answer struct {
	QuestionID  string    `json:"question_id"`
	AnswerIndex int       `json:"answer_index"`
	IsCorrect   bool      `json:"is_correct"`
	AnsweredAt  time.Time `json:"answered_at"`
}

// Session represents one user's attempt at an adaptive quiz.
//
// Questions holds the questions presented so far, in presentation order. Answers is the append-only answer log,
// at most one entry per presented question. The session is complete once Cursor reaches TotalQuestions.
type Session struct {
	SessionID         string     `json:"session_id"`
	UserID            string     `json:"user_id"`
	Username          string     `json:"username"`
	Category          string     `json:"category,omitempty"`
	Questions         []Question `json:"questions"`
	Answers           []Answer   `json:"answers"`
	CurrentDifficulty Difficulty `json:"current_difficulty"`
	Cursor            int        `json:"cursor"`
	TotalQuestions    int        `json:"total_questions"`
	Score             int        `json:"score"`
	StartTime         time.Time  `json:"start_time"`
	EndTime           *time.Time `json:"end_time,omitempty"`
}

func (s *Session) IsComplete() bool {
	return s.Cursor >= s.TotalQuestions
}

// CurrentQuestion returns the question awaiting an answer.
func (s *Session) CurrentQuestion() (Question, bool) {
	if s.IsComplete() || s.Cursor >= len(s.Questions) {
		return Question{}, false
	}

	return s.Questions[s.Cursor], true
}

func (s *Session) PresentedIDs() []string {
	ids := make([]string, 0, len(s.Questions))
	for _, q := range s.Questions {
		ids = append(ids, q.QuestionID)
	}

	return ids
}

func (s *Session) AnswerFor(questionID string) (Answer, bool) {
	for _, a := range s.Answers {
		if a.QuestionID == questionID {
			return a, true
		}
	}

	return Answer{}, false
}

// Present appends q as the question at the cursor and moves the current difficulty to its tier.
func (s *Session) Present(q Question) error {
	if len(s.Questions) != s.Cursor {
		return fmt.Errorf("present %s: question %d already presented", q.QuestionID, s.Cursor)
	}

	s.Questions = append(s.Questions, q)
	s.CurrentDifficulty = q.Difficulty
	return nil
}

// RecordAnswer answers the current question, advances the cursor and the difficulty, and reports correctness.
// The caller checks that the answer targets the current question and is in range.
func (s *Session) RecordAnswer(answerIndex int, at time.Time) bool {
	q := s.Questions[s.Cursor]
	correct := answerIndex == q.CorrectAnswer

	s.Answers = append(s.Answers, Answer{
		QuestionID:  q.QuestionID,
		AnswerIndex: answerIndex,
		IsCorrect:   correct,
		AnsweredAt:  at,
	})
	if correct {
		s.Score += q.Difficulty.Points()
	}

	s.CurrentDifficulty = NextDifficulty(s.CurrentDifficulty, correct)
	s.Cursor++

	if s.IsComplete() {
		end := at
		s.EndTime = &end
	}

	return correct
}

// Progression lists the tier of every presented question in presentation order.
func (s *Session) Progression() []Difficulty {
	out := make([]Difficulty, 0, len(s.Questions))
	for _, q := range s.Questions {
		out = append(out, q.Difficulty)
	}

	return out
}

func (s *Session) Clone() *Session {
	c := *s
	c.Questions = slices.Clone(s.Questions)
	c.Answers = slices.Clone(s.Answers)
	if s.EndTime != nil {
		end := *s.EndTime
		c.EndTime = &end
	}

	return &c
}

// AnswerRecord joins a presented question with the user's answer. UserAnswer is nil if the question was never answered.
type AnswerRecord struct {
	Question   Question
	UserAnswer *int
	IsCorrect  bool
}

// QuizResult is the report of a completed session.
type QuizResult struct {
	SessionID             string
	UserID                string
	Username              string
	TotalQuestions        int
	CorrectAnswers        int
	Score                 int
	Percentage            decimal.Decimal
	DurationSeconds       int64
	DifficultyProgression []Difficulty
	Answers               []AnswerRecord
	CompletedAt           time.Time
}

// UserScore is a single completed quiz in a user's history.
type UserScore struct {
	SessionID      string
	UserID         string
	Username       string
	Score          int
	CorrectAnswers int
	TotalQuestions int
	Percentage     decimal.Decimal
	CompletedAt    time.Time
}
