// Package session runs adaptive quiz sessions: it draws questions, checks answers, adapts the difficulty
// and completes the session once every question is answered.
package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/adaptivequiz/internal/domain"
	"github.com/victornm/adaptivequiz/internal/errors"
	"github.com/victornm/adaptivequiz/internal/question"
	"github.com/victornm/adaptivequiz/internal/result"
	"github.com/victornm/adaptivequiz/internal/telemetry"
)

const defaultLockTimeout = 5 * time.Second

// Fallback decides what happens when the bank has no question left at the wanted difficulty.
type Fallback string

const (
	// FallbackNone fails the draw with domain.ErrNoQuestionsAvailable.
	FallbackNone Fallback = "none"
	// FallbackNearest draws from the nearest other difficulty that still has questions, easier first on ties.
	FallbackNearest Fallback = "nearest"
)

func ParseFallback(s string) (Fallback, error) {
	switch f := Fallback(s); f {
	case "", FallbackNone:
		return FallbackNone, nil
	case FallbackNearest:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown fallback %q", domain.ErrInvalidArgument, s)
	}
}

type Config struct {
	Bank     question.Bank
	Repo     Repository
	Locker   Locker
	Compiler *result.Compiler
	Fallback Fallback
	// LockTimeout bounds the wait for a session held by a concurrent submission.
	LockTimeout time.Duration
	Now         func() time.Time
}

type Service struct {
	bank        question.Bank
	repo        Repository
	locker      Locker
	compiler    *result.Compiler
	fallback    Fallback
	lockTimeout time.Duration
	now         func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		bank:        c.Bank,
		repo:        c.Repo,
		locker:      c.Locker,
		compiler:    c.Compiler,
		fallback:    c.Fallback,
		lockTimeout: c.LockTimeout,
		now:         c.Now,
	}

	if s.locker == nil {
		s.locker = NewLocalLocker()
	}
	if s.fallback == "" {
		s.fallback = FallbackNone
	}
	if s.lockTimeout <= 0 {
		s.lockTimeout = defaultLockTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// View is the client's view of a session. It never carries the answer of an unanswered question.
type View struct {
	SessionID      string
	TotalQuestions int
	// CurrentQuestion is the 1-based number of the question in play, TotalQuestions once complete.
	CurrentQuestion   int
	Question          *domain.QuestionView
	CurrentDifficulty domain.Difficulty
	Score             int
	IsComplete        bool
	StartTime         time.Time
	EndTime           *time.Time
}

func newView(ss *domain.Session) *View {
	v := &View{
		SessionID:         ss.SessionID,
		TotalQuestions:    ss.TotalQuestions,
		CurrentQuestion:   min(ss.Cursor+1, ss.TotalQuestions),
		CurrentDifficulty: ss.CurrentDifficulty,
		Score:             ss.Score,
		IsComplete:        ss.IsComplete(),
		StartTime:         ss.StartTime,
		EndTime:           ss.EndTime,
	}

	if q, ok := ss.CurrentQuestion(); ok {
		qv := q.View()
		v.Question = &qv
	}

	return v
}

// StartSessionRequest represents a request to start a new quiz session.
type StartSessionRequest struct {
	UserID   string
	Username string
	// TotalQuestions is the session length, between domain.MinQuestions and domain.MaxQuestions.
	TotalQuestions int
	// Category optionally restricts the questions drawn.
	Category string
}

// StartSession creates a session for the user and draws its first question at medium difficulty.
func (s *Service) StartSession(ctx context.Context, req StartSessionRequest) (*View, error) {
	if req.UserID == "" {
		return nil, errors.Kind(domain.ErrInvalidArgument, errors.WithMessagef("user id is required"))
	}
	if req.TotalQuestions < domain.MinQuestions || req.TotalQuestions > domain.MaxQuestions {
		return nil, errors.Kind(domain.ErrInvalidArgument,
			errors.WithMessagef("total questions must be between %d and %d, got %d", domain.MinQuestions, domain.MaxQuestions, req.TotalQuestions))
	}

	available, err := s.bank.Count(ctx, req.Category)
	if err != nil {
		return nil, errors.Unavailable(fmt.Errorf("count questions: %w", err))
	}
	if req.TotalQuestions > available {
		return nil, errors.Kind(domain.ErrInvalidArgument,
			errors.WithMessagef("total questions %d exceeds the %d questions available", req.TotalQuestions, available))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("generate session ID: %w", err))
	}

	username := req.Username
	if username == "" {
		username = req.UserID
	}

	ss := &domain.Session{
		SessionID:         id.String(),
		UserID:            req.UserID,
		Username:          username,
		Category:          req.Category,
		CurrentDifficulty: domain.InitialDifficulty,
		TotalQuestions:    req.TotalQuestions,
		StartTime:         s.now(),
	}

	q, err := s.draw(ctx, ss)
	if err != nil {
		return nil, err
	}
	if err := ss.Present(q); err != nil {
		return nil, errors.Internal(err)
	}

	if err := s.repo.Save(ctx, ss); err != nil {
		return nil, errors.Unavailable(fmt.Errorf("save session %s: %w", ss.SessionID, err))
	}

	telemetry.SessionsStarted.Inc()
	slog.InfoContext(ctx, "session: started",
		"session", ss.SessionID,
		"user", ss.UserID,
		"total_questions", ss.TotalQuestions,
	)

	return newView(ss), nil
}

type SubmitAnswerRequest struct {
	SessionID   string
	UserID      string
	QuestionID  string
	AnswerIndex int
}

type SubmitAnswerResponse struct {
	IsCorrect bool
	// CorrectAnswer and Explanation reveal the answered question.
	CorrectAnswer int
	Explanation   string
	IsComplete    bool
	// NextQuestion is nil once the session is complete.
	NextQuestion      *domain.QuestionView
	CurrentQuestion   int
	Score             int
	CurrentDifficulty domain.Difficulty
	// Result is set when this answer completed the session and its result was recorded.
	Result *domain.QuizResult
}

// SubmitAnswer answers the question at the session's cursor. The answer is accepted only once the updated
// session has been saved; on any failure the session is left as it was.
func (s *Service) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	unlock, err := s.locker.Lock(lockCtx, req.SessionID)
	cancel()
	if err != nil {
		return nil, errors.Unavailable(fmt.Errorf("lock session %s: %w", req.SessionID, err))
	}
	defer unlock()

	ss, err := s.load(ctx, req.SessionID, req.UserID)
	if err != nil {
		return nil, err
	}

	if ss.IsComplete() {
		return nil, errors.Kind(domain.ErrSessionAlreadyComplete,
			errors.WithMessagef("session %s is already complete", ss.SessionID))
	}

	cur, ok := ss.CurrentQuestion()
	if !ok || cur.QuestionID != req.QuestionID {
		return nil, errors.Kind(domain.ErrQuestionMismatch,
			errors.WithMessagef("question %s is not the current question of session %s", req.QuestionID, ss.SessionID))
	}
	if _, answered := ss.AnswerFor(req.QuestionID); answered {
		return nil, errors.Kind(domain.ErrQuestionMismatch,
			errors.WithMessagef("question %s is already answered", req.QuestionID))
	}
	if req.AnswerIndex < 0 || req.AnswerIndex >= len(cur.Options) {
		return nil, errors.Kind(domain.ErrInvalidArgument,
			errors.WithMessagef("answer index %d out of range [0, %d)", req.AnswerIndex, len(cur.Options)))
	}

	next := ss.Clone()
	correct := next.RecordAnswer(req.AnswerIndex, s.now())

	if !next.IsComplete() {
		q, err := s.draw(ctx, next)
		if err != nil {
			return nil, err
		}
		if err := next.Present(q); err != nil {
			return nil, errors.Internal(err)
		}
	}

	if err := s.repo.Save(ctx, next); err != nil {
		return nil, errors.Unavailable(fmt.Errorf("save session %s: %w", next.SessionID, err))
	}

	telemetry.AnswersSubmitted.WithLabelValues(cur.Difficulty.String(), strconv.FormatBool(correct)).Inc()

	v := newView(next)
	resp := &SubmitAnswerResponse{
		IsCorrect:         correct,
		CorrectAnswer:     cur.CorrectAnswer,
		Explanation:       cur.Explanation,
		IsComplete:        v.IsComplete,
		NextQuestion:      v.Question,
		CurrentQuestion:   v.CurrentQuestion,
		Score:             v.Score,
		CurrentDifficulty: v.CurrentDifficulty,
	}

	if next.IsComplete() {
		res, err := s.compiler.Compile(ctx, next)
		if err != nil {
			// The session is saved as complete, GetResult records it later.
			slog.ErrorContext(ctx, "session: record result failed", "session", next.SessionID, "error", err)
		}
		resp.Result = res
	}

	return resp, nil
}

type GetSessionRequest struct {
	SessionID string
	UserID    string
}

// GetSession returns the session if it is owned by the requesting user.
func (s *Service) GetSession(ctx context.Context, req GetSessionRequest) (*View, error) {
	ss, err := s.load(ctx, req.SessionID, req.UserID)
	if err != nil {
		return nil, err
	}

	return newView(ss), nil
}

// GetResult returns the result of a completed session, recording it into the user's stats if that has not
// happened yet.
func (s *Service) GetResult(ctx context.Context, req GetSessionRequest) (*domain.QuizResult, error) {
	ss, err := s.load(ctx, req.SessionID, req.UserID)
	if err != nil {
		return nil, err
	}

	return s.compiler.Compile(ctx, ss)
}

func (s *Service) load(ctx context.Context, sessionID, userID string) (*domain.Session, error) {
	ss, err := s.repo.Load(ctx, sessionID)
	if stderrors.Is(err, domain.ErrSessionNotFound) {
		return nil, errors.Kind(domain.ErrSessionNotFound, errors.WithMessagef("session not found: %s", sessionID))
	}
	if err != nil {
		return nil, errors.Unavailable(fmt.Errorf("load session %s: %w", sessionID, err))
	}

	// A foreign session is reported the same way as a missing one.
	if ss.UserID != userID {
		return nil, errors.Kind(domain.ErrSessionNotFound, errors.WithMessagef("session not found: %s", sessionID))
	}

	return ss, nil
}

// draw fetches a question at the session's current difficulty that the session has not presented yet.
func (s *Service) draw(ctx context.Context, ss *domain.Session) (domain.Question, error) {
	tiers := []domain.Difficulty{ss.CurrentDifficulty}
	if s.fallback == FallbackNearest {
		tiers = append(tiers, ss.CurrentDifficulty.Nearest()...)
	}

	exclude := ss.PresentedIDs()
	for _, d := range tiers {
		q, err := s.bank.FetchOne(ctx, question.FetchRequest{
			Difficulty: d,
			Category:   ss.Category,
			ExcludeIDs: exclude,
		})
		if stderrors.Is(err, domain.ErrNoQuestionsAvailable) {
			continue
		}
		if err != nil {
			return domain.Question{}, errors.Unavailable(fmt.Errorf("fetch question: %w", err))
		}

		if d != ss.CurrentDifficulty {
			slog.InfoContext(ctx, "session: fell back to another difficulty",
				"session", ss.SessionID,
				"wanted", ss.CurrentDifficulty.String(),
				"got", d.String(),
			)
		}

		return q, nil
	}

	return domain.Question{}, errors.Kind(domain.ErrNoQuestionsAvailable,
		errors.WithMessagef("no %s questions left for session %s", ss.CurrentDifficulty, ss.SessionID))
}
