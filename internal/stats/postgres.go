package stats

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/victornm/adaptivequiz/internal/domain"
)

const codeUniqueViolation = "23505"

type PostgresStore struct {
	db       *pgxpool.Pool
	capacity int
}

func NewPostgresStore(db *pgxpool.Pool, capacity int) *PostgresStore {
	return &PostgresStore{
		db:       db,
		capacity: capacity,
	}
}

const selectStats = `
SELECT user_id, username, total_quizzes, best_score, best_at, average_score, recent_scores, updated_at
FROM user_stats`

func (s *PostgresStore) Load(ctx context.Context, userID string) (domain.UserStats, error) {
	rows, err := s.db.Query(ctx, selectStats+` WHERE user_id = $1;`, userID)
	if err != nil {
		return domain.UserStats{}, err
	}

	st, err := pgx.CollectExactlyOneRow(rows, scanStats)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.UserStats{UserID: userID}, nil
	}

	return st, err
}

func (s *PostgresStore) Record(ctx context.Context, sc domain.UserScore) (st domain.UserStats, err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const (
		insResultStmt = `
INSERT INTO quiz_results (session_id, user_id, username, score, correct_answers, total_questions, percentage, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`

		insStatsStmt = `
INSERT INTO user_stats (user_id, username) VALUES ($1, $2)
ON CONFLICT (user_id) DO NOTHING;`

		updStatsStmt = `
UPDATE user_stats
SET username = $2, total_quizzes = $3, best_score = $4, best_at = $5, average_score = $6, recent_scores = $7, updated_at = $8
WHERE user_id = $1;`
	)

	_, err = tx.Exec(ctx, insResultStmt, sc.SessionID, sc.UserID, sc.Username, sc.Score, sc.CorrectAnswers, sc.TotalQuestions, sc.Percentage, sc.CompletedAt)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return domain.UserStats{}, ErrAlreadyRecorded
	}
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("insert result: %w", err)
	}

	// The row must exist before it can be locked.
	if _, err = tx.Exec(ctx, insStatsStmt, sc.UserID, sc.Username); err != nil {
		return domain.UserStats{}, fmt.Errorf("insert stats: %w", err)
	}

	rows, err := tx.Query(ctx, selectStats+` WHERE user_id = $1 FOR UPDATE;`, sc.UserID)
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("lock stats: %w", err)
	}
	st, err = pgx.CollectExactlyOneRow(rows, scanStats)
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("lock stats: %w", err)
	}

	st.Username = sc.Username
	st.Record(sc.Percentage, sc.CompletedAt, s.capacity)

	recent, err := json.Marshal(st.RecentScores)
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("marshal recent scores: %w", err)
	}

	_, err = tx.Exec(ctx, updStatsStmt, st.UserID, st.Username, st.TotalQuizzes, st.BestScore, st.BestAt, st.AverageScore, recent, st.UpdatedAt)
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("update stats: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return domain.UserStats{}, fmt.Errorf("commit: %w", err)
	}

	return st, nil
}

// Snapshot reads all stats in a single statement, which Postgres serves from one snapshot.
func (s *PostgresStore) Snapshot(ctx context.Context) ([]domain.UserStats, error) {
	rows, err := s.db.Query(ctx, selectStats+` WHERE total_quizzes > 0;`)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, scanStats)
}

func (s *PostgresStore) History(ctx context.Context, userID string, limit int) ([]domain.UserScore, error) {
	const stmt = `
SELECT session_id, user_id, username, score, correct_answers, total_questions, percentage, completed_at
FROM quiz_results
WHERE user_id = $1
ORDER BY completed_at DESC, session_id DESC
LIMIT $2;`

	rows, err := s.db.Query(ctx, stmt, userID, limit)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.UserScore, error) {
		var sc domain.UserScore
		err := r.Scan(&sc.SessionID, &sc.UserID, &sc.Username, &sc.Score, &sc.CorrectAnswers, &sc.TotalQuestions, &sc.Percentage, &sc.CompletedAt)
		return sc, err
	})
}

func scanStats(r pgx.CollectableRow) (domain.UserStats, error) {
	var (
		st        domain.UserStats
		bestAt    *time.Time
		updatedAt *time.Time
		recent    []byte
	)

	if err := r.Scan(&st.UserID, &st.Username, &st.TotalQuizzes, &st.BestScore, &bestAt, &st.AverageScore, &recent, &updatedAt); err != nil {
		return domain.UserStats{}, err
	}

	if bestAt != nil {
		st.BestAt = *bestAt
	}
	if updatedAt != nil {
		st.UpdatedAt = *updatedAt
	}

	var scores []decimal.Decimal
	if err := json.Unmarshal(recent, &scores); err != nil {
		return domain.UserStats{}, fmt.Errorf("unmarshal recent scores of %s: %w", st.UserID, err)
	}
	if len(scores) > 0 {
		st.RecentScores = scores
	}

	return st, nil
}
