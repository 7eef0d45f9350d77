package question

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/adaptivequiz/internal/domain"
)

// PostgresBank reads questions from the questions table.
type PostgresBank struct {
	db *pgxpool.Pool
}

func NewPostgresBank(db *pgxpool.Pool) *PostgresBank {
	return &PostgresBank{db: db}
}

func (b *PostgresBank) FetchOne(ctx context.Context, req FetchRequest) (domain.Question, error) {
	const stmt = `
SELECT question_id, text, options, correct_answer, difficulty, category, explanation
FROM questions
WHERE difficulty = $1
  AND ($2 = '' OR category = $2)
  AND NOT (question_id = ANY($3))
ORDER BY random()
LIMIT 1;`

	exclude := req.ExcludeIDs
	if exclude == nil {
		exclude = []string{}
	}

	rows, err := b.db.Query(ctx, stmt, req.Difficulty.String(), req.Category, exclude)
	if err != nil {
		return domain.Question{}, err
	}

	q, err := pgx.CollectExactlyOneRow(rows, scanQuestion)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, fmt.Errorf("%w: difficulty=%s category=%q", domain.ErrNoQuestionsAvailable, req.Difficulty, req.Category)
	}
	if err != nil {
		return domain.Question{}, err
	}

	return q, nil
}

func (b *PostgresBank) Count(ctx context.Context, category string) (int, error) {
	const stmt = `SELECT count(*) FROM questions WHERE ($1 = '' OR category = $1);`

	var n int
	if err := b.db.QueryRow(ctx, stmt, category).Scan(&n); err != nil {
		return 0, err
	}

	return n, nil
}

// Import upserts questions by ID.
func (b *PostgresBank) Import(ctx context.Context, qs []domain.Question) error {
	const stmt = `
INSERT INTO questions (question_id, text, options, correct_answer, difficulty, category, explanation)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (question_id) DO UPDATE SET
	text = EXCLUDED.text,
	options = EXCLUDED.options,
	correct_answer = EXCLUDED.correct_answer,
	difficulty = EXCLUDED.difficulty,
	category = EXCLUDED.category,
	explanation = EXCLUDED.explanation;`

	batch := &pgx.Batch{}
	for _, q := range qs {
		if err := q.Validate(); err != nil {
			return err
		}

		opts, err := json.Marshal(q.Options)
		if err != nil {
			return fmt.Errorf("marshal options of %s: %w", q.QuestionID, err)
		}

		batch.Queue(stmt, q.QuestionID, q.Text, opts, q.CorrectAnswer, q.Difficulty.String(), q.Category, q.Explanation)
	}

	return b.db.SendBatch(ctx, batch).Close()
}

func scanQuestion(r pgx.CollectableRow) (domain.Question, error) {
	var (
		q          domain.Question
		options    []byte
		difficulty string
	)

	if err := r.Scan(&q.QuestionID, &q.Text, &options, &q.CorrectAnswer, &difficulty, &q.Category, &q.Explanation); err != nil {
		return domain.Question{}, err
	}

	if err := json.Unmarshal(options, &q.Options); err != nil {
		return domain.Question{}, fmt.Errorf("unmarshal options of %s: %w", q.QuestionID, err)
	}

	d, err := domain.ParseDifficulty(difficulty)
	if err != nil {
		return domain.Question{}, err
	}
	q.Difficulty = d

	return q, nil
}
