package question

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/victornm/adaptivequiz/internal/domain"
)

// MemoryBank keeps all questions in memory, indexed by difficulty.
type MemoryBank struct {
	mu     sync.RWMutex
	ids    map[string]struct{}
	byTier map[domain.Difficulty][]domain.Question
	intn   func(n int) int
}

func NewMemoryBank(qs ...domain.Question) (*MemoryBank, error) {
	b := &MemoryBank{
		ids:    make(map[string]struct{}),
		byTier: make(map[domain.Difficulty][]domain.Question),
		intn:   rand.IntN,
	}

	if err := b.Add(qs...); err != nil {
		return nil, err
	}

	return b, nil
}

// Add publishes more questions. Question IDs must be unique across the bank.
func (b *MemoryBank) Add(qs ...domain.Question) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, q := range qs {
		if err := q.Validate(); err != nil {
			return err
		}
		if _, ok := b.ids[q.QuestionID]; ok {
			return fmt.Errorf("%w: duplicate question %s", domain.ErrInvalidArgument, q.QuestionID)
		}

		b.ids[q.QuestionID] = struct{}{}
		b.byTier[q.Difficulty] = append(b.byTier[q.Difficulty], q)
	}

	return nil
}

func (b *MemoryBank) FetchOne(_ context.Context, req FetchRequest) (domain.Question, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var eligible []domain.Question
	for _, q := range b.byTier[req.Difficulty] {
		if req.Category != "" && q.Category != req.Category {
			continue
		}
		if slices.Contains(req.ExcludeIDs, q.QuestionID) {
			continue
		}
		eligible = append(eligible, q)
	}

	if len(eligible) == 0 {
		return domain.Question{}, fmt.Errorf("%w: difficulty=%s category=%q", domain.ErrNoQuestionsAvailable, req.Difficulty, req.Category)
	}

	q := eligible[b.intn(len(eligible))]
	q.Options = slices.Clone(q.Options)
	return q, nil
}

func (b *MemoryBank) Count(_ context.Context, category string) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if category == "" {
		return len(b.ids), nil
	}

	n := 0
	for _, qs := range b.byTier {
		for _, q := range qs {
			if q.Category == category {
				n++
			}
		}
	}

	return n, nil
}

func (b *MemoryBank) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.ids)
}
