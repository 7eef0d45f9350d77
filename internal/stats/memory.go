package stats

import (
	"context"
	"slices"
	"sync"

	"github.com/victornm/adaptivequiz/internal/domain"
)

type MemoryStore struct {
	capacity int

	mu       sync.RWMutex
	stats    map[string]domain.UserStats
	history  map[string][]domain.UserScore
	recorded map[string]struct{}
}

// NewMemoryStore keeps at most capacity recent scores per user.
func NewMemoryStore(capacity int) *MemoryStore {
	return &MemoryStore{
		capacity: capacity,
		stats:    make(map[string]domain.UserStats),
		history:  make(map[string][]domain.UserScore),
		recorded: make(map[string]struct{}),
	}
}

func (s *MemoryStore) Load(_ context.Context, userID string) (domain.UserStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stats[userID]
	if !ok {
		return domain.UserStats{UserID: userID}, nil
	}

	return clone(st), nil
}

func (s *MemoryStore) Record(_ context.Context, sc domain.UserScore) (domain.UserStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.recorded[sc.SessionID]; ok {
		return domain.UserStats{}, ErrAlreadyRecorded
	}

	st, ok := s.stats[sc.UserID]
	if !ok {
		st = domain.UserStats{UserID: sc.UserID}
	}
	st.Username = sc.Username
	st.Record(sc.Percentage, sc.CompletedAt, s.capacity)

	s.stats[sc.UserID] = st
	s.history[sc.UserID] = append(s.history[sc.UserID], sc)
	s.recorded[sc.SessionID] = struct{}{}

	return clone(st), nil
}

func (s *MemoryStore) Snapshot(_ context.Context) ([]domain.UserStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UserStats, 0, len(s.stats))
	for _, st := range s.stats {
		if st.TotalQuizzes > 0 {
			out = append(out, clone(st))
		}
	}

	return out, nil
}

func (s *MemoryStore) History(_ context.Context, userID string, limit int) ([]domain.UserScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := s.history[userID]
	out := make([]domain.UserScore, 0, min(len(h), max(limit, 0)))
	for i := len(h) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h[i])
	}

	return out, nil
}

func clone(st domain.UserStats) domain.UserStats {
	st.RecentScores = slices.Clone(st.RecentScores)
	return st
}
