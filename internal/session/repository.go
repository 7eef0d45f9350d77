package session

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/adaptivequiz/internal/domain"
)

// Repository stores one record per session.
type Repository interface {
	Save(ctx context.Context, ss *domain.Session) error
	// Load returns an error wrapping domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) (*domain.Session, error)
}

type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string]*domain.Session),
	}
}

func (r *MemoryRepository) Save(_ context.Context, ss *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[ss.SessionID] = ss.Clone()
	return nil
}

func (r *MemoryRepository) Load(_ context.Context, sessionID string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ss, ok := r.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}

	return ss.Clone(), nil
}

// RedisRepository stores sessions as JSON. Sessions expire ttl after their last save, which is how
// abandoned sessions are reaped.
type RedisRepository struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisRepository(r redis.UniversalClient, prefix string, ttl time.Duration) *RedisRepository {
	return &RedisRepository{
		redis:  r,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r *RedisRepository) Save(ctx context.Context, ss *domain.Session) error {
	b, err := json.Marshal(ss)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", ss.SessionID, err)
	}

	return r.redis.Set(ctx, r.key(ss.SessionID), b, r.ttl).Err()
}

func (r *RedisRepository) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	b, err := r.redis.Get(ctx, r.key(sessionID)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, err
	}

	var ss domain.Session
	if err := json.Unmarshal(b, &ss); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", sessionID, err)
	}

	return &ss, nil
}

func (r *RedisRepository) key(sessionID string) string {
	return fmt.Sprintf("%s:session:%s", r.prefix, sessionID)
}
