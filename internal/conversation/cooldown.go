package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CooldownStore tracks the per-number window after a handoff. The window is
// advisory: races merely shorten or lengthen it, they never corrupt
// persisted data.
type CooldownStore interface {
	InCooldown(ctx context.Context, number string) (bool, error)
	Mark(ctx context.Context, number string) error
}

func cooldownKey(number string) string {
	return fmt.Sprintf("handoff_cooldown:%s", number)
}

// RedisCooldownStore keeps cooldown windows in Redis so multiple instances
// share the same view.
type RedisCooldownStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisCooldownStore(client *redis.Client, ttl time.Duration) *RedisCooldownStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	return &RedisCooldownStore{redis: client, ttl: ttl}
}

func (s *RedisCooldownStore) InCooldown(ctx context.Context, number string) (bool, error) {
	n, err := s.redis.Exists(ctx, cooldownKey(number)).Result()
	if err != nil {
		return false, fmt.Errorf("conversation: cooldown lookup: %w", err)
	}
	return n > 0, nil
}

func (s *RedisCooldownStore) Mark(ctx context.Context, number string) error {
	if err := s.redis.Set(ctx, cooldownKey(number), time.Now().Unix(), s.ttl).Err(); err != nil {
		return fmt.Errorf("conversation: cooldown mark: %w", err)
	}
	return nil
}

// MemoryCooldownStore is the single-process variant, used when Redis is not
// configured and by tests that need a deterministic clock.
type MemoryCooldownStore struct {
	mu  sync.Mutex
	m   map[string]time.Time
	ttl time.Duration
	now func() time.Time
}

func NewMemoryCooldownStore(ttl time.Duration, now func() time.Time) *MemoryCooldownStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryCooldownStore{
		m:   make(map[string]time.Time),
		ttl: ttl,
		now: now,
	}
}

func (s *MemoryCooldownStore) InCooldown(_ context.Context, number string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	marked, ok := s.m[number]
	if !ok {
		return false, nil
	}
	return s.now().Sub(marked) < s.ttl, nil
}

func (s *MemoryCooldownStore) Mark(_ context.Context, number string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[number] = s.now()
	return nil
}
