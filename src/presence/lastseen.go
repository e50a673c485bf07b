package presence

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vinneth/chathub/config"
)

// RedisLastSeen keeps per-user last-seen timestamps in Redis so the
// CRUD side of the system can serve them without reaching into the hub.
type RedisLastSeen struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
}

func NewRedisLastSeen(cfg config.RedisConfig, logger zerolog.Logger) *RedisLastSeen {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisLastSeen{
		client: client,
		prefix: cfg.Prefix + "last_seen:",
		logger: logger.With().Str("component", "lastseen").Logger(),
	}
}

// Ping verifies the Redis connection.
func (s *RedisLastSeen) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisLastSeen) UpdateLastSeen(ctx context.Context, userID string, at time.Time) error {
	return s.client.Set(ctx, s.prefix+userID, at.UTC().Format(time.RFC3339Nano), 0).Err()
}

// LastSeen returns the recorded timestamp, or the zero time when the
// user has never been seen.
func (s *RedisLastSeen) LastSeen(ctx context.Context, userID string) (time.Time, error) {
	val, err := s.client.Get(ctx, s.prefix+userID).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, val)
}

func (s *RedisLastSeen) Close() error {
	return s.client.Close()
}

// MemoryLastSeen is the in-process fallback used when Redis is
// unreachable at startup; last-seen data then lives only as long as
// the process.
type MemoryLastSeen struct {
	mu   sync.RWMutex
	seen map[string]time.Time
}

func NewMemoryLastSeen() *MemoryLastSeen {
	return &MemoryLastSeen{seen: make(map[string]time.Time)}
}

func (s *MemoryLastSeen) UpdateLastSeen(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	s.seen[userID] = at.UTC()
	s.mu.Unlock()
	return nil
}

func (s *MemoryLastSeen) LastSeen(_ context.Context, userID string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seen[userID], nil
}
