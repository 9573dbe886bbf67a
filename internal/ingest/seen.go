package ingest

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joonhok/newsagent/config"
)

const seenKeyPrefix = "newsagent:seen:"

// SeenCache is a best-effort cross-run duplicate filter backed by Redis.
// It only short-circuits work: the database unique constraint on the
// content hash remains the source of truth, so a cold or down cache is
// never a correctness problem.
type SeenCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

// NewSeenCache creates the cache, or returns nil when Redis is disabled.
// All methods are nil-safe.
func NewSeenCache(cfg config.RedisConfig) *SeenCache {
	if !cfg.Enabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})
	ttl := cfg.SeenTTL
	if ttl == 0 {
		ttl = 72 * time.Hour
	}
	return &SeenCache{
		client: client,
		ttl:    ttl,
		logger: log.New(log.Writer(), "[SEEN-CACHE] ", log.LstdFlags),
	}
}

// Seen reports which of the given content hashes were marked recently.
// On any Redis failure it reports nothing as seen.
func (s *SeenCache) Seen(ctx context.Context, hashes []string) map[string]bool {
	if s == nil || len(hashes) == 0 {
		return nil
	}
	keys := make([]string, len(hashes))
	for i, h := range hashes {
		keys[i] = seenKeyPrefix + h
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		s.logger.Printf("seen lookup failed, treating all as new: %v", err)
		return nil
	}
	seen := make(map[string]bool, len(hashes))
	for i, v := range vals {
		if v != nil {
			seen[hashes[i]] = true
		}
	}
	return seen
}

// Mark records content hashes as seen with the configured TTL.
func (s *SeenCache) Mark(ctx context.Context, hashes []string) {
	if s == nil || len(hashes) == 0 {
		return
	}
	pipe := s.client.Pipeline()
	for _, h := range hashes {
		pipe.Set(ctx, seenKeyPrefix+h, 1, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Printf("seen mark failed: %v", err)
	}
}

// Close releases the Redis connection.
func (s *SeenCache) Close() error {
	if s == nil {
		return nil
	}
	return s.client.Close()
}
