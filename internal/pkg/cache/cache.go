package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "tasknotes:summary:"

// SummaryCache stores generated summaries keyed by the hash of the source text.
// A nil cache, or one built with ttl <= 0, never hits and never stores.
type SummaryCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSummaryCache(rdb *redis.Client, ttl time.Duration) *SummaryCache {
	return &SummaryCache{
		rdb: rdb,
		ttl: ttl,
	}
}

func (c *SummaryCache) enabled() bool {
	return c != nil && c.rdb != nil && c.ttl > 0
}

// Get returns the cached summary for content and whether it was found.
func (c *SummaryCache) Get(ctx context.Context, content string) (string, bool, error) {
	if !c.enabled() || content == "" {
		return "", false, nil
	}
	val, err := c.rdb.Get(ctx, keyPrefix+hashContent(content)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("summary cache get: %w", err)
	}
	return val, true, nil
}

func (c *SummaryCache) Set(ctx context.Context, content, summary string) error {
	if !c.enabled() || content == "" || summary == "" {
		return nil
	}
	if err := c.rdb.Set(ctx, keyPrefix+hashContent(content), summary, c.ttl).Err(); err != nil {
		return fmt.Errorf("summary cache set: %w", err)
	}
	return nil
}

func hashContent(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
