package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each option's
// display price is stored at "price:{optionID}" with fields "micros" and
// "ts" (Unix nanoseconds). Entries expire after ttl so a dead writer never
// leaves a stale price forever.
type PriceCache struct {
	c   *Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{c: c, ttl: ttl}
}

// SetPrice stores the latest YES price of an option in micro-units.
func (pc *PriceCache) SetPrice(ctx context.Context, optionID string, micros int64, ts time.Time) error {
	key := pc.c.key("price", optionID)
	pipe := pc.c.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"micros": strconv.FormatInt(micros, 10),
		"ts":     strconv.FormatInt(ts.UnixNano(), 10),
	})
	if pc.ttl > 0 {
		pipe.Expire(ctx, key, pc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", optionID, err)
	}
	return nil
}

// GetPrice returns the cached price of an option, or domain.ErrNotFound.
func (pc *PriceCache) GetPrice(ctx context.Context, optionID string) (int64, time.Time, error) {
	vals, err := pc.c.rdb.HGetAll(ctx, pc.c.key("price", optionID)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", optionID, err)
	}
	microsStr, ok := vals["micros"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	micros, err := strconv.ParseInt(microsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse price %s: %w", optionID, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", optionID, err)
	}
	return micros, time.Unix(0, tsNano), nil
}

var _ domain.PriceCache = (*PriceCache)(nil)
