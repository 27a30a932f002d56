package domain

import (
	"context"
	"time"
)

// PriceCache holds the latest displayed YES price per option, in
// micro-units.
type PriceCache interface {
	SetPrice(ctx context.Context, optionID string, micros int64, ts time.Time) error
	GetPrice(ctx context.Context, optionID string) (int64, time.Time, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus publishes domain events on pub/sub channels and a durable
// stream, and reads the stream back.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
