package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest item prices for the read
// API, without touching the ledger.
type PriceCache interface {
	SetPrice(ctx context.Context, itemID string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, itemID string) (float64, time.Time, error)
	GetPrices(ctx context.Context, itemIDs []string) (map[string]float64, error)
}

// RateLimiter provides distributed rate limiting for the trade endpoints.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking, used to fence the revenue cycle
// when multiple instances share one persistence backend.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
