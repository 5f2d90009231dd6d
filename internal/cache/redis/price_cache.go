package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/seafarergames/tradewinds/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each item's
// price is stored at "item:price:{itemID}" with fields "price" and "ts"
// (Unix nanosecond timestamp). The market ledger remains the source of
// truth; the cache only serves the read API.
type PriceCache struct {
	rdb *redis.Client
}

var _ domain.PriceCache = (*PriceCache)(nil)

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(itemID string) string {
	return "item:price:" + itemID
}

// SetPrice stores the latest price and timestamp for an item.
func (pc *PriceCache) SetPrice(ctx context.Context, itemID string, price float64, ts time.Time) error {
	fields := map[string]interface{}{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, priceKey(itemID), fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", itemID, err)
	}
	return nil
}

// GetPrice retrieves the latest price and timestamp for an item. It returns
// domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) GetPrice(ctx context.Context, itemID string) (float64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(itemID)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", itemID, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	priceStr, ok := vals["price"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse price %s: %w", itemID, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", itemID, err)
	}

	return price, time.Unix(0, tsNano), nil
}

// GetPrices retrieves prices for multiple items using a pipeline. Items with
// no cached price are omitted from the result map.
func (pc *PriceCache) GetPrices(ctx context.Context, itemIDs []string) (map[string]float64, error) {
	if len(itemIDs) == 0 {
		return map[string]float64{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(itemIDs))
	for _, id := range itemIDs {
		cmds[id] = pipe.HGetAll(ctx, priceKey(id))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	result := make(map[string]float64, len(itemIDs))
	for id, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		priceStr, ok := vals["price"]
		if !ok {
			continue
		}
		price, err := strconv.ParseFloat(priceStr, 64)
		if err != nil {
			continue
		}
		result[id] = price
	}
	return result, nil
}
