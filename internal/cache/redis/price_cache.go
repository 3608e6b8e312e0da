package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/xstockarb/internal/domain"
)

// PriceCache implements domain.PriceCache with a single Redis hash whose
// fields are asset symbols and whose values are JSON PriceSnapshots.
type PriceCache struct {
	rdb *redis.Client
	key string
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), key: c.Key("prices")}
}

// SetSnapshot stores snap under its symbol, replacing the previous one.
func (pc *PriceCache) SetSnapshot(ctx context.Context, snap domain.PriceSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: encode snapshot %s: %w", snap.Symbol, err)
	}
	if err := pc.rdb.HSet(ctx, pc.key, snap.Symbol, data).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", snap.Symbol, err)
	}
	return nil
}

// GetSnapshots returns the cached snapshots for symbols, or every cached
// snapshot when symbols is empty. Symbols without a snapshot are omitted.
func (pc *PriceCache) GetSnapshots(ctx context.Context, symbols []string) ([]domain.PriceSnapshot, error) {
	var raw []string
	if len(symbols) == 0 {
		all, err := pc.rdb.HGetAll(ctx, pc.key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("redis: get snapshots: %w", err)
		}
		for _, v := range all {
			raw = append(raw, v)
		}
	} else {
		vals, err := pc.rdb.HMGet(ctx, pc.key, symbols...).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("redis: get snapshots: %w", err)
		}
		for _, v := range vals {
			if s, ok := v.(string); ok {
				raw = append(raw, s)
			}
		}
	}

	out := make([]domain.PriceSnapshot, 0, len(raw))
	for _, r := range raw {
		var snap domain.PriceSnapshot
		if err := json.Unmarshal([]byte(r), &snap); err != nil {
			continue
		}
		out = append(out, snap)
	}
	domain.SortSnapshots(out)
	return out, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
