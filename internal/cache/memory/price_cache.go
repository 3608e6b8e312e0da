// Package memory holds the in-process cache used when Redis is disabled.
package memory

import (
	"context"
	"sync"

	"github.com/alanyoungcy/xstockarb/internal/domain"
)

// PriceCache is a map-backed domain.PriceCache.
type PriceCache struct {
	mu    sync.RWMutex
	snaps map[string]domain.PriceSnapshot
}

// NewPriceCache returns an empty cache.
func NewPriceCache() *PriceCache {
	return &PriceCache{snaps: make(map[string]domain.PriceSnapshot)}
}

func (c *PriceCache) SetSnapshot(_ context.Context, snap domain.PriceSnapshot) error {
	c.mu.Lock()
	c.snaps[snap.Symbol] = snap
	c.mu.Unlock()
	return nil
}

// GetSnapshots returns snapshots for symbols, or all of them when symbols is
// empty, ordered by symbol.
func (c *PriceCache) GetSnapshots(_ context.Context, symbols []string) ([]domain.PriceSnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []domain.PriceSnapshot
	if len(symbols) == 0 {
		out = make([]domain.PriceSnapshot, 0, len(c.snaps))
		for _, s := range c.snaps {
			out = append(out, s)
		}
	} else {
		for _, sym := range symbols {
			if s, ok := c.snaps[sym]; ok {
				out = append(out, s)
			}
		}
	}
	domain.SortSnapshots(out)
	return out, nil
}

var _ domain.PriceCache = (*PriceCache)(nil)
