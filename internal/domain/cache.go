package domain

import (
	"context"
	"sort"
	"time"
)

// PriceSnapshot is the latest venue/reference pair seen for one asset.
type PriceSnapshot struct {
	Symbol         string    `json:"symbol"`
	VenuePrice     float64   `json:"venuePrice"`
	ReferencePrice float64   `json:"referencePrice"`
	SpreadPercent  float64   `json:"spreadPercent"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// SortSnapshots orders snaps by symbol.
func SortSnapshots(snaps []PriceSnapshot) {
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Symbol < snaps[j].Symbol })
}

// PriceCache provides fast access to the latest prices.
type PriceCache interface {
	SetSnapshot(ctx context.Context, snap PriceSnapshot) error
	GetSnapshots(ctx context.Context, symbols []string) ([]PriceSnapshot, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
