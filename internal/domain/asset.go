package domain

import "time"

// AssetConfig describes one monitored tokenized stock. Immutable after startup.
type AssetConfig struct {
	Symbol   string // e.g. "TSLAx"
	Mint     string // SPL mint address of the tradable token
	FeedID   string // reference feed identifier
	Decimals int
}

// PriceQuote is a single price observation from one source. It is produced
// per poll and never persisted on its own.
type PriceQuote struct {
	Source     string
	Price      float64
	Timestamp  time.Time
	Confidence *float64
}
