package domain

import "encoding/json"

// QuoteRequest asks the gateway to price a swap of Amount base units.
type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      uint64
	SlippageBps int
}

// SwapQuote wraps a gateway quote. The typed fields are the values the bot
// reads; Raw is the verbatim response and is what gets sent back when the
// swap transaction is requested, so unknown fields survive the round trip.
type SwapQuote struct {
	InputMint      string
	OutputMint     string
	InAmount       uint64
	OutAmount      uint64
	MinOutAmount   uint64
	PriceImpactPct float64
	FeeAmount      uint64
	SlippageBps    int
	Raw            json.RawMessage
}

// SwapOptions are the execution hints forwarded with a swap request.
type SwapOptions struct {
	DynamicComputeUnitLimit bool
	PriorityLevel           string
	MaxPriorityLamports     uint64
}

// SwapTransaction is the opaque signable payload returned by the gateway.
type SwapTransaction struct {
	Transaction          string // base64
	LastValidBlockHeight uint64
}
