package domain

import "context"

// SwapGateway is the quote/swap execution venue.
type SwapGateway interface {
	Quote(ctx context.Context, req QuoteRequest) (SwapQuote, error)
	SwapTransaction(ctx context.Context, quote SwapQuote, userPublicKey string, opts SwapOptions) (SwapTransaction, error)
}

// PriceSource returns the current price of an asset from one source.
type PriceSource interface {
	Name() string
	Price(ctx context.Context, asset AssetConfig) (PriceQuote, error)
}

// BalanceReader reads balances from the ledger. Token balances are in base
// units and summed over every token account the owner holds for the mint.
type BalanceReader interface {
	SOLBalance(ctx context.Context, owner string) (float64, error)
	TokenBalance(ctx context.Context, owner, mint string) (uint64, error)
}
