package jupiter

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/xstockarb/internal/domain"
)

// PriceSource derives the venue price of an asset from a USDC->asset quote
// for the configured trade notional, so the price reflects the depth the bot
// would actually trade against.
type PriceSource struct {
	gateway     domain.SwapGateway
	usdcMint    string
	notional    float64
	slippageBps int
	now         func() time.Time
}

// NewPriceSource creates a venue price source quoting notional USDC.
func NewPriceSource(gateway domain.SwapGateway, usdcMint string, notional float64, slippageBps int) *PriceSource {
	return &PriceSource{
		gateway:     gateway,
		usdcMint:    usdcMint,
		notional:    notional,
		slippageBps: slippageBps,
		now:         time.Now,
	}
}

func (s *PriceSource) Name() string { return "jupiter" }

// Price returns USDC paid per whole token.
func (s *PriceSource) Price(ctx context.Context, asset domain.AssetConfig) (domain.PriceQuote, error) {
	q, err := s.gateway.Quote(ctx, domain.QuoteRequest{
		InputMint:   s.usdcMint,
		OutputMint:  asset.Mint,
		Amount:      domain.ToBaseUnits(s.notional, domain.USDCDecimals),
		SlippageBps: s.slippageBps,
	})
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("jupiter: price %s: %w", asset.Symbol, err)
	}

	tokens := domain.FromBaseUnits(q.OutAmount, asset.Decimals)
	if tokens <= 0 {
		return domain.PriceQuote{}, fmt.Errorf("jupiter: price %s: %w", asset.Symbol, domain.ErrNoQuote)
	}
	paid := domain.FromBaseUnits(q.InAmount, domain.USDCDecimals)

	return domain.PriceQuote{
		Source:    s.Name(),
		Price:     paid / tokens,
		Timestamp: s.now(),
	}, nil
}

var _ domain.PriceSource = (*PriceSource)(nil)
