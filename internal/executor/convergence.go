package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/xstockarb/internal/domain"
	"github.com/alanyoungcy/xstockarb/internal/wallet"
)

// ConvergenceConfig controls the hold loop that follows a buy.
type ConvergenceConfig struct {
	MinHold              time.Duration
	MaxHold              time.Duration
	CheckInterval        time.Duration
	TakeProfitPercent    float64
	MinProfitExitPercent float64
	MaxFailedQuotes      int
}

// check is the input to one exit decision.
type check struct {
	elapsed       time.Duration
	quoted        bool // false when the sell quote failed
	profitPercent float64
	failures      int // consecutive failed quotes, including this one
}

// decide maps one check onto an exit transition, or ExitNone to keep
// holding. There is deliberately no stop-loss.
func decide(cfg ConvergenceConfig, c check) domain.ExitReason {
	if cfg.MaxFailedQuotes > 0 && c.failures >= cfg.MaxFailedQuotes {
		return domain.ExitEmergency
	}
	if c.elapsed >= cfg.MaxHold {
		return domain.ExitMaxHold
	}
	if !c.quoted || c.elapsed < cfg.MinHold {
		return domain.ExitNone
	}
	if c.profitPercent >= cfg.TakeProfitPercent {
		return domain.ExitTakeProfit
	}
	if c.profitPercent > cfg.MinProfitExitPercent {
		return domain.ExitMinProfit
	}
	return domain.ExitNone
}

// exitResult is what the hold loop hands back to Execute.
type exitResult struct {
	reason    domain.ExitReason
	signature string
	proceeds  float64 // USDC received for the sale
	err       error
}

// converge holds pos until an exit fires, then sells. The elapsed time is
// measured from pos.EntryTime so a resumed position keeps its original hold
// budget. If ctx ends during the hold the position is left open and
// persisted for reconciliation.
func (e *Executor) converge(ctx context.Context, pos *domain.Position, w *wallet.Wallet) exitResult {
	cc := e.cfg.Convergence
	log := e.logger.With(
		slog.String("position_id", pos.ID),
		slog.String("symbol", pos.Symbol),
		slog.String("wallet", pos.Wallet),
	)

	if wait := cc.MinHold - e.now().Sub(pos.EntryTime); wait > 0 {
		log.InfoContext(ctx, "holding position", slog.Duration("min_hold_remaining", wait))
		if err := e.sleep(ctx, wait); err != nil {
			return e.interrupted(pos, err)
		}
	}

	for {
		elapsed := e.now().Sub(pos.EntryTime)

		c := check{elapsed: elapsed}
		proceeds, err := e.quoteSell(ctx, pos, e.cfg.SlippageBps)
		if err != nil {
			if ctx.Err() != nil {
				return e.interrupted(pos, ctx.Err())
			}
			pos.ConsecutiveFailures++
			log.WarnContext(ctx, "sell quote failed",
				slog.Int("consecutive_failures", pos.ConsecutiveFailures),
				slog.String("error", err.Error()),
			)
		} else {
			pos.ConsecutiveFailures = 0
			c.quoted = true
			c.profitPercent = (proceeds - pos.Cost) / pos.Cost * 100
			pos.LastProfitPercent = c.profitPercent
		}
		c.failures = pos.ConsecutiveFailures
		pos.Checks++
		e.savePosition(ctx, pos)

		log.DebugContext(ctx, "convergence check",
			slog.Int("check", pos.Checks),
			slog.Duration("elapsed", elapsed),
			slog.Bool("quoted", c.quoted),
			slog.Float64("profit_percent", c.profitPercent),
		)

		if reason := decide(cc, c); reason != domain.ExitNone {
			log.InfoContext(ctx, "exit triggered",
				slog.String("reason", string(reason)),
				slog.Float64("profit_percent", c.profitPercent),
				slog.Duration("elapsed", elapsed),
			)
			return e.exit(ctx, pos, w, reason)
		}

		if err := e.sleep(ctx, cc.CheckInterval); err != nil {
			return e.interrupted(pos, err)
		}
	}
}

func (e *Executor) interrupted(pos *domain.Position, cause error) exitResult {
	e.logger.Warn("hold interrupted, position left open for reconciliation",
		slog.String("position_id", pos.ID),
		slog.String("symbol", pos.Symbol),
		slog.String("wallet", pos.Wallet),
		slog.Float64("quantity", pos.QuantityUI()),
	)
	return exitResult{reason: domain.ExitCancelled, err: fmt.Errorf("%w: %w", errInterrupted, cause)}
}

// quoteSell returns the USDC proceeds quoted for selling the full position.
func (e *Executor) quoteSell(ctx context.Context, pos *domain.Position, slippageBps int) (float64, error) {
	q, err := e.cfg.Gateway.Quote(ctx, domain.QuoteRequest{
		InputMint:   pos.Mint,
		OutputMint:  e.cfg.USDCMint,
		Amount:      pos.Quantity,
		SlippageBps: slippageBps,
	})
	if err != nil {
		return 0, err
	}
	return domain.FromBaseUnits(q.OutAmount, domain.USDCDecimals), nil
}

var errInterrupted = errors.New("hold interrupted, position left open")

// emergencySellAttempts bounds the quote/submit attempts of a forced exit.
const emergencySellAttempts = 3

// exit sells the held quantity and closes the position. On failure the
// tokens stay in the wallet and the operator is told.
func (e *Executor) exit(ctx context.Context, pos *domain.Position, w *wallet.Wallet, reason domain.ExitReason) exitResult {
	pos.State = domain.PositionExiting
	pos.ExitReason = reason
	e.savePosition(ctx, pos)

	slippage := e.cfg.SlippageBps
	attempts := 1
	if reason == domain.ExitEmergency {
		slippage = e.cfg.EmergencySlippageBps
		attempts = emergencySellAttempts
		e.publish(ctx, domain.ChannelPosition, domain.EventEmergencyExit, pos)
		e.notify(ctx, domain.EventEmergencyExit, "Emergency exit",
			fmt.Sprintf("%s: %d consecutive quote failures, selling %.6f at %d bps slippage",
				pos.Symbol, pos.ConsecutiveFailures, pos.QuantityUI(), slippage))
	}

	var (
		res exitResult
		err error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		res, err = e.sell(ctx, pos, w, slippage)
		if err == nil || ctx.Err() != nil {
			break
		}
		e.logger.WarnContext(ctx, "sell attempt failed",
			slog.String("position_id", pos.ID),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		if attempt < attempts {
			if serr := e.sleep(ctx, e.cfg.FillRetryWait); serr != nil {
				break
			}
		}
	}
	res.reason = reason

	closed := e.now()
	pos.State = domain.PositionClosed
	pos.ClosedAt = &closed
	e.savePosition(ctx, pos)

	if err != nil {
		res.err = err
		e.logger.ErrorContext(ctx, "sell failed, tokens left in wallet: manual recovery required",
			slog.String("position_id", pos.ID),
			slog.String("symbol", pos.Symbol),
			slog.String("mint", pos.Mint),
			slog.String("wallet", pos.Wallet),
			slog.Float64("quantity", pos.QuantityUI()),
			slog.String("error", err.Error()),
		)
		e.publish(ctx, domain.ChannelPosition, domain.EventStuckPosition, pos)
		e.notify(ctx, domain.EventStuckPosition, "Stuck position",
			fmt.Sprintf("%s: sell failed (%v). %.6f tokens remain in %s", pos.Symbol, err, pos.QuantityUI(), pos.Wallet))
		return res
	}

	e.publish(ctx, domain.ChannelPosition, domain.EventTradeClosed, pos)
	return res
}

// sell runs one quote -> swap -> submit sequence and measures the USDC
// actually received.
func (e *Executor) sell(ctx context.Context, pos *domain.Position, w *wallet.Wallet, slippageBps int) (exitResult, error) {
	q, err := e.cfg.Gateway.Quote(ctx, domain.QuoteRequest{
		InputMint:   pos.Mint,
		OutputMint:  e.cfg.USDCMint,
		Amount:      pos.Quantity,
		SlippageBps: slippageBps,
	})
	if err != nil {
		return exitResult{}, fmt.Errorf("sell quote: %w", err)
	}
	tx, err := e.cfg.Gateway.SwapTransaction(ctx, q, w.Address(), e.cfg.SwapOptions)
	if err != nil {
		return exitResult{}, fmt.Errorf("sell swap: %w", err)
	}

	usdcBefore, berr := e.cfg.Balances.TokenBalance(ctx, w.Address(), e.cfg.USDCMint)
	sig, err := e.cfg.Submitter.SignAndSubmit(ctx, tx.Transaction, w.PrivateKey())
	if err != nil {
		return exitResult{signature: sig}, fmt.Errorf("sell submit: %w", err)
	}

	received := q.OutAmount
	if berr == nil {
		if after, ok := e.settle(ctx, w.Address(), e.cfg.USDCMint, usdcBefore); ok && after > usdcBefore {
			received = after - usdcBefore
		} else {
			e.logger.WarnContext(ctx, "sell proceeds not visible on ledger, using quote",
				slog.String("signature", sig))
		}
	}
	return exitResult{
		signature: sig,
		proceeds:  domain.FromBaseUnits(received, domain.USDCDecimals),
	}, nil
}

// settle re-reads owner's balance of mint until it differs from before. It
// gives up after FillRetries reads.
func (e *Executor) settle(ctx context.Context, owner, mint string, before uint64) (uint64, bool) {
	for i := 0; i < e.cfg.FillRetries; i++ {
		after, err := e.cfg.Balances.TokenBalance(ctx, owner, mint)
		if err == nil && after != before {
			return after, true
		}
		if i == e.cfg.FillRetries-1 {
			break
		}
		if e.sleep(ctx, e.cfg.FillRetryWait) != nil {
			break
		}
	}
	return before, false
}

// sleepCtx waits for d or until ctx ends.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
