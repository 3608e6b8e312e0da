package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/xstockarb/internal/domain"
)

// Reconcile resumes positions left open by a previous run. Each is handled
// in turn under the trade lock: if the wallet still holds the asset the hold
// loop continues with the budget left from the original entry, otherwise the
// position is closed as RECONCILED_EMPTY. It returns the outcomes of the
// positions it resumed. Once it returns, HandleOpportunity accepts work.
func (e *Executor) Reconcile(ctx context.Context) ([]domain.TradeOutcome, error) {
	defer e.markReconciled()
	if e.cfg.Positions == nil {
		return nil, nil
	}
	open, err := e.cfg.Positions.ListOpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("executor: list open positions: %w", err)
	}
	if len(open) == 0 {
		return nil, nil
	}
	e.logger.InfoContext(ctx, "reconciling open positions", slog.Int("count", len(open)))

	var outcomes []domain.TradeOutcome
	for i := range open {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		out, resumed, err := e.reconcileOne(ctx, &open[i])
		if err != nil {
			e.logger.ErrorContext(ctx, "reconcile position failed",
				slog.String("position_id", open[i].ID),
				slog.String("symbol", open[i].Symbol),
				slog.String("error", err.Error()),
			)
			continue
		}
		if resumed {
			outcomes = append(outcomes, out)
		}
	}
	return outcomes, nil
}

func (e *Executor) reconcileOne(ctx context.Context, pos *domain.Position) (domain.TradeOutcome, bool, error) {
	if e.cfg.Pool == nil {
		return domain.TradeOutcome{}, false, domain.ErrNoWallet
	}
	w, ok := e.cfg.Pool.ByAddress(pos.Wallet)
	if !ok {
		return domain.TradeOutcome{}, false, fmt.Errorf("%w: %s not loaded", domain.ErrNoWallet, pos.Wallet)
	}

	release, ok := e.lock.TryAcquire(ctx)
	if !ok {
		return domain.TradeOutcome{}, false, domain.ErrTradeInProgress
	}
	defer release()

	held, err := e.cfg.Balances.TokenBalance(ctx, pos.Wallet, pos.Mint)
	if err != nil {
		return domain.TradeOutcome{}, false, fmt.Errorf("token balance: %w", err)
	}

	if held == 0 {
		closed := e.now()
		pos.State = domain.PositionClosed
		pos.ExitReason = domain.ExitReconciled
		pos.ClosedAt = &closed
		e.savePosition(ctx, pos)
		e.logger.InfoContext(ctx, "position no longer held, closed",
			slog.String("position_id", pos.ID),
			slog.String("symbol", pos.Symbol),
		)
		return domain.TradeOutcome{}, false, nil
	}
	if held < pos.Quantity {
		e.logger.WarnContext(ctx, "wallet holds less than the recorded position",
			slog.String("position_id", pos.ID),
			slog.Uint64("recorded", pos.Quantity),
			slog.Uint64("held", held),
		)
		pos.Quantity = held
	}

	pos.State = domain.PositionHolding
	pos.ExitReason = domain.ExitNone
	e.logger.InfoContext(ctx, "resuming position",
		slog.String("position_id", pos.ID),
		slog.String("symbol", pos.Symbol),
		slog.Duration("held_for", e.now().Sub(pos.EntryTime)),
	)

	e.mu.Lock()
	e.stats.Attempted++
	e.stats.InFlight = true
	e.mu.Unlock()

	out := domain.TradeOutcome{
		TradeID:   pos.TradeID,
		Symbol:    pos.Symbol,
		Direction: domain.DirectionBuyCheapVenue,
		Wallet:    pos.Wallet,
		StartedAt: e.now(),
	}
	res := e.converge(ctx, pos, w)
	out.ExitReason = res.reason
	if res.signature != "" {
		out.Signatures = []string{res.signature}
	}
	if res.err != nil {
		out.Error = res.err.Error()
	} else {
		out.Success = true
		out.RealizedProfit = res.proceeds - pos.Cost
	}
	out.FinishedAt = e.now()
	e.finish(ctx, out, w)
	return out, true, nil
}
