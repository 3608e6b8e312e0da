package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/xstockarb/internal/crypto"
	"github.com/alanyoungcy/xstockarb/internal/domain"
)

// refreshConcurrency bounds parallel balance queries against the RPC node.
const refreshConcurrency = 4

// PoolConfig wires a Pool.
type PoolConfig struct {
	Strategy      string
	USDCMint      string
	MinSOLReserve float64
	Balances      domain.BalanceReader
	Registry      *Registry // defaults to NewRegistry()
	Logger        *slog.Logger
}

// Pool holds the funding identities. All mutation goes through its methods;
// Summaries may be called concurrently with an active trade and returns the
// balances as of the last refresh.
type Pool struct {
	selector      Selector
	balances      domain.BalanceReader
	usdcMint      string
	minSOLReserve float64
	logger        *slog.Logger
	now           func() time.Time

	mu      sync.Mutex
	wallets []*Wallet
	byAddr  map[string]*Wallet
}

// NewPool creates an empty pool using the named selection strategy.
func NewPool(cfg PoolConfig) (*Pool, error) {
	reg := cfg.Registry
	if reg == nil {
		reg = NewRegistry()
	}
	sel, err := reg.New(cfg.Strategy)
	if err != nil {
		return nil, fmt.Errorf("wallet: %w", err)
	}
	return &Pool{
		selector:      sel,
		balances:      cfg.Balances,
		usdcMint:      cfg.USDCMint,
		minSOLReserve: cfg.MinSOLReserve,
		logger:        cfg.Logger.With(slog.String("component", "wallet_pool")),
		now:           time.Now,
		byAddr:        make(map[string]*Wallet),
	}, nil
}

// Add registers a signing key. Adding the same key twice is an error.
func (p *Pool) Add(key solana.PrivateKey) (*Wallet, error) {
	w := newWallet(key)
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, dup := p.byAddr[w.address]; dup {
		return nil, fmt.Errorf("wallet: duplicate identity %s", w.address)
	}
	p.wallets = append(p.wallets, w)
	p.byAddr[w.address] = w
	return w, nil
}

// LoadCredentials decodes every configured secret and key file and adds the
// result. A credential that fails to decode is logged and skipped; the rest
// of the pool is unaffected. It returns the number of identities added.
func (p *Pool) LoadCredentials(secrets, keyFiles []string, password string) int {
	added := 0
	for i, s := range secrets {
		key, err := crypto.ParsePrivateKey(s)
		if err != nil {
			p.logger.Error("skipping wallet credential",
				slog.Int("index", i),
				slog.String("error", errors.Join(domain.ErrInvalidCredential, err).Error()),
			)
			continue
		}
		if p.addLogged(key) {
			added++
		}
	}
	for _, path := range keyFiles {
		key, err := crypto.LoadKeyFile(path, password)
		if err != nil {
			p.logger.Error("skipping wallet key file",
				slog.String("path", path),
				slog.String("error", errors.Join(domain.ErrInvalidCredential, err).Error()),
			)
			continue
		}
		if p.addLogged(key) {
			added++
		}
	}
	return added
}

func (p *Pool) addLogged(key solana.PrivateKey) bool {
	w, err := p.Add(key)
	if err != nil {
		p.logger.Warn("skipping wallet", slog.String("error", err.Error()))
		return false
	}
	p.logger.Info("wallet loaded", slog.String("address", w.Address()))
	return true
}

// Len returns the number of identities.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.wallets)
}

// Strategy returns the active selection strategy name.
func (p *Pool) Strategy() string { return p.selector.Name() }

// ByAddress looks up an identity by its public key.
func (p *Pool) ByAddress(addr string) (*Wallet, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.byAddr[addr]
	return w, ok
}

// SelectWallet refreshes every identity's balances and then picks one with
// the configured strategy. It returns false only when the pool is empty.
func (p *Pool) SelectWallet(ctx context.Context) (*Wallet, bool) {
	p.RefreshAll(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.wallets) == 0 {
		return nil, false
	}
	snaps := make([]domain.WalletSummary, len(p.wallets))
	for i, w := range p.wallets {
		snaps[i] = w.summary()
	}
	w := p.wallets[p.selector.Select(snaps)]
	w.lastUsed = p.now()
	return w, true
}

// HasInsufficientBalance refreshes w and reports whether it cannot fund a
// trade of required USDC: either the USDC balance is short or SOL is below
// the fee reserve. A failed refresh judges on the last known balances.
func (p *Pool) HasInsufficientBalance(ctx context.Context, w *Wallet, required float64) bool {
	if err := p.Refresh(ctx, w); err != nil {
		p.logger.WarnContext(ctx, "balance refresh failed, using cached balances",
			slog.String("address", w.address),
			slog.String("error", err.Error()),
		)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return w.usdcBalance < required || w.solBalance < p.minSOLReserve
}

// RecordTrade folds one trade result into w's counters.
func (p *Pool) RecordTrade(w *Wallet, success bool, profit float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w.totalTrades++
	if success {
		w.successfulTrades++
	} else {
		w.failedTrades++
	}
	w.totalProfit += profit
}

// Refresh queries the ledger for w's SOL balance and the sum of all its USDC
// token accounts. On error the cached balances are kept.
func (p *Pool) Refresh(ctx context.Context, w *Wallet) error {
	if p.balances == nil {
		return nil
	}
	sol, err := p.balances.SOLBalance(ctx, w.address)
	if err != nil {
		return fmt.Errorf("wallet: sol balance %s: %w", w.address, err)
	}
	units, err := p.balances.TokenBalance(ctx, w.address, p.usdcMint)
	if err != nil {
		return fmt.Errorf("wallet: usdc balance %s: %w", w.address, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	w.solBalance = sol
	w.usdcBalance = domain.FromBaseUnits(units, domain.USDCDecimals)
	w.balanceUpdatedAt = p.now()
	return nil
}

// RefreshAll refreshes every identity, logging failures.
func (p *Pool) RefreshAll(ctx context.Context) {
	p.mu.Lock()
	wallets := append([]*Wallet(nil), p.wallets...)
	p.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(refreshConcurrency)
	for _, w := range wallets {
		g.Go(func() error {
			if err := p.Refresh(ctx, w); err != nil {
				p.logger.WarnContext(ctx, "balance refresh failed",
					slog.String("address", w.address),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Summaries returns snapshots of every identity in insertion order.
func (p *Pool) Summaries() []domain.WalletSummary {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.WalletSummary, len(p.wallets))
	for i, w := range p.wallets {
		out[i] = w.summary()
	}
	return out
}

// Summary returns the snapshot of one identity.
func (p *Pool) Summary(w *Wallet) domain.WalletSummary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return w.summary()
}
