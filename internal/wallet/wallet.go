// Package wallet manages the pool of funding identities: balances, trade
// counters, and the strategy that picks one identity per trade.
package wallet

import (
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/xstockarb/internal/domain"
)

// Wallet is one funding identity. Mutable fields are guarded by the owning
// Pool; callers outside the package only read the immutable key and address.
type Wallet struct {
	key     solana.PrivateKey
	address string

	solBalance       float64
	usdcBalance      float64
	balanceUpdatedAt time.Time
	lastUsed         time.Time
	totalTrades      int64
	successfulTrades int64
	failedTrades     int64
	totalProfit      float64
}

func newWallet(key solana.PrivateKey) *Wallet {
	return &Wallet{key: key, address: key.PublicKey().String()}
}

// Address returns the base58 public key.
func (w *Wallet) Address() string { return w.address }

// PublicKey returns the wallet's public key.
func (w *Wallet) PublicKey() solana.PublicKey { return w.key.PublicKey() }

// PrivateKey returns the signing key.
func (w *Wallet) PrivateKey() solana.PrivateKey { return w.key }

// summary must be called with the pool lock held.
func (w *Wallet) summary() domain.WalletSummary {
	return domain.WalletSummary{
		Address:          w.address,
		SOLBalance:       w.solBalance,
		USDCBalance:      w.usdcBalance,
		LastUsed:         w.lastUsed,
		BalanceUpdatedAt: w.balanceUpdatedAt,
		TotalTrades:      w.totalTrades,
		SuccessfulTrades: w.successfulTrades,
		FailedTrades:     w.failedTrades,
		TotalProfit:      w.totalProfit,
	}
}
