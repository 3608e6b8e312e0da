package domain

import "time"

// WalletStrategy names a wallet selection policy.
type WalletStrategy string

const (
	WalletRoundRobin     WalletStrategy = "round-robin"
	WalletHighestBalance WalletStrategy = "highest-balance"
	WalletLeastUsed      WalletStrategy = "least-used"
	WalletRandom         WalletStrategy = "random"
)

// WalletSummary is a read-only snapshot of one funding identity. It never
// carries the signing credential.
type WalletSummary struct {
	Address          string    `json:"address"`
	SOLBalance       float64   `json:"solBalance"`
	USDCBalance      float64   `json:"usdcBalance"`
	LastUsed         time.Time `json:"lastUsed"`
	BalanceUpdatedAt time.Time `json:"balanceUpdatedAt"`
	TotalTrades      int64     `json:"totalTrades"`
	SuccessfulTrades int64     `json:"successfulTrades"`
	FailedTrades     int64     `json:"failedTrades"`
	TotalProfit      float64   `json:"totalProfit"`
}
