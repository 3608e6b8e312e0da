package domain

import "time"

// PositionState is the convergence-monitoring state of a held position.
type PositionState string

const (
	PositionHolding PositionState = "HOLDING"
	PositionExiting PositionState = "EXITING"
	PositionClosed  PositionState = "CLOSED"
)

// ExitReason records which transition ended the hold.
type ExitReason string

const (
	ExitNone       ExitReason = ""
	ExitTakeProfit ExitReason = "EXIT_TAKE_PROFIT"
	ExitMaxHold    ExitReason = "EXIT_MAX_HOLD"
	ExitMinProfit  ExitReason = "EXIT_MIN_PROFIT"
	ExitEmergency  ExitReason = "EXIT_EMERGENCY"
	ExitCancelled  ExitReason = "CANCELLED"
	ExitReconciled ExitReason = "RECONCILED_EMPTY"
)

// Position is the state of tokens bought and not yet sold. Quantity is held
// in token base units; Cost is the USDC actually paid.
type Position struct {
	ID                  string        `json:"id"`
	TradeID             string        `json:"tradeId"`
	Symbol              string        `json:"symbol"`
	Mint                string        `json:"mint"`
	Decimals            int           `json:"decimals"`
	Wallet              string        `json:"wallet"`
	EntryPrice          float64       `json:"entryPrice"`
	EntryTime           time.Time     `json:"entryTime"`
	Quantity            uint64        `json:"quantity"`
	Cost                float64       `json:"cost"`
	Checks              int           `json:"checks"`
	ConsecutiveFailures int           `json:"consecutiveFailures"`
	State               PositionState `json:"state"`
	ExitReason          ExitReason    `json:"exitReason,omitempty"`
	LastProfitPercent   float64       `json:"lastProfitPercent"`
	UpdatedAt           time.Time     `json:"updatedAt"`
	ClosedAt            *time.Time    `json:"closedAt,omitempty"`
}

// Open reports whether the position still holds tokens under monitoring.
func (p Position) Open() bool {
	return p.State != PositionClosed
}

// QuantityUI returns the held quantity in whole tokens.
func (p Position) QuantityUI() float64 {
	return FromBaseUnits(p.Quantity, p.Decimals)
}
