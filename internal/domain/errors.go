package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrSigningFailed = errors.New("signing failed")
	ErrLockHeld      = errors.New("lock already held")

	// Trade preconditions. Each is reported as a failed TradeOutcome before
	// any funds move.
	ErrTradeInProgress      = errors.New("trade already in progress")
	ErrNoWallet             = errors.New("no wallet available")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrBelowThreshold       = errors.New("opportunity below threshold")
	ErrUnsupportedDirection = errors.New("unsupported trade direction")

	// Venue and ledger failures.
	ErrNoQuote           = errors.New("no quote available")
	ErrNoRoute           = errors.New("no swap transaction available")
	ErrTxFailed          = errors.New("transaction failed on chain")
	ErrConfirmTimeout    = errors.New("transaction confirmation timed out")
	ErrStalePrice        = errors.New("reference price is stale")
	ErrInvalidCredential = errors.New("invalid wallet credential")
)
