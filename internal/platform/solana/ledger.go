// Package solana reads balances from and submits transactions to a Solana
// RPC node.
package solana

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/alanyoungcy/xstockarb/internal/domain"
)

// rpcClient is the subset of *rpc.Client the ledger uses.
type rpcClient interface {
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetTokenAccountsByOwner(ctx context.Context, owner solana.PublicKey, conf *rpc.GetTokenAccountsConfig, opts *rpc.GetTokenAccountsOpts) (*rpc.GetTokenAccountsResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

// Config configures a Ledger.
type Config struct {
	RPCURL         string
	Commitment     string // processed | confirmed | finalized
	ConfirmTimeout time.Duration
	ConfirmPoll    time.Duration
}

// Ledger implements domain.BalanceReader and submits signed swap
// transactions.
type Ledger struct {
	rpc            rpcClient
	commitment     rpc.CommitmentType
	confirmTimeout time.Duration
	confirmPoll    time.Duration
	logger         *slog.Logger
}

// NewLedger dials nothing; the RPC client is HTTP and connects lazily.
func NewLedger(cfg Config, logger *slog.Logger) *Ledger {
	return newLedger(rpc.New(cfg.RPCURL), cfg, logger)
}

func newLedger(client rpcClient, cfg Config, logger *slog.Logger) *Ledger {
	commitment := rpc.CommitmentType(cfg.Commitment)
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 60 * time.Second
	}
	if cfg.ConfirmPoll <= 0 {
		cfg.ConfirmPoll = time.Second
	}
	return &Ledger{
		rpc:            client,
		commitment:     commitment,
		confirmTimeout: cfg.ConfirmTimeout,
		confirmPoll:    cfg.ConfirmPoll,
		logger:         logger.With(slog.String("component", "ledger")),
	}
}

// SOLBalance returns the owner's native balance in SOL.
func (l *Ledger) SOLBalance(ctx context.Context, owner string) (float64, error) {
	pub, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return 0, fmt.Errorf("solana: owner %q: %w", owner, err)
	}
	res, err := l.rpc.GetBalance(ctx, pub, l.commitment)
	if err != nil {
		return 0, fmt.Errorf("solana: get balance: %w", err)
	}
	return float64(res.Value) / float64(solana.LAMPORTS_PER_SOL), nil
}

// tokenAmountOffset is the position of the u64 amount in an SPL token
// account. Token-2022 accounts share the same base layout.
const tokenAmountOffset = 64

// TokenBalance sums the amount held in every token account owner has for
// mint. An owner with no accounts has a zero balance.
func (l *Ledger) TokenBalance(ctx context.Context, owner, mint string) (uint64, error) {
	ownerKey, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return 0, fmt.Errorf("solana: owner %q: %w", owner, err)
	}
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, fmt.Errorf("solana: mint %q: %w", mint, err)
	}

	res, err := l.rpc.GetTokenAccountsByOwner(ctx, ownerKey,
		&rpc.GetTokenAccountsConfig{Mint: &mintKey},
		&rpc.GetTokenAccountsOpts{Commitment: l.commitment, Encoding: solana.EncodingBase64},
	)
	if err != nil {
		return 0, fmt.Errorf("solana: token accounts: %w", err)
	}

	var total uint64
	for _, acct := range res.Value {
		if acct == nil || acct.Account.Data == nil {
			continue
		}
		amount, err := decodeTokenAmount(acct.Account.Data.GetBinary())
		if err != nil {
			return 0, fmt.Errorf("solana: token account %s: %w", acct.Pubkey, err)
		}
		total += amount
	}
	return total, nil
}

func decodeTokenAmount(data []byte) (uint64, error) {
	if len(data) < tokenAmountOffset+8 {
		return 0, fmt.Errorf("account data too short (%d bytes)", len(data))
	}
	return bin.NewBinDecoder(data[tokenAmountOffset : tokenAmountOffset+8]).ReadUint64(bin.LE)
}

// SignAndSubmit decodes a base64 serialized transaction, signs it with key,
// sends it and waits for confirmation. The signature is returned even when
// confirmation fails so callers can log it.
func (l *Ledger) SignAndSubmit(ctx context.Context, txBase64 string, key solana.PrivateKey) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		return "", fmt.Errorf("solana: decode transaction: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return "", fmt.Errorf("solana: parse transaction: %w", err)
	}
	if err := signInPlace(tx, key); err != nil {
		return "", fmt.Errorf("solana: %w: %v", domain.ErrSigningFailed, err)
	}

	maxRetries := uint(3)
	sig, err := l.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: l.commitment,
		MaxRetries:          &maxRetries,
	})
	if err != nil {
		return "", fmt.Errorf("solana: send transaction: %w", err)
	}
	l.logger.InfoContext(ctx, "transaction sent", slog.String("signature", sig.String()))

	if err := l.confirm(ctx, sig); err != nil {
		return sig.String(), err
	}
	return sig.String(), nil
}

// signInPlace fills key's slot in the transaction's signature list. Gateway
// transactions arrive with zeroed placeholder signatures, one per required
// signer.
func signInPlace(tx *solana.Transaction, key solana.PrivateKey) error {
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	required := int(tx.Message.Header.NumRequiredSignatures)
	if required > len(tx.Message.AccountKeys) {
		return errors.New("malformed message header")
	}

	pub := key.PublicKey()
	idx := -1
	for i := 0; i < required; i++ {
		if tx.Message.AccountKeys[i].Equals(pub) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%s is not a required signer", pub)
	}

	sig, err := key.Sign(msg)
	if err != nil {
		return err
	}
	for len(tx.Signatures) < required {
		tx.Signatures = append(tx.Signatures, solana.Signature{})
	}
	tx.Signatures[idx] = sig
	return nil
}

// confirm polls the signature status until it reaches the configured
// commitment, fails on chain, or the confirm timeout passes.
func (l *Ledger) confirm(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, l.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(l.confirmPoll)
	defer ticker.Stop()

	for {
		res, err := l.rpc.GetSignatureStatuses(ctx, true, sig)
		switch {
		case err != nil:
			l.logger.DebugContext(ctx, "signature status failed",
				slog.String("signature", sig.String()),
				slog.String("error", err.Error()),
			)
		case len(res.Value) > 0 && res.Value[0] != nil:
			st := res.Value[0]
			if st.Err != nil {
				return fmt.Errorf("solana: %s: %w: %v", sig, domain.ErrTxFailed, st.Err)
			}
			if reached(st.ConfirmationStatus, l.commitment) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("solana: %s: %w", sig, domain.ErrConfirmTimeout)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func reached(status rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	rank := func(s string) int {
		switch s {
		case "processed":
			return 1
		case "confirmed":
			return 2
		case "finalized":
			return 3
		}
		return 0
	}
	got := rank(string(status))
	return got > 0 && got >= rank(string(want))
}

var _ domain.BalanceReader = (*Ledger)(nil)
