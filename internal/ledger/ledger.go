// Package ledger owns the per-owner wallet balance and guarantees it never
// goes negative under concurrent mutation.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/finance-tracker/internal/database"
	"gitlab.com/yelinaung/finance-tracker/internal/logger"
	"gitlab.com/yelinaung/finance-tracker/internal/models"
	"gitlab.com/yelinaung/finance-tracker/internal/repository"
)

var (
	// ErrInvalidAmount is returned when a credit or debit amount is not positive.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInsufficientFunds is returned when a debit exceeds the wallet balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNotFound is returned when a referenced wallet or row does not exist.
	ErrNotFound = errors.New("not found")
)

// Ledger exposes atomic credit/debit primitives over a single wallet store.
// Construct it over a pgx.Tx to make its operations part of a larger
// transaction (repositories accept either, see database.PGXDB).
type Ledger struct {
	wallets *repository.WalletRepository
}

// New creates a Ledger over db.
func New(db database.PGXDB) *Ledger {
	return &Ledger{wallets: repository.NewWalletRepository(db)}
}

// GetOrCreate returns the owner's wallet, creating a zero-balance one on
// first access. Idempotent.
func (l *Ledger) GetOrCreate(ctx context.Context, ownerID int64) (*models.Wallet, error) {
	return l.wallets.GetOrCreate(ctx, ownerID)
}

// Balance returns the owner's current balance.
func (l *Ledger) Balance(ctx context.Context, ownerID int64) (decimal.Decimal, error) {
	wallet, err := l.wallets.Get(ctx, ownerID)
	if err != nil {
		return decimal.Zero, ErrNotFound
	}
	return wallet.Balance, nil
}

// Credit adds amount to the wallet and returns the new balance.
// The wallet is created on first use; credits have no upper bound.
func (l *Ledger) Credit(ctx context.Context, ownerID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}

	if _, err := l.wallets.GetOrCreate(ctx, ownerID); err != nil {
		return decimal.Zero, err
	}

	balance, err := l.wallets.Credit(ctx, ownerID, amount)
	if err != nil {
		return decimal.Zero, err
	}

	logger.Log.Debug().
		Str("owner_hash", logger.HashOwnerID(ownerID)).
		Str("amount", amount.String()).
		Str("balance", balance.String()).
		Msg("Wallet credited")

	return balance, nil
}

// Debit subtracts amount from the wallet and returns the new balance.
// Fails with ErrInsufficientFunds when the balance cannot cover the amount;
// the check and the write are a single atomic statement.
func (l *Ledger) Debit(ctx context.Context, ownerID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}

	if _, err := l.wallets.GetOrCreate(ctx, ownerID); err != nil {
		return decimal.Zero, err
	}

	balance, err := l.wallets.Debit(ctx, ownerID, amount)
	if errors.Is(err, repository.ErrInsufficientBalance) {
		return decimal.Zero, fmt.Errorf("debit of %s: %w", amount.String(), ErrInsufficientFunds)
	}
	if err != nil {
		return decimal.Zero, err
	}

	logger.Log.Debug().
		Str("owner_hash", logger.HashOwnerID(ownerID)).
		Str("amount", amount.String()).
		Str("balance", balance.String()).
		Msg("Wallet debited")

	return balance, nil
}

// Lock serializes all mutations against the owner's wallet for the duration
// of the surrounding transaction and returns the locked balance.
func (l *Ledger) Lock(ctx context.Context, ownerID int64) (decimal.Decimal, error) {
	if _, err := l.wallets.GetOrCreate(ctx, ownerID); err != nil {
		return decimal.Zero, err
	}
	return l.wallets.LockBalance(ctx, ownerID)
}
