// Package repository contains the pgx-backed persistence layer.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/finance-tracker/internal/database"
	"gitlab.com/yelinaung/finance-tracker/internal/models"
)

// ErrInsufficientBalance is returned by Debit when the wallet balance
// cannot cover the amount.
var ErrInsufficientBalance = errors.New("insufficient wallet balance")

// WalletRepository handles wallet database operations.
type WalletRepository struct {
	db database.PGXDB
}

// NewWalletRepository creates a new WalletRepository.
func NewWalletRepository(db database.PGXDB) *WalletRepository {
	return &WalletRepository{db: db}
}

// GetOrCreate returns the owner's wallet, creating a zero-balance one on
// first access.
func (r *WalletRepository) GetOrCreate(ctx context.Context, ownerID int64) (*models.Wallet, error) {
	_, err := r.db.Exec(ctx, `
		INSERT INTO wallets (owner_id) VALUES ($1)
		ON CONFLICT (owner_id) DO NOTHING
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure wallet: %w", err)
	}
	return r.Get(ctx, ownerID)
}

// Get retrieves a wallet by owner. Returns pgx.ErrNoRows when absent.
func (r *WalletRepository) Get(ctx context.Context, ownerID int64) (*models.Wallet, error) {
	var w models.Wallet
	err := r.db.QueryRow(ctx, `
		SELECT owner_id, balance, created_at, updated_at
		FROM wallets WHERE owner_id = $1
	`, ownerID).Scan(&w.OwnerID, &w.Balance, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &w, nil
}

// LockBalance reads the wallet balance under a row lock, serializing every
// concurrent mutation of the same wallet until the surrounding transaction
// commits. Must be called inside a transaction.
func (r *WalletRepository) LockBalance(ctx context.Context, ownerID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.db.QueryRow(ctx, `
		SELECT balance FROM wallets WHERE owner_id = $1 FOR UPDATE
	`, ownerID).Scan(&balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to lock wallet: %w", err)
	}
	return balance, nil
}

// Credit adds amount to the wallet balance and returns the new balance.
func (r *WalletRepository) Credit(ctx context.Context, ownerID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.db.QueryRow(ctx, `
		UPDATE wallets
		SET balance = balance + $2, updated_at = NOW()
		WHERE owner_id = $1
		RETURNING balance
	`, ownerID, amount).Scan(&balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to credit wallet: %w", err)
	}
	return balance, nil
}

// Debit subtracts amount from the wallet balance and returns the new balance.
// The balance check and the write happen in one statement, so two concurrent
// debits can never jointly overdraw the wallet.
func (r *WalletRepository) Debit(ctx context.Context, ownerID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.db.QueryRow(ctx, `
		UPDATE wallets
		SET balance = balance - $2, updated_at = NOW()
		WHERE owner_id = $1 AND balance >= $2
		RETURNING balance
	`, ownerID, amount).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the wallet is missing or the balance is short; distinguish.
		if _, getErr := r.Get(ctx, ownerID); getErr != nil {
			return decimal.Zero, getErr
		}
		return decimal.Zero, ErrInsufficientBalance
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to debit wallet: %w", err)
	}
	return balance, nil
}
