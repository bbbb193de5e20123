package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RunMigrations creates the database schema.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS wallets (
			owner_id BIGINT PRIMARY KEY,
			balance DECIMAL(12, 2) NOT NULL DEFAULT 0.00 CHECK (balance >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS expenses (
			id SERIAL PRIMARY KEY,
			owner_id BIGINT NOT NULL,
			amount DECIMAL(12, 2) NOT NULL CHECK (amount > 0),
			category TEXT NOT NULL,
			subcategory TEXT NOT NULL DEFAULT '',
			payment_method TEXT NOT NULL DEFAULT '',
			description TEXT,
			occurred_on DATE NOT NULL DEFAULT CURRENT_DATE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_expenses_owner_occurred ON expenses(owner_id, occurred_on)`,

		`CREATE TABLE IF NOT EXISTS incomes (
			id SERIAL PRIMARY KEY,
			owner_id BIGINT NOT NULL,
			amount DECIMAL(12, 2) NOT NULL CHECK (amount > 0),
			category TEXT NOT NULL,
			description TEXT,
			occurred_on DATE NOT NULL DEFAULT CURRENT_DATE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_incomes_owner_occurred ON incomes(owner_id, occurred_on)`,

		`CREATE TABLE IF NOT EXISTS investments (
			id SERIAL PRIMARY KEY,
			owner_id BIGINT NOT NULL,
			asset_type TEXT NOT NULL,
			transaction_type TEXT NOT NULL,
			symbol TEXT NOT NULL,
			name TEXT NOT NULL,
			quantity DECIMAL(16, 4) NOT NULL CHECK (quantity >= 0),
			price DECIMAL(12, 2) NOT NULL,
			current_price DECIMAL(12, 2),
			is_manual BOOLEAN NOT NULL DEFAULT FALSE,
			occurred_on DATE NOT NULL DEFAULT CURRENT_DATE,
			sip_frequency TEXT,
			sip_start_date DATE,
			sip_end_date DATE,
			is_sip_active BOOLEAN NOT NULL DEFAULT FALSE,
			next_due_date DATE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_investments_owner_occurred ON investments(owner_id, occurred_on)`,
		`CREATE INDEX IF NOT EXISTS idx_investments_owner_symbol ON investments(owner_id, symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_investments_due ON investments(is_sip_active, next_due_date)`,
	}

	for i, migration := range migrations {
		if _, err := pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	return nil
}
