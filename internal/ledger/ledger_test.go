package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gitlab.com/yelinaung/finance-tracker/internal/database"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestLedger_GetOrCreate(t *testing.T) {
	tx := database.TestTx(t)
	l := New(tx)
	ctx := context.Background()

	t.Run("creates wallet with zero balance", func(t *testing.T) {
		wallet, err := l.GetOrCreate(ctx, 1001)
		require.NoError(t, err)
		require.Equal(t, int64(1001), wallet.OwnerID)
		require.True(t, wallet.Balance.IsZero())
	})

	t.Run("is idempotent", func(t *testing.T) {
		_, err := l.Credit(ctx, 1002, dec("50"))
		require.NoError(t, err)

		wallet, err := l.GetOrCreate(ctx, 1002)
		require.NoError(t, err)
		require.True(t, wallet.Balance.Equal(dec("50")))
	})
}

func TestLedger_Credit(t *testing.T) {
	tx := database.TestTx(t)
	l := New(tx)
	ctx := context.Background()

	t.Run("credits and returns new balance", func(t *testing.T) {
		balance, err := l.Credit(ctx, 2001, dec("100.50"))
		require.NoError(t, err)
		require.True(t, balance.Equal(dec("100.50")))

		balance, err = l.Credit(ctx, 2001, dec("0.50"))
		require.NoError(t, err)
		require.True(t, balance.Equal(dec("101")))
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		_, err := l.Credit(ctx, 2001, decimal.Zero)
		require.ErrorIs(t, err, ErrInvalidAmount)

		_, err = l.Credit(ctx, 2001, dec("-5"))
		require.ErrorIs(t, err, ErrInvalidAmount)
	})
}

func TestLedger_Debit(t *testing.T) {
	tx := database.TestTx(t)
	l := New(tx)
	ctx := context.Background()

	_, err := l.Credit(ctx, 3001, dec("100"))
	require.NoError(t, err)

	t.Run("debits and returns new balance", func(t *testing.T) {
		balance, err := l.Debit(ctx, 3001, dec("40"))
		require.NoError(t, err)
		require.True(t, balance.Equal(dec("60")))
	})

	t.Run("fails on insufficient funds without mutation", func(t *testing.T) {
		_, err := l.Debit(ctx, 3001, dec("60.01"))
		require.ErrorIs(t, err, ErrInsufficientFunds)

		balance, err := l.Balance(ctx, 3001)
		require.NoError(t, err)
		require.True(t, balance.Equal(dec("60")))
	})

	t.Run("allows debit down to exactly zero", func(t *testing.T) {
		balance, err := l.Debit(ctx, 3001, dec("60"))
		require.NoError(t, err)
		require.True(t, balance.IsZero())
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		_, err := l.Debit(ctx, 3001, decimal.Zero)
		require.ErrorIs(t, err, ErrInvalidAmount)
	})
}

// TestLedger_ConcurrentDebits drives parallel debits that individually fit but
// jointly overdraw the wallet; only the ones that cumulatively fit may commit.
// Runs against the shared pool directly since transactions serialize on row
// locks across connections, not within one.
func TestLedger_ConcurrentDebits(t *testing.T) {
	pool := database.TestPool(t)
	ctx := context.Background()

	const ownerID = int64(3100)
	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `DELETE FROM wallets WHERE owner_id = $1`, ownerID)
	})
	_, _ = pool.Exec(ctx, `DELETE FROM wallets WHERE owner_id = $1`, ownerID)

	l := New(pool)
	_, err := l.Credit(ctx, ownerID, dec("100"))
	require.NoError(t, err)

	const workers = 10
	debit := dec("30") // at most 3 of 10 can fit into 100

	var wg sync.WaitGroup
	succeeded := make(chan struct{}, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Debit(ctx, ownerID, debit); err == nil {
				succeeded <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(succeeded)

	wins := 0
	for range succeeded {
		wins++
	}
	require.Equal(t, 3, wins)

	balance, err := l.Balance(ctx, ownerID)
	require.NoError(t, err)
	require.True(t, balance.Equal(dec("10")), "balance is %s", balance)
	require.False(t, balance.IsNegative())
}
