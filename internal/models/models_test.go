package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestInvestmentReturns(t *testing.T) {
	t.Run("buy with current price", func(t *testing.T) {
		current := dec("120")
		inv := Investment{
			TransactionType: TransactionTypeBuy,
			Quantity:        dec("10"),
			Price:           dec("100"),
			CurrentPrice:    &current,
		}

		require.True(t, inv.TotalInvested().Equal(dec("1000")))
		require.True(t, inv.CurrentValue().Equal(dec("1200")))
		require.True(t, inv.ReturnsAbsolute().Equal(dec("200")))
		require.InDelta(t, 20.0, inv.ReturnsPercentage(), 1e-9)
	})

	t.Run("buy without current price falls back to price", func(t *testing.T) {
		inv := Investment{
			TransactionType: TransactionTypeBuy,
			Quantity:        dec("5"),
			Price:           dec("40"),
		}

		require.True(t, inv.UnitPrice().Equal(dec("40")))
		require.True(t, inv.CurrentValue().Equal(dec("200")))
		require.True(t, inv.ReturnsAbsolute().IsZero())
		require.Zero(t, inv.ReturnsPercentage())
	})

	t.Run("sell rows have no invested value", func(t *testing.T) {
		inv := Investment{
			TransactionType: TransactionTypeSell,
			Quantity:        dec("5"),
			Price:           dec("40"),
		}

		require.True(t, inv.TotalInvested().IsZero())
		require.Zero(t, inv.ReturnsPercentage())
	})

	t.Run("zero invested does not divide by zero", func(t *testing.T) {
		inv := Investment{
			TransactionType: TransactionTypeBuy,
			Quantity:        decimal.Zero,
			Price:           dec("100"),
		}
		require.Zero(t, inv.ReturnsPercentage())
	})
}

func TestValidFrequency(t *testing.T) {
	require.True(t, ValidFrequency(FrequencyDaily))
	require.True(t, ValidFrequency(FrequencyWeekly))
	require.True(t, ValidFrequency(FrequencyMonthly))
	require.False(t, ValidFrequency("yearly"))
	require.False(t, ValidFrequency(""))
}
