// Package models defines the domain entities for the finance tracker.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Asset types for investments.
const (
	AssetTypeStock      = "stock"
	AssetTypeMutualFund = "mutual_fund"
	AssetTypeSIP        = "sip"
)

// Transaction types for investments.
const (
	TransactionTypeBuy  = "buy"
	TransactionTypeSell = "sell"
)

// SIP execution frequencies.
const (
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
)

// Wallet is the single balance store per owner. Balance never goes negative.
type Wallet struct {
	OwnerID   int64
	Balance   decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expense represents a single expense entry. Creating one debits the wallet.
type Expense struct {
	ID            int
	OwnerID       int64
	Amount        decimal.Decimal
	Category      string
	Subcategory   string
	PaymentMethod string
	Description   string
	OccurredOn    time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Income represents a single income entry. Creating one credits the wallet.
type Income struct {
	ID          int
	OwnerID     int64
	Amount      decimal.Decimal
	Category    string
	Description string
	OccurredOn  time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Investment represents a buy or sell of an asset. SIP plans are investments
// with AssetType "sip" plus scheduling fields; each execution re-records the
// plan row as a buy.
type Investment struct {
	ID              int
	OwnerID         int64
	AssetType       string
	TransactionType string
	Symbol          string
	Name            string
	Quantity        decimal.Decimal
	Price           decimal.Decimal
	CurrentPrice    *decimal.Decimal
	IsManual        bool
	OccurredOn      time.Time

	// SIP-only fields.
	SIPFrequency string
	SIPStartDate *time.Time
	SIPEndDate   *time.Time
	IsSIPActive  bool
	NextDueDate  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UnitPrice returns the price a valuation or SIP execution should use:
// the latest known market price when available, the transaction price otherwise.
func (inv *Investment) UnitPrice() decimal.Decimal {
	if inv.CurrentPrice != nil {
		return *inv.CurrentPrice
	}
	return inv.Price
}

// TotalInvested returns quantity × price for buy rows, zero otherwise.
func (inv *Investment) TotalInvested() decimal.Decimal {
	if inv.TransactionType != TransactionTypeBuy {
		return decimal.Zero
	}
	return inv.Quantity.Mul(inv.Price)
}

// CurrentValue returns quantity × unit price.
func (inv *Investment) CurrentValue() decimal.Decimal {
	return inv.Quantity.Mul(inv.UnitPrice())
}

// ReturnsAbsolute returns current value minus invested value.
func (inv *Investment) ReturnsAbsolute() decimal.Decimal {
	return inv.CurrentValue().Sub(inv.TotalInvested())
}

// ReturnsPercentage returns the percentage gain over the invested value,
// zero when nothing was invested.
func (inv *Investment) ReturnsPercentage() float64 {
	invested := inv.TotalInvested()
	if invested.IsZero() {
		return 0
	}
	pct, _ := inv.ReturnsAbsolute().Div(invested).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}

// ValidFrequency reports whether freq is a known SIP frequency.
func ValidFrequency(freq string) bool {
	switch freq {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}
