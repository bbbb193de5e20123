// Package pricing resolves live market prices for investment symbols.
package pricing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// PriceUnavailableError indicates a live price lookup failed for a symbol.
type PriceUnavailableError struct {
	Symbol string
	Err    error
}

func (e *PriceUnavailableError) Error() string {
	return fmt.Sprintf("price unavailable for %s: %v", e.Symbol, e.Err)
}

func (e *PriceUnavailableError) Unwrap() error {
	return e.Err
}

// Source resolves the current market price of a symbol. Implementations must
// bound the call with the context; failures surface as PriceUnavailableError.
type Source interface {
	GetLivePrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}
