package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/finance-tracker/internal/ledger"
	"gitlab.com/yelinaung/finance-tracker/internal/models"
	"gitlab.com/yelinaung/finance-tracker/internal/repository"
)

// CreateInvestmentBuy resolves the unit price, debits quantity × price from
// the wallet, and persists the buy. Manual buys use the supplied price and
// date; otherwise the live market price is fetched, stamped as the price and
// current_price, and the transaction is dated today. On insufficient funds
// the buy is rejected and no row is persisted.
func (p *Processor) CreateInvestmentBuy(ctx context.Context, inv *models.Investment) (decimal.Decimal, error) {
	if inv.TransactionType == models.TransactionTypeSell {
		return decimal.Zero, ErrSellNotAllowed
	}
	inv.TransactionType = models.TransactionTypeBuy

	if !inv.Quantity.IsPositive() {
		return decimal.Zero, ledger.ErrInvalidAmount
	}

	if inv.IsManual {
		if !inv.Price.IsPositive() {
			return decimal.Zero, ledger.ErrInvalidAmount
		}
		if inv.OccurredOn.IsZero() {
			return decimal.Zero, fmt.Errorf("manual buy requires a transaction date")
		}
	} else {
		if p.prices == nil {
			return decimal.Zero, fmt.Errorf("no price source configured for live buys")
		}
		price, err := p.prices.GetLivePrice(ctx, inv.Symbol)
		if err != nil {
			return decimal.Zero, err
		}
		inv.Price = price
		inv.CurrentPrice = &price
		inv.OccurredOn = p.now()
	}

	amount := quantize(inv.Quantity.Mul(inv.Price))

	var balance decimal.Decimal
	err := p.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		balance, err = ledger.New(tx).Debit(ctx, inv.OwnerID, amount)
		if err != nil {
			return err
		}
		return repository.NewInvestmentRepository(tx).Create(ctx, inv)
	})
	if err != nil {
		return decimal.Zero, err
	}

	p.completed(ctx, "investment", "buy", inv.OwnerID, amount, balance)
	return balance, nil
}

// CreateInvestmentSell always fails: a sell is a state change on an existing
// buy lot, recorded through AmendInvestment.
func (p *Processor) CreateInvestmentSell(_ context.Context, _ *models.Investment) error {
	return ErrSellNotAllowed
}

// AmendInvestment reverses the old transaction's wallet effect and applies
// the amended one, both inside one transaction so a rejection in the second
// phase leaves the first uncommitted.
//
// Amending to a sell consumes the sold quantity from the symbol's buy lots,
// oldest first. When the amended row is itself the lot being consumed, its
// unsold remainder is preserved as a residual buy lot, so derived holdings
// stay truthful after the row becomes the sell record.
func (p *Processor) AmendInvestment(ctx context.Context, id int, amend InvestmentAmendment) (*models.Investment, error) {
	var amended *models.Investment
	err := p.withTx(ctx, func(tx pgx.Tx) error {
		investments := repository.NewInvestmentRepository(tx)
		inv, err := investments.GetByIDForUpdate(ctx, id)
		if err != nil {
			return notFoundOr(err)
		}

		led := ledger.New(tx)
		if _, err := led.Lock(ctx, inv.OwnerID); err != nil {
			return err
		}

		// Phase 1: revert the old transaction's effect.
		oldAmount := quantize(inv.Quantity.Mul(inv.Price))
		if oldAmount.IsPositive() {
			switch inv.TransactionType {
			case models.TransactionTypeBuy:
				if _, err := led.Credit(ctx, inv.OwnerID, oldAmount); err != nil {
					return err
				}
			case models.TransactionTypeSell:
				if _, err := led.Debit(ctx, inv.OwnerID, oldAmount); err != nil {
					return err
				}
			}
		}

		// Phase 2: apply the amended transaction, defaulting to old values.
		newQuantity := inv.Quantity
		if amend.Quantity != nil {
			newQuantity = *amend.Quantity
		}
		newPrice := inv.Price
		if amend.Price != nil {
			newPrice = *amend.Price
		}
		newType := inv.TransactionType
		if amend.TransactionType != nil {
			newType = *amend.TransactionType
		}

		if !newQuantity.IsPositive() || !newPrice.IsPositive() {
			return ledger.ErrInvalidAmount
		}
		if newType != models.TransactionTypeBuy && newType != models.TransactionTypeSell {
			return fmt.Errorf("unknown transaction type %q", newType)
		}

		newAmount := quantize(newQuantity.Mul(newPrice))

		switch newType {
		case models.TransactionTypeBuy:
			if _, err := led.Debit(ctx, inv.OwnerID, newAmount); err != nil {
				return err
			}
		case models.TransactionTypeSell:
			if err := p.consumeHoldings(ctx, investments, inv, newQuantity); err != nil {
				return err
			}
			if _, err := led.Credit(ctx, inv.OwnerID, newAmount); err != nil {
				return err
			}
		}

		inv.TransactionType = newType
		inv.Quantity = newQuantity
		inv.Price = newPrice
		if err := investments.Update(ctx, inv); err != nil {
			return err
		}
		amended = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return amended, nil
}

// consumeHoldings removes sellQuantity from the owner's buy lots of the
// symbol, oldest first. inv is the row being amended into the sell record;
// its own lot is consumed first and any remainder is re-inserted as a
// residual buy lot.
func (p *Processor) consumeHoldings(
	ctx context.Context,
	investments *repository.InvestmentRepository,
	inv *models.Investment,
	sellQuantity decimal.Decimal,
) error {
	owned, err := investments.OwnedQuantity(ctx, inv.OwnerID, inv.Symbol)
	if err != nil {
		return err
	}
	if owned.LessThan(sellQuantity) {
		return fmt.Errorf("selling %s of %s with %s owned: %w",
			sellQuantity.String(), inv.Symbol, owned.String(), ErrInsufficientHoldings)
	}

	remaining := sellQuantity

	if inv.TransactionType == models.TransactionTypeBuy && inv.AssetType == models.AssetTypeStock {
		take := decimal.Min(inv.Quantity, remaining)
		residual := inv.Quantity.Sub(take)
		if residual.IsPositive() {
			lot := *inv
			lot.ID = 0
			lot.TransactionType = models.TransactionTypeBuy
			lot.Quantity = residual
			if err := investments.Create(ctx, &lot); err != nil {
				return err
			}
		}
		remaining = remaining.Sub(take)
	}

	for remaining.IsPositive() {
		lot, err := investments.FirstBuyLot(ctx, inv.OwnerID, inv.Symbol, inv.ID)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrInsufficientHoldings
		}
		if err != nil {
			return err
		}
		take := decimal.Min(lot.Quantity, remaining)
		if err := investments.DecrementQuantity(ctx, lot.ID, take); err != nil {
			return err
		}
		remaining = remaining.Sub(take)
	}
	return nil
}

// DeleteInvestment removes an investment row and reverses its wallet effect:
// deleting a buy credits the spent amount back, deleting a sell debits the
// proceeds (and fails with ErrInsufficientFunds when already spent).
func (p *Processor) DeleteInvestment(ctx context.Context, id int) error {
	return p.withTx(ctx, func(tx pgx.Tx) error {
		investments := repository.NewInvestmentRepository(tx)
		inv, err := investments.GetByIDForUpdate(ctx, id)
		if err != nil {
			return notFoundOr(err)
		}

		led := ledger.New(tx)
		amount := quantize(inv.Quantity.Mul(inv.Price))
		if amount.IsPositive() {
			switch inv.TransactionType {
			case models.TransactionTypeBuy:
				if _, err := led.Credit(ctx, inv.OwnerID, amount); err != nil {
					return err
				}
			case models.TransactionTypeSell:
				if _, err := led.Debit(ctx, inv.OwnerID, amount); err != nil {
					return err
				}
			}
		}
		return investments.Delete(ctx, id)
	})
}

// OwnedQuantity reports the derived holdings of a stock symbol.
func (p *Processor) OwnedQuantity(ctx context.Context, ownerID int64, symbol string) (decimal.Decimal, error) {
	return repository.NewInvestmentRepository(p.db).OwnedQuantity(ctx, ownerID, symbol)
}
