// Package processor translates expense, income, and investment events into
// ledger mutations with amend semantics: an update first reverses the prior
// wallet effect, then applies the new one, inside a single transaction.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/finance-tracker/internal/database"
	"gitlab.com/yelinaung/finance-tracker/internal/events"
	"gitlab.com/yelinaung/finance-tracker/internal/gemini"
	"gitlab.com/yelinaung/finance-tracker/internal/ledger"
	"gitlab.com/yelinaung/finance-tracker/internal/logger"
	"gitlab.com/yelinaung/finance-tracker/internal/models"
	"gitlab.com/yelinaung/finance-tracker/internal/pricing"
	"gitlab.com/yelinaung/finance-tracker/internal/repository"
)

var (
	// ErrInsufficientHoldings is returned when a sell exceeds the owned
	// quantity of the symbol.
	ErrInsufficientHoldings = errors.New("insufficient holdings")

	// ErrSellNotAllowed is returned when a sell is submitted as a new
	// investment. Sells are recorded by amending an existing buy lot.
	ErrSellNotAllowed = errors.New("sell transactions can only be recorded by amending a buy")
)

// InvestmentAmendment carries the fields an investment amend may change.
// Nil fields keep the old value.
type InvestmentAmendment struct {
	Quantity        *decimal.Decimal
	Price           *decimal.Decimal
	TransactionType *string
}

// CategorySuggester proposes an expense category for a free-text
// description. Implemented by gemini.Client.
type CategorySuggester interface {
	SuggestCategory(ctx context.Context, description string, categories []string) (*gemini.CategorySuggestion, error)
}

// Processor applies business rules for expenses, incomes, and investments
// on top of the Ledger.
type Processor struct {
	db        database.DB
	prices    pricing.Source
	publisher events.Publisher
	suggester CategorySuggester
	now       func() time.Time
}

// Option configures a Processor.
type Option func(*Processor)

// WithPublisher attaches an event publisher. Events fire after commit;
// publish failures are logged, never surfaced.
func WithPublisher(p events.Publisher) Option {
	return func(proc *Processor) { proc.publisher = p }
}

// WithCategorySuggester attaches a suggester that fills in a missing expense
// category from the description. Suggestion failures are logged, never fatal.
func WithCategorySuggester(s CategorySuggester) Option {
	return func(proc *Processor) { proc.suggester = s }
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(proc *Processor) { proc.now = now }
}

// New creates a Processor. prices may be nil when live-price buys are not
// needed (they will fail with PriceUnavailableError).
func New(db database.DB, prices pricing.Source, opts ...Option) *Processor {
	p := &Processor{
		db:     db,
		prices: prices,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// quantize rounds a derived monetary amount half-up to two decimal places.
// Applied to every quantity × price product before it touches the ledger.
func quantize(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// withTx runs fn inside a transaction, rolling back on error.
func (p *Processor) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// publish emits an event after a successful commit. Failures are logged only.
func (p *Processor) publish(ctx context.Context, topic string, event any) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, topic, event); err != nil {
		logger.Log.Warn().Err(err).Str("topic", topic).Msg("Failed to publish event")
	}
}

func (p *Processor) completed(ctx context.Context, kind, op string, ownerID int64, amount, balance decimal.Decimal) {
	p.publish(ctx, events.TopicTransactionCompleted, events.TransactionCompleted{
		Kind:       kind,
		Operation:  op,
		OwnerID:    ownerID,
		Amount:     amount,
		NewBalance: balance,
		OccurredAt: p.now(),
	})
}

// CreateExpense debits the wallet and persists the expense. On insufficient
// funds nothing is persisted and the ledger error is returned unchanged.
// When no category is supplied and a suggester is configured, one is derived
// from the description before the transaction opens.
func (p *Processor) CreateExpense(ctx context.Context, expense *models.Expense) (decimal.Decimal, error) {
	if !expense.Amount.IsPositive() {
		return decimal.Zero, ledger.ErrInvalidAmount
	}

	if expense.Category == "" && expense.Description != "" && p.suggester != nil {
		suggestion, err := p.suggester.SuggestCategory(ctx, expense.Description, nil)
		if err != nil {
			logger.Log.Warn().Err(err).Msg("Category suggestion failed")
		} else {
			expense.Category = suggestion.Category
			logger.Log.Debug().
				Str("category", suggestion.Category).
				Float64("confidence", suggestion.Confidence).
				Msg("Category suggested from description")
		}
	}

	var balance decimal.Decimal
	err := p.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		balance, err = ledger.New(tx).Debit(ctx, expense.OwnerID, expense.Amount)
		if err != nil {
			return err
		}
		return repository.NewExpenseRepository(tx).Create(ctx, expense)
	})
	if err != nil {
		return decimal.Zero, err
	}

	p.completed(ctx, "expense", "create", expense.OwnerID, expense.Amount, balance)
	return balance, nil
}

// AmendExpense changes an expense's amount, adjusting the wallet by the
// delta: an increase debits (and can fail with ErrInsufficientFunds, leaving
// the old amount in place), a decrease credits, no change is a no-op.
func (p *Processor) AmendExpense(ctx context.Context, id int, newAmount decimal.Decimal) (*models.Expense, error) {
	if !newAmount.IsPositive() {
		return nil, ledger.ErrInvalidAmount
	}

	var amended *models.Expense
	err := p.withTx(ctx, func(tx pgx.Tx) error {
		expenses := repository.NewExpenseRepository(tx)
		expense, err := expenses.GetByIDForUpdate(ctx, id)
		if err != nil {
			return notFoundOr(err)
		}

		led := ledger.New(tx)
		if _, err := led.Lock(ctx, expense.OwnerID); err != nil {
			return err
		}

		delta := newAmount.Sub(expense.Amount)
		switch {
		case delta.IsPositive():
			if _, err := led.Debit(ctx, expense.OwnerID, delta); err != nil {
				return err
			}
		case delta.IsNegative():
			if _, err := led.Credit(ctx, expense.OwnerID, delta.Neg()); err != nil {
				return err
			}
		default:
			amended = expense
			return nil
		}

		if err := expenses.UpdateAmount(ctx, id, newAmount); err != nil {
			return err
		}
		expense.Amount = newAmount
		amended = expense
		return nil
	})
	if err != nil {
		return nil, err
	}
	return amended, nil
}

// DeleteExpense removes an expense and credits its amount back to the wallet,
// keeping balance and history consistent.
func (p *Processor) DeleteExpense(ctx context.Context, id int) error {
	return p.withTx(ctx, func(tx pgx.Tx) error {
		expenses := repository.NewExpenseRepository(tx)
		expense, err := expenses.GetByIDForUpdate(ctx, id)
		if err != nil {
			return notFoundOr(err)
		}
		if _, err := ledger.New(tx).Credit(ctx, expense.OwnerID, expense.Amount); err != nil {
			return err
		}
		return expenses.Delete(ctx, id)
	})
}

// CreateIncome credits the wallet and persists the income entry.
func (p *Processor) CreateIncome(ctx context.Context, income *models.Income) (decimal.Decimal, error) {
	if !income.Amount.IsPositive() {
		return decimal.Zero, ledger.ErrInvalidAmount
	}

	var balance decimal.Decimal
	err := p.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		balance, err = ledger.New(tx).Credit(ctx, income.OwnerID, income.Amount)
		if err != nil {
			return err
		}
		return repository.NewIncomeRepository(tx).Create(ctx, income)
	})
	if err != nil {
		return decimal.Zero, err
	}

	p.completed(ctx, "income", "create", income.OwnerID, income.Amount, balance)
	return balance, nil
}

// AmendIncome changes an income's amount, adjusting the wallet by the delta
// in the income direction: an increase credits, a decrease debits. A decrease
// that would overdraw the wallet fails with ErrInsufficientFunds and the
// amend is rejected.
func (p *Processor) AmendIncome(ctx context.Context, id int, newAmount decimal.Decimal) (*models.Income, error) {
	if !newAmount.IsPositive() {
		return nil, ledger.ErrInvalidAmount
	}

	var amended *models.Income
	err := p.withTx(ctx, func(tx pgx.Tx) error {
		incomes := repository.NewIncomeRepository(tx)
		income, err := incomes.GetByIDForUpdate(ctx, id)
		if err != nil {
			return notFoundOr(err)
		}

		led := ledger.New(tx)
		if _, err := led.Lock(ctx, income.OwnerID); err != nil {
			return err
		}

		delta := newAmount.Sub(income.Amount)
		switch {
		case delta.IsPositive():
			if _, err := led.Credit(ctx, income.OwnerID, delta); err != nil {
				return err
			}
		case delta.IsNegative():
			if _, err := led.Debit(ctx, income.OwnerID, delta.Neg()); err != nil {
				return err
			}
		default:
			amended = income
			return nil
		}

		if err := incomes.UpdateAmount(ctx, id, newAmount); err != nil {
			return err
		}
		income.Amount = newAmount
		amended = income
		return nil
	})
	if err != nil {
		return nil, err
	}
	return amended, nil
}

// DeleteIncome removes an income entry and debits its amount from the wallet.
// Fails with ErrInsufficientFunds when the credited money is already spent,
// in which case the entry is kept.
func (p *Processor) DeleteIncome(ctx context.Context, id int) error {
	return p.withTx(ctx, func(tx pgx.Tx) error {
		incomes := repository.NewIncomeRepository(tx)
		income, err := incomes.GetByIDForUpdate(ctx, id)
		if err != nil {
			return notFoundOr(err)
		}
		if _, err := ledger.New(tx).Debit(ctx, income.OwnerID, income.Amount); err != nil {
			return err
		}
		return incomes.Delete(ctx, id)
	})
}

// FundRecurringBuy debits the rounded cost of one recurring-plan installment
// inside the caller's transaction, applying the same rounding rule as every
// other quantity × price product. The scheduler delegates the monetary step
// of a due plan here; plan state stays with the caller.
func (p *Processor) FundRecurringBuy(ctx context.Context, db database.PGXDB, ownerID int64, quantity, price decimal.Decimal) (amount, balance decimal.Decimal, err error) {
	amount = quantize(quantity.Mul(price))
	balance, err = ledger.New(db).Debit(ctx, ownerID, amount)
	return amount, balance, err
}

// notFoundOr maps a missing row to ledger.ErrNotFound, passing other errors
// through.
func notFoundOr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.ErrNotFound
	}
	return err
}
