package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gitlab.com/yelinaung/finance-tracker/internal/database"
	"gitlab.com/yelinaung/finance-tracker/internal/events"
	"gitlab.com/yelinaung/finance-tracker/internal/gemini"
	"gitlab.com/yelinaung/finance-tracker/internal/ledger"
	"gitlab.com/yelinaung/finance-tracker/internal/models"
	"gitlab.com/yelinaung/finance-tracker/internal/repository"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// fixedPriceSource returns the same price for every symbol.
type fixedPriceSource struct {
	price decimal.Decimal
}

func (s *fixedPriceSource) GetLivePrice(_ context.Context, _ string) (decimal.Decimal, error) {
	return s.price, nil
}

// capturingPublisher records published events for assertions.
type capturingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []any
}

func (p *capturingPublisher) Publish(_ context.Context, topic string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

func testProcessor(t *testing.T) (*Processor, database.DB) {
	t.Helper()
	tx := database.TestTx(t)
	return New(tx, &fixedPriceSource{price: dec("50")}), tx
}

func fund(t *testing.T, tx database.DB, ownerID int64, amount string) {
	t.Helper()
	_, err := ledger.New(tx).Credit(context.Background(), ownerID, dec(amount))
	require.NoError(t, err)
}

func balanceOf(t *testing.T, tx database.DB, ownerID int64) decimal.Decimal {
	t.Helper()
	balance, err := ledger.New(tx).Balance(context.Background(), ownerID)
	require.NoError(t, err)
	return balance
}

func TestProcessor_CreateExpense(t *testing.T) {
	p, tx := testProcessor(t)
	ctx := context.Background()

	t.Run("debits the wallet", func(t *testing.T) {
		fund(t, tx, 5001, "100")
		balance, err := p.CreateExpense(ctx, &models.Expense{
			OwnerID:  5001,
			Amount:   dec("30.50"),
			Category: "food",
		})
		require.NoError(t, err)
		require.True(t, balance.Equal(dec("69.50")))
	})

	t.Run("insufficient funds persists nothing", func(t *testing.T) {
		fund(t, tx, 5002, "10")
		_, err := p.CreateExpense(ctx, &models.Expense{
			OwnerID:  5002,
			Amount:   dec("10.01"),
			Category: "food",
		})
		require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

		require.True(t, balanceOf(t, tx, 5002).Equal(dec("10")))
		rows, err := repository.NewExpenseRepository(tx).GetByOwnerID(ctx, 5002, 10)
		require.NoError(t, err)
		require.Empty(t, rows)
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		_, err := p.CreateExpense(ctx, &models.Expense{OwnerID: 5001, Amount: decimal.Zero})
		require.ErrorIs(t, err, ledger.ErrInvalidAmount)
	})
}

func TestProcessor_AmendExpense(t *testing.T) {
	p, tx := testProcessor(t)
	ctx := context.Background()

	fund(t, tx, 5101, "100")
	_, err := p.CreateExpense(ctx, &models.Expense{OwnerID: 5101, Amount: dec("40"), Category: "food"})
	require.NoError(t, err)
	expenses, err := repository.NewExpenseRepository(tx).GetByOwnerID(ctx, 5101, 1)
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	id := expenses[0].ID

	t.Run("increase debits the delta", func(t *testing.T) {
		amended, err := p.AmendExpense(ctx, id, dec("55"))
		require.NoError(t, err)
		require.True(t, amended.Amount.Equal(dec("55")))
		require.True(t, balanceOf(t, tx, 5101).Equal(dec("45")))
	})

	t.Run("decrease credits the delta", func(t *testing.T) {
		amended, err := p.AmendExpense(ctx, id, dec("25"))
		require.NoError(t, err)
		require.True(t, amended.Amount.Equal(dec("25")))
		require.True(t, balanceOf(t, tx, 5101).Equal(dec("75")))
	})

	t.Run("increase beyond balance keeps the old amount", func(t *testing.T) {
		_, err := p.AmendExpense(ctx, id, dec("200"))
		require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

		expense, err := repository.NewExpenseRepository(tx).GetByID(ctx, id)
		require.NoError(t, err)
		require.True(t, expense.Amount.Equal(dec("25")))
		require.True(t, balanceOf(t, tx, 5101).Equal(dec("75")))
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := p.AmendExpense(ctx, 999999, dec("10"))
		require.ErrorIs(t, err, ledger.ErrNotFound)
	})
}

func TestProcessor_DeleteExpense(t *testing.T) {
	p, tx := testProcessor(t)
	ctx := context.Background()

	fund(t, tx, 5201, "100")
	_, err := p.CreateExpense(ctx, &models.Expense{OwnerID: 5201, Amount: dec("40"), Category: "food"})
	require.NoError(t, err)
	expenses, err := repository.NewExpenseRepository(tx).GetByOwnerID(ctx, 5201, 1)
	require.NoError(t, err)
	id := expenses[0].ID

	require.NoError(t, p.DeleteExpense(ctx, id))
	require.True(t, balanceOf(t, tx, 5201).Equal(dec("100")))

	_, err = repository.NewExpenseRepository(tx).GetByID(ctx, id)
	require.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestProcessor_IncomeLifecycle(t *testing.T) {
	p, tx := testProcessor(t)
	ctx := context.Background()

	balance, err := p.CreateIncome(ctx, &models.Income{OwnerID: 5301, Amount: dec("500"), Category: "salary"})
	require.NoError(t, err)
	require.True(t, balance.Equal(dec("500")))

	incomes, err := repository.NewIncomeRepository(tx).GetByOwnerID(ctx, 5301, 1)
	require.NoError(t, err)
	require.Len(t, incomes, 1)
	id := incomes[0].ID

	t.Run("amend down debits the delta", func(t *testing.T) {
		amended, err := p.AmendIncome(ctx, id, dec("450"))
		require.NoError(t, err)
		require.True(t, amended.Amount.Equal(dec("450")))
		require.True(t, balanceOf(t, tx, 5301).Equal(dec("450")))
	})

	t.Run("amend down fails when the credit is already spent", func(t *testing.T) {
		_, err := p.CreateExpense(ctx, &models.Expense{OwnerID: 5301, Amount: dec("440"), Category: "rent"})
		require.NoError(t, err)

		// Lowering to 100 would need a 350 debit against a balance of 10.
		_, err = p.AmendIncome(ctx, id, dec("100"))
		require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

		income, err := repository.NewIncomeRepository(tx).GetByID(ctx, id)
		require.NoError(t, err)
		require.True(t, income.Amount.Equal(dec("450")))
	})
}

func TestProcessor_CreateInvestmentBuy(t *testing.T) {
	p, tx := testProcessor(t)
	ctx := context.Background()

	t.Run("manual buy debits quantity times price", func(t *testing.T) {
		fund(t, tx, 6001, "1000")
		balance, err := p.CreateInvestmentBuy(ctx, &models.Investment{
			OwnerID:    6001,
			AssetType:  models.AssetTypeStock,
			Symbol:     "VWRA",
			Name:       "Vanguard FTSE All-World",
			Quantity:   dec("3"),
			Price:      dec("110.25"),
			IsManual:   true,
			OccurredOn: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		require.True(t, balance.Equal(dec("669.25")), "balance is %s", balance)
	})

	t.Run("live buy stamps the fetched price and today", func(t *testing.T) {
		today := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
		clock := New(tx, &fixedPriceSource{price: dec("50")}, WithClock(func() time.Time { return today }))

		fund(t, tx, 6002, "500")
		inv := &models.Investment{
			OwnerID:   6002,
			AssetType: models.AssetTypeStock,
			Symbol:    "ES3",
			Name:      "STI ETF",
			Quantity:  dec("4"),
		}
		balance, err := clock.CreateInvestmentBuy(ctx, inv)
		require.NoError(t, err)
		require.True(t, balance.Equal(dec("300")))
		require.True(t, inv.Price.Equal(dec("50")))
		require.NotNil(t, inv.CurrentPrice)
		require.True(t, inv.CurrentPrice.Equal(dec("50")))
		require.Equal(t, today, inv.OccurredOn)
	})

	t.Run("debit amount rounds half up to cents", func(t *testing.T) {
		fund(t, tx, 6003, "100.01")
		// 3 x 33.335 = 100.005, rounds to 100.01.
		balance, err := p.CreateInvestmentBuy(ctx, &models.Investment{
			OwnerID:    6003,
			AssetType:  models.AssetTypeStock,
			Symbol:     "FRAC",
			Name:       "Fractional",
			Quantity:   dec("3"),
			Price:      dec("33.335"),
			IsManual:   true,
			OccurredOn: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		require.True(t, balance.IsZero())
	})

	t.Run("insufficient funds persists nothing", func(t *testing.T) {
		fund(t, tx, 6004, "99")
		_, err := p.CreateInvestmentBuy(ctx, &models.Investment{
			OwnerID:    6004,
			AssetType:  models.AssetTypeStock,
			Symbol:     "VWRA",
			Name:       "Vanguard FTSE All-World",
			Quantity:   dec("1"),
			Price:      dec("100"),
			IsManual:   true,
			OccurredOn: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		})
		require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

		require.True(t, balanceOf(t, tx, 6004).Equal(dec("99")))
		rows, err := repository.NewInvestmentRepository(tx).GetBuysByOwnerID(ctx, 6004)
		require.NoError(t, err)
		require.Empty(t, rows)
	})

	t.Run("rejects sells outright", func(t *testing.T) {
		_, err := p.CreateInvestmentBuy(ctx, &models.Investment{
			OwnerID:         6001,
			AssetType:       models.AssetTypeStock,
			TransactionType: models.TransactionTypeSell,
			Symbol:          "VWRA",
			Quantity:        dec("1"),
			Price:           dec("10"),
			IsManual:        true,
			OccurredOn:      time.Now(),
		})
		require.ErrorIs(t, err, ErrSellNotAllowed)

		require.ErrorIs(t, p.CreateInvestmentSell(ctx, &models.Investment{}), ErrSellNotAllowed)
	})
}

// buyLot records a manual buy and returns its id.
func buyLot(t *testing.T, p *Processor, ownerID int64, symbol, qty, price string, day int) int {
	t.Helper()
	ctx := context.Background()
	inv := &models.Investment{
		OwnerID:    ownerID,
		AssetType:  models.AssetTypeStock,
		Symbol:     symbol,
		Name:       symbol,
		Quantity:   dec(qty),
		Price:      dec(price),
		IsManual:   true,
		OccurredOn: time.Date(2026, 8, day, 0, 0, 0, 0, time.UTC),
	}
	_, err := p.CreateInvestmentBuy(ctx, inv)
	require.NoError(t, err)
	return inv.ID
}

func TestProcessor_AmendInvestment(t *testing.T) {
	p, tx := testProcessor(t)
	ctx := context.Background()

	t.Run("repricing a buy adjusts the wallet by the difference", func(t *testing.T) {
		fund(t, tx, 6101, "1000")
		id := buyLot(t, p, 6101, "VWRA", "5", "100", 1) // balance 500

		newPrice := dec("90")
		amended, err := p.AmendInvestment(ctx, id, InvestmentAmendment{Price: &newPrice})
		require.NoError(t, err)
		require.True(t, amended.Price.Equal(dec("90")))
		// Revert credits 500, re-debit takes 450.
		require.True(t, balanceOf(t, tx, 6101).Equal(dec("550")))
	})

	t.Run("amending a buy into a partial sell leaves a residual lot", func(t *testing.T) {
		fund(t, tx, 6102, "500")
		id := buyLot(t, p, 6102, "VWRA", "5", "100", 1) // balance 0

		qty := dec("3")
		sell := models.TransactionTypeSell
		amended, err := p.AmendInvestment(ctx, id, InvestmentAmendment{
			Quantity:        &qty,
			TransactionType: &sell,
		})
		require.NoError(t, err)
		require.Equal(t, models.TransactionTypeSell, amended.TransactionType)
		require.True(t, amended.Quantity.Equal(dec("3")))

		// Revert credits 500, the sell credits another 300.
		require.True(t, balanceOf(t, tx, 6102).Equal(dec("800")))

		owned, err := p.OwnedQuantity(ctx, 6102, "VWRA")
		require.NoError(t, err)
		require.True(t, owned.Equal(dec("2")), "owned is %s", owned)
	})

	t.Run("a sell spanning lots consumes them oldest first", func(t *testing.T) {
		fund(t, tx, 6103, "2000")
		first := buyLot(t, p, 6103, "ES3", "5", "100", 1)
		second := buyLot(t, p, 6103, "ES3", "4", "100", 2) // balance 1100

		qty := dec("7")
		sell := models.TransactionTypeSell
		_, err := p.AmendInvestment(ctx, first, InvestmentAmendment{
			Quantity:        &qty,
			TransactionType: &sell,
		})
		require.NoError(t, err)

		// Revert credits 500, the sell credits 700.
		require.True(t, balanceOf(t, tx, 6103).Equal(dec("2300")))

		owned, err := p.OwnedQuantity(ctx, 6103, "ES3")
		require.NoError(t, err)
		require.True(t, owned.Equal(dec("2")))

		remaining, err := repository.NewInvestmentRepository(tx).GetByID(ctx, second)
		require.NoError(t, err)
		require.True(t, remaining.Quantity.Equal(dec("2")))
	})

	t.Run("selling more than owned is rejected without changes", func(t *testing.T) {
		fund(t, tx, 6104, "500")
		id := buyLot(t, p, 6104, "VWRA", "5", "100", 1) // balance 0

		qty := dec("6")
		sell := models.TransactionTypeSell
		_, err := p.AmendInvestment(ctx, id, InvestmentAmendment{
			Quantity:        &qty,
			TransactionType: &sell,
		})
		require.ErrorIs(t, err, ErrInsufficientHoldings)

		require.True(t, balanceOf(t, tx, 6104).IsZero())
		inv, err := repository.NewInvestmentRepository(tx).GetByID(ctx, id)
		require.NoError(t, err)
		require.Equal(t, models.TransactionTypeBuy, inv.TransactionType)
		require.True(t, inv.Quantity.Equal(dec("5")))
	})

	t.Run("unknown id", func(t *testing.T) {
		qty := dec("1")
		_, err := p.AmendInvestment(ctx, 999999, InvestmentAmendment{Quantity: &qty})
		require.ErrorIs(t, err, ledger.ErrNotFound)
	})
}

func TestProcessor_DeleteInvestment(t *testing.T) {
	p, tx := testProcessor(t)
	ctx := context.Background()

	fund(t, tx, 6201, "1000")
	id := buyLot(t, p, 6201, "VWRA", "5", "100", 1) // balance 500

	require.NoError(t, p.DeleteInvestment(ctx, id))
	require.True(t, balanceOf(t, tx, 6201).Equal(dec("1000")))

	owned, err := p.OwnedQuantity(ctx, 6201, "VWRA")
	require.NoError(t, err)
	require.True(t, owned.IsZero())
}

func TestProcessor_PublishesEvents(t *testing.T) {
	tx := database.TestTx(t)
	pub := &capturingPublisher{}
	p := New(tx, &fixedPriceSource{price: dec("50")}, WithPublisher(pub))
	ctx := context.Background()

	fund(t, tx, 6301, "100")
	_, err := p.CreateExpense(ctx, &models.Expense{OwnerID: 6301, Amount: dec("25"), Category: "food"})
	require.NoError(t, err)

	require.Len(t, pub.events, 1)
	require.Equal(t, events.TopicTransactionCompleted, pub.topics[0])
}

// TestProcessor_ConcurrentAmendExpense drives parallel amends of one expense
// across pool connections. The locked read ties each delta to the amount the
// previous amend committed, so whichever order wins, the wallet reflects
// exactly the final recorded amount.
func TestProcessor_ConcurrentAmendExpense(t *testing.T) {
	pool := database.TestPool(t)
	ctx := context.Background()

	const ownerID = int64(6400)
	cleanup := func() {
		_, _ = pool.Exec(ctx, `DELETE FROM expenses WHERE owner_id = $1`, ownerID)
		_, _ = pool.Exec(ctx, `DELETE FROM wallets WHERE owner_id = $1`, ownerID)
	}
	cleanup()
	t.Cleanup(cleanup)

	p := New(pool, &fixedPriceSource{price: dec("50")})
	fund(t, pool, ownerID, "1000")

	expense := &models.Expense{OwnerID: ownerID, Amount: dec("100"), Category: "rent"}
	_, err := p.CreateExpense(ctx, expense)
	require.NoError(t, err)

	targets := []string{"40", "70", "110", "150", "220", "90", "130", "60"}
	var wg sync.WaitGroup
	errs := make(chan error, len(targets))
	for _, target := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.AmendExpense(ctx, expense.ID, dec(target))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	final, err := repository.NewExpenseRepository(pool).GetByID(ctx, expense.ID)
	require.NoError(t, err)
	balance := balanceOf(t, pool, ownerID)
	require.True(t, balance.Add(final.Amount).Equal(dec("1000")),
		"balance %s + amount %s != 1000", balance, final.Amount)
}

// TestProcessor_ConcurrentAmendIncome mirrors the expense race from the
// income direction: deltas credit on increase and debit on decrease, and the
// locked read keeps them anchored to the committed amount.
func TestProcessor_ConcurrentAmendIncome(t *testing.T) {
	pool := database.TestPool(t)
	ctx := context.Background()

	const ownerID = int64(6500)
	cleanup := func() {
		_, _ = pool.Exec(ctx, `DELETE FROM incomes WHERE owner_id = $1`, ownerID)
		_, _ = pool.Exec(ctx, `DELETE FROM wallets WHERE owner_id = $1`, ownerID)
	}
	cleanup()
	t.Cleanup(cleanup)

	p := New(pool, &fixedPriceSource{price: dec("50")})
	fund(t, pool, ownerID, "1000")

	income := &models.Income{OwnerID: ownerID, Amount: dec("500"), Category: "salary"}
	_, err := p.CreateIncome(ctx, income)
	require.NoError(t, err)

	targets := []string{"300", "800", "450", "650", "550", "700"}
	var wg sync.WaitGroup
	errs := make(chan error, len(targets))
	for _, target := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.AmendIncome(ctx, income.ID, dec(target))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	final, err := repository.NewIncomeRepository(pool).GetByID(ctx, income.ID)
	require.NoError(t, err)
	balance := balanceOf(t, pool, ownerID)
	// Created at 500 into a 1500 balance; every amend moves the balance by
	// exactly its delta, so balance - amount stays at the funded 1000.
	require.True(t, balance.Sub(final.Amount).Equal(dec("1000")),
		"balance %s - amount %s != 1000", balance, final.Amount)
}

// stubSuggester returns a canned category suggestion.
type stubSuggester struct {
	suggestion *gemini.CategorySuggestion
	err        error
	calls      int
}

func (s *stubSuggester) SuggestCategory(_ context.Context, _ string, _ []string) (*gemini.CategorySuggestion, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.suggestion, nil
}

func TestProcessor_CreateExpense_SuggestsCategory(t *testing.T) {
	ctx := context.Background()

	t.Run("fills a missing category from the description", func(t *testing.T) {
		tx := database.TestTx(t)
		sug := &stubSuggester{suggestion: &gemini.CategorySuggestion{Category: "dining", Confidence: 0.9}}
		p := New(tx, nil, WithCategorySuggester(sug))

		fund(t, tx, 6601, "100")
		expense := &models.Expense{
			OwnerID:     6601,
			Amount:      dec("12.50"),
			Description: "flat white at the corner cafe",
		}
		_, err := p.CreateExpense(ctx, expense)
		require.NoError(t, err)
		require.Equal(t, 1, sug.calls)

		got, err := repository.NewExpenseRepository(tx).GetByID(ctx, expense.ID)
		require.NoError(t, err)
		require.Equal(t, "dining", got.Category)
	})

	t.Run("keeps a supplied category", func(t *testing.T) {
		tx := database.TestTx(t)
		sug := &stubSuggester{suggestion: &gemini.CategorySuggestion{Category: "dining"}}
		p := New(tx, nil, WithCategorySuggester(sug))

		fund(t, tx, 6602, "100")
		expense := &models.Expense{
			OwnerID:     6602,
			Amount:      dec("800"),
			Category:    "rent",
			Description: "monthly rent",
		}
		_, err := p.CreateExpense(ctx, expense)
		require.NoError(t, err)
		require.Zero(t, sug.calls)
		require.Equal(t, "rent", expense.Category)
	})

	t.Run("suggestion failure is not fatal", func(t *testing.T) {
		tx := database.TestTx(t)
		sug := &stubSuggester{err: errors.New("model unavailable")}
		p := New(tx, nil, WithCategorySuggester(sug))

		fund(t, tx, 6603, "100")
		expense := &models.Expense{
			OwnerID:     6603,
			Amount:      dec("20"),
			Description: "unclear purchase",
		}
		balance, err := p.CreateExpense(ctx, expense)
		require.NoError(t, err)
		require.True(t, balance.Equal(dec("80")))
		require.Empty(t, expense.Category)
	})
}

func TestProcessor_FundRecurringBuy(t *testing.T) {
	p, tx := testProcessor(t)
	ctx := context.Background()

	t.Run("debits the rounded installment cost", func(t *testing.T) {
		fund(t, tx, 6701, "200")
		amount, balance, err := p.FundRecurringBuy(ctx, tx, 6701, dec("3"), dec("33.335"))
		require.NoError(t, err)
		require.True(t, amount.Equal(dec("100.01")), "amount is %s", amount)
		require.True(t, balance.Equal(dec("99.99")))
	})

	t.Run("insufficient funds leaves the wallet untouched", func(t *testing.T) {
		fund(t, tx, 6702, "50")
		_, _, err := p.FundRecurringBuy(ctx, tx, 6702, dec("2"), dec("25.005"))
		require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
		require.True(t, balanceOf(t, tx, 6702).Equal(dec("50")))
	})
}
