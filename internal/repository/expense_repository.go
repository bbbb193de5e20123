package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/finance-tracker/internal/database"
	"gitlab.com/yelinaung/finance-tracker/internal/models"
)

// ExpenseRepository handles expense database operations.
type ExpenseRepository struct {
	db database.PGXDB
}

// NewExpenseRepository creates a new ExpenseRepository.
func NewExpenseRepository(db database.PGXDB) *ExpenseRepository {
	return &ExpenseRepository{db: db}
}

// Create adds a new expense. The transaction date defaults to today when
// unset and is immutable afterwards.
func (r *ExpenseRepository) Create(ctx context.Context, expense *models.Expense) error {
	var occurredOn *time.Time
	if !expense.OccurredOn.IsZero() {
		occurredOn = &expense.OccurredOn
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO expenses (owner_id, amount, category, subcategory, payment_method, description, occurred_on)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7::date, CURRENT_DATE))
		RETURNING id, occurred_on, created_at, updated_at
	`, expense.OwnerID, expense.Amount, expense.Category, expense.Subcategory,
		expense.PaymentMethod, expense.Description, occurredOn,
	).Scan(&expense.ID, &expense.OccurredOn, &expense.CreatedAt, &expense.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create expense: %w", err)
	}
	return nil
}

// GetByID retrieves an expense by ID.
func (r *ExpenseRepository) GetByID(ctx context.Context, id int) (*models.Expense, error) {
	exp, err := r.getByID(ctx, id, "")
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	return exp, nil
}

// GetByIDForUpdate retrieves an expense under a row lock, so that the amount
// a concurrent amend computes its delta from cannot change underneath it.
// Must be called inside a transaction.
func (r *ExpenseRepository) GetByIDForUpdate(ctx context.Context, id int) (*models.Expense, error) {
	exp, err := r.getByID(ctx, id, "FOR UPDATE")
	if err != nil {
		return nil, fmt.Errorf("failed to lock expense: %w", err)
	}
	return exp, nil
}

func (r *ExpenseRepository) getByID(ctx context.Context, id int, suffix string) (*models.Expense, error) {
	var exp models.Expense
	err := r.db.QueryRow(ctx, `
		SELECT id, owner_id, amount, category, subcategory, payment_method,
		       COALESCE(description, ''), occurred_on, created_at, updated_at
		FROM expenses WHERE id = $1 `+suffix,
		id).Scan(&exp.ID, &exp.OwnerID, &exp.Amount, &exp.Category, &exp.Subcategory,
		&exp.PaymentMethod, &exp.Description, &exp.OccurredOn, &exp.CreatedAt, &exp.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &exp, nil
}

// GetByOwnerID retrieves expenses for an owner, newest first.
func (r *ExpenseRepository) GetByOwnerID(ctx context.Context, ownerID int64, limit int) ([]models.Expense, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, owner_id, amount, category, subcategory, payment_method,
		       COALESCE(description, ''), occurred_on, created_at, updated_at
		FROM expenses
		WHERE owner_id = $1
		ORDER BY occurred_on DESC, id DESC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer rows.Close()

	return scanExpenses(rows)
}

// GetByOwnerIDAndDateRange retrieves expenses within [startDate, endDate).
func (r *ExpenseRepository) GetByOwnerIDAndDateRange(
	ctx context.Context,
	ownerID int64,
	startDate, endDate time.Time,
) ([]models.Expense, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, owner_id, amount, category, subcategory, payment_method,
		       COALESCE(description, ''), occurred_on, created_at, updated_at
		FROM expenses
		WHERE owner_id = $1 AND occurred_on >= $2 AND occurred_on < $3
		ORDER BY occurred_on DESC, id DESC
	`, ownerID, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses by date range: %w", err)
	}
	defer rows.Close()

	return scanExpenses(rows)
}

// GetTotalByOwnerIDAndDateRange calculates total spending in a date range.
func (r *ExpenseRepository) GetTotalByOwnerIDAndDateRange(
	ctx context.Context,
	ownerID int64,
	startDate, endDate time.Time,
) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM expenses
		WHERE owner_id = $1 AND occurred_on >= $2 AND occurred_on < $3
	`, ownerID, startDate, endDate).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get total: %w", err)
	}
	return total, nil
}

// UpdateAmount changes the amount of an existing expense.
func (r *ExpenseRepository) UpdateAmount(ctx context.Context, id int, amount decimal.Decimal) error {
	_, err := r.db.Exec(ctx, `
		UPDATE expenses SET amount = $2, updated_at = NOW() WHERE id = $1
	`, id, amount)
	if err != nil {
		return fmt.Errorf("failed to update expense amount: %w", err)
	}
	return nil
}

// Delete removes an expense by ID.
func (r *ExpenseRepository) Delete(ctx context.Context, id int) error {
	_, err := r.db.Exec(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	return nil
}

// scanExpenses is a helper to scan expense result rows.
func scanExpenses(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
},
) ([]models.Expense, error) {
	var expenses []models.Expense
	for rows.Next() {
		var exp models.Expense
		if err := rows.Scan(
			&exp.ID, &exp.OwnerID, &exp.Amount, &exp.Category, &exp.Subcategory,
			&exp.PaymentMethod, &exp.Description, &exp.OccurredOn, &exp.CreatedAt, &exp.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expenses: %w", err)
	}
	return expenses, nil
}
