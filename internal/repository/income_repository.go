package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/finance-tracker/internal/database"
	"gitlab.com/yelinaung/finance-tracker/internal/models"
)

// IncomeRepository handles income database operations.
type IncomeRepository struct {
	db database.PGXDB
}

// NewIncomeRepository creates a new IncomeRepository.
func NewIncomeRepository(db database.PGXDB) *IncomeRepository {
	return &IncomeRepository{db: db}
}

// Create adds a new income entry. The transaction date defaults to today
// when unset and is immutable afterwards.
func (r *IncomeRepository) Create(ctx context.Context, income *models.Income) error {
	var occurredOn *time.Time
	if !income.OccurredOn.IsZero() {
		occurredOn = &income.OccurredOn
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO incomes (owner_id, amount, category, description, occurred_on)
		VALUES ($1, $2, $3, $4, COALESCE($5::date, CURRENT_DATE))
		RETURNING id, occurred_on, created_at, updated_at
	`, income.OwnerID, income.Amount, income.Category, income.Description, occurredOn,
	).Scan(&income.ID, &income.OccurredOn, &income.CreatedAt, &income.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create income: %w", err)
	}
	return nil
}

// GetByID retrieves an income entry by ID.
func (r *IncomeRepository) GetByID(ctx context.Context, id int) (*models.Income, error) {
	inc, err := r.getByID(ctx, id, "")
	if err != nil {
		return nil, fmt.Errorf("failed to get income: %w", err)
	}
	return inc, nil
}

// GetByIDForUpdate retrieves an income entry under a row lock. Must be called
// inside a transaction.
func (r *IncomeRepository) GetByIDForUpdate(ctx context.Context, id int) (*models.Income, error) {
	inc, err := r.getByID(ctx, id, "FOR UPDATE")
	if err != nil {
		return nil, fmt.Errorf("failed to lock income: %w", err)
	}
	return inc, nil
}

func (r *IncomeRepository) getByID(ctx context.Context, id int, suffix string) (*models.Income, error) {
	var inc models.Income
	err := r.db.QueryRow(ctx, `
		SELECT id, owner_id, amount, category, COALESCE(description, ''),
		       occurred_on, created_at, updated_at
		FROM incomes WHERE id = $1 `+suffix,
		id).Scan(&inc.ID, &inc.OwnerID, &inc.Amount, &inc.Category, &inc.Description,
		&inc.OccurredOn, &inc.CreatedAt, &inc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

// GetByOwnerID retrieves the most recent income entries for an owner.
func (r *IncomeRepository) GetByOwnerID(ctx context.Context, ownerID int64, limit int) ([]models.Income, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, owner_id, amount, category, COALESCE(description, ''),
		       occurred_on, created_at, updated_at
		FROM incomes
		WHERE owner_id = $1
		ORDER BY occurred_on DESC, id DESC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query incomes: %w", err)
	}
	defer rows.Close()

	var incomes []models.Income
	for rows.Next() {
		var inc models.Income
		if err := rows.Scan(
			&inc.ID, &inc.OwnerID, &inc.Amount, &inc.Category, &inc.Description,
			&inc.OccurredOn, &inc.CreatedAt, &inc.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan income: %w", err)
		}
		incomes = append(incomes, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating incomes: %w", err)
	}
	return incomes, nil
}

// GetByOwnerIDAndDateRange retrieves income entries within [startDate, endDate).
func (r *IncomeRepository) GetByOwnerIDAndDateRange(
	ctx context.Context,
	ownerID int64,
	startDate, endDate time.Time,
) ([]models.Income, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, owner_id, amount, category, COALESCE(description, ''),
		       occurred_on, created_at, updated_at
		FROM incomes
		WHERE owner_id = $1 AND occurred_on >= $2 AND occurred_on < $3
		ORDER BY occurred_on DESC, id DESC
	`, ownerID, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query incomes by date range: %w", err)
	}
	defer rows.Close()

	var incomes []models.Income
	for rows.Next() {
		var inc models.Income
		if err := rows.Scan(
			&inc.ID, &inc.OwnerID, &inc.Amount, &inc.Category, &inc.Description,
			&inc.OccurredOn, &inc.CreatedAt, &inc.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan income: %w", err)
		}
		incomes = append(incomes, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating incomes: %w", err)
	}
	return incomes, nil
}

// GetTotalByOwnerIDAndDateRange calculates total income in a date range.
func (r *IncomeRepository) GetTotalByOwnerIDAndDateRange(
	ctx context.Context,
	ownerID int64,
	startDate, endDate time.Time,
) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM incomes
		WHERE owner_id = $1 AND occurred_on >= $2 AND occurred_on < $3
	`, ownerID, startDate, endDate).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get income total: %w", err)
	}
	return total, nil
}

// UpdateAmount changes the amount of an existing income entry.
func (r *IncomeRepository) UpdateAmount(ctx context.Context, id int, amount decimal.Decimal) error {
	_, err := r.db.Exec(ctx, `
		UPDATE incomes SET amount = $2, updated_at = NOW() WHERE id = $1
	`, id, amount)
	if err != nil {
		return fmt.Errorf("failed to update income amount: %w", err)
	}
	return nil
}

// Delete removes an income entry by ID.
func (r *IncomeRepository) Delete(ctx context.Context, id int) error {
	_, err := r.db.Exec(ctx, `DELETE FROM incomes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete income: %w", err)
	}
	return nil
}
