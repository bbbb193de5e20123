package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/finance-tracker/internal/database"
	"gitlab.com/yelinaung/finance-tracker/internal/models"
)

// InvestmentRepository handles investment database operations,
// including SIP plan scheduling state.
type InvestmentRepository struct {
	db database.PGXDB
}

// NewInvestmentRepository creates a new InvestmentRepository.
func NewInvestmentRepository(db database.PGXDB) *InvestmentRepository {
	return &InvestmentRepository{db: db}
}

const investmentColumns = `
	id, owner_id, asset_type, transaction_type, symbol, name,
	quantity, price, current_price, is_manual, occurred_on,
	sip_frequency, sip_start_date, sip_end_date, is_sip_active, next_due_date,
	created_at, updated_at`

// Create adds a new investment row.
func (r *InvestmentRepository) Create(ctx context.Context, inv *models.Investment) error {
	var sipFrequency *string
	if inv.SIPFrequency != "" {
		sipFrequency = &inv.SIPFrequency
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO investments (
			owner_id, asset_type, transaction_type, symbol, name,
			quantity, price, current_price, is_manual, occurred_on,
			sip_frequency, sip_start_date, sip_end_date, is_sip_active, next_due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at
	`, inv.OwnerID, inv.AssetType, inv.TransactionType, inv.Symbol, inv.Name,
		inv.Quantity, inv.Price, inv.CurrentPrice, inv.IsManual, inv.OccurredOn,
		sipFrequency, inv.SIPStartDate, inv.SIPEndDate, inv.IsSIPActive, inv.NextDueDate,
	).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create investment: %w", err)
	}
	return nil
}

// GetByID retrieves an investment by ID.
func (r *InvestmentRepository) GetByID(ctx context.Context, id int) (*models.Investment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+investmentColumns+` FROM investments WHERE id = $1`, id)
	inv, err := scanInvestment(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get investment: %w", err)
	}
	return inv, nil
}

// GetByIDForUpdate retrieves an investment under a row lock.
// Must be called inside a transaction.
func (r *InvestmentRepository) GetByIDForUpdate(ctx context.Context, id int) (*models.Investment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+investmentColumns+` FROM investments WHERE id = $1 FOR UPDATE`, id)
	inv, err := scanInvestment(row)
	if err != nil {
		return nil, fmt.Errorf("failed to lock investment: %w", err)
	}
	return inv, nil
}

// GetBuysByOwnerID retrieves the owner's buy rows that still hold quantity.
// This is the read view the portfolio analytics aggregate over.
func (r *InvestmentRepository) GetBuysByOwnerID(ctx context.Context, ownerID int64) ([]models.Investment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+investmentColumns+`
		FROM investments
		WHERE owner_id = $1 AND transaction_type = $2 AND quantity > 0
		ORDER BY occurred_on ASC, id ASC
	`, ownerID, models.TransactionTypeBuy)
	if err != nil {
		return nil, fmt.Errorf("failed to query buy investments: %w", err)
	}
	defer rows.Close()

	return scanInvestments(rows)
}

// GetDuePlans retrieves active SIP plans whose next due date has arrived.
// Uses the (is_sip_active, next_due_date) index.
func (r *InvestmentRepository) GetDuePlans(ctx context.Context, now time.Time) ([]models.Investment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+investmentColumns+`
		FROM investments
		WHERE asset_type = $1 AND is_sip_active = TRUE AND next_due_date <= $2
		ORDER BY next_due_date ASC, id ASC
	`, models.AssetTypeSIP, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due plans: %w", err)
	}
	defer rows.Close()

	return scanInvestments(rows)
}

// OwnedQuantity derives the net holdings of a stock symbol from the
// remaining quantities of its buy lots. Sells consume lot quantity at the
// moment they are recorded, so the lots alone are the source of truth and
// there is no running total that can drift from the rows.
func (r *InvestmentRepository) OwnedQuantity(ctx context.Context, ownerID int64, symbol string) (decimal.Decimal, error) {
	var owned decimal.Decimal
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0)
		FROM investments
		WHERE owner_id = $1 AND asset_type = $2 AND symbol = $3
		      AND transaction_type = $4 AND quantity > 0
	`, ownerID, models.AssetTypeStock, symbol, models.TransactionTypeBuy).Scan(&owned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to derive owned quantity: %w", err)
	}
	return owned, nil
}

// FirstBuyLot returns the oldest buy lot of a stock symbol that still holds
// quantity, skipping excludeID, locked for update. Must be called inside a
// transaction. Returns pgx.ErrNoRows when no lot remains.
func (r *InvestmentRepository) FirstBuyLot(ctx context.Context, ownerID int64, symbol string, excludeID int) (*models.Investment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+investmentColumns+`
		FROM investments
		WHERE owner_id = $1 AND asset_type = $2 AND symbol = $3
		      AND transaction_type = $4 AND quantity > 0 AND id <> $5
		ORDER BY occurred_on ASC, id ASC
		LIMIT 1
		FOR UPDATE
	`, ownerID, models.AssetTypeStock, symbol, models.TransactionTypeBuy, excludeID)
	inv, err := scanInvestment(row)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// DecrementQuantity reduces a lot's recorded quantity.
func (r *InvestmentRepository) DecrementQuantity(ctx context.Context, id int, by decimal.Decimal) error {
	_, err := r.db.Exec(ctx, `
		UPDATE investments SET quantity = quantity - $2, updated_at = NOW() WHERE id = $1
	`, id, by)
	if err != nil {
		return fmt.Errorf("failed to decrement lot quantity: %w", err)
	}
	return nil
}

// Update writes back all mutable fields of an investment.
func (r *InvestmentRepository) Update(ctx context.Context, inv *models.Investment) error {
	var sipFrequency *string
	if inv.SIPFrequency != "" {
		sipFrequency = &inv.SIPFrequency
	}
	_, err := r.db.Exec(ctx, `
		UPDATE investments SET
			transaction_type = $2,
			quantity = $3,
			price = $4,
			current_price = $5,
			occurred_on = $6,
			sip_frequency = $7,
			sip_start_date = $8,
			sip_end_date = $9,
			is_sip_active = $10,
			next_due_date = $11,
			updated_at = NOW()
		WHERE id = $1
	`, inv.ID, inv.TransactionType, inv.Quantity, inv.Price, inv.CurrentPrice,
		inv.OccurredOn, sipFrequency, inv.SIPStartDate, inv.SIPEndDate,
		inv.IsSIPActive, inv.NextDueDate)
	if err != nil {
		return fmt.Errorf("failed to update investment: %w", err)
	}
	return nil
}

// Delete removes an investment by ID.
func (r *InvestmentRepository) Delete(ctx context.Context, id int) error {
	_, err := r.db.Exec(ctx, `DELETE FROM investments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete investment: %w", err)
	}
	return nil
}

// scanInvestment scans a single investment row.
func scanInvestment(row interface{ Scan(dest ...any) error }) (*models.Investment, error) {
	var inv models.Investment
	var sipFrequency *string
	err := row.Scan(
		&inv.ID, &inv.OwnerID, &inv.AssetType, &inv.TransactionType, &inv.Symbol, &inv.Name,
		&inv.Quantity, &inv.Price, &inv.CurrentPrice, &inv.IsManual, &inv.OccurredOn,
		&sipFrequency, &inv.SIPStartDate, &inv.SIPEndDate, &inv.IsSIPActive, &inv.NextDueDate,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if sipFrequency != nil {
		inv.SIPFrequency = *sipFrequency
	}
	return &inv, nil
}

// scanInvestments scans a result set of investment rows.
func scanInvestments(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
},
) ([]models.Investment, error) {
	var investments []models.Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan investment: %w", err)
		}
		investments = append(investments, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating investments: %w", err)
	}
	return investments, nil
}
