package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MonthlyReport summarizes one calendar month of cash flow.
type MonthlyReport struct {
	Month              time.Time
	TotalIncome        decimal.Decimal
	TotalExpense       decimal.Decimal
	NetSavings         decimal.Decimal
	SavingsRate        float64
	TopExpenseCategory string
	ExpenseByCategory  map[string]decimal.Decimal
}

// MonthlySummary aggregates an owner's income and expenses for the month
// containing the given date. Months with no activity produce a zero report.
func (s *Service) MonthlySummary(ctx context.Context, ownerID int64, month time.Time) (*MonthlyReport, error) {
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	totalIncome, err := s.incomes.GetTotalByOwnerIDAndDateRange(ctx, ownerID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to total incomes: %w", err)
	}

	expenses, err := s.expenses.GetByOwnerIDAndDateRange(ctx, ownerID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load expenses: %w", err)
	}

	report := &MonthlyReport{
		Month:             start,
		TotalIncome:       totalIncome,
		ExpenseByCategory: make(map[string]decimal.Decimal),
	}
	for i := range expenses {
		report.TotalExpense = report.TotalExpense.Add(expenses[i].Amount)
		category := expenses[i].Category
		report.ExpenseByCategory[category] = report.ExpenseByCategory[category].Add(expenses[i].Amount)
	}

	report.NetSavings = report.TotalIncome.Sub(report.TotalExpense)
	if report.TotalIncome.IsPositive() {
		report.SavingsRate, _ = report.NetSavings.
			Div(report.TotalIncome).Mul(decimal.NewFromInt(100)).Float64()
	}

	var top decimal.Decimal
	for category, amount := range report.ExpenseByCategory {
		if amount.GreaterThan(top) ||
			(amount.Equal(top) && (report.TopExpenseCategory == "" || category < report.TopExpenseCategory)) {
			top = amount
			report.TopExpenseCategory = category
		}
	}
	return report, nil
}
