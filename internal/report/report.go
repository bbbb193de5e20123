// Package report renders portfolio and cash-flow summaries as PNG charts.
package report

import (
	"fmt"

	"github.com/go-analyze/charts"
	"gitlab.com/yelinaung/finance-tracker/internal/analytics"
	"gitlab.com/yelinaung/finance-tracker/internal/models"
)

// AllocationChart creates a pie chart of current value by asset type.
// Returns PNG image as bytes.
func AllocationChart(summary *analytics.PortfolioSummary, title string) ([]byte, error) {
	if len(summary.AssetBreakdown) == 0 {
		return nil, fmt.Errorf("no holdings to chart")
	}

	var values []float64
	var labels []string
	for _, allocation := range summary.AssetBreakdown {
		labels = append(labels, allocation.AssetType)
		values = append(values, allocation.CurrentValue.InexactFloat64())
	}

	p, err := charts.PieRender(
		values,
		charts.TitleOptionFunc(charts.TitleOption{Text: title}),
		charts.LegendLabelsOptionFunc(labels),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chart: %w", err)
	}

	buf, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	return buf, nil
}

// ExpenseCategoryChart creates a pie chart of spending by category.
// Returns PNG image as bytes.
func ExpenseCategoryChart(expenses []models.Expense, title string) ([]byte, error) {
	if len(expenses) == 0 {
		return nil, fmt.Errorf("no expenses to chart")
	}

	totals := make(map[string]float64)
	for i := range expenses {
		category := expenses[i].Category
		if category == "" {
			category = "Uncategorized"
		}
		totals[category] += expenses[i].Amount.InexactFloat64()
	}

	var values []float64
	var labels []string
	for category, total := range totals {
		labels = append(labels, category)
		values = append(values, total)
	}

	p, err := charts.PieRender(
		values,
		charts.TitleOptionFunc(charts.TitleOption{Text: title}),
		charts.LegendLabelsOptionFunc(labels),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chart: %w", err)
	}

	buf, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	return buf, nil
}

// CashFlowChart creates a bar chart comparing income and expenses per month.
// The two series must be the same length as labels. Returns PNG image as bytes.
func CashFlowChart(labels []string, income, expense []float64, title string) ([]byte, error) {
	if len(labels) == 0 || len(income) != len(labels) || len(expense) != len(labels) {
		return nil, fmt.Errorf("mismatched cash flow series")
	}

	p, err := charts.BarRender(
		[][]float64{income, expense},
		charts.XAxisLabelsOptionFunc(labels),
		charts.TitleOptionFunc(charts.TitleOption{Text: title}),
		charts.LegendLabelsOptionFunc([]string{"Income", "Expenses"}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chart: %w", err)
	}

	buf, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	return buf, nil
}
