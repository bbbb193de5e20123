// Package analytics computes read-only portfolio and cash-flow summaries.
// It never mutates wallets or investment rows.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/finance-tracker/internal/database"
	"gitlab.com/yelinaung/finance-tracker/internal/models"
	"gitlab.com/yelinaung/finance-tracker/internal/repository"
)

// ErrNoInvestments is returned when an owner has no buy rows to aggregate.
var ErrNoInvestments = errors.New("no investments found")

// TopPerformerCount is how many holdings the top performers view includes.
const TopPerformerCount = 5

// TimePoint is one step of the cumulative investment time series.
type TimePoint struct {
	Date         time.Time
	Invested     decimal.Decimal
	CurrentValue decimal.Decimal
}

// AssetAllocation is the current value held in one asset type.
type AssetAllocation struct {
	AssetType    string
	CurrentValue decimal.Decimal
}

// Performer projects a holding's return for ranking.
type Performer struct {
	Name              string
	Symbol            string
	ReturnsPercentage float64
}

// PortfolioSummary is a point-in-time view over an owner's buy rows.
type PortfolioSummary struct {
	TotalInvested     decimal.Decimal
	CurrentValue      decimal.Decimal
	ReturnsAbsolute   decimal.Decimal
	ReturnsPercentage float64
	Volatility        float64
	TimeSeries        []TimePoint
	AssetBreakdown    []AssetAllocation
	TopPerformers     []Performer
}

// Service aggregates investment and cash-flow history.
type Service struct {
	investments *repository.InvestmentRepository
	expenses    *repository.ExpenseRepository
	incomes     *repository.IncomeRepository
}

func New(db database.PGXDB) *Service {
	return &Service{
		investments: repository.NewInvestmentRepository(db),
		expenses:    repository.NewExpenseRepository(db),
		incomes:     repository.NewIncomeRepository(db),
	}
}

// Portfolio summarizes an owner's buy rows. Sell rows are excluded: a sell
// already reduced its lot's quantity when it was recorded.
func (s *Service) Portfolio(ctx context.Context, ownerID int64) (*PortfolioSummary, error) {
	rows, err := s.investments.GetBuysByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load investments: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoInvestments
	}
	return Summarize(rows), nil
}

// Summarize builds a PortfolioSummary from buy rows.
func Summarize(rows []models.Investment) *PortfolioSummary {
	summary := &PortfolioSummary{
		TimeSeries:     timeSeries(rows),
		AssetBreakdown: assetBreakdown(rows),
		TopPerformers:  topPerformers(rows),
	}

	for i := range rows {
		summary.TotalInvested = summary.TotalInvested.Add(rows[i].TotalInvested())
		summary.CurrentValue = summary.CurrentValue.Add(rows[i].CurrentValue())
	}
	summary.ReturnsAbsolute = summary.CurrentValue.Sub(summary.TotalInvested)
	if summary.TotalInvested.IsPositive() {
		summary.ReturnsPercentage, _ = summary.ReturnsAbsolute.
			Div(summary.TotalInvested).Mul(decimal.NewFromInt(100)).Float64()
	}
	summary.Volatility = volatility(rows)
	return summary
}

// timeSeries groups rows by transaction date and accumulates invested and
// current value in date order.
func timeSeries(rows []models.Investment) []TimePoint {
	byDate := make(map[time.Time]*TimePoint)
	for i := range rows {
		day := rows[i].OccurredOn
		point, ok := byDate[day]
		if !ok {
			point = &TimePoint{Date: day}
			byDate[day] = point
		}
		point.Invested = point.Invested.Add(rows[i].TotalInvested())
		point.CurrentValue = point.CurrentValue.Add(rows[i].CurrentValue())
	}

	series := make([]TimePoint, 0, len(byDate))
	for _, point := range byDate {
		series = append(series, *point)
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })

	for i := 1; i < len(series); i++ {
		series[i].Invested = series[i].Invested.Add(series[i-1].Invested)
		series[i].CurrentValue = series[i].CurrentValue.Add(series[i-1].CurrentValue)
	}
	return series
}

func assetBreakdown(rows []models.Investment) []AssetAllocation {
	byType := make(map[string]decimal.Decimal)
	for i := range rows {
		byType[rows[i].AssetType] = byType[rows[i].AssetType].Add(rows[i].CurrentValue())
	}

	breakdown := make([]AssetAllocation, 0, len(byType))
	for assetType, value := range byType {
		breakdown = append(breakdown, AssetAllocation{AssetType: assetType, CurrentValue: value})
	}
	sort.Slice(breakdown, func(i, j int) bool {
		return breakdown[i].AssetType < breakdown[j].AssetType
	})
	return breakdown
}

func topPerformers(rows []models.Investment) []Performer {
	performers := make([]Performer, 0, len(rows))
	for i := range rows {
		performers = append(performers, Performer{
			Name:              rows[i].Name,
			Symbol:            rows[i].Symbol,
			ReturnsPercentage: rows[i].ReturnsPercentage(),
		})
	}
	sort.SliceStable(performers, func(i, j int) bool {
		return performers[i].ReturnsPercentage > performers[j].ReturnsPercentage
	})
	if len(performers) > TopPerformerCount {
		performers = performers[:TopPerformerCount]
	}
	return performers
}

// volatility is the sample standard deviation of per-row return percentages.
// Zero when fewer than two rows exist, since a single sample has no spread.
func volatility(rows []models.Investment) float64 {
	if len(rows) < 2 {
		return 0
	}

	returns := make([]float64, len(rows))
	var sum float64
	for i := range rows {
		returns[i] = rows[i].ReturnsPercentage()
		sum += returns[i]
	}
	mean := sum / float64(len(returns))

	var squares float64
	for _, r := range returns {
		squares += (r - mean) * (r - mean)
	}
	return math.Sqrt(squares / float64(len(returns)-1))
}
