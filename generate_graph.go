//go:build ignore
// +build ignore

package main

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/finance-tracker/internal/analytics"
	"gitlab.com/yelinaung/finance-tracker/internal/report"
)

func main() {
	summary := &analytics.PortfolioSummary{
		AssetBreakdown: []analytics.AssetAllocation{
			{AssetType: "mutual_fund", CurrentValue: decimal.NewFromFloat(4200.00)},
			{AssetType: "sip", CurrentValue: decimal.NewFromFloat(1800.50)},
			{AssetType: "stock", CurrentValue: decimal.NewFromFloat(6350.25)},
		},
	}

	chartData, err := report.AllocationChart(summary, "Portfolio Allocation")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile("graph.png", chartData, 0600); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✓ Created graph.png - Example portfolio allocation chart")
}
