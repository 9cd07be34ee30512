package models

import "time"

// OverviewData holds the headline metrics of the dashboard.
type OverviewData struct {
	TotalAssets  float64 `json:"total_assets"`
	MonthIncome  float64 `json:"month_income"`
	MonthExpense float64 `json:"month_expense"`
	MonthBudget  float64 `json:"month_budget"`
	BudgetUsage  float64 `json:"budget_usage"`
}

// TrendData is the income and expense of one month.
type TrendData struct {
	Date    string  `json:"date"`
	Income  float64 `json:"income"`
	Expense float64 `json:"expense"`
}

// AssetData is a named value with its share of the total.
type AssetData struct {
	Name    string  `json:"name"`
	Value   float64 `json:"value"`
	Percent float64 `json:"percent"`
}

// TransactionItem is the flattened transaction shown in lists.
type TransactionItem struct {
	ID          int64           `json:"id"`
	Type        TransactionType `json:"type"`
	Amount      float64         `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Date        time.Time       `json:"date"`
}
