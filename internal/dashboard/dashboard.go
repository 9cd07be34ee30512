// Package dashboard aggregates a user's records into the figures shown on
// the dashboard and served by the JSON API.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"finboard/internal/models"
	"finboard/internal/portfolio"
	"finboard/internal/storage"

	"github.com/shopspring/decimal"
)

// Store is the data the dashboard reads.
type Store interface {
	ListAssets(ctx context.Context, userID int64) ([]models.Asset, error)
	ListProducts(ctx context.Context, userID int64) ([]models.Product, error)
	SumTransactions(ctx context.Context, userID int64, from, to time.Time) (storage.Totals, error)
	ListBudgets(ctx context.Context, userID int64, month string) ([]models.Budget, error)
	ListTransactions(ctx context.Context, userID int64, f storage.TransactionFilter) ([]models.Transaction, error)
}

// Service computes dashboard figures.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a Service reading from store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func round2(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// Overview returns the headline figures for the current month.
func (s *Service) Overview(ctx context.Context, userID int64) (models.OverviewData, error) {
	var out models.OverviewData

	assets, err := s.Assets(ctx, userID)
	if err != nil {
		return out, err
	}
	total := decimal.Zero
	for _, a := range assets {
		total = total.Add(decimal.NewFromFloat(a.Value))
	}

	start := monthStart(s.now())
	totals, err := s.store.SumTransactions(ctx, userID, start, start.AddDate(0, 1, 0))
	if err != nil {
		return out, fmt.Errorf("sum month: %w", err)
	}
	budgets, err := s.store.ListBudgets(ctx, userID, start.Format("2006-01"))
	if err != nil {
		return out, fmt.Errorf("list budgets: %w", err)
	}

	budget := decimal.Zero
	for _, b := range budgets {
		if b.CategoryID == nil {
			// an overall budget caps the month on its own
			budget = decimal.NewFromFloat(b.Amount)
			break
		}
		budget = budget.Add(decimal.NewFromFloat(b.Amount))
	}

	expense := decimal.NewFromFloat(totals.Expense)
	out = models.OverviewData{
		TotalAssets:  round2(total),
		MonthIncome:  round2(decimal.NewFromFloat(totals.Income)),
		MonthExpense: round2(expense),
		MonthBudget:  round2(budget),
	}
	if budget.IsPositive() {
		out.BudgetUsage = expense.Div(budget).Round(4).InexactFloat64()
	}
	return out, nil
}

// Trend returns income and expense for the last months months, oldest
// first, including the current month. Months without records are zero.
func (s *Service) Trend(ctx context.Context, userID int64, months int) ([]models.TrendData, error) {
	if months <= 0 {
		return nil, nil
	}
	end := monthStart(s.now()).AddDate(0, 1, 0)
	start := end.AddDate(0, -months, 0)

	txs, err := s.store.ListTransactions(ctx, userID, storage.TransactionFilter{From: start, To: end})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	type bucket struct{ income, expense decimal.Decimal }
	buckets := make(map[string]*bucket, months)
	out := make([]models.TrendData, months)
	for i := 0; i < months; i++ {
		key := start.AddDate(0, i, 0).Format("2006-01")
		out[i].Date = key
		buckets[key] = &bucket{}
	}
	loc := start.Location()
	for _, t := range txs {
		b, ok := buckets[t.Date.In(loc).Format("2006-01")]
		if !ok {
			continue
		}
		amount := decimal.NewFromFloat(t.Amount)
		if t.Type == models.Income {
			b.income = b.income.Add(amount)
		} else {
			b.expense = b.expense.Add(amount)
		}
	}
	for i := range out {
		b := buckets[out[i].Date]
		out[i].Income = round2(b.income)
		out[i].Expense = round2(b.expense)
	}
	return out, nil
}

// Assets returns the user's manual assets plus the portfolio's market value
// as named values with their share of the total, in percent.
func (s *Service) Assets(ctx context.Context, userID int64) ([]models.AssetData, error) {
	assets, err := s.store.ListAssets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	products, err := s.store.ListProducts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	out := make([]models.AssetData, 0, len(assets)+1)
	for _, a := range assets {
		out = append(out, models.AssetData{Name: a.Name, Value: a.Value})
	}
	if sum := portfolio.Summarize(products); sum.MarketValue > 0 {
		out = append(out, models.AssetData{Name: "投资组合", Value: sum.MarketValue})
	}
	return Shares(out), nil
}

// Shares fills in Percent so the shares sum to 100, putting any rounding
// remainder on the largest item. A zero total leaves every share at 0.
func Shares(items []models.AssetData) []models.AssetData {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(decimal.NewFromFloat(it.Value))
	}
	if !total.IsPositive() {
		for i := range items {
			items[i].Percent = 0
		}
		return items
	}

	hundred := decimal.NewFromInt(100)
	sum := decimal.Zero
	largest := 0
	for i, it := range items {
		p := decimal.NewFromFloat(it.Value).Div(total).Mul(hundred).Round(2)
		items[i].Percent = p.InexactFloat64()
		sum = sum.Add(p)
		if it.Value > items[largest].Value {
			largest = i
		}
	}
	if diff := hundred.Sub(sum); !diff.IsZero() {
		items[largest].Percent = decimal.NewFromFloat(items[largest].Percent).Add(diff).InexactFloat64()
	}
	return items
}

// Recent returns the user's latest transactions.
func (s *Service) Recent(ctx context.Context, userID int64, limit int) ([]models.TransactionItem, error) {
	txs, err := s.store.ListTransactions(ctx, userID, storage.TransactionFilter{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	out := make([]models.TransactionItem, 0, len(txs))
	for _, t := range txs {
		out = append(out, t.Item())
	}
	return out, nil
}
