package handlers

import (
	"context"
	"net/url"
	"time"

	"finboard/internal/models"
	"finboard/internal/portfolio"
	"finboard/internal/storage"
)

const (
	trendMonths  = 6
	recentLimit  = 8
	tradesLimit  = 50
	dateLayout   = "2006-01-02"
	monthLayout  = "2006-01"
	maxAPIMonths = 24
)

func (h *Handlers) registry() map[string]loader {
	return map[string]loader{
		"dashboard/overview":    h.overviewWidget,
		"dashboard/trend":       h.trendWidget,
		"dashboard/assets":      h.distributionWidget,
		"dashboard/recent":      h.recentWidget,
		"assets/list":           h.assetsWidget,
		"budget/list":           h.budgetWidget,
		"goal/list":             h.goalWidget,
		"transaction/list":      h.transactionsWidget,
		"transaction/stats":     h.statisticsWidget,
		"transaction/category":  h.categoriesWidget,
		"transaction/recurring": h.recurringWidget,
		"investment/products":   h.productsWidget,
		"investment/alerts":     h.alertsWidget,
		"investment/dividends":  h.dividendsWidget,
		"investment/trades":     h.tradesWidget,
	}
}

// monthParam returns the month query parameter, or the current month when it
// is missing or malformed.
func (h *Handlers) monthParam(q url.Values) string {
	if m := q.Get("month"); m != "" {
		if _, _, err := storage.MonthRange(m, time.Local); err == nil {
			return m
		}
	}
	return h.now().Format(monthLayout)
}

func (h *Handlers) today() string {
	return h.now().Format(dateLayout)
}

func (h *Handlers) overviewWidget(ctx context.Context, user *models.User, _ url.Values) (any, error) {
	return h.board.Overview(ctx, user.ID)
}

type trendView struct {
	Months []models.TrendData
	Max    float64
}

func (h *Handlers) trendWidget(ctx context.Context, user *models.User, _ url.Values) (any, error) {
	months, err := h.board.Trend(ctx, user.ID, trendMonths)
	if err != nil {
		return nil, err
	}
	v := trendView{Months: months}
	for _, m := range months {
		v.Max = max(v.Max, m.Income, m.Expense)
	}
	return v, nil
}

func (h *Handlers) distributionWidget(ctx context.Context, user *models.User, _ url.Values) (any, error) {
	return h.board.Assets(ctx, user.ID)
}

func (h *Handlers) recentWidget(ctx context.Context, user *models.User, _ url.Values) (any, error) {
	return h.board.Recent(ctx, user.ID, recentLimit)
}

type assetsView struct {
	Assets []models.Asset
	Kinds  []models.AssetKind
}

func (h *Handlers) assetsWidget(ctx context.Context, user *models.User, _ url.Values) (any, error) {
	assets, err := h.db.ListAssets(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return assetsView{
		Assets: assets,
		Kinds:  []models.AssetKind{models.AssetBank, models.AssetCash, models.AssetProperty, models.AssetOther},
	}, nil
}

type budgetView struct {
	Month      string
	Budgets    []models.Budget
	Categories []models.Category
}

func (h *Handlers) budgetWidget(ctx context.Context, user *models.User, q url.Values) (any, error) {
	month := h.monthParam(q)
	budgets, err := h.db.ListBudgets(ctx, user.ID, month)
	if err != nil {
		return nil, err
	}
	categories, err := h.categoriesOf(ctx, user.ID, models.Expense)
	if err != nil {
		return nil, err
	}
	return budgetView{Month: month, Budgets: budgets, Categories: categories}, nil
}

// categoriesOf returns the user's categories of one type, or all of them
// when typ is empty.
func (h *Handlers) categoriesOf(ctx context.Context, userID int64, typ models.TransactionType) ([]models.Category, error) {
	all, err := h.db.ListCategories(ctx, userID)
	if err != nil || typ == "" {
		return all, err
	}
	out := all[:0]
	for _, c := range all {
		if c.Type == typ {
			out = append(out, c)
		}
	}
	return out, nil
}

func (h *Handlers) goalWidget(ctx context.Context, user *models.User, _ url.Values) (any, error) {
	return h.db.ListGoals(ctx, user.ID)
}

type transactionsView struct {
	Month      string
	Today      string
	Totals     storage.Totals
	Items      []models.Transaction
	Categories []models.Category
}

func (h *Handlers) transactionsWidget(ctx context.Context, user *models.User, q url.Values) (any, error) {
	month := h.monthParam(q)
	from, to, err := storage.MonthRange(month, time.Local)
	if err != nil {
		return nil, err
	}
	items, err := h.db.ListTransactions(ctx, user.ID, storage.TransactionFilter{From: from, To: to})
	if err != nil {
		return nil, err
	}
	totals, err := h.db.SumTransactions(ctx, user.ID, from, to)
	if err != nil {
		return nil, err
	}
	categories, err := h.db.ListCategories(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return transactionsView{
		Month:      month,
		Today:      h.today(),
		Totals:     totals,
		Items:      items,
		Categories: categories,
	}, nil
}

func (h *Handlers) categoriesWidget(ctx context.Context, user *models.User, _ url.Values) (any, error) {
	return h.db.ListCategories(ctx, user.ID)
}

type recurringView struct {
	Today       string
	Rules       []models.RecurringRule
	Categories  []models.Category
	Frequencies []models.Frequency
}

func (h *Handlers) recurringWidget(ctx context.Context, user *models.User, _ url.Values) (any, error) {
	rules, err := h.db.ListRecurringRules(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	categories, err := h.db.ListCategories(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return recurringView{
		Today:       h.today(),
		Rules:       rules,
		Categories:  categories,
		Frequencies: []models.Frequency{models.Monthly, models.Weekly, models.Daily, models.Yearly},
	}, nil
}

type productsView struct {
	Products []models.Product
	Summary  portfolio.Summary
	Kinds    []models.ProductKind
}

func (h *Handlers) productsWidget(ctx context.Context, user *models.User, _ url.Values) (any, error) {
	products, err := h.db.ListProducts(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return productsView{
		Products: products,
		Summary:  portfolio.Summarize(products),
		Kinds:    []models.ProductKind{models.ProductStock, models.ProductFund, models.ProductBond},
	}, nil
}

func (h *Handlers) alertsWidget(ctx context.Context, user *models.User, _ url.Values) (any, error) {
	return h.db.ListRiskAlerts(ctx, user.ID, false)
}

type dividendsView struct {
	Today     string
	Dividends []models.Dividend
	Products  []models.Product
}

func (h *Handlers) dividendsWidget(ctx context.Context, user *models.User, _ url.Values) (any, error) {
	dividends, err := h.db.ListDividends(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	products, err := h.db.ListProducts(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return dividendsView{Today: h.today(), Dividends: dividends, Products: products}, nil
}

type tradesView struct {
	Today    string
	Trades   []models.Trade
	Products []models.Product
}

func (h *Handlers) tradesWidget(ctx context.Context, user *models.User, _ url.Values) (any, error) {
	trades, err := h.db.ListTrades(ctx, user.ID, tradesLimit)
	if err != nil {
		return nil, err
	}
	products, err := h.db.ListProducts(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return tradesView{Today: h.today(), Trades: trades, Products: products}, nil
}
