package handlers

import (
	"context"
	"net/url"
	"time"

	"finboard/internal/models"
	"finboard/internal/storage"
)

// StatsCategoryItem represents a category with its spending statistics.
type StatsCategoryItem struct {
	Category   string
	Total      float64
	Count      int
	Percentage float64
}

// StatsView is the month-by-category breakdown of expenses.
type StatsView struct {
	Month      string
	Total      float64
	Categories []StatsCategoryItem
	PrevMonth  string
	NextMonth  string
	IsCurrent  bool
}

func (h *Handlers) statisticsWidget(ctx context.Context, user *models.User, q url.Values) (any, error) {
	month := h.monthParam(q)
	from, to, err := storage.MonthRange(month, time.Local)
	if err != nil {
		return nil, err
	}

	totals, err := h.db.ExpenseByCategory(ctx, user.ID, from, to)
	if err != nil {
		return nil, err
	}

	var total float64
	for _, ct := range totals {
		total += ct.Total
	}
	items := make([]StatsCategoryItem, 0, len(totals))
	for _, ct := range totals {
		name := ct.Category
		if name == "" {
			name = "未分类"
		}
		percentage := 0.0
		if total > 0 {
			percentage = ct.Total / total
		}
		items = append(items, StatsCategoryItem{
			Category:   name,
			Total:      ct.Total,
			Count:      ct.Count,
			Percentage: percentage,
		})
	}

	return StatsView{
		Month:      month,
		Total:      total,
		Categories: items,
		PrevMonth:  from.AddDate(0, -1, 0).Format(monthLayout),
		NextMonth:  from.AddDate(0, 1, 0).Format(monthLayout),
		IsCurrent:  month == h.now().Format(monthLayout),
	}, nil
}
