package handlers

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"finboard/internal/models"
	"finboard/internal/ui"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// loader fetches the data a widget template renders.
type loader func(ctx context.Context, user *models.User, q url.Values) (any, error)

var errUnknownWidget = errors.New("unknown widget")

type cardDef struct {
	title   string
	widgets []string
}

type pageDef struct {
	section ui.Section
	title   string
	cards   []cardDef
}

// clientOnly widgets are left out of the first render and fetched by the
// browser once the page has loaded.
var clientOnly = map[string]bool{
	"dashboard/trend": true,
}

var (
	dashboardPage = pageDef{section: ui.DashboardSection, title: "仪表盘", cards: []cardDef{
		{title: "本月概览", widgets: []string{"dashboard/overview"}},
		{title: "收支趋势", widgets: []string{"dashboard/trend"}},
		{title: "资产分布", widgets: []string{"dashboard/assets"}},
		{title: "最近交易", widgets: []string{"dashboard/recent"}},
	}}
	assetsPage = pageDef{section: ui.AssetsSection, title: "资产管理", cards: []cardDef{
		{title: "资产列表", widgets: []string{"assets/list"}},
	}}
	budgetPage = pageDef{section: ui.BudgetSection, title: "预算管理", cards: []cardDef{
		{title: "月度预算", widgets: []string{"budget/list"}},
	}}
	goalPage = pageDef{section: ui.GoalSection, title: "目标管理", cards: []cardDef{
		{title: "储蓄目标", widgets: []string{"goal/list"}},
	}}
	transactionListPage = pageDef{section: ui.TransactionSection, title: "交易列表", cards: []cardDef{
		{title: "交易记录", widgets: []string{"transaction/list"}},
		{title: "分类统计", widgets: []string{"transaction/stats"}},
	}}
	categoryPage = pageDef{section: ui.TransactionSection, title: "分类管理", cards: []cardDef{
		{widgets: []string{"transaction/category"}},
	}}
	recurringPage = pageDef{section: ui.TransactionSection, title: "周期交易", cards: []cardDef{
		{widgets: []string{"transaction/recurring"}},
	}}
	productsPage = pageDef{section: ui.InvestmentSection, title: "投资产品", cards: []cardDef{
		{title: "持仓", widgets: []string{"investment/products"}},
	}}
	alertsPage = pageDef{section: ui.InvestmentSection, title: "风险预警", cards: []cardDef{
		{widgets: []string{"investment/alerts"}},
	}}
	dividendsPage = pageDef{section: ui.InvestmentSection, title: "分红记录", cards: []cardDef{
		{widgets: []string{"investment/dividends"}},
	}}
	tradesPage = pageDef{section: ui.InvestmentSection, title: "交易记录", cards: []cardDef{
		{widgets: []string{"investment/trades"}},
	}}
)

func widgetID(key string) string {
	return "w-" + strings.ReplaceAll(key, "/", "-")
}

func widgetSrc(key string, q url.Values) string {
	src := "/widgets/" + key
	if enc := q.Encode(); enc != "" {
		src += "?" + enc
	}
	return src
}

// page renders a section page. Its widgets load concurrently; those not
// ready within the suspense wait are fetched by the browser afterwards.
func (h *Handlers) page(def pageDef) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := GetUserFromContext(r)
		q := r.URL.Query()

		var widgets []ui.Widget
		for _, c := range def.cards {
			for _, key := range c.widgets {
				widgets = append(widgets, h.widget(key, user, q))
			}
		}
		slots := ui.Suspend(r.Context(), h.suspenseWait, widgets...)

		cards := make([]ui.Card, len(def.cards))
		i := 0
		for n, c := range def.cards {
			cards[n] = ui.Card{Title: c.title, Slots: slots[i : i+len(c.widgets)]}
			i += len(c.widgets)
		}
		for _, s := range slots {
			if s.Failed() {
				logrus.WithFields(logrus.Fields{"widget": s.ID, "error": s.Err}).Error("widget failed")
			}
		}

		h.renderer.Page(w, r, http.StatusOK, ui.LayoutMain, "section", ui.Page{
			Title:   def.title,
			Section: def.section,
			User:    user,
			Cards:   cards,
		})
	}
}

func (h *Handlers) widget(key string, user *models.User, q url.Values) ui.Widget {
	src := widgetSrc(key, q)
	if clientOnly[key] {
		gate := ui.NewClientOnly(widgetID(key)+"-mount", src)
		return ui.Widget{
			ID:  widgetID(key) + "-client",
			Src: src,
			Load: func(context.Context) (template.HTML, error) {
				return gate.Render(""), nil
			},
		}
	}
	return ui.Widget{
		ID:  widgetID(key),
		Src: src,
		Load: func(ctx context.Context) (template.HTML, error) {
			return h.renderWidget(ctx, key, user, q)
		},
	}
}

func (h *Handlers) renderWidget(ctx context.Context, key string, user *models.User, q url.Values) (template.HTML, error) {
	load, ok := h.widgets[key]
	if !ok {
		return "", fmt.Errorf("%s: %w", key, errUnknownWidget)
	}
	data, err := load(ctx, user, q)
	if err != nil {
		return "", fmt.Errorf("load %s: %w", key, err)
	}
	return h.renderer.Widget(key, data)
}

// Widget serves one widget on its own, the fragment a pending slot or a
// client-only mount point fetches.
func (h *Handlers) Widget(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "section") + "/" + chi.URLParam(r, "name")
	if _, ok := h.widgets[key]; !ok {
		h.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	html, err := h.renderWidget(r.Context(), key, GetUserFromContext(r), q)
	if err != nil {
		logrus.WithError(err).WithField("widget", key).Error("widget failed")
	}
	h.renderer.Slot(w, ui.Resolved(widgetID(key), widgetSrc(key, q), html, err))
}

// redirectTo answers with a plain redirect, used for section index routes.
func redirectTo(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, path, http.StatusFound)
	}
}
