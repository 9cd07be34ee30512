package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"finboard/internal/models"
	"finboard/internal/portfolio"
	"finboard/internal/storage"
	"finboard/internal/ui"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

var errBadForm = errors.New("malformed form")

// userMessages are the notices shown for errors a user can fix.
var userMessages = []struct {
	err error
	msg string
}{
	{errBadForm, "表单格式错误"},
	{models.ErrInvalidAmount, "金额必须大于 0"},
	{models.ErrInvalidType, "请选择收入或支出"},
	{models.ErrInvalidFrequency, "请选择有效的频率"},
	{models.ErrEmptyName, "名称不能为空"},
	{storage.ErrNotFound, "记录不存在"},
	{storage.ErrDuplicate, "记录已存在"},
	{storage.ErrInvalidMonth, "月份格式无效"},
	{portfolio.ErrInsufficientHolding, "持仓数量不足"},
	{portfolio.ErrInvalidTrade, "交易参数无效"},
}

func userMessage(err error) (string, bool) {
	for _, m := range userMessages {
		if errors.Is(err, m.err) {
			return m.msg, true
		}
	}
	return "", false
}

// done ends a form submission: notices move to the flash cookie and the
// browser is sent to path.
func done(w http.ResponseWriter, r *http.Request, path string) {
	ui.Flash(w, r)
	if isHTMX(r) {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

func success(w http.ResponseWriter, r *http.Request, path, msg string) {
	ui.Notify(r.Context(), ui.Success, msg)
	done(w, r, path)
}

// fail reports err to the user and returns to path, or answers 500 for
// errors the user cannot fix.
func fail(w http.ResponseWriter, r *http.Request, path string, err error) {
	msg, ok := userMessage(err)
	if !ok {
		logrus.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	ui.Notify(r.Context(), ui.Error, msg)
	done(w, r, path)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadForm
	}
	return id, nil
}

// form reads a submitted form. Field errors are collected so handlers can
// parse every field and check once.
type form struct {
	r   *http.Request
	err error
}

func parseForm(r *http.Request) (*form, error) {
	if err := r.ParseForm(); err != nil {
		return nil, errBadForm
	}
	return &form{r: r}, nil
}

func (f *form) text(name string) string {
	return strings.TrimSpace(f.r.PostFormValue(name))
}

func (f *form) float(name string) float64 {
	s := f.text(name)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		f.err = fmt.Errorf("%s: %w", name, errBadForm)
	}
	return v
}

func (f *form) id(name string) int64 {
	v, err := strconv.ParseInt(f.text(name), 10, 64)
	if err != nil {
		f.err = fmt.Errorf("%s: %w", name, errBadForm)
	}
	return v
}

// optionalID returns nil for an empty field.
func (f *form) optionalID(name string) *int64 {
	if f.text(name) == "" {
		return nil
	}
	v := f.id(name)
	return &v
}

// date parses a 2006-01-02 field in local time; empty yields the zero time.
func (f *form) date(name string) time.Time {
	s := f.text(name)
	if s == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		f.err = fmt.Errorf("%s: %w", name, errBadForm)
	}
	return t
}

// stamp is date with today's date meaning now, so same-day records keep
// their order.
func (f *form) stamp(name string, now time.Time) time.Time {
	t := f.date(name)
	if t.IsZero() || t.Format(dateLayout) == now.Format(dateLayout) {
		return now
	}
	return t
}

func monthPath(path, month string) string {
	if month == "" {
		return path
	}
	return path + "?" + url.Values{"month": {month}}.Encode()
}

// CreateTransaction records a transaction from the list page.
func (h *Handlers) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	const back = "/transaction/list"
	f, err := parseForm(r)
	if err != nil {
		fail(w, r, back, err)
		return
	}
	t := &models.Transaction{
		UserID:      GetUserFromContext(r).ID,
		Type:        models.TransactionType(f.text("type")),
		Amount:      f.float("amount"),
		CategoryID:  f.optionalID("category_id"),
		Description: f.text("description"),
		Date:        f.stamp("date", h.now()),
	}
	if f.err != nil {
		fail(w, r, back, f.err)
		return
	}
	if err := h.db.CreateTransaction(r.Context(), t); err != nil {
		fail(w, r, back, err)
		return
	}
	success(w, r, monthPath(back, t.Date.Local().Format(monthLayout)), "交易已记录")
}

// DeleteTransaction removes a transaction.
func (h *Handlers) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	const back = "/transaction/list"
	id, err := pathID(r)
	if err == nil {
		err = h.db.DeleteTransaction(r.Context(), GetUserFromContext(r).ID, id)
	}
	if err != nil {
		fail(w, r, back, err)
		return
	}
	success(w, r, back, "交易已删除")
}

// CreateCategory adds a category.
func (h *Handlers) CreateCategory(w http.ResponseWriter, r *http.Request) {
	const back = "/transaction/category"
	f, err := parseForm(r)
	if err != nil {
		fail(w, r, back, err)
		return
	}
	c := &models.Category{
		UserID: GetUserFromContext(r).ID,
		Name:   f.text("name"),
		Type:   models.TransactionType(f.text("type")),
		Icon:   f.text("icon"),
		Color:  f.text("color"),
	}
	if err := h.db.CreateCategory(r.Context(), c); err != nil {
		fail(w, r, back, err)
		return
	}
	success(w, r, back, "分类已添加")
}

// DeleteCategory removes a category.
func (h *Handlers) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	const back = "/transaction/category"
	id, err := pathID(r)
	if err == nil {
		err = h.db.DeleteCategory(r.Context(), GetUserFromContext(r).ID, id)
	}
	if err != nil {
		fail(w, r, back, err)
		return
	}
	success(w, r, back, "分类已删除")
}

// CreateRecurring adds a recurring rule and books any occurrence already due.
func (h *Handlers) CreateRecurring(w http.ResponseWriter, r *http.Request) {
	const back = "/transaction/recurring"
	f, err := parseForm(r)
	if err != nil {
		fail(w, r, back, err)
		return
	}
	rule := &models.RecurringRule{
		UserID:      GetUserFromContext(r).ID,
		Type:        models.TransactionType(f.text("type")),
		Amount:      f.float("amount"),
		CategoryID:  f.optionalID("category_id"),
		Description: f.text("description"),
		Frequency:   models.Frequency(f.text("frequency")),
		StartDate:   f.date("start_date"),
	}
	if end := f.date("end_date"); !end.IsZero() {
		rule.EndDate = &end
	}
	if f.err != nil {
		fail(w, r, back, f.err)
		return
	}
	if rule.StartDate.IsZero() {
		rule.StartDate = startOfDay(h.now())
	}
	if err := h.db.CreateRecurringRule(r.Context(), rule); err != nil {
		fail(w, r, back, err)
		return
	}
	h.bookRecurring(r.Context())
	success(w, r, back, "周期交易已添加")
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func (h *Handlers) bookRecurring(ctx context.Context) {
	n, err := h.booker.Run(ctx)
	if err != nil {
		logrus.WithError(err).Error("recurring booking failed")
		return
	}
	if n > 0 {
		logrus.WithField("booked", n).Info("recurring transactions booked")
	}
}

// ToggleRecurring pauses or resumes a rule.
func (h *Handlers) ToggleRecurring(w http.ResponseWriter, r *http.Request) {
	const back = "/transaction/recurring"
	id, err := pathID(r)
	if err != nil {
		fail(w, r, back, err)
		return
	}
	active := r.PostFormValue("active") == "1"
	if err := h.db.SetRecurringActive(r.Context(), GetUserFromContext(r).ID, id, active); err != nil {
		fail(w, r, back, err)
		return
	}
	msg := "周期交易已暂停"
	if active {
		msg = "周期交易已恢复"
	}
	success(w, r, back, msg)
}

// CreateAsset adds a manually valued asset.
func (h *Handlers) CreateAsset(w http.ResponseWriter, r *http.Request) {
	const back = "/assets"
	f, err := parseForm(r)
	if err != nil {
		fail(w, r, back, err)
		return
	}
	a := &models.Asset{
		UserID: GetUserFromContext(r).ID,
		Name:   f.text("name"),
		Kind:   models.AssetKind(f.text("kind")),
		Value:  f.float("value"),
	}
	if f.err != nil {
		fail(w, r, back, f.err)
		return
	}
	if err := h.db.CreateAsset(r.Context(), a); err != nil {
		fail(w, r, back, err)
		return
	}
	success(w, r, back, "资产已添加")
}

// UpdateAssetValue revalues an asset.
func (h *Handlers) UpdateAssetValue(w http.ResponseWriter, r *http.Request) {
	const back = "/assets"
	id, err := pathID(r)
	if err != nil {
		fail(w, r, back, err)
		return
	}
	f, err := parseForm(r)
	if err != nil {
		fail(w, r, back, err)
		return
	}
	value := f.float("value")
	if f.err != nil {
		fail(w, r, back, f.err)
		return
	}
	if err := h.db.UpdateAssetValue(r.Context(), GetUserFromContext(r).ID, id, value); err != nil {
		fail(w, r, back, err)
		return
	}
	success(w, r, back, "资产已更新")
}

// DeleteAsset removes an asset.
func (h *Handlers) DeleteAsset(w http.ResponseWriter, r *http.Request) {
	const back = "/assets"
	id, err := pathID(r)
	if err == nil {
		err = h.db.DeleteAsset(r.Context(), GetUserFromContext(r).ID, id)
	}
	if err != nil {
		fail(w, r, back, err)
		return
	}
	success(w, r, back, "资产已删除")
}

// SetBudget creates or replaces a monthly budget.
func (h *Handlers) SetBudget(w http.ResponseWriter, r *http.Request) {
	f, err := parseForm(r)
	if err != nil {
		fail(w, r, "/budget", err)
		return
	}
	b := &models.Budget{
		UserID:     GetUserFromContext(r).ID,
		CategoryID: f.optionalID("category_id"),
		Month:      f.text("month"),
		Amount:     f.float("amount"),
	}
	back := monthPath("/budget", b.Month)
	if f.err != nil {
		fail(w, r, back, f.err)
		return
	}
	if err := h.db.SetBudget(r.Context(), b); err != nil {
		fail(w, r, "/budget", err)
		return
	}
	success(w, r, back, "预算已保存")
}

// DeleteBudget removes a budget.
func (h *Handlers) DeleteBudget(w http.ResponseWriter, r *http.Request) {
	back := monthPath("/budget", r.PostFormValue("month"))
	id, err := pathID(r)
	if err == nil {
		err = h.db.DeleteBudget(r.Context(), GetUserFromContext(r).ID, id)
	}
	if err != nil {
		fail(w, r, back, err)
		return
	}
	success(w, r, back, "预算已删除")
}

// CreateGoal adds a savings goal.
func (h *Handlers) CreateGoal(w http.ResponseWriter, r *http.Request) {
	const back = "/goal"
	f, err := parseForm(r)
	if err != nil {
		fail(w, r, back, err)
		return
	}
	g := &models.Goal{
		UserID: GetUserFromContext(r).ID,
		Name:   f.text("name"),
		Target: f.float("target"),
	}
	if d := f.date("deadline"); !d.IsZero() {
		g.Deadline = &d
	}
	if f.err != nil {
		fail(w, r, back, f.err)
		return
	}
	if err := h.db.CreateGoal(r.Context(), g); err != nil {
		fail(w, r, back, err)
		return
	}
	success(w, r, back, "目标已创建")
}

// ContributeGoal adds savings to a goal.
func (h *Handlers) ContributeGoal(w http.ResponseWriter, r *http.Request) {
	const back = "/goal"
	id, err := pathID(r)
	if err != nil {
		fail(w, r, back, err)
		return
	}
	f, err := parseForm(r)
	if err != nil {
		fail(w, r, back, err)
		return
	}
	amount := f.float("amount")
	if f.err != nil {
		fail(w, r, back, f.err)
		return
	}
	g, err := h.db.ContributeGoal(r.Context(), GetUserFromContext(r).ID, id, amount)
	if err != nil {
		fail(w, r, back, err)
		return
	}
	if g.Done() {
		success(w, r, back, fmt.Sprintf("恭喜！目标「%s」已达成", g.Name))
		return
	}
	success(w, r, back, "已存入")
}

// CreateProduct adds a product to the portfolio.
func (h *Handlers) CreateProduct(w http.ResponseWriter, r *http.Request) {
	const back = "/investment/portfolio/products"
	f, err := parseForm(r)
	if err != nil {
		fail(w, r, back, err)
		return
	}
	p := &models.Product{
		UserID: GetUserFromContext(r).ID,
		Symbol: f.text("symbol"),
		Name:   f.text("name"),
		Kind:   models.ProductKind(f.text("kind")),
		Price:  f.float("price"),
	}
	if f.err != nil {
		fail(w, r, back, f.err)
		return
	}
	if err := h.db.CreateProduct(r.Context(), p); err != nil {
		fail(w, r, back, err)
		return
	}
	success(w, r, back, "产品已添加")
}

// UpdateProductPrice records a new price and re-evaluates risk.
func (h *Handlers) UpdateProductPrice(w http.ResponseWriter, r *http.Request) {
	const back = "/investment/portfolio/products"
	id, err := pathID(r)
	if err != nil {
		fail(w, r, back, err)
		return
	}
	f, err := parseForm(r)
	if err != nil {
		fail(w, r, back, err)
		return
	}
	price := f.float("price")
	if f.err != nil {
		fail(w, r, back, f.err)
		return
	}
	user := GetUserFromContext(r)
	if err := h.db.UpdateProductPrice(r.Context(), user.ID, id, price); err != nil {
		fail(w, r, back, err)
		return
	}
	h.evaluateRisk(r.Context(), user.ID)
	success(w, r, back, "价格已更新")
}

// RecordTrade applies a buy or sell and re-evaluates risk.
func (h *Handlers) RecordTrade(w http.ResponseWriter, r *http.Request) {
	const back = "/investment/transactions/trades"
	f, err := parseForm(r)
	if err != nil {
		fail(w, r, back, err)
		return
	}
	user := GetUserFromContext(r)
	t := &models.Trade{
		UserID:    user.ID,
		ProductID: f.id("product_id"),
		Side:      models.TradeSide(f.text("side")),
		Quantity:  f.float("quantity"),
		Price:     f.float("price"),
		Fee:       f.float("fee"),
		TradedAt:  f.stamp("traded_at", h.now()),
	}
	if f.err != nil {
		fail(w, r, back, f.err)
		return
	}
	if _, err := h.db.RecordTrade(r.Context(), t); err != nil {
		fail(w, r, back, err)
		return
	}
	h.evaluateRisk(r.Context(), user.ID)
	success(w, r, back, "交易已记录")
}

// RecordDividend stores a payout.
func (h *Handlers) RecordDividend(w http.ResponseWriter, r *http.Request) {
	const back = "/investment/transactions/dividends"
	f, err := parseForm(r)
	if err != nil {
		fail(w, r, back, err)
		return
	}
	d := &models.Dividend{
		UserID:    GetUserFromContext(r).ID,
		ProductID: f.id("product_id"),
		Amount:    f.float("amount"),
		PaidAt:    f.stamp("paid_at", h.now()),
	}
	if f.err != nil {
		fail(w, r, back, f.err)
		return
	}
	if err := h.db.RecordDividend(r.Context(), d); err != nil {
		fail(w, r, back, err)
		return
	}
	success(w, r, back, "分红已记录")
}

// AcknowledgeAlert marks a risk alert as handled.
func (h *Handlers) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	const back = "/investment/risk/alerts"
	id, err := pathID(r)
	if err == nil {
		err = h.db.AcknowledgeRiskAlert(r.Context(), GetUserFromContext(r).ID, id)
	}
	if err != nil {
		fail(w, r, back, err)
		return
	}
	success(w, r, back, "预警已确认")
}

// evaluateRisk stores the alerts raised by the user's current holdings. A
// failure is logged; the change that triggered it already succeeded.
func (h *Handlers) evaluateRisk(ctx context.Context, userID int64) {
	products, err := h.db.ListProducts(ctx, userID)
	if err != nil {
		logrus.WithError(err).WithField("user", userID).Error("risk evaluation failed")
		return
	}
	n, err := h.db.AddRiskAlerts(ctx, portfolio.Evaluate(products, h.thresholds))
	if err != nil {
		logrus.WithError(err).WithField("user", userID).Error("storing risk alerts failed")
		return
	}
	if n > 0 {
		ui.Notify(ctx, ui.Warning, fmt.Sprintf("新增 %d 条风险预警", n))
	}
}
