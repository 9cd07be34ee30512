package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"finboard/internal/auth"
	"finboard/internal/config"
	"finboard/internal/models"
	"finboard/internal/storage"
	"finboard/internal/ui"
	"finboard/web"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const (
	testUser     = "alice"
	testPassword = "secret123"
)

// appSuite serves the full router over a fresh in-memory database with one
// registered user.
type appSuite struct {
	suite.Suite
	ctx    context.Context
	db     *storage.DB
	h      *Handlers
	router http.Handler
	user   *models.User
}

func (s *appSuite) SetupTest() {
	db, err := storage.NewDB(":memory:")
	require.NoError(s.T(), err, "failed to create test database")
	s.db = db
	s.ctx = context.Background()

	provider := ui.NewProvider(config.DefaultSite())
	renderer, err := ui.NewRenderer(web.Templates(), provider)
	require.NoError(s.T(), err, "failed to parse templates")

	s.h = NewHandlers(db, renderer, config.Config{
		JWTSecret:    "test-secret",
		SessionTTL:   time.Hour,
		TokenTTL:     time.Hour,
		SuspenseWait: 5 * time.Second,
	})
	r := chi.NewRouter()
	r.Use(provider.Wrap)
	s.h.Routes(r, []string{"http://localhost:3000"})
	s.router = r

	hash, err := auth.HashPassword(testPassword)
	require.NoError(s.T(), err)
	s.user, err = db.CreateUser(s.ctx, models.User{Username: testUser, Nickname: "Alice", PasswordHash: hash})
	require.NoError(s.T(), err, "failed to create test user")
}

func (s *appSuite) TearDownTest() {
	if s.db != nil {
		s.db.Close()
	}
}

func (s *appSuite) do(method, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, http.NoBody)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func cookieNamed(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (s *appSuite) login(remember bool) *http.Cookie {
	form := url.Values{"username": {testUser}, "password": {testPassword}}
	if remember {
		form.Set("remember", "1")
	}
	w := s.do("POST", "/login", form)
	require.Equal(s.T(), http.StatusFound, w.Code, w.Body.String())
	c := cookieNamed(w, SessionCookieName)
	require.NotNil(s.T(), c, "login did not set a session cookie")
	return c
}

// follow performs the GET a browser makes after a form redirect, carrying
// the flash cookie along.
func (s *appSuite) follow(w *httptest.ResponseRecorder, session *http.Cookie) *httptest.ResponseRecorder {
	s.Require().Equal(http.StatusSeeOther, w.Code, w.Body.String())
	cookies := []*http.Cookie{session}
	if flash := cookieNamed(w, "flash"); flash != nil {
		cookies = append(cookies, flash)
	}
	return s.do("GET", w.Header().Get("Location"), nil, cookies...)
}

// AuthSuite covers login, registration and sessions.
type AuthSuite struct {
	appSuite
}

func TestAuthSuite(t *testing.T) {
	suite.Run(t, new(AuthSuite))
}

func (s *AuthSuite) TestLoginSessionCookie() {
	c := s.login(false)
	s.Equal(0, c.MaxAge, "without remember the cookie ends with the browser")
	s.True(c.HttpOnly)

	c = s.login(true)
	s.Equal(int(time.Hour.Seconds()), c.MaxAge, "remember keeps the cookie for the session lifetime")
}

func (s *AuthSuite) TestLoginRedirectsToDashboard() {
	w := s.do("POST", "/login", url.Values{"username": {testUser}, "password": {testPassword}})
	s.Equal(http.StatusFound, w.Code)
	s.Equal("/dashboard", w.Header().Get("Location"))
}

func (s *AuthSuite) TestLoginRejectsBadCredentials() {
	tests := []struct {
		name   string
		form   url.Values
		status int
		msg    string
	}{
		{"wrong password", url.Values{"username": {testUser}, "password": {"nope"}}, http.StatusUnauthorized, "用户名或密码错误"},
		{"unknown user", url.Values{"username": {"bob"}, "password": {"nope"}}, http.StatusUnauthorized, "用户名或密码错误"},
		{"missing fields", url.Values{"username": {testUser}}, http.StatusBadRequest, "请输入用户名和密码"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			w := s.do("POST", "/login", tt.form)
			s.Equal(tt.status, w.Code)
			s.Contains(w.Body.String(), tt.msg)
			s.Nil(cookieNamed(w, SessionCookieName))
		})
	}
}

func (s *AuthSuite) TestLoginPageSkipsValidSession() {
	w := s.do("GET", "/login", nil, s.login(false))
	s.Equal(http.StatusFound, w.Code)
	s.Equal("/dashboard", w.Header().Get("Location"))

	w = s.do("GET", "/login", nil, &http.Cookie{Name: SessionCookieName, Value: "stale"})
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "login-form")
}

func (s *AuthSuite) TestRegister() {
	form := url.Values{
		"username": {"bob"},
		"email":    {"bob@example.com"},
		"nickname": {"Bobby"},
		"password": {"hunter22"},
		"confirm":  {"hunter22"},
	}
	w := s.do("POST", "/register", form)
	s.Require().Equal(http.StatusFound, w.Code, w.Body.String())
	s.Equal("/dashboard", w.Header().Get("Location"))
	session := cookieNamed(w, SessionCookieName)
	s.Require().NotNil(session)

	user, err := s.db.GetUserByUsername(s.ctx, "bob")
	s.Require().NoError(err)
	s.Equal(models.RoleUser, user.Role)
	s.Equal("Bobby", user.DisplayName())

	page := s.do("GET", "/dashboard", nil, session, cookieNamed(w, "flash"))
	s.Equal(http.StatusOK, page.Code)
	s.Contains(page.Body.String(), "注册成功")
	s.Contains(page.Body.String(), "Bobby")
}

func (s *AuthSuite) TestRegisterValidation() {
	tests := []struct {
		name   string
		form   url.Values
		status int
		msg    string
	}{
		{"taken", url.Values{"username": {testUser}, "password": {"hunter22"}, "confirm": {"hunter22"}}, http.StatusConflict, "用户名已存在"},
		{"short password", url.Values{"username": {"carol"}, "password": {"abc"}, "confirm": {"abc"}}, http.StatusBadRequest, "密码至少 6 位"},
		{"mismatch", url.Values{"username": {"carol"}, "password": {"hunter22"}, "confirm": {"hunter23"}}, http.StatusBadRequest, "两次输入的密码不一致"},
		{"no username", url.Values{"password": {"hunter22"}, "confirm": {"hunter22"}}, http.StatusBadRequest, "请输入用户名"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			w := s.do("POST", "/register", tt.form)
			s.Equal(tt.status, w.Code)
			s.Contains(w.Body.String(), tt.msg)
		})
	}
}

func (s *AuthSuite) TestLogout() {
	session := s.login(false)

	w := s.do("POST", "/logout", nil, session)
	s.Equal(http.StatusFound, w.Code)
	s.Equal("/login", w.Header().Get("Location"))
	cleared := cookieNamed(w, SessionCookieName)
	s.Require().NotNil(cleared)
	s.Equal(-1, cleared.MaxAge)

	_, err := s.db.ValidateSession(s.ctx, session.Value)
	s.ErrorIs(err, storage.ErrNotFound)

	w = s.do("GET", "/dashboard", nil, session)
	s.Equal(http.StatusFound, w.Code)
	s.Equal("/login", w.Header().Get("Location"))
}

func (s *AuthSuite) TestProtectedPagesRequireSession() {
	w := s.do("GET", "/budget", nil)
	s.Equal(http.StatusFound, w.Code)
	s.Equal("/login", w.Header().Get("Location"))

	req := httptest.NewRequest("GET", "/budget", http.NoBody)
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("/login", rec.Header().Get("HX-Redirect"))
}

func (s *AuthSuite) TestInvalidSessionIsCleared() {
	w := s.do("GET", "/dashboard", nil, &http.Cookie{Name: SessionCookieName, Value: "forged"})
	s.Equal(http.StatusFound, w.Code)
	c := cookieNamed(w, SessionCookieName)
	s.Require().NotNil(c)
	s.Equal(-1, c.MaxAge)
}

func (s *AuthSuite) TestRollingRenewal() {
	session := s.login(true)

	w := s.do("GET", "/goal", nil, session)
	s.Equal(http.StatusOK, w.Code)
	s.Nil(cookieNamed(w, SessionCookieName), "a fresh session is not renewed")

	before, err := s.db.ValidateSessionWithInfo(s.ctx, session.Value)
	s.Require().NoError(err)

	// Past half the lifetime the session is extended and the cookie rewritten.
	s.h.now = func() time.Time { return time.Now().Add(40 * time.Minute) }
	w = s.do("GET", "/goal", nil, session)
	s.Equal(http.StatusOK, w.Code)
	renewed := cookieNamed(w, SessionCookieName)
	s.Require().NotNil(renewed)
	s.Equal(session.Value, renewed.Value)
	s.Equal(int(time.Hour.Seconds()), renewed.MaxAge, "a remembered session stays persistent")

	after, err := s.db.ValidateSessionWithInfo(s.ctx, session.Value)
	s.Require().NoError(err)
	s.True(after.ExpiresAt.After(before.ExpiresAt))
	s.True(after.Persistent)
}

// PageSuite covers the rendered pages and widget fragments.
type PageSuite struct {
	appSuite
	session *http.Cookie
}

func TestPageSuite(t *testing.T) {
	suite.Run(t, new(PageSuite))
}

func (s *PageSuite) SetupTest() {
	s.appSuite.SetupTest()
	s.session = s.login(false)
}

func (s *PageSuite) TestDashboard() {
	w := s.do("GET", "/dashboard", nil, s.session)
	s.Require().Equal(http.StatusOK, w.Code)
	body := w.Body.String()

	s.Contains(body, "stat-total-assets")
	s.Contains(body, "Alice")
	s.NotContains(body, "breadcrumb-item", "the dashboard has no breadcrumb")

	// The trend chart is only mounted after the page has loaded.
	s.Contains(body, `id="w-dashboard-trend-client"`)
	s.Contains(body, `id="w-dashboard-trend-mount"`)
	s.Contains(body, `hx-get="/widgets/dashboard/trend"`)
	s.NotContains(body, `class="trend"`)

	// every page load mounts again; the chart never renders inline
	again := s.do("GET", "/dashboard", nil, s.session).Body.String()
	s.Contains(again, `id="w-dashboard-trend-mount"`)
	s.NotContains(again, `class="trend"`)
}

func (s *PageSuite) TestSectionBreadcrumbs() {
	paths := map[string]string{
		"/assets":                            "资产管理",
		"/budget":                            "预算管理",
		"/goal":                              "目标管理",
		"/transaction/list":                  "交易管理",
		"/transaction/category":              "交易管理",
		"/transaction/recurring":             "交易管理",
		"/investment/portfolio/products":     "投资管理",
		"/investment/risk/alerts":            "投资管理",
		"/investment/transactions/dividends": "投资管理",
		"/investment/transactions/trades":    "投资管理",
	}
	for path, section := range paths {
		s.Run(path, func() {
			w := s.do("GET", path, nil, s.session)
			s.Require().Equal(http.StatusOK, w.Code)
			body := w.Body.String()
			s.Equal(2, strings.Count(body, `class="breadcrumb-item"`))
			start := strings.Index(body, `class="breadcrumb"`)
			s.Require().GreaterOrEqual(start, 0)
			trail := body[start:]
			home, sec := strings.Index(trail, "首页"), strings.Index(trail, section)
			s.GreaterOrEqual(home, 0)
			s.Less(home, sec)
			s.NotContains(body, "slot-error")
		})
	}
}

func (s *PageSuite) TestChildRoutesRenderTheirSection() {
	w := s.do("GET", "/assets/bank", nil, s.session)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "资产列表")

	w = s.do("GET", "/transaction", nil, s.session)
	s.Equal(http.StatusFound, w.Code)
	s.Equal("/transaction/list", w.Header().Get("Location"))
}

func (s *PageSuite) TestHTMXGetsMainBlockOnly() {
	req := httptest.NewRequest("GET", "/goal", http.NoBody)
	req.Header.Set("HX-Request", "true")
	req.AddCookie(s.session)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	s.Equal(http.StatusOK, w.Code)
	s.NotContains(w.Body.String(), "<html")
	s.Contains(w.Body.String(), "储蓄目标")
}

func (s *PageSuite) TestWidgetFragment() {
	w := s.do("GET", "/widgets/dashboard/trend", nil, s.session)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `id="w-dashboard-trend"`)
	s.Contains(w.Body.String(), `class="trend"`)

	w = s.do("GET", "/widgets/dashboard/nope", nil, s.session)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *PageSuite) TestStatisticsWidget() {
	categories, err := s.db.ListCategories(s.ctx, s.user.ID)
	s.Require().NoError(err)
	var food int64
	for _, c := range categories {
		if c.Name == "餐饮" {
			food = c.ID
		}
	}
	s.Require().NotZero(food)

	for _, t := range []models.Transaction{
		{Type: models.Expense, Amount: 30, CategoryID: &food},
		{Type: models.Expense, Amount: 10},
		{Type: models.Income, Amount: 900},
	} {
		t.UserID = s.user.ID
		s.Require().NoError(s.db.CreateTransaction(s.ctx, &t))
	}

	w := s.do("GET", "/widgets/transaction/stats", nil, s.session)
	s.Require().Equal(http.StatusOK, w.Code)
	body := w.Body.String()
	s.Contains(body, "餐饮")
	s.Contains(body, "未分类")
	s.Contains(body, "75.0%")
	s.Contains(body, "¥40.00")
	s.NotContains(body, "¥900.00", "income is not part of the breakdown")
	s.NotContains(body, "›</a>", "no link past the current month")

	w = s.do("GET", "/widgets/transaction/stats?month=2020-01", nil, s.session)
	s.Contains(w.Body.String(), "2020-02 ›")
	s.Contains(w.Body.String(), "暂无数据")
}

func (s *PageSuite) TestPendingWidgetFallsBackToFragment() {
	s.h.suspenseWait = 0
	w := s.do("GET", "/budget", nil, s.session)
	s.Require().Equal(http.StatusOK, w.Code)
	body := w.Body.String()
	// Depending on timing the widget is either inline or left for the browser.
	if strings.Contains(body, "slot-pending") {
		s.Contains(body, `hx-get="/widgets/budget/list"`)
		s.Contains(body, "loading-screen")
	} else {
		s.Contains(body, `id="w-budget-list"`)
	}
}

func (s *PageSuite) TestNotFound() {
	w := s.do("GET", "/nowhere", nil, s.session)
	s.Equal(http.StatusNotFound, w.Code)
	s.Contains(w.Body.String(), "页面不存在")
}

// FormSuite covers the post-redirect-get forms.
type FormSuite struct {
	appSuite
	session *http.Cookie
}

func TestFormSuite(t *testing.T) {
	suite.Run(t, new(FormSuite))
}

func (s *FormSuite) SetupTest() {
	s.appSuite.SetupTest()
	s.session = s.login(false)
}

func (s *FormSuite) TestCreateTransaction() {
	w := s.do("POST", "/transaction/list", url.Values{
		"type":        {"expense"},
		"amount":      {"12.50"},
		"description": {"Lunch Test"},
	}, s.session)
	month := time.Now().Format(monthLayout)
	s.Equal("/transaction/list?month="+month, w.Header().Get("Location"))

	page := s.follow(w, s.session)
	s.Require().Equal(http.StatusOK, page.Code)
	body := page.Body.String()
	s.Contains(body, "交易已记录")
	s.Contains(body, "Lunch Test")
	s.Equal(1, strings.Count(body, "transaction-item expense"))
}

func (s *FormSuite) TestCreateTransactionRejectsBadAmount() {
	w := s.do("POST", "/transaction/list", url.Values{"type": {"expense"}, "amount": {"0"}}, s.session)
	s.Equal("/transaction/list", w.Header().Get("Location"))
	page := s.follow(w, s.session)
	s.Contains(page.Body.String(), "金额必须大于 0")

	w = s.do("POST", "/transaction/list", url.Values{"type": {"expense"}, "amount": {"abc"}}, s.session)
	page = s.follow(w, s.session)
	s.Contains(page.Body.String(), "表单格式错误")
}

func (s *FormSuite) TestHTMXFormRedirect() {
	req := httptest.NewRequest("POST", "/goal", strings.NewReader(url.Values{"name": {"Trip"}, "target": {"500"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")
	req.AddCookie(s.session)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	s.Equal(http.StatusOK, w.Code)
	s.Equal("/goal", w.Header().Get("HX-Redirect"))
	s.NotNil(cookieNamed(w, "flash"))
}

func (s *FormSuite) TestGoalContributionCongratulates() {
	w := s.do("POST", "/goal", url.Values{"name": {"Bike"}, "target": {"100"}}, s.session)
	s.follow(w, s.session)

	goals, err := s.db.ListGoals(s.ctx, s.user.ID)
	s.Require().NoError(err)
	s.Require().Len(goals, 1)
	path := "/goal/" + itoa(goals[0].ID) + "/contribute"

	page := s.follow(s.do("POST", path, url.Values{"amount": {"40"}}, s.session), s.session)
	s.Contains(page.Body.String(), "已存入")

	page = s.follow(s.do("POST", path, url.Values{"amount": {"60"}}, s.session), s.session)
	s.Contains(page.Body.String(), "目标「Bike」已达成")
}

func (s *FormSuite) TestBudgetKeepsMonth() {
	w := s.do("POST", "/budget", url.Values{"month": {"2024-03"}, "amount": {"800"}}, s.session)
	s.Equal("/budget?month=2024-03", w.Header().Get("Location"))
	page := s.follow(w, s.session)
	s.Contains(page.Body.String(), "预算已保存")
	s.Contains(page.Body.String(), `value="2024-03"`)

	w = s.do("POST", "/budget", url.Values{"month": {"March"}, "amount": {"800"}}, s.session)
	s.Contains(s.follow(w, s.session).Body.String(), "月份格式无效")
}

func (s *FormSuite) product(symbol string, price string) int64 {
	w := s.do("POST", "/investment/portfolio/products", url.Values{
		"symbol": {symbol},
		"kind":   {"stock"},
		"price":  {price},
	}, s.session)
	s.follow(w, s.session)
	products, err := s.db.ListProducts(s.ctx, s.user.ID)
	s.Require().NoError(err)
	for _, p := range products {
		if p.Symbol == symbol {
			return p.ID
		}
	}
	s.FailNow("product not created", symbol)
	return 0
}

func (s *FormSuite) TestSellMoreThanHeld() {
	id := s.product("AAA", "10")
	w := s.do("POST", "/investment/transactions/trades", url.Values{
		"product_id": {itoa(id)},
		"side":       {"sell"},
		"quantity":   {"5"},
		"price":      {"10"},
	}, s.session)
	page := s.follow(w, s.session)
	s.Contains(page.Body.String(), "持仓数量不足")

	p, err := s.db.GetProduct(s.ctx, s.user.ID, id)
	s.Require().NoError(err)
	s.Zero(p.Quantity)
}

func (s *FormSuite) TestPriceDropRaisesAlert() {
	id := s.product("BBB", "100")
	w := s.do("POST", "/investment/transactions/trades", url.Values{
		"product_id": {itoa(id)},
		"side":       {"buy"},
		"quantity":   {"10"},
		"price":      {"100"},
	}, s.session)
	page := s.follow(w, s.session)
	s.Contains(page.Body.String(), "交易已记录")
	s.NotContains(page.Body.String(), "message-warning")

	w = s.do("POST", "/investment/portfolio/products/"+itoa(id)+"/price", url.Values{"price": {"60"}}, s.session)
	page = s.follow(w, s.session)
	s.Contains(page.Body.String(), "价格已更新")
	s.Contains(page.Body.String(), "message-warning")

	alerts, err := s.db.ListRiskAlerts(s.ctx, s.user.ID, false)
	s.Require().NoError(err)
	s.Require().Len(alerts, 1)
	s.Equal(models.RiskCritical, alerts[0].Level)

	w = s.do("POST", "/investment/risk/alerts/"+itoa(alerts[0].ID)+"/ack", nil, s.session)
	s.Contains(s.follow(w, s.session).Body.String(), "预警已确认")
	alerts, err = s.db.ListRiskAlerts(s.ctx, s.user.ID, false)
	s.Require().NoError(err)
	s.Empty(alerts)
}

func (s *FormSuite) TestCreateRecurringBooksDueOccurrence() {
	w := s.do("POST", "/transaction/recurring", url.Values{
		"type":       {"expense"},
		"amount":     {"30"},
		"frequency":  {"monthly"},
		"start_date": {time.Now().Format(dateLayout)},
	}, s.session)
	s.Contains(s.follow(w, s.session).Body.String(), "周期交易已添加")

	txs, err := s.db.ListTransactions(s.ctx, s.user.ID, storage.TransactionFilter{})
	s.Require().NoError(err)
	s.Require().Len(txs, 1)
	s.NotNil(txs[0].RecurringID)
}

func (s *FormSuite) TestResumeRecurringSkipsPause() {
	// a rule whose last six months were never booked
	rule := &models.RecurringRule{
		UserID:    s.user.ID,
		Type:      models.Expense,
		Amount:    30,
		Frequency: models.Monthly,
		StartDate: time.Now().AddDate(0, -6, -1),
	}
	s.Require().NoError(s.db.CreateRecurringRule(s.ctx, rule))
	toggle := "/transaction/recurring/" + itoa(rule.ID) + "/toggle"

	w := s.do("POST", toggle, url.Values{"active": {"0"}}, s.session)
	s.Contains(s.follow(w, s.session).Body.String(), "周期交易已暂停")
	w = s.do("POST", toggle, url.Values{"active": {"1"}}, s.session)
	s.Contains(s.follow(w, s.session).Body.String(), "周期交易已恢复")

	n, err := s.h.booker.Run(s.ctx)
	s.Require().NoError(err)
	s.Zero(n, "occurrences inside the pause are not backfilled")

	rules, err := s.db.ListRecurringRules(s.ctx, s.user.ID)
	s.Require().NoError(err)
	s.Require().Len(rules, 1)
	s.True(rules[0].Active)
	s.True(rules[0].NextRun.After(time.Now().Add(-time.Minute)))
}

func (s *FormSuite) TestDeleteOtherUsersRecord() {
	w := s.do("POST", "/assets/9999/delete", nil, s.session)
	s.Contains(s.follow(w, s.session).Body.String(), "记录不存在")

	w = s.do("POST", "/assets/abc/delete", nil, s.session)
	s.Contains(s.follow(w, s.session).Body.String(), "表单格式错误")
}

// APISuite covers the bearer-token JSON API.
type APISuite struct {
	appSuite
	token string
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}

func (s *APISuite) SetupTest() {
	s.appSuite.SetupTest()
	w := s.api("POST", "/api/auth/login", `{"username":"alice","password":"secret123"}`, "")
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var resp models.AuthResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Require().NotEmpty(resp.Token)
	s.Equal(testUser, resp.User.Username)
	s.token = resp.Token
}

func (s *APISuite) api(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *APISuite) TestLoginRejectsBadCredentials() {
	w := s.api("POST", "/api/auth/login", `{"username":"alice","password":"wrong"}`, "")
	s.Equal(http.StatusUnauthorized, w.Code)
	s.JSONEq(`{"error":"invalid username or password"}`, w.Body.String())

	w = s.api("POST", "/api/auth/login", `not json`, "")
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *APISuite) TestTokenRequired() {
	s.Equal(http.StatusUnauthorized, s.api("GET", "/api/auth/me", "", "").Code)
	s.Equal(http.StatusUnauthorized, s.api("GET", "/api/auth/me", "", "garbage").Code)

	other := auth.NewIssuer("another-secret", time.Hour)
	forged, err := other.Sign(s.user)
	s.Require().NoError(err)
	s.Equal(http.StatusUnauthorized, s.api("GET", "/api/auth/me", "", forged).Code)
}

func (s *APISuite) TestMe() {
	w := s.api("GET", "/api/auth/me", "", s.token)
	s.Require().Equal(http.StatusOK, w.Code)
	var user models.User
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &user))
	s.Equal(s.user.ID, user.ID)
	s.NotContains(w.Body.String(), "password")
}

func (s *APISuite) TestTransactions() {
	w := s.api("POST", "/api/transactions", `{"type":"income","amount":500,"description":"Salary"}`, s.token)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	w = s.api("POST", "/api/transactions", `{"type":"income","amount":-1}`, s.token)
	s.Equal(http.StatusBadRequest, w.Code)

	month := time.Now().Format(monthLayout)
	w = s.api("GET", "/api/transactions?month="+month, "", s.token)
	s.Require().Equal(http.StatusOK, w.Code)
	var items []models.TransactionItem
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &items))
	s.Require().Len(items, 1)
	s.Equal("Salary", items[0].Description)
	s.Equal(500.0, items[0].Amount)

	s.Equal(http.StatusBadRequest, s.api("GET", "/api/transactions?month=bad", "", s.token).Code)
	s.Equal(http.StatusBadRequest, s.api("GET", "/api/transactions?limit=-1", "", s.token).Code)

	w = s.api("GET", "/api/dashboard/overview", "", s.token)
	s.Require().Equal(http.StatusOK, w.Code)
	var overview models.OverviewData
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &overview))
	s.Equal(500.0, overview.MonthIncome)
}

func (s *APISuite) TestTrendMonths() {
	w := s.api("GET", "/api/dashboard/trend?months=3", "", s.token)
	s.Require().Equal(http.StatusOK, w.Code)
	var trend []models.TrendData
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &trend))
	s.Len(trend, 3)

	s.Equal(http.StatusBadRequest, s.api("GET", "/api/dashboard/trend?months=0", "", s.token).Code)
	s.Equal(http.StatusBadRequest, s.api("GET", "/api/dashboard/trend?months=25", "", s.token).Code)
}

func (s *APISuite) TestAssets() {
	s.Require().NoError(s.db.CreateAsset(s.ctx, &models.Asset{UserID: s.user.ID, Name: "Checking", Kind: models.AssetBank, Value: 300}))

	w := s.api("GET", "/api/dashboard/assets", "", s.token)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "300")
}

func (s *APISuite) TestCORSPreflight() {
	req := httptest.NewRequest("OPTIONS", "/api/auth/login", http.NoBody)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	s.Equal("http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest("OPTIONS", "/api/auth/login", http.NoBody)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Empty(w.Header().Get("Access-Control-Allow-Origin"))
}

func (s *APISuite) TestHealth() {
	w := s.api("GET", "/healthz", "", "")
	s.Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"ok":true}`, w.Body.String())
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestUserMessage(t *testing.T) {
	msg, ok := userMessage(storage.ErrNotFound)
	assert.True(t, ok)
	assert.Equal(t, "记录不存在", msg)

	_, ok = userMessage(assert.AnError)
	assert.False(t, ok)
}

func TestMonthPath(t *testing.T) {
	assert.Equal(t, "/budget", monthPath("/budget", ""))
	assert.Equal(t, "/budget?month=2024-03", monthPath("/budget", "2024-03"))
}

func TestWidgetIDs(t *testing.T) {
	assert.Equal(t, "w-investment-alerts", widgetID("investment/alerts"))
	assert.Equal(t, "/widgets/budget/list?month=2024-03", widgetSrc("budget/list", url.Values{"month": {"2024-03"}}))
	assert.Equal(t, "/widgets/goal/list", widgetSrc("goal/list", nil))
}
