package ui

import (
	"strings"

	"finboard/internal/models"
)

// HomeCrumb is the first item of every breadcrumb.
var HomeCrumb = Crumb{Name: "首页", Path: "/dashboard"}

// Crumb is one item of a breadcrumb trail.
type Crumb struct {
	Name string
	Path string
}

// Section is a top-level area of the authenticated app.
type Section struct {
	Key        string
	Name       string
	Path       string
	Breadcrumb bool
}

// Crumbs returns the section's breadcrumb: home then the section, or
// nothing for sections that do not show one.
func (s Section) Crumbs() []Crumb {
	if !s.Breadcrumb {
		return nil
	}
	return []Crumb{HomeCrumb, {Name: s.Name, Path: s.Path}}
}

var (
	DashboardSection   = Section{Key: "dashboard", Name: "仪表盘", Path: "/dashboard"}
	AssetsSection      = Section{Key: "assets", Name: "资产管理", Path: "/assets", Breadcrumb: true}
	BudgetSection      = Section{Key: "budget", Name: "预算管理", Path: "/budget", Breadcrumb: true}
	GoalSection        = Section{Key: "goal", Name: "目标管理", Path: "/goal", Breadcrumb: true}
	TransactionSection = Section{Key: "transaction", Name: "交易管理", Path: "/transaction/list", Breadcrumb: true}
	InvestmentSection  = Section{Key: "investment", Name: "投资管理", Path: "/investment/portfolio/products", Breadcrumb: true}
)

// NavItem is an entry of the side navigation.
type NavItem struct {
	Name     string
	Path     string
	Children []NavItem
}

// Active reports whether path belongs to this entry.
func (n NavItem) Active(path string) bool {
	if path == n.Path || strings.HasPrefix(path, n.Path+"/") {
		return true
	}
	for _, c := range n.Children {
		if c.Active(path) {
			return true
		}
	}
	return false
}

// Nav is the side navigation of the main layout.
var Nav = []NavItem{
	{Name: DashboardSection.Name, Path: DashboardSection.Path},
	{Name: AssetsSection.Name, Path: AssetsSection.Path},
	{Name: BudgetSection.Name, Path: BudgetSection.Path},
	{Name: GoalSection.Name, Path: GoalSection.Path},
	{Name: TransactionSection.Name, Path: "/transaction", Children: []NavItem{
		{Name: "交易列表", Path: "/transaction/list"},
		{Name: "分类管理", Path: "/transaction/category"},
		{Name: "周期交易", Path: "/transaction/recurring"},
	}},
	{Name: InvestmentSection.Name, Path: "/investment", Children: []NavItem{
		{Name: "投资产品", Path: "/investment/portfolio/products"},
		{Name: "风险预警", Path: "/investment/risk/alerts"},
		{Name: "分红记录", Path: "/investment/transactions/dividends"},
		{Name: "交易记录", Path: "/investment/transactions/trades"},
	}},
}

// Card is a titled container of widget slots.
type Card struct {
	Title string
	Slots []Slot
}

// Page is everything a page template reads.
type Page struct {
	Title   string
	Section Section
	User    *models.User
	Cards   []Card
	Form    any

	// Filled in by the renderer.
	Provider *Provider
	Messages []Message
	Nav      []NavItem
	Path     string
}

// Crumbs is the breadcrumb of the page's section.
func (p Page) Crumbs() []Crumb {
	return p.Section.Crumbs()
}

// DocumentTitle is the text of the title element.
func (p Page) DocumentTitle() string {
	site := p.Provider.Site().Title
	if p.Title == "" {
		return site
	}
	return p.Title + " - " + site
}
