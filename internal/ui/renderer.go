package ui

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"math"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Layout names accepted by Renderer.Page.
const (
	LayoutMain = "main"
	LayoutAuth = "auth"
)

// Renderer executes the page and widget templates.
type Renderer struct {
	provider *Provider
	pages    map[string]*template.Template // "layout/view"
	widgets  *template.Template
}

// NewRenderer parses the templates in fsys:
//
//	base.html, partials.html     shared by everything
//	layouts/*.html               one "shell" and "main" per layout
//	pages/*.html                 one "content" per page
//	widgets/*.html               widget bodies, rendered on their own
func NewRenderer(fsys fs.FS, p *Provider) (*Renderer, error) {
	r := &Renderer{provider: p, pages: make(map[string]*template.Template)}
	funcs := r.funcs()

	common, err := template.New("base.html").Funcs(funcs).ParseFS(fsys, "base.html", "partials.html")
	if err != nil {
		return nil, fmt.Errorf("parse base: %w", err)
	}
	layouts, err := fs.Glob(fsys, "layouts/*.html")
	if err != nil {
		return nil, err
	}
	pages, err := fs.Glob(fsys, "pages/*.html")
	if err != nil {
		return nil, err
	}
	for _, l := range layouts {
		for _, pg := range pages {
			t, err := template.Must(common.Clone()).ParseFS(fsys, l, pg)
			if err != nil {
				return nil, fmt.Errorf("parse %s with %s: %w", pg, l, err)
			}
			r.pages[key(l, pg)] = t
		}
	}

	r.widgets, err = template.New("partials.html").Funcs(funcs).ParseFS(fsys, "partials.html", "widgets/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse widgets: %w", err)
	}
	return r, nil
}

func key(layout, page string) string {
	trim := func(s string) string { return strings.TrimSuffix(path.Base(s), ".html") }
	return trim(layout) + "/" + trim(page)
}

// Provider returns the provider pages are rendered with.
func (r *Renderer) Provider() *Provider {
	return r.provider
}

func (r *Renderer) funcs() template.FuncMap {
	p := r.provider
	return template.FuncMap{
		"money":    p.Money,
		"number":   p.Number,
		"percent":  p.Percent,
		"date":     p.Date,
		"datetime": p.DateTime,
		"ratio": func(part, whole float64) float64 {
			if whole == 0 {
				return 0
			}
			return part / whole
		},
		"bar": func(ratio float64) template.CSS {
			w := math.Max(0, math.Min(ratio, 1)) * 100
			return template.CSS(fmt.Sprintf("width: %.1f%%", w))
		},
		"isoDate": func(t *time.Time) string {
			if t == nil {
				return ""
			}
			return t.Local().Format("2006-01-02")
		},
	}
}

// Page renders view inside layout. Requests made by htmx get only the
// layout's "main" block, preceded by any notices.
func (r *Renderer) Page(w http.ResponseWriter, req *http.Request, status int, layout, view string, page Page) {
	t, ok := r.pages[layout+"/"+view]
	if !ok {
		logrus.WithFields(logrus.Fields{"layout": layout, "view": view}).Error("unknown template")
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	page.Provider = r.provider
	page.Messages = append(page.Messages, TakeMessages(req.Context())...)
	page.Nav = Nav
	page.Path = req.URL.Path

	target := "base.html"
	if req.Header.Get("HX-Request") == "true" {
		target = "fragment"
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, target, page); err != nil {
		logrus.WithError(err).WithField("view", view).Error("template execution failed")
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// Widget renders the named widget template to HTML.
func (r *Renderer) Widget(name string, data any) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.widgets.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// Slot writes a single slot, the response to a widget's own URL.
func (r *Renderer) Slot(w http.ResponseWriter, slot Slot) {
	var buf bytes.Buffer
	if err := r.widgets.ExecuteTemplate(&buf, "slot", slot); err != nil {
		logrus.WithError(err).WithField("slot", slot.ID).Error("slot execution failed")
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
