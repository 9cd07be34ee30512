// Package ui composes server-rendered pages: the theme and locale provider,
// layouts and breadcrumbs, suspense boundaries and client-only mounts.
package ui

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"regexp"
	"time"

	"finboard/internal/config"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Provider supplies the site metadata, theme tokens and locale to every
// page. It is built once and shared by all requests.
type Provider struct {
	site    config.Site
	lang    language.Tag
	printer *message.Printer
}

// NewProvider validates site and builds a Provider. Invalid theme tokens
// fall back to the defaults.
func NewProvider(site config.Site) *Provider {
	def := config.DefaultSite()
	if !hexColor.MatchString(site.Theme.PrimaryColor) {
		site.Theme.PrimaryColor = def.Theme.PrimaryColor
	}
	if site.Theme.BorderRadius < 0 || site.Theme.BorderRadius > 32 {
		site.Theme.BorderRadius = def.Theme.BorderRadius
	}
	lang, err := language.Parse(site.Locale)
	if err != nil {
		lang = language.SimplifiedChinese
		site.Locale = def.Locale
	}
	return &Provider{site: site, lang: lang, printer: message.NewPrinter(lang)}
}

// Site returns the site description the provider was built with.
func (p *Provider) Site() config.Site {
	return p.site
}

// Lang is the BCP 47 tag used for the html lang attribute.
func (p *Provider) Lang() string {
	return p.lang.String()
}

// ThemeCSS returns the custom properties every stylesheet rule reads.
func (p *Provider) ThemeCSS() template.CSS {
	return template.CSS(fmt.Sprintf(":root{--primary:%s;--radius:%dpx}",
		p.site.Theme.PrimaryColor, p.site.Theme.BorderRadius))
}

// Money formats an amount in the provider's locale.
func (p *Provider) Money(v float64) string {
	return p.printer.Sprintf("¥%.2f", v)
}

// Number formats a quantity in the provider's locale.
func (p *Provider) Number(v float64) string {
	return p.printer.Sprintf("%.2f", v)
}

// Percent formats a ratio (0.25) as a percentage (25.0%).
func (p *Provider) Percent(ratio float64) string {
	return p.printer.Sprintf("%.1f%%", ratio*100)
}

// Date formats a day.
func (p *Provider) Date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02")
}

// DateTime formats an instant to the minute.
func (p *Provider) DateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04")
}

type providerKey struct{}

// Wrap installs the provider and a message host on every request passing
// through next.
func (p *Provider) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), providerKey{}, p)
		ctx = withMessages(ctx, readFlash(w, r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext returns the provider installed by Wrap, or one built from the
// default site when there is none.
func FromContext(ctx context.Context) *Provider {
	if p, ok := ctx.Value(providerKey{}).(*Provider); ok {
		return p
	}
	return defaultProvider
}

var defaultProvider = NewProvider(config.DefaultSite())
