package ui

import (
	"fmt"
	"html/template"
	"sync/atomic"
)

// ClientOnly holds back content until the page has been rendered once. Its
// first render yields only an empty mount point that the browser fills from
// Src after load; every later render yields the children.
//
// Page handlers build a fresh gate per request and render it once, so in a
// served page the children always arrive from Src. The later-render path
// serves callers that keep a gate across renders of the same view.
type ClientOnly struct {
	ID      string
	Src     string
	mounted atomic.Bool
}

// NewClientOnly returns an unmounted gate.
func NewClientOnly(id, src string) *ClientOnly {
	return &ClientOnly{ID: id, Src: src}
}

// Mounted reports whether the first render has happened.
func (c *ClientOnly) Mounted() bool {
	return c.mounted.Load()
}

// Render returns the mount point on the first call and children afterwards.
func (c *ClientOnly) Render(children template.HTML) template.HTML {
	if c.mounted.CompareAndSwap(false, true) {
		return template.HTML(fmt.Sprintf(
			`<div id="%s" class="client-only" hx-get="%s" hx-trigger="load" hx-swap="outerHTML"></div>`,
			template.HTMLEscapeString(c.ID), template.HTMLEscapeString(c.Src)))
	}
	return children
}
