package ui

import (
	"context"
	"fmt"
	"html/template"
	"sync"
	"time"
)

// State is where a Resource is in its life.
type State int

const (
	Pending State = iota
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return "pending"
}

// Resource is a value that becomes available later. It settles once: the
// first Resolve or Reject wins and later calls are ignored.
type Resource[T any] struct {
	mu    sync.Mutex
	state State
	value T
	err   error
	done  chan struct{}
}

// NewResource returns a pending Resource.
func NewResource[T any]() *Resource[T] {
	return &Resource[T]{done: make(chan struct{})}
}

// Load starts fn in its own goroutine and returns the Resource it settles.
// A panic in fn rejects the resource.
func Load[T any](ctx context.Context, fn func(context.Context) (T, error)) *Resource[T] {
	r := NewResource[T]()
	go func() {
		defer func() {
			if p := recover(); p != nil {
				r.Reject(fmt.Errorf("loader panicked: %v", p))
			}
		}()
		v, err := fn(ctx)
		if err != nil {
			r.Reject(err)
			return
		}
		r.Resolve(v)
	}()
	return r
}

// Resolve settles r with v. It reports whether this call settled r.
func (r *Resource[T]) Resolve(v T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Pending {
		return false
	}
	r.state, r.value = Ready, v
	close(r.done)
	return true
}

// Reject settles r with err. It reports whether this call settled r.
func (r *Resource[T]) Reject(err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Pending {
		return false
	}
	r.state, r.err = Failed, err
	close(r.done)
	return true
}

// State returns the current state.
func (r *Resource[T]) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Done is closed once r settles.
func (r *Resource[T]) Done() <-chan struct{} {
	return r.done
}

// Peek returns the current state with the value or error, if settled.
func (r *Resource[T]) Peek() (State, T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.value, r.err
}

// Wait blocks until r settles or ctx is done.
func (r *Resource[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-r.done:
		_, v, err := r.Peek()
		return v, err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Widget is a lazily loaded piece of a page. Src serves the same content
// on its own so a pending slot can fetch it later.
type Widget struct {
	ID   string
	Src  string
	Load func(ctx context.Context) (template.HTML, error)
}

// Slot is a widget as it appears in a rendered page.
type Slot struct {
	ID    string
	Src   string
	State State
	HTML  template.HTML
	Err   string
}

func (s Slot) Ready() bool   { return s.State == Ready }
func (s Slot) Failed() bool  { return s.State == Failed }
func (s Slot) Pending() bool { return s.State == Pending }

// Suspend loads every widget concurrently and waits until all have settled,
// wait has passed or ctx is done, whichever comes first. Widgets still
// loading come back Pending so the page shows the loading screen in their
// place; their loaders stop when ctx is cancelled.
func Suspend(ctx context.Context, wait time.Duration, widgets ...Widget) []Slot {
	resources := make([]*Resource[template.HTML], len(widgets))
	for i, w := range widgets {
		resources[i] = Load(ctx, w.Load)
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
settle:
	for _, r := range resources {
		select {
		case <-r.Done():
		case <-timer.C:
			break settle
		case <-ctx.Done():
			break settle
		}
	}

	slots := make([]Slot, len(widgets))
	for i, w := range widgets {
		state, html, err := resources[i].Peek()
		slots[i] = Slot{ID: w.ID, Src: w.Src, State: state, HTML: html}
		if err != nil {
			slots[i].Err = err.Error()
		}
	}
	return slots
}

// Resolved builds the slot served by a widget's own URL.
func Resolved(id, src string, html template.HTML, err error) Slot {
	if err != nil {
		return Slot{ID: id, Src: src, State: Failed, Err: err.Error()}
	}
	return Slot{ID: id, Src: src, State: Ready, HTML: html}
}
