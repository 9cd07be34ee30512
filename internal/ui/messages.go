package ui

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
)

// MessageKind selects how a notice is styled.
type MessageKind string

const (
	Success MessageKind = "success"
	Info    MessageKind = "info"
	Warning MessageKind = "warning"
	Error   MessageKind = "error"
)

// Message is a notice shown at the top of the next rendered page.
type Message struct {
	Kind MessageKind `json:"k"`
	Text string      `json:"t"`
}

const flashCookie = "flash"

type messageHost struct {
	mu   sync.Mutex
	msgs []Message
}

type messagesKey struct{}

func withMessages(ctx context.Context, initial []Message) context.Context {
	return context.WithValue(ctx, messagesKey{}, &messageHost{msgs: initial})
}

// Notify queues a notice for the page rendered by this request, or for the
// next one if the request ends in a redirect. Without a host it is a no-op.
func Notify(ctx context.Context, kind MessageKind, text string) {
	host, ok := ctx.Value(messagesKey{}).(*messageHost)
	if !ok {
		return
	}
	host.mu.Lock()
	host.msgs = append(host.msgs, Message{Kind: kind, Text: text})
	host.mu.Unlock()
}

// TakeMessages returns and clears the queued notices.
func TakeMessages(ctx context.Context) []Message {
	host, ok := ctx.Value(messagesKey{}).(*messageHost)
	if !ok {
		return nil
	}
	host.mu.Lock()
	defer host.mu.Unlock()
	msgs := host.msgs
	host.msgs = nil
	return msgs
}

// Flash moves the queued notices into a cookie so they survive a redirect.
func Flash(w http.ResponseWriter, r *http.Request) {
	msgs := TakeMessages(r.Context())
	if len(msgs) == 0 {
		return
	}
	b, err := json.Marshal(msgs)
	if err != nil {
		return
	}
	http.SetCookie(w, flashCookieWith(base64.RawURLEncoding.EncodeToString(b), 0))
}

func flashCookieWith(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     flashCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func readFlash(w http.ResponseWriter, r *http.Request) []Message {
	c, err := r.Cookie(flashCookie)
	if err != nil || c.Value == "" {
		return nil
	}
	http.SetCookie(w, flashCookieWith("", -1))

	b, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return nil
	}
	var msgs []Message
	if json.Unmarshal(b, &msgs) != nil {
		return nil
	}
	return msgs
}
