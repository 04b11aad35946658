package headless

import (
	"context"
	"encoding/json"

	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/log"
	"github.com/cryguy/webbridge/internal/webapi"
)

// pageHost is what one loaded document's globals call back into. It is
// discarded with the document.
type pageHost struct {
	page *Page
	ctx  context.Context
	base string
}

var _ webapi.PageHost = (*pageHost)(nil)

func (h *pageHost) Load(ref string) (string, error) {
	return h.page.fetch(h.ctx, resolveURL(h.base, ref))
}

func (h *pageHost) Console(level, message string) {
	h.page.deliver.Push(func() { h.page.host.OnConsole(message, 0, level) })
}

// EmitEvent receives androidWebViewBridge.emitEvent calls.
func (h *pageHost) EmitEvent(eventName, data string) {
	payload := core.DecodeEventData(data)
	h.page.deliver.Push(func() { h.page.host.OnWebViewEvent(eventName, payload) })
}

// PostMessage receives webkit.messageHandlers.nsBridge.postMessage calls.
func (h *pageHost) PostMessage(message string) {
	var msg struct {
		EventName string `json:"eventName"`
		Data      any    `json:"data"`
	}
	if err := json.Unmarshal([]byte(message), &msg); err != nil || msg.EventName == "" {
		h.page.log.Warn().Str(log.FieldEvent, "message.malformed").Str("message", message).Msg("dropping message handler post")
		return
	}
	h.page.deliver.Push(func() { h.page.host.OnWebViewEvent(msg.EventName, msg.Data) })
}

// Navigate asks the host whether to cancel, then follows top-level
// navigations. Frames only signal the host; they do not load content.
func (h *pageHost) Navigate(ref string, nav core.NavigationType, frame bool) {
	target := resolveURL(h.base, ref)
	p := h.page
	p.deliver.Push(func() {
		if p.host.OnShouldOverrideURLLoading(target, "GET", nav) {
			return
		}
		if frame || p.isClosed() {
			return
		}
		p.navigate(core.HistoryEntry{URL: target}, nav, true)
	})
}

func (h *pageHost) TitleChanged(title string) {
	h.page.deliver.Push(func() { h.page.host.OnTitleChanged(title) })
}

func (h *pageHost) Alert(message string) {
	h.page.suspendWatchdog(func() { h.page.host.OnAlert(message) })
}

func (h *pageHost) Confirm(message string) (ok bool) {
	h.page.suspendWatchdog(func() { ok = h.page.host.OnConfirm(message) })
	return ok
}

func (h *pageHost) Prompt(message, defaultText string) (text string, ok bool) {
	h.page.suspendWatchdog(func() { text, ok = h.page.host.OnPrompt(message, defaultText) })
	return text, ok
}
