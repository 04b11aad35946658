package webbridge

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/harness"
	"github.com/cryguy/webbridge/internal/log"
	"github.com/cryguy/webbridge/internal/metrics"
	"github.com/cryguy/webbridge/internal/pending"
	"github.com/cryguy/webbridge/internal/webapi"
)

// Host event names. Any other name is an event emitted by the page.
const (
	EventLoadStarted              = "loadStarted"
	EventLoadFinished             = "loadFinished"
	EventShouldOverrideURLLoading = "shouldOverrideUrlLoading"
	EventTitleChanged             = "titleChanged"
	EventWebConsole               = "webConsole"
)

// Event is delivered to listeners. Which fields are set depends on Name.
type Event struct {
	Name string
	// Data is the payload of a page event.
	Data any

	URL            string
	NavigationType NavigationType
	Method         string
	// Err is the load error of a loadFinished event.
	Err error
	// Cancel may be set by a shouldOverrideUrlLoading listener to stop
	// the navigation.
	Cancel bool

	Title   string
	Message string
	Line    int
	Level   string
}

// Listener receives events. Listeners run on the view's delivery
// goroutine and must not block waiting for further page events.
type Listener func(*Event)

type listener struct {
	id   uint64
	fn   Listener
	once bool
}

// Subscription identifies one registered listener.
type Subscription struct {
	w    *WebView
	name string
	id   uint64
}

// Unsubscribe removes the listener. It is safe to call more than once.
func (s Subscription) Unsubscribe() {
	if s.w == nil {
		return
	}
	s.w.remove(s.name, s.id)
}

// On registers fn for events named name.
func (w *WebView) On(name string, fn Listener) Subscription {
	return w.add(name, fn, false)
}

// Once registers fn for the next event named name only.
func (w *WebView) Once(name string, fn Listener) Subscription {
	return w.add(name, fn, true)
}

// Off removes every listener for name.
func (w *WebView) Off(name string) {
	w.mu.Lock()
	delete(w.listeners, name)
	w.mu.Unlock()
}

// HasListeners reports whether anything listens for name.
func (w *WebView) HasListeners(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.listeners[name]) > 0
}

func (w *WebView) add(name string, fn Listener, once bool) Subscription {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextID++
	l := &listener{id: w.nextID, fn: fn, once: once}
	w.listeners[name] = append(w.listeners[name], l)
	return Subscription{w: w, name: name, id: l.id}
}

func (w *WebView) remove(name string, id uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	list := w.listeners[name]
	for i, l := range list {
		if l.id == id {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(w.listeners, name)
	} else {
		w.listeners[name] = list
	}
}

// notify calls the listeners for ev.Name in registration order and
// reports whether there were any. Once listeners are removed before they
// run, so each fires at most once.
func (w *WebView) notify(ev *Event) bool {
	w.mu.Lock()
	list := w.listeners[ev.Name]
	fire := make([]*listener, len(list))
	copy(fire, list)
	kept := list[:0:0]
	for _, l := range list {
		if !l.once {
			kept = append(kept, l)
		}
	}
	if len(kept) == 0 {
		delete(w.listeners, ev.Name)
	} else if len(kept) != len(list) {
		w.listeners[ev.Name] = kept
	}
	w.mu.Unlock()

	for _, l := range fire {
		l.fn(ev)
	}
	return len(fire) > 0
}

// OnLoadStarted implements core.ViewHost.
func (w *WebView) OnLoadStarted(pageURL string, nav core.NavigationType) {
	w.mu.Lock()
	if w.loadCancel != nil {
		w.loadCancel()
		w.loadCancel = nil
	}
	w.state = StateLoading
	w.mu.Unlock()
	w.notify(&Event{Name: EventLoadStarted, URL: pageURL, NavigationType: nav})
}

// OnLoadFinished implements core.ViewHost. The injection pipeline runs
// off the delivery goroutine so the page events it waits for can arrive.
// A newer load cancels the pipeline of the previous one.
func (w *WebView) OnLoadFinished(pageURL, errText string) {
	w.mu.Lock()
	parent := w.ctx
	if parent.Err() != nil {
		w.mu.Unlock()
		w.log.Debug().Str(log.FieldEvent, "load.dropped").Str(log.FieldURL, pageURL).Msg("load finished while detaching")
		return
	}
	if w.loadCancel != nil {
		w.loadCancel()
	}
	ctx, cancel := context.WithCancel(parent)
	w.loadCancel = cancel
	w.bg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.bg.Done()
		defer cancel()
		w.finishLoad(ctx, parent, pageURL, errText)
	}()
}

// OnShouldOverrideURLLoading implements core.ViewHost. Legacy handshake
// URLs are always cancelled and their payload pulled from the page. Local
// resource URLs are never cancelled.
func (w *WebView) OnShouldOverrideURLLoading(rawURL, method string, nav core.NavigationType) bool {
	if strings.HasPrefix(rawURL, webapi.LegacyScheme) {
		w.pullLegacy(rawURL)
		return true
	}
	ev := &Event{Name: EventShouldOverrideURLLoading, URL: rawURL, Method: method, NavigationType: nav}
	w.notify(ev)
	if strings.HasPrefix(strings.ToLower(rawURL), w.cfg.InterceptScheme+":") {
		return false
	}
	return ev.Cancel
}

// OnWebViewEvent implements core.ViewHost.
func (w *WebView) OnWebViewEvent(eventName string, data any) {
	metrics.RecordEvent(metrics.DirectionInbound)
	if w.notify(&Event{Name: eventName, Data: data}) {
		return
	}
	metrics.RecordEvent(metrics.DirectionDropped)
	if strings.HasPrefix(eventName, pending.EventNamePrefix) {
		w.log.Debug().Str(log.FieldEvent, "event.late").Str(log.FieldEventName, eventName).Msg("result for a settled call ignored")
		return
	}
	w.log.Debug().Str(log.FieldEvent, "event.unheard").Str(log.FieldEventName, eventName).Msg("no listener for page event")
}

// OnConsole implements core.ViewHost.
func (w *WebView) OnConsole(message string, line int, level string) {
	w.log.Debug().Str(log.FieldEvent, "page.console").Str("level", level).Int("line", line).Msg(message)
	w.notify(&Event{Name: EventWebConsole, Message: message, Line: line, Level: level})
}

// OnTitleChanged implements core.ViewHost.
func (w *WebView) OnTitleChanged(title string) {
	w.notify(&Event{Name: EventTitleChanged, Title: title})
}

// OnAlert implements core.ViewHost.
func (w *WebView) OnAlert(message string) {
	if h := w.dialogHandler(); h != nil {
		h.Alert(message)
	}
}

// OnConfirm implements core.ViewHost.
func (w *WebView) OnConfirm(message string) bool {
	if h := w.dialogHandler(); h != nil {
		return h.Confirm(message)
	}
	return false
}

// OnPrompt implements core.ViewHost.
func (w *WebView) OnPrompt(message, defaultText string) (string, bool) {
	if h := w.dialogHandler(); h != nil {
		return h.Prompt(message, defaultText)
	}
	return "", false
}

func (w *WebView) dialogHandler() DialogHandler {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dialogs
}

// pullLegacy fetches the payload a legacy page stashed before navigating
// its handshake frame, and delivers it as a page event.
func (w *WebView) pullLegacy(rawURL string) {
	meta, err := url.PathUnescape(strings.TrimPrefix(rawURL, webapi.LegacyScheme))
	if err != nil {
		w.log.Warn().Err(err).Str(log.FieldEvent, "legacy.malformed").Str(log.FieldURL, rawURL).Msg("undecodable handshake")
		return
	}
	var msg struct {
		EventName string `json:"eventName"`
		ResID     int    `json:"resId"`
	}
	if err := json.Unmarshal([]byte(meta), &msg); err != nil || msg.EventName == "" {
		w.log.Warn().Str(log.FieldEvent, "legacy.malformed").Str(log.FieldURL, rawURL).Msg("undecodable handshake")
		return
	}

	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	data, err := w.ExecuteJavaScript(ctx, harness.GetLegacyResponse(msg.ResID), false)
	if err != nil {
		w.log.Warn().Err(err).Str(log.FieldEvent, "legacy.pull_failed").Str(log.FieldEventName, msg.EventName).Msg("cannot pull handshake payload")
		return
	}
	w.OnWebViewEvent(msg.EventName, data)
}
