// Package webbridge is the host side of a message bridge to content
// running in a web view. It calls into the page with ExecuteJavaScript
// and ExecutePromises, observes events the page emits through
// window.nsWebViewBridge, and re-injects the bridge after every load.
package webbridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/log"
	"github.com/cryguy/webbridge/internal/pending"
	"github.com/cryguy/webbridge/internal/resources"
)

// LoadState is where a WebView is in its navigation cycle.
type LoadState int32

const (
	StateIdle LoadState = iota
	StateLoading
	StateLoaded
	StateFailed
)

func (s LoadState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// DialogHandler answers alert, confirm and prompt for the page. Its
// methods block page script until they return and must not call back
// into the WebView.
type DialogHandler interface {
	Alert(message string)
	Confirm(message string) bool
	Prompt(message, defaultText string) (string, bool)
}

// Option configures a WebView.
type Option func(*WebView)

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(w *WebView) { w.log = l }
}

// WithResources shares a resource registry. By default each WebView owns
// an in-memory one rooted at Config.AppRoot.
func WithResources(r *ResourceRegistry) Option {
	return func(w *WebView) { w.res = r }
}

// WithDialogHandler sets the dialog handler.
func WithDialogHandler(h DialogHandler) Option {
	return func(w *WebView) { w.dialogs = h }
}

// WithPolyfill supplies script that is run after a load when the page
// lacks feature, e.g. "Promise" or "fetch".
func WithPolyfill(feature, script string) Option {
	return func(w *WebView) { w.polyfills[feature] = script }
}

// WebView is the host end of the bridge. It implements core.ViewHost, so
// a native view is created with the WebView as its host and then
// attached:
//
//	wv := webbridge.New(webbridge.DefaultConfig())
//	page, _ := headless.New(wv, opts)
//	wv.Attach(page)
type WebView struct {
	cfg   Config
	log   zerolog.Logger
	res   *resources.Registry
	calls *pending.Registry

	mu         sync.Mutex
	view       core.NativeView
	state      LoadState
	src        string
	listeners  map[string][]*listener
	nextID     uint64
	dialogs    DialogHandler
	polyfills  map[string]string
	probes     map[string]bool
	autoScript []LocalFile
	autoStyle  []LocalFile
	autoBlocks []autoBlock
	loadCancel context.CancelFunc
	ownsRes    bool

	// ctx is cancelled on Detach; background work is tracked by bg.
	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup
}

var _ core.ViewHost = (*WebView)(nil)

// New creates a WebView with no view attached.
func New(cfg Config, opts ...Option) *WebView {
	w := &WebView{
		cfg:       cfg.withDefaults(),
		log:       log.WithComponent("webview"),
		calls:     pending.NewRegistry(""),
		listeners: make(map[string][]*listener),
		polyfills: make(map[string]string),
		probes:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.res == nil {
		w.res = resources.NewRegistry(resources.Options{
			AppRoot: w.cfg.AppRoot,
			Scheme:  w.cfg.InterceptScheme,
		})
		w.ownsRes = true
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())
	return w
}

// Config returns the WebView's settings.
func (w *WebView) Config() Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cfg
}

// Attach binds view. A previously attached view is detached first.
func (w *WebView) Attach(view NativeView) {
	w.Detach()
	w.mu.Lock()
	w.view = view
	w.state = StateIdle
	w.mu.Unlock()
	w.log.Debug().Str(log.FieldEvent, "view.attached").Str(log.FieldCapability, view.Capability().String()).Msg("view attached")
}

// Detach unbinds the current view without closing it. Pending calls are
// rejected with ErrDetached and running load pipelines are cancelled.
func (w *WebView) Detach() core.NativeView {
	w.mu.Lock()
	view := w.view
	w.view = nil
	w.state = StateIdle
	w.cancel()
	w.mu.Unlock()

	w.calls.RejectAll(ErrDetached)
	w.bg.Wait()

	w.mu.Lock()
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.mu.Unlock()
	return view
}

// View returns the attached view, or nil.
func (w *WebView) View() NativeView {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.view
}

// Close detaches and closes the view and releases an owned resource
// registry.
func (w *WebView) Close() error {
	var err error
	if view := w.Detach(); view != nil {
		err = view.Close()
	}
	if w.ownsRes {
		if cerr := w.res.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// State returns the navigation state.
func (w *WebView) State() LoadState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Src returns the URL or markup last loaded, as resolved by SetSrc and
// updated by every successful load.
func (w *WebView) Src() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.src
}

// SetDialogHandler replaces the dialog handler. Nil restores the
// defaults: alert does nothing, confirm answers false, prompt is
// cancelled.
func (w *WebView) SetDialogHandler(h DialogHandler) {
	w.mu.Lock()
	w.dialogs = h
	w.mu.Unlock()
}

// goBackground runs fn with the attachment context unless the WebView is
// detaching.
func (w *WebView) goBackground(fn func(ctx context.Context)) bool {
	w.mu.Lock()
	ctx := w.ctx
	if ctx.Err() != nil {
		w.mu.Unlock()
		return false
	}
	w.bg.Add(1)
	w.mu.Unlock()
	go func() {
		defer w.bg.Done()
		fn(ctx)
	}()
	return true
}

func (w *WebView) setState(s LoadState) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *WebView) viewOrErr() (core.NativeView, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.view == nil {
		return nil, ErrNoNativeView
	}
	return w.view, nil
}
