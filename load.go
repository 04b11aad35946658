package webbridge

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/cryguy/webbridge/internal/harness"
	"github.com/cryguy/webbridge/internal/log"
	"github.com/cryguy/webbridge/internal/webapi"
)

// SetSrc navigates to src. "~/" is resolved against the app root and a
// leading "/" becomes a file URL. URLs with the local scheme, http(s) or
// file are loaded as URLs; anything else is shown as HTML markup. An
// empty src is ignored.
func (w *WebView) SetSrc(src string) error {
	if src == "" {
		return nil
	}
	view, err := w.viewOrErr()
	if err != nil {
		return err
	}
	view.StopLoading()

	resolved, isURL := w.resolveSrc(src)
	w.mu.Lock()
	w.src = resolved
	w.mu.Unlock()
	if resolved != src {
		w.log.Debug().Str(log.FieldEvent, "src.resolved").Str("src", src).Str(log.FieldURL, resolved).Msg("src resolved")
	}
	if isURL {
		return view.LoadURL(resolved)
	}
	return view.LoadData(resolved)
}

// LoadURL sets src and waits for the next load to finish. A load error,
// including one from a bridge injection stage, is returned along with the
// event.
func (w *WebView) LoadURL(ctx context.Context, src string) (*Event, error) {
	if src == "" {
		ev := &Event{Name: EventLoadFinished, Err: ErrEmptySrc}
		w.setState(StateFailed)
		w.notify(ev)
		return ev, ErrEmptySrc
	}

	done := make(chan *Event, 1)
	sub := w.Once(EventLoadFinished, func(ev *Event) { done <- ev })
	defer sub.Unsubscribe()

	if err := w.SetSrc(src); err != nil {
		return nil, err
	}
	select {
	case ev := <-done:
		return ev, ev.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// resolveSrc expands src and reports whether it is loaded as a URL.
func (w *WebView) resolveSrc(src string) (string, bool) {
	switch {
	case strings.HasPrefix(src, "~/"):
		src = "file://" + filepath.ToSlash(w.res.AppRoot()) + "/" + src[2:]
	case strings.HasPrefix(src, "/"):
		src = "file://" + src
	}

	lc := strings.ToLower(src)
	if strings.HasPrefix(lc, "file:///") {
		src = encodeURI(src)
	}
	if strings.HasPrefix(lc, w.cfg.InterceptScheme) ||
		strings.HasPrefix(lc, "http://") ||
		strings.HasPrefix(lc, "https://") ||
		strings.HasPrefix(lc, "file:///") {
		return w.normalizeURL(src), true
	}
	return src, false
}

// normalizeURL canonicalizes scheme and host case and gives a bare host
// a root path. Local scheme URLs are returned unchanged.
func (w *WebView) normalizeURL(raw string) string {
	if raw == "" || strings.HasPrefix(raw, w.cfg.InterceptScheme) {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Host = strings.ToLower(u.Host)
	if u.Host != "" && u.Path == "" && u.Opaque == "" {
		u.Path = "/"
	}
	return u.String()
}

// encodeURI escapes everything except the characters encodeURI keeps.
func encodeURI(s string) string {
	const keep = "-_.!~*'();/?:@&=+$,#"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || strings.IndexByte(keep, c) >= 0 {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

// finishLoad runs after the view reports a finished load: it keeps Src in
// step with the page, injects the bridge and auto-load files, then
// notifies loadFinished listeners and refreshes the title. A failing stage
// is reported on the event; listeners are always notified unless a newer
// load superseded this one.
func (w *WebView) finishLoad(ctx, parent context.Context, rawURL, errText string) {
	pageURL := w.normalizeURL(rawURL)
	ev := &Event{Name: EventLoadFinished, URL: pageURL}
	if errText != "" {
		ev.Err = errors.New(errText)
		w.setState(StateFailed)
		w.log.Warn().Str(log.FieldEvent, "load.failed").Str(log.FieldURL, pageURL).Str("error", errText).Msg("load failed")
		w.notify(ev)
		return
	}

	w.mu.Lock()
	// Markup loads report about:blank; Src keeps the markup.
	if pageURL != "about:blank" || !strings.HasPrefix(strings.TrimSpace(w.src), "<") {
		w.src = pageURL
	}
	inject := w.cfg.AutoInjectBridge
	w.mu.Unlock()

	if inject {
		if err := w.inject(ctx); err != nil {
			ev.Err = err
		}
	}
	switch {
	case parent.Err() != nil:
		ev.Err = ErrDetached
		w.notify(ev)
		return
	case ctx.Err() != nil:
		w.log.Debug().Str(log.FieldEvent, "load.superseded").Str(log.FieldURL, pageURL).Msg("newer load started")
		return
	case ev.Err != nil:
		w.log.Warn().Err(ev.Err).Str(log.FieldEvent, "load.inject_failed").Str(log.FieldURL, pageURL).Msg("bridge injection failed")
	}
	w.setState(StateLoaded)
	w.notify(ev)

	if !inject {
		return
	}
	if title, err := w.GetTitle(ctx); err == nil && title != "" {
		w.OnTitleChanged(title)
	}
}

// inject installs the bridge into the current page followed by the
// polyfills, the viewport meta tag and every auto-load entry.
func (w *WebView) inject(ctx context.Context) error {
	if _, err := w.ExecuteJavaScript(ctx, webapi.BridgeJS, false); err != nil {
		return fmt.Errorf("injecting bridge: %w", err)
	}
	if err := w.ensurePolyfills(ctx); err != nil {
		return fmt.Errorf("polyfills: %w", err)
	}
	if err := w.injectViewPort(ctx); err != nil {
		return fmt.Errorf("viewport: %w", err)
	}

	w.mu.Lock()
	scripts := append([]LocalFile(nil), w.autoScript...)
	styles := append([]LocalFile(nil), w.autoStyle...)
	blocks := make([]string, 0, len(w.autoBlocks))
	for _, b := range w.autoBlocks {
		blocks = append(blocks, b.code)
	}
	w.mu.Unlock()

	if err := w.LoadJavaScriptFiles(ctx, scripts); err != nil {
		return fmt.Errorf("auto-load scripts: %w", err)
	}
	if err := w.LoadStyleSheetFiles(ctx, styles); err != nil {
		return fmt.Errorf("auto-load stylesheets: %w", err)
	}
	if _, err := w.ExecutePromises(ctx, blocks, -1); err != nil {
		return fmt.Errorf("auto-execute: %w", err)
	}
	return nil
}

// polyfillFeatures are probed after every load, in this order.
var polyfillFeatures = []string{"Promise", "fetch"}

// ensurePolyfills runs the host-supplied polyfill for each feature the
// page lacks. Probe results are cached for the WebView's lifetime.
func (w *WebView) ensurePolyfills(ctx context.Context) error {
	for _, feature := range polyfillFeatures {
		w.mu.Lock()
		supported, probed := w.probes[feature]
		script := w.polyfills[feature]
		w.mu.Unlock()

		if !probed {
			v, err := w.ExecuteJavaScript(ctx, harness.FeatureProbe(feature), true)
			if err != nil {
				return err
			}
			supported = v == true
			w.mu.Lock()
			w.probes[feature] = supported
			w.mu.Unlock()
		}
		if supported {
			continue
		}
		if script == "" {
			w.log.Debug().Str(log.FieldEvent, "polyfill.missing").Str("feature", feature).Msg("page lacks feature and no polyfill is configured")
			continue
		}
		if _, err := w.ExecuteJavaScript(ctx, script, false); err != nil {
			return fmt.Errorf("%s polyfill: %w", feature, err)
		}
	}
	return nil
}

func (w *WebView) injectViewPort(ctx context.Context) error {
	w.mu.Lock()
	vp := w.cfg.ViewPort
	w.mu.Unlock()
	if vp == nil {
		return nil
	}
	_, err := w.ExecuteJavaScript(ctx, harness.ViewPortMeta(vp), false)
	return err
}

// SetViewPort replaces the viewport settings and applies them to the
// current page, if one is loaded. Nil stops further injection.
func (w *WebView) SetViewPort(ctx context.Context, vp *ViewPort) error {
	w.mu.Lock()
	w.cfg.ViewPort = vp
	loaded := w.src != ""
	w.mu.Unlock()
	if !loaded {
		return nil
	}
	return w.injectViewPort(ctx)
}

// GetTitle returns document.title.
func (w *WebView) GetTitle(ctx context.Context) (string, error) {
	v, err := w.ExecuteJavaScript(ctx, harness.Title, true)
	if err != nil {
		return "", err
	}
	title, _ := v.(string)
	return title, nil
}

// Reload reloads the current page.
func (w *WebView) Reload() error {
	view, err := w.viewOrErr()
	if err != nil {
		return err
	}
	return view.Reload()
}

// GoBack navigates one entry back in the view's history.
func (w *WebView) GoBack() error {
	view, err := w.viewOrErr()
	if err != nil {
		return err
	}
	return view.GoBack()
}

// GoForward navigates one entry forward in the view's history.
func (w *WebView) GoForward() error {
	view, err := w.viewOrErr()
	if err != nil {
		return err
	}
	return view.GoForward()
}

// CanGoBack reports whether GoBack would navigate.
func (w *WebView) CanGoBack() bool {
	view, err := w.viewOrErr()
	return err == nil && view.CanGoBack()
}

// CanGoForward reports whether GoForward would navigate.
func (w *WebView) CanGoForward() bool {
	view, err := w.viewOrErr()
	return err == nil && view.CanGoForward()
}

// StopLoading abandons the navigation in progress.
func (w *WebView) StopLoading() {
	if view, err := w.viewOrErr(); err == nil {
		view.StopLoading()
	}
}
