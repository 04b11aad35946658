package headless

import (
	"context"
	"errors"

	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/log"
)

// errStopped is reported as the load error of a navigation cut short by
// StopLoading.
var errStopped = errors.New("navigation stopped")

// LoadURL starts a navigation to url. Completion is reported through
// OnLoadFinished.
func (p *Page) LoadURL(url string) error {
	if p.isClosed() {
		return core.ErrPageClosed
	}
	p.navigate(core.HistoryEntry{URL: url}, core.NavigationOther, true)
	return nil
}

// LoadData shows markup as a document at about:blank.
func (p *Page) LoadData(markup string) error {
	if p.isClosed() {
		return core.ErrPageClosed
	}
	p.navigate(core.HistoryEntry{URL: core.BlankURL, Data: markup, IsData: true}, core.NavigationOther, true)
	return nil
}

// Reload navigates to the current history entry again.
func (p *Page) Reload() error {
	p.mu.Lock()
	e, ok := p.history.Current()
	p.mu.Unlock()
	if !ok {
		return core.ErrNoHistory
	}
	p.navigate(e, core.NavigationReload, false)
	return nil
}

// GoBack navigates one entry back in history.
func (p *Page) GoBack() error { return p.step(-1) }

// GoForward navigates one entry forward in history.
func (p *Page) GoForward() error { return p.step(1) }

func (p *Page) step(delta int) error {
	p.mu.Lock()
	e, ok := p.history.Move(delta)
	p.mu.Unlock()
	if !ok {
		return core.ErrNoHistory
	}
	p.navigate(e, core.NavigationBackForward, false)
	return nil
}

// CanGoBack reports whether GoBack has an entry to go to.
func (p *Page) CanGoBack() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.history.CanGo(-1)
}

// CanGoForward reports whether GoForward has an entry to go to.
func (p *Page) CanGoForward() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.history.CanGo(1)
}

// StopLoading abandons the navigation in progress, if any. The abandoned
// load is reported finished with an error.
func (p *Page) StopLoading() {
	p.mu.Lock()
	cancel := p.navCancel
	p.navCancel = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (p *Page) isClosed() bool {
	select {
	case <-p.closing:
		return true
	default:
		return false
	}
}

// navigate fetches e off the loop and installs it on the loop. A newer
// navigation supersedes an older one; only the newest is committed.
func (p *Page) navigate(e core.HistoryEntry, nav core.NavigationType, push bool) {
	ctx, cancel := context.WithCancel(p.baseCtx)

	p.mu.Lock()
	if p.navCancel != nil {
		p.navCancel()
	}
	p.navCancel = cancel
	p.navSeq++
	seq := p.navSeq
	if push {
		p.history.Push(e)
	}
	p.mu.Unlock()

	p.log.Debug().Str(log.FieldEvent, "navigation.start").Str(log.FieldURL, e.URL).Str("nav", string(nav)).Msg("loading")
	p.deliver.Push(func() { p.host.OnLoadStarted(e.URL, nav) })

	go func() {
		body, err := e.Data, error(nil)
		if !e.IsData {
			body, err = p.fetch(ctx, e.URL)
		}
		if ctx.Err() != nil {
			err = errStopped
		}
		p.post(func() { p.commit(seq, e.URL, body, err) })
	}()
}

// commit installs a fetched document if its navigation is still current.
func (p *Page) commit(seq uint64, url, body string, fetchErr error) {
	p.mu.Lock()
	current := seq == p.navSeq
	if current {
		p.navCancel = nil
	}
	p.mu.Unlock()
	if !current {
		return
	}

	errText := ""
	if fetchErr != nil {
		errText = fetchErr.Error()
		body = ""
		if errors.Is(fetchErr, errStopped) {
			p.deliver.Push(func() { p.host.OnLoadFinished(url, errText) })
			return
		}
	}
	if err := p.install(url, body); err != nil && errText == "" {
		errText = err.Error()
	}
	if errText != "" {
		p.log.Warn().Str(log.FieldEvent, "navigation.failed").Str(log.FieldURL, url).Str("error", errText).Msg("load failed")
	}
	title := p.doc.Title()
	p.deliver.Push(func() {
		p.host.OnLoadFinished(url, errText)
		if title != "" {
			p.host.OnTitleChanged(title)
		}
	})
}
