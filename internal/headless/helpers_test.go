package headless

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/log"
	"github.com/cryguy/webbridge/internal/webapi"
)

func TestMain(m *testing.M) {
	log.Discard()
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

type loadEvent struct {
	url string
	err string
}

type webEvent struct {
	name string
	data any
}

// recorder is a ViewHost that records notifications on channels.
type recorder struct {
	finished chan loadEvent
	started  chan string
	events   chan webEvent
	override chan string
	console  chan string
	titles   chan string

	mu        sync.Mutex
	cancelNav func(url string) bool
	alerts    []string
	confirm   bool
	prompt    string
}

func newRecorder() *recorder {
	return &recorder{
		finished: make(chan loadEvent, 16),
		started:  make(chan string, 16),
		events:   make(chan webEvent, 64),
		override: make(chan string, 16),
		console:  make(chan string, 64),
		titles:   make(chan string, 16),
	}
}

func (r *recorder) OnLoadStarted(url string, _ core.NavigationType) { offer(r.started, url) }
func (r *recorder) OnLoadFinished(url, errText string) {
	r.finished <- loadEvent{url: url, err: errText}
}
func (r *recorder) OnShouldOverrideURLLoading(url, _ string, _ core.NavigationType) bool {
	offer(r.override, url)
	r.mu.Lock()
	cancel := r.cancelNav
	r.mu.Unlock()
	return cancel != nil && cancel(url)
}
func (r *recorder) OnWebViewEvent(name string, data any) { r.events <- webEvent{name, data} }
func (r *recorder) OnConsole(msg string, _ int, level string) { offer(r.console, level+": "+msg) }
func (r *recorder) OnTitleChanged(title string) { offer(r.titles, title) }
func (r *recorder) OnAlert(msg string) {
	r.mu.Lock()
	r.alerts = append(r.alerts, msg)
	r.mu.Unlock()
}
func (r *recorder) OnConfirm(string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.confirm
}
func (r *recorder) OnPrompt(_, def string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.prompt == "" {
		return def, false
	}
	return r.prompt, true
}

// offer sends without blocking the delivery goroutine.
func offer(ch chan string, v string) {
	select {
	case ch <- v:
	default:
	}
}

type mapResolver map[string]string

func (m mapResolver) Resolve(name string) (string, bool) {
	p, ok := m[name]
	return p, ok
}

func newTestPage(t *testing.T, capability core.Capability, resolver core.ResourceResolver) (*Page, *recorder) {
	t.Helper()
	rec := newRecorder()
	p, err := New(rec, Options{
		Config:     core.PageConfig{Capability: capability, EvalTimeout: 2 * time.Second},
		NewRuntime: testRuntime,
		Resolver:   resolver,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p, rec
}

func loadHTML(t *testing.T, p *Page, rec *recorder, markup string) {
	t.Helper()
	require.NoError(t, p.LoadData(markup))
	ev := waitLoad(t, rec)
	require.Empty(t, ev.err)
}

func waitLoad(t *testing.T, rec *recorder) loadEvent {
	t.Helper()
	select {
	case ev := <-rec.finished:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for load")
		return loadEvent{}
	}
}

func waitEvent(t *testing.T, rec *recorder) webEvent {
	t.Helper()
	select {
	case ev := <-rec.events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for web view event")
		return webEvent{}
	}
}

func eval(t *testing.T, p *Page, script string) any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := p.Evaluate(ctx, script)
	require.NoError(t, err)
	return v
}

func injectBridge(t *testing.T, p *Page) {
	t.Helper()
	eval(t, p, webapi.BridgeJS)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
