package webbridge

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/log"
	"github.com/cryguy/webbridge/internal/pending"
)

func TestMain(m *testing.M) {
	log.Discard()
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

const testPage = `<!DOCTYPE html>
<html>
<head><title>Bridge test</title></head>
<body>
<script>
function getNumber() { return 42; }
function getNumberFloat() { return 3.14; }
function getTruth() { return true; }
function getString() { return "string from webview"; }
function getArray() { return [1.5, 2.5, 3.5, 4.5]; }
function getObject() { return { name: "Morten", age: 32 }; }
function testPromiseResolve() {
	return new Promise(function(resolve) { setTimeout(function() { resolve(42); }, 50); });
}
function testPromiseReject() {
	return new Promise(function(_, reject) { setTimeout(function() { reject(new Error("The Cake is a Lie")); }, 50); });
}
window.addEventListener("ns-bridge-ready", function(e) {
	e.detail.on("ping", function(data) { e.detail.emit("pong", { got: data }); });
});
</script>
</body>
</html>`

var eventNamePattern = regexp.MustCompile(pending.EventNamePrefix + `\d+`)

// fakeView is a NativeView whose Evaluate is scripted by the test.
type fakeView struct {
	capability core.Capability

	mu      sync.Mutex
	scripts []string
	urls    []string
	data    []string
	stops   int
	eval    func(script string) (any, error)
}

func newFakeView(capability core.Capability) *fakeView {
	return &fakeView{capability: capability}
}

func (f *fakeView) Capability() core.Capability { return f.capability }

func (f *fakeView) LoadURL(url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	return nil
}

func (f *fakeView) LoadData(markup string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = append(f.data, markup)
	return nil
}

func (f *fakeView) Evaluate(_ context.Context, script string) (any, error) {
	f.mu.Lock()
	f.scripts = append(f.scripts, script)
	eval := f.eval
	f.mu.Unlock()
	if eval == nil {
		return "null", nil
	}
	return eval(script)
}

func (f *fakeView) setEval(fn func(string) (any, error)) {
	f.mu.Lock()
	f.eval = fn
	f.mu.Unlock()
}

func (f *fakeView) StopLoading() {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
}

func (f *fakeView) Reload() error      { return nil }
func (f *fakeView) GoBack() error      { return core.ErrNoHistory }
func (f *fakeView) GoForward() error   { return core.ErrNoHistory }
func (f *fakeView) CanGoBack() bool    { return false }
func (f *fakeView) CanGoForward() bool { return false }
func (f *fakeView) Close() error       { return nil }

func (f *fakeView) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.scripts...)
}

func (f *fakeView) loads() ([]string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...), append([]string(nil), f.data...)
}

func newFakeWebView(t *testing.T, capability core.Capability) (*WebView, *fakeView) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.AppRoot = t.TempDir()
	w := New(cfg)
	fv := newFakeView(capability)
	w.Attach(fv)
	t.Cleanup(func() { _ = w.Close() })
	return w, fv
}

func newHeadlessWebView(t *testing.T, capability Capability, cfg Config) *WebView {
	t.Helper()
	if cfg.AppRoot == "" {
		cfg.AppRoot = t.TempDir()
	}
	w, err := NewHeadless(cfg, capability)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func loadTestPage(t *testing.T, w *WebView) {
	t.Helper()
	ev, err := w.LoadURL(testContext(t), testPage)
	require.NoError(t, err)
	require.NotNil(t, ev)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// pendingListeners counts correlation listeners still registered.
func pendingListeners(w *WebView) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for name, list := range w.listeners {
		if strings.HasPrefix(name, pending.EventNamePrefix) {
			n += len(list)
		}
	}
	return n
}

// capabilities are the transports a headless page can expose.
var capabilities = []Capability{CapabilityAndroid, CapabilityWebKit, CapabilityLegacy}
