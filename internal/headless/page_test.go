package headless

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryguy/webbridge/internal/core"
)

const testPage = `<!DOCTYPE html>
<html>
<head><title>Bridge test</title></head>
<body>
<div id="app">hello</div>
<script>
function getNumber() { return 42; }
function getString() { return "The answer is 42"; }
function getArray() { return [1.5, true, "hello"]; }
function getObject() { return { name: "Morten", age: 32 }; }
function testPromiseResolve() {
	return new Promise(function(resolve) { setTimeout(function() { resolve(42); }, 100); });
}
function testPromiseReject() {
	return new Promise(function(_, reject) { setTimeout(function() { reject(new Error("The Cake is a Lie")); }, 100); });
}
</script>
</body>
</html>`

func TestEvaluateAndroidReturnsJSON(t *testing.T) {
	p, rec := newTestPage(t, core.CapabilityAndroid, nil)
	loadHTML(t, p, rec, testPage)

	assert.Equal(t, "42", eval(t, p, "getNumber()"))
	assert.Equal(t, `"The answer is 42"`, eval(t, p, "getString()"))
	assert.Equal(t, `[1.5,true,"hello"]`, eval(t, p, "getArray()"))
	assert.Equal(t, "null", eval(t, p, "void 0"))
}

func TestEvaluateWebKitReturnsValues(t *testing.T) {
	p, rec := newTestPage(t, core.CapabilityWebKit, nil)
	loadHTML(t, p, rec, testPage)

	assert.Equal(t, float64(42), eval(t, p, "getNumber()"))
	assert.Equal(t, "The answer is 42", eval(t, p, "getString()"))
	assert.Equal(t, []any{1.5, true, "hello"}, eval(t, p, "getArray()"))
	assert.Equal(t, map[string]any{"name": "Morten", "age": float64(32)}, eval(t, p, "getObject()"))
	assert.Nil(t, eval(t, p, "undefined"))
}

func TestEvaluateException(t *testing.T) {
	p, _ := newTestPage(t, core.CapabilityAndroid, nil)

	_, err := p.Evaluate(context.Background(), "throw new Error('boom')")
	var se *core.ScriptError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "boom", se.Message)

	// The page survives a thrown exception.
	assert.Equal(t, "2", eval(t, p, "1 + 1"))
}

func TestEvaluateRunawayScriptCrashesPage(t *testing.T) {
	rec := newRecorder()
	p, err := New(rec, Options{
		Config:     core.PageConfig{Capability: core.CapabilityAndroid, EvalTimeout: 200 * time.Millisecond},
		NewRuntime: testRuntime,
	})
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Evaluate(context.Background(), "for (;;) {}")
	require.ErrorIs(t, err, core.ErrPageCrashed)

	_, err = p.Evaluate(context.Background(), "1")
	require.ErrorIs(t, err, core.ErrPageCrashed)

	loadHTML(t, p, rec, "<p>fresh</p>")
	assert.Equal(t, "1", eval(t, p, "1"))
}

func TestLoadDataReportsLifecycleAndTitle(t *testing.T) {
	p, rec := newTestPage(t, core.CapabilityAndroid, nil)
	require.NoError(t, p.LoadData(testPage))

	select {
	case u := <-rec.started:
		assert.Equal(t, core.BlankURL, u)
	case <-time.After(5 * time.Second):
		t.Fatal("no load started")
	}
	ev := waitLoad(t, rec)
	assert.Equal(t, core.BlankURL, ev.url)
	assert.Empty(t, ev.err)

	select {
	case title := <-rec.titles:
		assert.Equal(t, "Bridge test", title)
	case <-time.After(5 * time.Second):
		t.Fatal("no title")
	}
	assert.Equal(t, `"hello"`, eval(t, p, "document.getElementById('app').textContent"))
}

func TestLoadURLUnregisteredLocalResource(t *testing.T) {
	p, rec := newTestPage(t, core.CapabilityAndroid, mapResolver{})
	require.NoError(t, p.LoadURL("x-local://missing.html"))

	ev := waitLoad(t, rec)
	assert.Equal(t, "x-local://missing.html", ev.url)
	assert.Contains(t, ev.err, `"missing.html" is not registered`)
}

func TestLoadURLLocalResourceAndExternalScript(t *testing.T) {
	script := writeFile(t, "lib.js", "function fromLib() { return 'lib'; }")
	page := writeFile(t, "index.html", `<html><head><script src="x-local://lib.js"></script></head><body></body></html>`)
	p, rec := newTestPage(t, core.CapabilityWebKit, mapResolver{"index.html": page, "lib.js": script})

	require.NoError(t, p.LoadURL("x-local://index.html"))
	ev := waitLoad(t, rec)
	require.Empty(t, ev.err)
	assert.Equal(t, "lib", eval(t, p, "fromLib()"))
	assert.Equal(t, "x-local://index.html", eval(t, p, "location.href"))
}

func TestLoadURLHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			_, _ = w.Write([]byte(`<html><body><script src="/app.js"></script></body></html>`))
		case "/app.js":
			_, _ = w.Write([]byte(`var served = location.pathname;`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	rec := newRecorder()
	client := srv.Client()
	p, err := New(rec, Options{
		Config:     core.PageConfig{Capability: core.CapabilityWebKit},
		NewRuntime: testRuntime,
		HTTPClient: client,
	})
	require.NoError(t, err)
	defer func() {
		_ = p.Close()
		client.CloseIdleConnections()
	}()

	require.NoError(t, p.LoadURL(srv.URL+"/"))
	ev := waitLoad(t, rec)
	require.Empty(t, ev.err)
	assert.Equal(t, "/", eval(t, p, "served"))

	require.NoError(t, p.LoadURL(srv.URL+"/nope"))
	ev = waitLoad(t, rec)
	assert.Contains(t, ev.err, "404")
}

func TestTimersAndMicrotasks(t *testing.T) {
	p, rec := newTestPage(t, core.CapabilityAndroid, nil)
	loadHTML(t, p, rec, "<p></p>")
	injectBridge(t, p)

	eval(t, p, `
		var order = [];
		setTimeout(function() { order.push('timeout'); nsWebViewBridge.emit('order', order); }, 20);
		Promise.resolve().then(function() { order.push('micro'); });
		requestAnimationFrame(function() { order.push('frame'); });
	`)
	ev := waitEvent(t, rec)
	assert.Equal(t, "order", ev.name)
	assert.Equal(t, []any{"micro", "frame", "timeout"}, ev.data)
}

func TestConsoleForwarded(t *testing.T) {
	p, rec := newTestPage(t, core.CapabilityAndroid, nil)

	eval(t, p, `console.warn('careful', {a: 1})`)
	select {
	case line := <-rec.console:
		assert.Equal(t, `warn: careful {"a":1}`, line)
	case <-time.After(5 * time.Second):
		t.Fatal("no console line")
	}
}

func TestDialogs(t *testing.T) {
	p, rec := newTestPage(t, core.CapabilityAndroid, nil)
	rec.mu.Lock()
	rec.confirm = true
	rec.prompt = "Morten"
	rec.mu.Unlock()

	eval(t, p, `alert('hi')`)
	assert.Equal(t, "true", eval(t, p, `confirm('sure?')`))
	assert.Equal(t, `"Morten"`, eval(t, p, `prompt('name?', 'x')`))

	rec.mu.Lock()
	rec.prompt = ""
	assert.Equal(t, []string{"hi"}, rec.alerts)
	rec.mu.Unlock()
	assert.Equal(t, "null", eval(t, p, `prompt('name?', 'x')`))
}

func TestHistory(t *testing.T) {
	p, rec := newTestPage(t, core.CapabilityAndroid, nil)
	assert.False(t, p.CanGoBack())
	assert.ErrorIs(t, p.GoBack(), core.ErrNoHistory)

	loadHTML(t, p, rec, "<script>var page = 1;</script>")
	loadHTML(t, p, rec, "<script>var page = 2;</script>")
	require.True(t, p.CanGoBack())
	require.False(t, p.CanGoForward())

	require.NoError(t, p.GoBack())
	waitLoad(t, rec)
	assert.Equal(t, "1", eval(t, p, "page"))
	assert.True(t, p.CanGoForward())

	require.NoError(t, p.GoForward())
	waitLoad(t, rec)
	assert.Equal(t, "2", eval(t, p, "page"))

	require.NoError(t, p.Reload())
	waitLoad(t, rec)
	assert.Equal(t, "2", eval(t, p, "page"))
}

func TestNavigationFromScriptAsksHost(t *testing.T) {
	p, rec := newTestPage(t, core.CapabilityAndroid, mapResolver{})
	rec.mu.Lock()
	rec.cancelNav = func(url string) bool { return strings.HasPrefix(url, "https://blocked.example") }
	rec.mu.Unlock()
	loadHTML(t, p, rec, "<p></p>")

	eval(t, p, `location.href = 'https://blocked.example/'`)
	select {
	case u := <-rec.override:
		assert.Equal(t, "https://blocked.example/", u)
	case <-time.After(5 * time.Second):
		t.Fatal("host was not asked")
	}

	eval(t, p, `location.assign('x-local://next.html')`)
	<-rec.override
	ev := waitLoad(t, rec)
	assert.Equal(t, "x-local://next.html", ev.url)
	assert.NotEmpty(t, ev.err)
}

func TestClosedPage(t *testing.T) {
	p, _ := newTestPage(t, core.CapabilityAndroid, nil)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err := p.Evaluate(context.Background(), "1")
	assert.True(t, errors.Is(err, core.ErrPageClosed))
	assert.ErrorIs(t, p.LoadURL("about:blank"), core.ErrPageClosed)
}

func TestSocketCapabilityRejected(t *testing.T) {
	_, err := New(newRecorder(), Options{
		Config:     core.PageConfig{Capability: core.CapabilitySocket},
		NewRuntime: testRuntime,
	})
	require.Error(t, err)
}
