package socket

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/log"
	"github.com/cryguy/webbridge/internal/resources"
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

type pageEvent struct {
	name string
	data any
}

type recorder struct {
	started   chan string
	finished  chan loadEvent
	events    chan pageEvent
	console   chan string
	titles    chan string
	overrides chan string
	cancelNav bool
}

func newRecorder() *recorder {
	return &recorder{
		started:   make(chan string, 16),
		finished:  make(chan loadEvent, 16),
		events:    make(chan pageEvent, 16),
		console:   make(chan string, 16),
		titles:    make(chan string, 16),
		overrides: make(chan string, 16),
	}
}

func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}

func (r *recorder) OnLoadStarted(url string, _ core.NavigationType) { offer(r.started, url) }
func (r *recorder) OnLoadFinished(url, errText string) {
	offer(r.finished, loadEvent{url: url, err: errText})
}
func (r *recorder) OnShouldOverrideURLLoading(url, _ string, _ core.NavigationType) bool {
	offer(r.overrides, url)
	return r.cancelNav
}
func (r *recorder) OnWebViewEvent(name string, data any) {
	offer(r.events, pageEvent{name: name, data: data})
}
func (r *recorder) OnConsole(message string, _ int, level string) {
	offer(r.console, level+":"+message)
}
func (r *recorder) OnTitleChanged(title string)            { offer(r.titles, title) }
func (r *recorder) OnAlert(string)                         {}
func (r *recorder) OnConfirm(string) bool                  { return false }
func (r *recorder) OnPrompt(string, string) (string, bool) { return "", false }

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting")
	}
	var zero T
	return zero
}

// browser stands in for a tab running the client script.
type browser struct {
	ws     *websocket.Conn
	frames chan Frame
}

func (b *browser) send(t *testing.T, f Frame) {
	t.Helper()
	require.NoError(t, wsjson.Write(context.Background(), b.ws, f))
}

type fixture struct {
	srv  *Server
	http *httptest.Server
	reg  *resources.Registry
	dir  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	reg := resources.NewRegistry(resources.Options{AppRoot: dir})
	srv := NewServer(Options{Resources: reg, EvalTimeout: 2 * time.Second})
	hs := httptest.NewServer(srv)
	t.Cleanup(func() {
		_ = srv.Close()
		hs.Close()
	})
	return &fixture{srv: srv, http: hs, reg: reg, dir: dir}
}

func (f *fixture) session(t *testing.T) (*Session, *recorder) {
	t.Helper()
	sess := f.srv.NewSession()
	rec := newRecorder()
	sess.Bind(rec)
	return sess, rec
}

func (f *fixture) dial(t *testing.T, sess *Session) *browser {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws?session=" + sess.ID()
	ws, _, err := websocket.Dial(context.Background(), wsURL, nil)
	require.NoError(t, err)
	b := &browser{ws: ws, frames: make(chan Frame, 16)}
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(b.frames)
		for {
			var fr Frame
			if err := wsjson.Read(context.Background(), ws, &fr); err != nil {
				return
			}
			b.frames <- fr
		}
	}()
	t.Cleanup(func() {
		_ = ws.CloseNow()
		<-done
	})
	require.Eventually(t, sess.Connected, 2*time.Second, 5*time.Millisecond)
	return b
}

func (f *fixture) get(t *testing.T, path string) (int, string) {
	t.Helper()
	resp, err := http.Get(f.http.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestEvaluateReturnsJSONText(t *testing.T) {
	f := newFixture(t)
	sess, _ := f.session(t)
	b := f.dial(t, sess)

	go func() {
		fr := <-b.frames
		v := "42"
		_ = wsjson.Write(context.Background(), b.ws, Frame{Type: FrameResult, ID: fr.ID, Value: &v})
	}()

	got, err := sess.Evaluate(context.Background(), "getNumber()")
	require.NoError(t, err)
	assert.Equal(t, "42", got)
	assert.Equal(t, core.CapabilitySocket, sess.Capability())
}

func TestEvaluateScriptError(t *testing.T) {
	f := newFixture(t)
	sess, _ := f.session(t)
	b := f.dial(t, sess)

	go func() {
		fr := <-b.frames
		_ = wsjson.Write(context.Background(), b.ws, Frame{Type: FrameResult, ID: fr.ID,
			Error: &FrameError{Message: "boom", Stack: "at <eval>"}})
	}()

	_, err := sess.Evaluate(context.Background(), "throw new Error('boom')")
	var se *core.ScriptError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "boom", se.Message)
	assert.Equal(t, "at <eval>", se.Stack)
}

func TestEvaluateWaitsForBrowser(t *testing.T) {
	f := newFixture(t)
	sess, _ := f.session(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := sess.Evaluate(ctx, "1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDisconnectRejectsEvaluation(t *testing.T) {
	f := newFixture(t)
	sess, _ := f.session(t)
	b := f.dial(t, sess)

	go func() {
		<-b.frames
		_ = b.ws.Close(websocket.StatusNormalClosure, "navigating")
	}()

	_, err := sess.Evaluate(context.Background(), "1")
	assert.ErrorIs(t, err, ErrDisconnected)
}

func TestEventsReachHost(t *testing.T) {
	f := newFixture(t)
	sess, rec := f.session(t)
	b := f.dial(t, sess)

	b.send(t, Frame{Type: FrameEvent, EventName: "web-message", Data: `{"n":1}`})
	b.send(t, Frame{Type: FrameEvent, EventName: "raw", Data: `not json`})
	b.send(t, Frame{Type: FrameConsole, Level: "warn", Message: "careful"})
	b.send(t, Frame{Type: FrameTitle, Title: "Hello"})

	ev := recv(t, rec.events)
	assert.Equal(t, "web-message", ev.name)
	assert.Equal(t, map[string]any{"n": float64(1)}, ev.data)
	ev = recv(t, rec.events)
	assert.Equal(t, "not json", ev.data)
	assert.Equal(t, "warn:careful", recv(t, rec.console))
	assert.Equal(t, "Hello", recv(t, rec.titles))
}

func TestLoadDataServesDocumentWithClient(t *testing.T) {
	f := newFixture(t)
	sess, rec := f.session(t)
	b := f.dial(t, sess)

	require.NoError(t, sess.LoadData(`<html><head><title>T</title></head><body>hi</body></html>`))
	assert.Equal(t, core.BlankURL, recv(t, rec.started))

	nav := recv(t, b.frames)
	require.Equal(t, FrameNavigate, nav.Type)
	require.True(t, strings.HasPrefix(nav.URL, sess.Path()+"doc/"))

	code, body := f.get(t, nav.URL)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `<head><script src="`+sess.Path()+"client.js?doc=")
	assert.Contains(t, body, "<body>hi</body>")

	seq := strings.TrimPrefix(nav.URL, sess.Path()+"doc/")
	code, client := f.get(t, sess.Path()+"client.js?doc="+seq)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, client, `var SESSION = "`+sess.ID()+`"`)
	assert.Contains(t, client, "var DOC = "+seq+";")
	assert.Contains(t, client, "__nsSocketBridge")

	doc, err := strconv.ParseUint(seq, 10, 64)
	require.NoError(t, err)
	b.send(t, Frame{Type: FrameLoad, Phase: PhaseFinished, Doc: doc})
	assert.Equal(t, loadEvent{url: core.BlankURL}, recv(t, rec.finished))
}

func TestStaleDocumentIsRedirected(t *testing.T) {
	f := newFixture(t)
	sess, rec := f.session(t)
	b := f.dial(t, sess)

	require.NoError(t, sess.LoadData("<p>one</p>"))
	first := recv(t, b.frames)

	// The bootstrap document reports in after the navigation was issued.
	b.send(t, Frame{Type: FrameLoad, Phase: PhaseFinished, Doc: 1})
	again := recv(t, b.frames)
	assert.Equal(t, first.URL, again.URL)

	select {
	case ev := <-rec.finished:
		t.Fatalf("unexpected load finished %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLoadURLLocalResource(t *testing.T) {
	f := newFixture(t)
	sess, rec := f.session(t)
	b := f.dial(t, sess)

	page := filepath.Join(f.dir, "index.html")
	require.NoError(t, os.WriteFile(page, []byte(`<html><head></head><body><script src="x-local://lib.js"></script></body></html>`), 0o644))
	require.True(t, f.reg.Register("index.html", page))

	require.NoError(t, sess.LoadURL("x-local://index.html"))
	nav := recv(t, b.frames)
	_, body := f.get(t, nav.URL)
	assert.Contains(t, body, `<base href="/x-local/">`)
	assert.Contains(t, body, `<script src="/x-local/lib.js">`)
	recv(t, rec.started)
}

func TestLoadURLUnregisteredLocalResource(t *testing.T) {
	f := newFixture(t)
	sess, rec := f.session(t)

	require.NoError(t, sess.LoadURL("x-local://nope.html"))
	recv(t, rec.started)
	ev := recv(t, rec.finished)
	assert.Equal(t, "x-local://nope.html", ev.url)
	assert.Contains(t, ev.err, `"nope.html" is not registered`)
}

func TestExternalURLNavigatesDirectly(t *testing.T) {
	f := newFixture(t)
	sess, _ := f.session(t)
	b := f.dial(t, sess)

	require.NoError(t, sess.LoadURL("https://example.com/"))
	nav := recv(t, b.frames)
	assert.Equal(t, "https://example.com/", nav.URL)
}

func TestLinkNavigationAsksHost(t *testing.T) {
	f := newFixture(t)
	sess, rec := f.session(t)
	b := f.dial(t, sess)

	b.send(t, Frame{Type: FrameNavigation, URL: f.http.URL + "/x-local/next.html"})
	assert.Equal(t, "x-local://next.html", recv(t, rec.overrides))
	// next.html is unregistered, so the navigation fails without a frame.
	ev := recv(t, rec.finished)
	assert.Equal(t, "x-local://next.html", ev.url)
	assert.False(t, sess.CanGoBack())
}

func TestLinkNavigationCancelled(t *testing.T) {
	f := newFixture(t)
	sess, rec := f.session(t)
	rec.cancelNav = true
	b := f.dial(t, sess)

	b.send(t, Frame{Type: FrameNavigation, URL: "https://example.com/"})
	assert.Equal(t, "https://example.com/", recv(t, rec.overrides))
	select {
	case fr := <-b.frames:
		t.Fatalf("unexpected frame %+v", fr)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	sess, _ := f.session(t)

	assert.ErrorIs(t, sess.GoBack(), core.ErrNoHistory)
	require.NoError(t, sess.LoadData("<p>1</p>"))
	require.NoError(t, sess.LoadData("<p>2</p>"))
	assert.True(t, sess.CanGoBack())
	require.NoError(t, sess.GoBack())
	assert.True(t, sess.CanGoForward())
	require.NoError(t, sess.Reload())
}

func TestRootCreatesSession(t *testing.T) {
	sessions := make(chan *Session, 1)
	dir := t.TempDir()
	srv := NewServer(Options{
		Resources: resources.NewRegistry(resources.Options{AppRoot: dir}),
		OnSession: func(s *Session) { sessions <- s },
	})
	hs := httptest.NewServer(srv)
	defer hs.Close()
	defer srv.Close()

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Get(hs.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()

	created := recv(t, sessions)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, created.Path(), resp.Header.Get("Location"))
	_, ok := srv.Session(created.ID())
	assert.True(t, ok)
	assert.Len(t, srv.Sessions(), 1)

	resp, err = client.Get(hs.URL + created.Path())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, created.Path()+"doc/1", resp.Header.Get("Location"))
}

func TestBridgeScriptAndUnknownSession(t *testing.T) {
	f := newFixture(t)
	code, body := f.get(t, "/bridge.js")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "NSWebViewBridge")

	code, _ = f.get(t, "/s/does-not-exist/doc/1")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCloseRejectsAndRemoves(t *testing.T) {
	f := newFixture(t)
	sess, _ := f.session(t)
	b := f.dial(t, sess)

	errc := make(chan error, 1)
	go func() {
		_, err := sess.Evaluate(context.Background(), "new Promise(function(){})")
		errc <- err
	}()
	<-b.frames
	require.NoError(t, sess.Close())

	err := recv(t, errc)
	assert.True(t, errors.Is(err, core.ErrPageClosed) || errors.Is(err, ErrDisconnected), "got %v", err)
	_, ok := f.srv.Session(sess.ID())
	assert.False(t, ok)
	assert.ErrorIs(t, sess.LoadData("x"), core.ErrPageClosed)
	_, err = sess.Evaluate(context.Background(), "1")
	assert.ErrorIs(t, err, core.ErrPageClosed)
}

func TestInjectClient(t *testing.T) {
	assert.Equal(t, `<script src="c.js"></script><p>x</p>`, injectClient("<p>x</p>", "c.js", ""))
	assert.Equal(t, `<!DOCTYPE html><script src="c.js"></script><p>x</p>`, injectClient("<!DOCTYPE html><p>x</p>", "c.js", ""))
	assert.Equal(t, `<HTML lang="en"><base href="/b/"><script src="c.js"></script></HTML>`, injectClient(`<HTML lang="en"></HTML>`, "c.js", "/b/"))
}
