package socket

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/log"
	"github.com/cryguy/webbridge/internal/metrics"
	"github.com/cryguy/webbridge/internal/notify"
	"github.com/cryguy/webbridge/internal/pending"
)

// ErrDisconnected rejects evaluations whose browser connection dropped
// before answering.
var ErrDisconnected = errors.New("socket: browser disconnected")

// maxDocs bounds how many served documents a session remembers.
const maxDocs = 32

// document is one page the session can serve. External documents are
// navigated to directly and never served.
type document struct {
	url      string
	markup   string
	base     string
	external bool
	silent   bool
}

type conn struct {
	ws     *websocket.Conn
	calls  *pending.Registry
	origin string
}

func (c *conn) write(ctx context.Context, f Frame) error {
	return wsjson.Write(ctx, c.ws, f)
}

// Session is one browser tab attached over a websocket. It implements
// core.NativeView; the browser survives navigations by reconnecting from
// every document the session serves.
type Session struct {
	id          string
	server      *Server
	log         zerolog.Logger
	deliver     *notify.Queue
	evalTimeout time.Duration
	done        chan struct{}

	mu       sync.Mutex
	host     core.ViewHost
	conn     *conn
	attached chan struct{}
	docs     map[uint64]document
	docSeq   uint64
	want     uint64
	history  core.History
	closed   bool
}

var _ core.NativeView = (*Session)(nil)

func newSession(id string, server *Server, evalTimeout time.Duration, logger zerolog.Logger) *Session {
	s := &Session{
		id:          id,
		server:      server,
		log:         logger.With().Str(log.FieldSessionID, id).Logger(),
		deliver:     notify.NewQueue(),
		evalTimeout: evalTimeout,
		done:        make(chan struct{}),
		attached:    make(chan struct{}),
		docs:        make(map[uint64]document),
	}
	s.docSeq = 1
	s.want = 1
	s.docs[1] = document{url: core.BlankURL, silent: true}
	return s
}

// ID returns the session's uuid.
func (s *Session) ID() string { return s.id }

// Path is where a browser opens the session.
func (s *Session) Path() string { return "/s/" + s.id + "/" }

// Bind sets the host notifications are delivered to.
func (s *Session) Bind(host core.ViewHost) {
	s.mu.Lock()
	s.host = host
	s.mu.Unlock()
}

// Connected reports whether a browser document is attached.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Capability is always CapabilitySocket.
func (s *Session) Capability() core.Capability { return core.CapabilitySocket }

func (s *Session) notify(fn func(core.ViewHost)) {
	s.mu.Lock()
	h := s.host
	s.mu.Unlock()
	if h == nil {
		s.log.Debug().Str(log.FieldEvent, "notify.unbound").Msg("no host bound, dropping notification")
		return
	}
	s.deliver.Push(func() { fn(h) })
}

// LoadURL navigates the browser. Local documents (x-local, file) are read
// by the server and served to the browser; http(s) URLs are opened
// directly.
func (s *Session) LoadURL(rawURL string) error {
	return s.navigate(core.HistoryEntry{URL: rawURL}, core.NavigationOther, true)
}

// LoadData shows markup as a document at about:blank.
func (s *Session) LoadData(markup string) error {
	return s.navigate(core.HistoryEntry{URL: core.BlankURL, Data: markup, IsData: true}, core.NavigationOther, true)
}

// Reload navigates to the current history entry again.
func (s *Session) Reload() error {
	s.mu.Lock()
	e, ok := s.history.Current()
	s.mu.Unlock()
	if !ok {
		return core.ErrNoHistory
	}
	return s.navigate(e, core.NavigationReload, false)
}

// GoBack navigates one entry back in history.
func (s *Session) GoBack() error { return s.step(-1) }

// GoForward navigates one entry forward in history.
func (s *Session) GoForward() error { return s.step(1) }

func (s *Session) step(delta int) error {
	s.mu.Lock()
	e, ok := s.history.Move(delta)
	s.mu.Unlock()
	if !ok {
		return core.ErrNoHistory
	}
	return s.navigate(e, core.NavigationBackForward, false)
}

// CanGoBack reports whether GoBack has an entry to go to.
func (s *Session) CanGoBack() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.CanGo(-1)
}

// CanGoForward reports whether GoForward has an entry to go to.
func (s *Session) CanGoForward() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.CanGo(1)
}

// StopLoading asks the browser to stop the load in progress.
func (s *Session) StopLoading() {
	s.mu.Lock()
	c := s.conn
	s.mu.Unlock()
	if c != nil {
		_ = c.write(context.Background(), Frame{Type: FrameStop})
	}
}

func (s *Session) navigate(e core.HistoryEntry, nav core.NavigationType, push bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return core.ErrPageClosed
	}
	if push {
		s.history.Push(e)
	}
	s.mu.Unlock()

	s.log.Debug().Str(log.FieldEvent, "navigation.start").Str(log.FieldURL, e.URL).Str("nav", string(nav)).Msg("loading")
	s.notify(func(h core.ViewHost) { h.OnLoadStarted(e.URL, nav) })

	doc, err := s.server.document(e)
	if err != nil {
		s.log.Warn().Err(err).Str(log.FieldEvent, "navigation.failed").Str(log.FieldURL, e.URL).Msg("load failed")
		errText := err.Error()
		s.notify(func(h core.ViewHost) { h.OnLoadFinished(e.URL, errText) })
		return nil
	}

	s.mu.Lock()
	s.docSeq++
	seq := s.docSeq
	s.docs[seq] = doc
	delete(s.docs, seq-maxDocs)
	s.want = seq
	c := s.conn
	s.mu.Unlock()

	if c != nil {
		if err := c.write(context.Background(), Frame{Type: FrameNavigate, URL: s.docURL(seq, doc)}); err != nil {
			s.log.Debug().Err(err).Msg("navigate frame not delivered, browser will catch up on reconnect")
		}
	}
	return nil
}

func (s *Session) docURL(seq uint64, doc document) string {
	if doc.external {
		return doc.url
	}
	return s.Path() + "doc/" + strconv.FormatUint(seq, 10)
}

// current returns the document the browser should be showing.
func (s *Session) current() (uint64, document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.want, s.docs[s.want]
}

func (s *Session) lookupDoc(seq uint64) (document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[seq]
	return d, ok
}

// Evaluate runs script in the attached document and returns the JSON text
// of its completion value, like an Android evaluator.
func (s *Session) Evaluate(ctx context.Context, script string) (any, error) {
	c, err := s.waitConn(ctx)
	if err != nil {
		return nil, err
	}
	call := c.calls.New([]string{script}, s.evalTimeout)
	call.Arm()
	if err := c.write(ctx, Frame{Type: FrameEval, ID: call.ID, Script: script}); err != nil {
		call.Reject(fmt.Errorf("socket: sending eval: %w", err))
	}
	select {
	case <-call.Done():
	case <-ctx.Done():
		call.Reject(ctx.Err())
	}
	return call.Result()
}

func (s *Session) waitConn(ctx context.Context) (*conn, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, core.ErrPageClosed
		}
		if s.conn != nil {
			c := s.conn
			s.mu.Unlock()
			return c, nil
		}
		wait := s.attached
		s.mu.Unlock()
		select {
		case <-wait:
		case <-s.done:
			return nil, core.ErrPageClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// serve runs one browser connection until it drops.
func (s *Session) serve(ctx context.Context, ws *websocket.Conn, origin string) {
	c := &conn{ws: ws, calls: pending.NewRegistry("eval-"), origin: origin}
	if !s.attach(c) {
		_ = ws.Close(websocket.StatusGoingAway, "session closed")
		return
	}
	defer s.detach(c)

	for {
		var f Frame
		if err := wsjson.Read(ctx, ws, &f); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				s.log.Debug().Err(err).Msg("browser connection lost")
			}
			return
		}
		s.handle(c, f)
	}
}

func (s *Session) attach(c *conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	old := s.conn
	if old == nil {
		close(s.attached)
		metrics.SocketSessions.Inc()
	}
	s.conn = c
	if old != nil {
		go old.ws.Close(websocket.StatusGoingAway, "replaced by a newer document")
	}
	s.log.Debug().Str(log.FieldEvent, "socket.attached").Msg("browser attached")
	return true
}

func (s *Session) detach(c *conn) {
	s.mu.Lock()
	if s.conn == c {
		s.conn = nil
		s.attached = make(chan struct{})
		metrics.SocketSessions.Dec()
	}
	s.mu.Unlock()
	c.calls.RejectAll(ErrDisconnected)
	_ = c.ws.CloseNow()
}

func (s *Session) handle(c *conn, f Frame) {
	switch f.Type {
	case FrameResult:
		call, ok := c.calls.Lookup(f.ID)
		if !ok {
			s.log.Debug().Str(log.FieldCorrelationID, f.ID).Msg("late eval result dropped")
			return
		}
		if f.Error != nil {
			call.Reject(&core.ScriptError{Message: f.Error.Message, Stack: f.Error.Stack})
			return
		}
		value := "null"
		if f.Value != nil {
			value = *f.Value
		}
		call.Resolve(value)

	case FrameEvent:
		metrics.RecordEvent(metrics.DirectionInbound)
		data := core.DecodeEventData(f.Data)
		name := f.EventName
		s.notify(func(h core.ViewHost) { h.OnWebViewEvent(name, data) })

	case FrameLoad:
		s.handleLoad(c, f)

	case FrameConsole:
		s.notify(func(h core.ViewHost) { h.OnConsole(f.Message, f.Line, f.Level) })

	case FrameTitle:
		s.notify(func(h core.ViewHost) { h.OnTitleChanged(f.Title) })

	case FrameNavigation:
		target := s.logicalURL(c, f.URL)
		s.notify(func(h core.ViewHost) {
			if h.OnShouldOverrideURLLoading(target, "GET", core.NavigationLinkClicked) {
				return
			}
			_ = s.navigate(core.HistoryEntry{URL: target}, core.NavigationLinkClicked, true)
		})

	default:
		s.log.Debug().Str("frame", f.Type).Msg("unknown frame type")
	}
}

// handleLoad reports a finished document. A browser showing anything but
// the wanted document is sent there instead.
func (s *Session) handleLoad(c *conn, f Frame) {
	if f.Phase != PhaseFinished {
		return
	}
	want, doc := s.current()
	if f.Doc != want {
		if !doc.external {
			_ = c.write(context.Background(), Frame{Type: FrameNavigate, URL: s.docURL(want, doc)})
		}
		return
	}
	if doc.silent {
		return
	}
	errText := f.Message
	s.notify(func(h core.ViewHost) { h.OnLoadFinished(doc.url, errText) })
}

// logicalURL maps a browser URL back onto the address the host used.
func (s *Session) logicalURL(c *conn, raw string) string {
	u, err := url.Parse(raw)
	if err != nil || c.origin == "" || !strings.HasPrefix(raw, c.origin) {
		return raw
	}
	if name, ok := strings.CutPrefix(u.Path, "/x-local/"); ok {
		return s.server.scheme() + "://" + name
	}
	return raw
}

// Close detaches the browser and rejects outstanding evaluations.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	c := s.conn
	s.mu.Unlock()

	if c != nil {
		c.calls.RejectAll(core.ErrPageClosed)
		_ = c.ws.Close(websocket.StatusNormalClosure, "session closed")
	}
	s.server.remove(s.id)
	s.deliver.Close()
	return nil
}

func readDocument(path string, limit int) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	if limit > 0 && info.Size() > int64(limit) {
		return "", fmt.Errorf("reading %s: file exceeds %d bytes", path, limit)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(b), nil
}
