// Package socket attaches real browsers to the bridge. A Server hands each
// browser tab a Session, serves it documents that carry a small client
// script, and relays evaluations and bridge events over a websocket.
package socket

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/log"
	"github.com/cryguy/webbridge/internal/metrics"
	"github.com/cryguy/webbridge/internal/resources"
	"github.com/cryguy/webbridge/internal/webapi"
)

// MaxFrameBytes caps a single frame read from a browser.
const MaxFrameBytes = 8 << 20

// Options configures a Server.
type Options struct {
	// Resources serves /x-local/{name} and resolves x-local documents.
	// Nil rejects every x-local load.
	Resources *resources.Registry
	// EvalTimeout bounds one evaluation. Zero waits for the caller's context.
	EvalTimeout time.Duration
	// MaxDocumentBytes caps local documents read for a session.
	MaxDocumentBytes int
	// OnSession is called for each session a browser opens at "/", before
	// the browser is redirected into it.
	OnSession func(*Session)
	Logger    *zerolog.Logger
}

// Server routes browser traffic to sessions.
type Server struct {
	opts   Options
	router chi.Router
	log    zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewServer builds the router.
func NewServer(opts Options) *Server {
	logger := log.WithComponent("socket")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	if opts.MaxDocumentBytes <= 0 {
		opts.MaxDocumentBytes = core.DefaultPageConfig().MaxResponseBytes
	}
	s := &Server{
		opts:     opts,
		log:      logger,
		sessions: make(map[string]*Session),
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(requestMetrics)
	r.Get("/", s.handleRoot)
	r.Get("/bridge.js", s.handleBridge)
	r.Get("/ws", s.handleWS)
	if opts.Resources != nil {
		r.Get("/x-local/{name}", resources.NewHandler(opts.Resources).ServeHTTP)
	}
	r.Route("/s/{session}", func(r chi.Router) {
		r.Get("/", s.handleSessionRoot)
		r.Get("/client.js", s.handleClient)
		r.Get("/doc/{seq}", s.handleDocument)
	})
	s.router = r
	return s
}

// Router exposes the router so callers can mount extra routes.
func (s *Server) Router() chi.Router { return s.router }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// NewSession registers an unattached session. A browser joins it by
// opening Session.Path.
func (s *Server) NewSession() *Session {
	id := uuid.NewString()
	sess := newSession(id, s, s.opts.EvalTimeout, s.log)
	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	s.log.Info().Str(log.FieldEvent, "session.created").Str(log.FieldSessionID, id).Msg("session created")
	return sess
}

// Session returns the session with id.
func (s *Server) Session(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Sessions lists live sessions ordered by id.
func (s *Server) Sessions() []*Session {
	s.mu.Lock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Close closes every session.
func (s *Server) Close() error {
	for _, sess := range s.Sessions() {
		_ = sess.Close()
	}
	return nil
}

func (s *Server) remove(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

func (s *Server) scheme() string {
	if s.opts.Resources != nil {
		return s.opts.Resources.Scheme()
	}
	return resources.DefaultScheme
}

// document loads what a navigation to e shows.
func (s *Server) document(e core.HistoryEntry) (document, error) {
	if e.IsData {
		return document{url: e.URL, markup: e.Data}, nil
	}
	if e.URL == core.BlankURL {
		return document{url: e.URL}, nil
	}
	u, err := url.Parse(e.URL)
	if err != nil {
		return document{}, fmt.Errorf("invalid url %q: %w", e.URL, err)
	}
	switch scheme := strings.ToLower(u.Scheme); scheme {
	case s.scheme():
		name := strings.TrimPrefix(e.URL[len(u.Scheme)+1:], "//")
		if s.opts.Resources == nil {
			return document{}, fmt.Errorf("%s resource %q is not registered", scheme, name)
		}
		path, ok := s.opts.Resources.Resolve(name)
		if !ok {
			return document{}, fmt.Errorf("%s resource %q is not registered", scheme, name)
		}
		markup, err := readDocument(path, s.opts.MaxDocumentBytes)
		if err != nil {
			return document{}, err
		}
		return document{url: e.URL, markup: markup, base: "/x-local/"}, nil
	case "file":
		path, err := url.PathUnescape(u.Path)
		if err != nil {
			path = u.Path
		}
		markup, err := readDocument(path, s.opts.MaxDocumentBytes)
		if err != nil {
			return document{}, err
		}
		return document{url: e.URL, markup: markup}, nil
	case "http", "https":
		return document{url: e.URL, external: true}, nil
	default:
		return document{}, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
}

func (s *Server) sessionFor(w http.ResponseWriter, r *http.Request, id string) (*Session, bool) {
	sess, ok := s.Session(id)
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
	}
	return sess, ok
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	sess := s.NewSession()
	if s.opts.OnSession != nil {
		s.opts.OnSession(sess)
	}
	http.Redirect(w, r, sess.Path(), http.StatusFound)
}

func (s *Server) handleBridge(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/javascript")
	_, _ = w.Write([]byte(webapi.BridgeJS))
}

func (s *Server) handleSessionRoot(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r, chi.URLParam(r, "session"))
	if !ok {
		return
	}
	seq, doc := sess.current()
	http.Redirect(w, r, sess.docURL(seq, doc), http.StatusFound)
}

func (s *Server) handleClient(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r, chi.URLParam(r, "session"))
	if !ok {
		return
	}
	doc, _ := strconv.ParseUint(r.URL.Query().Get("doc"), 10, 64)
	w.Header().Set("Content-Type", "text/javascript")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(renderClient(sess.id, doc)))
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r, chi.URLParam(r, "session"))
	if !ok {
		return
	}
	seq, err := strconv.ParseUint(chi.URLParam(r, "seq"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	doc, ok := sess.lookupDoc(seq)
	if !ok || doc.external {
		http.NotFound(w, r)
		return
	}
	markup := strings.ReplaceAll(doc.markup, s.scheme()+"://", "/x-local/")
	client := sess.Path() + "client.js?doc=" + strconv.FormatUint(seq, 10)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(injectClient(markup, client, doc.base)))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r, r.URL.Query().Get("session"))
	if !ok {
		return
	}
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str(log.FieldSessionID, sess.id).Msg("websocket upgrade failed")
		return
	}
	ws.SetReadLimit(MaxFrameBytes)

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	sess.serve(context.Background(), ws, scheme+"://"+r.Host)
}

var (
	headOpen    = regexp.MustCompile(`(?i)<head(\s[^>]*)?>`)
	htmlOpen    = regexp.MustCompile(`(?i)<html(\s[^>]*)?>`)
	doctypeOpen = regexp.MustCompile(`(?i)<!doctype[^>]*>`)
)

// injectClient puts the client script (and a base element when base is
// set) at the start of the document head.
func injectClient(markup, clientSrc, base string) string {
	tag := `<script src="` + clientSrc + `"></script>`
	if base != "" {
		tag = `<base href="` + base + `">` + tag
	}
	for _, re := range []*regexp.Regexp{headOpen, htmlOpen, doctypeOpen} {
		if loc := re.FindStringIndex(markup); loc != nil {
			return markup[:loc[1]] + tag + markup[loc[1]:]
		}
	}
	return tag + markup
}

// requestMetrics records request latency by route pattern.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if pattern := rc.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		metrics.HTTPRequestDuration.
			WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).
			Observe(time.Since(start).Seconds())
	})
}
