// Package headless implements core.NativeView on an embedded JS engine.
// A Page parses HTML into a Go-held document, runs its scripts and
// exposes the same native bridge objects an Android or WebKit web view
// would, so the host pipeline can be driven without a browser.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/dom"
	"github.com/cryguy/webbridge/internal/eventloop"
	"github.com/cryguy/webbridge/internal/log"
	"github.com/cryguy/webbridge/internal/notify"
	"github.com/cryguy/webbridge/internal/webapi"
)

// RuntimeFactory creates a fresh JS engine for one page load.
type RuntimeFactory func(memoryLimitMB int) (core.JSRuntime, error)

// DefaultUserAgent is reported through navigator.userAgent.
const DefaultUserAgent = "Mozilla/5.0 (Headless) webbridge"

// Options configures a Page.
type Options struct {
	Config     core.PageConfig
	NewRuntime RuntimeFactory
	// Resolver maps x-local://{name} to a file. Nil rejects every x-local load.
	Resolver   core.ResourceResolver
	HTTPClient *http.Client
	UserAgent  string
	Logger     *zerolog.Logger
}

// Page is a headless web view. One goroutine owns the JS engine; every
// exported method is safe for concurrent use.
type Page struct {
	host       core.ViewHost
	cfg        core.PageConfig
	newRuntime RuntimeFactory
	resolver   core.ResourceResolver
	client     *http.Client
	userAgent  string
	log        zerolog.Logger

	jobs      chan func()
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	baseCtx   context.Context
	cancel    context.CancelFunc
	deliver   *notify.Queue

	// Loop-owned state.
	rt       core.JSRuntime
	el       *eventloop.EventLoop
	doc      *dom.Document
	pageURL  string
	crashed  bool
	loadCtx  context.CancelFunc
	watchdog *time.Timer

	mu        sync.Mutex
	navSeq    uint64
	navCancel context.CancelFunc
	history   core.History

	localStorage   *webapi.WebStorage
	sessionStorage *webapi.WebStorage
}

var _ core.NativeView = (*Page)(nil)

// New creates a Page showing about:blank and starts its loop.
func New(host core.ViewHost, opts Options) (*Page, error) {
	if host == nil {
		return nil, errors.New("headless: nil view host")
	}
	if opts.NewRuntime == nil {
		return nil, errors.New("headless: no runtime factory")
	}
	cfg := opts.Config.WithDefaults()
	if cfg.Capability == core.CapabilitySocket {
		return nil, fmt.Errorf("headless: capability %s needs a browser", cfg.Capability)
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.FetchTimeout}
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	logger := log.WithComponent("headless")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	logger = logger.With().Str(log.FieldCapability, cfg.Capability.String()).Logger()

	ctx, cancel := context.WithCancel(context.Background())
	p := &Page{
		host:       host,
		cfg:        cfg,
		newRuntime: opts.NewRuntime,
		resolver:   opts.Resolver,
		client:     client,
		userAgent:  ua,
		log:        logger,
		jobs:       make(chan func()),
		closing:    make(chan struct{}),
		done:       make(chan struct{}),
		baseCtx:    ctx,
		cancel:     cancel,
		deliver:    notify.NewQueue(),

		localStorage:   webapi.NewWebStorage(0),
		sessionStorage: webapi.NewWebStorage(0),
	}
	if err := p.install(core.BlankURL, ""); err != nil {
		cancel()
		p.deliver.Close()
		return nil, err
	}
	go p.run()
	return p, nil
}

// Capability reports the bridge transport this page exposes.
func (p *Page) Capability() core.Capability { return p.cfg.Capability }

// run is the page loop: it executes jobs and fires due timers and loads.
func (p *Page) run() {
	defer close(p.done)
	defer p.teardown()

	for {
		var timerC <-chan time.Time
		var timer *time.Timer
		if d, ok := p.el.NextDeadline(); ok && !p.crashed {
			timer = time.NewTimer(time.Until(d))
			timerC = timer.C
		}

		select {
		case <-p.closing:
			if timer != nil {
				timer.Stop()
			}
			return
		case job := <-p.jobs:
			job()
		case <-timerC:
		case <-p.el.Wake():
		}
		if timer != nil {
			timer.Stop()
		}
		p.pump()
	}
}

// pump runs due timers and settled loads.
func (p *Page) pump() {
	if p.rt == nil || p.crashed {
		return
	}
	_ = p.guard(func() { p.el.RunDue(p.rt) })
}

// guard runs fn under the evaluation watchdog. A script that overruns it
// is interrupted and the page marked crashed until the next navigation.
func (p *Page) guard(fn func()) (err error) {
	var timedOut atomic.Bool
	if in, ok := p.rt.(core.Interrupter); ok {
		p.watchdog = time.AfterFunc(p.cfg.EvalTimeout, func() {
			timedOut.Store(true)
			in.Interrupt()
		})
	}
	defer func() {
		if p.watchdog != nil {
			p.watchdog.Stop()
			p.watchdog = nil
		}
		r := recover()
		if timedOut.Load() {
			p.crashed = true
			err = fmt.Errorf("script execution timed out (limit: %v): %w", p.cfg.EvalTimeout, core.ErrPageCrashed)
		} else if r != nil {
			p.crashed = true
			err = fmt.Errorf("script panic: %v: %w", r, core.ErrPageCrashed)
		}
		if err != nil {
			p.log.Error().Err(err).Str(log.FieldURL, p.pageURL).Msg("page crashed")
		}
	}()
	fn()
	return nil
}

// suspendWatchdog pauses the watchdog while fn blocks on the host, so a
// dialog left open does not count against the script.
func (p *Page) suspendWatchdog(fn func()) {
	wd := p.watchdog
	if wd != nil {
		wd.Stop()
	}
	fn()
	if wd != nil {
		wd.Reset(p.cfg.EvalTimeout)
	}
}

// do runs fn on the loop goroutine and waits for it.
func (p *Page) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case p.jobs <- func() { defer close(finished); fn() }:
	case <-p.closing:
		return core.ErrPageClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-p.done:
		return core.ErrPageClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn on the loop without waiting. Dropped after Close.
func (p *Page) post(fn func()) {
	select {
	case p.jobs <- fn:
	case <-p.closing:
	}
}

// Close stops the loop and releases the engine. Safe to call twice.
// Must not be called from a dialog callback.
func (p *Page) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		if p.navCancel != nil {
			p.navCancel()
		}
		p.mu.Unlock()
		p.cancel()
		close(p.closing)
		<-p.done
		p.deliver.Close()
	})
	return nil
}

// teardown releases the current document's engine.
func (p *Page) teardown() {
	if p.loadCtx != nil {
		p.loadCtx()
		p.loadCtx = nil
	}
	if p.rt != nil {
		p.rt.Close()
		p.rt = nil
	}
	if p.el != nil {
		p.el.Reset()
	}
}

// install replaces the current document with one parsed from body and
// runs its scripts. It runs on the loop goroutine, or before it starts.
func (p *Page) install(pageURL, body string) error {
	p.teardown()
	p.crashed = false
	p.pageURL = pageURL

	doc, err := dom.Parse(body)
	if err != nil {
		p.log.Warn().Err(err).Str(log.FieldURL, pageURL).Msg("unparsable document, showing a blank one")
		doc, _ = dom.Parse("")
	}
	p.doc = doc
	if p.el == nil {
		p.el = eventloop.New()
	}

	rt, rerr := p.newRuntime(p.cfg.MemoryLimitMB)
	if rerr != nil {
		p.crashed = true
		return fmt.Errorf("creating runtime: %w", rerr)
	}
	p.rt = rt

	ctx, cancel := context.WithCancel(p.baseCtx)
	p.loadCtx = cancel
	host := &pageHost{page: p, ctx: ctx, base: pageURL}

	for _, setup := range p.setupFuncs(doc, host) {
		if serr := setup(rt, p.el); serr != nil {
			p.crashed = true
			return fmt.Errorf("setup: %w", serr)
		}
	}
	if serr := rt.SetGlobal("__location_href", pageURL); serr != nil {
		p.crashed = true
		return fmt.Errorf("setup: %w", serr)
	}

	return p.guard(func() { p.runDocumentScripts(host) })
}

// setupFuncs lists the page API installers in dependency order.
func (p *Page) setupFuncs(doc *dom.Document, host webapi.PageHost) []webapi.SetupFunc {
	return []webapi.SetupFunc{
		webapi.SetupTimers,
		func(rt core.JSRuntime, el *eventloop.EventLoop) error {
			return webapi.SetupWindow(rt, el, host, p.userAgent)
		},
		webapi.SetupGlobals,
		webapi.SetupReportError,
		webapi.SetupAbort,
		webapi.SetupEncoding,
		webapi.SetupCrypto,
		webapi.SetupScheduler,
		webapi.SetupUnhandledRejection,
		func(rt core.JSRuntime, el *eventloop.EventLoop) error {
			return webapi.SetupStorage(rt, el, webapi.Origin(p.pageURL), p.localStorage, p.sessionStorage)
		},
		func(rt core.JSRuntime, el *eventloop.EventLoop) error {
			return webapi.SetupConsole(rt, el, host)
		},
		func(rt core.JSRuntime, el *eventloop.EventLoop) error {
			return webapi.SetupDocument(rt, el, doc, host)
		},
		func(rt core.JSRuntime, el *eventloop.EventLoop) error {
			return webapi.SetupNative(rt, el, p.cfg.Capability, host)
		},
	}
}

// runDocumentScripts runs the parsed document's scripts in order. External
// scripts are fetched synchronously, as a parser-blocking browser would.
func (p *Page) runDocumentScripts(host *pageHost) {
	for _, s := range p.doc.Scripts() {
		if !p.doc.Connected(s) || !p.doc.Claim(s) {
			continue
		}
		source := dom.TextContent(s)
		if src, ok := dom.Attr(s, "src"); ok && src != "" {
			body, err := host.Load(src)
			if err != nil {
				host.Console("error", fmt.Sprintf("Failed to load script %s: %v", src, err))
				continue
			}
			source = body
		}
		_ = p.rt.Eval("__runScript(" + jsString(source) + ")")
		p.rt.RunMicrotasks()
		if p.crashed {
			return
		}
	}
	_ = p.rt.Eval("__pageLoaded()")
	p.rt.RunMicrotasks()
}
