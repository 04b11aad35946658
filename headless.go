package webbridge

import (
	"fmt"

	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/headless"
)

// NewHeadless creates a WebView attached to a headless page that exposes
// capability to page script. The page runs on the engine selected at
// build time and resolves local resources through the WebView's registry.
func NewHeadless(cfg Config, capability Capability, opts ...Option) (*WebView, error) {
	w := New(cfg, opts...)
	page, err := headless.New(w, headless.Options{
		Config: core.PageConfig{
			Capability:    capability,
			MemoryLimitMB: w.cfg.MemoryLimitMB,
			EvalTimeout:   w.cfg.EvalTimeout,
		},
		NewRuntime: newRuntime,
		Resolver:   w.res,
	})
	if err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("creating headless page: %w", err)
	}
	w.Attach(page)
	return w, nil
}

// AttachSession binds a browser session to a new WebView. The session
// stays owned by its server; closing the WebView closes the session.
func AttachSession(sess *Session, cfg Config, opts ...Option) *WebView {
	w := New(cfg, opts...)
	sess.Bind(w)
	w.Attach(sess)
	return w
}
