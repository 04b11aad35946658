package webbridge

import (
	"time"

	"github.com/cryguy/webbridge/internal/harness"
	"github.com/cryguy/webbridge/internal/resources"
)

// DefaultPromiseTimeout is how long a promise call waits when no timeout
// is given.
const DefaultPromiseTimeout = 500 * time.Millisecond

// Config holds the host-side settings of a WebView. Start from
// DefaultConfig; a zero Config has auto-injection and the viewport off.
type Config struct {
	PromiseTimeout   time.Duration // default wait for promise calls; negative waits forever
	AutoInjectBridge bool          // inject the bridge and auto-load files after every load
	InterceptScheme  string        // virtual scheme for local resources
	ViewPort         *ViewPort     // viewport meta injected after load; nil leaves pages alone
	AppRoot          string        // what "~/" expands to in src and resource paths
	MemoryLimitMB    int           // per-page JS heap for headless pages
	EvalTimeout      time.Duration // watchdog for one script evaluation in headless pages
}

// DefaultConfig returns the settings a WebView has out of the box.
func DefaultConfig() Config {
	return Config{
		PromiseTimeout:   DefaultPromiseTimeout,
		AutoInjectBridge: true,
		InterceptScheme:  resources.DefaultScheme,
		ViewPort:         harness.DefaultViewPort(),
	}
}

func (c Config) withDefaults() Config {
	if c.PromiseTimeout == 0 {
		c.PromiseTimeout = DefaultPromiseTimeout
	}
	if c.InterceptScheme == "" {
		c.InterceptScheme = resources.DefaultScheme
	}
	return c
}
