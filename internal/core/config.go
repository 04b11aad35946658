package core

import "time"

// PageConfig holds runtime configuration for a headless page.
type PageConfig struct {
	Capability       Capability    // transport the page exposes to the bridge
	MemoryLimitMB    int           // per-runtime memory limit
	EvalTimeout      time.Duration // watchdog for a single script evaluation
	MaxResponseBytes int           // max body size for http(s) page and resource loads
	FetchTimeout     time.Duration // per-request timeout for http(s) loads
}

// DefaultPageConfig returns the defaults used when a field is left zero.
func DefaultPageConfig() PageConfig {
	return PageConfig{
		Capability:       CapabilityAndroid,
		MemoryLimitMB:    64,
		EvalTimeout:      5 * time.Second,
		MaxResponseBytes: 8 << 20,
		FetchTimeout:     10 * time.Second,
	}
}

// WithDefaults fills zero fields from DefaultPageConfig.
func (c PageConfig) WithDefaults() PageConfig {
	d := DefaultPageConfig()
	if c.Capability == CapabilityUnknown {
		c.Capability = d.Capability
	}
	if c.MemoryLimitMB <= 0 {
		c.MemoryLimitMB = d.MemoryLimitMB
	}
	if c.EvalTimeout <= 0 {
		c.EvalTimeout = d.EvalTimeout
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = d.MaxResponseBytes
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = d.FetchTimeout
	}
	return c
}
